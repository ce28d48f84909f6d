package matching

import (
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AliasTable configures name normalization: administrative suffixes to
// strip, whole-name aliases, and script transliterations applied before
// folding. Tables are loaded once at startup; two normalizers built from
// the same table always agree.
type AliasTable struct {
	// Suffixes are trailing administrative qualifiers removed from names,
	// e.g. "municipality", "rural municipality", "nagarpalika".
	Suffixes []string `toml:"suffixes"`
	// Aliases map a fully normalized name to its canonical comparison
	// form, e.g. "ktm" -> "kathmandu".
	Aliases map[string]string `toml:"aliases"`
	// Transliterations are literal substring substitutions applied to the
	// raw input before folding, mapping known script variants to one
	// comparison script.
	Transliterations map[string]string `toml:"transliterations"`
}

func LoadAliasTable(path string) (*AliasTable, error) {
	var t AliasTable
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DefaultAliasTable covers the Nepali administrative vocabulary the
// canonical dataset ships with.
func DefaultAliasTable() *AliasTable {
	return &AliasTable{
		Suffixes: []string{
			"metropolitan city",
			"sub metropolitan city",
			"rural municipality",
			"municipality",
			"gaunpalika",
			"nagarpalika",
			"mahanagarpalika",
			"upamahanagarpalika",
			"district",
			"province",
			"zone",
			"vdc",
		},
		Aliases: map[string]string{
			"ktm": "kathmandu",
		},
		Transliterations: map[string]string{},
	}
}

// Normalizer maps raw free-text geographic names to a canonical comparable
// form. Pure and deterministic: same input and table, same output.
type Normalizer struct {
	table       *AliasTable
	suffixes    []string // longest first
	fold        transform.Transformer
	replacement *strings.Replacer
}

func NewNormalizer(table *AliasTable) *Normalizer {
	if table == nil {
		table = DefaultAliasTable()
	}

	suffixes := make([]string, len(table.Suffixes))
	copy(suffixes, table.Suffixes)
	// Longest-first so "rural municipality" wins over "municipality".
	for i := range suffixes {
		for j := i + 1; j < len(suffixes); j++ {
			if len(suffixes[j]) > len(suffixes[i]) {
				suffixes[i], suffixes[j] = suffixes[j], suffixes[i]
			}
		}
	}

	pairs := make([]string, 0, len(table.Transliterations)*2)
	for from, to := range table.Transliterations {
		pairs = append(pairs, from, to)
	}

	return &Normalizer{
		table:       table,
		suffixes:    suffixes,
		fold:        transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		replacement: strings.NewReplacer(pairs...),
	}
}

// Normalize folds case and diacritics, collapses whitespace, strips
// configured administrative suffixes, and resolves known aliases.
func (n *Normalizer) Normalize(raw string) string {
	s := n.replacement.Replace(raw)

	if folded, _, err := transform.String(n.fold, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.' || r == ',' || r == '\'':
			b.WriteByte(' ')
		}
	}
	s = strings.Join(strings.Fields(b.String()), " ")

	for _, suffix := range n.suffixes {
		if s == suffix {
			break // a name that IS the suffix stays as-is
		}
		if strings.HasSuffix(s, " "+suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, " "+suffix))
			break
		}
	}

	if alias, ok := n.table.Aliases[s]; ok {
		return alias
	}
	return s
}
