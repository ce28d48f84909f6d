package matching

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeFolding(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"case and trailing space", "Kathmandu ", "kathmandu"},
		{"diacritics removed", "Kāthmāndu", "kathmandu"},
		{"punctuation to space", "Pokhara-Lekhnath", "pokhara lekhnath"},
		{"whitespace collapsed", "  Pokhara    Lekhnath ", "pokhara lekhnath"},
		{"apostrophes dropped", "Sa'dabad", "sa dabad"},
		{"empty input", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, n.Normalize(tc.in))
		})
	}
}

func TestNormalizeSuffixStripping(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(nil)

	// Longest suffix wins, and only one suffix is removed.
	require.Equal(t, "pokhara", n.Normalize("Pokhara Rural Municipality"))
	require.Equal(t, "kathmandu", n.Normalize("Kathmandu Metropolitan City"))
	require.Equal(t, "kaski", n.Normalize("Kaski District"))

	// A name that IS a suffix is preserved.
	require.Equal(t, "municipality", n.Normalize("Municipality"))

	// Suffix in the middle of the name is untouched.
	require.Equal(t, "district eight", n.Normalize("District Eight"))
}

func TestNormalizeAliasesAndTransliterations(t *testing.T) {
	t.Parallel()

	table := DefaultAliasTable()
	table.Transliterations = map[string]string{"काठमाडौं": "kathmandu"}
	n := NewNormalizer(table)

	require.Equal(t, "kathmandu", n.Normalize("KTM"))
	require.Equal(t, "kathmandu", n.Normalize("काठमाडौं"))

	// Alias resolution happens after suffix stripping.
	require.Equal(t, "kathmandu", n.Normalize("KTM District"))
}

func TestNormalizeDeterministic(t *testing.T) {
	t.Parallel()

	a := NewNormalizer(DefaultAliasTable())
	b := NewNormalizer(DefaultAliasTable())

	inputs := []string{"Kathmandu", "Pokhara Lekhnath", "Bāglung Municipality", "ktm"}
	for _, in := range inputs {
		require.Equal(t, a.Normalize(in), b.Normalize(in))
		require.Equal(t, a.Normalize(in), a.Normalize(in))
	}
}
