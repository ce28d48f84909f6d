package matching

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/iota-uz/geosync/modules/geo/domain/unit"
)

// Confidence classifies a similarity score against the configured
// thresholds.
type Confidence string

const (
	// ConfidenceHigh marks matches the submitter may accept directly.
	// Nothing is ever merged silently, high confidence only changes what
	// the submitter is shown.
	ConfidenceHigh Confidence = "HIGH"
	// ConfidenceReview marks matches surfaced to an admin for review.
	ConfidenceReview Confidence = "REVIEW"
	ConfidenceNone   Confidence = "NONE"
)

type Config struct {
	HighConfidence  float64
	ReviewThreshold float64
	MaxResults      int
}

func DefaultConfig() Config {
	return Config{
		HighConfidence:  0.92,
		ReviewThreshold: 0.70,
		MaxResults:      10,
	}
}

// Match is one scored canonical unit.
type Match struct {
	Unit  *unit.AdministrativeUnit
	Score float64
}

// Matcher ranks existing units against a normalized candidate name. The
// pool is always the sibling set (same store, country, level, and parent
// when given); matching is never global.
type Matcher struct {
	units unit.Repository
	cfg   Config
}

func NewMatcher(units unit.Repository, cfg Config) *Matcher {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultConfig().MaxResults
	}
	if cfg.HighConfidence == 0 {
		cfg.HighConfidence = DefaultConfig().HighConfidence
	}
	if cfg.ReviewThreshold == 0 {
		cfg.ReviewThreshold = DefaultConfig().ReviewThreshold
	}
	return &Matcher{units: units, cfg: cfg}
}

func (m *Matcher) Config() Config {
	return m.cfg
}

func (m *Matcher) Classify(score float64) Confidence {
	switch {
	case score >= m.cfg.HighConfidence:
		return ConfidenceHigh
	case score >= m.cfg.ReviewThreshold:
		return ConfidenceReview
	default:
		return ConfidenceNone
	}
}

// FindMatches returns scored matches at or above the review threshold,
// best first. An empty result is a normal outcome, never an error.
func (m *Matcher) FindMatches(ctx context.Context, store unit.StoreID, normalized, country string, level unit.Level, parentID *uuid.UUID) ([]Match, error) {
	pool, err := m.units.List(ctx, store, unit.Filter{
		Country:  country,
		Level:    level,
		ParentID: parentID,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(pool))
	for _, u := range pool {
		score := Similarity(normalized, u.NormalizedName)
		if score < m.cfg.ReviewThreshold {
			continue
		}
		matches = append(matches, Match{Unit: u, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		// Deterministic tie-break: shorter path depth, then lexical id.
		if len(matches[i].Unit.Path) != len(matches[j].Unit.Path) {
			return len(matches[i].Unit.Path) < len(matches[j].Unit.Path)
		}
		return matches[i].Unit.ID.String() < matches[j].Unit.ID.String()
	})

	if len(matches) > m.cfg.MaxResults {
		matches = matches[:m.cfg.MaxResults]
	}
	return matches, nil
}

// Similarity combines normalized edit distance with trigram overlap into
// one score in [0,1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	return 0.6*levenshteinSimilarity(a, b) + 0.4*trigramSimilarity(a, b)
}

func levenshteinSimilarity(a, b string) float64 {
	distance := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// trigramSimilarity is the Dice coefficient over padded 3-gram sets.
func trigramSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	shared := 0
	for g, ca := range ta {
		if cb, ok := tb[g]; ok {
			if cb < ca {
				shared += cb
			} else {
				shared += ca
			}
		}
	}

	total := 0
	for _, c := range ta {
		total += c
	}
	for _, c := range tb {
		total += c
	}
	return 2.0 * float64(shared) / float64(total)
}

func trigrams(s string) map[string]int {
	padded := "  " + strings.ReplaceAll(s, " ", "  ") + "  "
	runes := []rune(padded)
	if len(runes) < 3 {
		return nil
	}
	out := make(map[string]int, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		g := string(runes[i : i+3])
		if strings.TrimSpace(g) == "" {
			continue
		}
		out[g]++
	}
	return out
}
