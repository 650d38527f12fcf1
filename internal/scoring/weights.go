package scoring

import "strings"

// DefaultWeight applies to missing labels and labels no rule recognises.
const DefaultWeight = 0.5

var journeyExact = map[string]float64{
	"UNAWARE":            0.3,
	"AWARE":              0.5,
	"AWARE_NOT_INSURED":  0.8,
	"AWARE_NOT_JOINED":   0.8,
	"RESEARCH":           0.6,
	"RESEARCHING":        0.6,
	"COMPARISON":         0.9,
	"COMPARING":          0.9,
	"DECISION":           1.0,
	"NEW_MEMBER":         0.7,
	"MEMBER":             0.7,
	"NEW_CUSTOMER":       0.5,
	"ESTABLISHED_MEMBER": 0.6,
	"ACTIVE_MEMBER":      0.8,
	"POLICY_HOLDER":      0.4,
	"RENEWAL":            0.7,
	"LIFE_EVENT":         0.6,
}

type tokenRule struct {
	tokens []string
	weight float64
}

// Checked in order; the first rule with a matching token wins.
var journeyTokens = []tokenRule{
	{[]string{"unaware"}, 0.3},
	{[]string{"aware", "learning", "discover"}, 0.5},
	{[]string{"research", "browse", "consider", "evaluat"}, 0.6},
	{[]string{"compar", "shortlist", "assess"}, 0.9},
	{[]string{"decision", "checkout", "purchase", "buy", "trial"}, 1.0},
	{[]string{"customer", "member", "holder", "user", "subscriber"}, 0.6},
	{[]string{"renewal", "retain", "expansion"}, 0.7},
	{[]string{"advocate", "power", "experienced"}, 0.8},
}

var intentExact = map[string]float64{
	"TRANSACTIONAL": 1.0,
	"COMMERCIAL":    0.9,
	"COMPARISON":    0.8,
	"NAVIGATIONAL":  0.7,
	"INFORMATIONAL": 0.5,
}

var intentTokens = []tokenRule{
	{[]string{"transact", "buy", "purchase", "checkout"}, 1.0},
	{[]string{"commercial", "comparison", "compare"}, 0.9},
	{[]string{"navigat", "brand"}, 0.7},
}

// JourneyWeight maps a journey-phase label to [0,1]. Known labels use a
// fixed table; custom vocabularies fall back to token matching.
func JourneyWeight(phase string) float64 {
	return weigh(phase, journeyExact, journeyTokens)
}

// IntentWeight maps a search-intent label to [0,1] the same way.
func IntentWeight(intent string) float64 {
	return weigh(intent, intentExact, intentTokens)
}

func weigh(label string, exact map[string]float64, rules []tokenRule) float64 {
	label = strings.TrimSpace(label)
	if label == "" {
		return DefaultWeight
	}
	if w, ok := exact[strings.ToUpper(label)]; ok {
		return w
	}
	lower := strings.ToLower(label)
	for _, r := range rules {
		for _, tok := range r.tokens {
			if strings.Contains(lower, tok) {
				return r.weight
			}
		}
	}
	return DefaultWeight
}
