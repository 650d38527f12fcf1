package classify

import (
	"slices"
	"strconv"
	"strings"

	"github.com/sells-group/keyword-cli/internal/model"
)

// DefaultTemplate is used when no or an unknown template is named.
const DefaultTemplate = "Financial Services"

// CustomTemplate selects user-supplied phases.
const CustomTemplate = "Custom"

// Templates holds the journey-phase vocabularies offered per industry.
var Templates = map[string][]string{
	"Financial Services": {"UNAWARE", "AWARE", "RESEARCHING", "COMPARING", "MEMBER", "ACTIVE_MEMBER", "LIFE_EVENT"},
	"Insurance":          {"UNAWARE", "AWARE_NOT_INSURED", "RESEARCHING", "COMPARING", "POLICY_HOLDER", "RENEWAL", "LIFE_EVENT"},
	"E-commerce":         {"UNAWARE", "PROBLEM_AWARE", "SOLUTION_AWARE", "PRODUCT_AWARE", "CUSTOMER", "REPEAT_CUSTOMER", "ADVOCATE"},
	"SaaS":               {"UNAWARE", "PROBLEM_AWARE", "SOLUTION_AWARE", "EVALUATING", "TRIAL", "CUSTOMER", "POWER_USER"},
	"B2B":                {"UNAWARE", "PROBLEM_AWARE", "RESEARCH", "EVALUATION", "DECISION", "CUSTOMER", "EXPANSION"},
}

// DefaultIntents is the search-intent vocabulary.
var DefaultIntents = []string{"INFORMATIONAL", "COMPARISON", "TRANSACTIONAL", "NAVIGATIONAL", "COMMERCIAL"}

// TemplateNames returns the template names in sorted order, Custom last.
func TemplateNames() []string {
	names := make([]string, 0, len(Templates)+1)
	for name := range Templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return append(names, CustomTemplate)
}

// Phases resolves the phase vocabulary for a template. Custom phases are
// upper-cased and trimmed; an empty custom list falls back to the default.
func Phases(template string, custom []string) []string {
	if template == CustomTemplate {
		var out []string
		for _, p := range custom {
			if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if phases, ok := Templates[template]; ok {
		return slices.Clone(phases)
	}
	return slices.Clone(Templates[DefaultTemplate])
}

// RequestID is the custom id sent for the row at index i.
func RequestID(i int) string {
	return "kw-" + strconv.Itoa(i)
}

// Pending lists the rows that still need a journey phase.
func Pending(t *model.Table) []model.PendingRequest {
	var out []model.PendingRequest
	for i, r := range t.Rows {
		if r.JourneyPhase == "" {
			out = append(out, model.PendingRequest{ID: RequestID(i), Keyword: r.Keyword})
		}
	}
	return out
}
