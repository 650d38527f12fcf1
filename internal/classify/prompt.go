package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/keyword-cli/internal/model"
)

const systemPrompt = "You are an expert at classifying search keywords for customer journey analysis."

// Prompt builds the user message for one keyword.
func Prompt(keyword, industry string, phases, intents []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Classify this search keyword: %q\n\n", keyword)
	if industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n\n", strings.ToUpper(industry))
	}
	b.WriteString("Classify into:\n\n1. JOURNEY PHASE (choose one):\n")
	for _, p := range phases {
		fmt.Fprintf(&b, "   - %s\n", p)
	}
	b.WriteString("\n2. SEARCH INTENT (choose one):\n")
	for _, i := range intents {
		fmt.Fprintf(&b, "   - %s\n", i)
	}
	b.WriteString("\nRespond ONLY with valid JSON format:\n")
	b.WriteString(`{"journey_phase": "PHASE_NAME", "search_intent": "INTENT_NAME"}`)
	b.WriteString("\n\nNo explanation, just JSON.")
	return b.String()
}

// Parse extracts a classification from a reply. Code fences and text around
// the JSON object are tolerated. A reply without a journey phase fails.
func Parse(text string) (model.Classification, bool) {
	var raw struct {
		JourneyPhase string `json:"journey_phase"`
		SearchIntent string `json:"search_intent"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &raw); err != nil {
		return model.Classification{}, false
	}
	c := model.Classification{
		JourneyPhase: normalizeLabel(raw.JourneyPhase),
		SearchIntent: normalizeLabel(raw.SearchIntent),
	}
	return c, c.JourneyPhase != ""
}

func normalizeLabel(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), "_"))
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
