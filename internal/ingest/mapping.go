package ingest

import (
	"maps"
	"slices"
	"strings"

	"github.com/sells-group/keyword-cli/internal/model"
)

// Aliases lists the source headers recognised for each standard column.
// Matching is exact and case-insensitive; there is no fuzzy matching.
var Aliases = map[string][]string{
	model.ColKeyword:      {"keyword", "query", "search term", "term", "keywords"},
	model.ColSearchVolume: {"search volume", "search_volume", "volume", "searches", "monthly searches", "avg monthly searches"},
	model.ColCPC:          {"cpc", "cost per click", "avg cpc", "cpc (usd)", "cost"},
	model.ColDifficulty:   {"keyword difficulty", "difficulty", "kd", "competition", "keyword competition"},
	model.ColIntent:       {"intent", "intents", "search intent", "user intent"},
	model.ColPosition:     {"position", "rank", "ranking", "current position"},
	model.ColTraffic:      {"traffic", "estimated traffic", "visits", "organic traffic"},
	model.ColTrafficCost:  {"traffic cost", "traffic_cost", "traffic value", "cost", "value"},
	model.ColURL:          {"url", "page", "landing page", "target url"},
	model.ColSERPFeatures: {"serp features", "serp_features", "serp", "features", "serp features by keyword"},
	model.ColFirstSeen:    {"first seen", "first_seen", "first seen date", "timestamp"},
}

// Mapping maps standard column names to source header names. It overrides
// alias resolution for the columns it names.
type Mapping map[string]string

// Resolve maps each standard column to a header index. Explicit mappings
// win; remaining columns resolve through Aliases. A header is used for at
// most one standard column. Unclaimed headers are returned as extras.
func Resolve(header []string, m Mapping) (cols map[string]int, extras map[string]int) {
	cols = make(map[string]int)
	claimed := make(map[int]bool)

	find := func(name string) int {
		for i, h := range header {
			if !claimed[i] && strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
				return i
			}
		}
		return -1
	}

	order := slices.Clone(model.StandardColumns)
	for _, std := range slices.Sorted(maps.Keys(m)) {
		if !slices.Contains(order, std) {
			order = append(order, std)
		}
	}
	for _, std := range order {
		src := m[std]
		if src == "" {
			continue
		}
		if i := find(src); i >= 0 {
			cols[std] = i
			claimed[i] = true
		}
	}
	for _, std := range model.StandardColumns {
		if _, ok := cols[std]; ok {
			continue
		}
		for _, alias := range Aliases[std] {
			if i := find(alias); i >= 0 {
				cols[std] = i
				claimed[i] = true
				break
			}
		}
	}

	extras = make(map[string]int)
	for i, h := range header {
		if h = strings.TrimSpace(h); h != "" && !claimed[i] {
			extras[h] = i
		}
	}
	return cols, extras
}

// DetectFormat guesses which tool produced an export from its header.
func DetectFormat(header []string) string {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(h)
	}
	joined := strings.Join(lower, " ")

	count := func(indicators []string) int {
		n := 0
		for _, ind := range indicators {
			if strings.Contains(joined, ind) {
				n++
			}
		}
		return n
	}

	if count([]string{"keyword difficulty", "cpc", "search volume", "serp features"}) >= 3 {
		return "SEMrush"
	}
	if count([]string{"keyword", "position", "url", "traffic", "volume"}) >= 3 {
		return "Ahrefs"
	}
	return "Custom"
}

// orderedExtras returns extra header names in source order.
func orderedExtras(extras map[string]int) []string {
	names := make([]string, 0, len(extras))
	for name := range extras {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int { return extras[a] - extras[b] })
	return names
}
