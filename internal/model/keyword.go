package model

import (
	"math"
	"strconv"
	"strings"
)

// Standard column names. Input tables are mapped onto these before any
// component sees them.
const (
	ColKeyword      = "keyword"
	ColSearchVolume = "search_volume"
	ColCPC          = "cpc"
	ColDifficulty   = "difficulty"
	ColPosition     = "position"
	ColURL          = "url"
	ColTraffic      = "traffic"
	ColTrafficCost  = "traffic_cost"
	ColSERPFeatures = "serp_features"
	ColFirstSeen    = "first_seen"
	ColIntent       = "intent"

	ColJourneyPhase = "journey_phase"
	ColSearchIntent = "search_intent"

	ColJourneyWeight      = "journey_weight"
	ColIntentWeight       = "intent_weight"
	ColBusinessValue      = "business_value"
	ColCompetitorsRanking = "competitors_ranking"
	ColOpportunityGap     = "opportunity_gap"
	ColOpportunityScore   = "opportunity_score"
)

// StandardColumns is the mapped input schema in canonical order.
var StandardColumns = []string{
	ColKeyword, ColSearchVolume, ColCPC, ColDifficulty, ColPosition, ColURL,
	ColTraffic, ColTrafficCost, ColSERPFeatures, ColFirstSeen, ColIntent,
}

// RankingFields are the per-source columns contributed by rankings and
// competitor tables. SharedMetrics are coalesced across sources on merge.
var (
	RankingFields = []string{ColPosition, ColURL, ColTraffic, ColTrafficCost}
	SharedMetrics = []string{ColSearchVolume, ColCPC, ColDifficulty}
)

// Ranking holds one source's ranking metrics for a keyword. At the CSV
// boundary it is rendered as {slug}_position, {slug}_url and so on.
type Ranking struct {
	Position    *int     `json:"position,omitempty"`
	URL         string   `json:"url,omitempty"`
	Traffic     *float64 `json:"traffic,omitempty"`
	TrafficCost *float64 `json:"traffic_cost,omitempty"`
}

// KeywordRow is one search keyword and its metrics. Nil pointers and empty
// strings mean the value is missing.
type KeywordRow struct {
	Keyword      string   `json:"keyword"`
	SearchVolume *float64 `json:"search_volume,omitempty"`
	CPC          *float64 `json:"cpc,omitempty"`
	Difficulty   *float64 `json:"difficulty,omitempty"`
	Position     *int     `json:"position,omitempty"`
	URL          string   `json:"url,omitempty"`
	Traffic      *float64 `json:"traffic,omitempty"`
	TrafficCost  *float64 `json:"traffic_cost,omitempty"`
	SERPFeatures string   `json:"serp_features,omitempty"`
	FirstSeen    string   `json:"first_seen,omitempty"`
	Intent       string   `json:"intent,omitempty"`

	JourneyPhase string `json:"journey_phase,omitempty"`
	SearchIntent string `json:"search_intent,omitempty"`

	Rankings map[string]*Ranking `json:"rankings,omitempty"`
	Extra    map[string]string   `json:"extra,omitempty"`

	JourneyWeight      float64 `json:"journey_weight,omitempty"`
	IntentWeight       float64 `json:"intent_weight,omitempty"`
	BusinessValue      float64 `json:"business_value,omitempty"`
	CompetitorsRanking int     `json:"competitors_ranking,omitempty"`
	OpportunityGap     int     `json:"opportunity_gap,omitempty"`
	OpportunityScore   float64 `json:"opportunity_score,omitempty"`
}

// Ranking returns the ranking record for slug, or nil.
func (r *KeywordRow) Ranking(slug string) *Ranking {
	if r.Rankings == nil {
		return nil
	}
	return r.Rankings[slug]
}

// RankPosition returns the position recorded for slug, or nil.
func (r *KeywordRow) RankPosition(slug string) *int {
	if rk := r.Ranking(slug); rk != nil {
		return rk.Position
	}
	return nil
}

// SetRanking installs a ranking record for slug.
func (r *KeywordRow) SetRanking(slug string, rk *Ranking) {
	if r.Rankings == nil {
		r.Rankings = make(map[string]*Ranking)
	}
	r.Rankings[slug] = rk
}

// Clone returns a deep copy of the row.
func (r *KeywordRow) Clone() *KeywordRow {
	c := *r
	c.SearchVolume = cloneFloat(r.SearchVolume)
	c.CPC = cloneFloat(r.CPC)
	c.Difficulty = cloneFloat(r.Difficulty)
	c.Traffic = cloneFloat(r.Traffic)
	c.TrafficCost = cloneFloat(r.TrafficCost)
	c.Position = cloneInt(r.Position)
	if r.Rankings != nil {
		c.Rankings = make(map[string]*Ranking, len(r.Rankings))
		for k, v := range r.Rankings {
			rk := *v
			rk.Position = cloneInt(v.Position)
			rk.Traffic = cloneFloat(v.Traffic)
			rk.TrafficCost = cloneFloat(v.TrafficCost)
			c.Rankings[k] = &rk
		}
	}
	if r.Extra != nil {
		c.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Number returns the numeric value of a standard or derived column.
// Text columns and missing values yield nil.
func (r *KeywordRow) Number(col string) *float64 {
	switch col {
	case ColSearchVolume:
		return r.SearchVolume
	case ColCPC:
		return r.CPC
	case ColDifficulty:
		return r.Difficulty
	case ColPosition:
		return intToFloat(r.Position)
	case ColTraffic:
		return r.Traffic
	case ColTrafficCost:
		return r.TrafficCost
	case ColJourneyWeight:
		return Float(r.JourneyWeight)
	case ColIntentWeight:
		return Float(r.IntentWeight)
	case ColBusinessValue:
		return Float(r.BusinessValue)
	case ColCompetitorsRanking:
		return Float(float64(r.CompetitorsRanking))
	case ColOpportunityGap:
		return Float(float64(r.OpportunityGap))
	case ColOpportunityScore:
		return Float(r.OpportunityScore)
	}
	return nil
}

// Value renders a standard or derived column as text. Missing values
// render as the empty string.
func (r *KeywordRow) Value(col string) string {
	switch col {
	case ColKeyword:
		return r.Keyword
	case ColURL:
		return r.URL
	case ColSERPFeatures:
		return r.SERPFeatures
	case ColFirstSeen:
		return r.FirstSeen
	case ColIntent:
		return r.Intent
	case ColJourneyPhase:
		return r.JourneyPhase
	case ColSearchIntent:
		return r.SearchIntent
	case ColPosition:
		return FormatInt(r.Position)
	case ColCompetitorsRanking:
		return strconv.Itoa(r.CompetitorsRanking)
	case ColOpportunityGap:
		return strconv.Itoa(r.OpportunityGap)
	}
	if n := r.Number(col); n != nil {
		return FormatFloat(n)
	}
	return r.Extra[col]
}

// SetValue parses raw into a standard column. Malformed numbers are stored
// as missing. Unknown columns go to Extra.
func (r *KeywordRow) SetValue(col, raw string) {
	raw = strings.TrimSpace(raw)
	switch col {
	case ColKeyword:
		r.Keyword = raw
	case ColSearchVolume:
		r.SearchVolume = ParseFloat(raw)
	case ColCPC:
		r.CPC = ParseFloat(raw)
	case ColDifficulty:
		r.Difficulty = ParseFloat(raw)
	case ColPosition:
		r.Position = ParseInt(raw)
	case ColURL:
		r.URL = raw
	case ColTraffic:
		r.Traffic = ParseFloat(raw)
	case ColTrafficCost:
		r.TrafficCost = ParseFloat(raw)
	case ColSERPFeatures:
		r.SERPFeatures = raw
	case ColFirstSeen:
		r.FirstSeen = raw
	case ColIntent:
		r.Intent = raw
	case ColJourneyPhase:
		r.JourneyPhase = raw
	case ColSearchIntent:
		r.SearchIntent = raw
	case ColJourneyWeight:
		r.JourneyWeight = deref(ParseFloat(raw))
	case ColIntentWeight:
		r.IntentWeight = deref(ParseFloat(raw))
	case ColBusinessValue:
		r.BusinessValue = deref(ParseFloat(raw))
	case ColCompetitorsRanking:
		r.CompetitorsRanking = int(deref(ParseFloat(raw)))
	case ColOpportunityGap:
		r.OpportunityGap = int(deref(ParseFloat(raw)))
	case ColOpportunityScore:
		r.OpportunityScore = deref(ParseFloat(raw))
	default:
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		r.Extra[col] = raw
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// ParseFloat parses a spreadsheet number, tolerating thousands separators,
// currency signs and percent suffixes. Anything else yields nil.
func ParseFloat(raw string) *float64 {
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer(",", "", "$", "", "%", "").Replace(s)
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "n/a") || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ParseInt parses a rank position. Fractional ranks are truncated and
// values outside the int range are treated as missing.
func ParseInt(raw string) *int {
	f := ParseFloat(raw)
	if f == nil || *f >= math.MaxInt64 || *f < math.MinInt64 {
		return nil
	}
	v := int(*f)
	return &v
}

// FormatFloat renders v without trailing zeros. Nil renders empty.
func FormatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// FormatInt renders v. Nil renders empty.
func FormatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func intToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
