// Package subset derives named read-only views from a scored universe.
// Every view is computed independently from the universe; a view whose
// required columns are missing is omitted.
package subset

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/keyword-cli/internal/model"
)

// View names.
const (
	TopOpportunities         = "top_opportunities"
	HighValue                = "high_value"
	JourneyBreakdown         = "journey_breakdown"
	BrandAnalysis            = "brand_analysis"
	BusinessInsights         = "business_insights"
	LowHangingFruit          = "low_hanging_fruit"
	HighVolumeLowCompetition = "high_volume_low_competition"
	NewlyDiscovered          = "newly_discovered"
	SERPFeaturesSummary      = "serp_features_summary"
)

// Options holds the selection thresholds.
type Options struct {
	TopN              int     `yaml:"top_n" mapstructure:"top_n"`
	HighValueQuantile float64 `yaml:"high_value_quantile" mapstructure:"high_value_quantile"`
	LowHangingMin     int     `yaml:"low_hanging_min" mapstructure:"low_hanging_min"`
	LowHangingMax     int     `yaml:"low_hanging_max" mapstructure:"low_hanging_max"`
	MaxDifficulty     float64 `yaml:"max_difficulty" mapstructure:"max_difficulty"`
	MinVolume         float64 `yaml:"min_volume" mapstructure:"min_volume"`
	NewlyDays         int     `yaml:"newly_days" mapstructure:"newly_days"`
	InsightTop        int     `yaml:"insight_top" mapstructure:"insight_top"`
	InsightPhases     int     `yaml:"insight_phases" mapstructure:"insight_phases"`
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		TopN:              200,
		HighValueQuantile: 0.75,
		LowHangingMin:     4,
		LowHangingMax:     15,
		MaxDifficulty:     10,
		MinVolume:         500,
		NewlyDays:         90,
		InsightTop:        5,
		InsightPhases:     3,
	}
}

// Generator produces views. Now is injectable so date windows are testable.
type Generator struct {
	opts Options
	now  func() time.Time
}

// NewGenerator creates a Generator. A nil now uses time.Now.
func NewGenerator(opts Options, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{opts: opts, now: now}
}

// Result is the ordered set of produced views.
type Result struct {
	Views []model.View `json:"views"`
	Log   model.Log    `json:"log"`
}

// Get returns the view with the given name.
func (r Result) Get(name string) (model.View, bool) {
	for _, v := range r.Views {
		if v.Name == name {
			return v, true
		}
	}
	return model.View{}, false
}

// Generate builds every applicable view.
func (g *Generator) Generate(t *model.Table) Result {
	var res Result
	add := func(v model.View, ok bool) {
		if !ok {
			return
		}
		res.Views = append(res.Views, v)
		res.Log.Infof("Created %s subset: %d rows", v.Name, v.Len())
	}

	add(g.view(TopOpportunities, g.TopOpportunities, t))
	add(g.view(HighValue, g.HighValue, t))
	add(g.sheet(JourneyBreakdown, g.JourneyBreakdown, t))
	add(g.sheet(BrandAnalysis, g.BrandAnalysis, t))
	add(g.sheet(BusinessInsights, g.BusinessInsights, t))
	add(nonEmpty(g.view(LowHangingFruit, g.LowHangingFruit, t)))
	add(nonEmpty(g.view(HighVolumeLowCompetition, g.HighVolumeLowCompetition, t)))
	add(nonEmpty(g.view(NewlyDiscovered, g.NewlyDiscovered, t)))
	return res
}

func (g *Generator) view(name string, fn func(*model.Table) (*model.Table, bool), t *model.Table) (model.View, bool) {
	out, ok := fn(t)
	return model.View{Name: name, Table: out}, ok
}

func (g *Generator) sheet(name string, fn func(*model.Table) (*model.Sheet, bool), t *model.Table) (model.View, bool) {
	out, ok := fn(t)
	return model.View{Name: name, Sheet: out}, ok
}

func nonEmpty(v model.View, ok bool) (model.View, bool) {
	return v, ok && v.Len() > 0
}

// TopOpportunities returns the TopN rows by opportunity score. Ties keep
// universe order.
func (g *Generator) TopOpportunities(t *model.Table) (*model.Table, bool) {
	if !t.Has(model.ColOpportunityScore) {
		return nil, false
	}
	return t.WithRows(topByScore(t.Rows, g.opts.TopN)), true
}

func topByScore(rows []*model.KeywordRow, n int) []*model.KeywordRow {
	sorted := append([]*model.KeywordRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpportunityScore > sorted[j].OpportunityScore
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// HighValue returns rows whose business value is strictly above the
// configured quantile.
func (g *Generator) HighValue(t *model.Table) (*model.Table, bool) {
	if !t.Has(model.ColBusinessValue) {
		return nil, false
	}
	values := make([]float64, 0, t.Len())
	for _, r := range t.Rows {
		values = append(values, r.BusinessValue)
	}
	threshold := Quantile(values, g.opts.HighValueQuantile)
	return t.Filter(func(r *model.KeywordRow) bool { return r.BusinessValue > threshold }), true
}

// Quantile returns the q-th quantile of values using linear interpolation
// between closest ranks. An empty input yields NaN.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// LowHangingFruit returns rows where the owner ranks inside the configured
// band, best position first then highest volume.
func (g *Generator) LowHangingFruit(t *model.Table) (*model.Table, bool) {
	owner, ok := t.Owner()
	if !ok || !owner.HasField(model.ColPosition) {
		return nil, false
	}
	out := t.Filter(func(r *model.KeywordRow) bool {
		p := r.RankPosition(owner.Slug)
		return p != nil && *p >= g.opts.LowHangingMin && *p <= g.opts.LowHangingMax
	})
	byVolume := t.Has(model.ColSearchVolume)
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, b := *out.Rows[i].RankPosition(owner.Slug), *out.Rows[j].RankPosition(owner.Slug)
		if a != b {
			return a < b
		}
		return byVolume && volumeGreater(out.Rows[i], out.Rows[j])
	})
	return out, true
}

// HighVolumeLowCompetition returns easy, high-volume rows by volume.
func (g *Generator) HighVolumeLowCompetition(t *model.Table) (*model.Table, bool) {
	if !t.Has(model.ColDifficulty) || !t.Has(model.ColSearchVolume) {
		return nil, false
	}
	out := t.Filter(func(r *model.KeywordRow) bool {
		return r.Difficulty != nil && r.SearchVolume != nil &&
			*r.Difficulty <= g.opts.MaxDifficulty && *r.SearchVolume >= g.opts.MinVolume
	})
	sort.SliceStable(out.Rows, func(i, j int) bool { return volumeGreater(out.Rows[i], out.Rows[j]) })
	return out, true
}

// NewlyDiscovered returns rows first seen inside the recency window,
// newest first then highest volume. Unparseable dates are excluded.
func (g *Generator) NewlyDiscovered(t *model.Table) (*model.Table, bool) {
	if !t.Has(model.ColFirstSeen) {
		return nil, false
	}
	cutoff := g.now().AddDate(0, 0, -g.opts.NewlyDays)
	seen := make(map[*model.KeywordRow]time.Time)
	out := t.Filter(func(r *model.KeywordRow) bool {
		d, ok := ParseDate(r.FirstSeen)
		if !ok || d.Before(cutoff) {
			return false
		}
		seen[r] = d
		return true
	})
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, b := seen[out.Rows[i]], seen[out.Rows[j]]
		if !a.Equal(b) {
			return a.After(b)
		}
		return volumeGreater(out.Rows[i], out.Rows[j])
	})
	return out, true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseDate parses the date formats seen in keyword tool exports.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// volumeGreater orders by search volume descending with missing volumes last.
func volumeGreater(a, b *model.KeywordRow) bool {
	if a.SearchVolume == nil {
		return false
	}
	if b.SearchVolume == nil {
		return true
	}
	return *a.SearchVolume > *b.SearchVolume
}
