package subset

import (
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/keyword-cli/internal/model"
)

var printer = message.NewPrinter(language.English)

// PhaseTotals aggregates one journey phase.
type PhaseTotals struct {
	Phase        string  `json:"journey_phase"`
	KeywordCount int     `json:"keyword_count"`
	TotalVolume  float64 `json:"total_volume"`
	TotalValue   float64 `json:"total_value"`
}

// Phases groups classified rows by journey phase, sorted by phase name.
// Unclassified rows are left out.
func Phases(t *model.Table) []PhaseTotals {
	byPhase := make(map[string]*PhaseTotals)
	for _, r := range t.Rows {
		if r.JourneyPhase == "" {
			continue
		}
		p, ok := byPhase[r.JourneyPhase]
		if !ok {
			p = &PhaseTotals{Phase: r.JourneyPhase}
			byPhase[r.JourneyPhase] = p
		}
		p.KeywordCount++
		p.TotalVolume += orZero(r.SearchVolume)
		p.TotalValue += r.BusinessValue
	}
	out := make([]PhaseTotals, 0, len(byPhase))
	for _, p := range byPhase {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phase < out[j].Phase })
	return out
}

// JourneyBreakdown renders Phases as a sheet.
func (g *Generator) JourneyBreakdown(t *model.Table) (*model.Sheet, bool) {
	if !t.Has(model.ColJourneyPhase) {
		return nil, false
	}
	s := &model.Sheet{Header: []string{"journey_phase", "keyword_count", "total_volume", "total_value"}}
	for _, p := range Phases(t) {
		s.Rows = append(s.Rows, []string{
			p.Phase, strconv.Itoa(p.KeywordCount), formatNumber(p.TotalVolume), formatNumber(p.TotalValue),
		})
	}
	return s, true
}

// BrandAnalysis summarises each source that ranks for at least one keyword.
// The header is the union of every brand row's columns in first-seen order.
func (g *Generator) BrandAnalysis(t *model.Table) (*model.Sheet, bool) {
	sources := t.PositionSources()
	if len(sources) == 0 {
		return nil, false
	}

	var header []string
	has := make(map[string]bool)
	addCol := func(c string) {
		if !has[c] {
			has[c] = true
			header = append(header, c)
		}
	}

	var records []map[string]string
	for _, src := range sources {
		var rows []*model.KeywordRow
		for _, r := range t.Rows {
			if r.RankPosition(src.Slug) != nil {
				rows = append(rows, r)
			}
		}
		if len(rows) == 0 {
			continue
		}

		rec := make(map[string]string)
		set := func(c, v string) { addCol(c); rec[c] = v }

		var posSum float64
		for _, r := range rows {
			posSum += float64(*r.RankPosition(src.Slug))
		}
		set("Brand_Name", src.Slug)
		set("Total_Keywords_Ranking", strconv.Itoa(len(rows)))
		set("Avg_Position", formatNumber(posSum/float64(len(rows))))

		if src.HasField(model.ColTraffic) {
			var sum float64
			for _, r := range rows {
				sum += orZero(r.Ranking(src.Slug).Traffic)
			}
			set("Total_Traffic", formatNumber(sum))
		}
		if src.HasField(model.ColTrafficCost) {
			var sum float64
			for _, r := range rows {
				sum += orZero(r.Ranking(src.Slug).TrafficCost)
			}
			set("Total_Traffic_Cost", formatNumber(sum))
		}
		if t.Has(model.ColCPC) {
			var sum float64
			n := 0
			for _, r := range rows {
				if r.CPC != nil {
					sum += *r.CPC
					n++
				}
			}
			avg := ""
			if n > 0 {
				avg = formatNumber(sum / float64(n))
			}
			set("Avg_CPC", avg)
		}
		if t.Has(model.ColJourneyPhase) {
			for _, pc := range phaseCounts(rows) {
				set(pc.phase+"_count", strconv.Itoa(pc.count))
			}
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, false
	}

	s := &model.Sheet{Header: header}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, c := range header {
			row[i] = rec[c]
		}
		s.Rows = append(s.Rows, row)
	}
	return s, true
}

type phaseCount struct {
	phase string
	count int
}

// phaseCounts counts classified rows per phase, most frequent first.
func phaseCounts(rows []*model.KeywordRow) []phaseCount {
	idx := make(map[string]int)
	var out []phaseCount
	for _, r := range rows {
		if r.JourneyPhase == "" {
			continue
		}
		i, ok := idx[r.JourneyPhase]
		if !ok {
			i = len(out)
			idx[r.JourneyPhase] = i
			out = append(out, phaseCount{phase: r.JourneyPhase})
		}
		out[i].count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out
}

// Insight is one business-insights line.
type Insight struct {
	Category string `json:"category"`
	Metric   string `json:"metric"`
	Value    string `json:"value"`
	Impact   string `json:"business_impact"`
}

// Insights computes the business-insights lines for t.
func (g *Generator) Insights(t *model.Table) []Insight {
	out := []Insight{{
		Category: "Summary",
		Metric:   "Total_Keywords",
		Value:    printer.Sprintf("%d", t.Len()),
		Impact:   "Complete market coverage",
	}}

	if t.Has(model.ColJourneyPhase) {
		classified := 0
		for _, r := range t.Rows {
			if r.JourneyPhase != "" {
				classified++
			}
		}
		pct := 0.0
		if t.Len() > 0 {
			pct = float64(classified) / float64(t.Len()) * 100
		}
		out = append(out, Insight{
			Category: "Summary",
			Metric:   "Classified_Keywords",
			Value:    printer.Sprintf("%d", classified),
			Impact:   fmt.Sprintf("%.1f%% of keywords classified", pct),
		})
	}

	if t.Has(model.ColBusinessValue) {
		var total float64
		for _, r := range t.Rows {
			total += r.BusinessValue
		}
		out = append(out, Insight{
			Category: "Summary",
			Metric:   "Total_Business_Value",
			Value:    printer.Sprintf("$%.0f", total),
			Impact:   "Estimated monthly revenue opportunity",
		})
	}

	if t.Has(model.ColOpportunityScore) {
		for i, r := range topByScore(t.Rows, g.opts.InsightTop) {
			out = append(out, Insight{
				Category: "Top_Opportunities",
				Metric:   fmt.Sprintf("Opportunity_%02d", i+1),
				Value:    r.Keyword,
				Impact: fmt.Sprintf("$%.0f value, %s searches",
					r.BusinessValue, printer.Sprintf("%.0f", orZero(r.SearchVolume))),
			})
		}
	}

	if t.Has(model.ColJourneyPhase) && t.Has(model.ColBusinessValue) {
		phases := Phases(t)
		sort.SliceStable(phases, func(i, j int) bool { return phases[i].TotalValue > phases[j].TotalValue })
		if len(phases) > g.opts.InsightPhases {
			phases = phases[:g.opts.InsightPhases]
		}
		for _, p := range phases {
			out = append(out, Insight{
				Category: "Journey_Insights",
				Metric:   p.Phase + "_Phase",
				Value:    printer.Sprintf("$%.0f", p.TotalValue),
				Impact:   "Highest value journey phase",
			})
		}
	}
	return out
}

// BusinessInsights renders Insights as a sheet. It is always produced.
func (g *Generator) BusinessInsights(t *model.Table) (*model.Sheet, bool) {
	s := &model.Sheet{Header: []string{"Category", "Metric", "Value", "Business_Impact"}}
	for _, in := range g.Insights(t) {
		s.Rows = append(s.Rows, []string{in.Category, in.Metric, in.Value, in.Impact})
	}
	return s, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
