package subset

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/keyword-cli/internal/model"
)

// FeatureStat aggregates one SERP feature tag.
type FeatureStat struct {
	Feature     string  `json:"serp_feature"`
	Count       int     `json:"keyword_count"`
	TotalVolume float64 `json:"total_search_volume"`
	TotalValue  float64 `json:"total_business_value"`
}

// Features lists every distinct SERP feature tag in first-seen order.
func Features(t *model.Table) []FeatureStat {
	if !t.Has(model.ColSERPFeatures) {
		return nil
	}
	idx := make(map[string]int)
	var out []FeatureStat
	for _, r := range t.Rows {
		for _, f := range strings.Split(r.SERPFeatures, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			i, ok := idx[f]
			if !ok {
				i = len(out)
				idx[f] = i
				out = append(out, FeatureStat{Feature: f})
			}
			out[i].Count++
			out[i].TotalVolume += orZero(r.SearchVolume)
			out[i].TotalValue += r.BusinessValue
		}
	}
	return out
}

// FeatureSlug is the view name for a SERP feature.
func FeatureSlug(feature string) string {
	return strings.NewReplacer(" ", "_", "/", "_").Replace(strings.ToLower(feature))
}

// SERPSlices returns, per requested feature, the rows whose raw feature
// text contains it. Features with no rows are left out, as is everything
// when the universe has no serp_features column.
func (g *Generator) SERPSlices(t *model.Table, features []string) Result {
	var res Result
	if !t.Has(model.ColSERPFeatures) {
		return res
	}
	for _, f := range features {
		out := t.Filter(func(r *model.KeywordRow) bool {
			return r.SERPFeatures != "" && strings.Contains(r.SERPFeatures, f)
		})
		if out.Len() == 0 {
			continue
		}
		res.Views = append(res.Views, model.View{Name: FeatureSlug(f), Table: out})
		res.Log.Infof("Created %s file: %d keywords", f, out.Len())
	}

	if sum, ok := g.SERPSummary(t); ok {
		res.Views = append(res.Views, model.View{Name: SERPFeaturesSummary, Sheet: sum})
		res.Log.Infof("Created SERP features summary")
	}
	return res
}

// SERPSummary renders Features as a sheet, most common first.
func (g *Generator) SERPSummary(t *model.Table) (*model.Sheet, bool) {
	stats := Features(t)
	if len(stats) == 0 {
		return nil, false
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Count > stats[j].Count })
	s := &model.Sheet{Header: []string{"SERP_Feature", "Keyword_Count", "Total_Search_Volume", "Total_Business_Value"}}
	for _, st := range stats {
		s.Rows = append(s.Rows, []string{
			st.Feature, strconv.Itoa(st.Count), formatNumber(st.TotalVolume), formatNumber(st.TotalValue),
		})
	}
	return s, true
}
