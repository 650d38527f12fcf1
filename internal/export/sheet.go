// Package export renders keyword tables and views to CSV files, zip
// bundles and xlsx workbooks, and reads exported universes back.
package export

import (
	"github.com/sells-group/keyword-cli/internal/model"
)

// TableSheet renders a table with its named columns first, then one
// {slug}_{field} column per ranking field each source provided, then extras.
func TableSheet(t *model.Table) *model.Sheet {
	header := make([]string, 0, len(t.Columns)+len(t.Extras)+4*len(t.Sources))
	header = append(header, t.Columns...)
	for _, s := range t.Sources {
		for _, f := range model.RankingFields {
			if s.HasField(f) {
				header = append(header, RankingColumn(s.Slug, f))
			}
		}
	}
	header = append(header, t.Extras...)

	rows := make([][]string, 0, t.Len())
	for _, r := range t.Rows {
		rec := make([]string, 0, len(header))
		for _, c := range t.Columns {
			rec = append(rec, r.Value(c))
		}
		for _, s := range t.Sources {
			rk := r.Ranking(s.Slug)
			for _, f := range model.RankingFields {
				if s.HasField(f) {
					rec = append(rec, rankingValue(rk, f))
				}
			}
		}
		for _, e := range t.Extras {
			rec = append(rec, r.Extra[e])
		}
		rows = append(rows, rec)
	}
	return &model.Sheet{Header: header, Rows: rows}
}

// ViewSheet returns the rendered form of a view.
func ViewSheet(v model.View) *model.Sheet {
	if v.Sheet != nil {
		return v.Sheet
	}
	if v.Table != nil {
		return TableSheet(v.Table)
	}
	return &model.Sheet{}
}

// RankingColumn names a per-source ranking column.
func RankingColumn(slug, field string) string {
	return slug + "_" + field
}

func rankingValue(rk *model.Ranking, field string) string {
	if rk == nil {
		return ""
	}
	switch field {
	case model.ColPosition:
		return model.FormatInt(rk.Position)
	case model.ColURL:
		return rk.URL
	case model.ColTraffic:
		return model.FormatFloat(rk.Traffic)
	case model.ColTrafficCost:
		return model.FormatFloat(rk.TrafficCost)
	}
	return ""
}

func setRanking(r *model.KeywordRow, slug, field, raw string) {
	rk := r.Ranking(slug)
	if rk == nil {
		rk = &model.Ranking{}
	}
	switch field {
	case model.ColPosition:
		rk.Position = model.ParseInt(raw)
	case model.ColURL:
		rk.URL = raw
	case model.ColTraffic:
		rk.Traffic = model.ParseFloat(raw)
	case model.ColTrafficCost:
		rk.TrafficCost = model.ParseFloat(raw)
	}
	if *rk != (model.Ranking{}) {
		r.SetRanking(slug, rk)
	}
}
