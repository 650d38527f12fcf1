// Package universe merges cleaned source tables into a single
// row-per-keyword universe and joins classification results onto it.
package universe

import (
	"fmt"
	"slices"

	"github.com/sells-group/keyword-cli/internal/model"
)

// Report describes one merge.
type Report struct {
	Sources  int       `json:"sources"`
	Skipped  int       `json:"skipped"`
	Keywords int       `json:"keywords"`
	Dropped  int       `json:"dropped_duplicates"`
	Log      model.Log `json:"log"`
}

// Merge outer-joins each addition onto base by keyword. Ranking columns of
// an addition are namespaced under its slug; shared metrics are coalesced,
// preferring the value already in the universe. Neither input is modified.
func Merge(base *model.Table, additions ...model.SourceTable) (*model.Table, Report) {
	var rep Report
	if base == nil {
		base = model.NewTable()
	}

	u := base.Clone()
	u.AddColumn(model.ColKeyword)
	index := make(map[string]*model.KeywordRow, u.Len())
	for _, r := range u.Rows {
		if _, ok := index[r.Keyword]; !ok {
			index[r.Keyword] = r
		}
	}
	rep.Log.Infof("Loaded main keywords: %d", u.Len())

	for _, add := range additions {
		label := add.Name
		if label == "" {
			label = string(add.Role)
		}
		if add.Table == nil || !add.Table.Has(model.ColKeyword) {
			rep.Skipped++
			rep.Log.Warnf("%s missing 'keyword' column, skipping", label)
			continue
		}

		src := model.Source{
			Slug: uniqueSlug(u, Slug(add.Name)),
			Name: add.Name,
			Role: add.Role,
		}
		for _, f := range model.RankingFields {
			if add.Table.Has(f) {
				src.Fields = append(src.Fields, f)
			}
		}
		var shared []string
		for _, m := range model.SharedMetrics {
			if add.Table.Has(m) {
				shared = append(shared, m)
				u.AddColumn(m)
			}
		}

		mergeOne(u, index, add.Table, src, shared)
		u.Sources = append(u.Sources, src)
		rep.Sources++

		if src.HasField(model.ColPosition) {
			n := 0
			for _, r := range u.Rows {
				if r.RankPosition(src.Slug) != nil {
					n++
				}
			}
			rep.Log.Infof("Merged %s: %d keywords with %s_position", label, n, src.Slug)
		} else {
			rep.Log.Infof("Merged %s: no position column", label)
		}
	}

	out, dropped := Dedup(u)
	rep.Dropped = dropped
	rep.Keywords = out.Len()
	rep.Log.Infof("Universe built: %d keywords from %d sources", rep.Keywords, rep.Sources+1)
	return out, rep
}

func mergeOne(u *model.Table, index map[string]*model.KeywordRow, add *model.Table, src model.Source, shared []string) {
	seen := make(map[string]bool, add.Len())
	for _, ar := range add.Rows {
		if seen[ar.Keyword] {
			continue
		}
		seen[ar.Keyword] = true
		ar = ar.Clone()

		row, ok := index[ar.Keyword]
		if !ok {
			row = &model.KeywordRow{Keyword: ar.Keyword}
			index[ar.Keyword] = row
			u.Rows = append(u.Rows, row)
		}

		for _, m := range shared {
			coalesce(row, ar, m)
		}
		if len(src.Fields) > 0 {
			row.SetRanking(src.Slug, &model.Ranking{
				Position:    ar.Position,
				URL:         ar.URL,
				Traffic:     ar.Traffic,
				TrafficCost: ar.TrafficCost,
			})
		}
	}
}

func coalesce(dst, src *model.KeywordRow, metric string) {
	switch metric {
	case model.ColSearchVolume:
		if dst.SearchVolume == nil {
			dst.SearchVolume = src.SearchVolume
		}
	case model.ColCPC:
		if dst.CPC == nil {
			dst.CPC = src.CPC
		}
	case model.ColDifficulty:
		if dst.Difficulty == nil {
			dst.Difficulty = src.Difficulty
		}
	}
}

func uniqueSlug(u *model.Table, slug string) string {
	taken := func(s string) bool {
		return slices.ContainsFunc(u.Sources, func(src model.Source) bool { return src.Slug == s })
	}
	if !taken(slug) {
		return slug
	}
	for i := 2; ; i++ {
		if s := fmt.Sprintf("%s_%d", slug, i); !taken(s) {
			return s
		}
	}
}

// ApplyClassifications left-joins classification results onto the table by
// exact keyword text and returns how many rows received labels. Rows with
// no result keep null labels.
func ApplyClassifications(t *model.Table, results map[string]model.Classification) int {
	t.AddColumn(model.ColJourneyPhase)
	t.AddColumn(model.ColSearchIntent)
	n := 0
	for _, r := range t.Rows {
		c, ok := results[r.Keyword]
		if !ok {
			continue
		}
		r.JourneyPhase = c.JourneyPhase
		r.SearchIntent = c.SearchIntent
		n++
	}
	return n
}

// Stats summarises a universe.
type Stats struct {
	TotalKeywords      int            `json:"total_keywords"`
	ClassifiedKeywords int            `json:"classified_keywords"`
	OwnerRanking       int            `json:"owner_ranking"`
	SourceCoverage     map[string]int `json:"source_coverage"`
	TotalSearchVolume  float64        `json:"total_search_volume"`
	TotalBusinessValue float64        `json:"total_business_value"`
	OpportunityGaps    int            `json:"opportunity_gaps"`
}

// Summarize computes Stats for t.
func Summarize(t *model.Table) Stats {
	s := Stats{TotalKeywords: t.Len(), SourceCoverage: make(map[string]int)}
	owner, hasOwner := t.Owner()
	for _, r := range t.Rows {
		if r.JourneyPhase != "" {
			s.ClassifiedKeywords++
		}
		if r.SearchVolume != nil {
			s.TotalSearchVolume += *r.SearchVolume
		}
		s.TotalBusinessValue += r.BusinessValue
		s.OpportunityGaps += r.OpportunityGap
		if hasOwner && r.RankPosition(owner.Slug) != nil {
			s.OwnerRanking++
		}
		for _, src := range t.Sources {
			if r.RankPosition(src.Slug) != nil {
				s.SourceCoverage[src.Slug]++
			}
		}
	}
	return s
}
