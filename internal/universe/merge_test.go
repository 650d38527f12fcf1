package universe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/keyword-cli/internal/model"
)

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"Acme Insurance", "acme_insurance"},
		{"  Tower  ", "tower"},
		{"A/B Cover", "a_b_cover"},
		{"", "brand"},
		{"***", "brand"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Slug(tt.in))
		})
	}
}

func TestSourceName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "acme", SourceName("www_acme.co.nz-organic_2024-03-01_10-22-31.csv"))
	assert.Equal(t, "tower", SourceName("/tmp/https_tower-positions.csv"))
	assert.Equal(t, "rival", SourceName("www.rival.com.csv"))
	assert.Equal(t, "cove", SourceName("cove.xlsx"))
}

func TestMerge_CoalesceSharedMetrics(t *testing.T) {
	t.Parallel()

	base := model.NewTable(model.ColCPC)
	base.Rows = []*model.KeywordRow{
		{Keyword: "both", CPC: model.Float(2.5)},
		{Keyword: "base-null", CPC: nil},
		{Keyword: "all-null"},
	}
	add := model.NewTable(model.ColCPC, model.ColPosition)
	add.Rows = []*model.KeywordRow{
		{Keyword: "both", CPC: nil, Position: model.Int(3)},
		{Keyword: "base-null", CPC: model.Float(3.0)},
		{Keyword: "all-null"},
	}

	u, rep := Merge(base, model.SourceTable{Name: "Rival", Role: model.RoleCompetitor, Table: add})
	require.Equal(t, 3, u.Len())
	assert.Equal(t, 1, rep.Sources)

	byKw := index(u)
	assert.Equal(t, 2.5, *byKw["both"].CPC)
	assert.Equal(t, 3.0, *byKw["base-null"].CPC)
	assert.Nil(t, byKw["all-null"].CPC)
	assert.Equal(t, 3, *byKw["both"].RankPosition("rival"))
	assert.Nil(t, byKw["base-null"].RankPosition("rival"))

	// inputs are untouched
	assert.Nil(t, base.Rows[1].CPC)
	assert.Empty(t, base.Sources)
}

func TestMerge_Scenario(t *testing.T) {
	t.Parallel()

	base := model.NewTable(model.ColCPC)
	base.Rows = []*model.KeywordRow{{Keyword: "k1", CPC: model.Float(1.0)}}
	add := model.NewTable(model.ColCPC, model.ColPosition)
	add.Rows = []*model.KeywordRow{{Keyword: "k1", Position: model.Int(5)}}

	u, _ := Merge(base, model.SourceTable{Name: "addition", Role: model.RoleCompetitor, Table: add})
	require.Equal(t, 1, u.Len())
	assert.Equal(t, 1.0, *u.Rows[0].CPC)
	assert.Equal(t, 5, *u.Rows[0].RankPosition("addition"))
	src, ok := u.Source("addition")
	require.True(t, ok)
	assert.Equal(t, []string{model.ColPosition}, src.Fields)
}

func TestMerge_OuterJoinAddsNewKeywords(t *testing.T) {
	t.Parallel()

	base := model.NewTable(model.ColSearchVolume)
	base.Rows = []*model.KeywordRow{{Keyword: "a", SearchVolume: model.Float(10)}}
	owner := model.NewTable(model.ColPosition, model.ColURL, model.ColDifficulty)
	owner.Rows = []*model.KeywordRow{{Keyword: "b", Position: model.Int(2), URL: "/b", Difficulty: model.Float(30)}}
	comp := model.NewTable(model.ColPosition)
	comp.Rows = []*model.KeywordRow{{Keyword: "c", Position: model.Int(1)}, {Keyword: "a", Position: model.Int(7)}}

	u, _ := Merge(base,
		model.SourceTable{Name: "Acme Co", Role: model.RoleRankings, Table: owner},
		model.SourceTable{Name: "Rival", Role: model.RoleCompetitor, Table: comp},
	)

	assert.Equal(t, []string{"a", "b", "c"}, u.Keywords())
	assert.True(t, u.Has(model.ColDifficulty))
	byKw := index(u)
	assert.Equal(t, "/b", byKw["b"].Ranking("acme_co").URL)
	assert.Equal(t, 30.0, *byKw["b"].Difficulty)
	assert.Equal(t, 7, *byKw["a"].RankPosition("rival"))
	assert.Nil(t, byKw["c"].RankPosition("acme_co"))

	ownerSrc, ok := u.Owner()
	require.True(t, ok)
	assert.Equal(t, "acme_co", ownerSrc.Slug)
}

func TestMerge_SkipsAdditionWithoutKeyword(t *testing.T) {
	t.Parallel()

	base := model.NewTable()
	base.Rows = []*model.KeywordRow{{Keyword: "a"}}
	bad := &model.Table{Columns: []string{model.ColPosition}}

	u, rep := Merge(base, model.SourceTable{Name: "broken", Role: model.RoleCompetitor, Table: bad})
	assert.Equal(t, 1, u.Len())
	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, u.Sources)
	assert.Contains(t, rep.Log.Lines[1], "broken missing 'keyword' column")
}

func TestMerge_DuplicateSlugsGetSuffix(t *testing.T) {
	t.Parallel()

	mk := func() *model.Table {
		tbl := model.NewTable(model.ColPosition)
		tbl.Rows = []*model.KeywordRow{{Keyword: "a", Position: model.Int(1)}}
		return tbl
	}
	u, _ := Merge(model.NewTable(),
		model.SourceTable{Name: "Rival", Role: model.RoleCompetitor, Table: mk()},
		model.SourceTable{Name: "rival", Role: model.RoleCompetitor, Table: mk()},
	)
	require.Len(t, u.Sources, 2)
	assert.Equal(t, "rival", u.Sources[0].Slug)
	assert.Equal(t, "rival_2", u.Sources[1].Slug)
}

func TestMerge_DedupInvariant(t *testing.T) {
	t.Parallel()

	base := model.NewTable()
	for i := 0; i < 20; i++ {
		base.Rows = append(base.Rows, &model.KeywordRow{Keyword: fmt.Sprintf("kw%d", i%7)})
	}
	add := model.NewTable(model.ColPosition)
	for i := 0; i < 15; i++ {
		add.Rows = append(add.Rows, &model.KeywordRow{Keyword: fmt.Sprintf("kw%d", i%11), Position: model.Int(i + 1)})
	}

	u, rep := Merge(base, model.SourceTable{Name: "r", Role: model.RoleCompetitor, Table: add})
	assert.Len(t, index(u), u.Len())
	assert.Equal(t, 11, u.Len())
	assert.Equal(t, 13, rep.Dropped)
	// first occurrence wins within an addition
	assert.Equal(t, 1, *index(u)["kw0"].RankPosition("r"))
}

func TestMerge_EmptyBase(t *testing.T) {
	t.Parallel()

	u, rep := Merge(nil)
	assert.Equal(t, 0, u.Len())
	assert.Equal(t, []string{model.ColKeyword}, u.Columns)
	assert.Equal(t, 0, rep.Keywords)
}

func TestBestPositions(t *testing.T) {
	t.Parallel()

	tbl := model.NewTable(model.ColPosition)
	tbl.Rows = []*model.KeywordRow{
		{Keyword: "a", Position: model.Int(9)},
		{Keyword: "a", Position: model.Int(2)},
		{Keyword: "b"},
		{Keyword: "b", Position: model.Int(5)},
	}

	out := BestPositions(tbl)
	require.Equal(t, 2, out.Len())
	byKw := index(out)
	assert.Equal(t, 2, *byKw["a"].Position)
	assert.Equal(t, 5, *byKw["b"].Position)
}

func TestApplyClassifications(t *testing.T) {
	t.Parallel()

	tbl := model.NewTable()
	tbl.Rows = []*model.KeywordRow{{Keyword: "Car Insurance"}, {Keyword: "car insurance"}}

	n := ApplyClassifications(tbl, map[string]model.Classification{
		"car insurance": {JourneyPhase: "COMPARISON", SearchIntent: "COMMERCIAL"},
	})
	assert.Equal(t, 1, n)
	assert.Empty(t, tbl.Rows[0].JourneyPhase)
	assert.Equal(t, "COMPARISON", tbl.Rows[1].JourneyPhase)
	assert.True(t, tbl.Has(model.ColJourneyPhase))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	tbl := model.NewTable(model.ColSearchVolume)
	tbl.Sources = []model.Source{
		{Slug: "acme", Role: model.RoleRankings, Fields: []string{model.ColPosition}},
		{Slug: "rival", Role: model.RoleCompetitor, Fields: []string{model.ColPosition}},
	}
	a := &model.KeywordRow{Keyword: "a", SearchVolume: model.Float(100), JourneyPhase: "AWARE", BusinessValue: 12}
	a.SetRanking("acme", &model.Ranking{Position: model.Int(1)})
	b := &model.KeywordRow{Keyword: "b", OpportunityGap: 1}
	b.SetRanking("rival", &model.Ranking{Position: model.Int(3)})
	tbl.Rows = []*model.KeywordRow{a, b}

	s := Summarize(tbl)
	assert.Equal(t, 2, s.TotalKeywords)
	assert.Equal(t, 1, s.ClassifiedKeywords)
	assert.Equal(t, 1, s.OwnerRanking)
	assert.Equal(t, map[string]int{"acme": 1, "rival": 1}, s.SourceCoverage)
	assert.Equal(t, 100.0, s.TotalSearchVolume)
	assert.Equal(t, 12.0, s.TotalBusinessValue)
	assert.Equal(t, 1, s.OpportunityGaps)
}

func index(t *model.Table) map[string]*model.KeywordRow {
	out := make(map[string]*model.KeywordRow, t.Len())
	for _, r := range t.Rows {
		out[r.Keyword] = r
	}
	return out
}
