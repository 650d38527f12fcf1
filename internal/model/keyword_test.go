package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want *float64
	}{
		{"1,200", Float(1200)},
		{"$2.50", Float(2.5)},
		{"45%", Float(45)},
		{" 7 ", Float(7)},
		{"", nil},
		{"n/a", nil},
		{"-", nil},
		{"lots", nil},
		{"NaN", nil},
		{"nan", nil},
		{"inf", nil},
		{"-Infinity", nil},
		{"1e400", nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got := ParseFloat(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestParseInt_Truncates(t *testing.T) {
	t.Parallel()
	got := ParseInt("4.0")
	require.NotNil(t, got)
	assert.Equal(t, 4, *got)
	assert.Nil(t, ParseInt("top"))
	assert.Nil(t, ParseInt("nan"))
	assert.Nil(t, ParseInt("1e30"))
}

func TestKeywordRow_SetValueNonFinite(t *testing.T) {
	t.Parallel()

	r := &KeywordRow{}
	r.SetValue(ColSearchVolume, "NaN")
	r.SetValue(ColCPC, "inf")
	r.SetValue(ColPosition, "nan")

	assert.Nil(t, r.SearchVolume)
	assert.Nil(t, r.CPC)
	assert.Nil(t, r.Position)
}

func TestKeywordRow_SetValueAndValue(t *testing.T) {
	t.Parallel()

	r := &KeywordRow{}
	r.SetValue(ColKeyword, "  car insurance ")
	r.SetValue(ColSearchVolume, "1,000")
	r.SetValue(ColCPC, "abc")
	r.SetValue(ColPosition, "3")
	r.SetValue("landing_page", "/quotes")

	assert.Equal(t, "car insurance", r.Keyword)
	assert.Equal(t, "1000", r.Value(ColSearchVolume))
	assert.Nil(t, r.CPC)
	assert.Equal(t, "", r.Value(ColCPC))
	assert.Equal(t, "3", r.Value(ColPosition))
	assert.Equal(t, "/quotes", r.Value("landing_page"))
}

func TestKeywordRow_Clone(t *testing.T) {
	t.Parallel()

	r := &KeywordRow{Keyword: "k", CPC: Float(1)}
	r.SetRanking("acme", &Ranking{Position: Int(2)})

	c := r.Clone()
	*c.CPC = 9
	*c.Rankings["acme"].Position = 7

	assert.Equal(t, 1.0, *r.CPC)
	assert.Equal(t, 2, *r.RankPosition("acme"))
	assert.Nil(t, r.RankPosition("other"))
}

func TestTable_Sources(t *testing.T) {
	t.Parallel()

	tbl := NewTable(ColCPC)
	tbl.Sources = []Source{
		{Slug: "acme", Role: RoleRankings, Fields: []string{ColPosition}},
		{Slug: "rival", Role: RoleCompetitor, Fields: []string{ColPosition, ColURL}},
		{Slug: "nopos", Role: RoleCompetitor, Fields: []string{ColURL}},
	}

	owner, ok := tbl.Owner()
	require.True(t, ok)
	assert.Equal(t, "acme", owner.Slug)
	assert.Len(t, tbl.Competitors(), 2)
	assert.Len(t, tbl.PositionSources(), 2)
	assert.True(t, tbl.Has(ColKeyword))
	assert.False(t, tbl.Has(ColDifficulty))
}

func TestTable_FilterSharesSchema(t *testing.T) {
	t.Parallel()

	tbl := NewTable(ColCPC)
	tbl.AddExtra("notes")
	tbl.Rows = []*KeywordRow{{Keyword: "a"}, {Keyword: "b"}}

	out := tbl.Filter(func(r *KeywordRow) bool { return r.Keyword == "b" })
	assert.Equal(t, []string{"b"}, out.Keywords())
	assert.Equal(t, tbl.Columns, out.Columns)
	assert.Equal(t, []string{"notes"}, out.Extras)
}
