package export

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/keyword-cli/internal/model"
)

func universe() *model.Table {
	t := model.NewTable(model.ColSearchVolume, model.ColCPC, model.ColJourneyPhase, model.ColBusinessValue)
	t.Sources = []model.Source{
		{Slug: "acme", Name: "acme", Role: model.RoleRankings, Fields: []string{model.ColPosition, model.ColURL}},
		{Slug: "rival", Name: "rival", Role: model.RoleCompetitor, Fields: []string{model.ColPosition, model.ColTraffic}},
	}
	t.AddExtra("Notes")

	a := &model.KeywordRow{Keyword: "car insurance, cheap", SearchVolume: model.Float(1200), CPC: model.Float(2.5), JourneyPhase: "Consideration", BusinessValue: 6.25, Extra: map[string]string{"Notes": "x"}}
	a.SetRanking("acme", &model.Ranking{Position: model.Int(3), URL: "https://acme.test/car"})
	a.SetRanking("rival", &model.Ranking{Position: model.Int(1), Traffic: model.Float(40.5)})

	b := &model.KeywordRow{Keyword: "2024"}
	t.Rows = []*model.KeywordRow{a, b}
	return t
}

func TestTableSheet(t *testing.T) {
	t.Parallel()

	s := TableSheet(universe())
	assert.Equal(t, []string{
		"keyword", "search_volume", "cpc", "journey_phase", "business_value",
		"acme_position", "acme_url", "rival_position", "rival_traffic", "Notes",
	}, s.Header)
	assert.Equal(t, []string{
		"car insurance, cheap", "1200", "2.5", "Consideration", "6.25",
		"3", "https://acme.test/car", "1", "40.5", "x",
	}, s.Rows[0])
	assert.Equal(t, []string{"2024", "", "", "", "0", "", "", "", "", ""}, s.Rows[1])
}

func TestWriteCSV_Quotes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, &model.Sheet{
		Header: []string{"keyword", "n"},
		Rows:   [][]string{{`say "hi", there`, "1"}},
	}))
	assert.Equal(t, "keyword,n\n\"say \"\"hi\"\", there\",1\n", buf.String())
}

func TestReadUniverseCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, TableSheet(universe())))

	got, err := ReadUniverseCSV(&buf, "acme")
	require.NoError(t, err)

	assert.Equal(t, []string{"keyword", "search_volume", "cpc", "journey_phase", "business_value"}, got.Columns)
	assert.Equal(t, []string{"Notes"}, got.Extras)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, model.RoleRankings, got.Sources[0].Role)
	assert.Equal(t, []string{model.ColPosition, model.ColURL}, got.Sources[0].Fields)
	assert.Equal(t, model.RoleCompetitor, got.Sources[1].Role)

	require.Equal(t, 2, got.Len())
	a := got.Rows[0]
	assert.Equal(t, "car insurance, cheap", a.Keyword)
	assert.Equal(t, 1200.0, *a.SearchVolume)
	assert.Equal(t, 6.25, a.BusinessValue)
	assert.Equal(t, 3, *a.RankPosition("acme"))
	assert.Equal(t, "https://acme.test/car", a.Ranking("acme").URL)
	assert.Equal(t, 40.5, *a.Ranking("rival").Traffic)
	assert.Equal(t, "x", a.Extra["Notes"])

	b := got.Rows[1]
	assert.Nil(t, b.Ranking("acme"))
	assert.Nil(t, b.SearchVolume)
}

func TestReadUniverseCSV_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadUniverseCSV(strings.NewReader(""), "")
	require.Error(t, err)

	_, err = ReadUniverseCSV(strings.NewReader("term,volume\na,1\n"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no keyword column")
}

func TestReadUniverseCSV_BOMAndEmptyKeyword(t *testing.T) {
	t.Parallel()

	got, err := ReadUniverseCSV(strings.NewReader("\ufeffkeyword,cpc\na,1\n,2\n"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Keywords())
}

func views() []model.View {
	return []model.View{
		{Name: "top_opportunities", Table: universe()},
		{Name: "journey_breakdown", Sheet: &model.Sheet{
			Header: []string{"journey_phase", "keyword_count"},
			Rows:   [][]string{{"Consideration", "1"}},
		}},
	}
}

func TestWriteDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteDir(dir, views())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	data, err := os.ReadFile(filepath.Join(dir, "journey_breakdown.csv"))
	require.NoError(t, err)
	assert.Equal(t, "journey_phase,keyword_count\nConsideration,1\n", string(data))
}

func TestWriteZip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteZip(&buf, views(), time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "top_opportunities.csv", zr.File[0].Name)
	assert.Equal(t, "journey_breakdown.csv", zr.File[1].Name)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Consideration,1")
}

func TestSaveWorkbook(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "universe.xlsx")
	require.NoError(t, SaveWorkbook(path, views()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	top := f.Sheet["top_opportunities"]
	require.NotNil(t, top)
	assert.Equal(t, "keyword", top.Rows[0].Cells[0].String())
	assert.Equal(t, "2024", top.Rows[2].Cells[0].String())
	assert.Equal(t, xlsx.CellTypeString, top.Rows[2].Cells[0].Type())
	assert.Equal(t, xlsx.CellTypeNumeric, top.Rows[1].Cells[1].Type())
}

func TestWorkbook_NonFiniteTextStaysString(t *testing.T) {
	t.Parallel()

	f, err := Workbook([]model.View{{Name: "notes", Sheet: &model.Sheet{
		Header: []string{"Metric", "Value"},
		Rows:   [][]string{{"a", "NaN"}, {"b", "inf"}, {"c", "12"}},
	}}})
	require.NoError(t, err)

	sh := f.Sheet["notes"]
	require.NotNil(t, sh)
	assert.Equal(t, xlsx.CellTypeString, sh.Rows[1].Cells[1].Type())
	assert.Equal(t, xlsx.CellTypeString, sh.Rows[2].Cells[1].Type())
	assert.Equal(t, xlsx.CellTypeNumeric, sh.Rows[3].Cells[1].Type())
}

func TestSheetName(t *testing.T) {
	t.Parallel()

	used := map[string]bool{}
	long := strings.Repeat("x", 40)
	assert.Equal(t, strings.Repeat("x", 31), sheetName(long, used))
	assert.Equal(t, strings.Repeat("x", 29)+"_2", sheetName(long, used))
	assert.Equal(t, "sheet", sheetName("", used))
}
