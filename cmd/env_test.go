package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/model"
)

func TestParseMappings(t *testing.T) {
	tests := []struct {
		name    string
		flags   []string
		want    map[string]map[string]string
		wantErr bool
	}{
		{name: "empty", flags: nil, want: nil},
		{
			name:  "file and role",
			flags: []string{"main.csv:keyword=Phrase", "main.csv:search_volume = Vol", "rankings:position=Rank"},
			want: map[string]map[string]string{
				"main.csv": {"keyword": "Phrase", "search_volume": "Vol"},
				"rankings": {"position": "Rank"},
			},
		},
		{name: "missing file", flags: []string{"keyword=Phrase"}, wantErr: true},
		{name: "missing header", flags: []string{"main.csv:keyword="}, wantErr: true},
		{name: "missing column", flags: []string{"main.csv:=Phrase"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMappings(tt.flags)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testViews() []model.View {
	t := model.NewTable(model.ColSearchVolume)
	t.Rows = []*model.KeywordRow{{Keyword: "car insurance", SearchVolume: model.Float(100)}}
	return []model.View{
		{Name: "universe", Table: t},
		{Name: "top_opportunities", Table: t},
	}
}

func TestWriteViews(t *testing.T) {
	modified := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("csv", func(t *testing.T) {
		dir := t.TempDir()
		files, err := writeViews(dir, config.FormatCSV, "bundle", testViews(), modified)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "universe.csv"), filepath.Join(dir, "top_opportunities.csv")}, files)
		data, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), "car insurance")
	})

	t.Run("zip", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested")
		files, err := writeViews(dir, config.FormatZip, "bundle", testViews(), modified)
		require.NoError(t, err)
		require.Len(t, files, 1)
		zr, err := zip.OpenReader(files[0])
		require.NoError(t, err)
		defer zr.Close() //nolint:errcheck
		assert.Len(t, zr.File, 2)
	})

	t.Run("xlsx", func(t *testing.T) {
		files, err := writeViews(t.TempDir(), config.FormatXLSX, "bundle", testViews(), modified)
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "bundle.xlsx", filepath.Base(files[0]))
		assert.FileExists(t, files[0])
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := writeViews(t.TempDir(), "pdf", "bundle", testViews(), modified)
		require.Error(t, err)
	})
}

func TestEstimate(t *testing.T) {
	c := &config.Config{}
	c.Classify.SmallBatchThreshold = 50

	small := estimate(c, 10)
	assert.False(t, small.Batch)
	assert.True(t, small.Known)
	assert.Equal(t, 10, small.Requests)

	large := estimate(c, 500)
	assert.True(t, large.Batch)
	assert.Greater(t, large.Cost, 0.0)

	c.Classify.NoBatch = true
	assert.False(t, estimate(c, 500).Batch)
}
