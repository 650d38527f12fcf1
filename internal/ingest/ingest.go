// Package ingest reads keyword exports (CSV or XLSX) into keyword tables,
// mapping source headers onto the standard column schema.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/model"
)

// Options configures ReadFile.
type Options struct {
	Mapping Mapping
	CSV     CSVOptions
	XLSX    XLSXOptions
}

// Report describes one ingested file.
type Report struct {
	Format   string         `json:"format"`
	Rows     int            `json:"rows"`
	Skipped  int            `json:"skipped_empty_keyword"`
	Resolved map[string]int `json:"resolved"`
	Log      model.Log      `json:"log"`
}

// ReadFile loads a .csv/.tsv/.txt or .xlsx export.
func ReadFile(ctx context.Context, path string, opts Options) (*model.Table, Report, error) {
	var records [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := ReadXLSX(path, opts.XLSX)
		if err != nil {
			return nil, Report{}, err
		}
		records = rows
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, Report{}, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		rowCh, errCh := StreamCSV(ctx, f, opts.CSV)
		for row := range rowCh {
			records = append(records, row)
		}
		if err := <-errCh; err != nil {
			return nil, Report{}, eris.Wrapf(err, "ingest: read %s", path)
		}
	}

	t, rep := Build(records, opts.Mapping)
	rep.Log.Infof("Loaded %s (%s): %d keywords", filepath.Base(path), rep.Format, rep.Rows)
	return t, rep, nil
}

// Build turns raw records (header first) into a table. Without a keyword
// column the table has no rows and no keyword column, so a merge skips it.
func Build(records [][]string, m Mapping) (*model.Table, Report) {
	rep := Report{Format: "Custom"}
	if len(records) == 0 {
		rep.Log.Warnf("empty file")
		return &model.Table{}, rep
	}

	header := records[0]
	rep.Format = DetectFormat(header)
	cols, extras := Resolve(header, m)
	rep.Resolved = cols

	kwIdx, ok := cols[model.ColKeyword]
	if !ok {
		rep.Log.Warnf("no keyword column found in header %v", header)
		return &model.Table{}, rep
	}

	t := model.NewTable()
	for _, std := range model.StandardColumns {
		if _, ok := cols[std]; ok {
			t.AddColumn(std)
		}
	}
	extraNames := orderedExtras(extras)
	for _, name := range extraNames {
		t.AddExtra(name)
	}

	for _, rec := range records[1:] {
		kw := cell(rec, kwIdx)
		if kw == "" {
			rep.Skipped++
			continue
		}
		row := &model.KeywordRow{Keyword: kw}
		for std, i := range cols {
			if std != model.ColKeyword {
				row.SetValue(std, cell(rec, i))
			}
		}
		for _, name := range extraNames {
			if v := cell(rec, extras[name]); v != "" {
				if row.Extra == nil {
					row.Extra = make(map[string]string, len(extraNames))
				}
				row.Extra[name] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
	rep.Rows = t.Len()
	if rep.Skipped > 0 {
		rep.Log.Warnf("skipped %d rows with an empty keyword", rep.Skipped)
	}
	return t, rep
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
