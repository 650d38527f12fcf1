package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/model"
)

// namedColumns are the headers ReadUniverseCSV maps back onto row fields.
var namedColumns = append(slices.Clone(model.StandardColumns),
	model.ColJourneyPhase,
	model.ColSearchIntent,
	model.ColJourneyWeight,
	model.ColIntentWeight,
	model.ColBusinessValue,
	model.ColCompetitorsRanking,
	model.ColOpportunityGap,
	model.ColOpportunityScore,
)

// WriteCSV writes a sheet as UTF-8 CSV.
func WriteCSV(w io.Writer, s *model.Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, rec := range s.Rows {
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteFile writes a sheet to path.
func WriteFile(path string, s *model.Sheet) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := WriteCSV(f, s); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// WriteDir writes each view to dir/{name}.csv and returns the paths written.
func WriteDir(dir string, views []model.View) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create dir %s", dir)
	}
	paths := make([]string, 0, len(views))
	for _, v := range views {
		path := filepath.Join(dir, FileName(v.Name))
		if err := WriteFile(path, ViewSheet(v)); err != nil {
			return paths, err
		}
		zap.L().Debug("export: wrote view",
			zap.String("view", v.Name),
			zap.Int("records", v.Len()),
			zap.String("path", path),
		)
		paths = append(paths, path)
	}
	return paths, nil
}

// FileName returns the CSV file name for a view.
func FileName(view string) string {
	return view + ".csv"
}

// ReadUniverseCSV restores a table from an exported universe CSV. Sources
// are inferred from {slug}_position headers; owner names the slug that
// gets the rankings role. Unknown headers become extras.
func ReadUniverseCSV(r io.Reader, owner string) (*model.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "export: read universe csv")
	}
	if len(records) == 0 {
		return nil, eris.New("export: universe csv is empty")
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if !slices.Contains(header, model.ColKeyword) {
		return nil, eris.New("export: universe csv has no keyword column")
	}

	t := model.NewTable()
	type rankCol struct{ slug, field string }
	ranked := make(map[int]rankCol)
	sources := inferSources(header, owner)
	t.Sources = sources

	for i, h := range header {
		switch {
		case slices.Contains(namedColumns, h):
			t.AddColumn(h)
		default:
			if rc, ok := matchRanking(h, sources); ok {
				ranked[i] = rankCol{rc.Slug, rc.Fields[0]}
				continue
			}
			t.AddExtra(h)
		}
	}

	for _, rec := range records[1:] {
		row := &model.KeywordRow{}
		for i, raw := range rec {
			if i >= len(header) {
				break
			}
			if rc, ok := ranked[i]; ok {
				if raw != "" {
					setRanking(row, rc.slug, rc.field, raw)
				}
				continue
			}
			if raw == "" && !slices.Contains(namedColumns, header[i]) {
				continue
			}
			row.SetValue(header[i], raw)
		}
		if row.Keyword == "" {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// inferSources finds every {slug}_position header and records which ranking
// fields each slug carries.
func inferSources(header []string, owner string) []model.Source {
	suffix := "_" + model.ColPosition
	var sources []model.Source
	for _, h := range header {
		if slices.Contains(namedColumns, h) || !strings.HasSuffix(h, suffix) {
			continue
		}
		slug := strings.TrimSuffix(h, suffix)
		if slug == "" {
			continue
		}
		role := model.RoleCompetitor
		if slug == owner {
			role = model.RoleRankings
		}
		src := model.Source{Slug: slug, Name: slug, Role: role}
		for _, f := range model.RankingFields {
			if slices.Contains(header, RankingColumn(slug, f)) {
				src.Fields = append(src.Fields, f)
			}
		}
		sources = append(sources, src)
	}
	return sources
}

// matchRanking maps a header back to its source. The returned Source
// carries only the matched field.
func matchRanking(h string, sources []model.Source) (model.Source, bool) {
	for _, s := range sources {
		for _, f := range s.Fields {
			if h == RankingColumn(s.Slug, f) {
				return model.Source{Slug: s.Slug, Fields: []string{f}}, true
			}
		}
	}
	return model.Source{}, false
}
