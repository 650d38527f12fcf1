package classify

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/ingest"
	"github.com/sells-group/keyword-cli/internal/model"
)

// ReadCSV loads classifications computed offline from a file with keyword,
// journey_phase and search_intent columns. Rows without a journey phase are
// skipped. Later rows win for repeated keywords.
func ReadCSV(ctx context.Context, path string) (map[string]model.Classification, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := ingest.StreamCSV(ctx, f, ingest.CSVOptions{})
	header := true
	idx := map[string]int{}
	out := make(map[string]model.Classification)
	for rec := range rowCh {
		if header {
			for i, h := range rec {
				idx[strings.ToLower(strings.TrimSpace(h))] = i
			}
			header = false
			continue
		}
		kw := field(rec, idx, model.ColKeyword)
		phase := field(rec, idx, model.ColJourneyPhase)
		if kw == "" || phase == "" {
			continue
		}
		out[kw] = model.Classification{
			JourneyPhase: phase,
			SearchIntent: field(rec, idx, model.ColSearchIntent),
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "classify: read %s", path)
	}
	if header {
		return nil, eris.Errorf("classify: %s is empty", path)
	}
	for _, col := range []string{model.ColKeyword, model.ColJourneyPhase} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("classify: %s has no %s column", path, col)
		}
	}
	return out, nil
}

func field(rec []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
