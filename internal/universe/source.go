package universe

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/keyword-cli/internal/model"
)

var slugUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// Slug turns a human-readable source name into the lower-case identifier
// used in ranking column names. An empty result falls back to "brand".
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = slugUnsafe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "brand"
	}
	return s
}

var (
	exportTimestamp = regexp.MustCompile(`_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}$`)
	urlPrefix       = strings.NewReplacer("https_", "", "http_", "", "www_", "")
)

// SourceName derives a display name from an export filename such as
// "www_acme.co.nz-organic_2024-03-01_10-22-31.csv".
func SourceName(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = exportTimestamp.ReplaceAllString(name, "")
	name = urlPrefix.Replace(name)
	name = strings.TrimPrefix(name, "www.")
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	if i := strings.Index(name, "-"); i > 0 {
		name = name[:i]
	}
	return strings.Trim(name, "_-")
}

// BestPositions reduces a ranking table to one row per keyword, keeping the
// row with the lowest position. Rows without a position sort last.
func BestPositions(t *model.Table) *model.Table {
	if !t.Has(model.ColPosition) {
		return t
	}
	rows := append([]*model.KeywordRow(nil), t.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Position, rows[j].Position
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
	out, _ := Dedup(t.WithRows(rows))
	return out
}

// Dedup keeps the first row for each keyword and reports how many rows
// were dropped.
func Dedup(t *model.Table) (*model.Table, int) {
	seen := make(map[string]bool, t.Len())
	out := t.Filter(func(r *model.KeywordRow) bool {
		if seen[r.Keyword] {
			return false
		}
		seen[r.Keyword] = true
		return true
	})
	return out, t.Len() - out.Len()
}
