package export

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/keyword-cli/internal/model"
)

// maxSheetName is Excel's worksheet name limit.
const maxSheetName = 31

// Workbook builds an xlsx file with one worksheet per view. Finite numeric
// cells are written as numbers, except in keyword columns.
func Workbook(views []model.View) (*xlsx.File, error) {
	f := xlsx.NewFile()
	used := make(map[string]bool, len(views))
	for _, v := range views {
		sheet, err := f.AddSheet(sheetName(v.Name, used))
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet %s", v.Name)
		}
		s := ViewSheet(v)

		hdr := sheet.AddRow()
		for _, h := range s.Header {
			hdr.AddCell().SetString(h)
		}
		for _, rec := range s.Rows {
			row := sheet.AddRow()
			for i, val := range rec {
				cell := row.AddCell()
				if i < len(s.Header) && s.Header[i] == model.ColKeyword {
					cell.SetString(val)
					continue
				}
				if n, err := strconv.ParseFloat(val, 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
					cell.SetFloat(n)
				} else {
					cell.SetString(val)
				}
			}
		}
	}
	return f, nil
}

// WriteWorkbook writes the views as an xlsx workbook to w.
func WriteWorkbook(w io.Writer, views []model.View) error {
	f, err := Workbook(views)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// SaveWorkbook writes the views as an xlsx workbook to path.
func SaveWorkbook(path string, views []model.View) error {
	f, err := Workbook(views)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save workbook %s", path)
}

func sheetName(name string, used map[string]bool) string {
	if name == "" {
		name = "sheet"
	}
	base := name
	if len(base) > maxSheetName {
		base = base[:maxSheetName]
	}
	out := base
	for i := 2; used[out]; i++ {
		suffix := fmt.Sprintf("_%d", i)
		trim := base
		if len(trim)+len(suffix) > maxSheetName {
			trim = trim[:maxSheetName-len(suffix)]
		}
		out = trim + suffix
	}
	used[out] = true
	return out
}
