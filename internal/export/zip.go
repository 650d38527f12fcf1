package export

import (
	"archive/zip"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/model"
)

// WriteZip bundles every view as {name}.csv into a single zip archive.
func WriteZip(w io.Writer, views []model.View, modified time.Time) error {
	zw := zip.NewWriter(w)
	for _, v := range views {
		hdr := &zip.FileHeader{
			Name:     FileName(v.Name),
			Method:   zip.Deflate,
			Modified: modified,
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return eris.Wrapf(err, "export: zip entry %s", v.Name)
		}
		if err := WriteCSV(fw, ViewSheet(v)); err != nil {
			return err
		}
	}
	return eris.Wrap(zw.Close(), "export: close zip")
}
