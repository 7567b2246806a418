package export

import (
	"bytes"
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/judgment-cli/internal/model"
)

// DefaultSheet is the sheet name used when none is given.
const DefaultSheet = "Judgments"

// WriteXLSX writes records as a single-sheet workbook: a header row, then
// one row per record. Uninterpreted scraper columns follow the known ones.
func WriteXLSX(w io.Writer, records []model.CaseRecord, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheet)
	if err != nil {
		return eris.Wrapf(err, "xlsx: add sheet %q", sheet)
	}

	extras := extraKeys(records)
	header := sh.AddRow()
	for _, c := range columns {
		header.AddCell().SetString(c.Header)
	}
	for _, k := range extras {
		header.AddCell().SetString(k)
	}

	for i := range records {
		r := &records[i]
		row := sh.AddRow()
		for _, c := range columns {
			row.AddCell().SetString(c.Value(r))
		}
		for _, k := range extras {
			row.AddCell().SetString(extraValue(r.Extra[k]))
		}
	}

	return eris.Wrap(f.Write(w), "xlsx: write workbook")
}

// XLSXBytes renders records with WriteXLSX into memory.
func XLSXBytes(records []model.CaseRecord, sheet string) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, records, sheet); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
