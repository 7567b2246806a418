package recordio

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/judgment-cli/internal/model"
)

// DecodeXLSX reads records from a workbook. The first row holds column
// names, normalized to snake_case keys ("Party Name" becomes party_name);
// empty cells are left out. sheet selects a sheet by name, or the first
// sheet when empty.
func DecodeXLSX(data []byte, sheet string) ([]model.CaseRecord, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	sh, err := pickSheet(f, sheet)
	if err != nil {
		return nil, err
	}
	if len(sh.Rows) == 0 {
		return nil, nil
	}

	header := rowToStrings(sh.Rows[0])
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = columnKey(h)
	}

	var recs []model.CaseRecord
	for n, row := range sh.Rows[1:] {
		cells := rowToStrings(row)
		fields := make(map[string]string, len(cells))
		for i, v := range cells {
			v = strings.TrimSpace(v)
			if i >= len(keys) || keys[i] == "" || v == "" {
				continue
			}
			fields[keys[i]] = v
		}
		if len(fields) == 0 {
			continue
		}

		raw, err := json.Marshal(fields)
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: encode row %d", n+2)
		}
		var rec model.CaseRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, eris.Wrapf(err, "xlsx: decode row %d", n+2)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sh, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sh, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// columnKey lower-cases a header and joins its words with underscores.
func columnKey(h string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pending = true
	}
	return b.String()
}
