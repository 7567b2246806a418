package recordio

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/judgment-cli/internal/model"
)

func buildWorkbook(t *testing.T, sheet string, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, r := range rows {
		row := sh.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestDecodeXLSX(t *testing.T) {
	data := buildWorkbook(t, "Orders", [][]string{
		{"S.No", "PDF Link", "Party Name", "Date of Order", "Petition Number"},
		{"1", "https://cercind.gov.in/a.pdf", "NTPC VS MPPMCL", "12.03.2024", "12/MP/2024"},
		{"", "", "", "", ""},
		{"2", "https://cercind.gov.in/b.pdf", "", "", ""},
	})

	recs, err := DecodeXLSX(data, "")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, model.SerialNumber("1"), recs[0].SerialNumber)
	assert.Equal(t, "https://cercind.gov.in/a.pdf", recs[0].DocumentLink)
	assert.Equal(t, "NTPC VS MPPMCL", model.Deref(recs[0].PartyName))
	assert.Equal(t, "12.03.2024", model.Deref(recs[0].DateOfDecision))
	assert.JSONEq(t, `"12/MP/2024"`, string(recs[0].Extra["petition_number"]))

	assert.Nil(t, recs[1].PartyName)
}

func TestDecodeXLSX_NamedSheet(t *testing.T) {
	data := buildWorkbook(t, "Orders", [][]string{{"S.No"}, {"7"}})

	recs, err := DecodeXLSX(data, "Orders")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.SerialNumber("7"), recs[0].SerialNumber)

	_, err = DecodeXLSX(data, "Missing")
	assert.ErrorContains(t, err, `sheet "Missing" not found`)
}

func TestDecodeXLSX_NotAWorkbook(t *testing.T) {
	_, err := DecodeXLSX([]byte("plain text"), "")
	assert.Error(t, err)
}

func TestIO_ReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listing.xlsx")
	data := buildWorkbook(t, "Sheet1", [][]string{{"Serial Number", "pdf_link"}, {"9", "https://aptel.gov.in/9.pdf"}})
	require.NoError(t, os.WriteFile(path, data, 0o644))

	recs, err := New(nil).Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.SerialNumber("9"), recs[0].SerialNumber)
}

func TestColumnKey(t *testing.T) {
	tests := map[string]string{
		"S.No":          "s_no",
		"  Party Name ": "party_name",
		"pdf_link":      "pdf_link",
		"Date of Order": "date_of_order",
		"Area-of-Law":   "area_of_law",
		"":              "",
		"Type":          "type",
	}
	for in, want := range tests {
		assert.Equal(t, want, columnKey(in), in)
	}
}
