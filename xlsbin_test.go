package xlsbin_test

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/TsubasaBE/go-xlsbin"
	"github.com/TsubasaBE/go-xlsbin/biff12"
	"github.com/TsubasaBE/go-xlsbin/worksheet"
)

func TestConvertDate(t *testing.T) {
	tests := []struct {
		name    string
		input   float64
		want    time.Time
		wantErr bool
	}{
		{
			name:  "serial 0 gives 1900-01-01",
			input: 0,
			want:  time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "serial 0 with time component",
			input: 0.5,
			want:  time.Date(1900, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:  "serial 1 gives 1900-01-01 (base+1 day)",
			input: 1,
			want:  time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "serial 60 gives 1900-03-01 (phantom leap day)",
			input: 60,
			want:  time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "serial 61 compensates for Lotus leap-year bug",
			input: 61,
			want:  time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "datetime with seconds",
			input: 41235.45578,
			want:  time.Date(2012, 11, 22, 10, 56, 19, 0, time.UTC),
		},
		{
			name:    "NaN is rejected",
			input:   math.NaN(),
			wantErr: true,
		},
		{
			name:    "negative serial is rejected",
			input:   -1,
			wantErr: true,
		},
		{
			name:    "serial past year 9999 is rejected",
			input:   3_000_000,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := xlsbin.ConvertDate(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("ConvertDate(%v) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestConvertDateEx1904(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  time.Time
	}{
		{
			name:  "serial 0 gives 1904-01-01",
			input: 0,
			want:  time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "no phantom leap day in the 1904 system",
			input: 61,
			want:  time.Date(1904, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "1904 serial is 1462 days behind the 1900 serial",
			input: 41235.45578 - 1462,
			want:  time.Date(2012, 11, 22, 10, 56, 19, 0, time.UTC),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := xlsbin.ConvertDateEx(tc.input, true)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("ConvertDateEx(%v, true) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}

	// date1904 == false must match ConvertDate exactly.
	a, err := xlsbin.ConvertDateEx(41235.45578, false)
	if err != nil {
		t.Fatalf("ConvertDateEx: %v", err)
	}
	b, err := xlsbin.ConvertDate(41235.45578)
	if err != nil {
		t.Fatalf("ConvertDate: %v", err)
	}
	if !a.Equal(b) {
		t.Errorf("ConvertDateEx(x, false) = %v, ConvertDate(x) = %v", a, b)
	}
}

// ── end to end ────────────────────────────────────────────────────────────────

func writeRec(buf *bytes.Buffer, id int, payload []byte) {
	if id < 0x80 {
		buf.WriteByte(byte(id))
	} else {
		buf.WriteByte(byte(id&0x7F) | 0x80)
		buf.WriteByte(byte(id >> 7))
	}
	n := len(payload)
	for {
		b := n & 0x7F
		n >>= 7
		if n > 0 {
			buf.WriteByte(byte(b) | 0x80)
		} else {
			buf.WriteByte(byte(b))
			break
		}
	}
	buf.Write(payload)
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func wideStr(s string) []byte {
	runes := []rune(s)
	out := le32(uint32(len(runes)))
	for _, r := range runes {
		var u [2]byte
		binary.LittleEndian.PutUint16(u[:], uint16(r))
		out = append(out, u[:]...)
	}
	return out
}

func buildFixtureXLSB(t *testing.T) []byte {
	t.Helper()

	var wbk bytes.Buffer
	writeRec(&wbk, biff12.Workbook, nil)
	writeRec(&wbk, biff12.WorkbookPr, le32(0))
	writeRec(&wbk, biff12.Sheets, nil)
	sheet := le32(0)
	sheet = append(sheet, le32(1)...)
	sheet = append(sheet, wideStr("rId1")...)
	sheet = append(sheet, wideStr("Sheet1")...)
	writeRec(&wbk, biff12.Sheet, sheet)
	writeRec(&wbk, biff12.SheetsEnd, nil)
	writeRec(&wbk, biff12.CalcPr, nil)

	var sst bytes.Buffer
	hdr := append(le32(1), le32(1)...)
	writeRec(&sst, biff12.Sst, hdr)
	writeRec(&sst, biff12.Si, append([]byte{0}, wideStr("greeting")...))
	writeRec(&sst, biff12.SstEnd, nil)

	var sh bytes.Buffer
	writeRec(&sh, biff12.Worksheet, nil)
	writeRec(&sh, biff12.Dimension, bytes.Join([][]byte{le32(0), le32(0), le32(0), le32(2)}, nil))
	writeRec(&sh, biff12.SheetData, nil)
	writeRec(&sh, biff12.Row, append(le32(0), make([]byte, 13)...))

	rk := le32(0)
	rk = append(rk, 0, 0, 0, 0)
	rk = append(rk, le32(uint32(3<<2)|0x2)...)
	writeRec(&sh, biff12.Num, rk)

	isst := le32(1)
	isst = append(isst, 0, 0, 0, 0)
	isst = append(isst, le32(0)...)
	writeRec(&sh, biff12.String, isst)

	// =A1*2 in C1
	fml := le32(2)
	fml = append(fml, 0, 0, 0, 0)
	fml = append(fml, make([]byte, 8)...) // cached value 0
	fml = append(fml, 0, 0)               // grbit
	rgce := []byte{0x44, 0, 0, 0, 0, 0, 0xC0, 0x1E, 2, 0, 0x05}
	fml = append(fml, le32(uint32(len(rgce)))...)
	fml = append(fml, rgce...)
	writeRec(&sh, biff12.FormulaFloat, fml)

	writeRec(&sh, biff12.SheetDataEnd, nil)
	writeRec(&sh, biff12.WorksheetEnd, nil)

	rels := `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="worksheet" Target="worksheets/sheet1.bin"/>
</Relationships>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range []struct {
		name string
		data []byte
	}{
		{"xl/_rels/workbook.bin.rels", []byte(rels)},
		{"xl/workbook.bin", wbk.Bytes()},
		{"xl/sharedStrings.bin", sst.Bytes()},
		{"xl/worksheets/sheet1.bin", sh.Bytes()},
	} {
		f, err := zw.Create(part.name)
		if err != nil {
			t.Fatalf("zip create %s: %v", part.name, err)
		}
		if _, err := f.Write(part.data); err != nil {
			t.Fatalf("zip write %s: %v", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestOpenReaderEndToEnd(t *testing.T) {
	data := buildFixtureXLSB(t)
	wb, err := xlsbin.OpenReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer wb.Close()

	if sheets := wb.Sheets(); len(sheets) != 1 || sheets[0] != "Sheet1" {
		t.Fatalf("Sheets = %v, want [Sheet1]", sheets)
	}

	cr, err := wb.CellsReader("Sheet1")
	if err != nil {
		t.Fatalf("CellsReader: %v", err)
	}
	var cells []worksheet.Cell
	for {
		c, err := cr.NextCell()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextCell: %v", err)
		}
		cells = append(cells, *c)
	}
	if len(cells) != 3 {
		t.Fatalf("read %d cells, want 3", len(cells))
	}
	if cells[0].Value.Kind != worksheet.KindInt || cells[0].Value.Int != 3 {
		t.Errorf("A1 = %+v, want int 3", cells[0].Value)
	}
	if cells[1].Value.Kind != worksheet.KindSharedString || cells[1].Value.Str != "greeting" {
		t.Errorf("B1 = %+v, want shared string", cells[1].Value)
	}

	// Formulas come from a second pass over the sheet.
	fr, err := wb.CellsReader("Sheet1")
	if err != nil {
		t.Fatalf("CellsReader: %v", err)
	}
	f, err := fr.NextFormula()
	if err != nil {
		t.Fatalf("NextFormula: %v", err)
	}
	if f.Formula != "A1*2" {
		t.Errorf("Formula = %q, want %q", f.Formula, "A1*2")
	}
}
