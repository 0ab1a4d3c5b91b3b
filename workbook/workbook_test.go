package workbook

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"unicode/utf16"

	"github.com/TsubasaBE/go-xlsbin/biff12"
	"github.com/TsubasaBE/go-xlsbin/worksheet"
)

// ── BIFF12 fixture helpers ────────────────────────────────────────────────────

func writeID(buf *bytes.Buffer, id int) {
	if id < 0x80 {
		buf.WriteByte(byte(id))
		return
	}
	buf.WriteByte(byte(id&0x7F) | 0x80)
	buf.WriteByte(byte(id >> 7))
}

func writeRec(buf *bytes.Buffer, id int, payload []byte) {
	writeID(buf, id)
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

// bundleSh builds a BrtBundleSh payload.
func bundleSh(hsState uint32, relID, name string) []byte {
	var b []byte
	b = append(b, le32(hsState)...)
	b = append(b, le32(1)...) // iTabID
	b = append(b, wideStr(relID)...)
	b = append(b, wideStr(name)...)
	return b
}

// xti builds one 12-byte BrtExternSheet entry.
func xti(firstSheet int32) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[4:], uint32(firstSheet))
	return b
}

// definedName builds a BrtName payload whose refers-to bytecode is an
// absolute reference to A1 ($A$1).
func definedName(name string) []byte {
	b := make([]byte, 9) // flags, chKey, itab
	b = append(b, wideStr(name)...)
	rgce := []byte{0x44, 0, 0, 0, 0, 0, 0} // PtgRef row 0, col 0, absolute
	b = append(b, le32(uint32(len(rgce)))...)
	return append(b, rgce...)
}

func buildWorkbookBin(t *testing.T) []byte {
	t.Helper()
	var b bytes.Buffer
	writeRec(&b, biff12.Workbook, nil)
	writeRec(&b, biff12.WorkbookPr, le32(1)) // bit 0: 1904 date system
	writeRec(&b, biff12.Sheets, nil)
	writeRec(&b, biff12.Sheet, bundleSh(0, "rId1", "Data"))
	writeRec(&b, biff12.Sheet, bundleSh(1, "rId2", "Hidden"))
	writeRec(&b, biff12.SheetsEnd, nil)
	var ext []byte
	ext = append(ext, le32(2)...)
	ext = append(ext, xti(0)...)
	ext = append(ext, xti(-2)...)
	writeRec(&b, biff12.ExternSheet, ext)
	writeRec(&b, biff12.DefinedName, definedName("MyCell"))
	writeRec(&b, biff12.CalcPr, make([]byte, 8))
	writeRec(&b, biff12.WorkbookEnd, nil)
	return b.Bytes()
}

func buildSheetBin(t *testing.T) []byte {
	t.Helper()
	var b bytes.Buffer
	writeRec(&b, biff12.Worksheet, nil)
	writeRec(&b, biff12.Dimension, bytes.Join([][]byte{le32(0), le32(0), le32(0), le32(1)}, nil))
	writeRec(&b, biff12.SheetData, nil)
	writeRec(&b, biff12.Row, append(le32(0), make([]byte, 13)...))

	cell := le32(0)                                // column 0
	cell = append(cell, 0, 0, 0, 0)                // style ref and flags
	cell = append(cell, le32(uint32(7<<2)|0x2)...) // RK integer 7
	writeRec(&b, biff12.Num, cell)

	writeRec(&b, biff12.SheetDataEnd, nil)
	writeRec(&b, biff12.WorksheetEnd, nil)
	return b.Bytes()
}

const relsXML = `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="worksheet" Target="worksheets/sheet1.bin"/>
  <Relationship Id="rId2" Type="worksheet" Target="worksheets/sheet2.bin"/>
</Relationships>`

func buildZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	add("xl/_rels/workbook.bin.rels", []byte(relsXML))
	add("xl/workbook.bin", buildWorkbookBin(t))
	add("xl/worksheets/sheet1.bin", buildSheetBin(t))
	add("xl/worksheets/sheet2.bin", buildSheetBin(t))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func openFixture(t *testing.T) *Workbook {
	t.Helper()
	data := buildZip(t)
	wb, err := OpenReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	return wb
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestOpenReaderMetadata(t *testing.T) {
	wb := openFixture(t)
	defer wb.Close()

	sheets := wb.Sheets()
	if len(sheets) != 2 || sheets[0] != "Data" || sheets[1] != "Hidden" {
		t.Errorf("Sheets = %v, want [Data Hidden]", sheets)
	}
	if !wb.Date1904 {
		t.Error("Date1904 = false, want true")
	}
	if !wb.SheetVisible("Data") {
		t.Error("SheetVisible(Data) = false, want true")
	}
	if got := wb.SheetVisibility("hidden"); got != SheetHidden {
		t.Errorf("SheetVisibility(hidden) = %d, want %d", got, SheetHidden)
	}
	if got := wb.SheetVisibility("nope"); got != -1 {
		t.Errorf("SheetVisibility(nope) = %d, want -1", got)
	}

	names := wb.DefinedNames()
	if len(names) != 1 || names[0].Name != "MyCell" || names[0].Formula != "$A$1" {
		t.Errorf("DefinedNames = %+v", names)
	}

	// xti 0 resolves to the first bundle sheet, -2 to the self sentinel.
	if len(wb.extern) != 2 || wb.extern[0] != "Data" || wb.extern[1] != "#ThisWorkbook" {
		t.Errorf("extern sheets = %v", wb.extern)
	}
}

func TestCellsReader(t *testing.T) {
	wb := openFixture(t)
	defer wb.Close()

	cr, err := wb.CellsReader("data") // case-insensitive
	if err != nil {
		t.Fatalf("CellsReader: %v", err)
	}
	cell, err := cr.NextCell()
	if err != nil {
		t.Fatalf("NextCell: %v", err)
	}
	if cell.Value.Kind != worksheet.KindInt || cell.Value.Int != 7 {
		t.Errorf("cell value = %+v, want int 7", cell.Value)
	}
	if _, err := cr.NextCell(); err != io.EOF {
		t.Errorf("second cell: err = %v, want io.EOF", err)
	}

	if _, err := wb.CellsReader("missing"); err == nil {
		t.Error("unknown sheet accepted, want error")
	}
	if _, err := wb.CellsReaderAt(0); err == nil {
		t.Error("index 0 accepted, want error")
	}
	if _, err := wb.CellsReaderAt(2); err != nil {
		t.Errorf("CellsReaderAt(2): %v", err)
	}
}

func TestParseSheetRecordNullRelID(t *testing.T) {
	var b []byte
	b = append(b, le32(0)...)
	b = append(b, le32(1)...)
	b = append(b, le32(0xFFFFFFFF)...) // null relationship ID
	b = append(b, wideStr("Chart")...)

	_, ok, err := parseSheetRecord(b, map[string]string{})
	if err != nil {
		t.Fatalf("parseSheetRecord: %v", err)
	}
	if ok {
		t.Error("null-rel sheet produced an entry, want skip")
	}
}

func TestParseRels(t *testing.T) {
	m, err := parseRels([]byte(relsXML))
	if err != nil {
		t.Fatalf("parseRels: %v", err)
	}
	if got := m["rId1"]; got != "worksheets/sheet1.bin" {
		t.Errorf("rId1 = %q, want worksheets/sheet1.bin", got)
	}
	if got := m["rId2"]; got != "worksheets/sheet2.bin" {
		t.Errorf("rId2 = %q, want worksheets/sheet2.bin", got)
	}
	if _, err := parseRels([]byte("not xml")); err == nil {
		t.Error("malformed rels accepted, want error")
	}
}

func TestOpenReaderPasswordProtected(t *testing.T) {
	data := buildEncryptedContainer(t)
	_, err := OpenReader(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrPasswordProtected) {
		t.Errorf("err = %v, want ErrPasswordProtected", err)
	}
}

func TestOpenReaderGarbage(t *testing.T) {
	data := []byte("this is neither a zip nor a cfb container")
	if _, err := OpenReader(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Error("garbage input accepted, want error")
	}
}

// buildEncryptedContainer assembles a minimal CFB file whose directory
// holds an EncryptedPackage stream, the shape of a password-protected
// workbook.
func buildEncryptedContainer(t *testing.T) []byte {
	t.Helper()
	le16 := binary.LittleEndian.PutUint16
	le32p := binary.LittleEndian.PutUint32

	hdr := make([]byte, 512)
	copy(hdr, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le16(hdr[28:], 0xFFFE)
	le16(hdr[30:], 9)
	le16(hdr[32:], 6)
	le32p(hdr[44:], 1)          // one FAT sector
	le32p(hdr[48:], 1)          // directory at sector 1
	le32p(hdr[56:], 0)          // mini cutoff
	le32p(hdr[60:], 0xFFFFFFFE) // no mini-FAT
	le32p(hdr[68:], 0xFFFFFFFE) // no DIFAT overflow
	le32p(hdr[76:], 0)
	for i := 1; i < 109; i++ {
		le32p(hdr[76+4*i:], 0xFFFFFFFF)
	}

	fat := make([]byte, 512)
	for i := 0; i < 128; i++ {
		le32p(fat[4*i:], 0xFFFFFFFF)
	}
	le32p(fat[0:], 0xFFFFFFFD)
	le32p(fat[4:], 0xFFFFFFFE) // directory
	le32p(fat[8:], 0xFFFFFFFE) // stream payload

	dir := make([]byte, 512)
	writeEntry := func(idx int, name string, typ byte, start uint32, size uint64) {
		e := dir[idx*128 : (idx+1)*128]
		units := utf16.Encode([]rune(name))
		for i, u := range units {
			le16(e[2*i:], u)
		}
		le16(e[64:], uint16(2*len(units)+2))
		e[66] = typ
		le32p(e[116:], start)
		binary.LittleEndian.PutUint64(e[120:], size)
	}
	writeEntry(0, "Root Entry", 0x05, 0xFFFFFFFE, 0)
	writeEntry(1, "EncryptedPackage", 0x02, 2, 16)

	payload := make([]byte, 512)

	var out bytes.Buffer
	out.Write(hdr)
	out.Write(fat)
	out.Write(dir)
	out.Write(payload)
	return out.Bytes()
}
