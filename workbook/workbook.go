// Package workbook opens an .xlsb workbook (a ZIP archive of BIFF12 record
// streams) and exposes its sheets, shared strings, cell formats, defined
// names and embedded VBA project.
package workbook

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/TsubasaBE/go-xlsbin/biff12"
	"github.com/TsubasaBE/go-xlsbin/cfb"
	"github.com/TsubasaBE/go-xlsbin/formats"
	"github.com/TsubasaBE/go-xlsbin/formula"
	"github.com/TsubasaBE/go-xlsbin/record"
	"github.com/TsubasaBE/go-xlsbin/stringtable"
	"github.com/TsubasaBE/go-xlsbin/vba"
	"github.com/TsubasaBE/go-xlsbin/worksheet"
)

// ErrPasswordProtected is returned when the file is not a ZIP archive but a
// CFB container holding an EncryptedPackage stream, i.e. a workbook saved
// with a password.
var ErrPasswordProtected = errors.New("workbook: file is password protected")

// Sheet visibility levels, as stored in the hsState field of a BrtBundleSh
// record (MS-XLSB §2.4.720). Use these constants with SheetVisibility.
const (
	// SheetVisible indicates the sheet tab is visible (hsState == 0).
	SheetVisible = 0
	// SheetHidden indicates the sheet is hidden but can be unhidden by the
	// user via Excel's "Unhide" dialog (hsState == 1).
	SheetHidden = 1
	// SheetVeryHidden indicates the sheet is hidden and cannot be unhidden
	// through the Excel UI, only via VBA or programmatic access (hsState == 2).
	SheetVeryHidden = 2
)

// DefinedName is one workbook-level name with its decompiled refers-to
// formula.
type DefinedName struct {
	Name    string
	Formula string
}

// sheetEntry holds the display name and the zip-internal path for one
// worksheet.
type sheetEntry struct {
	name       string
	path       string // e.g. "xl/worksheets/sheet1.bin"
	visibility int    // SheetVisible, SheetHidden, or SheetVeryHidden
}

// Workbook represents an open .xlsb workbook.
type Workbook struct {
	zr      *zip.ReadCloser // non-nil when opened by file name
	zf      *zip.Reader     // always non-nil
	sheets  []sheetEntry
	strings *stringtable.StringTable
	formats []formats.CellFormat
	extern  []string
	names   []DefinedName
	// Date1904 is true when the workbook uses the 1904 date system (base
	// date 1904-01-01, serial 0 = 1904-01-01). Most workbooks use the
	// default 1900 system (Date1904 == false).
	Date1904 bool
}

// Open opens the named .xlsb file and parses its workbook metadata.
// The caller must call Close on the returned Workbook when done to release
// the underlying file handle. A password-protected workbook yields
// ErrPasswordProtected.
func Open(name string) (*Workbook, error) {
	rc, err := zip.OpenReader(name)
	if err != nil {
		if probeEncrypted(name) {
			return nil, ErrPasswordProtected
		}
		return nil, fmt.Errorf("workbook: open %q: %w", name, err)
	}
	wb := &Workbook{zr: rc, zf: &rc.Reader}
	if err := wb.parse(); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return wb, nil
}

// OpenReader parses an .xlsb workbook from an in-memory ReaderAt.
// size must be the total byte size of the ZIP data.
func OpenReader(r io.ReaderAt, size int64) (*Workbook, error) {
	zf, err := zip.NewReader(r, size)
	if err != nil {
		if f, cfbErr := cfb.Open(io.NewSectionReader(r, 0, size)); cfbErr == nil && f.HasStream("EncryptedPackage") {
			return nil, ErrPasswordProtected
		}
		return nil, fmt.Errorf("workbook: open reader: %w", err)
	}
	wb := &Workbook{zf: zf}
	if err := wb.parse(); err != nil {
		return nil, err
	}
	return wb, nil
}

// probeEncrypted reports whether the named file is a CFB container with an
// EncryptedPackage stream.
func probeEncrypted(name string) bool {
	fh, err := os.Open(name)
	if err != nil {
		return false
	}
	defer fh.Close()
	f, err := cfb.Open(fh)
	return err == nil && f.HasStream("EncryptedPackage")
}

// Sheets returns the display names of all worksheets in workbook order.
func (wb *Workbook) Sheets() []string {
	names := make([]string, len(wb.sheets))
	for i, s := range wb.sheets {
		names[i] = s.name
	}
	return names
}

// SheetVisible reports whether the named sheet is visible (case-insensitive).
// It returns false for hidden sheets, very-hidden sheets, and unknown names.
// To distinguish hidden from very-hidden, use SheetVisibility.
func (wb *Workbook) SheetVisible(name string) bool {
	return wb.SheetVisibility(name) == SheetVisible
}

// SheetVisibility returns the visibility level of the named sheet
// (case-insensitive): SheetVisible (0), SheetHidden (1), or SheetVeryHidden
// (2). It returns -1 if no sheet with that name exists.
func (wb *Workbook) SheetVisibility(name string) int {
	lower := strings.ToLower(name)
	for _, s := range wb.sheets {
		if strings.ToLower(s.name) == lower {
			return s.visibility
		}
	}
	return -1
}

// DefinedNames returns the workbook-level defined names in declaration
// order, each with its decompiled refers-to formula.
func (wb *Workbook) DefinedNames() []DefinedName {
	return wb.names
}

// CellsReader returns a streaming reader over the named sheet's cells
// (case-insensitive name match). Each call opens a fresh pass over the
// sheet data.
func (wb *Workbook) CellsReader(name string) (*worksheet.CellsReader, error) {
	lower := strings.ToLower(name)
	for _, s := range wb.sheets {
		if strings.ToLower(s.name) == lower {
			return wb.openSheet(s)
		}
	}
	return nil, fmt.Errorf("workbook: sheet %q not found", name)
}

// CellsReaderAt returns a streaming reader over the sheet at the given
// 1-based index. Index 1 refers to the first sheet.
func (wb *Workbook) CellsReaderAt(idx int) (*worksheet.CellsReader, error) {
	if idx < 1 || idx > len(wb.sheets) {
		return nil, fmt.Errorf("workbook: sheet index %d out of range [1, %d]", idx, len(wb.sheets))
	}
	return wb.openSheet(wb.sheets[idx-1])
}

// VBAProject parses the embedded xl/vbaProject.bin macro container.
// It returns a non-nil error when the workbook carries no VBA project.
func (wb *Workbook) VBAProject() (*vba.Project, error) {
	data, err := wb.readZipEntry("xl/vbaProject.bin")
	if err != nil {
		return nil, fmt.Errorf("workbook: no VBA project: %w", err)
	}
	f, err := cfb.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("workbook: vbaProject.bin: %w", err)
	}
	return vba.Open(f)
}

// Close releases the underlying ZIP file handle.
// It is a no-op when the workbook was opened via OpenReader (no file handle
// to release), and always returns nil in that case.
func (wb *Workbook) Close() error {
	if wb.zr != nil {
		return wb.zr.Close()
	}
	return nil
}

// ── internal ─────────────────────────────────────────────────────────────────

// parse reads workbook.bin, sharedStrings.bin (if present), and styles.bin.
func (wb *Workbook) parse() error {
	if err := wb.parseWorkbook(); err != nil {
		return err
	}
	if err := wb.parseSharedStrings(); err != nil {
		return err
	}
	if err := wb.parseStyles(); err != nil {
		return err
	}
	return nil
}

// parseRels decodes an OOXML relationships document (a .rels part) into a
// relationship ID to target map.  Targets are sheet paths relative to xl/.
func parseRels(data []byte) (map[string]string, error) {
	var doc struct {
		Rels []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	m := make(map[string]string, len(doc.Rels))
	for _, rel := range doc.Rels {
		m[rel.ID] = rel.Target
	}
	return m, nil
}

// parseWorkbook reads xl/_rels/workbook.bin.rels (XML) and xl/workbook.bin
// to build the sheet list, the extern-sheet name table and the defined
// names.
func (wb *Workbook) parseWorkbook() error {
	// Step 1: load relationship ID → target map from the .rels XML.
	relData, err := wb.readZipEntry("xl/_rels/workbook.bin.rels")
	if err != nil {
		return fmt.Errorf("workbook: parse rels: %w", err)
	}
	relMap, err := parseRels(relData)
	if err != nil {
		return fmt.Errorf("workbook: parse rels: %w", err)
	}

	// Step 2: read the workbook.bin record stream up to the end of the
	// BrtBundleSh group.
	data, err := wb.readZipEntry("xl/workbook.bin")
	if err != nil {
		return fmt.Errorf("workbook: read workbook.bin: %w", err)
	}

	rdr := record.NewReader(bytes.NewReader(data))
sheetLoop:
	for {
		recID, recData, err := rdr.Next()
		if err != nil {
			return fmt.Errorf("workbook: %w", orEOF(err))
		}

		switch recID {
		case biff12.WorkbookPr:
			// BrtWbProp: bit 0 of the first byte is f1904DateSystem.
			if len(recData) >= 1 {
				wb.Date1904 = recData[0]&0x1 != 0
			}
		case biff12.Sheet:
			entry, ok, err := parseSheetRecord(recData, relMap)
			if err != nil {
				return fmt.Errorf("workbook: parse BrtBundleSh: %w", err)
			}
			if ok {
				wb.sheets = append(wb.sheets, entry)
			}
		case biff12.SheetsEnd:
			break sheetLoop
		}
	}

	// Step 3: extern-sheet table and defined names follow the bundle group.
	// The stream continues with records we don't care about; any of the
	// section openers known to come after the names ends the scan.
	for {
		recID, err := rdr.ReadType()
		if err != nil {
			return fmt.Errorf("workbook: %w", orEOF(err))
		}

		switch recID {
		case biff12.ExternSheet:
			buf, err := rdr.FillBuffer()
			if err != nil {
				return fmt.Errorf("workbook: BrtExternSheet: %w", err)
			}
			if err := wb.parseExternSheet(buf); err != nil {
				return err
			}

		case biff12.DefinedName:
			buf, err := rdr.FillBuffer()
			if err != nil {
				return fmt.Errorf("workbook: BrtName: %w", err)
			}
			if err := wb.parseDefinedName(buf); err != nil {
				return err
			}

		case biff12.CalcPr, biff12.OleSize, biff12.UserBookView,
			biff12.WbFactoid, biff12.WebOpt, biff12.BookProtect,
			biff12.FnGroup, biff12.FileRecover, biff12.WorkbookEnd:
			return nil

		default:
			if _, err := rdr.FillBuffer(); err != nil {
				return fmt.Errorf("workbook: %w", err)
			}
		}
	}
}

// parseExternSheet decodes a BrtExternSheet payload: a count followed by
// 12-byte Xti entries whose firstSheet field selects a bundle sheet or one
// of the self-reference sentinels.
func (wb *Workbook) parseExternSheet(buf []byte) error {
	if len(buf) < 4 {
		return fmt.Errorf("workbook: BrtExternSheet too short (%d bytes)", len(buf))
	}
	cxti := int(binary.LittleEndian.Uint32(buf[:4]))
	body := buf[4:]
	for i := 0; i < cxti && (i+1)*12 <= len(body); i++ {
		xti := body[i*12 : (i+1)*12]
		first := int32(binary.LittleEndian.Uint32(xti[4:8]))
		var name string
		switch {
		case first == -2:
			name = "#ThisWorkbook"
		case first == -1:
			name = "#InvalidWorkSheet"
		case first >= 0 && int(first) < len(wb.sheets):
			name = wb.sheets[first].name
		default:
			name = "#Unknown"
		}
		wb.extern = append(wb.extern, name)
	}
	return nil
}

// parseDefinedName decodes a BrtName payload: flags and key code, the name
// itself, then the length-prefixed rgce bytecode of the refers-to formula.
// Each name is decompiled against the names declared before it, matching
// the order Excel writes them in.
func (wb *Workbook) parseDefinedName(buf []byte) error {
	rr := record.NewRecordReader(buf)
	if err := rr.Skip(9); err != nil { // flags(4) + chKey(1) + itab(4)
		return fmt.Errorf("workbook: BrtName: %w", err)
	}
	name, err := rr.ReadString()
	if err != nil {
		return fmt.Errorf("workbook: BrtName: read name: %w", err)
	}
	cce, err := rr.ReadUint32()
	if err != nil {
		return fmt.Errorf("workbook: BrtName %q: %w", name, err)
	}
	rgce := make([]byte, cce)
	if err := rr.Read(rgce); err != nil {
		return fmt.Errorf("workbook: BrtName %q: rgce: %w", name, err)
	}

	prior := make([]string, len(wb.names))
	for i, n := range wb.names {
		prior[i] = n.Name
	}
	text, err := formula.Decode(rgce, wb.extern, prior)
	if err != nil {
		return fmt.Errorf("workbook: BrtName %q: %w", name, err)
	}
	wb.names = append(wb.names, DefinedName{Name: name, Formula: text})
	return nil
}

// parseSharedStrings reads xl/sharedStrings.bin if it exists.
func (wb *Workbook) parseSharedStrings() error {
	data, err := wb.readZipEntry("xl/sharedStrings.bin")
	if err != nil {
		// File is optional; no shared strings in this workbook.
		return nil
	}
	st, err := stringtable.New(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("workbook: shared strings: %w", err)
	}
	wb.strings = st
	return nil
}

// parseStyles reads xl/styles.bin and builds the cell-format table used to
// classify numeric cells as dates or durations. Failures are silently
// ignored so that workbooks without styles.bin (or with malformed styles)
// still open; their numeric cells simply stay plain numbers.
func (wb *Workbook) parseStyles() error {
	data, err := wb.readZipEntry("xl/styles.bin")
	if err != nil {
		return nil // optional
	}
	cf, err := formats.ReadStyles(bytes.NewReader(data))
	if err != nil {
		return nil // degrade gracefully
	}
	wb.formats = cf
	return nil
}

// openSheet reads the binary data for the given sheet entry and returns a
// ready-to-use CellsReader.
func (wb *Workbook) openSheet(entry sheetEntry) (*worksheet.CellsReader, error) {
	data, err := wb.readZipEntry(entry.path)
	if err != nil {
		return nil, fmt.Errorf("workbook: open sheet %q: %w", entry.name, err)
	}
	priorNames := make([]string, len(wb.names))
	for i, n := range wb.names {
		priorNames[i] = n.Name
	}
	return worksheet.NewCellsReader(bytes.NewReader(data), worksheet.Source{
		Formats:      wb.formats,
		Strings:      wb.strings,
		ExternSheets: wb.extern,
		Names:        priorNames,
		Date1904:     wb.Date1904,
	})
}

// readZipEntry reads the full contents of a named entry from the ZIP
// archive.
func (wb *Workbook) readZipEntry(name string) ([]byte, error) {
	for _, f := range wb.zf.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			data, readErr := io.ReadAll(rc)
			closeErr := rc.Close()
			if readErr != nil {
				return nil, readErr
			}
			// Propagate decompressor checksum / close errors even when the
			// read appeared to succeed (e.g. truncated flate stream).
			if closeErr != nil {
				return nil, closeErr
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("%q not found in archive", name)
}

// orEOF maps a bare EOF to ErrUnexpectedEOF; the workbook stream must end
// with one of its terminator records, never mid-scan.
func orEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ── BrtBundleSh parsing ──────────────────────────────────────────────────────

// parseSheetRecord decodes a BrtBundleSh payload (MS-XLSB §2.4.720):
//
//	hsState uint32   # 0=visible, 1=hidden, 2=veryHidden
//	iTabID  uint32
//	strRelID XLNullableWideString
//	strName  XLWideString
//
// Entries with a null relationship ID (cch == 0xFFFFFFFF) have no backing
// part and are skipped; ok is false for those.
func parseSheetRecord(data []byte, relMap map[string]string) (entry sheetEntry, ok bool, err error) {
	if len(data) < 12 {
		return sheetEntry{}, false, fmt.Errorf("record too short (%d bytes)", len(data))
	}
	visibility := int(binary.LittleEndian.Uint32(data[0:4]) & 0x03)

	relLen := binary.LittleEndian.Uint32(data[8:12])
	if relLen == 0xFFFFFFFF {
		return sheetEntry{}, false, nil
	}
	end := 12 + int(relLen)*2
	if end > len(data) {
		return sheetEntry{}, false, fmt.Errorf("relationship ID overruns record")
	}
	relID := record.DecodeUTF16LE(data[12:end])

	rr := record.NewRecordReader(data[end:])
	name, err := rr.ReadString()
	if err != nil {
		return sheetEntry{}, false, fmt.Errorf("read sheet name: %w", err)
	}

	target, found := relMap[relID]
	if !found {
		return sheetEntry{}, false, fmt.Errorf("no relationship found for rId %q", relID)
	}
	// Resolve "worksheets/sheet1.bin" → "xl/worksheets/sheet1.bin".
	// Absolute targets (starting with "/") are used as-is after stripping
	// the leading slash.
	target = strings.TrimPrefix(target, "/")
	if !strings.HasPrefix(target, "xl/") {
		target = "xl/" + target
	}
	return sheetEntry{name: name, path: target, visibility: visibility}, true, nil
}
