// Package worksheet streams cells and formulas out of a worksheet binary
// part (xl/worksheets/sheetN.bin).
package worksheet

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/TsubasaBE/go-xlsbin/biff12"
	"github.com/TsubasaBE/go-xlsbin/formats"
	"github.com/TsubasaBE/go-xlsbin/formula"
	"github.com/TsubasaBE/go-xlsbin/record"
	"github.com/TsubasaBE/go-xlsbin/stringtable"
)

// maxRow is the largest valid 0-based row index; a BrtRowHdr beyond it ends
// the sheet early rather than reading garbage.
const maxRow = 0x000FFFFF

// Position is a 0-based (row, column) coordinate.
type Position struct {
	Row uint32
	Col uint32
}

// Dimensions is the sheet's used range as declared by BrtWsDim.
type Dimensions struct {
	Start Position
	End   Position
}

// ValueKind tags a cell Value.
type ValueKind uint8

const (
	KindEmpty        ValueKind = iota
	KindInt                    // Num holds an exact integer in Int
	KindFloat                  // Num holds a float
	KindBool                   // Bool holds the value
	KindError                  // Str holds the error literal ("#REF!", ...)
	KindString                 // Str holds an inline string
	KindSharedString           // Str holds the resolved shared string
	KindDateTime               // Num holds a date/time serial number
	KindDuration               // Num holds an elapsed time in serial days
)

// Value is one decoded cell value.  Exactly the field named by Kind is
// meaningful.
type Value struct {
	Kind ValueKind
	Num  float64
	Int  int64
	Bool bool
	Str  string
}

// Cell is one value-bearing cell.  Style is the 24-bit style reference into
// the workbook's XF table.
type Cell struct {
	Row   uint32
	Col   uint32
	Value Value
	Style uint32
}

// FormulaCell is one formula-bearing cell with its decompiled A1 text.
type FormulaCell struct {
	Row     uint32
	Col     uint32
	Formula string
}

// Source carries the workbook-level tables a sheet needs to decode its
// cells.
type Source struct {
	Formats      []formats.CellFormat
	Strings      *stringtable.StringTable
	ExternSheets []string
	Names        []string
	Date1904     bool
}

// sharedFormula is one BrtShrFmla entry: the decompiled text of the
// defining cell plus the range it applies to, used to re-target dependent
// cells that carry only a PtgExp pointer.
type sharedFormula struct {
	rowFirst, rowLast uint32
	colFirst, colLast uint32
	defRow, defCol    uint32
	text              string
}

// CellsReader streams a worksheet record stream.  Use NextCell to iterate
// values or NextFormula to iterate formulas; the two walk the same stream,
// so create one reader per pass.
type CellsReader struct {
	rdr    *record.Reader
	src    Source
	dims   Dimensions
	row    uint32
	shared []sharedFormula
	// position of the most recent formula cell, for pairing with the
	// BrtShrFmla record that trails a defining cell
	lastFormula Position
}

// NewCellsReader positions r past the sheet prologue (views, column infos,
// format info) at the start of the cell data and reads the declared
// dimensions on the way.
func NewCellsReader(r io.Reader, src Source) (*CellsReader, error) {
	rdr := record.NewReader(r)

	data, err := rdr.NextSkipBlocks(biff12.Dimension, []record.Block{
		{Begin: biff12.Worksheet},
		{Begin: biff12.SheetPr},
	})
	if err != nil {
		return nil, fmt.Errorf("worksheet: dimensions: %w", err)
	}
	if len(data) < 16 {
		return nil, fmt.Errorf("worksheet: BrtWsDim record too short (%d bytes)", len(data))
	}
	dims := Dimensions{
		Start: Position{Row: binary.LittleEndian.Uint32(data[0:4]), Col: binary.LittleEndian.Uint32(data[8:12])},
		End:   Position{Row: binary.LittleEndian.Uint32(data[4:8]), Col: binary.LittleEndian.Uint32(data[12:16])},
	}

	if _, err := rdr.NextSkipBlocks(biff12.SheetData, []record.Block{
		{Begin: biff12.SheetViews, End: biff12.SheetViewsEnd},
		{Begin: biff12.ACBegin, End: biff12.ACEnd},
		{Begin: biff12.SheetFormatPr},
		{Begin: biff12.Cols, End: biff12.ColsEnd},
	}); err != nil {
		return nil, fmt.Errorf("worksheet: cell data: %w", err)
	}

	return &CellsReader{rdr: rdr, src: src, dims: dims}, nil
}

// Dimensions returns the used range declared by the sheet.
func (cr *CellsReader) Dimensions() Dimensions {
	return cr.dims
}

// NextCell returns the next value-bearing cell in stream order, or io.EOF
// after the last one.  Blank cells and non-cell records are skipped.
func (cr *CellsReader) NextCell() (*Cell, error) {
	for {
		recID, buf, err := cr.next()
		if err != nil {
			return nil, err
		}

		var v Value
		switch recID {
		case biff12.Row:
			if done, err := cr.rowHeader(buf); done || err != nil {
				return nil, orEOF(err)
			}
			continue
		case biff12.SheetDataEnd:
			return nil, io.EOF

		case biff12.Num: // RK-packed number
			if len(buf) < 12 {
				return nil, truncated(recID, len(buf))
			}
			v = cr.rkValue(buf)
		case biff12.BoolErr:
			if len(buf) < 9 {
				return nil, truncated(recID, len(buf))
			}
			text, ok := errorLiteral(buf[8])
			if !ok {
				return nil, fmt.Errorf("worksheet: unknown cell error code 0x%02X", buf[8])
			}
			v = Value{Kind: KindError, Str: text}
		case biff12.Bool, biff12.FormulaBool:
			if len(buf) < 9 {
				return nil, truncated(recID, len(buf))
			}
			v = Value{Kind: KindBool, Bool: buf[8] != 0}
		case biff12.Float, biff12.FormulaFloat:
			if len(buf) < 16 {
				return nil, truncated(recID, len(buf))
			}
			f := math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16]))
			v = cr.classify(f, buf)
		case biff12.InlineStr, biff12.FormulaString:
			if len(buf) < 8 {
				return nil, truncated(recID, len(buf))
			}
			s, err := record.NewRecordReader(buf[8:]).ReadString()
			if err != nil {
				return nil, fmt.Errorf("worksheet: inline string: %w", err)
			}
			v = Value{Kind: KindString, Str: s}
		case biff12.String:
			if len(buf) < 12 {
				return nil, truncated(recID, len(buf))
			}
			isst := int(binary.LittleEndian.Uint32(buf[8:12]))
			if cr.src.Strings == nil || isst >= cr.src.Strings.Len() {
				return nil, fmt.Errorf("worksheet: shared string index %d out of range", isst)
			}
			v = Value{Kind: KindSharedString, Str: cr.src.Strings.Get(isst)}

		default: // blanks, shared formulas, anything unrecognised
			continue
		}

		if len(buf) < 8 {
			return nil, truncated(recID, len(buf))
		}
		return &Cell{
			Row:   cr.row,
			Col:   binary.LittleEndian.Uint32(buf[0:4]),
			Value: v,
			Style: styleRef(buf),
		}, nil
	}
}

// NextFormula returns the next formula-bearing cell with its decompiled A1
// text, or io.EOF after the last one.  Shared formulas are expanded: the
// defining cell's text is registered from the trailing BrtShrFmla record,
// and dependent cells holding only a PtgExp pointer get the defining text
// with its relative references shifted to their own position.
func (cr *CellsReader) NextFormula() (*FormulaCell, error) {
	for {
		recID, buf, err := cr.next()
		if err != nil {
			return nil, err
		}

		var rgceOffset int
		switch recID {
		case biff12.Row:
			if done, err := cr.rowHeader(buf); done || err != nil {
				return nil, orEOF(err)
			}
			continue
		case biff12.SheetDataEnd:
			return nil, io.EOF

		case biff12.FormulaString:
			// value string precedes the formula part
			if len(buf) < 12 {
				return nil, truncated(recID, len(buf))
			}
			cch := int(binary.LittleEndian.Uint32(buf[8:12]))
			rgceOffset = 14 + 2*cch
		case biff12.FormulaFloat:
			rgceOffset = 18
		case biff12.FormulaBool, biff12.FormulaBoolErr:
			rgceOffset = 11

		case biff12.ShrFmla:
			if err := cr.registerShared(buf); err != nil {
				return nil, err
			}
			continue

		default:
			continue
		}

		if rgceOffset < 0 || len(buf) < rgceOffset+4 {
			return nil, truncated(recID, len(buf))
		}
		cce := int(binary.LittleEndian.Uint32(buf[rgceOffset : rgceOffset+4]))
		if cce < 0 || len(buf) < rgceOffset+4+cce {
			return nil, truncated(recID, len(buf))
		}
		rgce := buf[rgceOffset+4 : rgceOffset+4+cce]
		col := binary.LittleEndian.Uint32(buf[0:4])

		text, err := cr.decompile(rgce, cr.row, col)
		if err != nil {
			return nil, err
		}
		cr.lastFormula = Position{Row: cr.row, Col: col}
		return &FormulaCell{Row: cr.row, Col: col, Formula: text}, nil
	}
}

// ── internals ─────────────────────────────────────────────────────────────────

func (cr *CellsReader) next() (int, []byte, error) {
	recID, err := cr.rdr.ReadType()
	if err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("worksheet: %w", err)
	}
	buf, err := cr.rdr.FillBuffer()
	if err != nil {
		return 0, nil, fmt.Errorf("worksheet: %w", err)
	}
	return recID, buf, nil
}

// rowHeader updates the current row.  An out-of-range row index marks the
// end of usable data.
func (cr *CellsReader) rowHeader(buf []byte) (done bool, err error) {
	if len(buf) < 4 {
		return false, fmt.Errorf("worksheet: BrtRowHdr record too short (%d bytes)", len(buf))
	}
	row := binary.LittleEndian.Uint32(buf[0:4])
	if row > maxRow {
		return true, nil
	}
	cr.row = row
	return false, nil
}

// rkValue decodes a BrtCellRk payload (MS-XLSB §2.5.122): bit 0 of the
// packed dword divides by 100, bit 1 selects integer vs truncated-double
// encoding.
func (cr *CellsReader) rkValue(buf []byte) Value {
	raw := int32(binary.LittleEndian.Uint32(buf[8:12]))
	d100 := raw&0x01 != 0
	isInt := raw&0x02 != 0

	if isInt {
		iv := int64(raw >> 2)
		if !d100 {
			return Value{Kind: KindInt, Int: iv}
		}
		return cr.classify(float64(iv)/100, buf)
	}
	hi := uint32(raw) & 0xFFFFFFFC
	f := math.Float64frombits(uint64(hi) << 32)
	if d100 {
		f /= 100
	}
	return cr.classify(f, buf)
}

// classify wraps a float in a Value, promoting it to a date or duration
// when the cell's style reference names a date-classified format.
func (cr *CellsReader) classify(f float64, buf []byte) Value {
	style := styleRef(buf)
	if int(style) < len(cr.src.Formats) {
		switch cr.src.Formats[style] {
		case formats.DateTime:
			return Value{Kind: KindDateTime, Num: f}
		case formats.TimeDelta:
			return Value{Kind: KindDuration, Num: f}
		}
	}
	return Value{Kind: KindFloat, Num: f}
}

// decompile turns a cell's rgce into display text, routing PtgExp pointers
// through the shared-formula table.
func (cr *CellsReader) decompile(rgce []byte, row, col uint32) (string, error) {
	if len(rgce) >= 5 && rgce[0] == 0x01 {
		defRow := binary.LittleEndian.Uint32(rgce[1:5])
		if sf := cr.lookupShared(row, col, defRow); sf != nil {
			return formula.ShiftReferences(sf.text,
				int64(row)-int64(sf.defRow), int64(col)-int64(sf.defCol)), nil
		}
	}
	text, err := formula.Decode(rgce, cr.src.ExternSheets, cr.src.Names)
	if err != nil {
		return "", fmt.Errorf("worksheet: formula at row %d col %d: %w", row, col, err)
	}
	return text, nil
}

// registerShared decodes a BrtShrFmla payload: the RfX range it covers
// (four u32s) followed by the defining cell's rgce.
func (cr *CellsReader) registerShared(buf []byte) error {
	if len(buf) < 20 {
		return fmt.Errorf("worksheet: BrtShrFmla record too short (%d bytes)", len(buf))
	}
	cce := int(binary.LittleEndian.Uint32(buf[16:20]))
	if cce < 0 || len(buf) < 20+cce {
		return fmt.Errorf("worksheet: BrtShrFmla rgce length %d exceeds record", cce)
	}
	text, err := formula.Decode(buf[20:20+cce], cr.src.ExternSheets, cr.src.Names)
	if err != nil {
		return fmt.Errorf("worksheet: shared formula: %w", err)
	}
	cr.shared = append(cr.shared, sharedFormula{
		rowFirst: binary.LittleEndian.Uint32(buf[0:4]),
		rowLast:  binary.LittleEndian.Uint32(buf[4:8]),
		colFirst: binary.LittleEndian.Uint32(buf[8:12]),
		colLast:  binary.LittleEndian.Uint32(buf[12:16]),
		defRow:   cr.lastFormula.Row,
		defCol:   cr.lastFormula.Col,
		text:     text,
	})
	return nil
}

// lookupShared finds the shared entry covering (row, col), falling back to
// a match on the defining row carried by the PtgExp token.
func (cr *CellsReader) lookupShared(row, col, defRow uint32) *sharedFormula {
	for i := range cr.shared {
		sf := &cr.shared[i]
		if row >= sf.rowFirst && row <= sf.rowLast && col >= sf.colFirst && col <= sf.colLast {
			return sf
		}
	}
	for i := range cr.shared {
		if cr.shared[i].defRow == defRow {
			return &cr.shared[i]
		}
	}
	return nil
}

// styleRef extracts the 24-bit iStyleRef stored at bytes 4–6 of every cell
// payload (MS-XLSB §2.5.9).
func styleRef(buf []byte) uint32 {
	return uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16
}

func truncated(recID, n int) error {
	return fmt.Errorf("worksheet: record 0x%04X too short (%d bytes)", recID, n)
}

func orEOF(err error) error {
	if err != nil {
		return err
	}
	return io.EOF
}

func errorLiteral(code byte) (string, bool) {
	switch code {
	case 0x00:
		return "#NULL!", true
	case 0x07:
		return "#DIV/0!", true
	case 0x0F:
		return "#VALUE!", true
	case 0x17:
		return "#REF!", true
	case 0x1D:
		return "#NAME?", true
	case 0x24:
		return "#NUM!", true
	case 0x2A:
		return "#N/A", true
	case 0x2B:
		return "#GETTING_DATA", true
	}
	return "", false
}
