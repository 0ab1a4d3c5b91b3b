// Package formula decompiles BIFF12 formula bytecode (CellParsedFormula,
// MS-XLSB §2.5.97) into Excel A1-notation display text.
package formula

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/TsubasaBE/go-xlsbin/record"
)

// ErrStackLen is returned when a token stream finishes with anything other
// than exactly one operand on the stack, or underflows it mid-stream.  Both
// conditions mean the bytecode is malformed or was truncated.
var ErrStackLen = errors.New("formula: unbalanced operand stack")

// Placeholder emitted for references into external workbooks, which cannot
// be resolved without the supporting-link book.
const externalWorkbookName = "EXTERNAL_WB_NAME"

// Decode translates the rgce token stream of a formula into its display
// string.  sheets is the extern-sheet name table indexed by ixti; names is
// the defined-name table in declaration order (PtgName indices are 1-based
// into it).
//
// The decompiler works on byte offsets into the output string rather than an
// AST: each operand pushes the offset where its text begins, and operators
// splice text around the spans on top of the stack.  Malformed bytecode is
// reported as an error, never a panic.
func Decode(rgce []byte, sheets []string, names []string) (string, error) {
	if len(rgce) == 0 {
		return "", nil
	}
	d := &decoder{
		rgce:   rgce,
		sheets: sheets,
		names:  names,
		out:    make([]byte, 0, len(rgce)),
	}
	if err := d.run(); err != nil {
		return "", err
	}
	if len(d.stack) != 1 {
		return "", ErrStackLen
	}
	return string(d.out), nil
}

type decoder struct {
	rgce   []byte
	sheets []string
	names  []string
	out    []byte
	stack  []int
}

// ── stack and output helpers ──────────────────────────────────────────────────

func (d *decoder) push() {
	d.stack = append(d.stack, len(d.out))
}

func (d *decoder) pop() (int, error) {
	if len(d.stack) == 0 {
		return 0, ErrStackLen
	}
	e := d.stack[len(d.stack)-1]
	d.stack = d.stack[:len(d.stack)-1]
	return e, nil
}

func (d *decoder) top() (int, error) {
	if len(d.stack) == 0 {
		return 0, ErrStackLen
	}
	return d.stack[len(d.stack)-1], nil
}

// splitOff removes and returns the output text from offset at onward.
func (d *decoder) splitOff(at int) []byte {
	tail := append([]byte(nil), d.out[at:]...)
	d.out = d.out[:at]
	return tail
}

// insert places s into the output at offset at.
func (d *decoder) insert(at int, s string) {
	d.out = append(d.out, make([]byte, len(s))...)
	copy(d.out[at+len(s):], d.out[at:])
	copy(d.out[at:], s)
}

func (d *decoder) str(s string) {
	d.out = append(d.out, s...)
}

// ── operand reads ─────────────────────────────────────────────────────────────

// take consumes n operand bytes following token ptg.
func (d *decoder) take(n int, ptg byte) ([]byte, error) {
	if len(d.rgce) < n {
		return nil, fmt.Errorf("formula: truncated operand for token 0x%02X", ptg)
	}
	b := d.rgce[:n]
	d.rgce = d.rgce[n:]
	return b, nil
}

func (d *decoder) sheetName(ixti uint16) (string, error) {
	if int(ixti) >= len(d.sheets) {
		return "", fmt.Errorf("formula: extern sheet index %d out of range (%d sheets)", ixti, len(d.sheets))
	}
	return d.sheets[ixti], nil
}

// ── main loop ─────────────────────────────────────────────────────────────────

func (d *decoder) run() error {
	for len(d.rgce) > 0 {
		ptg := d.rgce[0]
		d.rgce = d.rgce[1:]
		if err := d.token(ptg); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) token(ptg byte) error {
	switch ptg {
	case 0x01: // PtgExp: array/shared formula, resolved by the caller
		if _, err := d.take(4, ptg); err != nil {
			return err
		}
		d.push()

	case 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A,
		0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10, 0x11:
		// binary operation: splice the operator before the right operand;
		// the left operand's span start already marks the whole result.
		at, err := d.pop()
		if err != nil {
			return err
		}
		if at > len(d.out) {
			return ErrStackLen
		}
		right := d.splitOff(at)
		d.str(binaryOp(ptg))
		d.out = append(d.out, right...)

	case 0x12: // PtgUplus
		at, err := d.top()
		if err != nil {
			return err
		}
		d.insert(at, "+")

	case 0x13: // PtgUminus
		at, err := d.top()
		if err != nil {
			return err
		}
		d.insert(at, "-")

	case 0x14: // PtgPercent
		d.str("%")

	case 0x15: // PtgParen
		at, err := d.top()
		if err != nil {
			return err
		}
		d.insert(at, "(")
		d.str(")")

	case 0x16: // PtgMissArg
		d.push()

	case 0x17: // PtgStr
		b, err := d.take(2, ptg)
		if err != nil {
			return err
		}
		cch := int(binary.LittleEndian.Uint16(b))
		raw, err := d.take(2*cch, ptg)
		if err != nil {
			return err
		}
		d.push()
		d.str("\"")
		d.str(record.DecodeUTF16LE(raw))
		d.str("\"")

	case 0x18: // PtgElf*
		b, err := d.take(1, ptg)
		if err != nil {
			return err
		}
		d.push()
		switch b[0] {
		case 0x19:
			_, err = d.take(12, ptg)
		case 0x1D:
			_, err = d.take(4, ptg)
		default:
			return fmt.Errorf("formula: unknown extended token 0x%02X", b[0])
		}
		if err != nil {
			return err
		}

	case 0x19: // PtgAttr*
		b, err := d.take(1, ptg)
		if err != nil {
			return err
		}
		switch eptg := b[0]; eptg {
		case 0x01, 0x02, 0x08, 0x20, 0x21, 0x40, 0x41, 0x80:
			_, err = d.take(2, ptg)
		case 0x04: // PtgAttrChoose
			_, err = d.take(10, ptg)
		case 0x10: // PtgAttrSum: the SUM() shorthand
			if _, err = d.take(2, ptg); err != nil {
				return err
			}
			at, terr := d.top()
			if terr != nil {
				return terr
			}
			arg := d.splitOff(at)
			d.str("SUM(")
			d.out = append(d.out, arg...)
			d.str(")")
		default:
			return fmt.Errorf("formula: unknown attr token 0x%02X", eptg)
		}
		if err != nil {
			return err
		}

	case 0x1C: // PtgErr
		b, err := d.take(1, ptg)
		if err != nil {
			return err
		}
		text, ok := errorText(b[0])
		if !ok {
			return fmt.Errorf("formula: unknown error literal 0x%02X", b[0])
		}
		d.push()
		d.str(text)

	case 0x1D: // PtgBool
		b, err := d.take(1, ptg)
		if err != nil {
			return err
		}
		d.push()
		if b[0] == 0 {
			d.str("FALSE")
		} else {
			d.str("TRUE")
		}

	case 0x1E: // PtgInt
		b, err := d.take(2, ptg)
		if err != nil {
			return err
		}
		d.push()
		d.str(strconv.FormatUint(uint64(binary.LittleEndian.Uint16(b)), 10))

	case 0x1F: // PtgNum
		b, err := d.take(8, ptg)
		if err != nil {
			return err
		}
		d.push()
		v := math.Float64frombits(binary.LittleEndian.Uint64(b))
		d.str(strconv.FormatFloat(v, 'g', -1, 64))

	case 0x20, 0x40, 0x60: // PtgArray: the literal lives in rgcb, not here
		if _, err := d.take(14, ptg); err != nil {
			return err
		}
		d.push()

	case 0x21, 0x41, 0x61: // PtgFunc
		b, err := d.take(2, ptg)
		if err != nil {
			return err
		}
		iftab := int(binary.LittleEndian.Uint16(b))
		name, argc, err := lookupFn(iftab)
		if err != nil {
			return err
		}
		return d.applyFunc(name, argc)

	case 0x22, 0x42, 0x62: // PtgFuncVar
		b, err := d.take(3, ptg)
		if err != nil {
			return err
		}
		argc := int(b[0])
		iftab := int(binary.LittleEndian.Uint16(b[1:]))
		name, _, err := lookupFn(iftab)
		if err != nil {
			return err
		}
		return d.applyFunc(name, argc)

	case 0x23, 0x43, 0x63: // PtgName (1-based index)
		b, err := d.take(4, ptg)
		if err != nil {
			return err
		}
		iname := binary.LittleEndian.Uint32(b)
		d.push()
		if iname >= 1 && int(iname) <= len(d.names) {
			d.str(d.names[iname-1])
		}

	case 0x24, 0x44, 0x64: // PtgRef
		b, err := d.take(6, ptg)
		if err != nil {
			return err
		}
		d.push()
		d.cellRef(b)

	case 0x25, 0x45, 0x65: // PtgArea
		b, err := d.take(12, ptg)
		if err != nil {
			return err
		}
		d.push()
		d.areaRef(
			binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint16(b[8:10]),
			binary.LittleEndian.Uint32(b[4:8]), binary.LittleEndian.Uint16(b[10:12]),
		)

	case 0x29, 0x49, 0x69: // PtgMemFunc: nested token stream
		b, err := d.take(2, ptg)
		if err != nil {
			return err
		}
		cce := int(binary.LittleEndian.Uint16(b))
		sub, err := d.take(cce, ptg)
		if err != nil {
			return err
		}
		f, err := Decode(sub, d.sheets, d.names)
		if err != nil {
			return err
		}
		d.push()
		d.str(f)

	case 0x2A, 0x4A, 0x6A: // PtgRefErr
		if _, err := d.take(6, ptg); err != nil {
			return err
		}
		d.push()
		d.str("#REF!")

	case 0x2B, 0x4B, 0x6B: // PtgAreaErr
		if _, err := d.take(12, ptg); err != nil {
			return err
		}
		d.push()
		d.str("#REF!")

	case 0x39, 0x59, 0x79: // PtgNameX: external workbook name
		if _, err := d.take(6, ptg); err != nil {
			return err
		}
		d.push()
		d.str(externalWorkbookName)

	case 0x3A, 0x5A, 0x7A: // PtgRef3d
		b, err := d.take(8, ptg)
		if err != nil {
			return err
		}
		sheet, err := d.sheetName(binary.LittleEndian.Uint16(b))
		if err != nil {
			return err
		}
		d.push()
		d.str(sheet)
		d.str("!$")
		d.column(uint32(binary.LittleEndian.Uint16(b[6:8])))
		d.str("$")
		d.str(strconv.FormatUint(uint64(binary.LittleEndian.Uint32(b[2:6]))+1, 10))

	case 0x3B, 0x5B, 0x7B: // PtgArea3d
		b, err := d.take(14, ptg)
		if err != nil {
			return err
		}
		sheet, err := d.sheetName(binary.LittleEndian.Uint16(b))
		if err != nil {
			return err
		}
		d.push()
		d.str(sheet)
		d.str("!")
		d.areaRef(
			binary.LittleEndian.Uint32(b[2:6]), binary.LittleEndian.Uint16(b[10:12]),
			binary.LittleEndian.Uint32(b[6:10]), binary.LittleEndian.Uint16(b[12:14]),
		)

	case 0x3C, 0x5C, 0x7C: // PtgRefErr3d
		b, err := d.take(8, ptg)
		if err != nil {
			return err
		}
		sheet, err := d.sheetName(binary.LittleEndian.Uint16(b))
		if err != nil {
			return err
		}
		d.push()
		d.str(sheet)
		d.str("!#REF!")

	case 0x3D, 0x5D, 0x7D: // PtgAreaErr3d
		b, err := d.take(14, ptg)
		if err != nil {
			return err
		}
		sheet, err := d.sheetName(binary.LittleEndian.Uint16(b))
		if err != nil {
			return err
		}
		d.push()
		d.str(sheet)
		d.str("!#REF!")

	default:
		return fmt.Errorf("formula: unknown token 0x%02X", ptg)
	}
	return nil
}

// cellRef renders a PtgRef operand: row u32 (0-based), then a 16-bit field
// whose low 14 bits are the column and whose top two bits flag relative
// column (0x80 in the high byte) and relative row (0x40).
func (d *decoder) cellRef(b []byte) {
	row := binary.LittleEndian.Uint32(b[0:4]) + 1
	col := uint32(b[4]) | uint32(b[5]&0x3F)<<8
	if b[5]&0x80 == 0 {
		d.str("$")
	}
	d.column(col)
	if b[5]&0x40 == 0 {
		d.str("$")
	}
	d.str(strconv.FormatUint(uint64(row), 10))
}

func (d *decoder) areaRef(rowFirst uint32, colFirst uint16, rowLast uint32, colLast uint16) {
	d.str("$")
	d.column(uint32(colFirst))
	d.str("$")
	d.str(strconv.FormatUint(uint64(rowFirst)+1, 10))
	d.str(":$")
	d.column(uint32(colLast))
	d.str("$")
	d.str(strconv.FormatUint(uint64(rowLast)+1, 10))
}

func (d *decoder) column(col uint32) {
	d.out = appendColumn(d.out, col)
}

// applyFunc wraps the top argc spans in name(arg1,arg2,...).
func (d *decoder) applyFunc(name string, argc int) error {
	if argc > len(d.stack) {
		return ErrStackLen
	}
	if argc == 0 {
		d.push()
		d.str(name)
		d.str("()")
		return nil
	}

	args := append([]int(nil), d.stack[len(d.stack)-argc:]...)
	d.stack = d.stack[:len(d.stack)-argc]
	start := args[0]
	if start > len(d.out) {
		return ErrStackLen
	}
	fargs := d.splitOff(start)
	for i := range args {
		args[i] -= start
	}
	args = append(args, len(fargs))

	d.push()
	d.str(name)
	d.str("(")
	for i := 0; i < argc; i++ {
		if args[i] > args[i+1] || args[i+1] > len(fargs) {
			return ErrStackLen
		}
		d.out = append(d.out, fargs[args[i]:args[i+1]]...)
		if i < argc-1 {
			d.str(",")
		}
	}
	d.str(")")
	return nil
}

func lookupFn(iftab int) (string, int, error) {
	if iftab >= len(ftab) || ftab[iftab].name == "" {
		return "", 0, fmt.Errorf("formula: unknown function index %d", iftab)
	}
	return ftab[iftab].name, int(ftab[iftab].argc), nil
}

func binaryOp(ptg byte) string {
	switch ptg {
	case 0x03:
		return "+"
	case 0x04:
		return "-"
	case 0x05:
		return "*"
	case 0x06:
		return "/"
	case 0x07:
		return "^"
	case 0x08:
		return "&"
	case 0x09:
		return "<"
	case 0x0A:
		return "<="
	case 0x0B:
		return "="
	case 0x0C:
		return ">"
	case 0x0D:
		return ">="
	case 0x0E:
		return "<>"
	case 0x0F:
		return " "
	case 0x10:
		return ","
	default: // 0x11
		return ":"
	}
}

func errorText(code byte) (string, bool) {
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
