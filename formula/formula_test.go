package formula

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// rgce assembly helpers

func ptgInt(v uint16) []byte {
	b := []byte{0x1E, 0, 0}
	binary.LittleEndian.PutUint16(b[1:], v)
	return b
}

func ptgNum(v float64) []byte {
	b := make([]byte, 9)
	b[0] = 0x1F
	binary.LittleEndian.PutUint64(b[1:], math.Float64bits(v))
	return b
}

func ptgStr(s string) []byte {
	runes := []rune(s)
	b := []byte{0x17, 0, 0}
	binary.LittleEndian.PutUint16(b[1:], uint16(len(runes)))
	for _, r := range runes {
		var u [2]byte
		binary.LittleEndian.PutUint16(u[:], uint16(r))
		b = append(b, u[:]...)
	}
	return b
}

// ptgRef encodes a PtgRef token.  row and col are 0-based; relRow and
// relCol set the relative-reference flags.
func ptgRef(row uint32, col uint16, relRow, relCol bool) []byte {
	b := make([]byte, 7)
	b[0] = 0x44
	binary.LittleEndian.PutUint32(b[1:], row)
	v := col & 0x3FFF
	if relCol {
		v |= 0x8000
	}
	if relRow {
		v |= 0x4000
	}
	binary.LittleEndian.PutUint16(b[5:], v)
	return b
}

func ptgArea(rowFirst, rowLast uint32, colFirst, colLast uint16) []byte {
	b := make([]byte, 13)
	b[0] = 0x45
	binary.LittleEndian.PutUint32(b[1:], rowFirst)
	binary.LittleEndian.PutUint32(b[5:], rowLast)
	binary.LittleEndian.PutUint16(b[9:], colFirst)
	binary.LittleEndian.PutUint16(b[11:], colLast)
	return b
}

func ptgFunc(iftab uint16) []byte {
	b := []byte{0x41, 0, 0}
	binary.LittleEndian.PutUint16(b[1:], iftab)
	return b
}

func ptgFuncVar(argc byte, iftab uint16) []byte {
	b := []byte{0x42, argc, 0, 0}
	binary.LittleEndian.PutUint16(b[2:], iftab)
	return b
}

func cat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		rgce   []byte
		sheets []string
		names  []string
		want   string
	}{
		{
			name: "integer literal",
			rgce: ptgInt(42),
			want: "42",
		},
		{
			name: "float literal",
			rgce: ptgNum(2.5),
			want: "2.5",
		},
		{
			name: "string literal",
			rgce: ptgStr("héllo"),
			want: `"héllo"`,
		},
		{
			name: "boolean",
			rgce: []byte{0x1D, 0x01},
			want: "TRUE",
		},
		{
			name: "error literal",
			rgce: []byte{0x1C, 0x07},
			want: "#DIV/0!",
		},
		{
			name: "addition",
			rgce: cat(ptgInt(1), ptgInt(2), []byte{0x03}),
			want: "1+2",
		},
		{
			name: "operator order",
			rgce: cat(ptgInt(10), ptgInt(3), []byte{0x04}),
			want: "10-3",
		},
		{
			name: "unary minus",
			rgce: cat(ptgInt(5), []byte{0x13}),
			want: "-5",
		},
		{
			name: "percent",
			rgce: cat(ptgInt(50), []byte{0x14}),
			want: "50%",
		},
		{
			name: "parentheses",
			rgce: cat(ptgInt(1), ptgInt(2), []byte{0x03}, []byte{0x15}, ptgInt(3), []byte{0x05}),
			want: "(1+2)*3",
		},
		{
			name: "relative cell reference",
			rgce: ptgRef(1, 1, true, true),
			want: "B2",
		},
		{
			name: "absolute cell reference",
			rgce: ptgRef(0, 0, false, false),
			want: "$A$1",
		},
		{
			name: "mixed cell reference",
			rgce: ptgRef(9, 27, true, false),
			want: "$AB10",
		},
		{
			name: "area reference",
			rgce: ptgArea(0, 9, 0, 2),
			want: "$A$1:$C$10",
		},
		{
			name: "fixed-arity function",
			rgce: cat(ptgRef(0, 0, true, true), ptgFunc(24)), // ABS
			want: "ABS(A1)",
		},
		{
			name: "zero-arg function",
			rgce: ptgFunc(19), // PI
			want: "PI()",
		},
		{
			name: "variadic function",
			rgce: cat(ptgInt(1), ptgInt(2), ptgInt(3), ptgFuncVar(3, 4)), // SUM
			want: "SUM(1,2,3)",
		},
		{
			name: "nested function",
			rgce: cat(ptgRef(0, 0, true, true), ptgFunc(24), ptgInt(7), []byte{0x03}),
			want: "ABS(A1)+7",
		},
		{
			name: "attr sum shorthand",
			rgce: cat(ptgArea(0, 4, 0, 0), []byte{0x19, 0x10, 0x00, 0x00}),
			want: "SUM($A$1:$A$5)",
		},
		{
			name: "string concatenation",
			rgce: cat(ptgStr("a"), ptgStr("b"), []byte{0x08}),
			want: `"a"&"b"`,
		},
		{
			name:   "3D reference",
			rgce:   cat([]byte{0x5A, 0x01, 0x00}, le32(4), le16(2)),
			sheets: []string{"Alpha", "Beta"},
			want:   "Beta!$C$5",
		},
		{
			name:   "3D area",
			rgce:   cat([]byte{0x5B, 0x00, 0x00}, le32(0), le32(1), le16(0), le16(1)),
			sheets: []string{"Data"},
			want:   "Data!$A$1:$B$2",
		},
		{
			name:  "defined name",
			rgce:  cat([]byte{0x43}, le32(2)),
			names: []string{"First", "Second"},
			want:  "Second",
		},
		{
			name: "ref error",
			rgce: append(make([]byte, 0, 7), 0x4A, 0, 0, 0, 0, 0, 0),
			want: "#REF!",
		},
		{
			name:   "ref error 3D",
			rgce:   cat([]byte{0x5C, 0x00, 0x00}, le32(0), le16(0)),
			sheets: []string{"Gone"},
			want:   "Gone!#REF!",
		},
		{
			name: "external name placeholder",
			rgce: append(make([]byte, 0, 7), 0x59, 0, 0, 0, 0, 0, 0),
			want: "EXTERNAL_WB_NAME",
		},
		{
			name: "missing argument",
			rgce: cat(ptgInt(1), []byte{0x16}, ptgInt(3), ptgFuncVar(3, 1)), // IF
			want: "IF(1,,3)",
		},
		{
			name: "empty bytecode",
			rgce: nil,
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.rgce, tc.sheets, tc.names)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tc.want {
				t.Errorf("Decode = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		rgce []byte
	}{
		{"operator with one operand", cat(ptgInt(1), []byte{0x03})},
		{"two operands no operator", cat(ptgInt(1), ptgInt(2))},
		{"unknown token", []byte{0xFF}},
		{"truncated operand", []byte{0x1E, 0x01}},
		{"unknown function index", ptgFunc(999)},
		{"function argc underflow", ptgFuncVar(2, 4)},
		{"extern sheet out of range", cat([]byte{0x5A, 0x05, 0x00}, le32(0), le16(0))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.rgce, nil, nil); err == nil {
				t.Error("want error, got nil")
			}
		})
	}

	_, err := Decode(cat(ptgInt(1), ptgInt(2)), nil, nil)
	if !errors.Is(err, ErrStackLen) {
		t.Errorf("leftover operands: err = %v, want ErrStackLen", err)
	}
}

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
