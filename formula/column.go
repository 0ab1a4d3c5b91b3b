package formula

import (
	"errors"
)

// Sheet bounds (MS-XLSB §2.2.1): rows 0–1048575, columns 0–16383.
const (
	maxRowCount = 1048576
	maxColCount = 16384
)

// appendColumn appends the A1-style letters for the 0-based column index.
func appendColumn(buf []byte, col uint32) []byte {
	start := len(buf)
	n := col + 1
	for n > 0 {
		buf = append(buf, byte((n-1)%26+'A'))
		n = (n - 1) / 26
	}
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}

// ColumnName returns the A1-style letters for the 0-based column index
// ("A" for 0, "XFD" for 16383).
func ColumnName(col uint32) string {
	return string(appendColumn(nil, col))
}

// ShiftReferences rewrites every relative reference in an A1-notation
// formula by the given row and column deltas, leaving absolute ($-anchored)
// parts in place.  It is used to re-target a shared formula from its
// defining cell onto a dependent cell.
//
// The formula text is scanned for runs of alphanumerics, '$', and ':'
// outside quoted strings; each run that parses as a cell, row, column, or
// range reference is shifted, and every other run (function names, defined
// names, quoted text) is copied through unchanged.
func ShiftReferences(s string, rowDelta, colDelta int64) string {
	src := []byte(s)
	res := make([]byte, 0, len(src)+8)
	inQuote := false
	tokenStart, tokenEnd := 0, 0

	flush := func() {
		if tokenStart >= tokenEnd {
			return
		}
		token := src[tokenStart:tokenEnd]
		shifted, err := offsetRange(token, rowDelta, colDelta, res)
		if err != nil {
			res = append(res, token...)
			return
		}
		res = shifted
	}

	for i, c := range src {
		if !inQuote && (isAlnum(c) || c == '$' || c == ':') {
			tokenEnd = i + 1
			continue
		}
		flush()
		res = append(res, c)
		tokenStart, tokenEnd = i+1, i+1
		if c == '"' {
			inQuote = !inQuote
		}
	}
	flush()
	return string(res)
}

var errBadRef = errors.New("formula: not a cell reference")

type refKind uint8

const (
	refCell refKind = iota
	refCol
	refRow
)

// reference is one parsed A1-notation reference: a cell ("B2", "$B$2"), a
// whole column ("E", "$E"), or a whole row ("5", "$5").  row and col are
// 0-based.
type reference struct {
	kind   refKind
	row    uint32
	col    uint32
	absRow bool
	absCol bool
}

// offsetRange parses a single reference or a colon-separated range, shifts
// its relative coordinates, and appends the rewritten text to buf.
func offsetRange(token []byte, rowDelta, colDelta int64, buf []byte) ([]byte, error) {
	colon := -1
	for i, c := range token {
		if c == ':' {
			colon = i
			break
		}
	}

	if colon < 0 {
		ref, err := parseRef(token)
		if err != nil {
			return nil, err
		}
		if ref.kind != refCell {
			// A bare column or row run ("E", "5") is almost always a name or
			// number, not a reference; only shift them inside ranges.
			return nil, errBadRef
		}
		ref, err = ref.offset(rowDelta, colDelta)
		if err != nil {
			return nil, err
		}
		return ref.format(buf), nil
	}

	start, err := parseRef(token[:colon])
	if err != nil {
		return nil, err
	}
	end, err := parseRef(token[colon+1:])
	if err != nil {
		return nil, err
	}
	if start.kind != end.kind {
		return nil, errBadRef
	}
	start, err = start.offset(rowDelta, colDelta)
	if err != nil {
		return nil, err
	}
	end, err = end.offset(rowDelta, colDelta)
	if err != nil {
		return nil, err
	}
	buf = start.format(buf)
	buf = append(buf, ':')
	return end.format(buf), nil
}

// parseRef parses "A1", "$A1", "A$1", "$A$1", "E", "$E", "5", or "$5".
func parseRef(name []byte) (reference, error) {
	var col, row uint32
	var absCol, absRow bool
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '$':
			var next byte
			if i+1 < len(name) {
				next = name[i+1]
			}
			switch {
			case isAlpha(next):
				if row > 0 || col > 0 {
					return reference{}, errBadRef
				}
				absCol = true
			case next >= '0' && next <= '9':
				if row > 0 {
					return reference{}, errBadRef
				}
				absRow = true
			default:
				return reference{}, errBadRef
			}
		case isAlpha(c):
			if row > 0 {
				return reference{}, errBadRef
			}
			col = col*26 + uint32((c&^0x20)-'A') + 1
		case c >= '0' && c <= '9':
			row = row*10 + uint32(c-'0')
		default:
			return reference{}, errBadRef
		}
	}

	var ref reference
	switch {
	case col > 0 && row > 0:
		ref = reference{kind: refCell, row: row - 1, col: col - 1, absRow: absRow, absCol: absCol}
	case col > 0:
		ref = reference{kind: refCol, col: col - 1, absCol: absCol}
	case row > 0:
		ref = reference{kind: refRow, row: row - 1, absRow: absRow}
	default:
		return reference{}, errBadRef
	}
	if err := ref.validate(); err != nil {
		return reference{}, err
	}
	return ref, nil
}

// offset shifts the relative coordinates, failing when the result leaves
// the sheet.
func (r reference) offset(rowDelta, colDelta int64) (reference, error) {
	if !r.absRow && r.kind != refCol {
		nr := int64(r.row) + rowDelta
		if nr < 0 {
			return reference{}, errBadRef
		}
		r.row = uint32(nr)
	}
	if !r.absCol && r.kind != refRow {
		nc := int64(r.col) + colDelta
		if nc < 0 {
			return reference{}, errBadRef
		}
		r.col = uint32(nc)
	}
	if err := r.validate(); err != nil {
		return reference{}, err
	}
	return r, nil
}

func (r reference) validate() error {
	if r.kind != refRow && r.col >= maxColCount {
		return errBadRef
	}
	if r.kind != refCol && r.row >= maxRowCount {
		return errBadRef
	}
	return nil
}

func (r reference) format(buf []byte) []byte {
	if r.kind != refRow {
		if r.absCol {
			buf = append(buf, '$')
		}
		buf = appendColumn(buf, r.col)
	}
	if r.kind != refCol {
		if r.absRow {
			buf = append(buf, '$')
		}
		buf = appendRow(buf, r.row)
	}
	return buf
}

func appendRow(buf []byte, row uint32) []byte {
	n := uint64(row) + 1
	start := len(buf)
	for n > 0 {
		buf = append(buf, byte(n%10+'0'))
		n /= 10
	}
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}

func isAlpha(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z'
}

func isAlnum(c byte) bool {
	return isAlpha(c) || c >= '0' && c <= '9'
}
