// Package stringtable parses the xl/sharedStrings.bin part of an .xlsb file
// and provides indexed access to the shared string values.
package stringtable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/TsubasaBE/go-xlsbin/biff12"
	"github.com/TsubasaBE/go-xlsbin/record"
)

// StringTable holds the shared strings parsed from xl/sharedStrings.bin.
type StringTable struct {
	strings []string
}

// New reads all shared string entries from r and returns a populated
// StringTable.  r must be positioned at the start of the sharedStrings.bin
// record stream.
//
// The BrtBeginSst payload carries the total and unique string counts; the
// unique count (bytes 4–7) is the number of BrtSSTItem records that follow.
// Future-record blocks between items are skipped.
func New(r io.Reader) (*StringTable, error) {
	rdr := record.NewReader(r)

	data, err := rdr.NextSkipBlocks(biff12.Sst, nil)
	if err != nil {
		return nil, fmt.Errorf("stringtable: %w", err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("stringtable: BrtBeginSst record too short (%d bytes)", len(data))
	}
	count := int(binary.LittleEndian.Uint32(data[4:8]))
	const maxStrings = 1 << 26
	if count < 0 || count > maxStrings {
		return nil, fmt.Errorf("stringtable: implausible string count %d", count)
	}

	frt := []record.Block{{Begin: biff12.FRTBegin, End: biff12.FRTEnd}}
	st := &StringTable{strings: make([]string, 0, min(count, 1<<16))}
	for k := 0; k < count; k++ {
		data, err := rdr.NextSkipBlocks(biff12.Si, frt)
		if err != nil {
			return nil, fmt.Errorf("stringtable: %w", err)
		}
		s, err := parseSI(data)
		if err != nil {
			// Treat a malformed item as empty rather than aborting the table.
			s = ""
		}
		st.strings = append(st.strings, s)
	}
	return st, nil
}

// Get returns the shared string at index idx.  It panics if idx is out of
// range, matching the behaviour of a slice index; callers resolving
// untrusted indices should check Len first.
func (st *StringTable) Get(idx int) string {
	return st.strings[idx]
}

// Len returns the total number of shared strings loaded.
func (st *StringTable) Len() int {
	return len(st.strings)
}

// parseSI decodes a single BrtSSTItem record payload: one flag byte (rich
// text and phonetic markers) followed by a wide string.
func parseSI(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	rr := record.NewRecordReader(data)
	if err := rr.Skip(1); err != nil {
		return "", nil
	}
	s, err := rr.ReadString()
	if err != nil {
		return "", fmt.Errorf("parseSI: %w", err)
	}
	return s, nil
}

// NewFromBytes is a convenience wrapper that builds a StringTable from an
// in-memory byte slice (useful in tests).
func NewFromBytes(b []byte) (*StringTable, error) {
	return New(bytes.NewReader(b))
}
