// Package formats classifies Excel number formats so that numeric cell
// values can be surfaced as dates, times, or durations instead of bare
// serial numbers.
package formats

import (
	"fmt"
	"io"

	"github.com/xuri/nfp"

	"github.com/TsubasaBE/go-xlsbin/biff12"
	"github.com/TsubasaBE/go-xlsbin/record"
)

// CellFormat is the classification of one number format.
type CellFormat uint8

const (
	// Other marks plain numeric, text, and currency formats.
	Other CellFormat = iota
	// DateTime marks date, time, and datetime formats; cell values are
	// serial days since the workbook epoch.
	DateTime
	// TimeDelta marks elapsed-time formats like [h]:mm:ss; cell values are
	// durations in serial days.
	TimeDelta
)

// Builtin classifies one of the reserved number-format IDs (ECMA-376
// §18.8.30).  IDs 14–22 are the built-in date and time formats, 45–47 the
// elapsed-time formats.
func Builtin(id uint16) CellFormat {
	switch {
	case id >= 14 && id <= 22:
		return DateTime
	case id >= 45 && id <= 47:
		return TimeDelta
	}
	return Other
}

// Detect classifies a custom number-format string by tokenizing it and
// scanning the first (positive) section: an elapsed token such as [h] or
// [mm] makes it a duration, any other date/time token makes it a datetime.
// Quoted literals and color/condition brackets never count.
func Detect(code string) CellFormat {
	ps := nfp.NumberFormatParser()
	sections := ps.Parse(code)
	if len(sections) == 0 {
		return Other
	}
	result := Other
	for _, tok := range sections[0].Items {
		switch tok.TType {
		case nfp.TokenTypeElapsedDateTimes:
			return TimeDelta
		case nfp.TokenTypeDateTimes:
			result = DateTime
		}
	}
	return result
}

// ReadStyles parses an xl/styles.bin record stream and returns one
// CellFormat per cell XF, in table order.  A cell's 24-bit style reference
// indexes this slice.
//
// Only the BrtBeginFmts and BrtBeginCellXFs sections matter: the former
// yields custom format codes keyed by format ID, the latter binds each XF
// to a format ID (BrtXF stores it at bytes 2–3).  BrtBeginCellXFs always
// follows BrtBeginFmts, so parsing stops there.
func ReadStyles(r io.Reader) ([]CellFormat, error) {
	rdr := record.NewReader(r)
	numberFormats := make(map[uint16]CellFormat)

	for {
		recID, err := rdr.ReadType()
		if err == io.EOF {
			// No cell XF table; every style reference will fall back to Other.
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("formats: %w", err)
		}

		switch recID {
		case biff12.NumFmts:
			data, err := rdr.FillBuffer()
			if err != nil {
				return nil, fmt.Errorf("formats: %w", err)
			}
			count, err := sectionCount(data)
			if err != nil {
				return nil, err
			}
			for k := 0; k < count; k++ {
				data, err := rdr.NextSkipBlocks(biff12.NumFmt, nil)
				if err != nil {
					return nil, fmt.Errorf("formats: %w", err)
				}
				if len(data) < 2 {
					return nil, fmt.Errorf("formats: BrtFmt record too short (%d bytes)", len(data))
				}
				fmtID := uint16(data[0]) | uint16(data[1])<<8
				code, err := record.NewRecordReader(data[2:]).ReadString()
				if err != nil {
					return nil, fmt.Errorf("formats: BrtFmt code: %w", err)
				}
				numberFormats[fmtID] = Detect(code)
			}

		case biff12.CellXfs:
			data, err := rdr.FillBuffer()
			if err != nil {
				return nil, fmt.Errorf("formats: %w", err)
			}
			count, err := sectionCount(data)
			if err != nil {
				return nil, err
			}
			out := make([]CellFormat, 0, count)
			for k := 0; k < count; k++ {
				data, err := rdr.NextSkipBlocks(biff12.Xf, nil)
				if err != nil {
					return nil, fmt.Errorf("formats: %w", err)
				}
				if len(data) < 4 {
					return nil, fmt.Errorf("formats: BrtXF record too short (%d bytes)", len(data))
				}
				fmtID := uint16(data[2]) | uint16(data[3])<<8
				switch cf := Builtin(fmtID); cf {
				case DateTime, TimeDelta:
					out = append(out, cf)
				default:
					out = append(out, numberFormats[fmtID])
				}
			}
			return out, nil

		default:
			if _, err := rdr.FillBuffer(); err != nil {
				return nil, fmt.Errorf("formats: %w", err)
			}
		}
	}
}

func sectionCount(data []byte) (int, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("formats: section header too short (%d bytes)", len(data))
	}
	n := int(uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24)
	const maxEntries = 1 << 20
	if n < 0 || n > maxEntries {
		return 0, fmt.Errorf("formats: implausible entry count %d", n)
	}
	return n, nil
}
