// Package xlsbin provides a pure-Go reader for Microsoft Excel Binary
// Workbook (.xlsb) files.  No cgo is required.
//
// # Quick start
//
//	wb, err := xlsbin.Open("Book1.xlsb")
//	if err != nil { ... }
//	defer wb.Close()
//
//	fmt.Println(wb.Sheets()) // ["Sheet1", "Sheet2"]
//
//	cells, err := wb.CellsReader("Sheet1")
//	if err != nil { ... }
//
//	for {
//	    cell, err := cells.NextCell()
//	    if err != nil { ... }
//	    if cell == nil {
//	        break
//	    }
//	    fmt.Printf("(%d,%d) = %v\n", cell.Row, cell.Col, cell.Value)
//	}
//
// Cells stream in row-major order; empty cells are not reported.  A second
// pass with [worksheet.CellsReader.NextFormula] yields the decompiled A1
// formula text of every formula cell, shared formulas included.
//
// # Dates
//
// Excel stores dates as floating-point serial numbers.  Cells whose number
// format is a date or elapsed-time format come back with
// [worksheet.KindDateTime] or [worksheet.KindDuration]; the serial stays in
// Value.Num.  To get the underlying [time.Time] use [ConvertDateEx],
// passing wb.Date1904 so the correct date system is applied:
//
//	if cell.Value.Kind == worksheet.KindDateTime {
//	    t, err := xlsbin.ConvertDateEx(cell.Value.Num, wb.Date1904)
//	}
//
// [ConvertDate] is a convenience wrapper for the common 1900 date system
// (Date1904 == false).
//
// # Macros
//
// Macro-enabled workbooks embed a vbaProject.bin CFB container;
// [workbook.Workbook.VBAProject] parses it and exposes the decompressed
// source of each VBA module.
package xlsbin

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/TsubasaBE/go-xlsbin/workbook"
)

// Version is the current version of the go-xlsbin library.
const Version = "1.0.0"

// Open opens the named .xlsb file.  The caller must call Close on the
// returned Workbook when done.
func Open(name string) (*workbook.Workbook, error) {
	return workbook.Open(name)
}

// OpenReader reads an .xlsb workbook from an arbitrary [io.ReaderAt].
// size must equal the total byte length of the data.
func OpenReader(r io.ReaderAt, size int64) (*workbook.Workbook, error) {
	return workbook.OpenReader(r, size)
}

// ConvertDate converts an Excel date serial number to a [time.Time] value.
//
// Excel (and the BIFF12 format) represents dates as the number of days since
// 1900-01-00, with the fractional part representing the time of day.  Lotus
// 1-2-3 incorrectly treated 1900 as a leap year, so Excel perpetuates the
// bug: serial 60 is treated as 1900-02-29 (which never existed).  The three
// resulting branches:
//
//   - serial == 0  → midnight on 1900-01-01
//   - serial >= 61 → subtract one day to compensate for the phantom leap day
//   - 1 ≤ serial ≤ 60 → no compensation (serial 60 yields 1900-03-01)
//
// The fractional-day component is converted to whole seconds with
// half-second rounding so repeated conversions of the same serial are
// stable.
func ConvertDate(date float64) (time.Time, error) {
	if math.IsNaN(date) || math.IsInf(date, 0) {
		return time.Time{}, fmt.Errorf("xlsbin: ConvertDate: invalid value %v", date)
	}
	if date < 0 {
		return time.Time{}, fmt.Errorf("xlsbin: ConvertDate: negative serial %v not supported", date)
	}
	// Excel dates only reach serial 2,958,465 (9999-12-31).  The constant
	// below is the exclusive upper bound; values above it would overflow
	// time.Duration arithmetic (int64 nanoseconds).
	const maxSerial = 2_958_466
	if date > maxSerial {
		return time.Time{}, fmt.Errorf("xlsbin: ConvertDate: serial %v exceeds maximum supported value %d", date, maxSerial)
	}

	fracSec, dayRollover := serialToFracSec(date)

	base := time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	intPart := int(date) + dayRollover
	var t time.Time
	switch {
	case intPart == 0:
		t = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(fracSec) * time.Second)
	case intPart >= 61:
		t = base.Add(time.Duration(intPart-1)*24*time.Hour + time.Duration(fracSec)*time.Second)
	default:
		t = base.Add(time.Duration(intPart)*24*time.Hour + time.Duration(fracSec)*time.Second)
	}
	return t, nil
}

// ConvertDateEx converts an Excel date serial number to a [time.Time]
// value, respecting the workbook's date system.
//
// Pass wb.Date1904 as the date1904 argument. When date1904 is false the
// function is identical to [ConvertDate] (1900 date system). When date1904
// is true the workbook uses the 1904 date system:
//   - Serial 0 corresponds to 1904-01-01.
//   - Serials increase by one day per unit, with no phantom leap-day
//     correction (the Lotus 1-2-3 bug does not apply to the 1904 system).
func ConvertDateEx(date float64, date1904 bool) (time.Time, error) {
	if !date1904 {
		return ConvertDate(date)
	}
	if math.IsNaN(date) || math.IsInf(date, 0) {
		return time.Time{}, fmt.Errorf("xlsbin: ConvertDateEx: invalid value %v", date)
	}
	if date < 0 {
		return time.Time{}, fmt.Errorf("xlsbin: ConvertDateEx: negative serial %v not supported", date)
	}
	// Serial 0 = 1904-01-01, so the 1904 serials are offset by 1462 days
	// from the 1900 serials (4 years including one leap year, 1904 itself).
	// The maximum calendar day (9999-12-31) is the same in both systems.
	const maxSerial = 2_958_466 - 1462
	if date > maxSerial {
		return time.Time{}, fmt.Errorf("xlsbin: ConvertDateEx: serial %v exceeds maximum supported value %d", date, maxSerial)
	}

	fracSec, dayRollover := serialToFracSec(date)

	base := time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	intPart := int(date) + dayRollover
	t := base.Add(time.Duration(intPart)*24*time.Hour + time.Duration(fracSec)*time.Second)
	return t, nil
}

// serialToFracSec converts the fractional-day part of an Excel serial to a
// whole-second count within the day (0–86399), plus a day-rollover flag
// (0 or 1).
//
//   - add roundEpsilon (1e-9) to the fractional day to avoid floating-point
//     drift
//   - convert to nanoseconds and round to the nearest second (half-second
//     rule)
//   - when rounding pushes the result to exactly 86400 s (midnight), roll
//     over to the next day rather than clamping
func serialToFracSec(serial float64) (fracSec int64, dayRollover int) {
	const roundEpsilon = 1e-9
	fracDay := (serial - math.Trunc(serial)) + roundEpsilon
	const nanosInADay = float64(24 * 60 * 60 * 1e9)
	durNanos := time.Duration(fracDay * nanosInADay)
	ns := int(durNanos % time.Second)
	secs := int64(durNanos / time.Second)
	if ns > 500_000_000 {
		secs++
	}
	if secs < 0 {
		secs = 0
	}
	rollover := int(secs / 86400)
	secs = secs % 86400
	return secs, rollover
}
