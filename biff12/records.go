// Package biff12 contains the BIFF12 record-type constants used in the .xlsb
// format (Office Open XML Binary format).
package biff12

// Record IDs are encoded in the binary stream as one or two bytes: the low
// seven bits of each byte carry value, and the high bit of the first byte
// signals that a second byte follows.  The constants below are the decoded
// IDs (the seven-bit payloads combined, NOT the raw little-endian bytes)
// and match the record enumeration in MS-XLSB §2.3.
const (
	// ── Workbook records ──────────────────────────────────────────────────────
	DefinedName  = 0x0027 // BrtName
	FileVersion  = 0x0080 // BrtFileVersion
	Workbook     = 0x0083 // BrtBeginBook
	WorkbookEnd  = 0x0084 // BrtEndBook
	BookViews    = 0x0087
	BookViewsEnd = 0x0088
	Sheets       = 0x008F // BrtBeginBundleShs
	SheetsEnd    = 0x0090 // BrtEndBundleShs
	WebOpt       = 0x009A
	FileRecover  = 0x009B
	WorkbookPr   = 0x0099 // BrtWbProp
	Sheet        = 0x009C // BrtBundleSh
	CalcPr       = 0x009D // BrtCalcProp
	WorkbookView = 0x009E
	UserBookView = 0x018D
	WbFactoid    = 0x0180
	OleSize      = 0x0225
	FnGroup      = 0x0229
	BookProtect  = 0x0252
	ExternalRefs = 0x0161 // BrtBeginExternals
	ExternalsEnd = 0x0162 // BrtEndExternals
	ExternalRef  = 0x0163 // BrtSupBookSrc
	ExternSheet  = 0x016A // BrtExternSheet

	// ── Worksheet records ─────────────────────────────────────────────────────
	Row            = 0x0000 // BrtRowHdr
	Blank          = 0x0001 // BrtCellBlank
	Num            = 0x0002 // BrtCellRk
	BoolErr        = 0x0003 // BrtCellError
	Bool           = 0x0004 // BrtCellBool
	Float          = 0x0005 // BrtCellReal
	InlineStr      = 0x0006 // BrtCellSt
	String         = 0x0007 // BrtCellIsst
	FormulaString  = 0x0008 // BrtFmlaString
	FormulaFloat   = 0x0009 // BrtFmlaNum
	FormulaBool    = 0x000A // BrtFmlaBool
	FormulaBoolErr = 0x000B // BrtFmlaError
	ShrFmla        = 0x01AA // BrtShrFmla
	Col            = 0x003C // BrtColInfo
	Worksheet      = 0x0081 // BrtBeginSheet
	WorksheetEnd   = 0x0082 // BrtEndSheet
	SheetViews     = 0x0085 // BrtBeginWsViews
	SheetViewsEnd  = 0x0086 // BrtEndWsViews
	SheetView      = 0x0089
	SheetViewEnd   = 0x008A
	SheetData      = 0x0091 // BrtBeginSheetData
	SheetDataEnd   = 0x0092 // BrtEndSheetData
	SheetPr        = 0x0093 // BrtWsProp
	Dimension      = 0x0094 // BrtWsDim
	Selection      = 0x0098 // BrtSel
	Cols           = 0x0186 // BrtBeginColInfos
	ColsEnd        = 0x0187 // BrtEndColInfos
	SheetFormatPr  = 0x01E5 // BrtWsFmtInfo
	Hyperlink      = 0x01EE // BrtHLink
	ACBegin        = 0x0025 // BrtACBegin (alternate-content block)
	ACEnd          = 0x0026 // BrtACEnd

	// ── SharedStrings records ─────────────────────────────────────────────────
	Si       = 0x0013 // BrtSSTItem
	Sst      = 0x009F // BrtBeginSst
	SstEnd   = 0x00A0 // BrtEndSst
	FRTBegin = 0x0023 // BrtFRTBegin (future-record block)
	FRTEnd   = 0x0024 // BrtFRTEnd

	// ── Styles records ────────────────────────────────────────────────────────
	NumFmt          = 0x002C // BrtFmt
	Font            = 0x002B
	Fill            = 0x002D
	Border          = 0x002E
	Xf              = 0x002F // BrtXF
	CellStyle       = 0x0030
	StyleSheet      = 0x0116 // BrtBeginStyleSheet
	StyleSheetEnd   = 0x0117 // BrtEndStyleSheet
	NumFmts         = 0x0267 // BrtBeginFmts
	NumFmtsEnd      = 0x0268 // BrtEndFmts
	Fills           = 0x025B
	FillsEnd        = 0x025C
	Fonts           = 0x0263
	FontsEnd        = 0x0264
	Borders         = 0x0265
	BordersEnd      = 0x0266
	CellXfs         = 0x0269 // BrtBeginCellXFs
	CellXfsEnd      = 0x026A // BrtEndCellXFs
	CellStyles      = 0x026B
	CellStylesEnd   = 0x026C
	CellStyleXfs    = 0x0272 // BrtBeginCellStyleXFs
	CellStyleXfsEnd = 0x0273

	// ── Table / filter records ────────────────────────────────────────────────
	MergeCell     = 0x00B0
	MergeCells    = 0x00B1
	MergeCellsEnd = 0x00B2

	AutoFilter      = 0x00A1
	AutoFilterEnd   = 0x00A2
	FilterColumn    = 0x00A3
	FilterColumnEnd = 0x00A4
	Filters         = 0x00A5
	FiltersEnd      = 0x00A6
	Filter          = 0x00A7
)
