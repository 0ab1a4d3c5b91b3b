package formula

// fn is one entry of the built-in function table (Ftab, MS-XLSB §2.5.97.10).
// argc is the parameter count consumed when the function is invoked through
// the fixed-arity PtgFunc token; variadic functions are always invoked
// through PtgFuncVar, which carries its own argument count, so their argc
// here records the minimum count only.
type fn struct {
	name string
	argc uint8
}

// ftab is indexed by the iftab field of PtgFunc / PtgFuncVar.  Entries with
// an empty name are indices the format reserves but never defines; dotted
// names are XLM macro-sheet functions, kept for completeness.
var ftab = [...]fn{
	{"COUNT", 1}, {"IF", 2}, {"ISNA", 1}, {"ISERROR", 1}, // 0–3
	{"SUM", 1}, {"AVERAGE", 1}, {"MIN", 1}, {"MAX", 1}, // 4–7
	{"ROW", 1}, {"COLUMN", 1}, {"NA", 0}, {"NPV", 2}, // 8–11
	{"STDEV", 1}, {"DOLLAR", 1}, {"FIXED", 2}, {"SIN", 1}, // 12–15
	{"COS", 1}, {"TAN", 1}, {"ATAN", 1}, {"PI", 0}, // 16–19
	{"SQRT", 1}, {"EXP", 1}, {"LN", 1}, {"LOG10", 1}, // 20–23
	{"ABS", 1}, {"INT", 1}, {"SIGN", 1}, {"ROUND", 2}, // 24–27
	{"LOOKUP", 2}, {"INDEX", 2}, {"REPT", 2}, {"MID", 3}, // 28–31
	{"LEN", 1}, {"VALUE", 1}, {"TRUE", 0}, {"FALSE", 0}, // 32–35
	{"AND", 1}, {"OR", 1}, {"NOT", 1}, {"MOD", 2}, // 36–39
	{"DCOUNT", 3}, {"DSUM", 3}, {"DAVERAGE", 3}, {"DMIN", 3}, // 40–43
	{"DMAX", 3}, {"DSTDEV", 3}, {"VAR", 1}, {"DVAR", 3}, // 44–47
	{"TEXT", 2}, {"LINEST", 1}, {"TREND", 1}, {"LOGEST", 1}, // 48–51
	{"GROWTH", 1}, {"GOTO", 1}, {"HALT", 0}, {"RETURN", 0}, // 52–55
	{"PV", 3}, {"FV", 3}, {"NPER", 3}, {"PMT", 3}, // 56–59
	{"RATE", 3}, {"MIRR", 3}, {"IRR", 1}, {"RAND", 0}, // 60–63
	{"MATCH", 2}, {"DATE", 3}, {"TIME", 3}, {"DAY", 1}, // 64–67
	{"MONTH", 1}, {"YEAR", 1}, {"WEEKDAY", 1}, {"HOUR", 1}, // 68–71
	{"MINUTE", 1}, {"SECOND", 1}, {"NOW", 0}, {"AREAS", 1}, // 72–75
	{"ROWS", 1}, {"COLUMNS", 1}, {"OFFSET", 3}, {"ABSREF", 2}, // 76–79
	{"RELREF", 2}, {"ARGUMENT", 0}, {"SEARCH", 2}, {"TRANSPOSE", 1}, // 80–83
	{"ERROR", 0}, {"STEP", 0}, {"TYPE", 1}, {"ECHO", 0}, // 84–87
	{"SET.NAME", 1}, {"CALLER", 0}, {"DEREF", 1}, {"WINDOWS", 0}, // 88–91
	{"SERIES", 4}, {"DOCUMENTS", 0}, {"ACTIVE.CELL", 0}, {"SELECTION", 0}, // 92–95
	{"RESULT", 0}, {"ATAN2", 2}, {"ASIN", 1}, {"ACOS", 1}, // 96–99
	{"CHOOSE", 2}, {"HLOOKUP", 3}, {"VLOOKUP", 3}, {"LINKS", 0}, // 100–103
	{"INPUT", 1}, {"ISREF", 1}, {"GET.FORMULA", 1}, {"GET.NAME", 1}, // 104–107
	{"SET.VALUE", 2}, {"LOG", 1}, {"EXEC", 1}, {"CHAR", 1}, // 108–111
	{"LOWER", 1}, {"UPPER", 1}, {"PROPER", 1}, {"LEFT", 1}, // 112–115
	{"RIGHT", 1}, {"EXACT", 2}, {"TRIM", 1}, {"REPLACE", 4}, // 116–119
	{"SUBSTITUTE", 3}, {"CODE", 1}, {"NAMES", 0}, {"DIRECTORY", 0}, // 120–123
	{"FIND", 2}, {"CELL", 1}, {"ISERR", 1}, {"ISTEXT", 1}, // 124–127
	{"ISNUMBER", 1}, {"ISBLANK", 1}, {"T", 1}, {"N", 1}, // 128–131
	{"FOPEN", 1}, {"FCLOSE", 1}, {"FSIZE", 1}, {"FREADLN", 1}, // 132–135
	{"FREAD", 2}, {"FWRITELN", 2}, {"FWRITE", 2}, {"FPOS", 1}, // 136–139
	{"DATEVALUE", 1}, {"TIMEVALUE", 1}, {"SLN", 3}, {"SYD", 4}, // 140–143
	{"DDB", 4}, {"GET.DEF", 1}, {"REFTEXT", 1}, {"TEXTREF", 1}, // 144–147
	{"INDIRECT", 1}, {"REGISTER", 1}, {"CALL", 1}, {"ADD.BAR", 0}, // 148–151
	{"ADD.MENU", 2}, {"ADD.COMMAND", 3}, {"ENABLE.COMMAND", 4}, {"CHECK.COMMAND", 4}, // 152–155
	{"RENAME.COMMAND", 4}, {"SHOW.BAR", 0}, {"DELETE.MENU", 2}, {"DELETE.COMMAND", 3}, // 156–159
	{"GET.CHART.ITEM", 1}, {"DIALOG.BOX", 1}, {"CLEAN", 1}, {"MDETERM", 1}, // 160–163
	{"MINVERSE", 1}, {"MMULT", 2}, {"FILES", 0}, {"IPMT", 4}, // 164–167
	{"PPMT", 4}, {"COUNTA", 1}, {"CANCEL.KEY", 1}, {"FOR", 3}, // 168–171
	{"WHILE", 1}, {"BREAK", 0}, {"NEXT", 0}, {"INITIATE", 2}, // 172–175
	{"REQUEST", 2}, {"POKE", 3}, {"EXECUTE", 2}, {"TERMINATE", 1}, // 176–179
	{"RESTART", 0}, {"HELP", 0}, {"GET.BAR", 0}, {"PRODUCT", 1}, // 180–183
	{"FACT", 1}, {"GET.CELL", 1}, {"GET.WORKSPACE", 1}, {"GET.WINDOW", 1}, // 184–187
	{"GET.DOCUMENT", 1}, {"DPRODUCT", 3}, {"ISNONTEXT", 1}, {"NOTE", 0}, // 188–191
	{"NOTES", 0}, {"STDEVP", 1}, {"VARP", 1}, {"DSTDEVP", 3}, // 192–195
	{"DVARP", 3}, {"TRUNC", 1}, {"ISLOGICAL", 1}, {"DCOUNTA", 3}, // 196–199
	{"DELETE.BAR", 1}, {"UNREGISTER", 1}, {"", 0}, {"", 0}, // 200–203
	{"USDOLLAR", 1}, {"FINDB", 2}, {"SEARCHB", 2}, {"REPLACEB", 4}, // 204–207
	{"LEFTB", 1}, {"RIGHTB", 1}, {"MIDB", 3}, {"LENB", 1}, // 208–211
	{"ROUNDUP", 2}, {"ROUNDDOWN", 2}, {"ASC", 1}, {"DBCS", 1}, // 212–215
	{"RANK", 2}, {"", 0}, {"", 0}, {"ADDRESS", 2}, // 216–219
	{"DAYS360", 2}, {"TODAY", 0}, {"VDB", 5}, {"ELSE", 0}, // 220–223
	{"ELSE.IF", 1}, {"END.IF", 0}, {"FOR.CELL", 1}, {"MEDIAN", 1}, // 224–227
	{"SUMPRODUCT", 1}, {"SINH", 1}, {"COSH", 1}, {"TANH", 1}, // 228–231
	{"ASINH", 1}, {"ACOSH", 1}, {"ATANH", 1}, {"DGET", 3}, // 232–235
	{"CREATE.OBJECT", 2}, {"VOLATILE", 0}, {"LAST.ERROR", 0}, {"CUSTOM.UNDO", 0}, // 236–239
	{"CUSTOM.REPEAT", 0}, {"FORMULA.CONVERT", 2}, {"GET.LINK.INFO", 2}, {"TEXT.BOX", 1}, // 240–243
	{"INFO", 1}, {"GROUP", 0}, {"GET.OBJECT", 1}, {"DB", 4}, // 244–247
	{"PAUSE", 0}, {"", 0}, {"", 0}, {"RESUME", 0}, // 248–251
	{"FREQUENCY", 2}, {"ADD.TOOLBAR", 0}, {"DELETE.TOOLBAR", 1}, {"", 0}, // 252–255
	{"RESET.TOOLBAR", 1}, {"EVALUATE", 1}, {"GET.TOOLBAR", 1}, {"GET.TOOL", 2}, // 256–259
	{"SPELLING.CHECK", 1}, {"ERROR.TYPE", 1}, {"APP.TITLE", 0}, {"WINDOW.TITLE", 0}, // 260–263
	{"SAVE.TOOLBAR", 0}, {"ENABLE.TOOL", 3}, {"PRESS.TOOL", 3}, {"REGISTER.ID", 2}, // 264–267
	{"GET.WORKBOOK", 1}, {"AVEDEV", 1}, {"BETADIST", 3}, {"GAMMALN", 1}, // 268–271
	{"BETAINV", 3}, {"BINOMDIST", 4}, {"CHIDIST", 2}, {"CHIINV", 2}, // 272–275
	{"COMBIN", 2}, {"CONFIDENCE", 3}, {"CRITBINOM", 3}, {"EVEN", 1}, // 276–279
	{"EXPONDIST", 3}, {"FDIST", 3}, {"FINV", 3}, {"FISHER", 1}, // 280–283
	{"FISHERINV", 1}, {"FLOOR", 2}, {"GAMMADIST", 4}, {"GAMMAINV", 3}, // 284–287
	{"CEILING", 2}, {"HYPGEOMDIST", 4}, {"LOGNORMDIST", 3}, {"LOGINV", 3}, // 288–291
	{"NEGBINOMDIST", 3}, {"NORMDIST", 4}, {"NORMSDIST", 1}, {"NORMINV", 3}, // 292–295
	{"NORMSINV", 1}, {"STANDARDIZE", 3}, {"ODD", 1}, {"PERMUT", 2}, // 296–299
	{"POISSON", 3}, {"TDIST", 3}, {"WEIBULL", 4}, {"SUMXMY2", 2}, // 300–303
	{"SUMX2MY2", 2}, {"SUMX2PY2", 2}, {"CHITEST", 2}, {"CORREL", 2}, // 304–307
	{"COVAR", 2}, {"FORECAST", 3}, {"FTEST", 2}, {"INTERCEPT", 2}, // 308–311
	{"PEARSON", 2}, {"RSQ", 2}, {"STEYX", 2}, {"SLOPE", 2}, // 312–315
	{"TTEST", 4}, {"PROB", 3}, {"DEVSQ", 1}, {"GEOMEAN", 1}, // 316–319
	{"HARMEAN", 1}, {"SUMSQ", 1}, {"KURT", 1}, {"SKEW", 1}, // 320–323
	{"ZTEST", 2}, {"LARGE", 2}, {"SMALL", 2}, {"QUARTILE", 2}, // 324–327
	{"PERCENTILE", 2}, {"PERCENTRANK", 2}, {"MODE", 1}, {"TRIMMEAN", 2}, // 328–331
	{"TINV", 2}, {"", 0}, {"MOVIE.COMMAND", 0}, {"GET.MOVIE", 0}, // 332–335
	{"CONCATENATE", 1}, {"POWER", 2}, {"PIVOT.ADD.DATA", 0}, {"GET.PIVOT.TABLE", 0}, // 336–339
	{"GET.PIVOT.FIELD", 0}, {"GET.PIVOT.ITEM", 0}, {"RADIANS", 1}, {"DEGREES", 1}, // 340–343
	{"SUBTOTAL", 2}, {"SUMIF", 2}, {"COUNTIF", 2}, {"COUNTBLANK", 1}, // 344–347
	{"SCENARIO.GET", 0}, {"OPTIONS.LISTS.GET", 1}, {"ISPMT", 4}, {"DATEDIF", 3}, // 348–351
	{"DATESTRING", 1}, {"NUMBERSTRING", 2}, {"ROUNDBAHTDOWN", 1}, {"ROUNDBAHTUP", 1}, // 352–355
	{"THAIDAYOFWEEK", 1}, {"THAIDIGIT", 1}, {"GETPIVOTDATA", 2}, {"HYPERLINK", 1}, // 356–359
	{"PHONETIC", 1}, {"AVERAGEA", 1}, {"MAXA", 1}, {"MINA", 1}, // 360–363
	{"STDEVPA", 1}, {"VARPA", 1}, {"STDEVA", 1}, {"VARA", 1}, // 364–367
}
