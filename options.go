package spout

import "log/slog"

// Option names shared by the format adapters.  Each reader or writer
// declares the subset it supports; setting an unsupported option on it is a
// silent no-op, which lets generic option-plumbing code run against any
// format without caring which options apply.
const (
	// OptionFieldDelimiter is the CSV field delimiter (string holding one rune).
	OptionFieldDelimiter = "fieldDelimiter"
	// OptionFieldEnclosure is the CSV field enclosure character.
	OptionFieldEnclosure = "fieldEnclosure"
	// OptionEncoding is the source encoding name of a CSV file.
	OptionEncoding = "encoding"
	// OptionAddBOM controls whether the CSV writer emits a UTF-8 BOM.
	OptionAddBOM = "addBOM"
	// OptionPreserveEmptyRows controls whether fully-empty rows are emitted
	// as empty rows or skipped entirely.
	OptionPreserveEmptyRows = "preserveEmptyRows"
	// OptionFormatDates makes readers surface date cells as the display
	// string a spreadsheet application would show, instead of time.Time.
	OptionFormatDates = "formatDates"
	// OptionUse1904Epoch selects the 1904 date system for serial conversion.
	OptionUse1904Epoch = "use1904Epoch"
	// OptionInlineStrings makes the XLSX writer emit inline strings instead
	// of shared-string references.
	OptionInlineStrings = "inlineStrings"
	// OptionAutoPaginate controls creation of a fresh sheet when the row
	// ceiling of the current one is reached.  When off, excess rows are
	// silently dropped.
	OptionAutoPaginate = "autoPaginate"
	// OptionDefaultRowStyle is the style merged under rows that carry none.
	OptionDefaultRowStyle = "defaultRowStyle"
	// OptionTempDir overrides the directory used for writer scratch files.
	OptionTempDir = "tempDir"
	// OptionSharedStringsMemoryBudget caps, in bytes, the memory the XLSX
	// shared-strings index may use before spilling to disk.
	OptionSharedStringsMemoryBudget = "sharedStringsMemoryBudget"
	// OptionLogger carries an optional *slog.Logger for debug events.
	OptionLogger = "logger"
)

// Options is a named-option store with a supported-key whitelist.  Set
// silently rejects unsupported names; Get returns ok=false for names never
// set.  Concrete readers and writers build one at construction with their
// supported set and defaults.
type Options struct {
	supported map[string]struct{}
	values    map[string]any
}

// NewOptions builds a store accepting exactly the given option names.
func NewOptions(supported ...string) *Options {
	o := &Options{
		supported: make(map[string]struct{}, len(supported)),
		values:    make(map[string]any, len(supported)),
	}
	for _, name := range supported {
		o.supported[name] = struct{}{}
	}
	return o
}

// Set stores value under name if name is supported; otherwise it does
// nothing.
func (o *Options) Set(name string, value any) {
	if _, ok := o.supported[name]; ok {
		o.values[name] = value
	}
}

// Get returns the stored value for name.  ok is false when the option was
// never set (or is unsupported).
func (o *Options) Get(name string) (value any, ok bool) {
	value, ok = o.values[name]
	return value, ok
}

// Bool returns the option as a bool, or def when unset or not a bool.
func (o *Options) Bool(name string, def bool) bool {
	if v, ok := o.values[name].(bool); ok {
		return v
	}
	return def
}

// String returns the option as a string, or def when unset or not a string.
func (o *Options) String(name string, def string) string {
	if v, ok := o.values[name].(string); ok {
		return v
	}
	return def
}

// Int returns the option as an int, or def when unset or not an int.
func (o *Options) Int(name string, def int) int {
	if v, ok := o.values[name].(int); ok {
		return v
	}
	return def
}

// Logger returns the configured logger, or a discarding one when none was
// set.
func (o *Options) Logger() *slog.Logger {
	if l, ok := o.values[OptionLogger].(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// Option configures a reader or writer at construction.  The same option
// values work across all formats: names a format does not support are
// silently ignored by its Options store.
type Option func(*Options)

// Apply runs each option against the store.
func (o *Options) Apply(opts []Option) {
	for _, fn := range opts {
		fn(o)
	}
}

// WithFieldDelimiter sets the CSV field delimiter.
func WithFieldDelimiter(d rune) Option {
	return func(o *Options) { o.Set(OptionFieldDelimiter, string(d)) }
}

// WithFieldEnclosure sets the CSV field enclosure character.
func WithFieldEnclosure(e rune) Option {
	return func(o *Options) { o.Set(OptionFieldEnclosure, string(e)) }
}

// WithEncoding declares the source encoding of a CSV file, by IANA or WHATWG
// name ("windows-1252", "utf-16le", …).
func WithEncoding(name string) Option {
	return func(o *Options) { o.Set(OptionEncoding, name) }
}

// WithBOM controls whether the CSV writer starts the file with a UTF-8
// byte-order mark.  Default on.
func WithBOM(on bool) Option {
	return func(o *Options) { o.Set(OptionAddBOM, on) }
}

// WithPreserveEmptyRows makes readers emit fully-empty rows instead of
// skipping them.
func WithPreserveEmptyRows(on bool) Option {
	return func(o *Options) { o.Set(OptionPreserveEmptyRows, on) }
}

// WithFormatDates makes readers surface date cells as formatted display
// strings instead of time.Time values.
func WithFormatDates(on bool) Option {
	return func(o *Options) { o.Set(OptionFormatDates, on) }
}

// With1904Epoch selects the 1904 date system for writers.
func With1904Epoch(on bool) Option {
	return func(o *Options) { o.Set(OptionUse1904Epoch, on) }
}

// WithInlineStrings makes the XLSX writer embed strings in the sheet parts
// instead of the shared-strings table.
func WithInlineStrings(on bool) Option {
	return func(o *Options) { o.Set(OptionInlineStrings, on) }
}

// WithAutoPaginate makes writers roll over to a fresh sheet when the current
// one hits the format's row ceiling.  When off, excess rows are silently
// dropped.
func WithAutoPaginate(on bool) Option {
	return func(o *Options) { o.Set(OptionAutoPaginate, on) }
}

// WithDefaultRowStyle sets the style merged under every written row that
// carries none of its own.
func WithDefaultRowStyle(style *Style) Option {
	return func(o *Options) { o.Set(OptionDefaultRowStyle, style) }
}

// WithTempDir overrides the scratch directory used by writers and the
// shared-strings disk cache.
func WithTempDir(dir string) Option {
	return func(o *Options) { o.Set(OptionTempDir, dir) }
}

// WithSharedStringsMemoryBudget caps, in bytes, the memory the XLSX
// shared-strings index may hold before spilling to a temp file.
func WithSharedStringsMemoryBudget(bytes int) Option {
	return func(o *Options) { o.Set(OptionSharedStringsMemoryBudget, bytes) }
}

// WithLogger attaches a logger for debug events (cache spills, skipped
// rows, pagination).
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Set(OptionLogger, l) }
}
