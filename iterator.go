package spout

// Sheet is the read-side handle for one sheet of an open document.
type Sheet interface {
	// Index is the 0-based position of the sheet in the workbook.
	Index() int
	// Name is the display name of the sheet.
	Name() string
	// IsActive reports whether this sheet was the selected one when the
	// document was last saved.
	IsActive() bool
	// IsVisible reports whether the sheet tab is shown.
	IsVisible() bool
	// Rows returns a fresh forward-only cursor over the sheet's rows,
	// reopening the underlying source from scratch.  Cursors cannot be
	// rewound mid-stream; obtain a new one instead.
	Rows() RowIterator
}

// SheetIterator walks the sheets of an open document in order.
type SheetIterator interface {
	// Next advances to the next sheet, reporting whether one is available.
	Next() bool
	// Sheet returns the current sheet.  Only valid after Next returned true.
	Sheet() Sheet
	// Err returns the first error hit while iterating, if any.
	Err() error
}

// RowIterator is a forward-only cursor over rows.  Usage follows
// bufio.Scanner: Next buffers one row ahead and reports availability, Row
// hands out the buffered row, Err surfaces the failure that stopped a
// prematurely-ended iteration.
//
// Internally every iterator is the same three-state machine (not started,
// buffered, exhausted).  Row is only meaningful in the buffered state, after
// Next returned true.
type RowIterator interface {
	Next() bool
	Row() *Row
	Err() error
	// Close releases the cursor's underlying resources.  Iterators are also
	// closed implicitly when their reader is.
	Close() error
}

// Reader is the common surface of the format-specific document readers.
type Reader interface {
	// Sheets returns an iterator over the document's sheets, from the
	// beginning.  Calling it again restarts sheet iteration.
	Sheets() SheetIterator
	// Close releases the underlying file handles and any scratch storage.
	Close() error
}

// Writer is the common surface of the format-specific document writers.
// Rows are serialized as they are added; Close finalizes the document.
type Writer interface {
	AddRow(row *Row) error
	AddRows(rows []*Row) error
	Close() error
}
