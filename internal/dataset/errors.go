package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrSeriesTooShort indicates the series cannot fill a window (or yield a target).
	ErrSeriesTooShort = errors.New("series too short")
	// ErrNoteOutOfRange indicates a note index outside [0, numClasses).
	ErrNoteOutOfRange = errors.New("note index out of range")
	// ErrNotNoteIndex indicates a value that is not a non-negative integer.
	ErrNotNoteIndex = errors.New("value is not a note index")
	// ErrShape indicates a CSV layout other than one column or one row.
	ErrShape = errors.New("expected a single column or a single row")
	// ErrBadValue indicates a cell that does not parse as a number.
	ErrBadValue = errors.New("unparsable value")
	// ErrBadWindow indicates a non-positive window length or class count.
	ErrBadWindow = errors.New("invalid window parameters")
)

// DataFormatError reports malformed or out-of-range input data. Record is
// the zero-based series position (or CSV record) involved, -1 when the
// error is not tied to one position.
type DataFormatError struct {
	Source string
	Record int
	Err    error
}

func (e *DataFormatError) Error() string {
	msg := "data format"
	if e.Source != "" {
		msg += " " + e.Source
	}
	if e.Record >= 0 {
		msg += fmt.Sprintf(" at %d", e.Record)
	}
	return msg + ": " + e.Err.Error()
}

func (e *DataFormatError) Unwrap() error { return e.Err }

func formatErr(source string, record int, err error) error {
	return &DataFormatError{Source: source, Record: record, Err: err}
}
