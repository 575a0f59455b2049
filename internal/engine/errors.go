package engine

import (
	"fmt"
)

// DecodeError reports a payload that could not be turned into a Table.
// No partial table is ever returned alongside it.
type DecodeError struct {
	Stage  string // container, format, parquet, ipc, validate, derive
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Stage, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErr(stage, reason string, err error) *DecodeError {
	return &DecodeError{Stage: stage, Reason: reason, Err: err}
}

// IndexOutOfRangeError is raised when a renderer asks for a row outside [0, Rows).
type IndexOutOfRangeError struct {
	Index int
	Rows  int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("row index %d out of range [0, %d)", e.Index, e.Rows)
}
