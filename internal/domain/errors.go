package domain

import (
	"errors"
	"fmt"
)

// ErrNoMatchingFile is returned by file finders when no raw file exists for a station.
var ErrNoMatchingFile = errors.New("no matching raw file")

// ParseError reports malformed or unexpectedly shaped input. It is fatal to
// the file being read, never to the batch.
type ParseError struct {
	Source string
	Line   int // 0 when the error is not tied to a line
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NetworkError reports an unreachable remote service or a non-2xx response.
type NetworkError struct {
	Op         string
	StatusCode int // 0 for transport failures
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProcessingError attaches a station code to a per-station failure. The
// reconciler catches it at the station boundary and continues.
type ProcessingError struct {
	Station string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("station %s: %v", e.Station, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
