package drive

import (
	"errors"
	"fmt"
)

// Kinds of failure reported by Client operations. Match them with errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrAuthentication  = errors.New("authentication error")
	ErrRemoteService   = errors.New("remote service error")
	ErrPartialDownload = errors.New("partial download")
	ErrCache           = errors.New("cache backend error")
)

// OpError records a failed Client operation, the resource it concerned,
// and the kind of failure.
type OpError struct {
	Op   string
	ID   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := "drive: " + e.Op
	if e.ID != "" {
		msg += fmt.Sprintf(" %q", e.ID)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func configError(op, id, format string, args ...any) error {
	return &OpError{Op: op, ID: id, Kind: ErrConfiguration, Err: fmt.Errorf(format, args...)}
}

func opError(op, id string, kind, err error) error {
	return &OpError{Op: op, ID: id, Kind: kind, Err: err}
}
