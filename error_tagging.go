package jqrender

import (
	"errors"
	"fmt"
)

// RequestMetaError exposes correlation metadata for a pooled evaluation failure.
type RequestMetaError interface {
	error
	Unwrap() error
	RequestID() (uint64, bool)
	WorkerID() (int, bool)
}

type requestTaggedError struct {
	err    error
	id     uint64
	worker int
}

func newRequestTaggedError(err error, id uint64, worker int) error {
	if err == nil {
		return nil
	}
	return &requestTaggedError{err: err, id: id, worker: worker}
}

func (e *requestTaggedError) Error() string { return e.err.Error() }
func (e *requestTaggedError) Unwrap() error { return e.err }

func (e *requestTaggedError) RequestID() (uint64, bool) { return e.id, e.id != 0 }

func (e *requestTaggedError) WorkerID() (int, bool) { return e.worker, e.worker >= 0 }

func (e *requestTaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "request(id=%d,worker=%d): %+v", e.id, e.worker, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractRequestID returns the pool correlation id from err if present.
func ExtractRequestID(err error) (uint64, bool) {
	var rme RequestMetaError
	if errors.As(err, &rme) {
		return rme.RequestID()
	}
	return 0, false
}

// ExtractWorkerID returns the index of the worker that handled the failed request.
func ExtractWorkerID(err error) (int, bool) {
	var rme RequestMetaError
	if errors.As(err, &rme) {
		return rme.WorkerID()
	}
	return 0, false
}
