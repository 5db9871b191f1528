// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core holds the pieces shared by every demo and backend:
// configuration, result codes, logging and the time services.
package core

import (
	"errors"
	"io/fs"
)

// Result is the single outcome code reported by lifecycle callbacks.
type Result int

// Possible results, the zero value is success
const (
	Success Result = iota
	NotFound
	InvalidData
	UnknownError
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NotFound:
		return "not found"
	case InvalidData:
		return "invalid data"
	default:
		return "unknown error"
	}
}

// Errors that classify into a Result. Wrap them with %w to keep
// the classification while adding context.
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
	ErrUnknown     = errors.New("unknown error")
)

// ResultOf classifies an error. Nil is Success, anything that does not
// wrap a known error is UnknownError.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return NotFound
	case errors.Is(err, ErrInvalidData):
		return InvalidData
	default:
		return UnknownError
	}
}

// Err returns the sentinel error for the result, nil for Success.
func (r Result) Err() error {
	switch r {
	case Success:
		return nil
	case NotFound:
		return ErrNotFound
	case InvalidData:
		return ErrInvalidData
	default:
		return ErrUnknown
	}
}
