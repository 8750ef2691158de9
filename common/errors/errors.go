// Package errors attaches process exit codes to errors.
package errors

import (
	"github.com/pkg/errors"
)

type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}

// ExitCodeOf returns the code carried by err or anything it wraps. A nil
// error exits 0; an error without a code exits with RunFailureExitCode.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return 0
	}
	if e, ok := errors.Cause(err).(*ExitCodeError); ok {
		return e.GetExitCode()
	}
	return RunFailureExitCode
}
