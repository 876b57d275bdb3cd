package cmd

import (
	"errors"
	"fmt"
	"os"
)

// Process exit codes
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitNotDelivered  = 2
	ExitConfigInvalid = 3
)

// ErrNotDelivered is returned by send when every transport failed
var ErrNotDelivered = errors.New("message not delivered")

// ExitError carries the process exit code for err
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// Exit wraps err with an exit code
func Exit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ExitWithCodeStderr prints err and terminates the process with its code
func ExitWithCodeStderr(err error) {
	code := ExitCode(err)
	if code != ExitOK {
		fmt.Fprintf(os.Stderr, "maildispatch: %v (exit code %d)\n", err, code)
	}
	os.Exit(code)
}
