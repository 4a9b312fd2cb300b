package cmd

import (
	"errors"

	"flightsync/pkg/store"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitInvalidArgs = 1
	ExitStoreOpen   = 2
	ExitMigrate     = 3
)

// ExitError carries the exit code a failure should end the process with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError classifies err by its sentinel. Anything unrecognized, such as
// pipeline.ErrInvalidDate or a bad flag, is an argument error.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var already *ExitError
	if errors.As(err, &already) {
		return err
	}

	code := ExitInvalidArgs
	switch {
	case errors.Is(err, store.ErrMigrate):
		code = ExitMigrate
	case errors.Is(err, store.ErrOpen):
		code = ExitStoreOpen
	}
	return &ExitError{Code: code, Err: err}
}
