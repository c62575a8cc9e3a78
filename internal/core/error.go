package core

/*
rxfilter — prunes dead and redirecting domains from ad-blocking filter lists
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"errors"
	"fmt"
)

// customError is an error type that includes a retryable flag.
// This allows components to determine if an operation that resulted in this error
// should be retried.
type customError struct {
	message   string
	retryable bool
	cause     error
}

// NewError creates a new customError with the given message and retryable status.
func NewError(msg string, retryable bool) error {
	return &customError{
		message:   msg,
		retryable: retryable,
	}
}

// WrapError is NewError with an underlying cause that stays reachable
// through errors.Is and errors.As.
func WrapError(msg string, retryable bool, cause error) error {
	return &customError{
		message:   msg,
		retryable: retryable,
		cause:     cause,
	}
}

// Error implements the standard Go `error` interface.
func (e *customError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *customError) Unwrap() error { return e.cause }

// IsRetryable returns true if the error is designated as retryable, false otherwise.
func (e *customError) IsRetryable() bool {
	return e.retryable
}

// IsRetryable reports whether err, or an error it wraps, is a retryable
// *customError. Errors of any other type are not retryable.
func IsRetryable(err error) bool {
	var ce *customError
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}

var (
	// ErrInvalidBatchSize is returned by NewScheduler for a batch size
	// outside MinBatchSize..MaxBatchSize.
	ErrInvalidBatchSize = NewError(fmt.Sprintf("batch size must be between %d and %d", MinBatchSize, MaxBatchSize), false)
	// ErrNoVariants is returned for a task without any host to probe.
	ErrNoVariants = NewError("task has no variants", false)
)

// TruncateError caps s at max runes. Longer values are cut and end in "...",
// the ellipsis counting towards max.
func TruncateError(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
