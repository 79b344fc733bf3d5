////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package history

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrFetchFailure is the sentinel matched by FetchFailure.
var ErrFetchFailure = errors.New("historical store request failed")

// FetchFailure is returned when a call to the historical store fails because
// of the network or a non-2xx response. It is retryable: nothing was mutated
// locally.
type FetchFailure struct {
	// Op names the failed operation, e.g. "fetchMessages".
	Op string

	// StatusCode is the HTTP status, or 0 for transport errors.
	StatusCode int

	Err error
}

// Error returns the error message. This function adheres to the error
// interface.
func (f *FetchFailure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", ErrFetchFailure, f.Op,
			f.StatusCode, f.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrFetchFailure, f.Op, f.Err)
}

// Unwrap returns the underlying error.
func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// Is allows errors.Is(err, ErrFetchFailure).
func (f *FetchFailure) Is(target error) bool {
	return target == ErrFetchFailure
}

// Retryable returns true unless the server rejected the request as invalid,
// in which case repeating it cannot succeed.
func (f *FetchFailure) Retryable() bool {
	return f.StatusCode == 0 || f.StatusCode >= 500 || f.StatusCode == 429
}

// AsFetchFailure returns err unchanged if it already is a FetchFailure and
// wraps it as one otherwise. A nil err returns nil.
func AsFetchFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var f *FetchFailure
	if errors.As(err, &f) {
		return err
	}
	return &FetchFailure{Op: op, Err: err}
}
