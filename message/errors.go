////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package message

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformedMessage is the sentinel matched by MalformedMessageError.
var ErrMalformedMessage = errors.New("malformed message payload")

// MalformedMessageError is returned by Normalizer.Normalize when the payload
// cannot be turned into a Message. The message must be dropped.
type MalformedMessageError struct {
	Source Source
	Reason string
}

// Error returns the error message. This function adheres to the error
// interface.
func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("%s from %s: %s", ErrMalformedMessage, e.Source,
		e.Reason)
}

// Is allows errors.Is(err, ErrMalformedMessage).
func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}
