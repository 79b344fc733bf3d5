////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package emoji validates message reactions.
package emoji

import (
	"github.com/forPelevin/gomoji"
	"github.com/pkg/errors"
)

// ErrInvalidReaction is returned for a reaction that is not exactly one
// emoji.
var ErrInvalidReaction = errors.New(
	"the reaction is not valid, it must be a single emoji")

// ValidateReaction checks that the reaction is exactly one emoji with
// nothing around it.
func ValidateReaction(reaction string) error {
	_, err := Lookup(reaction)
	return err
}

// Lookup returns the emoji the reaction consists of. Returns
// ErrInvalidReaction if it is anything but a single emoji.
func Lookup(reaction string) (gomoji.Emoji, error) {
	found := gomoji.CollectAll(reaction)
	switch {
	case len(found) == 0:
		return gomoji.Emoji{}, errors.Wrapf(ErrInvalidReaction,
			"no emoji in %q", reaction)
	case len(found) > 1:
		return gomoji.Emoji{}, errors.Wrapf(ErrInvalidReaction,
			"%d emojis in %q", len(found), reaction)
	case found[0].Character != reaction:
		// Non-emoji characters found alongside an emoji
		return gomoji.Emoji{}, errors.Wrapf(ErrInvalidReaction,
			"%q is not only %q", reaction, found[0].Character)
	}
	return found[0], nil
}
