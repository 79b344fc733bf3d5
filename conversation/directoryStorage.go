////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package conversation

import (
	"github.com/pkg/errors"

	"gitlab.com/elixxir/chatsync/storage"
)

const (
	directoryPrefix  = "conversationDirectory"
	directoryKey     = "Conversations"
	directoryVersion = 0
)

// LoadDirectory returns the Directory stored in kv, or an empty one if
// nothing is stored yet. Later changes made with Add and SetPinned are
// written back to kv.
func LoadDirectory(kv *storage.KV) (*Directory, error) {
	d := NewDirectory()
	d.kv = kv.Prefix(directoryPrefix)

	var list []Conversation
	err := d.kv.GetJSON(directoryKey, directoryVersion, &list)
	if !d.kv.Exists(err) {
		return d, nil
	} else if err != nil {
		return nil, errors.WithMessage(err, "failed to load conversations")
	}

	for i := range list {
		c := list[i]
		if err = c.Verify(); err != nil {
			return nil, errors.WithMessage(err, "stored conversation")
		}
		d.convs[c.Key] = &c
	}
	return d, nil
}

// storeLocked writes every conversation to kv. It is a no-op for a Directory
// made with NewDirectory.
func (d *Directory) storeLocked() error {
	if d.kv == nil {
		return nil
	}
	list := make([]Conversation, 0, len(d.convs))
	for _, c := range d.convs {
		list = append(list, *c)
	}
	return d.kv.SetJSON(directoryKey, directoryVersion, list)
}
