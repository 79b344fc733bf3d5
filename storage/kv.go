////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package storage is the local persistence of a session: a versioned,
// prefixed key/value store on top of ekv.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/xx_network/primitives/netTime"
)

// PrefixSeparator separates the prefixes of a key.
const PrefixSeparator = "/"

type root struct {
	data ekv.KeyValue
}

// KV stores versioned objects under a prefix.
type KV struct {
	r      *root
	prefix string
}

// NewKV returns a KV without prefix backed by data.
func NewKV(data ekv.KeyValue) *KV {
	return &KV{r: &root{data: data}}
}

// NewMemKV returns a KV backed by an in-memory store.
func NewMemKV() *KV {
	return NewKV(ekv.MakeMemstore())
}

// Open returns a KV backed by the encrypted file store in dir.
func Open(dir, password string) (*KV, error) {
	fs, err := ekv.NewFilestore(dir, password)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open storage at %q", dir)
	}
	return NewKV(fs), nil
}

// Get returns the object stored at the given version of key.
func (v *KV) Get(key string, version uint64) (*Object, error) {
	key = v.makeKey(key, version)
	result := Object{}
	if err := v.r.data.Get(key, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Set stores object at the key of its version.
func (v *KV) Set(key string, object *Object) error {
	return v.r.data.Set(v.makeKey(key, object.Version), object)
}

// Delete removes the given version of key.
func (v *KV) Delete(key string, version uint64) error {
	key = v.makeKey(key, version)
	jww.TRACE.Printf("[STORAGE] Delete %s", key)
	return v.r.data.Delete(key)
}

// SetJSON stores the JSON encoding of value at the given version of key.
func (v *KV) SetJSON(key string, version uint64, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	return v.Set(key, &Object{
		Version:   version,
		Timestamp: netTime.Now(),
		Data:      data,
	})
}

// GetJSON decodes the object stored at the given version of key into value.
func (v *KV) GetJSON(key string, version uint64, value interface{}) error {
	obj, err := v.Get(key, version)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(obj.Data, value),
		"failed to decode %s", key)
}

// Prefix returns a KV whose keys are nested under prefix.
func (v *KV) Prefix(prefix string) *KV {
	return &KV{
		r:      v.r,
		prefix: v.prefix + prefix + PrefixSeparator,
	}
}

func (v *KV) makeKey(key string, version uint64) string {
	return fmt.Sprintf("%s%s_%d", v.prefix, key, version)
}

// Exists returns false if the error indicates the element does not exist.
func (v *KV) Exists(err error) bool {
	return ekv.Exists(err)
}
