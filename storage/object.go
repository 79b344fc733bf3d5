////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"encoding/json"
	"time"

	jww "github.com/spf13/jwalterweatherman"
)

// Object is the stored envelope of a value.
type Object struct {
	// Version of the encoding of Data
	Version uint64

	// Set when the object is written
	Timestamp time.Time

	Data []byte
}

// Unmarshal decodes an Object. It adheres to the ekv.Unmarshaler interface.
func (v *Object) Unmarshal(data []byte) error {
	return json.Unmarshal(data, v)
}

// Marshal encodes an Object. It adheres to the ekv.Marshaler interface.
func (v *Object) Marshal() []byte {
	d, err := json.Marshal(v)
	if err != nil {
		jww.FATAL.Panicf("[STORAGE] Failed to marshal object: %+v", err)
	}
	return d
}
