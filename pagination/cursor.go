////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package pagination tracks the offset based cursor used to page through the
// history of a conversation, oldest pages last.
package pagination

import "fmt"

const (
	// DefaultPageSize is the number of messages requested per page.
	DefaultPageSize = 20

	// MaxPageSize is the largest page the historical store serves.
	MaxPageSize = 100
)

// Cursor is the paging state of one message store. It is not safe for
// concurrent use; the owning store serializes access.
//
// HasMore becomes false when a page returns fewer than PageSize results and
// only a Reset makes it true again. A failed fetch also stops paging, but
// that stop can be lifted by Retry so the user may try again by hand.
type Cursor struct {
	pageSize int
	offset   int
	hasMore  bool
	failed   bool
	anchored bool
}

// New returns a cursor at offset 0. Page sizes outside (0, MaxPageSize] fall
// back to DefaultPageSize.
func New(pageSize int) *Cursor {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	return &Cursor{pageSize: pageSize, hasMore: true}
}

// PageSize returns the fixed page size.
func (c *Cursor) PageSize() int {
	return c.pageSize
}

// Offset returns the number of historical messages already fetched.
func (c *Cursor) Offset() int {
	return c.offset
}

// HasMore returns true if older pages may exist and paging is not stopped.
func (c *Cursor) HasMore() bool {
	return c.hasMore && !c.failed && !c.anchored
}

// Failed returns true if paging stopped because of a fetch failure.
func (c *Cursor) Failed() bool {
	return c.failed
}

// Advance records a fetched page of n messages.
func (c *Cursor) Advance(n int) {
	if n < 0 {
		n = 0
	}
	c.offset += n
	c.failed = false
	if n < c.pageSize {
		c.hasMore = false
	}
}

// Anchor records that the store was replaced by a window of n messages around
// a target.
func (c *Cursor) Anchor(n int) {
	c.offset = n
	c.failed = false
	c.anchored = true
}

// Fail records a fetch failure. Paging stops until Retry or Reset.
func (c *Cursor) Fail() {
	c.failed = true
}

// Retry lifts a stop caused by Fail. The next fetch starts from the same
// offset. Returns false if paging was not stopped by a failure.
func (c *Cursor) Retry() bool {
	if !c.failed {
		return false
	}
	c.failed = false
	return true
}

// Reset returns the cursor to offset 0 with more pages available.
func (c *Cursor) Reset() {
	c.offset = 0
	c.hasMore = true
	c.failed = false
	c.anchored = false
}

// String returns a human-readable version of the cursor, used for debugging
// and logging. This function adheres to the fmt.Stringer interface.
func (c *Cursor) String() string {
	return fmt.Sprintf("{offset: %d, pageSize: %d, hasMore: %t, "+
		"failed: %t, anchored: %t}", c.offset, c.pageSize, c.hasMore,
		c.failed, c.anchored)
}
