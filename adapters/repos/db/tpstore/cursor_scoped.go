//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package tpstore

import (
	"github.com/weaviate/tpstore/entities/temporal"
)

// scopedCursor restricts a source to the entries of a single id.
type scopedCursor struct {
	*lookahead
	source Cursor
	id     temporal.EntityPropertyID
}

// RestrictToID returns a cursor over the entries of id only.
func RestrictToID(source Cursor, id temporal.EntityPropertyID) Cursor {
	c := &scopedCursor{source: source, id: id}
	c.lookahead = newLookahead(c.fetch)
	return c
}

func (c *scopedCursor) SeekToFirst() {
	c.source.SeekFloor(temporal.NewInternalKey(c.id, 0, temporal.Unknown))
	c.skipSmallerIDs()
	c.reset()
}

func (c *scopedCursor) SeekFloor(target temporal.InternalKey) bool {
	switch target.ID.Compare(c.id) {
	case -1:
		c.SeekToFirst()
		return false
	case 1:
		target = temporal.NewInternalKey(c.id, temporal.Now, temporal.Unknown)
	}

	if c.source.SeekFloor(target) && c.source.Peek().Key.ID == c.id {
		c.reset()
		return true
	}

	c.skipSmallerIDs()
	c.reset()
	return false
}

func (c *scopedCursor) skipSmallerIDs() {
	for c.source.Valid() && c.source.Peek().Key.ID.Less(c.id) {
		c.source.Next()
	}
}

func (c *scopedCursor) fetch() (Entry, bool) {
	if !c.source.Valid() || c.source.Peek().Key.ID != c.id {
		return Entry{}, false
	}
	return c.source.Next(), true
}

// unknownToInvalidCursor turns gaps into explicit invalid entries. It sits
// at the boundary to callers, who can act on values and absences but not on
// unknown spans.
type unknownToInvalidCursor struct {
	*lookahead
	source Cursor
}

func UnknownToInvalid(source Cursor) Cursor {
	c := &unknownToInvalidCursor{source: source}
	c.lookahead = newLookahead(c.fetch)
	return c
}

func (c *unknownToInvalidCursor) SeekToFirst() {
	c.source.SeekToFirst()
	c.reset()
}

func (c *unknownToInvalidCursor) SeekFloor(target temporal.InternalKey) bool {
	ok := c.source.SeekFloor(target)
	c.reset()
	return ok
}

func (c *unknownToInvalidCursor) fetch() (Entry, bool) {
	if !c.source.Valid() {
		return Entry{}, false
	}
	e := c.source.Next()
	if e.Key.Type == temporal.Unknown {
		e.Key.Type = temporal.Invalid
		e.Value = nil
	}
	return e, true
}

// compactingCursor drops entries that do not change what a reader of the
// stream observes: an id's leading unknown entries, and entries equal to
// the previous entry of the same id.
type compactingCursor struct {
	*lookahead
	source Cursor

	prev    Entry
	hasPrev bool
}

func Compacting(source Cursor) Cursor {
	c := &compactingCursor{source: source}
	c.lookahead = newLookahead(c.fetch)
	return c
}

func (c *compactingCursor) SeekToFirst() {
	c.source.SeekToFirst()
	c.hasPrev = false
	c.reset()
}

// SeekFloor is only meaningful on streams that were written compacted,
// the floor of the source is returned as is.
func (c *compactingCursor) SeekFloor(target temporal.InternalKey) bool {
	ok := c.source.SeekFloor(target)
	c.hasPrev = false
	c.reset()
	return ok
}

func (c *compactingCursor) fetch() (Entry, bool) {
	for c.source.Valid() {
		e := c.source.Next()
		sameID := c.hasPrev && c.prev.Key.ID == e.Key.ID
		if !sameID && e.Key.Type == temporal.Unknown {
			continue
		}
		if sameID && sameObservation(c.prev, e) {
			continue
		}
		c.prev, c.hasPrev = e, true
		return e, true
	}
	return Entry{}, false
}

// Visible is what callers get to see of a merged stream. The leading
// unknown span of every id is dropped and later gaps are reported as
// Invalid, with repeated observations coalesced.
func Visible(source Cursor) Cursor {
	return Compacting(UnknownToInvalid(Compacting(source)))
}

func sameObservation(a, b Entry) bool {
	if a.Key.Type != b.Key.Type {
		return false
	}
	return a.Key.Type != temporal.Value || string(a.Value) == string(b.Value)
}
