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

// memTableCursor walks a memtable with two levels of lookahead: the outer
// level moves over ids in order, the inner one over the point entries of
// the current id. It is the only producer of Unknown keys, which mark the
// start of a gap.
//
// The memtable must not be mutated while the cursor is in use.
type memTableCursor struct {
	*lookahead
	mt *MemTable

	cur *memTableItem
	// next inner entry is the first one with time >= from
	from temporal.TimePoint
}

func (m *MemTable) NewCursor() Cursor {
	c := &memTableCursor{mt: m}
	c.lookahead = newLookahead(c.fetch)
	return c
}

func (c *memTableCursor) SeekToFirst() {
	c.cur = c.mt.first()
	c.from = temporal.Init
	c.reset()
}

func (c *memTableCursor) SeekFloor(target temporal.InternalKey) bool {
	c.reset()

	item := c.mt.floorItem(target.ID)
	if item != nil && item.id == target.ID {
		if e, ok := item.value.Floor(target.Time); ok {
			c.cur, c.from = item, e.Time
			return true
		}
		// every entry of this id is after the target, the floor belongs to
		// the previous id
		item = c.mt.prev(target.ID)
	}

	if item != nil {
		if e, ok := item.value.Last(); ok {
			c.cur, c.from = item, e.Time
			return true
		}
	}

	c.cur = c.mt.first()
	c.from = temporal.Init
	return false
}

func (c *memTableCursor) fetch() (Entry, bool) {
	for c.cur != nil {
		if e, ok := c.cur.value.Ceiling(c.from); ok {
			c.from = e.Time + 1
			return pointToEntry(c.cur.id, e), true
		}
		c.cur = c.mt.next(c.cur.id)
		c.from = temporal.Init
	}
	return Entry{}, false
}

func pointToEntry(id temporal.EntityPropertyID, e PointEntry[Value]) Entry {
	if e.Unknown {
		return Entry{Key: temporal.NewInternalKey(id, e.Time, temporal.Unknown)}
	}
	return Entry{
		Key:   temporal.NewInternalKey(id, e.Time, e.Value.Type),
		Value: e.Value.Data,
	}
}
