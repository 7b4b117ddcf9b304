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
	"fmt"
	"sort"

	"github.com/weaviate/tpstore/entities/temporal"
)

// Entry is one point of a temporal stream: the span of Key.ID starting at
// Key.Time, typed by Key.Type.
type Entry struct {
	Key   temporal.InternalKey
	Value []byte
}

func (e Entry) String() string {
	return fmt.Sprintf("%s=%q", e.Key, e.Value)
}

// Cursor is a finite, restartable, key-ordered sequence of entries with one
// entry of lookahead. A cursor must be positioned with SeekToFirst or
// SeekFloor before Valid, Peek or Next are used. Misuse panics.
type Cursor interface {
	// SeekToFirst positions the cursor at its first entry.
	SeekToFirst()
	// SeekFloor positions the cursor so that the next entry is the greatest
	// entry <= target. If there is none it behaves like SeekToFirst and
	// returns false.
	SeekFloor(target temporal.InternalKey) bool
	// Valid reports whether another entry is available.
	Valid() bool
	// Peek returns the next entry without consuming it.
	Peek() Entry
	// Next returns the next entry and advances.
	Next() Entry
}

// lookahead turns a fetch function into the Valid/Peek/Next part of a
// Cursor. Seeks must call reset, the next entry is then computed lazily.
type lookahead struct {
	fetch       func() (Entry, bool)
	initialized bool
	cached      bool
	exhausted   bool
	entry       Entry
}

func newLookahead(fetch func() (Entry, bool)) *lookahead {
	return &lookahead{fetch: fetch}
}

func (l *lookahead) reset() {
	l.initialized = true
	l.cached = false
	l.exhausted = false
	l.entry = Entry{}
}

func (l *lookahead) fill() {
	if !l.initialized {
		panic("cursor used before SeekToFirst or SeekFloor")
	}
	if l.cached || l.exhausted {
		return
	}
	e, ok := l.fetch()
	if !ok {
		l.exhausted = true
		return
	}
	l.entry, l.cached = e, true
}

func (l *lookahead) Valid() bool {
	l.fill()
	return l.cached
}

func (l *lookahead) Peek() Entry {
	if !l.Valid() {
		panic("peek past the end of a cursor")
	}
	return l.entry
}

func (l *lookahead) Next() Entry {
	e := l.Peek()
	l.cached = false
	l.entry = Entry{}
	return e
}

// Drain collects the remaining entries of c.
func Drain(c Cursor) []Entry {
	var out []Entry
	for c.Valid() {
		out = append(out, c.Next())
	}
	return out
}

// sliceCursor iterates a sorted slice of entries.
type sliceCursor struct {
	*lookahead
	entries []Entry
	pos     int
}

// NewSliceCursor returns a cursor over entries, which must be sorted by key
// without duplicates.
func NewSliceCursor(entries []Entry) Cursor {
	c := &sliceCursor{entries: entries}
	c.lookahead = newLookahead(c.fetch)
	return c
}

func (c *sliceCursor) SeekToFirst() {
	c.pos = 0
	c.reset()
}

func (c *sliceCursor) SeekFloor(target temporal.InternalKey) bool {
	c.reset()
	floor := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Key.Compare(target) > 0
	}) - 1
	if floor < 0 {
		c.pos = 0
		return false
	}
	c.pos = floor
	return true
}

func (c *sliceCursor) fetch() (Entry, bool) {
	if c.pos >= len(c.entries) {
		return Entry{}, false
	}
	e := c.entries[c.pos]
	c.pos++
	return e, true
}
