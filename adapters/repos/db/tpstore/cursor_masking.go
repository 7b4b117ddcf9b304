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

	"github.com/weaviate/tpstore/entities/temporal"
)

// maskingCursor merges a newer source over an older one. At every instant
// the newer source wins if it holds a known entry there. Where the newer
// source is unknown, or has not started yet for an id, the older source
// shows through with its own value type, so that unknown entries keep
// deferring to even older layers when cursors are stacked.
//
// A key is emitted when it comes from latest, or when it comes from old and
// latest does not hold a known entry at that instant. Keys of old that fall
// into a known span of latest are masked.
type maskingCursor struct {
	*lookahead
	latest Cursor
	old    Cursor

	latestCover, oldCover   Entry
	hasLatestCov, hasOldCov bool
	pending                 []Entry
}

// MaskingMerge returns the newest-wins merge of latest over old.
func MaskingMerge(latest, old Cursor) Cursor {
	c := &maskingCursor{latest: latest, old: old}
	c.lookahead = newLookahead(c.fetch)
	return c
}

// MaskingChain stacks layers given newest first.
func MaskingChain(newestFirst ...Cursor) Cursor {
	switch len(newestFirst) {
	case 0:
		return NewSliceCursor(nil)
	case 1:
		return newestFirst[0]
	}
	return MaskingMerge(newestFirst[0], MaskingChain(newestFirst[1:]...))
}

func (c *maskingCursor) resetState() {
	c.latestCover, c.oldCover = Entry{}, Entry{}
	c.hasLatestCov, c.hasOldCov = false, false
	c.pending = nil
	c.reset()
}

func (c *maskingCursor) SeekToFirst() {
	c.latest.SeekToFirst()
	c.old.SeekToFirst()
	c.resetState()
}

// SeekFloor seeks both sources to their floors and replays the merge from
// there. Emissions below the floor of the merged stream may be computed
// without full knowledge of the older covers; they are discarded. The
// floor emission itself and everything after it only depend on entries at
// or after the two source floors.
func (c *maskingCursor) SeekFloor(target temporal.InternalKey) bool {
	latestOK := c.latest.SeekFloor(target)
	oldOK := c.old.SeekFloor(target)
	c.resetState()

	if !latestOK && !oldOK {
		return false
	}

	var (
		floor Entry
		found bool
	)
	for {
		e, ok := c.step()
		if !ok {
			break
		}
		if e.Key.Compare(target) <= 0 {
			floor, found = e, true
			continue
		}
		c.pending = append(c.pending, e)
		break
	}

	if !found {
		panic(fmt.Sprintf("masking merge lost the floor of %s", target))
	}
	c.pending = append([]Entry{floor}, c.pending...)
	return true
}

func (c *maskingCursor) fetch() (Entry, bool) {
	if len(c.pending) > 0 {
		e := c.pending[0]
		c.pending = c.pending[1:]
		return e, true
	}
	return c.step()
}

func (c *maskingCursor) step() (Entry, bool) {
	for {
		latestValid, oldValid := c.latest.Valid(), c.old.Valid()
		if !latestValid && !oldValid {
			return Entry{}, false
		}

		fromLatest, fromOld := latestValid, oldValid
		if latestValid && oldValid {
			cmp := c.latest.Peek().Key.Compare(c.old.Peek().Key)
			fromLatest, fromOld = cmp <= 0, cmp >= 0
		}

		var key temporal.InternalKey
		if fromLatest {
			next := c.latest.Next()
			if c.hasLatestCov && next.Key.Compare(c.latestCover.Key) <= 0 {
				panic(fmt.Sprintf("masking merge: newer source out of order: %s after %s",
					next.Key, c.latestCover.Key))
			}
			c.latestCover, c.hasLatestCov = next, true
			key = next.Key
		}
		if fromOld {
			next := c.old.Next()
			if c.hasOldCov && next.Key.Compare(c.oldCover.Key) <= 0 {
				panic(fmt.Sprintf("masking merge: older source out of order: %s after %s",
					next.Key, c.oldCover.Key))
			}
			c.oldCover, c.hasOldCov = next, true
			key = next.Key
		}

		latestKnown := c.hasLatestCov && c.latestCover.Key.ID == key.ID &&
			c.latestCover.Key.Type.IsKnown()
		if !fromLatest && latestKnown {
			continue
		}

		out := Entry{Key: temporal.InternalKey{ID: key.ID, Time: key.Time}}
		switch {
		case latestKnown:
			out.Key.Type = c.latestCover.Key.Type
			out.Value = c.latestCover.Value
		case c.hasOldCov && c.oldCover.Key.ID == key.ID:
			out.Key.Type = c.oldCover.Key.Type
			out.Value = c.oldCover.Value
		default:
			out.Key.Type = temporal.Unknown
		}
		return out, true
	}
}
