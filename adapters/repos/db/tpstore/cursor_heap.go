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
	"container/heap"

	"github.com/weaviate/tpstore/entities/temporal"
)

// heapCursor merges sources whose entries never share a key, such as the
// streams of different properties. There is no masking: the smallest key
// wins, ties go to the source passed first.
type heapCursor struct {
	*lookahead
	sources []Cursor
	h       cursorHeap
}

type heapItem struct {
	source int
	key    temporal.InternalKey
}

type cursorHeap []heapItem

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if c := h[i].key.Compare(h[j].key); c != 0 {
		return c < 0
	}
	return h[i].source < h[j].source
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(heapItem)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// HeapMerge returns the k-way merge of sources.
func HeapMerge(sources ...Cursor) Cursor {
	c := &heapCursor{sources: sources}
	c.lookahead = newLookahead(c.fetch)
	return c
}

func (c *heapCursor) rebuild() {
	c.h = c.h[:0]
	for i, s := range c.sources {
		if s.Valid() {
			c.h = append(c.h, heapItem{source: i, key: s.Peek().Key})
		}
	}
	heap.Init(&c.h)
}

func (c *heapCursor) SeekToFirst() {
	for _, s := range c.sources {
		s.SeekToFirst()
	}
	c.rebuild()
	c.reset()
}

// SeekFloor positions every source at its own floor. Sources whose floor is
// below the overall floor are advanced once, so the next entry of the merge
// is the overall floor.
func (c *heapCursor) SeekFloor(target temporal.InternalKey) bool {
	found := make([]bool, len(c.sources))
	var (
		best    temporal.InternalKey
		hasBest bool
	)
	for i, s := range c.sources {
		if !s.SeekFloor(target) {
			continue
		}
		found[i] = true
		if k := s.Peek().Key; !hasBest || k.Compare(best) > 0 {
			best, hasBest = k, true
		}
	}

	if !hasBest {
		c.rebuild()
		c.reset()
		return false
	}

	for i, s := range c.sources {
		if found[i] && s.Peek().Key.Compare(best) < 0 {
			s.Next()
		}
	}
	c.rebuild()
	c.reset()
	return true
}

func (c *heapCursor) fetch() (Entry, bool) {
	if c.h.Len() == 0 {
		return Entry{}, false
	}

	top := c.h[0]
	src := c.sources[top.source]
	e := src.Next()
	if src.Valid() {
		c.h[0].key = src.Peek().Key
		heap.Fix(&c.h, 0)
	} else {
		heap.Pop(&c.h)
	}
	return e, true
}
