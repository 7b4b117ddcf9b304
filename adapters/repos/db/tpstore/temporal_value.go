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
	"github.com/google/btree"

	"github.com/weaviate/tpstore/entities/temporal"
)

const btreeDegree = 16

// PointEntry is one key of a TemporalValue: the value that holds from Time
// until the next entry, or until Now for the last one.
type PointEntry[V any] struct {
	Time    temporal.TimePoint
	Unknown bool
	Value   V
}

// IntervalEntry is a coalesced span [Start, End] of one entry.
type IntervalEntry[V any] struct {
	Start   temporal.TimePoint
	End     temporal.TimePoint
	Unknown bool
	Value   V
}

type timeItem[V any] struct {
	PointEntry[V]
}

func (i *timeItem[V]) Less(than btree.Item) bool {
	return i.Time < than.(*timeItem[V]).Time
}

func pivot[V any](t temporal.TimePoint) *timeItem[V] {
	return &timeItem[V]{PointEntry: PointEntry[V]{Time: t}}
}

// TemporalValue maps interval starts to values for one entity property. Once
// non-empty it partitions [first key, Now) without gaps; spans without
// information are explicit unknown entries.
//
// A TemporalValue is not safe for concurrent mutation.
type TemporalValue[V any] struct {
	tree *btree.BTree
}

func NewTemporalValue[V any]() *TemporalValue[V] {
	return &TemporalValue[V]{tree: btree.New(btreeDegree)}
}

// Put sets value for every instant of iv. The entry in effect right after
// iv.End before the call stays in effect after iv.End. An interval open
// until Now truncates everything from iv.Start on.
func (tv *TemporalValue[V]) Put(iv temporal.TimeInterval, value V) {
	tv.put(iv, false, value)
}

// PutUnknown marks iv as a gap.
func (tv *TemporalValue[V]) PutUnknown(iv temporal.TimeInterval) {
	var zero V
	tv.put(iv, true, zero)
}

func (tv *TemporalValue[V]) put(iv temporal.TimeInterval, unknown bool, value V) {
	if iv.End >= temporal.MaxTime {
		tv.deleteRange(iv.Start, temporal.Now)
	} else {
		after := iv.End.Next()
		tail, ok := tv.Floor(after)
		if !ok || tail.Time != after {
			marker := &timeItem[V]{PointEntry: PointEntry[V]{Time: after, Unknown: true}}
			if ok {
				marker.Unknown = tail.Unknown
				marker.Value = tail.Value
			}
			tv.tree.ReplaceOrInsert(marker)
		}
		tv.deleteRange(iv.Start, after)
	}

	tv.tree.ReplaceOrInsert(&timeItem[V]{PointEntry: PointEntry[V]{
		Time: iv.Start, Unknown: unknown, Value: value,
	}})
}

// deleteRange removes every key in [from, to). to == Now removes up to and
// including the last key.
func (tv *TemporalValue[V]) deleteRange(from, to temporal.TimePoint) {
	var doomed []btree.Item
	tv.tree.AscendGreaterOrEqual(pivot[V](from), func(i btree.Item) bool {
		if to != temporal.Now && i.(*timeItem[V]).Time >= to {
			return false
		}
		doomed = append(doomed, i)
		return true
	})
	for _, item := range doomed {
		tv.tree.Delete(item)
	}
}

// Get returns the value in effect at t. ok is false if nothing is known at t.
func (tv *TemporalValue[V]) Get(t temporal.TimePoint) (value V, ok bool) {
	e, found := tv.Floor(t)
	if !found || e.Unknown {
		return value, false
	}
	return e.Value, true
}

// Floor returns the entry with the greatest key <= t, including unknown
// entries.
func (tv *TemporalValue[V]) Floor(t temporal.TimePoint) (PointEntry[V], bool) {
	var (
		out   PointEntry[V]
		found bool
	)
	tv.tree.DescendLessOrEqual(pivot[V](t), func(i btree.Item) bool {
		out, found = i.(*timeItem[V]).PointEntry, true
		return false
	})
	return out, found
}

// Ceiling returns the entry with the smallest key >= t.
func (tv *TemporalValue[V]) Ceiling(t temporal.TimePoint) (PointEntry[V], bool) {
	var (
		out   PointEntry[V]
		found bool
	)
	tv.tree.AscendGreaterOrEqual(pivot[V](t), func(i btree.Item) bool {
		out, found = i.(*timeItem[V]).PointEntry, true
		return false
	})
	return out, found
}

func (tv *TemporalValue[V]) First() (PointEntry[V], bool) {
	i := tv.tree.Min()
	if i == nil {
		return PointEntry[V]{}, false
	}
	return i.(*timeItem[V]).PointEntry, true
}

func (tv *TemporalValue[V]) Last() (PointEntry[V], bool) {
	i := tv.tree.Max()
	if i == nil {
		return PointEntry[V]{}, false
	}
	return i.(*timeItem[V]).PointEntry, true
}

// Overlap reports whether a known entry covers any instant of [start, end].
func (tv *TemporalValue[V]) Overlap(start, end temporal.TimePoint) bool {
	if e, ok := tv.Floor(start); ok && !e.Unknown {
		return true
	}

	found := false
	tv.tree.AscendGreaterOrEqual(pivot[V](start), func(i btree.Item) bool {
		e := i.(*timeItem[V])
		if e.Time > end {
			return false
		}
		if e.Time > start && !e.Unknown {
			found = true
			return false
		}
		return true
	})
	return found
}

// Points calls fn for every entry starting at the floor entry of from, or
// at the first entry if there is none. Iteration stops when fn returns
// false.
func (tv *TemporalValue[V]) Points(from temporal.TimePoint, fn func(PointEntry[V]) bool) {
	start := from
	if e, ok := tv.Floor(from); ok {
		start = e.Time
	}
	tv.tree.AscendGreaterOrEqual(pivot[V](start), func(i btree.Item) bool {
		return fn(i.(*timeItem[V]).PointEntry)
	})
}

// Intervals is like Points but yields coalesced spans. The last span ends at
// Now.
func (tv *TemporalValue[V]) Intervals(from temporal.TimePoint, fn func(IntervalEntry[V]) bool) {
	var (
		prev    PointEntry[V]
		hasPrev bool
		stopped bool
	)
	tv.Points(from, func(e PointEntry[V]) bool {
		if hasPrev {
			if !fn(IntervalEntry[V]{
				Start: prev.Time, End: e.Time - 1, Unknown: prev.Unknown, Value: prev.Value,
			}) {
				stopped = true
				return false
			}
		}
		prev, hasPrev = e, true
		return true
	})
	if hasPrev && !stopped {
		fn(IntervalEntry[V]{
			Start: prev.Time, End: temporal.Now, Unknown: prev.Unknown, Value: prev.Value,
		})
	}
}

// KnownIntervals yields only the spans that are not unknown.
func (tv *TemporalValue[V]) KnownIntervals(fn func(temporal.TimeInterval, V) bool) {
	tv.Intervals(temporal.Init, func(e IntervalEntry[V]) bool {
		if e.Unknown {
			return true
		}
		return fn(temporal.TimeInterval{Start: e.Start, End: e.End}, e.Value)
	})
}

func (tv *TemporalValue[V]) Len() int {
	return tv.tree.Len()
}

func (tv *TemporalValue[V]) IsEmpty() bool {
	return tv.tree.Len() == 0
}

// Clone returns a copy that shares values but not structure.
func (tv *TemporalValue[V]) Clone() *TemporalValue[V] {
	out := NewTemporalValue[V]()
	tv.tree.Ascend(func(i btree.Item) bool {
		e := *i.(*timeItem[V])
		out.tree.ReplaceOrInsert(&e)
		return true
	})
	return out
}
