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

// RangeQueryCallback consumes the result of a range query. OnNewEntry is
// called once per change of the value within the queried interval, in time
// order, and OnReturn once at the end. Callbacks run while the store is
// locked for reading and must not call back into the store.
type RangeQueryCallback interface {
	OnNewEntry(e Entry)
	OnReturn() interface{}
}

// RangeCollector collects the entries of a range query. OnReturn returns
// them as []Entry.
type RangeCollector struct {
	Entries []Entry
}

func (c *RangeCollector) OnNewEntry(e Entry) {
	c.Entries = append(c.Entries, e)
}

func (c *RangeCollector) OnReturn() interface{} {
	return c.Entries
}

// IntervalValue is the value of a property during Interval.
type IntervalValue struct {
	Interval temporal.TimeInterval
	Type     temporal.ValueType
	Value    []byte
}

// IntervalCollector turns the entries of a range query into closed
// intervals, the last one ending at the end of the query. OnReturn returns
// []IntervalValue.
type IntervalCollector struct {
	end       temporal.TimePoint
	intervals []IntervalValue
}

func NewIntervalCollector(end temporal.TimePoint) *IntervalCollector {
	return &IntervalCollector{end: end}
}

func (c *IntervalCollector) OnNewEntry(e Entry) {
	if n := len(c.intervals); n > 0 {
		c.intervals[n-1].Interval.End = e.Key.Time - 1
	}
	c.intervals = append(c.intervals, IntervalValue{
		Interval: temporal.TimeInterval{Start: e.Key.Time, End: c.end},
		Type:     e.Key.Type,
		Value:    e.Value,
	})
}

func (c *IntervalCollector) OnReturn() interface{} {
	return c.intervals
}

// emitRange streams the value changes of id within iv from a cursor
// restricted to id. The first entry is the value in effect at iv.Start, it
// is left out if nothing is known there.
func emitRange(c Cursor, id temporal.EntityPropertyID, iv temporal.TimeInterval,
	cb RangeQueryCallback,
) {
	c = Visible(c)
	c.SeekFloor(temporal.NewInternalKey(id, iv.Start, temporal.Unknown))

	for c.Valid() {
		e := c.Next()
		if e.Key.Time > iv.End {
			return
		}
		if e.Key.Time < iv.Start {
			e.Key.Time = iv.Start
		}
		cb.OnNewEntry(e)
	}
}
