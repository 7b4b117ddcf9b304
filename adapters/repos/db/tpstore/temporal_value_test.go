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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/tpstore/entities/temporal"
)

func iv(start, end temporal.TimePoint) temporal.TimeInterval {
	return temporal.TimeInterval{Start: start, End: end}
}

func points(tv *TemporalValue[string]) []PointEntry[string] {
	var out []PointEntry[string]
	tv.Points(temporal.Init, func(e PointEntry[string]) bool {
		out = append(out, e)
		return true
	})
	return out
}

func TestTemporalValuePut(t *testing.T) {
	t.Run("single interval leaves an unknown marker after its end", func(t *testing.T) {
		tv := NewTemporalValue[string]()
		tv.Put(iv(10, 20), "a")

		assert.Equal(t, []PointEntry[string]{
			{Time: 10, Value: "a"},
			{Time: 21, Unknown: true},
		}, points(tv))
	})

	t.Run("overwrite inside keeps the value after the new interval", func(t *testing.T) {
		tv := NewTemporalValue[string]()
		tv.Put(iv(10, 29), "A")
		tv.Put(iv(20, 24), "B")

		for _, tc := range []struct {
			at    temporal.TimePoint
			value string
			ok    bool
		}{
			{9, "", false},
			{15, "A", true},
			{22, "B", true},
			{27, "A", true},
			{35, "", false},
		} {
			v, ok := tv.Get(tc.at)
			assert.Equal(t, tc.ok, ok, "at %d", tc.at)
			assert.Equal(t, tc.value, v, "at %d", tc.at)
		}
	})

	t.Run("interval open until Now truncates", func(t *testing.T) {
		tv := NewTemporalValue[string]()
		tv.Put(iv(10, 20), "a")
		tv.Put(iv(30, 40), "b")
		tv.Put(iv(15, temporal.Now), "c")

		assert.Equal(t, []PointEntry[string]{
			{Time: 10, Value: "a"},
			{Time: 15, Value: "c"},
		}, points(tv))
	})

	t.Run("overwrite spanning several entries", func(t *testing.T) {
		tv := NewTemporalValue[string]()
		tv.Put(iv(0, 9), "a")
		tv.Put(iv(10, 19), "b")
		tv.Put(iv(20, 29), "c")
		tv.Put(iv(5, 24), "x")

		assert.Equal(t, []PointEntry[string]{
			{Time: 0, Value: "a"},
			{Time: 5, Value: "x"},
			{Time: 25, Value: "c"},
			{Time: 30, Unknown: true},
		}, points(tv))
	})

	t.Run("adjacent interval reuses the existing marker position", func(t *testing.T) {
		tv := NewTemporalValue[string]()
		tv.Put(iv(10, 20), "a")
		tv.Put(iv(21, 30), "b")

		assert.Equal(t, []PointEntry[string]{
			{Time: 10, Value: "a"},
			{Time: 21, Value: "b"},
			{Time: 31, Unknown: true},
		}, points(tv))
	})

	t.Run("interval ending at MaxTime has no marker", func(t *testing.T) {
		tv := NewTemporalValue[string]()
		tv.Put(iv(10, temporal.MaxTime), "a")

		assert.Equal(t, []PointEntry[string]{{Time: 10, Value: "a"}}, points(tv))
	})
}

func TestTemporalValueOverlap(t *testing.T) {
	tv := NewTemporalValue[string]()
	tv.Put(iv(10, 20), "a")
	tv.Put(iv(40, 50), "b")

	assert.False(t, tv.Overlap(0, 9))
	assert.True(t, tv.Overlap(0, 10))
	assert.True(t, tv.Overlap(20, 30))
	assert.False(t, tv.Overlap(21, 39))
	assert.True(t, tv.Overlap(21, temporal.Now))
	assert.True(t, tv.Overlap(45, 45))
	assert.False(t, tv.Overlap(51, 100))
}

func TestTemporalValueIntervals(t *testing.T) {
	tv := NewTemporalValue[string]()
	tv.Put(iv(10, 20), "a")
	tv.Put(iv(30, temporal.Now), "b")

	var spans []IntervalEntry[string]
	tv.Intervals(temporal.Init, func(e IntervalEntry[string]) bool {
		spans = append(spans, e)
		return true
	})

	assert.Equal(t, []IntervalEntry[string]{
		{Start: 10, End: 20, Value: "a"},
		{Start: 21, End: 29, Unknown: true},
		{Start: 30, End: temporal.Now, Value: "b"},
	}, spans)

	t.Run("restart from a floor position", func(t *testing.T) {
		var starts []temporal.TimePoint
		tv.Intervals(25, func(e IntervalEntry[string]) bool {
			starts = append(starts, e.Start)
			return true
		})
		assert.Equal(t, []temporal.TimePoint{21, 30}, starts)
	})

	t.Run("known spans only", func(t *testing.T) {
		var known []temporal.TimeInterval
		tv.KnownIntervals(func(i temporal.TimeInterval, v string) bool {
			known = append(known, i)
			return true
		})
		assert.Equal(t, []temporal.TimeInterval{iv(10, 20), iv(30, temporal.Now)}, known)
	})

	t.Run("stop early", func(t *testing.T) {
		calls := 0
		tv.Intervals(temporal.Init, func(e IntervalEntry[string]) bool {
			calls++
			return false
		})
		assert.Equal(t, 1, calls)
	})
}

func TestTemporalValueFloorCeiling(t *testing.T) {
	tv := NewTemporalValue[string]()
	_, ok := tv.Floor(5)
	require.False(t, ok)

	tv.Put(iv(10, 20), "a")

	e, ok := tv.Floor(15)
	require.True(t, ok)
	assert.Equal(t, temporal.TimePoint(10), e.Time)

	e, ok = tv.Ceiling(11)
	require.True(t, ok)
	assert.Equal(t, temporal.TimePoint(21), e.Time)

	_, ok = tv.Ceiling(22)
	assert.False(t, ok)

	clone := tv.Clone()
	clone.Put(iv(0, temporal.Now), "z")
	v, _ := tv.Get(15)
	assert.Equal(t, "a", v)
}
