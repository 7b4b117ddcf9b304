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
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/tpstore/entities/temporal"
	"github.com/weaviate/tpstore/usecases/monitoring"
)

func newTestStore(t *testing.T, dir string, opts ...StoreOption) *Store {
	logger, _ := test.NewNullLogger()
	opts = append([]StoreOption{WithMaintenanceInterval(0)}, opts...)
	s, err := New(dir, logger, opts...)
	require.Nil(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func reopen(t *testing.T, s *Store, opts ...StoreOption) *Store {
	require.Nil(t, s.Shutdown(context.Background()))
	return newTestStore(t, s.rootDir, opts...)
}

func setValue(t *testing.T, s *Store, eid uint64, pid int32, start, end temporal.TimePoint, value string) {
	require.Nil(t, s.SetProperty(eid, pid, start, end, temporal.Value, []byte(value)))
}

func setInvalid(t *testing.T, s *Store, eid uint64, pid int32, start, end temporal.TimePoint) {
	require.Nil(t, s.SetProperty(eid, pid, start, end, temporal.Invalid, nil))
}

func pointValue(t *testing.T, s *Store, eid uint64, pid int32, at temporal.TimePoint) string {
	v, err := s.GetPointValue(eid, pid, at)
	require.Nil(t, err)
	return string(v)
}

type traceRecorder struct {
	sync.Mutex
	events []TraceEvent
}

func (r *traceRecorder) record(ev TraceEvent) {
	r.Lock()
	defer r.Unlock()
	r.events = append(r.events, ev)
}

func (r *traceRecorder) ofKind(kind TraceKind) []TraceEvent {
	r.Lock()
	defer r.Unlock()
	var out []TraceEvent
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *traceRecorder) reset() {
	r.Lock()
	defer r.Unlock()
	r.events = nil
}

func TestStoreOverwrite(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	setValue(t, s, 1, 1, 10, 29, "A")
	setValue(t, s, 1, 1, 20, 24, "B")

	check := func(t *testing.T, s *Store) {
		assert.Equal(t, "A", pointValue(t, s, 1, 1, 15))
		assert.Equal(t, "B", pointValue(t, s, 1, 1, 22))
		assert.Equal(t, "A", pointValue(t, s, 1, 1, 27))
		assert.Equal(t, "", pointValue(t, s, 1, 1, 35))
		assert.Equal(t, "", pointValue(t, s, 1, 1, 9))

		l, err := s.GetPointLookup(1, 1, 35)
		require.Nil(t, err)
		assert.Equal(t, temporal.UnknownLookup(), l)
		l, err = s.GetPointLookup(2, 1, 15)
		require.Nil(t, err)
		assert.Equal(t, temporal.UnknownLookup(), l)
	}

	t.Run("in memory", func(t *testing.T) {
		check(t, s)
	})

	t.Run("after flush", func(t *testing.T) {
		require.Nil(t, s.FlushMemTable2Disk())
		check(t, s)
	})

	t.Run("overwrite on disk", func(t *testing.T) {
		setValue(t, s, 1, 1, 26, 28, "C")
		assert.Equal(t, "C", pointValue(t, s, 1, 1, 27))
		require.Nil(t, s.FlushMemTable2Disk())
		assert.Equal(t, "C", pointValue(t, s, 1, 1, 27))
		assert.Equal(t, "A", pointValue(t, s, 1, 1, 29))
		assert.Equal(t, "A", pointValue(t, s, 1, 1, 25))
		setValue(t, s, 1, 1, 27, 27, "A")
		require.Nil(t, s.FlushMemTable2Disk())
	})

	t.Run("after reopen", func(t *testing.T) {
		s = reopen(t, s)
		check(t, s)
	})
}

func TestStoreInvalidValues(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	setValue(t, s, 1, 1, 0, temporal.Now, "A")
	setInvalid(t, s, 1, 1, 10, 19)

	check := func(t *testing.T) {
		l, err := s.GetPointLookup(1, 1, 15)
		require.Nil(t, err)
		assert.Equal(t, temporal.InvalidLookup(), l)
		assert.Equal(t, "", pointValue(t, s, 1, 1, 15))
		assert.Equal(t, "A", pointValue(t, s, 1, 1, 5))
		assert.Equal(t, "A", pointValue(t, s, 1, 1, 20))
		assert.Equal(t, "A", pointValue(t, s, 1, 1, temporal.MaxTime))
	}

	check(t)
	require.Nil(t, s.FlushMemTable2Disk())
	check(t)
}

func TestStoreArguments(t *testing.T) {
	s := newTestStore(t, t.TempDir())

	tests := []struct {
		name string
		err  error
	}{
		{"start after end", s.SetProperty(1, 1, 10, 5, temporal.Value, []byte("x"))},
		{"negative start", s.SetProperty(1, 1, -1, 5, temporal.Value, []byte("x"))},
		{"start at now", s.SetProperty(1, 1, temporal.Now, temporal.Now, temporal.Value, []byte("x"))},
		{"negative property", s.SetProperty(1, -1, 0, 5, temporal.Value, []byte("x"))},
		{"unknown value type", s.SetProperty(1, 1, 0, 5, temporal.Unknown, nil)},
		{"declare negative property", s.DeclareProperty(-1, temporal.KindInt32)},
		{"declare unknown kind", s.DeclareProperty(1, temporal.PropertyKind(42))},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.ErrorIs(t, test.err, temporal.ErrInvalidArgument)
		})
	}

	t.Run("point query at sentinel", func(t *testing.T) {
		_, err := s.GetPointValue(1, 1, temporal.Now)
		assert.ErrorIs(t, err, temporal.ErrInvalidArgument)
		_, err = s.GetPointValue(1, 1, temporal.Init)
		assert.ErrorIs(t, err, temporal.ErrInvalidArgument)
	})

	t.Run("range query with end before start", func(t *testing.T) {
		_, err := s.GetRangeValue(1, 1, 10, 5, &RangeCollector{})
		assert.ErrorIs(t, err, temporal.ErrInvalidArgument)
	})

	t.Run("caller may reuse the value buffer", func(t *testing.T) {
		buf := []byte("first")
		require.Nil(t, s.SetProperty(3, 1, 0, 9, temporal.Value, buf))
		copy(buf, "xxxxx")
		assert.Equal(t, "first", pointValue(t, s, 3, 1, 5))
	})
}

func TestStoreDeclareProperty(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	require.Nil(t, s.DeclareProperty(1, temporal.KindInt64))

	check := func(t *testing.T, s *Store) {
		err := s.SetProperty(1, 1, 0, 9, temporal.Value, []byte{1, 2, 3})
		assert.ErrorIs(t, err, temporal.ErrValueTypeMismatch)
		require.Nil(t, s.SetProperty(1, 1, 0, 9, temporal.Value, make([]byte, 8)))
		setInvalid(t, s, 1, 1, 10, 19)

		require.Nil(t, s.DeclareProperty(1, temporal.KindInt64))
		assert.ErrorIs(t, s.DeclareProperty(1, temporal.KindString), temporal.ErrValueTypeMismatch)

		stats := s.Stats()
		require.NotEmpty(t, stats.Properties)
		assert.Equal(t, int32(1), stats.Properties[0].PropertyID)
		assert.True(t, stats.Properties[0].Declared)
		assert.Equal(t, temporal.KindInt64, stats.Properties[0].Kind)
	}

	t.Run("declared", func(t *testing.T) {
		check(t, s)
	})

	t.Run("undeclared properties accept anything", func(t *testing.T) {
		require.Nil(t, s.SetProperty(1, 2, 0, 9, temporal.Value, []byte{1, 2, 3}))
	})

	t.Run("survives reopen", func(t *testing.T) {
		require.Nil(t, s.FlushMemTable2Disk())
		s = reopen(t, s)
		check(t, s)
	})
}

func TestStoreRangeQuery(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	setValue(t, s, 1, 1, 0, 9, "a")
	setValue(t, s, 1, 1, 5, 14, "b")
	setInvalid(t, s, 1, 1, 20, 24)
	setValue(t, s, 1, 1, 30, temporal.Now, "c")
	setValue(t, s, 2, 1, 10, 19, "x")

	type interval struct {
		start, end temporal.TimePoint
		vt         temporal.ValueType
		value      string
	}
	collect := func(t *testing.T, eid uint64, start, end temporal.TimePoint) []interval {
		res, err := s.GetRangeValue(eid, 1, start, end, NewIntervalCollector(end))
		require.Nil(t, err)
		var out []interval
		for _, iv := range res.([]IntervalValue) {
			out = append(out, interval{iv.Interval.Start, iv.Interval.End, iv.Type, string(iv.Value)})
		}
		return out
	}

	check := func(t *testing.T) {
		assert.Equal(t, []interval{
			{0, 4, temporal.Value, "a"},
			{5, 14, temporal.Value, "b"},
			{15, 29, temporal.Invalid, ""},
			{30, 40, temporal.Value, "c"},
		}, collect(t, 1, 0, 40))

		assert.Equal(t, []interval{
			{7, 14, temporal.Value, "b"},
			{15, 16, temporal.Invalid, ""},
		}, collect(t, 1, 7, 16))

		assert.Equal(t, []interval{
			{10, 15, temporal.Value, "x"},
		}, collect(t, 2, 0, 15))

		assert.Equal(t, []interval{
			{100, temporal.Now, temporal.Value, "c"},
		}, collect(t, 1, 100, temporal.Now))

		assert.Empty(t, collect(t, 3, 0, 100))
	}

	t.Run("in memory", check)

	t.Run("on disk", func(t *testing.T) {
		require.Nil(t, s.FlushMemTable2Disk())
		check(t)
	})

	t.Run("raw entries", func(t *testing.T) {
		res, err := s.GetRangeValue(1, 1, 7, 30, &RangeCollector{})
		require.Nil(t, err)
		entries := res.([]Entry)
		require.Len(t, entries, 3)
		assert.Equal(t, temporal.TimePoint(7), entries[0].Key.Time)
		assert.Equal(t, "b", string(entries[0].Value))
		assert.Equal(t, temporal.TimePoint(15), entries[1].Key.Time)
		assert.Equal(t, temporal.Invalid, entries[1].Key.Type)
		assert.Equal(t, temporal.TimePoint(30), entries[2].Key.Time)
	})
}

func TestStoreScan(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	setValue(t, s, 1, 1, 0, 9, "a")
	setValue(t, s, 1, 2, 5, temporal.Now, "x")
	require.Nil(t, s.FlushMemTable2Disk())
	setValue(t, s, 2, 1, 3, 4, "y")

	entry := func(eid uint64, pid int32, at temporal.TimePoint, vt temporal.ValueType, value string) string {
		e := Entry{Key: temporal.NewInternalKey(temporal.NewEntityPropertyID(eid, pid), at, vt)}
		if value != "" {
			e.Value = []byte(value)
		}
		return e.String()
	}

	var got []string
	require.Nil(t, s.Scan(func(e Entry) bool {
		got = append(got, e.String())
		return true
	}))
	assert.Equal(t, []string{
		entry(1, 1, 0, temporal.Value, "a"),
		entry(1, 1, 10, temporal.Invalid, ""),
		entry(2, 1, 3, temporal.Value, "y"),
		entry(2, 1, 5, temporal.Invalid, ""),
		entry(1, 2, 5, temporal.Value, "x"),
	}, got)

	t.Run("stops early", func(t *testing.T) {
		count := 0
		require.Nil(t, s.Scan(func(e Entry) bool {
			count++
			return false
		}))
		assert.Equal(t, 1, count)
	})
}

func TestStoreWritePath(t *testing.T) {
	trace := &traceRecorder{}
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()
	opts := []StoreOption{
		WithMaintenanceInterval(0), WithPromotionThreshold(2), WithTracer(trace.record),
	}
	s, err := New(dir, logger, opts...)
	require.Nil(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	stats := func() PropertyStats {
		st := s.Stats()
		require.Len(t, st.Properties, 1)
		return st.Properties[0]
	}

	t.Run("first file", func(t *testing.T) {
		setValue(t, s, 1, 1, 0, 9, "a")
		require.Nil(t, s.FlushMemTable2Disk())

		assert.Len(t, trace.ofKind(TraceNewFile), 1)
		routes := trace.ofKind(TraceRoute)
		require.Len(t, routes, 1)
		assert.Equal(t, "no_boundary", routes[0].Case)

		st := stats()
		assert.Equal(t, 0, st.StableFiles)
		assert.Equal(t, 1, st.UnstableFiles)
		assert.Equal(t, temporal.Init, st.StableMaxTime)
		assert.Equal(t, temporal.TimePoint(10), st.UnstableMaxTime)
	})

	t.Run("second file", func(t *testing.T) {
		trace.reset()
		setValue(t, s, 1, 1, 20, 29, "b")
		require.Nil(t, s.FlushMemTable2Disk())

		routes := trace.ofKind(TraceRoute)
		require.Len(t, routes, 1)
		assert.Equal(t, "residual", routes[0].Case)
		assert.Len(t, trace.ofKind(TraceNewFile), 1)
		assert.Equal(t, 2, stats().UnstableFiles)
		assert.Equal(t, temporal.TimePoint(30), stats().UnstableMaxTime)
	})

	t.Run("promotion", func(t *testing.T) {
		trace.reset()
		setValue(t, s, 1, 1, 5, 35, "c")
		require.Nil(t, s.FlushMemTable2Disk())

		routes := trace.ofKind(TraceRoute)
		require.Len(t, routes, 1)
		assert.Equal(t, "unstable_residual", routes[0].Case)
		require.Len(t, trace.ofKind(TracePromotion), 1)
		assert.Empty(t, trace.ofKind(TraceNewFile))

		st := stats()
		assert.Equal(t, 1, st.StableFiles)
		assert.Equal(t, 0, st.UnstableFiles)
		assert.Equal(t, 0, st.Buffers)
		assert.Equal(t, temporal.TimePoint(36), st.StableMaxTime)

		assert.Equal(t, "a", pointValue(t, s, 1, 1, 3))
		assert.Equal(t, "c", pointValue(t, s, 1, 1, 7))
		assert.Equal(t, "c", pointValue(t, s, 1, 1, 15))
		assert.Equal(t, "c", pointValue(t, s, 1, 1, 35))
		assert.Equal(t, "", pointValue(t, s, 1, 1, 36))
	})

	t.Run("write into stable range is buffered", func(t *testing.T) {
		trace.reset()
		setValue(t, s, 1, 1, 1, 2, "d")
		require.Nil(t, s.FlushMemTable2Disk())

		routes := trace.ofKind(TraceRoute)
		require.Len(t, routes, 1)
		assert.Equal(t, "stable", routes[0].Case)
		assert.Empty(t, trace.ofKind(TraceBuffer2File))

		st := stats()
		assert.Equal(t, 1, st.Buffers)
		assert.True(t, st.BufferedBytes > 0)
		assert.Equal(t, "d", pointValue(t, s, 1, 1, 1))
		assert.Equal(t, "a", pointValue(t, s, 1, 1, 3))
	})

	t.Run("buffer survives reopen", func(t *testing.T) {
		require.Nil(t, s.Shutdown(context.Background()))
		reopened, err := New(dir, logger, opts...)
		require.Nil(t, err)
		s = reopened

		assert.Equal(t, 1, stats().Buffers)
		assert.Equal(t, "d", pointValue(t, s, 1, 1, 2))
		assert.Equal(t, "a", pointValue(t, s, 1, 1, 3))
	})

	t.Run("seek compaction merges the buffer", func(t *testing.T) {
		trace.reset()
		f := s.properties[1].currentMeta().Stable[0]
		for f.AllowedSeeks() > 0 {
			f.ConsumeSeek()
		}
		s.runMaintenance()

		assert.Len(t, trace.ofKind(TraceSeekCompaction), 1)
		assert.Len(t, trace.ofKind(TraceBuffer2File), 1)
		assert.Equal(t, 0, stats().Buffers)
		assert.Equal(t, "d", pointValue(t, s, 1, 1, 2))
		assert.Equal(t, "a", pointValue(t, s, 1, 1, 3))
		assert.Equal(t, "c", pointValue(t, s, 1, 1, 35))
	})
}

func TestStoreCoverageUpToMaxTime(t *testing.T) {
	trace := &traceRecorder{}
	s := newTestStore(t, t.TempDir(), WithTracer(trace.record))
	m := temporal.MaxTime

	setValue(t, s, 1, 1, m-5, m-1, "b")
	require.Nil(t, s.FlushMemTable2Disk())
	require.Equal(t, m, s.Stats().Properties[0].UnstableMaxTime)

	trace.reset()
	setValue(t, s, 2, 1, 100, temporal.Now, "d")
	require.Nil(t, s.FlushMemTable2Disk())
	routes := trace.ofKind(TraceRoute)
	require.Len(t, routes, 1)
	assert.Equal(t, "unstable_residual", routes[0].Case)
	assert.Empty(t, trace.ofKind(TraceNewFile))

	setValue(t, s, 3, 1, 0, 10, "e")
	require.Nil(t, s.FlushMemTable2Disk())
	assert.False(t, s.Stats().Frozen)

	check := func(t *testing.T, s *Store) {
		assert.Equal(t, "b", pointValue(t, s, 1, 1, m-1))
		assert.Equal(t, "", pointValue(t, s, 1, 1, m))
		assert.Equal(t, "", pointValue(t, s, 2, 1, 99))
		assert.Equal(t, "d", pointValue(t, s, 2, 1, 100))
		assert.Equal(t, "d", pointValue(t, s, 2, 1, m))
		assert.Equal(t, "e", pointValue(t, s, 3, 1, 5))
	}
	check(t, s)

	t.Run("after reopen", func(t *testing.T) {
		check(t, reopen(t, s))
	})
}

// Every stable file starts with the values in effect at its first instant,
// reads never descend past the stable file covering their start.
func TestStoreReadsStopAtCoveringStableFile(t *testing.T) {
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewRegistry())
	s := newTestStore(t, t.TempDir(), WithPromotionThreshold(1),
		WithTableCacheSize(2), WithPrometheusMetrics(metrics))

	for i := temporal.TimePoint(0); i < 20; i++ {
		setValue(t, s, 1, 1, 10*i, 10*i+9, fmt.Sprint(i))
		require.Nil(t, s.FlushMemTable2Disk())
	}
	st := s.Stats().Properties[0]
	require.Equal(t, 10, st.StableFiles)
	require.Equal(t, 0, st.UnstableFiles)

	tableOpens := func() float64 {
		return testutil.ToFloat64(s.metrics.cacheRequests.WithLabelValues("hit")) +
			testutil.ToFloat64(s.metrics.cacheRequests.WithLabelValues("miss"))
	}

	t.Run("point lookups", func(t *testing.T) {
		for i := temporal.TimePoint(0); i < 20; i++ {
			before := tableOpens()
			assert.Equal(t, fmt.Sprint(i), pointValue(t, s, 1, 1, 10*i+5))
			assert.Equal(t, 1.0, tableOpens()-before, "lookup at %d", 10*i+5)
		}

		before := tableOpens()
		assert.Equal(t, "", pointValue(t, s, 9, 1, 195))
		assert.Equal(t, 1.0, tableOpens()-before)
	})

	t.Run("range queries", func(t *testing.T) {
		collect := func(start, end temporal.TimePoint) []IntervalValue {
			res, err := s.GetRangeValue(1, 1, start, end, NewIntervalCollector(end))
			require.Nil(t, err)
			return res.([]IntervalValue)
		}

		before := tableOpens()
		got := collect(150, 160)
		assert.Equal(t, 1.0, tableOpens()-before)
		require.Len(t, got, 2)
		assert.Equal(t, IntervalValue{
			Interval: iv(150, 159), Type: temporal.Value, Value: []byte("15"),
		}, got[0])
		assert.Equal(t, IntervalValue{
			Interval: iv(160, 160), Type: temporal.Value, Value: []byte("16"),
		}, got[1])

		before = tableOpens()
		got = collect(155, 175)
		assert.Equal(t, 2.0, tableOpens()-before)
		require.Len(t, got, 3)
		assert.Equal(t, iv(155, 159), got[0].Interval)
		assert.Equal(t, iv(160, 169), got[1].Interval)
		assert.Equal(t, "17", string(got[2].Value))
	})
}

func TestStoreBufferThreshold(t *testing.T) {
	trace := &traceRecorder{}
	s := newTestStore(t, t.TempDir(), WithBufferThreshold(1), WithTracer(trace.record))

	setValue(t, s, 1, 1, 0, 99, "a")
	require.Nil(t, s.FlushMemTable2Disk())
	setValue(t, s, 1, 1, 10, 19, "b")
	require.Nil(t, s.FlushMemTable2Disk())

	events := trace.ofKind(TraceBuffer2File)
	require.Len(t, events, 1)
	assert.Equal(t, int32(1), events[0].Property)
	assert.Equal(t, 0, s.Stats().Properties[0].Buffers)
	assert.Equal(t, "a", pointValue(t, s, 1, 1, 9))
	assert.Equal(t, "b", pointValue(t, s, 1, 1, 10))
	assert.Equal(t, "a", pointValue(t, s, 1, 1, 20))
}

type recordingUpdater struct {
	recorder *updaterRecorder
	tier     Tier
	calls    []string
	meta     *FileMetaData
}

func (u *recordingUpdater) Update(e Entry) error {
	u.calls = append(u.calls, "update")
	return nil
}

func (u *recordingUpdater) Finish(meta *FileMetaData) error {
	u.calls = append(u.calls, "finish")
	u.meta = meta
	return nil
}

func (u *recordingUpdater) UpdateMeta() error {
	u.calls = append(u.calls, "update_meta")
	return nil
}

func (u *recordingUpdater) CleanUp() error {
	u.calls = append(u.calls, "cleanup")
	return nil
}

type updaterRecorder struct {
	sync.Mutex
	updaters []*recordingUpdater
}

func (r *updaterRecorder) factory(pid int32, tier Tier, number uint64) IndexUpdater {
	r.Lock()
	defer r.Unlock()
	u := &recordingUpdater{recorder: r, tier: tier}
	r.updaters = append(r.updaters, u)
	return u
}

func TestStoreIndexUpdaters(t *testing.T) {
	rec := &updaterRecorder{}
	s := newTestStore(t, t.TempDir(), WithIndexUpdaters(rec.factory))

	setValue(t, s, 1, 1, 0, 9, "a")
	setValue(t, s, 2, 1, 5, 7, "b")
	require.Nil(t, s.FlushMemTable2Disk())

	rec.Lock()
	defer rec.Unlock()
	require.Len(t, rec.updaters, 1)
	u := rec.updaters[0]
	assert.Equal(t, TierUnstable, u.tier)
	assert.Equal(t, []string{
		"update", "update", "update", "update",
		"finish", "update_meta", "cleanup",
	}, u.calls)
	require.NotNil(t, u.meta)
	assert.Equal(t, temporal.TimePoint(0), u.meta.Smallest)
	assert.Equal(t, temporal.TimePoint(10), u.meta.Largest)
}

func TestStoreBackpressure(t *testing.T) {
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewRegistry())
	s := newTestStore(t, t.TempDir(), WithMemTableThreshold(1), WithPrometheusMetrics(metrics))

	release := make(chan struct{})
	s.beforeMerge = func() error {
		<-release
		return nil
	}

	// the first write freezes the memtable, its merge blocks
	setValue(t, s, 1, 1, 0, 9, "a")
	assert.True(t, s.Stats().Frozen)

	done := make(chan error, 1)
	go func() {
		done <- s.SetProperty(1, 1, 10, 19, temporal.Value, []byte("b"))
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.backpressureWaits) == 1
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-done:
		t.Fatal("second hand-off must wait for the first merge")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second hand-off still blocked after the merge finished")
	}

	require.Nil(t, s.FlushMemTable2Disk())
	assert.False(t, s.Stats().Frozen)
	assert.Equal(t, "a", pointValue(t, s, 1, 1, 5))
	assert.Equal(t, "b", pointValue(t, s, 1, 1, 15))
}

func TestStoreBackgroundFailure(t *testing.T) {
	trace := &traceRecorder{}
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewRegistry())
	s := newTestStore(t, t.TempDir(), WithTracer(trace.record), WithPrometheusMetrics(metrics))

	failed := false
	s.beforeMerge = func() error {
		if failed {
			return nil
		}
		failed = true
		return errors.New("disk full")
	}

	setValue(t, s, 1, 1, 0, 9, "a")
	err := s.FlushMemTable2Disk()
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "disk full")

	require.Len(t, trace.ofKind(TraceMergeFailed), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.backgroundFailures))
	assert.True(t, s.Stats().Frozen)
	assert.Equal(t, "a", pointValue(t, s, 1, 1, 5))

	setValue(t, s, 1, 1, 20, 29, "b")
	require.Nil(t, s.FlushMemTable2Disk())

	st := s.Stats()
	assert.False(t, st.Frozen)
	require.Len(t, st.Properties, 1)
	assert.Equal(t, 1, st.Properties[0].UnstableFiles)
	assert.Equal(t, "a", pointValue(t, s, 1, 1, 5))
	assert.Equal(t, "b", pointValue(t, s, 1, 1, 25))

	s = reopen(t, s)
	assert.Equal(t, "a", pointValue(t, s, 1, 1, 5))
	assert.Equal(t, "b", pointValue(t, s, 1, 1, 25))
}

func TestStoreShutdown(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	setValue(t, s, 1, 1, 0, 9, "a")
	require.Nil(t, s.Shutdown(context.Background()))

	t.Run("operations fail", func(t *testing.T) {
		assert.ErrorIs(t, s.SetProperty(1, 1, 0, 9, temporal.Value, []byte("a")), temporal.ErrStoreClosed)
		assert.ErrorIs(t, s.DeclareProperty(1, temporal.KindBytes), temporal.ErrStoreClosed)
		_, err := s.GetPointValue(1, 1, 5)
		assert.ErrorIs(t, err, temporal.ErrStoreClosed)
		_, err = s.GetRangeValue(1, 1, 0, 9, &RangeCollector{})
		assert.ErrorIs(t, err, temporal.ErrStoreClosed)
		assert.ErrorIs(t, s.Scan(func(Entry) bool { return true }), temporal.ErrStoreClosed)
		assert.ErrorIs(t, s.FlushMemTable2Disk(), temporal.ErrStoreClosed)
		assert.ErrorIs(t, s.FlushMetaInfo2Disk(), temporal.ErrStoreClosed)
		assert.ErrorIs(t, s.Shutdown(context.Background()), temporal.ErrStoreClosed)
	})

	t.Run("final memtable is merged", func(t *testing.T) {
		s = newTestStore(t, s.rootDir)
		assert.Equal(t, "a", pointValue(t, s, 1, 1, 5))
		require.Nil(t, s.FlushMetaInfo2Disk())
	})
}

func TestStoreOptions(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tests := []struct {
		name string
		opt  StoreOption
	}{
		{"memtable threshold", WithMemTableThreshold(0)},
		{"buffer threshold", WithBufferThreshold(0)},
		{"promotion threshold", WithPromotionThreshold(0)},
		{"table cache size", WithTableCacheSize(0)},
		{"bloom rate", WithBloomFalsePositiveRate(1)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := New(t.TempDir(), logger, test.opt)
			assert.NotNil(t, err)
		})
	}
}
