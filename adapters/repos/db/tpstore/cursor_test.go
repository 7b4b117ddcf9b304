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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/tpstore/entities/temporal"
)

func testID(eid uint64) temporal.EntityPropertyID {
	return temporal.NewEntityPropertyID(eid, 1)
}

func testEntry(eid uint64, t temporal.TimePoint, vt temporal.ValueType, value string) Entry {
	e := Entry{Key: temporal.NewInternalKey(testID(eid), t, vt)}
	if value != "" {
		e.Value = []byte(value)
	}
	return e
}

func val(eid uint64, t temporal.TimePoint, value string) Entry {
	return testEntry(eid, t, temporal.Value, value)
}

func unknown(eid uint64, t temporal.TimePoint) Entry {
	return testEntry(eid, t, temporal.Unknown, "")
}

func floorTarget(eid uint64, t temporal.TimePoint) temporal.InternalKey {
	return temporal.NewInternalKey(testID(eid), t, temporal.Unknown)
}

func drainAll(c Cursor) []Entry {
	c.SeekToFirst()
	return Drain(c)
}

// assertSeekFloorContract checks a cursor over {3:B, 5:C} of entity 1.
func assertSeekFloorContract(t *testing.T, c Cursor) {
	tests := []struct {
		target temporal.TimePoint
		found  bool
		next   Entry
	}{
		{target: 2, found: false, next: val(1, 3, "B")},
		{target: 3, found: true, next: val(1, 3, "B")},
		{target: 4, found: true, next: val(1, 3, "B")},
		{target: 5, found: true, next: val(1, 5, "C")},
		{target: 6, found: true, next: val(1, 5, "C")},
	}

	for _, test := range tests {
		found := c.SeekFloor(floorTarget(1, test.target))
		assert.Equal(t, test.found, found, "seekFloor(%d)", test.target)
		require.True(t, c.Valid(), "seekFloor(%d)", test.target)
		assert.Equal(t, test.next, c.Next(), "seekFloor(%d)", test.target)
	}
}

func assertSeekFloorEmpty(t *testing.T, c Cursor) {
	for _, target := range []temporal.TimePoint{0, 1, 5, temporal.MaxTime} {
		assert.False(t, c.SeekFloor(floorTarget(1, target)))
		assert.False(t, c.Valid())
	}
}

func TestSeekFloorContract(t *testing.T) {
	t.Run("slice", func(t *testing.T) {
		assertSeekFloorContract(t, NewSliceCursor([]Entry{val(1, 3, "B"), val(1, 5, "C")}))
		assertSeekFloorEmpty(t, NewSliceCursor(nil))
	})

	t.Run("memtable", func(t *testing.T) {
		mt := NewMemTable()
		require.Nil(t, mt.AddInterval(testID(1), iv(3, 4), temporal.Value, []byte("B")))
		require.Nil(t, mt.AddToNow(testID(1), 5, temporal.Value, []byte("C")))
		assertSeekFloorContract(t, mt.NewCursor())
		assertSeekFloorEmpty(t, NewMemTable().NewCursor())
	})

	t.Run("masking", func(t *testing.T) {
		latest := NewSliceCursor([]Entry{val(1, 5, "C")})
		old := NewSliceCursor([]Entry{val(1, 3, "B")})
		assertSeekFloorContract(t, MaskingMerge(latest, old))
		assertSeekFloorEmpty(t, MaskingMerge(NewSliceCursor(nil), NewSliceCursor(nil)))
	})

	t.Run("heap", func(t *testing.T) {
		a := NewSliceCursor([]Entry{val(1, 5, "C")})
		b := NewSliceCursor([]Entry{val(1, 3, "B")})
		assertSeekFloorContract(t, HeapMerge(a, b))
		assertSeekFloorEmpty(t, HeapMerge())
	})

	t.Run("scoped", func(t *testing.T) {
		source := NewSliceCursor([]Entry{
			val(0, 1, "x"), val(1, 3, "B"), val(1, 5, "C"), val(2, 0, "y"),
		})
		assertSeekFloorContract(t, RestrictToID(source, testID(1)))
	})
}

func TestCursorMisuse(t *testing.T) {
	t.Run("peek before seek", func(t *testing.T) {
		c := NewSliceCursor([]Entry{val(1, 3, "B")})
		assert.Panics(t, func() { c.Peek() })
	})

	t.Run("next past the end", func(t *testing.T) {
		c := NewSliceCursor([]Entry{val(1, 3, "B")})
		c.SeekToFirst()
		c.Next()
		assert.Panics(t, func() { c.Next() })
	})

	t.Run("out of order source", func(t *testing.T) {
		latest := NewSliceCursor([]Entry{val(1, 5, "a"), val(1, 3, "b")})
		c := MaskingMerge(latest, NewSliceCursor(nil))
		c.SeekToFirst()
		assert.Panics(t, func() { Drain(c) })
	})
}

func TestMemTableCursor(t *testing.T) {
	mt := NewMemTable()
	require.Nil(t, mt.AddInterval(testID(2), iv(10, 19), temporal.Value, []byte("a")))
	require.Nil(t, mt.AddInterval(testID(1), iv(0, 4), temporal.Invalid, nil))

	c := mt.NewCursor()
	assert.Equal(t, []Entry{
		testEntry(1, 0, temporal.Invalid, ""),
		unknown(1, 5),
		val(2, 10, "a"),
		unknown(2, 20),
	}, drainAll(c))

	t.Run("floor before the first key of an id falls back to the previous id", func(t *testing.T) {
		require.True(t, c.SeekFloor(floorTarget(2, 3)))
		assert.Equal(t, unknown(1, 5), c.Next())
		assert.Equal(t, val(2, 10, "a"), c.Next())
	})

	t.Run("floor after everything", func(t *testing.T) {
		require.True(t, c.SeekFloor(floorTarget(7, 0)))
		assert.Equal(t, []Entry{unknown(2, 20)}, Drain(c))
	})
}

func TestMaskingMerge(t *testing.T) {
	tests := []struct {
		name     string
		latest   []Entry
		old      []Entry
		expected []Entry
	}{
		{
			name:     "latest wins on equal keys",
			latest:   []Entry{val(1, 10, "new")},
			old:      []Entry{val(1, 10, "old")},
			expected: []Entry{val(1, 10, "new")},
		},
		{
			name:     "old keys inside a known span of latest are masked",
			latest:   []Entry{val(1, 5, "X"), unknown(1, 20)},
			old:      []Entry{val(1, 3, "A"), val(1, 10, "B"), val(1, 25, "C")},
			expected: []Entry{val(1, 3, "A"), val(1, 5, "X"), val(1, 20, "B"), val(1, 25, "C")},
		},
		{
			name:     "unknown in latest re-exposes old with its type",
			latest:   []Entry{unknown(1, 10)},
			old:      []Entry{val(1, 5, "A"), testEntry(1, 12, temporal.Invalid, "")},
			expected: []Entry{val(1, 5, "A"), val(1, 10, "A"), testEntry(1, 12, temporal.Invalid, "")},
		},
		{
			name:     "unknown over unknown stays unknown",
			latest:   []Entry{unknown(1, 10)},
			old:      []Entry{unknown(1, 4)},
			expected: []Entry{unknown(1, 4), unknown(1, 10)},
		},
		{
			name:     "exhausted latest masks the rest of its id",
			latest:   []Entry{val(1, 5, "X")},
			old:      []Entry{val(1, 7, "A"), val(1, 9, "B"), val(2, 1, "C")},
			expected: []Entry{val(1, 5, "X"), val(2, 1, "C")},
		},
		{
			name:     "covers do not leak across ids",
			latest:   []Entry{val(1, 5, "X")},
			old:      []Entry{unknown(2, 0), val(2, 3, "A")},
			expected: []Entry{val(1, 5, "X"), unknown(2, 0), val(2, 3, "A")},
		},
		{
			name:     "empty latest",
			old:      []Entry{val(1, 5, "A")},
			expected: []Entry{val(1, 5, "A")},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := MaskingMerge(NewSliceCursor(test.latest), NewSliceCursor(test.old))
			assert.Equal(t, test.expected, drainAll(c))
		})
	}

	t.Run("seek floor into a masked region", func(t *testing.T) {
		latest := NewSliceCursor([]Entry{val(1, 5, "X"), unknown(1, 20)})
		old := NewSliceCursor([]Entry{val(1, 3, "A"), val(1, 10, "B"), val(1, 25, "C")})
		c := MaskingMerge(latest, old)

		require.True(t, c.SeekFloor(floorTarget(1, 12)))
		assert.Equal(t, []Entry{val(1, 5, "X"), val(1, 20, "B"), val(1, 25, "C")}, Drain(c))

		require.True(t, c.SeekFloor(floorTarget(1, 22)))
		assert.Equal(t, []Entry{val(1, 20, "B"), val(1, 25, "C")}, Drain(c))
	})
}

func randomLayer(r *rand.Rand, ids, writes int) *MemTable {
	mt := NewMemTable()
	for i := 0; i < writes; i++ {
		id := testID(uint64(r.Intn(ids)))
		start := temporal.TimePoint(r.Intn(100))
		end := start + temporal.TimePoint(r.Intn(30))
		if r.Intn(10) == 0 {
			end = temporal.Now
		}
		vt, data := temporal.Value, []byte(fmt.Sprintf("v%d", r.Intn(5)))
		if r.Intn(5) == 0 {
			vt, data = temporal.Invalid, nil
		}
		if err := mt.AddInterval(id, iv(start, end), vt, data); err != nil {
			panic(err)
		}
	}
	return mt
}

// resolve computes the value of id at t by asking the layers newest first.
func resolve(layers []*MemTable, id temporal.EntityPropertyID, t temporal.TimePoint) temporal.Lookup {
	for _, l := range layers {
		if res := l.Lookup(id, t); res.Resolved() {
			return res
		}
	}
	return temporal.UnknownLookup()
}

func lookupAt(entries []Entry, id temporal.EntityPropertyID, t temporal.TimePoint) temporal.Lookup {
	res := temporal.UnknownLookup()
	for _, e := range entries {
		if e.Key.ID == id && e.Key.Time <= t {
			res = temporal.LookupFromType(e.Key.Type, e.Value)
		}
	}
	return res
}

func TestMaskingMergeAssociativity(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		layers := make([]*MemTable, 4)
		for i := range layers {
			layers[i] = randomLayer(r, 3, 6)
		}
		cursor := func(i int) Cursor { return layers[i].NewCursor() }

		leftFold := MaskingMerge(MaskingMerge(MaskingMerge(cursor(0), cursor(1)), cursor(2)), cursor(3))
		rightFold := MaskingChain(cursor(0), cursor(1), cursor(2), cursor(3))
		mixed := MaskingMerge(MaskingMerge(cursor(0), cursor(1)), MaskingMerge(cursor(2), cursor(3)))

		expected := drainAll(rightFold)
		require.Equal(t, expected, drainAll(leftFold), "round %d", round)
		require.Equal(t, expected, drainAll(mixed), "round %d", round)

		for eid := uint64(0); eid < 3; eid++ {
			for ts := temporal.TimePoint(0); ts < 140; ts++ {
				require.Equal(t, resolve(layers, testID(eid), ts),
					lookupAt(expected, testID(eid), ts), "round %d id %d time %d", round, eid, ts)
			}
		}

		for eid := uint64(0); eid < 3; eid++ {
			for ts := temporal.TimePoint(0); ts < 140; ts += 7 {
				target := floorTarget(eid, ts)
				var want []Entry
				for i, e := range expected {
					if e.Key.Compare(target) <= 0 {
						want = expected[i:]
					}
				}
				found := rightFold.SeekFloor(target)
				require.Equal(t, want != nil, found)
				if found {
					require.Equal(t, want, Drain(rightFold), "round %d floor %s", round, target)
				}
			}
		}
	}
}

func TestHeapMerge(t *testing.T) {
	other := func(t temporal.TimePoint, value string) Entry {
		return Entry{
			Key:   temporal.NewInternalKey(temporal.NewEntityPropertyID(1, 2), t, temporal.Value),
			Value: []byte(value),
		}
	}
	a := NewSliceCursor([]Entry{val(1, 1, "a"), val(2, 1, "b")})
	b := NewSliceCursor([]Entry{other(0, "c"), other(5, "d")})
	c := NewSliceCursor([]Entry{val(1, 4, "e")})

	merged := HeapMerge(a, b, c)
	assert.Equal(t, []Entry{
		val(1, 1, "a"), val(1, 4, "e"), val(2, 1, "b"), other(0, "c"), other(5, "d"),
	}, drainAll(merged))

	require.True(t, merged.SeekFloor(floorTarget(2, 9)))
	assert.Equal(t, []Entry{val(2, 1, "b"), other(0, "c"), other(5, "d")}, Drain(merged))
}

func TestRestrictToID(t *testing.T) {
	source := NewSliceCursor([]Entry{
		val(1, 1, "a"), val(2, 1, "b"), val(2, 7, "c"), val(3, 0, "d"),
	})
	c := RestrictToID(source, testID(2))

	assert.Equal(t, []Entry{val(2, 1, "b"), val(2, 7, "c")}, drainAll(c))

	t.Run("floor before the id", func(t *testing.T) {
		assert.False(t, c.SeekFloor(floorTarget(1, 5)))
		assert.Equal(t, val(2, 1, "b"), c.Peek())
	})

	t.Run("floor after the id clamps to its last entry", func(t *testing.T) {
		assert.True(t, c.SeekFloor(floorTarget(3, 5)))
		assert.Equal(t, []Entry{val(2, 7, "c")}, Drain(c))
	})

	t.Run("floor before the first entry of the id", func(t *testing.T) {
		assert.False(t, c.SeekFloor(floorTarget(2, 0)))
		assert.Equal(t, val(2, 1, "b"), c.Peek())
	})

	t.Run("missing id", func(t *testing.T) {
		missing := RestrictToID(source, testID(9))
		assert.Empty(t, drainAll(missing))
		assert.False(t, missing.SeekFloor(floorTarget(9, 3)))
		assert.False(t, missing.Valid())
	})
}

func TestUnknownToInvalid(t *testing.T) {
	c := UnknownToInvalid(NewSliceCursor([]Entry{val(1, 1, "a"), unknown(1, 5)}))
	assert.Equal(t, []Entry{val(1, 1, "a"), testEntry(1, 5, temporal.Invalid, "")}, drainAll(c))
}

func TestCompacting(t *testing.T) {
	c := Compacting(NewSliceCursor([]Entry{
		unknown(1, 0),
		val(1, 1, "a"),
		val(1, 3, "a"),
		testEntry(1, 4, temporal.Invalid, ""),
		testEntry(1, 6, temporal.Invalid, ""),
		val(1, 8, "b"),
		val(2, 2, "b"),
		unknown(2, 9),
		unknown(2, 12),
	}))

	assert.Equal(t, []Entry{
		val(1, 1, "a"),
		testEntry(1, 4, temporal.Invalid, ""),
		val(1, 8, "b"),
		val(2, 2, "b"),
		unknown(2, 9),
	}, drainAll(c))
}

func TestVisible(t *testing.T) {
	invalid := func(eid uint64, at temporal.TimePoint) Entry {
		return testEntry(eid, at, temporal.Invalid, "")
	}
	source := NewSliceCursor([]Entry{
		unknown(1, 0),
		val(1, 2, "a"),
		unknown(1, 4),
		invalid(1, 6),
		unknown(1, 8),
		val(1, 9, "b"),
		unknown(2, 1),
		invalid(2, 3),
	})

	t.Run("from the start", func(t *testing.T) {
		assert.Equal(t, []Entry{
			val(1, 2, "a"),
			invalid(1, 4),
			val(1, 9, "b"),
			invalid(2, 3),
		}, drainAll(Visible(source)))
	})

	t.Run("from a floor", func(t *testing.T) {
		c := Visible(source)
		require.True(t, c.SeekFloor(floorTarget(1, 7)))
		assert.Equal(t, []Entry{
			invalid(1, 6),
			val(1, 9, "b"),
			invalid(2, 3),
		}, Drain(c))
	})
}

func TestCarryForward(t *testing.T) {
	t.Run("collapses entries up to the boundary", func(t *testing.T) {
		source := NewSliceCursor([]Entry{
			val(1, 1, "A"), val(1, 3, "B"), val(1, 7, "C"),
			testEntry(2, 2, temporal.Invalid, ""),
			val(3, 9, "y"),
		})

		assert.Equal(t, []Entry{
			val(1, 5, "B"), val(1, 7, "C"),
			testEntry(2, 5, temporal.Invalid, ""),
			val(3, 9, "y"),
		}, drainAll(newCarryForward(source, 5)))
	})

	t.Run("entry at the boundary wins", func(t *testing.T) {
		source := NewSliceCursor([]Entry{val(1, 1, "A"), val(1, 5, "B")})
		assert.Equal(t, []Entry{val(1, 5, "B")}, drainAll(newCarryForward(source, 5)))
	})

	t.Run("seek floor contract", func(t *testing.T) {
		source := NewSliceCursor([]Entry{val(1, 3, "B"), val(1, 5, "C")})
		assertSeekFloorContract(t, newCarryForward(source, 2))
		assertSeekFloorEmpty(t, newCarryForward(NewSliceCursor(nil), 2))
	})
}
