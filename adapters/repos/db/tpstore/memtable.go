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
	"github.com/pkg/errors"

	"github.com/weaviate/tpstore/entities/temporal"
)

// entryOverhead approximates the bookkeeping cost of one interval write in
// bytes, on top of the payload.
const entryOverhead = 64

// Value is the payload of a memtable entry.
type Value struct {
	Type temporal.ValueType
	Data []byte
}

type memTableItem struct {
	id    temporal.EntityPropertyID
	value *TemporalValue[Value]
}

func (i *memTableItem) Less(than btree.Item) bool {
	return i.id.Less(than.(*memTableItem).id)
}

func idPivot(id temporal.EntityPropertyID) *memTableItem {
	return &memTableItem{id: id}
}

// MemTable maps entity properties to their temporal values. It is the only
// mutable structure of the engine. A MemTable is not safe for concurrent
// use; the owner serializes access.
type MemTable struct {
	tree *btree.BTree
	size uint64
}

func NewMemTable() *MemTable {
	return &MemTable{tree: btree.New(btreeDegree)}
}

// AddInterval writes a known entry for every instant of iv.
func (m *MemTable) AddInterval(id temporal.EntityPropertyID, iv temporal.TimeInterval,
	vt temporal.ValueType, data []byte,
) error {
	if !vt.IsKnown() {
		return errors.Wrapf(temporal.ErrInvalidArgument, "cannot write value type %s", vt)
	}
	if err := iv.Validate(); err != nil {
		return err
	}
	if vt == temporal.Invalid {
		data = nil
	}

	m.valueFor(id).Put(iv, Value{Type: vt, Data: data})
	m.size += uint64(len(data)) + entryOverhead
	return nil
}

// AddToNow writes an entry that holds from start on.
func (m *MemTable) AddToNow(id temporal.EntityPropertyID, start temporal.TimePoint,
	vt temporal.ValueType, data []byte,
) error {
	return m.AddInterval(id, temporal.TimeInterval{Start: start, End: temporal.Now}, vt, data)
}

func (m *MemTable) valueFor(id temporal.EntityPropertyID) *TemporalValue[Value] {
	if item := m.tree.Get(idPivot(id)); item != nil {
		return item.(*memTableItem).value
	}
	item := &memTableItem{id: id, value: NewTemporalValue[Value]()}
	m.tree.ReplaceOrInsert(item)
	return item.value
}

// Value returns the temporal value of id or nil.
func (m *MemTable) Value(id temporal.EntityPropertyID) *TemporalValue[Value] {
	if item := m.tree.Get(idPivot(id)); item != nil {
		return item.(*memTableItem).value
	}
	return nil
}

// Lookup resolves id at t within this memtable alone.
func (m *MemTable) Lookup(id temporal.EntityPropertyID, t temporal.TimePoint) temporal.Lookup {
	tv := m.Value(id)
	if tv == nil {
		return temporal.UnknownLookup()
	}
	e, ok := tv.Floor(t)
	if !ok || e.Unknown {
		return temporal.UnknownLookup()
	}
	return temporal.LookupFromType(e.Value.Type, e.Value.Data)
}

// Merge folds other into m. Every known span of other overwrites m; spans
// that other does not know about keep m's value.
func (m *MemTable) Merge(other *MemTable) {
	other.ForEach(func(id temporal.EntityPropertyID, tv *TemporalValue[Value]) bool {
		target := m.valueFor(id)
		tv.KnownIntervals(func(span temporal.TimeInterval, v Value) bool {
			target.Put(span, v)
			m.size += uint64(len(v.Data)) + entryOverhead
			return true
		})
		return true
	})
}

// SeparateByProperty splits m into one memtable per property id. The
// temporal values are shared, not copied.
func (m *MemTable) SeparateByProperty() map[int32]*MemTable {
	out := map[int32]*MemTable{}
	m.ForEach(func(id temporal.EntityPropertyID, tv *TemporalValue[Value]) bool {
		part, ok := out[id.PropertyID]
		if !ok {
			part = NewMemTable()
			out[id.PropertyID] = part
		}
		part.tree.ReplaceOrInsert(&memTableItem{id: id, value: tv})
		part.size += uint64(tv.Len()) * entryOverhead
		return true
	})
	return out
}

// ForEach visits ids in ascending order.
func (m *MemTable) ForEach(fn func(temporal.EntityPropertyID, *TemporalValue[Value]) bool) {
	m.tree.Ascend(func(i btree.Item) bool {
		item := i.(*memTableItem)
		return fn(item.id, item.value)
	})
}

// MaxTime is the greatest key time of any id, Init for an empty memtable.
func (m *MemTable) MaxTime() temporal.TimePoint {
	latest := temporal.Init
	m.ForEach(func(_ temporal.EntityPropertyID, tv *TemporalValue[Value]) bool {
		if e, ok := tv.Last(); ok && e.Time > latest {
			latest = e.Time
		}
		return true
	})
	return latest
}

// CloneID returns a memtable holding a copy of id only.
func (m *MemTable) CloneID(id temporal.EntityPropertyID) *MemTable {
	out := NewMemTable()
	if tv := m.Value(id); tv != nil {
		out.tree.ReplaceOrInsert(&memTableItem{id: id, value: tv.Clone()})
	}
	return out
}

// Clone returns a deep copy of the structure. Payload bytes are shared.
func (m *MemTable) Clone() *MemTable {
	out := NewMemTable()
	m.ForEach(func(id temporal.EntityPropertyID, tv *TemporalValue[Value]) bool {
		out.tree.ReplaceOrInsert(&memTableItem{id: id, value: tv.Clone()})
		return true
	})
	out.size = m.size
	return out
}

// Size approximates the memory held by the memtable in bytes. It only grows.
func (m *MemTable) Size() uint64 {
	return m.size
}

// Len is the number of ids.
func (m *MemTable) Len() int {
	return m.tree.Len()
}

func (m *MemTable) IsEmpty() bool {
	return m.tree.Len() == 0
}

func (m *MemTable) next(after temporal.EntityPropertyID) *memTableItem {
	var out *memTableItem
	m.tree.AscendGreaterOrEqual(idPivot(after), func(i btree.Item) bool {
		item := i.(*memTableItem)
		if item.id == after {
			return true
		}
		out = item
		return false
	})
	return out
}

func (m *MemTable) floorItem(id temporal.EntityPropertyID) *memTableItem {
	var out *memTableItem
	m.tree.DescendLessOrEqual(idPivot(id), func(i btree.Item) bool {
		out = i.(*memTableItem)
		return false
	})
	return out
}

func (m *MemTable) prev(before temporal.EntityPropertyID) *memTableItem {
	var out *memTableItem
	m.tree.DescendLessOrEqual(idPivot(before), func(i btree.Item) bool {
		item := i.(*memTableItem)
		if item.id == before {
			return true
		}
		out = item
		return false
	})
	return out
}

func (m *MemTable) first() *memTableItem {
	if i := m.tree.Min(); i != nil {
		return i.(*memTableItem)
	}
	return nil
}
