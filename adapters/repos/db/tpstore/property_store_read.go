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

// The read path expects the caller to hold the store's merge lock for
// reading until all returned cursors are drained and released.

// readFiles returns the files a read of [from,to] consults, newest range
// first. Unstable files carry nothing over from older files, so every one
// starting at or before to is needed. A stable file holds the value each id
// had at its Smallest, the descent ends at the first one starting at or
// before from.
func readFiles(meta *PropertyMetaData, from, to temporal.TimePoint) []*FileMetaData {
	var out []*FileMetaData
	for i := len(meta.Unstable) - 1; i >= 0; i-- {
		if f := meta.Unstable[i]; f.Smallest <= to {
			out = append(out, f)
		}
	}
	for i := len(meta.Stable) - 1; i >= 0; i-- {
		f := meta.Stable[i]
		if f.Smallest > to {
			continue
		}
		out = append(out, f)
		if f.Smallest <= from {
			break
		}
	}
	return out
}

// lookup resolves id at t. Of the files that can hold a key <= t the newest
// range wins, each file is consulted with its buffer over its table.
func (p *SinglePropertyStore) lookup(id temporal.EntityPropertyID, t temporal.TimePoint) (temporal.Lookup, error) {
	meta := p.snapshot()
	for _, f := range readFiles(meta, t, t) {
		if buf := meta.Buffer(f); buf != nil {
			if l := buf.Lookup(id, t); l.Resolved() {
				return l, nil
			}
		}

		l, consulted, err := p.lookupTable(f, id, t)
		if err != nil {
			return temporal.Lookup{}, err
		}
		if l.Resolved() {
			return l, nil
		}
		if consulted {
			f.ConsumeSeek()
		}
	}
	return temporal.UnknownLookup(), nil
}

// lookupTable reports whether the table had to be searched, i.e. the bloom
// filter did not rule it out.
func (p *SinglePropertyStore) lookupTable(f *FileMetaData, id temporal.EntityPropertyID,
	t temporal.TimePoint,
) (temporal.Lookup, bool, error) {
	h, err := p.store.cache.Acquire(p.pid, f, p.tablePath(f))
	if err != nil {
		return temporal.Lookup{}, false, err
	}
	defer h.Release()

	if !h.table.MayContain(id) {
		return temporal.UnknownLookup(), false, nil
	}
	e, ok, err := h.table.Floor(id, t)
	if err != nil {
		return temporal.Lookup{}, true, err
	}
	if !ok {
		return temporal.UnknownLookup(), true, nil
	}
	return temporal.LookupFromType(e.Key.Type, e.Value), true, nil
}

// rangeLayers returns one layer per file a range query over iv consults,
// newest range first. Every layer is the file's buffer masking its table.
// Tables the bloom filter rules out are skipped. release must be called
// once the layers are no longer used.
func (p *SinglePropertyStore) rangeLayers(id temporal.EntityPropertyID,
	iv temporal.TimeInterval,
) (layers []Cursor, release func(), err error) {
	var handles []*tableHandle
	release = func() {
		for _, h := range handles {
			h.Release()
		}
	}

	meta := p.snapshot()
	for _, f := range readFiles(meta, iv.Start, iv.End) {
		var layer []Cursor
		if buf := meta.Buffer(f); buf != nil {
			if snap := buf.SnapshotID(id); !snap.IsEmpty() {
				layer = append(layer, snap.NewCursor())
			}
		}

		h, err := p.store.cache.Acquire(p.pid, f, p.tablePath(f))
		if err != nil {
			release()
			return nil, nil, err
		}
		handles = append(handles, h)
		if h.table.MayContain(id) {
			layer = append(layer, h.table.NewCursor())
		}

		if len(layer) > 0 {
			layers = append(layers, MaskingChain(layer...))
		}
	}
	return layers, release, nil
}

// stream returns the fully composed stream of the property over all of its
// files.
func (p *SinglePropertyStore) stream() (Cursor, func(), error) {
	var handles []*tableHandle
	release := func() {
		for _, h := range handles {
			h.Release()
		}
	}

	meta := p.snapshot()
	files := meta.Files()
	layers := make([]Cursor, 0, len(files))
	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		h, err := p.store.cache.Acquire(p.pid, f, p.tablePath(f))
		if err != nil {
			release()
			return nil, nil, err
		}
		handles = append(handles, h)

		layer := h.table.NewCursor()
		if buf := meta.Buffer(f); buf != nil && !buf.IsEmpty() {
			layer = MaskingMerge(buf.Snapshot().NewCursor(), layer)
		}
		layers = append(layers, layer)
	}
	return MaskingChain(layers...), release, nil
}
