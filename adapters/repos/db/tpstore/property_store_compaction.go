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
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/tpstore/entities/diskio"
	"github.com/weaviate/tpstore/entities/temporal"
)

// writeTable drains source into a new table at path. Every record is
// reported to updater. A file owning [smallest, largest] may only hold keys
// up to largest+1.
func (p *SinglePropertyStore) writeTable(path string, tier Tier,
	smallest, largest temporal.TimePoint, source Cursor, updater IndexUpdater,
) (int64, error) {
	b, err := NewTableBuilder(path, tier, smallest, largest, p.store.bloomFalsePositiveRate)
	if err != nil {
		return 0, err
	}

	for source.SeekToFirst(); source.Valid(); {
		e := source.Next()
		if e.Key.Time < smallest || e.Key.Time > largest+1 {
			b.Abort()
			panic(errors.Errorf("key %s outside of file range [%s,%s] of %q",
				e.Key, smallest, largest, path))
		}
		if err := b.Add(e); err != nil {
			return 0, multierror.Append(err, b.Abort())
		}
		if err := updater.Update(e); err != nil {
			return 0, multierror.Append(errors.Wrap(err, "update index"), b.Abort())
		}
	}

	return b.Finish()
}

func (p *SinglePropertyStore) cleanUpIndex(updater IndexUpdater, errp *error) {
	if err := updater.CleanUp(); err != nil {
		err = errors.Wrap(err, "clean up index")
		if *errp == nil {
			*errp = err
			return
		}
		*errp = multierror.Append(*errp, err)
	}
}

// fileLayer returns the buffer of f masking its table.
func fileLayer(meta *PropertyMetaData, f *FileMetaData, table *Table) Cursor {
	if buf := meta.Buffer(f); buf != nil && !buf.IsEmpty() {
		return MaskingMerge(buf.Snapshot().NewCursor(), table.NewCursor())
	}
	return table.NewCursor()
}

// buffer2file rewrites the table of f with its buffer merged in and drops
// the buffer. The new table replaces the old one under the same name.
func (p *SinglePropertyStore) buffer2file(f *FileMetaData, runID string) (err error) {
	started := time.Now()
	path := p.tablePath(f)
	logger := p.logger.WithFields(logrus.Fields{
		"action": "tpstore_buffer2file",
		"path":   path,
		"run_id": runID,
	})

	buf := p.currentMeta().Buffer(f)
	if buf == nil || buf.IsEmpty() {
		return nil
	}

	h, err := p.store.cache.Acquire(p.pid, f, path)
	if err != nil {
		return err
	}
	defer h.Release()

	updater := p.store.indexUpdaters(p.pid, f.Tier, f.Number)
	defer p.cleanUpIndex(updater, &err)

	tmp := path + ".tmp"
	source := Compacting(MaskingMerge(buf.Snapshot().NewCursor(), h.table.NewCursor()))
	size, err := p.writeTable(tmp, f.Tier, f.Smallest, f.Largest, source, updater)
	if err != nil {
		return errors.Wrapf(err, "rewrite %s", f)
	}

	next := newFileMetaData(f.Tier, f.Number, f.Version+1, size, f.Smallest, f.Largest)
	if err := updater.Finish(next); err != nil {
		p.store.cleanup.Remove(tmp)
		return errors.Wrapf(err, "finish index of %s", next)
	}

	err = p.commit(func(meta *PropertyMetaData) error {
		if err := diskio.Replace(tmp, path); err != nil {
			return err
		}
		meta.replaceFile(next)
		meta.setBuffer(next, nil)
		p.store.cache.Invalidate(p.pid, f.Tier, f.Number)
		return nil
	})
	if err != nil {
		p.store.cleanup.Remove(tmp)
		return err
	}

	// the log content is part of the new table now, so a log that survives
	// is only replayed redundantly
	if err := buf.Drop(); err != nil {
		logger.WithError(err).Warn("drop merged buffer")
	}

	if err := updater.UpdateMeta(); err != nil {
		return errors.Wrapf(err, "update index meta of %s", next)
	}

	p.store.metrics.Compaction(p.pid, "buffer2file")
	p.store.metrics.ObserveDuration("buffer2file", started)
	p.store.trace.emit(TraceEvent{
		Kind:     TraceBuffer2File,
		RunID:    runID,
		Property: p.pid,
		File:     next.String(),
	})
	logger.WithField("took", time.Since(started)).
		Debugf("merged buffer into %s", next)
	return nil
}

// newFile turns the residual of a merge into a new unstable file starting
// right after the current coverage.
func (p *SinglePropertyStore) newFile(residual *MemTable, runID string) (err error) {
	started := time.Now()
	meta := p.currentMeta()

	smallest := meta.UnstableMaxTime() + 1
	largest := residual.MaxTime()
	number := p.allocateNumber()
	f := newFileMetaData(TierUnstable, number, 1, 0, smallest, largest)
	path := p.tablePath(f)

	updater := p.store.indexUpdaters(p.pid, TierUnstable, number)
	defer p.cleanUpIndex(updater, &err)

	tmp := path + ".tmp"
	size, err := p.writeTable(tmp, TierUnstable, smallest, largest,
		Compacting(residual.NewCursor()), updater)
	if err != nil {
		return errors.Wrapf(err, "write %s", f)
	}
	f = newFileMetaData(TierUnstable, number, 1, size, smallest, largest)

	if err := updater.Finish(f); err != nil {
		p.store.cleanup.Remove(tmp)
		return errors.Wrapf(err, "finish index of %s", f)
	}
	if err := diskio.Replace(tmp, path); err != nil {
		p.store.cleanup.Remove(tmp)
		return err
	}

	if err := p.commit(func(next *PropertyMetaData) error {
		next.Unstable = append(next.Unstable, f)
		return nil
	}); err != nil {
		return err
	}
	if err := p.writeCatalog(); err != nil {
		return err
	}
	if err := updater.UpdateMeta(); err != nil {
		return errors.Wrapf(err, "update index meta of %s", f)
	}

	p.reportTableCounts()
	p.store.metrics.Compaction(p.pid, "new_file")
	p.store.metrics.ObserveDuration("new_file", started)
	p.store.trace.emit(TraceEvent{
		Kind:     TraceNewFile,
		RunID:    runID,
		Property: p.pid,
		Interval: f.Range(),
		File:     f.String(),
	})
	p.logger.WithFields(logrus.Fields{
		"action": "tpstore_flush",
		"path":   path,
		"run_id": runID,
		"took":   time.Since(started),
	}).Debugf("wrote %s", f)
	return nil
}

// promote folds the residual, every unstable file and the latest stable
// file into one new stable file starting right after the stable coverage.
// Values in effect at that start are carried forward for every id, so the
// new file does not depend on older stable files for later instants.
func (p *SinglePropertyStore) promote(residual *MemTable, runID string) (err error) {
	started := time.Now()
	meta := p.currentMeta()
	stMax, unMax := meta.StableMaxTime(), meta.UnstableMaxTime()

	var handles []*tableHandle
	defer func() {
		for _, h := range handles {
			h.Release()
		}
	}()
	acquire := func(f *FileMetaData) (*Table, error) {
		h, err := p.store.cache.Acquire(p.pid, f, p.tablePath(f))
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
		return h.table, nil
	}

	layers := []Cursor{residual.NewCursor()}
	for i := len(meta.Unstable) - 1; i >= 0; i-- {
		table, err := acquire(meta.Unstable[i])
		if err != nil {
			return err
		}
		layers = append(layers, fileLayer(meta, meta.Unstable[i], table))
	}
	if len(meta.Stable) > 0 {
		last := meta.Stable[len(meta.Stable)-1]
		table, err := acquire(last)
		if err != nil {
			return err
		}
		layers = append(layers, fileLayer(meta, last, table))
	}

	smallest := stMax + 1
	largest := temporal.MaxOf(unMax, residual.MaxTime())
	number := p.allocateNumber()
	f := newFileMetaData(TierStable, number, 1, 0, smallest, largest)
	path := p.tablePath(f)

	updater := p.store.indexUpdaters(p.pid, TierStable, number)
	defer p.cleanUpIndex(updater, &err)

	tmp := path + ".tmp"
	source := Compacting(newCarryForward(MaskingChain(layers...), smallest))
	size, err := p.writeTable(tmp, TierStable, smallest, largest, source, updater)
	if err != nil {
		return errors.Wrapf(err, "write %s", f)
	}
	f = newFileMetaData(TierStable, number, 1, size, smallest, largest)

	if err := updater.Finish(f); err != nil {
		p.store.cleanup.Remove(tmp)
		return errors.Wrapf(err, "finish index of %s", f)
	}
	if err := diskio.Replace(tmp, path); err != nil {
		p.store.cleanup.Remove(tmp)
		return err
	}

	promoted := meta.Unstable
	if err := p.commit(func(next *PropertyMetaData) error {
		next.Stable = append(next.Stable, f)
		next.Unstable = nil
		next.UnstableBuffers = map[uint64]*FileBuffer{}
		for _, u := range promoted {
			p.store.cache.Invalidate(p.pid, u.Tier, u.Number)
		}
		return nil
	}); err != nil {
		return err
	}
	// the catalog must stop referencing the unstable files before they are
	// deleted
	if err := p.writeCatalog(); err != nil {
		return err
	}
	if err := updater.UpdateMeta(); err != nil {
		return errors.Wrapf(err, "update index meta of %s", f)
	}

	var obsolete []string
	for _, u := range promoted {
		if buf := meta.Buffer(u); buf != nil {
			if err := buf.Close(); err != nil {
				p.logger.WithField("action", "tpstore_compaction").
					WithField("path", p.bufferPath(u)).
					WithError(err).
					Warn("close promoted buffer")
			}
			obsolete = append(obsolete, p.bufferPath(u))
		}
		obsolete = append(obsolete, p.tablePath(u))
	}
	p.store.cleanup.Remove(obsolete...)

	p.reportTableCounts()
	p.store.metrics.Compaction(p.pid, "promotion")
	p.store.metrics.ObserveDuration("promotion", started)
	p.store.trace.emit(TraceEvent{
		Kind:     TracePromotion,
		RunID:    runID,
		Property: p.pid,
		Interval: f.Range(),
		File:     f.String(),
	})
	p.logger.WithFields(logrus.Fields{
		"action":   "tpstore_compaction",
		"path":     path,
		"run_id":   runID,
		"promoted": len(promoted),
		"took":     time.Since(started),
	}).Infof("promoted %d unstable files into %s", len(promoted), f)
	return nil
}

// compactExhausted merges the buffers of files that used up their seek
// budget. It reports whether any file was rewritten.
func (p *SinglePropertyStore) compactExhausted(runID string) (bool, error) {
	meta := p.currentMeta()

	var errs error
	compacted := false
	for _, f := range meta.Files() {
		if f.AllowedSeeks() > 0 {
			continue
		}
		if buf := meta.Buffer(f); buf == nil || buf.IsEmpty() {
			continue
		}

		p.store.trace.emit(TraceEvent{
			Kind:     TraceSeekCompaction,
			RunID:    runID,
			Property: p.pid,
			File:     f.String(),
		})
		if err := p.buffer2file(f, runID); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		compacted = true
	}
	return compacted, errs
}

// carryForwardCursor collapses, per id, all entries at or before boundary
// into a single entry at boundary holding the value in effect there. Later
// entries pass through.
type carryForwardCursor struct {
	*lookahead
	source   Cursor
	boundary temporal.TimePoint
}

func newCarryForward(source Cursor, boundary temporal.TimePoint) Cursor {
	c := &carryForwardCursor{source: source, boundary: boundary}
	c.lookahead = newLookahead(c.fetch)
	return c
}

func (c *carryForwardCursor) SeekToFirst() {
	c.source.SeekToFirst()
	c.reset()
}

// SeekFloor rescans from the start, the cursor is only drained in order
// when a file is written.
func (c *carryForwardCursor) SeekFloor(target temporal.InternalKey) bool {
	c.SeekToFirst()
	before := 0
	for c.Valid() && c.Peek().Key.Compare(target) <= 0 {
		c.Next()
		before++
	}

	c.SeekToFirst()
	if before == 0 {
		return false
	}
	for i := 0; i < before-1; i++ {
		c.Next()
	}
	return true
}

func (c *carryForwardCursor) fetch() (Entry, bool) {
	if !c.source.Valid() {
		return Entry{}, false
	}

	e := c.source.Next()
	if e.Key.Time > c.boundary {
		return e, true
	}
	for c.source.Valid() {
		next := c.source.Peek()
		if next.Key.ID != e.Key.ID || next.Key.Time > c.boundary {
			break
		}
		e = c.source.Next()
	}
	e.Key.Time = c.boundary
	return e, true
}
