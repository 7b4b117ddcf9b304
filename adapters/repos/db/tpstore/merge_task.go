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

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/tpstore/entities/temporal"
)

// MergeTask merges the part of a frozen memtable that belongs to one
// property into that property's files. Known spans are routed to the
// buffers of the files they fall into, whatever lies after the coverage of
// all files is collected into a residual memtable that becomes a new file.
type MergeTask struct {
	property *SinglePropertyStore
	source   *MemTable
	runID    string
	logger   logrus.FieldLogger

	residual *MemTable
	touched  map[*FileBuffer]struct{}
}

func newMergeTask(p *SinglePropertyStore, source *MemTable, runID string) *MergeTask {
	return &MergeTask{
		property: p,
		source:   source,
		runID:    runID,
		logger: p.logger.WithFields(logrus.Fields{
			"action": "tpstore_flush",
			"run_id": runID,
		}),
		residual: NewMemTable(),
		touched:  map[*FileBuffer]struct{}{},
	}
}

func (t *MergeTask) Do() error {
	started := time.Now()

	routeErr := t.route()
	// buffers written so far must be durable even if routing failed half way
	flushErr := t.flushBuffers()
	if routeErr != nil {
		return routeErr
	}
	if flushErr != nil {
		return flushErr
	}

	if err := t.runTask(); err != nil {
		return err
	}

	t.logger.WithField("took", time.Since(started)).
		Debugf("merged %d ids", t.source.Len())
	return nil
}

func (t *MergeTask) route() error {
	var err error
	t.source.ForEach(func(id temporal.EntityPropertyID, tv *TemporalValue[Value]) bool {
		tv.KnownIntervals(func(iv temporal.TimeInterval, v Value) bool {
			err = t.routeInterval(id, iv, v)
			return err == nil
		})
		return err == nil
	})
	return err
}

func (t *MergeTask) routeInterval(id temporal.EntityPropertyID, iv temporal.TimeInterval, v Value) error {
	p := t.property
	meta := p.currentMeta()
	frags := splitInterval(iv, meta)

	p.store.trace.emit(TraceEvent{
		Kind:     TraceRoute,
		RunID:    t.runID,
		Property: p.pid,
		ID:       id,
		Interval: iv,
		Case:     frags.routeCase.String(),
	})

	if frags.stable != nil {
		for _, piece := range splitByFile(meta.Stable, *frags.stable) {
			if err := t.writeBuffer(piece, id, v); err != nil {
				return err
			}
		}
	}
	if frags.unstable != nil {
		for _, piece := range splitByFile(meta.Unstable, *frags.unstable) {
			if err := t.writeBuffer(piece, id, v); err != nil {
				return err
			}
		}
	}
	if frags.residual != nil {
		if err := t.residual.AddInterval(id, *frags.residual, v.Type, v.Data); err != nil {
			return errors.Wrapf(err, "add %s to residual", id)
		}
	}
	return nil
}

func (t *MergeTask) writeBuffer(piece filePiece, id temporal.EntityPropertyID, v Value) error {
	p := t.property
	buf, err := p.bufferFor(piece.file)
	if err != nil {
		return err
	}
	if err := buf.AddInterval(id, piece.interval, v.Type, v.Data); err != nil {
		return err
	}
	t.touched[buf] = struct{}{}

	if buf.Size() < p.store.bufferThreshold {
		return nil
	}

	// the buffer is dropped by the rewrite, nothing left to flush
	delete(t.touched, buf)
	if err := p.buffer2file(piece.file, t.runID); err != nil {
		return errors.Wrapf(err, "merge buffer of %s", piece.file)
	}
	return nil
}

func (t *MergeTask) flushBuffers() error {
	buffers := make([]*FileBuffer, 0, len(t.touched))
	for buf := range t.touched {
		buffers = append(buffers, buf)
	}
	return t.property.flushBuffers(buffers)
}

// runTask writes the residual, if any, into a new file. Once enough
// unstable files piled up the new file is a stable one that absorbs them.
func (t *MergeTask) runTask() error {
	if t.residual.IsEmpty() {
		return nil
	}

	p := t.property
	if len(p.currentMeta().Unstable) >= p.store.promotionThreshold {
		return p.promote(t.residual, t.runID)
	}
	return p.newFile(t.residual, t.runID)
}
