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
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	enterrors "github.com/weaviate/tpstore/entities/errors"
)

var errMergeProcessStopped = errors.New("background merge process is not running")

// handOff is one frozen memtable on its way to the background merge.
type handOff struct {
	mt    *MemTable
	runID string
	// closed once the merge is over, its errors are recorded on the store
	done chan struct{}
}

// mergeProcess is the single background goroutine of a store. It merges
// frozen memtables into the property files one at a time and runs the
// maintenance work requested by the cycle manager in between.
//
// slot holds a token from the moment a memtable is frozen until its merge
// has finished, so at most one frozen memtable exists at any time.
type mergeProcess struct {
	store  *Store
	logger logrus.FieldLogger

	slot        chan struct{}
	pending     chan *handOff
	maintenance chan struct{}
	stop        chan struct{}
	done        chan struct{}
}

func newMergeProcess(s *Store) *mergeProcess {
	return &mergeProcess{
		store:       s,
		logger:      s.logger.WithField("action", "tpstore_flush"),
		slot:        make(chan struct{}, 1),
		pending:     make(chan *handOff, 1),
		maintenance: make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (m *mergeProcess) start() {
	enterrors.GoWrapper(func() {
		defer close(m.done)
		m.run()
	}, m.store.logger)
}

func (m *mergeProcess) run() {
	for {
		select {
		case h := <-m.pending:
			m.merge(h)
		case <-m.maintenance:
			m.store.runMaintenance()
		case <-m.stop:
			return
		}
	}
}

// acquireSlot blocks while another frozen memtable is being merged.
func (m *mergeProcess) acquireSlot() error {
	select {
	case m.slot <- struct{}{}:
		return nil
	default:
	}

	m.store.metrics.BackpressureWait()
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-m.done:
		return errMergeProcessStopped
	}
}

func (m *mergeProcess) releaseSlot() {
	<-m.slot
}

func (m *mergeProcess) submit(h *handOff) error {
	select {
	case m.pending <- h:
		return nil
	case <-m.done:
		return errMergeProcessStopped
	}
}

// wait blocks until a submitted hand-off is merged.
func (m *mergeProcess) wait(ctx context.Context, h *handOff) error {
	select {
	case <-h.done:
		return nil
	case <-m.done:
		// the hand-off may have finished right before the goroutine ended
		select {
		case <-h.done:
			return nil
		default:
			return errMergeProcessStopped
		}
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for memtable merge")
	}
}

// requestMaintenance does not block, a request that is already queued
// covers this one.
func (m *mergeProcess) requestMaintenance() bool {
	select {
	case m.maintenance <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *mergeProcess) shutdown(ctx context.Context) error {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for merge process to stop")
	}
}

func (m *mergeProcess) merge(h *handOff) {
	s := m.store
	started := time.Now()

	var err error
	if s.beforeMerge != nil {
		err = s.beforeMerge()
	}
	if err == nil {
		err = s.mergeMemTable(h.mt, h.runID)
	}

	s.mergeLock.Lock()
	if err == nil {
		s.frozen = nil
	}
	s.mergeLock.Unlock()

	if err != nil {
		s.recordBackgroundError(err)
		s.metrics.BackgroundFailure()
		s.trace.emit(TraceEvent{
			Kind:  TraceMergeFailed,
			RunID: h.runID,
			Err:   err,
		})
		m.logger.WithField("run_id", h.runID).
			WithError(err).
			Error("merge frozen memtable, it is kept and retried with the next hand-off")
	} else {
		s.metrics.ObserveDuration("merge_memtable", started)
	}

	if err := s.writeCatalogs(); err != nil {
		s.recordBackgroundError(err)
		m.logger.WithField("run_id", h.runID).
			WithError(err).
			Error("write property catalogs")
	}

	m.releaseSlot()
	close(h.done)
}

// mergeMemTable merges a frozen memtable property by property. A failing
// property does not stop the others, merging the same memtable again is
// harmless for the ones that succeeded.
func (s *Store) mergeMemTable(mt *MemTable, runID string) error {
	parts := mt.SeparateByProperty()
	pids := make([]int32, 0, len(parts))
	for pid := range parts {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	var errs error
	for _, pid := range pids {
		p, err := s.propertyFor(pid)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if err := newMergeTask(p, parts[pid], runID).Do(); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "property %d", pid))
		}
	}
	return errs
}

func newRunID() string {
	return uuid.New().String()
}
