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
	"os"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/tpstore/entities/cyclemanager"
	enterrors "github.com/weaviate/tpstore/entities/errors"
	"github.com/weaviate/tpstore/entities/temporal"
	"github.com/weaviate/tpstore/usecases/config"
	"github.com/weaviate/tpstore/usecases/monitoring"
)

// Store is a temporal property store. It "owns" one folder on the file
// system with one subfolder per property.
//
// Writes go to the active memtable. A full memtable is frozen and handed to
// the background merge process, which routes its content into the files of
// each property. Reads consult the active memtable, then the frozen one,
// then the files.
//
// Lock order is mu, then mergeLock, then the lock of a single buffer or the
// table cache. The background merge process never takes mu.
type Store struct {
	rootDir string
	logger  logrus.FieldLogger

	memtableThreshold      uint64
	bufferThreshold        uint64
	promotionThreshold     int
	tableCacheSize         int
	maintenanceInterval    time.Duration
	bloomFalsePositiveRate float64
	promMetrics            *monitoring.PrometheusMetrics
	metrics                *Metrics
	trace                  TraceFunc
	indexUpdaters          IndexUpdaterFactory

	// mu guards active, kinds and closed
	mu     sync.RWMutex
	active *MemTable
	kinds  map[int32]temporal.PropertyKind
	closed bool

	// mergeLock guards frozen, properties and the metadata of every
	// property
	mergeLock  sync.RWMutex
	frozen     *MemTable
	properties map[int32]*SinglePropertyStore

	bgErrLock sync.Mutex
	bgErr     error

	cache       *TableCache
	cleanup     *cleanupQueue
	merger      *mergeProcess
	cycle       cyclemanager.CycleManager
	unregisters []func()

	// test hook, runs on the merge goroutine before a frozen memtable is
	// merged. An error fails the merge.
	beforeMerge func() error
}

func New(rootDir string, logger logrus.FieldLogger, opts ...StoreOption) (*Store, error) {
	s := &Store{
		rootDir:                rootDir,
		logger:                 logger,
		memtableThreshold:      config.DefaultMemTableThreshold,
		bufferThreshold:        config.DefaultBufferThreshold,
		promotionThreshold:     config.DefaultPromotionThreshold,
		tableCacheSize:         config.DefaultTableCacheSize,
		maintenanceInterval:    config.DefaultMaintenanceInterval,
		bloomFalsePositiveRate: config.DefaultBloomFalsePositiveRate,
		indexUpdaters:          noopIndexUpdaters,
		active:                 NewMemTable(),
		kinds:                  map[int32]temporal.PropertyKind{},
		properties:             map[int32]*SinglePropertyStore{},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.promMetrics.StartLoadingStore(rootDir)
	s.metrics = NewMetrics(s.promMetrics, rootDir)

	if err := os.MkdirAll(rootDir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create store dir %q", rootDir)
	}

	cache, err := NewTableCache(s.tableCacheSize, logger, s.metrics)
	if err != nil {
		return nil, err
	}
	s.cache = cache
	s.cleanup = newCleanupQueue(logger, s.metrics)

	if err := s.loadProperties(); err != nil {
		return nil, errors.Wrapf(err, "load store %q", rootDir)
	}

	s.merger = newMergeProcess(s)
	s.merger.start()

	callbacks := cyclemanager.NewCycleCallbacks("tpstore", logger, 1)
	s.unregisters = append(s.unregisters,
		callbacks.Register("cleanup", s.cleanup.Retry),
		callbacks.Register("seek_compaction", func(shouldAbort cyclemanager.ShouldAbortCallback) bool {
			return s.merger.requestMaintenance()
		}),
	)
	s.cycle = cyclemanager.New(cyclemanager.NewFixedTicker(s.maintenanceInterval), callbacks)
	s.cycle.Start()

	s.promMetrics.FinishLoadingStore(rootDir)
	return s, nil
}

func (s *Store) loadProperties() error {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return errors.Wrapf(err, "read store dir %q", s.rootDir)
	}

	var lock sync.Mutex
	eg := enterrors.NewErrorGroupWrapper(s.logger, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, ok := parsePropertyDirName(entry.Name())
		if !ok {
			continue
		}

		eg.Go(func() error {
			p, err := loadSinglePropertyStore(s, pid)
			if err != nil {
				return errors.Wrapf(err, "property %d", pid)
			}

			lock.Lock()
			defer lock.Unlock()
			s.properties[pid] = p
			if kind, declared := p.declaredKind(); declared {
				s.kinds[pid] = kind
			}
			return nil
		}, entry.Name())
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, p := range s.properties {
		p.reportTableCounts()
	}
	s.logger.WithField("action", "tpstore_startup").
		WithField("path", s.rootDir).
		Debugf("loaded %d properties", len(s.properties))
	return nil
}

// propertyFor returns the store of pid, creating it on first use.
func (s *Store) propertyFor(pid int32) (*SinglePropertyStore, error) {
	s.mergeLock.Lock()
	defer s.mergeLock.Unlock()

	if p, ok := s.properties[pid]; ok {
		return p, nil
	}
	p, err := newSinglePropertyStore(s, pid)
	if err != nil {
		return nil, err
	}
	s.properties[pid] = p
	return p, nil
}

func (s *Store) sortedProperties() []*SinglePropertyStore {
	s.mergeLock.RLock()
	defer s.mergeLock.RUnlock()

	return s.sortedPropertiesLocked()
}

func (s *Store) sortedPropertiesLocked() []*SinglePropertyStore {
	out := make([]*SinglePropertyStore, 0, len(s.properties))
	for _, p := range s.properties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pid < out[j].pid })
	return out
}

// DeclareProperty fixes the value kind of a property. Values written
// afterwards are checked against it. Declaring the same kind again is a
// no-op, a different kind is rejected.
func (s *Store) DeclareProperty(pid int32, kind temporal.PropertyKind) error {
	if pid < 0 {
		return errors.Wrapf(temporal.ErrInvalidArgument, "negative property id %d", pid)
	}
	if kind > temporal.KindString {
		return errors.Wrapf(temporal.ErrInvalidArgument, "unknown property kind %s", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return temporal.ErrStoreClosed
	}
	p, err := s.propertyFor(pid)
	if err != nil {
		return err
	}
	if err := p.declare(kind); err != nil {
		return err
	}
	s.kinds[pid] = kind
	return nil
}

// SetProperty sets the value of property pid of entity eid during
// [start, end]. end may be temporal.Now for a value that is still valid.
func (s *Store) SetProperty(eid uint64, pid int32, start, end temporal.TimePoint,
	vt temporal.ValueType, value []byte,
) error {
	if pid < 0 {
		return errors.Wrapf(temporal.ErrInvalidArgument, "negative property id %d", pid)
	}
	iv, err := temporal.NewTimeInterval(start, end)
	if err != nil {
		return err
	}
	if !vt.IsKnown() {
		return errors.Wrapf(temporal.ErrInvalidArgument, "cannot write value type %s", vt)
	}

	var data []byte
	if vt == temporal.Value {
		data = make([]byte, len(value))
		copy(data, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return temporal.ErrStoreClosed
	}
	if kind, ok := s.kinds[pid]; ok {
		if err := kind.Check(vt, data); err != nil {
			return errors.Wrapf(err, "property %d", pid)
		}
	}

	id := temporal.NewEntityPropertyID(eid, pid)
	if err := s.active.AddInterval(id, iv, vt, data); err != nil {
		return err
	}
	s.metrics.MemtableSize(s.active.Size())

	if s.active.Size() < s.memtableThreshold {
		return nil
	}
	_, err = s.handOffLocked()
	return err
}

// handOffLocked freezes the active memtable and submits it to the merge
// process. It blocks while an earlier hand-off is still being merged. If the
// earlier merge failed, its memtable is still frozen and the active one is
// folded into it, so it is retried together with the new writes. Must be
// called with mu held.
func (s *Store) handOffLocked() (*handOff, error) {
	if err := s.merger.acquireSlot(); err != nil {
		return nil, err
	}

	mt := s.active
	s.active = NewMemTable()
	s.metrics.MemtableSize(0)

	s.mergeLock.Lock()
	if s.frozen != nil {
		s.frozen.Merge(mt)
		mt = s.frozen
	}
	s.frozen = mt
	s.mergeLock.Unlock()

	h := &handOff{mt: mt, runID: newRunID(), done: make(chan struct{})}
	s.trace.emit(TraceEvent{Kind: TraceHandOff, RunID: h.runID})
	if err := s.merger.submit(h); err != nil {
		s.merger.releaseSlot()
		return nil, err
	}
	return h, nil
}

// GetPointValue returns the value of property pid of entity eid at t, or nil
// if the property has no valid value at t.
func (s *Store) GetPointValue(eid uint64, pid int32, t temporal.TimePoint) ([]byte, error) {
	l, err := s.GetPointLookup(eid, pid, t)
	if err != nil {
		return nil, err
	}
	return l.Bytes(), nil
}

// GetPointLookup is GetPointValue that tells invalid and unknown apart.
func (s *Store) GetPointLookup(eid uint64, pid int32, t temporal.TimePoint) (temporal.Lookup, error) {
	if pid < 0 {
		return temporal.Lookup{}, errors.Wrapf(temporal.ErrInvalidArgument,
			"negative property id %d", pid)
	}
	if !t.IsReal() {
		return temporal.Lookup{}, errors.Wrapf(temporal.ErrInvalidArgument,
			"point query at %s", t)
	}
	id := temporal.NewEntityPropertyID(eid, pid)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return temporal.Lookup{}, temporal.ErrStoreClosed
	}
	if l := s.active.Lookup(id, t); l.Resolved() {
		return l, nil
	}

	s.mergeLock.RLock()
	defer s.mergeLock.RUnlock()

	if s.frozen != nil {
		if l := s.frozen.Lookup(id, t); l.Resolved() {
			return l, nil
		}
	}
	p, ok := s.properties[pid]
	if !ok {
		return temporal.UnknownLookup(), nil
	}
	return p.lookup(id, t)
}

// GetRangeValue streams the values of property pid of entity eid during
// [start, end] to cb and returns cb.OnReturn().
func (s *Store) GetRangeValue(eid uint64, pid int32, start, end temporal.TimePoint,
	cb RangeQueryCallback,
) (interface{}, error) {
	if pid < 0 {
		return nil, errors.Wrapf(temporal.ErrInvalidArgument, "negative property id %d", pid)
	}
	iv, err := temporal.NewTimeInterval(start, end)
	if err != nil {
		return nil, err
	}
	id := temporal.NewEntityPropertyID(eid, pid)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, temporal.ErrStoreClosed
	}

	s.mergeLock.RLock()
	defer s.mergeLock.RUnlock()

	layers := []Cursor{s.active.NewCursor()}
	if s.frozen != nil {
		layers = append(layers, s.frozen.NewCursor())
	}
	if p, ok := s.properties[pid]; ok {
		fileLayers, release, err := p.rangeLayers(id, iv)
		if err != nil {
			return nil, err
		}
		defer release()
		layers = append(layers, fileLayers...)
	}

	emitRange(RestrictToID(MaskingChain(layers...), id), id, iv, cb)
	return cb.OnReturn(), nil
}

// Scan calls fn for every entry of the store in key order, with all tiers
// merged. Unknown spans are reported as Invalid. Scan stops when fn returns
// false.
func (s *Store) Scan(fn func(e Entry) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return temporal.ErrStoreClosed
	}

	s.mergeLock.RLock()
	defer s.mergeLock.RUnlock()

	var streams []Cursor
	for _, p := range s.sortedPropertiesLocked() {
		stream, release, err := p.stream()
		if err != nil {
			return err
		}
		defer release()
		streams = append(streams, stream)
	}

	layers := []Cursor{s.active.NewCursor()}
	if s.frozen != nil {
		layers = append(layers, s.frozen.NewCursor())
	}
	layers = append(layers, HeapMerge(streams...))

	c := Visible(MaskingChain(layers...))
	for c.SeekToFirst(); c.Valid(); {
		if !fn(c.Next()) {
			return nil
		}
	}
	return nil
}

// FlushMemTable2Disk hands the active memtable to the merge process and
// waits until everything written before the call is merged into the
// property files. It also returns the errors of background merges that
// failed since the last call.
func (s *Store) FlushMemTable2Disk() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return temporal.ErrStoreClosed
	}
	// an empty memtable is handed off as well, it waits for a running merge
	// and retries a failed one
	h, err := s.handOffLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	waitErr := s.merger.wait(context.Background(), h)
	bgErr := s.takeBackgroundError()
	switch {
	case waitErr == nil:
		return bgErr
	case bgErr == nil:
		return waitErr
	default:
		return multierror.Append(bgErr, waitErr)
	}
}

// FlushMetaInfo2Disk writes the catalog of every property.
func (s *Store) FlushMetaInfo2Disk() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return temporal.ErrStoreClosed
	}
	return s.writeCatalogs()
}

func (s *Store) writeCatalogs() error {
	var errs error
	for _, p := range s.sortedProperties() {
		if err := p.writeCatalog(); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "property %d", p.pid))
		}
	}
	return errs
}

func (s *Store) recordBackgroundError(err error) {
	s.bgErrLock.Lock()
	defer s.bgErrLock.Unlock()

	s.bgErr = multierror.Append(s.bgErr, err)
}

func (s *Store) takeBackgroundError() error {
	s.bgErrLock.Lock()
	defer s.bgErrLock.Unlock()

	err := s.bgErr
	s.bgErr = nil
	return err
}

// runMaintenance runs on the merge goroutine.
func (s *Store) runMaintenance() {
	runID := newRunID()
	compacted := false
	for _, p := range s.sortedProperties() {
		ok, err := p.compactExhausted(runID)
		if err != nil {
			p.logger.WithField("action", "tpstore_compaction").
				WithField("run_id", runID).
				WithError(err).
				Error("seek compaction")
		}
		compacted = compacted || ok
	}
	if !compacted {
		return
	}
	if err := s.writeCatalogs(); err != nil {
		s.logger.WithField("action", "tpstore_compaction").
			WithError(err).
			Error("write property catalogs")
	}
}

// Shutdown merges the active memtable one last time, stops all background
// work and closes every file. The store cannot be used afterwards.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return temporal.ErrStoreClosed
	}
	s.closed = true
	s.promMetrics.StartClosingStore(s.rootDir)
	h, err := s.handOffLocked()
	s.mu.Unlock()

	var errs error
	if err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "hand off final memtable"))
	} else if err := s.merger.wait(ctx, h); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "merge final memtable"))
	}
	if bgErr := s.takeBackgroundError(); bgErr != nil {
		errs = multierror.Append(errs, bgErr)
	}

	for _, unregister := range s.unregisters {
		unregister()
	}
	if err := s.cycle.StopAndWait(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := s.merger.shutdown(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}

	if err := s.writeCatalogs(); err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, p := range s.sortedProperties() {
		if err := p.close(); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "close property %d", p.pid))
		}
	}
	if err := s.cache.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}

	s.promMetrics.FinishClosingStore(s.rootDir)
	if errs != nil {
		s.logger.WithField("action", "tpstore_shutdown").
			WithField("path", s.rootDir).
			WithError(errs).
			Error("shutdown")
	}
	return errs
}

// PropertyStats describes the files of one property.
type PropertyStats struct {
	PropertyID      int32
	Kind            temporal.PropertyKind
	Declared        bool
	StableFiles     int
	UnstableFiles   int
	Buffers         int
	BufferedBytes   uint64
	StableMaxTime   temporal.TimePoint
	UnstableMaxTime temporal.TimePoint
}

type StoreStats struct {
	MemTableSize    uint64
	Frozen          bool
	CachedTables    int
	PendingCleanups int
	Properties      []PropertyStats
}

func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		MemTableSize:    s.active.Size(),
		CachedTables:    s.cache.Len(),
		PendingCleanups: s.cleanup.Len(),
	}

	s.mergeLock.RLock()
	defer s.mergeLock.RUnlock()

	stats.Frozen = s.frozen != nil
	for _, p := range s.sortedPropertiesLocked() {
		meta := p.snapshot()
		kind, declared := p.declaredKind()
		ps := PropertyStats{
			PropertyID:      p.pid,
			Kind:            kind,
			Declared:        declared,
			StableFiles:     len(meta.Stable),
			UnstableFiles:   len(meta.Unstable),
			StableMaxTime:   meta.StableMaxTime(),
			UnstableMaxTime: meta.UnstableMaxTime(),
		}
		for _, buffers := range []map[uint64]*FileBuffer{meta.StableBuffers, meta.UnstableBuffers} {
			for _, buf := range buffers {
				ps.Buffers++
				ps.BufferedBytes += buf.Size()
			}
		}
		stats.Properties = append(stats.Properties, ps)
	}
	return stats
}
