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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/tpstore/entities/diskio"
	"github.com/weaviate/tpstore/entities/temporal"
)

const propertyDirPrefix = "property_"

func propertyDirName(pid int32) string {
	return fmt.Sprintf("%s%d", propertyDirPrefix, pid)
}

func parsePropertyDirName(name string) (int32, bool) {
	if !strings.HasPrefix(name, propertyDirPrefix) {
		return 0, false
	}
	pid, err := strconv.ParseInt(strings.TrimPrefix(name, propertyDirPrefix), 10, 32)
	if err != nil || pid < 0 {
		return 0, false
	}
	return int32(pid), true
}

// SinglePropertyStore owns the files and buffers of one property. Its
// metadata is replaced copy-on-write while holding the store's merge lock,
// readers hold the read side for as long as they use a snapshot. All
// mutations happen on the background merge goroutine.
type SinglePropertyStore struct {
	store  *Store
	pid    int32
	dir    string
	logger logrus.FieldLogger

	meta       *PropertyMetaData
	nextNumber atomic.Uint64

	catalogLock sync.Mutex
	kind        temporal.PropertyKind
	declared    bool
}

func newSinglePropertyStore(s *Store, pid int32) (*SinglePropertyStore, error) {
	dir := filepath.Join(s.rootDir, propertyDirName(pid))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create property dir %q", dir)
	}

	return &SinglePropertyStore{
		store:  s,
		pid:    pid,
		dir:    dir,
		logger: s.logger.WithField("property", pid),
		meta:   newPropertyMetaData(),
	}, nil
}

// loadSinglePropertyStore restores a property from its catalog and replays
// the buffer logs next to its tables. Leftover temporary files and files the
// catalog does not reference are removed.
func loadSinglePropertyStore(s *Store, pid int32) (*SinglePropertyStore, error) {
	p, err := newSinglePropertyStore(s, pid)
	if err != nil {
		return nil, err
	}

	catalog, err := readCatalog(p.dir)
	if err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = &propertyCatalog{PropertyID: pid}
	}
	if catalog.PropertyID != pid {
		return nil, errors.Errorf("catalog in %q belongs to property %d", p.dir, catalog.PropertyID)
	}

	p.kind = temporal.PropertyKind(catalog.Kind)
	p.declared = catalog.Declared
	p.nextNumber.Store(catalog.NextNumber)

	meta := newPropertyMetaData()
	meta.Stable = filesOf(TierStable, catalog.Stable)
	meta.Unstable = filesOf(TierUnstable, catalog.Unstable)

	known := map[string]struct{}{catalogFileName: {}}
	for _, f := range meta.Files() {
		info, err := os.Stat(p.tablePath(f))
		if err != nil {
			return nil, errors.Wrapf(err, "table of %s", f)
		}
		// a rewrite may have been renamed into place after the catalog was
		// last written
		f.FileSize = info.Size()
		known[f.TableName()] = struct{}{}
		known[f.BufferName()] = struct{}{}

		exists, err := diskio.FileExists(p.bufferPath(f))
		if err != nil {
			return nil, errors.Wrapf(err, "buffer of %s", f)
		}
		if !exists {
			continue
		}
		buf, err := loadFileBuffer(p.dir, f.Tier, f.Number, p.logger)
		if err != nil {
			return nil, err
		}
		meta.setBuffer(f, buf)
	}
	p.meta = meta

	if err := p.removeUnreferenced(known); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *SinglePropertyStore) removeUnreferenced(known map[string]struct{}) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return errors.Wrapf(err, "read property dir %q", p.dir)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := known[e.Name()]; ok {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".tmp") {
			p.logger.WithField("action", "tpstore_startup").
				WithField("path", filepath.Join(p.dir, e.Name())).
				Warn("removing file not referenced by the catalog")
		}
		paths = append(paths, filepath.Join(p.dir, e.Name()))
	}
	p.store.cleanup.Remove(paths...)
	return nil
}

func (p *SinglePropertyStore) tablePath(f *FileMetaData) string {
	return filepath.Join(p.dir, f.TableName())
}

func (p *SinglePropertyStore) bufferPath(f *FileMetaData) string {
	return filepath.Join(p.dir, f.BufferName())
}

func (p *SinglePropertyStore) allocateNumber() uint64 {
	return p.nextNumber.Add(1) - 1
}

// snapshot returns the current metadata. Callers must hold the merge lock
// (either side) while they use the files it references.
func (p *SinglePropertyStore) snapshot() *PropertyMetaData {
	return p.meta
}

// currentMeta reads the metadata pointer on the background goroutine, which
// is the only writer.
func (p *SinglePropertyStore) currentMeta() *PropertyMetaData {
	p.store.mergeLock.RLock()
	defer p.store.mergeLock.RUnlock()

	return p.meta
}

// commit applies fn to a copy of the metadata and swaps it in.
func (p *SinglePropertyStore) commit(fn func(next *PropertyMetaData) error) error {
	p.store.mergeLock.Lock()
	defer p.store.mergeLock.Unlock()

	next := p.meta.clone()
	if err := fn(next); err != nil {
		return err
	}
	p.meta = next
	return nil
}

// bufferFor returns the buffer of f, creating it on first use.
func (p *SinglePropertyStore) bufferFor(f *FileMetaData) (*FileBuffer, error) {
	if buf := p.currentMeta().Buffer(f); buf != nil {
		return buf, nil
	}

	buf, err := newFileBuffer(p.dir, f.Tier, f.Number)
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer of %s", f)
	}
	err = p.commit(func(next *PropertyMetaData) error {
		next.setBuffer(f, buf)
		return nil
	})
	return buf, err
}

func (p *SinglePropertyStore) declare(kind temporal.PropertyKind) error {
	p.catalogLock.Lock()
	if p.declared && p.kind != kind {
		declared := p.kind
		p.catalogLock.Unlock()
		return errors.Wrapf(temporal.ErrValueTypeMismatch,
			"property %d is already declared as %s", p.pid, declared)
	}
	p.kind = kind
	p.declared = true
	p.catalogLock.Unlock()

	return p.writeCatalog()
}

func (p *SinglePropertyStore) declaredKind() (temporal.PropertyKind, bool) {
	p.catalogLock.Lock()
	defer p.catalogLock.Unlock()

	return p.kind, p.declared
}

func (p *SinglePropertyStore) writeCatalog() error {
	meta := p.currentMeta()

	p.catalogLock.Lock()
	defer p.catalogLock.Unlock()

	return writeCatalog(p.dir, &propertyCatalog{
		PropertyID: p.pid,
		Kind:       uint8(p.kind),
		Declared:   p.declared,
		NextNumber: p.nextNumber.Load(),
		Stable:     recordsOf(meta.Stable),
		Unstable:   recordsOf(meta.Unstable),
	})
}

// flushBuffers makes all buffer logs of the property durable.
func (p *SinglePropertyStore) flushBuffers(buffers []*FileBuffer) error {
	var errs error
	for _, buf := range buffers {
		if err := buf.Flush(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

func (p *SinglePropertyStore) close() error {
	meta := p.currentMeta()

	var errs error
	for _, buffers := range []map[uint64]*FileBuffer{meta.StableBuffers, meta.UnstableBuffers} {
		for _, buf := range buffers {
			if err := buf.Close(); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs
}

func (p *SinglePropertyStore) reportTableCounts() {
	meta := p.currentMeta()
	p.store.metrics.TableCount(p.pid, TierStable, len(meta.Stable))
	p.store.metrics.TableCount(p.pid, TierUnstable, len(meta.Unstable))
}
