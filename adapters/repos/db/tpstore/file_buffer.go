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
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/tpstore/entities/temporal"
)

// FileBuffer absorbs writes that land in the time range of an existing
// table. It is bound to exactly one table number and destroyed once it has
// been merged into that table.
//
// Only the background merge writes to a buffer. Readers take snapshots.
type FileBuffer struct {
	sync.RWMutex
	tier   Tier
	number uint64
	mt     *MemTable
	log    *bufferLog
}

func newFileBuffer(dir string, tier Tier, number uint64) (*FileBuffer, error) {
	log, err := openBufferLog(filepath.Join(dir, bufferFileName(tier, number)))
	if err != nil {
		return nil, err
	}

	return &FileBuffer{
		tier:   tier,
		number: number,
		mt:     NewMemTable(),
		log:    log,
	}, nil
}

// loadFileBuffer restores a buffer from its log and reopens the log for
// appending.
func loadFileBuffer(dir string, tier Tier, number uint64,
	logger logrus.FieldLogger,
) (*FileBuffer, error) {
	path := filepath.Join(dir, bufferFileName(tier, number))
	mt := NewMemTable()
	valid, err := replayBufferLog(path, mt, logger)
	switch {
	case err == nil:
		// appends must not land behind a torn record
		if err := os.Truncate(path, valid); err != nil {
			return nil, errors.Wrapf(err, "truncate buffer log %q", path)
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "replay buffer log %q", path)
	}

	b, err := newFileBuffer(dir, tier, number)
	if err != nil {
		return nil, err
	}
	b.mt = mt
	return b, nil
}

func (b *FileBuffer) AddInterval(id temporal.EntityPropertyID, iv temporal.TimeInterval,
	vt temporal.ValueType, data []byte,
) error {
	b.Lock()
	defer b.Unlock()

	if err := b.log.put(id, iv, vt, data); err != nil {
		return errors.Wrapf(err, "append to buffer %s", bufferFileName(b.tier, b.number))
	}
	return b.mt.AddInterval(id, iv, vt, data)
}

func (b *FileBuffer) Size() uint64 {
	b.RLock()
	defer b.RUnlock()

	return b.mt.Size()
}

func (b *FileBuffer) IsEmpty() bool {
	b.RLock()
	defer b.RUnlock()

	return b.mt.IsEmpty()
}

func (b *FileBuffer) Lookup(id temporal.EntityPropertyID, t temporal.TimePoint) temporal.Lookup {
	b.RLock()
	defer b.RUnlock()

	return b.mt.Lookup(id, t)
}

// SnapshotID copies the entries of one id.
func (b *FileBuffer) SnapshotID(id temporal.EntityPropertyID) *MemTable {
	b.RLock()
	defer b.RUnlock()

	return b.mt.CloneID(id)
}

func (b *FileBuffer) Snapshot() *MemTable {
	b.RLock()
	defer b.RUnlock()

	return b.mt.Clone()
}

// Flush makes all writes so far durable.
func (b *FileBuffer) Flush() error {
	b.Lock()
	defer b.Unlock()

	return b.log.flush()
}

func (b *FileBuffer) Close() error {
	b.Lock()
	defer b.Unlock()

	return b.log.close()
}

// Drop closes the buffer and removes its log.
func (b *FileBuffer) Drop() error {
	var errs error
	if err := b.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := b.log.delete(); err != nil && !os.IsNotExist(err) {
		errs = multierror.Append(errs, err)
	}
	return errs
}
