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
	"bufio"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	"github.com/willf/bloom"

	"github.com/weaviate/tpstore/adapters/repos/db/tpstore/segmentindex"
	"github.com/weaviate/tpstore/entities/temporal"
)

const (
	defaultBloomFalsePositiveRate = 0.01
	// key(20) + valueLen(4)
	recordOverhead = temporal.KeySize + 4
)

// TableBuilder writes a sorted table. Entries must be added in strictly
// increasing key order. The file is only complete after Finish.
//
//	header | records | index tree | bloom filter
//
// where every record is key(20) valueLen(uint32) value.
type TableBuilder struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	header segmentindex.Header

	offset  uint64
	nodes   []segmentindex.Node
	ids     [][]byte
	last    temporal.InternalKey
	hasLast bool
	bloomFP float64
}

func NewTableBuilder(path string, tier Tier, smallest, largest temporal.TimePoint,
	bloomFalsePositiveRate float64,
) (*TableBuilder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create table %q", path)
	}

	if bloomFalsePositiveRate <= 0 || bloomFalsePositiveRate >= 1 {
		bloomFalsePositiveRate = defaultBloomFalsePositiveRate
	}

	b := &TableBuilder{
		path:   path,
		file:   f,
		writer: bufio.NewWriter(f),
		header: segmentindex.Header{
			Version:  segmentindex.CurrentVersion,
			Tier:     uint16(tier),
			Smallest: int64(smallest),
			Largest:  int64(largest),
		},
		offset:  segmentindex.HeaderSize,
		bloomFP: bloomFalsePositiveRate,
	}

	// placeholder, rewritten by Finish once the offsets are known
	if _, err := b.header.WriteTo(b.writer); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "write header placeholder")
	}

	return b, nil
}

func (b *TableBuilder) Add(e Entry) error {
	if b.hasLast && e.Key.Compare(b.last) <= 0 {
		return errors.Errorf("table %q: key %s added after %s", b.path, e.Key, b.last)
	}
	key := e.Key.Encode()

	var valueLen [4]byte
	binary.LittleEndian.PutUint32(valueLen[:], uint32(len(e.Value)))

	start := b.offset
	for _, part := range [][]byte{key, valueLen[:], e.Value} {
		n, err := b.writer.Write(part)
		if err != nil {
			return errors.Wrapf(err, "write record to %q", b.path)
		}
		b.offset += uint64(n)
	}

	b.nodes = append(b.nodes, segmentindex.Node{Key: key, Start: start, End: b.offset})
	if !b.hasLast || b.last.ID != e.Key.ID {
		b.ids = append(b.ids, key[:temporal.IDSize])
	}
	b.last, b.hasLast = e.Key, true
	b.header.Count++
	return nil
}

// Count is the number of records added so far.
func (b *TableBuilder) Count() uint64 {
	return b.header.Count
}

// Finish writes index and bloom filter, fixes up the header and syncs the
// file. It returns the size of the table.
func (b *TableBuilder) Finish() (int64, error) {
	b.header.IndexStart = b.offset
	n, err := segmentindex.MarshalSortedNodes(b.writer, b.nodes)
	if err != nil {
		return 0, b.abort(errors.Wrap(err, "write index"))
	}
	b.offset += uint64(n)
	b.header.BloomStart = b.offset

	filter := bloom.NewWithEstimates(uint(len(b.ids))+1, b.bloomFP)
	for _, id := range b.ids {
		filter.Add(id)
	}
	n, err = filter.WriteTo(b.writer)
	if err != nil {
		return 0, b.abort(errors.Wrap(err, "write bloom filter"))
	}
	b.offset += uint64(n)

	if err := b.writer.Flush(); err != nil {
		return 0, b.abort(errors.Wrap(err, "flush table"))
	}
	if _, err := b.file.WriteAt(b.header.Bytes(), 0); err != nil {
		return 0, b.abort(errors.Wrap(err, "write header"))
	}
	if err := b.file.Sync(); err != nil {
		return 0, b.abort(errors.Wrap(err, "fsync table"))
	}
	if err := b.file.Close(); err != nil {
		return 0, errors.Wrapf(err, "close table %q", b.path)
	}

	return int64(b.offset), nil
}

// Abort closes and removes a table that will not be finished.
func (b *TableBuilder) Abort() error {
	return b.abort(nil)
}

func (b *TableBuilder) abort(cause error) error {
	b.file.Close()
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) && cause == nil {
		return err
	}
	return cause
}
