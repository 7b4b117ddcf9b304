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
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/willf/bloom"

	"github.com/weaviate/tpstore/adapters/repos/db/tpstore/segmentindex"
	"github.com/weaviate/tpstore/entities/temporal"
)

// Table is a read-only, memory-mapped sorted table written by a
// TableBuilder.
type Table struct {
	path     string
	file     *os.File
	contents mmap.MMap
	header   *segmentindex.Header
	index    *segmentindex.DiskTree
	bloom    *bloom.BloomFilter
	metrics  *Metrics
}

func OpenTable(path string, metrics *Metrics) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open table %q", path)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stat table %q", path)
	}

	if fileInfo.Size() < segmentindex.HeaderSize {
		file.Close()
		return nil, errors.Errorf("table %q too short: %d bytes", path, fileInfo.Size())
	}

	contents, err := mmap.MapRegion(file, int(fileInfo.Size()), mmap.RDONLY, 0, 0)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "mmap table %q", path)
	}

	t := &Table{
		path:     path,
		file:     file,
		contents: contents,
		metrics:  metrics,
	}

	if err := t.init(); err != nil {
		t.Close()
		return nil, errors.Wrapf(err, "table %q", path)
	}
	return t, nil
}

func (t *Table) init() error {
	header, err := segmentindex.ParseHeader(t.contents[:segmentindex.HeaderSize])
	if err != nil {
		return err
	}
	if header.BloomStart > uint64(len(t.contents)) {
		return errors.Errorf("bloom filter offset %d beyond end of file", header.BloomStart)
	}
	t.header = header
	t.index = segmentindex.NewDiskTree(t.contents[header.IndexStart:header.BloomStart])

	t.bloom = new(bloom.BloomFilter)
	if _, err := t.bloom.ReadFrom(bytes.NewReader(t.contents[header.BloomStart:])); err != nil {
		return errors.Wrap(err, "read bloom filter")
	}
	return nil
}

func (t *Table) Close() error {
	var errs error
	if err := t.contents.Unmap(); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "munmap"))
	}
	if err := t.file.Close(); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "close"))
	}
	return errs
}

func (t *Table) Path() string {
	return t.path
}

func (t *Table) Tier() Tier {
	return Tier(t.header.Tier)
}

func (t *Table) Count() uint64 {
	return t.header.Count
}

func (t *Table) Smallest() temporal.TimePoint {
	return temporal.TimePoint(t.header.Smallest)
}

func (t *Table) Largest() temporal.TimePoint {
	return temporal.TimePoint(t.header.Largest)
}

// MayContain consults the bloom filter over the ids of the table.
func (t *Table) MayContain(id temporal.EntityPropertyID) bool {
	var buf [temporal.IDSize]byte
	temporal.EncodeID(buf[:], id)
	ok := t.bloom.Test(buf[:])
	t.metrics.BloomCheck(ok)
	return ok
}

// Floor returns the entry of id with the greatest time <= at.
func (t *Table) Floor(id temporal.EntityPropertyID, at temporal.TimePoint) (Entry, bool, error) {
	node, err := t.index.Floor(temporal.EncodeFloorTarget(id, at))
	if errors.Is(err, segmentindex.NotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	e, _, err := t.recordAt(node.Start)
	if err != nil {
		return Entry{}, false, err
	}
	if e.Key.ID != id {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// recordAt decodes the record at pos. The value is copied out of the
// mapping.
func (t *Table) recordAt(pos uint64) (Entry, uint64, error) {
	end := t.header.IndexStart
	if pos+recordOverhead > end {
		return Entry{}, 0, errors.Errorf("record at %d overlaps the index at %d", pos, end)
	}

	key, err := temporal.DecodeInternalKey(t.contents[pos : pos+temporal.KeySize])
	if err != nil {
		return Entry{}, 0, errors.Wrapf(err, "record at %d", pos)
	}
	pos += temporal.KeySize
	valueLen := uint64(binary.LittleEndian.Uint32(t.contents[pos : pos+4]))
	pos += 4
	if pos+valueLen > end {
		return Entry{}, 0, errors.Errorf("value of %s overlaps the index", key)
	}

	e := Entry{Key: key}
	if valueLen > 0 {
		e.Value = make([]byte, valueLen)
		copy(e.Value, t.contents[pos:pos+valueLen])
	}
	return e, pos + valueLen, nil
}

func (t *Table) NewCursor() Cursor {
	c := &tableCursor{table: t}
	c.lookahead = newLookahead(c.fetch)
	return c
}

type tableCursor struct {
	*lookahead
	table *Table
	pos   uint64
}

func (c *tableCursor) SeekToFirst() {
	c.pos = segmentindex.HeaderSize
	c.reset()
}

func (c *tableCursor) SeekFloor(target temporal.InternalKey) bool {
	if target.Time < 0 {
		panic(fmt.Sprintf("seek floor of %s in table %q", target, c.table.path))
	}

	c.reset()
	node, err := c.table.index.Floor(temporal.EncodeFloorTarget(target.ID, target.Time))
	if errors.Is(err, segmentindex.NotFound) {
		c.pos = segmentindex.HeaderSize
		return false
	}
	if err != nil {
		panic(errors.Wrapf(err, "seek floor in table %q", c.table.path))
	}
	c.pos = node.Start
	return true
}

func (c *tableCursor) fetch() (Entry, bool) {
	if c.pos >= c.table.header.IndexStart {
		return Entry{}, false
	}

	e, next, err := c.table.recordAt(c.pos)
	if err != nil {
		panic(errors.Wrapf(err, "corrupt table %q", c.table.path))
	}
	c.pos = next
	return e, true
}
