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
	"sort"
	"sync/atomic"

	"github.com/weaviate/tpstore/entities/temporal"
)

// Tier separates compacted history (stable) from recent files that are
// still promoted in batches (unstable).
type Tier uint16

const (
	TierStable Tier = iota
	TierUnstable
)

func (t Tier) String() string {
	switch t {
	case TierStable:
		return "stable"
	case TierUnstable:
		return "unstable"
	default:
		return fmt.Sprintf("Tier(%d)", uint16(t))
	}
}

func (t Tier) prefix() string {
	if t == TierStable {
		return "st"
	}
	return "un"
}

func tableFileName(tier Tier, number uint64) string {
	return fmt.Sprintf("%s.%06d.table", tier.prefix(), number)
}

func bufferFileName(tier Tier, number uint64) string {
	return fmt.Sprintf("%s.%06d.buffer", tier.prefix(), number)
}

const (
	minAllowedSeeks    = 100
	bytesPerSeekCredit = 16 * 1024
)

func initialAllowedSeeks(fileSize int64) int64 {
	if seeks := fileSize / bytesPerSeekCredit; seeks > minAllowedSeeks {
		return seeks
	}
	return minAllowedSeeks
}

// FileMetaData describes one sorted table. Everything but the seek budget
// is immutable; a rewrite of the file produces a new FileMetaData with a
// higher version.
type FileMetaData struct {
	Tier     Tier
	Number   uint64
	Version  uint64
	FileSize int64
	// Smallest and Largest bound the time range owned by the file. The file
	// may additionally hold keys at Largest+1, the value in effect right
	// after its range.
	Smallest temporal.TimePoint
	Largest  temporal.TimePoint

	allowedSeeks atomic.Int64
}

func newFileMetaData(tier Tier, number, version uint64, size int64,
	smallest, largest temporal.TimePoint,
) *FileMetaData {
	f := &FileMetaData{
		Tier:     tier,
		Number:   number,
		Version:  version,
		FileSize: size,
		Smallest: smallest,
		Largest:  largest,
	}
	f.allowedSeeks.Store(initialAllowedSeeks(size))
	return f
}

func (f *FileMetaData) Range() temporal.TimeInterval {
	return temporal.TimeInterval{Start: f.Smallest, End: f.Largest}
}

func (f *FileMetaData) TableName() string {
	return tableFileName(f.Tier, f.Number)
}

func (f *FileMetaData) BufferName() string {
	return bufferFileName(f.Tier, f.Number)
}

// ConsumeSeek charges one unproductive lookup to the file and reports
// whether its budget is used up.
func (f *FileMetaData) ConsumeSeek() bool {
	return f.allowedSeeks.Add(-1) <= 0
}

func (f *FileMetaData) AllowedSeeks() int64 {
	return f.allowedSeeks.Load()
}

func (f *FileMetaData) String() string {
	return fmt.Sprintf("%s v%d %s", f.TableName(), f.Version, f.Range())
}

// PropertyMetaData is the catalog of one property. It is replaced as a
// whole on every change, readers may keep using an old version.
type PropertyMetaData struct {
	// Stable and Unstable are ordered by time range. Ranges are disjoint and
	// the stable ones precede the unstable ones.
	Stable   []*FileMetaData
	Unstable []*FileMetaData

	StableBuffers   map[uint64]*FileBuffer
	UnstableBuffers map[uint64]*FileBuffer
}

func newPropertyMetaData() *PropertyMetaData {
	return &PropertyMetaData{
		StableBuffers:   map[uint64]*FileBuffer{},
		UnstableBuffers: map[uint64]*FileBuffer{},
	}
}

func (p *PropertyMetaData) clone() *PropertyMetaData {
	out := &PropertyMetaData{
		Stable:          append([]*FileMetaData(nil), p.Stable...),
		Unstable:        append([]*FileMetaData(nil), p.Unstable...),
		StableBuffers:   make(map[uint64]*FileBuffer, len(p.StableBuffers)),
		UnstableBuffers: make(map[uint64]*FileBuffer, len(p.UnstableBuffers)),
	}
	for n, b := range p.StableBuffers {
		out.StableBuffers[n] = b
	}
	for n, b := range p.UnstableBuffers {
		out.UnstableBuffers[n] = b
	}
	return out
}

func (p *PropertyMetaData) IsEmpty() bool {
	return len(p.Stable) == 0 && len(p.Unstable) == 0
}

// StableMaxTime is the end of stable coverage, Init without stable files.
func (p *PropertyMetaData) StableMaxTime() temporal.TimePoint {
	if len(p.Stable) == 0 {
		return temporal.Init
	}
	return p.Stable[len(p.Stable)-1].Largest
}

// UnstableMaxTime is the end of unstable coverage. Without unstable files
// it equals StableMaxTime, so the unstable zone is empty.
func (p *PropertyMetaData) UnstableMaxTime() temporal.TimePoint {
	if len(p.Unstable) == 0 {
		return p.StableMaxTime()
	}
	return p.Unstable[len(p.Unstable)-1].Largest
}

// Files returns all files ordered by time range.
func (p *PropertyMetaData) Files() []*FileMetaData {
	out := make([]*FileMetaData, 0, len(p.Stable)+len(p.Unstable))
	out = append(out, p.Stable...)
	return append(out, p.Unstable...)
}

// overlapping returns the files of one tier that intersect iv.
func overlapping(files []*FileMetaData, iv temporal.TimeInterval) []*FileMetaData {
	first := sort.Search(len(files), func(i int) bool {
		return files[i].Largest >= iv.Start
	})
	var out []*FileMetaData
	for _, f := range files[first:] {
		if !f.Range().Overlaps(iv) {
			break
		}
		out = append(out, f)
	}
	return out
}

func (p *PropertyMetaData) Buffer(f *FileMetaData) *FileBuffer {
	if f.Tier == TierStable {
		return p.StableBuffers[f.Number]
	}
	return p.UnstableBuffers[f.Number]
}

func (p *PropertyMetaData) setBuffer(f *FileMetaData, b *FileBuffer) {
	buffers := p.UnstableBuffers
	if f.Tier == TierStable {
		buffers = p.StableBuffers
	}
	if b == nil {
		delete(buffers, f.Number)
		return
	}
	buffers[f.Number] = b
}

// replaceFile swaps the entry with the same tier and number.
func (p *PropertyMetaData) replaceFile(f *FileMetaData) {
	files := p.Unstable
	if f.Tier == TierStable {
		files = p.Stable
	}
	for i := range files {
		if files[i].Number == f.Number {
			files[i] = f
			return
		}
	}
	panic(fmt.Sprintf("replace unknown file %s", f))
}
