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

package segmentindex

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// HeaderSize is the fixed size of a table header in bytes.
const HeaderSize = 48

// CurrentVersion is written into every new table.
const CurrentVersion = uint16(1)

// Header sits at offset 0 of every sorted table:
//
//	version  uint16
//	tier     uint16
//	reserved uint32
//	count    uint64  number of records
//	index    uint64  offset of the index tree
//	bloom    uint64  offset of the entity bloom filter
//	smallest int64   first time point covered by the table
//	largest  int64   last time point covered by the table
//
// Records live between HeaderSize and IndexStart, the index tree between
// IndexStart and BloomStart, the bloom filter from BloomStart to the end of
// the file.
type Header struct {
	Version    uint16
	Tier       uint16
	Reserved   uint32
	Count      uint64
	IndexStart uint64
	BloomStart uint64
	Smallest   int64
	Largest    int64
}

func (h *Header) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, HeaderSize)
	h.encode(buf)
	n, err := w.Write(buf)
	return int64(n), err
}

// Bytes returns the encoded header.
func (h *Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	h.encode(buf)
	return buf
}

func (h *Header) encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Version)
	binary.LittleEndian.PutUint16(buf[2:4], h.Tier)
	binary.LittleEndian.PutUint32(buf[4:8], h.Reserved)
	binary.LittleEndian.PutUint64(buf[8:16], h.Count)
	binary.LittleEndian.PutUint64(buf[16:24], h.IndexStart)
	binary.LittleEndian.PutUint64(buf[24:32], h.BloomStart)
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.Smallest))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.Largest))
}

func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, errors.Errorf("header too short: %d bytes", len(data))
	}

	h := &Header{
		Version:    binary.LittleEndian.Uint16(data[0:2]),
		Tier:       binary.LittleEndian.Uint16(data[2:4]),
		Reserved:   binary.LittleEndian.Uint32(data[4:8]),
		Count:      binary.LittleEndian.Uint64(data[8:16]),
		IndexStart: binary.LittleEndian.Uint64(data[16:24]),
		BloomStart: binary.LittleEndian.Uint64(data[24:32]),
		Smallest:   int64(binary.LittleEndian.Uint64(data[32:40])),
		Largest:    int64(binary.LittleEndian.Uint64(data[40:48])),
	}

	if h.Version != CurrentVersion {
		return nil, errors.Errorf("unsupported table version %d", h.Version)
	}
	if h.IndexStart < HeaderSize || h.BloomStart < h.IndexStart {
		return nil, errors.Errorf("corrupt header: index at %d, bloom at %d",
			h.IndexStart, h.BloomStart)
	}

	return h, nil
}
