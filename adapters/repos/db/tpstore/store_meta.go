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

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/weaviate/tpstore/entities/diskio"
	"github.com/weaviate/tpstore/entities/temporal"
)

const (
	catalogFileName = "meta.msgpack"
	catalogVersion  = 1
)

type fileRecord struct {
	Number   uint64 `msgpack:"number"`
	Version  uint64 `msgpack:"version"`
	FileSize int64  `msgpack:"file_size"`
	Smallest int64  `msgpack:"smallest"`
	Largest  int64  `msgpack:"largest"`
}

// propertyCatalog is the persisted form of one property: its declared kind
// and the file lists of both tiers. Buffers are not part of it, they are
// found next to their tables on load.
type propertyCatalog struct {
	Version    uint16       `msgpack:"version"`
	PropertyID int32        `msgpack:"property_id"`
	Kind       uint8        `msgpack:"kind"`
	Declared   bool         `msgpack:"declared"`
	NextNumber uint64       `msgpack:"next_number"`
	Stable     []fileRecord `msgpack:"stable"`
	Unstable   []fileRecord `msgpack:"unstable"`
}

func recordsOf(files []*FileMetaData) []fileRecord {
	out := make([]fileRecord, len(files))
	for i, f := range files {
		out[i] = fileRecord{
			Number:   f.Number,
			Version:  f.Version,
			FileSize: f.FileSize,
			Smallest: int64(f.Smallest),
			Largest:  int64(f.Largest),
		}
	}
	return out
}

func filesOf(tier Tier, records []fileRecord) []*FileMetaData {
	out := make([]*FileMetaData, len(records))
	for i, r := range records {
		out[i] = newFileMetaData(tier, r.Number, r.Version, r.FileSize,
			temporal.TimePoint(r.Smallest), temporal.TimePoint(r.Largest))
	}
	return out
}

func (c *propertyCatalog) validate() error {
	if c.Version != catalogVersion {
		return errors.Errorf("unsupported catalog version %d", c.Version)
	}

	prev := temporal.Init
	for _, records := range [][]fileRecord{c.Stable, c.Unstable} {
		for _, r := range records {
			if r.Smallest != int64(prev)+1 || r.Largest < r.Smallest {
				return errors.Errorf("file %d covers [%d,%d] after %d", r.Number,
					r.Smallest, r.Largest, prev)
			}
			if r.Number >= c.NextNumber {
				return errors.Errorf("file %d not below next number %d", r.Number, c.NextNumber)
			}
			prev = temporal.TimePoint(r.Largest)
		}
	}
	return nil
}

// writeCatalog replaces the catalog in dir atomically.
func writeCatalog(dir string, c *propertyCatalog) error {
	c.Version = catalogVersion
	data, err := msgpack.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal property catalog")
	}

	return diskio.WriteFile(filepath.Join(dir, catalogFileName), data)
}

// readCatalog returns nil and no error if dir has no catalog yet.
func readCatalog(dir string) (*propertyCatalog, error) {
	path := filepath.Join(dir, catalogFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read %q", path)
	}

	c := &propertyCatalog{}
	if err := msgpack.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %q", path)
	}
	if err := c.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid catalog %q", path)
	}
	return c, nil
}
