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
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type tableKey struct {
	pid    int32
	tier   Tier
	number uint64
}

// tableHandle is a reference counted open table of one file version. A
// handle that is evicted or superseded is retired: it stays open until the
// last reference is released.
type tableHandle struct {
	cache   *TableCache
	key     tableKey
	version uint64
	table   *Table
	refs    int
	retired bool
}

func (h *tableHandle) Release() {
	h.cache.release(h)
}

// TableCache bounds the number of open tables.
type TableCache struct {
	sync.Mutex
	lru     *lru.Cache[tableKey, *tableHandle]
	retired map[*tableHandle]struct{}
	logger  logrus.FieldLogger
	metrics *Metrics
}

func NewTableCache(size int, logger logrus.FieldLogger, metrics *Metrics) (*TableCache, error) {
	c := &TableCache{
		retired: map[*tableHandle]struct{}{},
		logger:  logger,
		metrics: metrics,
	}

	// evictions happen inside Add, Remove and Purge, which are only called
	// with c locked
	cache, err := lru.NewWithEvict(size, func(_ tableKey, h *tableHandle) {
		c.retire(h)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create table cache")
	}
	c.lru = cache
	return c, nil
}

// Acquire returns a referenced handle of the current version of f. The
// caller must Release it.
func (c *TableCache) Acquire(pid int32, f *FileMetaData, path string) (*tableHandle, error) {
	key := tableKey{pid: pid, tier: f.Tier, number: f.Number}

	c.Lock()
	defer c.Unlock()

	if h, ok := c.lru.Get(key); ok {
		if h.version == f.Version {
			h.refs++
			c.metrics.TableCacheRequest(true)
			return h, nil
		}
		c.lru.Remove(key)
	}
	c.metrics.TableCacheRequest(false)

	table, err := OpenTable(path, c.metrics)
	if err != nil {
		return nil, err
	}

	h := &tableHandle{
		cache:   c,
		key:     key,
		version: f.Version,
		table:   table,
		refs:    1,
	}
	c.lru.Add(key, h)
	return h, nil
}

// Invalidate retires the cached handle of a file that was rewritten or
// removed.
func (c *TableCache) Invalidate(pid int32, tier Tier, number uint64) {
	c.Lock()
	defer c.Unlock()

	c.lru.Remove(tableKey{pid: pid, tier: tier, number: number})
}

func (c *TableCache) release(h *tableHandle) {
	c.Lock()
	defer c.Unlock()

	h.refs--
	if h.refs < 0 {
		panic(fmt.Sprintf("table %q released more often than acquired", h.table.Path()))
	}
	if h.retired && h.refs == 0 {
		c.closeHandle(h)
	}
}

// retire is called with c locked.
func (c *TableCache) retire(h *tableHandle) {
	h.retired = true
	if h.refs == 0 {
		c.closeHandle(h)
		return
	}
	c.retired[h] = struct{}{}
}

func (c *TableCache) closeHandle(h *tableHandle) {
	delete(c.retired, h)
	if err := h.table.Close(); err != nil {
		c.logger.WithField("action", "tpstore_table_cache").
			WithField("path", h.table.Path()).
			WithError(err).
			Error("close retired table")
	}
}

// Len is the number of cached handles.
func (c *TableCache) Len() int {
	c.Lock()
	defer c.Unlock()

	return c.lru.Len()
}

// Retired is the number of handles waiting for their last reference.
func (c *TableCache) Retired() int {
	c.Lock()
	defer c.Unlock()

	return len(c.retired)
}

// Close retires every handle. Handles still referenced are closed by their
// last Release.
func (c *TableCache) Close() error {
	c.Lock()
	defer c.Unlock()

	c.lru.Purge()
	if n := len(c.retired); n > 0 {
		return errors.Errorf("%d tables still referenced on close", n)
	}
	return nil
}
