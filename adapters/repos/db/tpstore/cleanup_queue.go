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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/tpstore/entities/cyclemanager"
)

const defaultCleanupAttempts = 10

type cleanupItem struct {
	path     string
	attempts int
	next     time.Time
	backoff  *backoff.ExponentialBackOff
}

// cleanupQueue deletes obsolete files. Deletions that fail are kept and
// retried by the maintenance cycle with exponential backoff, until they
// succeed or run out of attempts.
type cleanupQueue struct {
	sync.Mutex
	items       []*cleanupItem
	maxAttempts int
	remove      func(path string) error
	now         func() time.Time
	logger      logrus.FieldLogger
	metrics     *Metrics
}

func newCleanupQueue(logger logrus.FieldLogger, metrics *Metrics) *cleanupQueue {
	return &cleanupQueue{
		maxAttempts: defaultCleanupAttempts,
		remove:      os.Remove,
		now:         time.Now,
		logger:      logger,
		metrics:     metrics,
	}
}

func newCleanupBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Remove deletes paths right away and queues the ones that fail.
func (q *cleanupQueue) Remove(paths ...string) {
	for _, path := range paths {
		if err := q.remove(path); err != nil && !os.IsNotExist(err) {
			q.logger.WithField("action", "tpstore_cleanup").
				WithField("path", path).
				WithError(err).
				Warn("delete obsolete file, will retry")
			q.enqueue(path)
		}
	}
}

func (q *cleanupQueue) enqueue(path string) {
	q.Lock()
	defer q.Unlock()

	b := newCleanupBackoff()
	q.items = append(q.items, &cleanupItem{
		path:     path,
		attempts: 1,
		next:     q.now().Add(b.NextBackOff()),
		backoff:  b,
	})
}

// Retry attempts every queued deletion that is due. It is registered as a
// cycle callback and reports whether anything was attempted.
func (q *cleanupQueue) Retry(shouldAbort cyclemanager.ShouldAbortCallback) bool {
	q.Lock()
	defer q.Unlock()

	now := q.now()
	attempted := false
	kept := q.items[:0]
	for i, item := range q.items {
		if shouldAbort() {
			kept = append(kept, q.items[i:]...)
			break
		}
		if item.next.After(now) {
			kept = append(kept, item)
			continue
		}

		attempted = true
		q.metrics.CleanupRetry()
		err := q.remove(item.path)
		if err == nil || os.IsNotExist(err) {
			continue
		}

		item.attempts++
		if item.attempts >= q.maxAttempts {
			q.logger.WithField("action", "tpstore_cleanup").
				WithField("path", item.path).
				WithError(err).
				Errorf("giving up on deleting obsolete file after %d attempts", item.attempts)
			continue
		}
		item.next = now.Add(item.backoff.NextBackOff())
		kept = append(kept, item)
	}
	q.items = kept
	return attempted
}

func (q *cleanupQueue) Len() int {
	q.Lock()
	defer q.Unlock()

	return len(q.items)
}
