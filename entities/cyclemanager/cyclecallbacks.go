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

package cyclemanager

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Container for multiple callbacks exposing CycleCallback method acting as single callback.
// Can be provided to CycleManager.
type CycleCallbacks interface {
	// Adds CycleCallback method to container, returned func removes it again
	Register(id string, cycleCallback CycleCallback) (unregister func())
	// Method of CycleCallback acting as single callback for all callbacks added to the container
	CycleCallback(shouldAbort ShouldAbortCallback) bool
}

type cycleCallbacks struct {
	sync.Mutex

	logger        logrus.FieldLogger
	customId      string
	routinesLimit int
	nextId        uint32
	callbacks     map[uint32]*cycleCallbackMeta
	order         []uint32
}

type cycleCallbackMeta struct {
	customId      string
	cycleCallback CycleCallback
}

func NewCycleCallbacks(id string, logger logrus.FieldLogger, routinesLimit int) CycleCallbacks {
	return &cycleCallbacks{
		logger:        logger,
		customId:      id,
		routinesLimit: routinesLimit,
		callbacks:     map[uint32]*cycleCallbackMeta{},
	}
}

func (c *cycleCallbacks) Register(id string, cycleCallback CycleCallback) func() {
	c.Lock()
	defer c.Unlock()

	callbackId := c.nextId
	c.nextId++
	c.callbacks[callbackId] = &cycleCallbackMeta{
		customId:      id,
		cycleCallback: cycleCallback,
	}
	c.order = append(c.order, callbackId)

	return func() {
		c.Lock()
		defer c.Unlock()

		delete(c.callbacks, callbackId)
		for i, registered := range c.order {
			if registered == callbackId {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

func (c *cycleCallbacks) CycleCallback(shouldAbort ShouldAbortCallback) bool {
	c.Lock()
	metas := make([]*cycleCallbackMeta, 0, len(c.order))
	for _, id := range c.order {
		metas = append(metas, c.callbacks[id])
	}
	c.Unlock()

	eg := &errgroup.Group{}
	if c.routinesLimit > 0 {
		eg.SetLimit(c.routinesLimit)
	}
	lock := new(sync.Mutex)

	executed := false
	for _, meta := range metas {
		if shouldAbort() {
			break
		}

		meta := meta
		eg.Go(func() error {
			// conditions may have changed until the routine started
			if shouldAbort() {
				return nil
			}

			defer c.recover(meta.customId)
			ex := meta.cycleCallback(shouldAbort)

			lock.Lock()
			executed = ex || executed
			lock.Unlock()
			return nil
		})
	}

	eg.Wait()
	return executed
}

func (c *cycleCallbacks) recover(callbackCustomId string) {
	if r := recover(); r != nil {
		c.logger.WithFields(logrus.Fields{
			"action":       "cyclemanager",
			"callback_id":  callbackCustomId,
			"callbacks_id": c.customId,
		}).Errorf("callback panic: %v", r)
	}
}
