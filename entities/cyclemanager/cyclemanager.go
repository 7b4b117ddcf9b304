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
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type (
	// indicates whether cyclemanager's stop was requested to allow safely
	// break execution of CycleCallback and stop cyclemanager earlier
	ShouldAbortCallback func() bool
	// return value indicates whether actual work was done in the cycle
	CycleCallback func(shouldAbort ShouldAbortCallback) bool
)

type CycleManager interface {
	Start()
	StopAndWait(ctx context.Context) error
	Running() bool
}

type cycleManager struct {
	sync.RWMutex

	callbacks   CycleCallbacks
	cycleTicker CycleTicker
	running     bool
	stopSignal  chan struct{}
	stopped     chan struct{}
}

func New(cycleTicker CycleTicker, callbacks CycleCallbacks) CycleManager {
	return &cycleManager{
		callbacks:   callbacks,
		cycleTicker: cycleTicker,
	}
}

// Starts instance, does not block
// Does nothing if instance is already started
func (c *cycleManager) Start() {
	c.Lock()
	defer c.Unlock()

	if c.running {
		return
	}

	stopSignal := make(chan struct{})
	stopped := make(chan struct{})
	shouldAbort := func() bool {
		select {
		case <-stopSignal:
			return true
		default:
			return false
		}
	}

	c.cycleTicker.Start()
	go func() {
		defer close(stopped)
		defer c.cycleTicker.Stop()

		for {
			select {
			case <-stopSignal:
				return
			case <-c.cycleTicker.C():
				// stop has priority if both are ready
				if shouldAbort() {
					return
				}
				c.cycleTicker.CycleExecuted(c.callbacks.CycleCallback(shouldAbort))
			}
		}
	}()

	c.stopSignal = stopSignal
	c.stopped = stopped
	c.running = true
}

// Stops running instance and waits for the running cycle to finish or ctx
// to expire, whichever comes first.
func (c *cycleManager) StopAndWait(ctx context.Context) error {
	c.Lock()
	if !c.running {
		c.Unlock()
		return nil
	}
	close(c.stopSignal)
	c.running = false
	stopped := c.stopped
	c.Unlock()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for cycle to stop")
	}
}

func (c *cycleManager) Running() bool {
	c.RLock()
	defer c.RUnlock()

	return c.running
}

type CycleTicker interface {
	Start()
	Stop()
	C() <-chan time.Time
	// called with the result of the callbacks after every cycle
	CycleExecuted(executed bool)
}

type fixedTicker struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewFixedTicker ticks every interval. A non-positive interval never ticks.
func NewFixedTicker(interval time.Duration) CycleTicker {
	return &fixedTicker{interval: interval}
}

func (t *fixedTicker) Start() {
	if t.interval > 0 {
		t.ticker = time.NewTicker(t.interval)
	}
}

func (t *fixedTicker) Stop() {
	if t.ticker != nil {
		t.ticker.Stop()
	}
}

func (t *fixedTicker) C() <-chan time.Time {
	if t.ticker == nil {
		return nil
	}
	return t.ticker.C
}

func (t *fixedTicker) CycleExecuted(executed bool) {}
