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
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleManager(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("runs registered callbacks on every tick", func(t *testing.T) {
		callbacks := NewCycleCallbacks("test", logger, 2)
		var first, second atomic.Int32
		callbacks.Register("first", func(ShouldAbortCallback) bool {
			first.Add(1)
			return true
		})
		callbacks.Register("second", func(ShouldAbortCallback) bool {
			second.Add(1)
			return false
		})

		cm := New(NewFixedTicker(2*time.Millisecond), callbacks)
		cm.Start()
		assert.True(t, cm.Running())

		assert.Eventually(t, func() bool {
			return first.Load() >= 3 && second.Load() >= 3
		}, time.Second, time.Millisecond)

		require.Nil(t, cm.StopAndWait(context.Background()))
		assert.False(t, cm.Running())

		stoppedAt := first.Load()
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, stoppedAt, first.Load())
	})

	t.Run("unregistered callbacks are not run anymore", func(t *testing.T) {
		callbacks := NewCycleCallbacks("test", logger, 1)
		var count atomic.Int32
		unregister := callbacks.Register("counter", func(ShouldAbortCallback) bool {
			count.Add(1)
			return true
		})

		assert.True(t, callbacks.CycleCallback(func() bool { return false }))
		unregister()
		assert.False(t, callbacks.CycleCallback(func() bool { return false }))
		assert.Equal(t, int32(1), count.Load())
	})

	t.Run("panicking callback does not stop the others", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		callbacks := NewCycleCallbacks("test", logger, 1)
		callbacks.Register("panics", func(ShouldAbortCallback) bool { panic("boom") })
		callbacks.Register("works", func(ShouldAbortCallback) bool { return true })

		assert.True(t, callbacks.CycleCallback(func() bool { return false }))
		require.Len(t, hook.AllEntries(), 1)
		assert.Equal(t, "panics", hook.LastEntry().Data["callback_id"])
	})

	t.Run("stop interrupts a long running callback", func(t *testing.T) {
		callbacks := NewCycleCallbacks("test", logger, 1)
		started := make(chan struct{}, 1)
		callbacks.Register("long", func(shouldAbort ShouldAbortCallback) bool {
			select {
			case started <- struct{}{}:
			default:
			}
			for !shouldAbort() {
				time.Sleep(time.Millisecond)
			}
			return true
		})

		cm := New(NewFixedTicker(time.Millisecond), callbacks)
		cm.Start()
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.Nil(t, cm.StopAndWait(ctx))
	})

	t.Run("stopping a stopped manager is a no-op", func(t *testing.T) {
		cm := New(NewFixedTicker(0), NewCycleCallbacks("test", logger, 1))
		require.Nil(t, cm.StopAndWait(context.Background()))
		cm.Start()
		require.Nil(t, cm.StopAndWait(context.Background()))
		require.Nil(t, cm.StopAndWait(context.Background()))
	})
}
