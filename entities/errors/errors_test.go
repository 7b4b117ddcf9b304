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

package errors

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoWrapper(t *testing.T) {
	t.Setenv("DISABLE_RECOVERY_ON_PANIC", "")

	t.Run("runs the function", func(t *testing.T) {
		logger, _ := test.NewNullLogger()
		done := make(chan struct{})
		GoWrapper(func() { close(done) }, logger)

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("function was not run")
		}
	})

	t.Run("recovers and logs a panic", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		GoWrapper(func() { panic("boom") }, logger)

		assert.Eventually(t, func() bool {
			return len(hook.AllEntries()) == 1
		}, time.Second, 5*time.Millisecond)
		assert.Contains(t, hook.LastEntry().Message, "boom")
	})
}

func TestErrorGroupWrapper(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("returns the first error", func(t *testing.T) {
		eg := NewErrorGroupWrapper(logger, 2)
		expected := errors.New("failed")
		eg.Go(func() error { return nil })
		eg.Go(func() error { return expected })

		assert.Equal(t, expected, eg.Wait())
	})

	t.Run("turns a panic into an error", func(t *testing.T) {
		eg := NewErrorGroupWrapper(logger, 0)
		eg.Go(func() error { panic("boom") }, "some-var")

		err := eg.Wait()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("runs every function", func(t *testing.T) {
		eg := NewErrorGroupWrapper(logger, 3)
		var count atomic.Int32
		for i := 0; i < 10; i++ {
			eg.Go(func() error {
				count.Add(1)
				return nil
			})
		}

		require.Nil(t, eg.Wait())
		assert.Equal(t, int32(10), count.Load())
	})
}
