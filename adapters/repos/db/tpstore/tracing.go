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
	"github.com/weaviate/tpstore/entities/temporal"
)

type TraceKind string

const (
	TraceRoute          TraceKind = "route"
	TraceHandOff        TraceKind = "handoff"
	TraceBuffer2File    TraceKind = "buffer2file"
	TraceNewFile        TraceKind = "new_file"
	TracePromotion      TraceKind = "promotion"
	TraceMergeFailed    TraceKind = "merge_failed"
	TraceSeekCompaction TraceKind = "seek_compaction"
)

// TraceEvent describes one decision of the write path. Fields that do not
// apply to a kind are zero.
type TraceEvent struct {
	Kind     TraceKind
	RunID    string
	Property int32
	ID       temporal.EntityPropertyID
	Interval temporal.TimeInterval
	Case     string
	File     string
	Err      error
}

// TraceFunc receives trace events synchronously from the goroutine that
// produced them. It must not call back into the store.
type TraceFunc func(ev TraceEvent)

func (f TraceFunc) emit(ev TraceEvent) {
	if f != nil {
		f(ev)
	}
}
