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

package temporal

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// TimePoint is a discrete instant. Real instants lie in [0, MaxTime]; Init
// sorts before and Now after every real instant. Now doubles as the open
// upper bound of an interval that is still valid.
type TimePoint int64

const (
	Init    TimePoint = -1
	MaxTime TimePoint = 1<<61 - 2
	Now     TimePoint = 1<<61 - 1
)

func (t TimePoint) IsInit() bool {
	return t == Init
}

func (t TimePoint) IsNow() bool {
	return t == Now
}

// IsReal reports whether t is a real instant, i.e. not a sentinel and inside
// the representable range.
func (t TimePoint) IsReal() bool {
	return t >= 0 && t <= MaxTime
}

// Next returns the instant right after t. MaxTime.Next() is Now. Calling
// Next on a sentinel is a programming error.
func (t TimePoint) Next() TimePoint {
	if !t.IsReal() {
		panic(fmt.Sprintf("next() on sentinel or out-of-range time point %d", int64(t)))
	}
	return t + 1
}

// Pre returns the instant right before t. TimePoint(0).Pre() is Init.
func (t TimePoint) Pre() TimePoint {
	if !t.IsReal() {
		panic(fmt.Sprintf("pre() on sentinel or out-of-range time point %d", int64(t)))
	}
	return t - 1
}

func (t TimePoint) Compare(other TimePoint) int {
	switch {
	case t < other:
		return -1
	case t > other:
		return 1
	default:
		return 0
	}
}

func (t TimePoint) String() string {
	switch t {
	case Init:
		return "Init"
	case Now:
		return "Now"
	default:
		return strconv.FormatInt(int64(t), 10)
	}
}

func MinTime(a, b TimePoint) TimePoint {
	if a < b {
		return a
	}
	return b
}

func MaxOf(a, b TimePoint) TimePoint {
	if a > b {
		return a
	}
	return b
}

// TimeInterval is the closed interval [Start, End]. End may be Now.
type TimeInterval struct {
	Start TimePoint
	End   TimePoint
}

// NewTimeInterval validates and returns [start, end].
func NewTimeInterval(start, end TimePoint) (TimeInterval, error) {
	iv := TimeInterval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return TimeInterval{}, err
	}
	return iv, nil
}

func (iv TimeInterval) Validate() error {
	if !iv.Start.IsReal() {
		return errors.Wrapf(ErrInvalidArgument,
			"interval start %s is not a real time point", iv.Start)
	}
	if !iv.End.IsReal() && !iv.End.IsNow() {
		return errors.Wrapf(ErrInvalidArgument,
			"interval end %s is neither a real time point nor Now", iv.End)
	}
	if iv.End < iv.Start {
		return errors.Wrapf(ErrInvalidArgument,
			"interval end %s before start %s", iv.End, iv.Start)
	}
	return nil
}

func (iv TimeInterval) Contains(t TimePoint) bool {
	return iv.Start <= t && t <= iv.End
}

func (iv TimeInterval) Overlaps(other TimeInterval) bool {
	return iv.Start <= other.End && other.Start <= iv.End
}

// Intersect returns the overlap of both intervals, ok is false if they are
// disjoint.
func (iv TimeInterval) Intersect(other TimeInterval) (TimeInterval, bool) {
	out := TimeInterval{
		Start: MaxOf(iv.Start, other.Start),
		End:   MinTime(iv.End, other.End),
	}
	if out.End < out.Start {
		return TimeInterval{}, false
	}
	return out, true
}

func (iv TimeInterval) String() string {
	return fmt.Sprintf("[%s,%s]", iv.Start, iv.End)
}
