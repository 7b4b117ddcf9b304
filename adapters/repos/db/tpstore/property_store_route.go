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

	"github.com/pkg/errors"

	"github.com/weaviate/tpstore/entities/temporal"
)

// routeCase is the relation of a written interval to the two watermarks of
// a property. S is the end of stable coverage and U the end of unstable
// coverage, U == S without unstable files. The zones are [0,S], [S+1,U] and
// [U+1,Now].
type routeCase int

const (
	// the property has no files yet
	caseNoBoundary routeCase = iota
	caseStable
	caseStableUnstable
	// spans both watermarks. Without unstable files the unstable fragment
	// is empty.
	caseStableUnstableResidual
	caseUnstable
	caseUnstableResidual
	caseResidual
)

func (c routeCase) String() string {
	switch c {
	case caseNoBoundary:
		return "no_boundary"
	case caseStable:
		return "stable"
	case caseStableUnstable:
		return "stable_unstable"
	case caseStableUnstableResidual:
		return "stable_unstable_residual"
	case caseUnstable:
		return "unstable"
	case caseUnstableResidual:
		return "unstable_residual"
	case caseResidual:
		return "residual"
	default:
		return fmt.Sprintf("routeCase(%d)", int(c))
	}
}

func classify(iv temporal.TimeInterval, stMax, unMax temporal.TimePoint, hasFiles bool) routeCase {
	if !hasFiles {
		return caseNoBoundary
	}

	startsStable := iv.Start <= stMax
	startsUnstable := !startsStable && iv.Start <= unMax
	switch {
	case startsStable && iv.End <= stMax:
		return caseStable
	case startsStable && iv.End <= unMax:
		return caseStableUnstable
	case startsStable:
		return caseStableUnstableResidual
	case startsUnstable && iv.End <= unMax:
		return caseUnstable
	case startsUnstable:
		return caseUnstableResidual
	case iv.Start > unMax:
		return caseResidual
	}
	panic(errors.Errorf("interval %s matches no route case for watermarks %s/%s",
		iv, stMax, unMax))
}

// fragments is the split of one interval at the watermarks. A nil fragment
// is empty.
type fragments struct {
	routeCase routeCase
	stable    *temporal.TimeInterval
	unstable  *temporal.TimeInterval
	residual  *temporal.TimeInterval
}

// span returns [start,end], nil if it is empty. Coverage that reaches
// MaxTime leaves nothing for a fragment starting after it, Now is only ever
// an end.
func span(start, end temporal.TimePoint) *temporal.TimeInterval {
	if end < start || start > temporal.MaxTime {
		return nil
	}
	return &temporal.TimeInterval{Start: start, End: end}
}

// splitInterval splits iv so that every fragment lies inside exactly one
// zone. The fragments are disjoint and their union is iv.
func splitInterval(iv temporal.TimeInterval, meta *PropertyMetaData) fragments {
	stMax, unMax := meta.StableMaxTime(), meta.UnstableMaxTime()
	c := classify(iv, stMax, unMax, !meta.IsEmpty())
	out := fragments{routeCase: c}

	switch c {
	case caseNoBoundary, caseResidual:
		out.residual = span(iv.Start, iv.End)
	case caseStable:
		out.stable = span(iv.Start, iv.End)
	case caseStableUnstable:
		out.stable = span(iv.Start, stMax)
		out.unstable = span(stMax+1, iv.End)
	case caseStableUnstableResidual:
		out.stable = span(iv.Start, stMax)
		out.unstable = span(stMax+1, unMax)
		out.residual = span(unMax+1, iv.End)
	case caseUnstable:
		out.unstable = span(iv.Start, iv.End)
	case caseUnstableResidual:
		out.unstable = span(iv.Start, unMax)
		out.residual = span(unMax+1, iv.End)
	default:
		panic(errors.Errorf("unhandled route case %s", c))
	}
	return out
}

// filePiece is the part of a fragment owned by one file.
type filePiece struct {
	file     *FileMetaData
	interval temporal.TimeInterval
}

// splitByFile splits a fragment of a tier across the files whose ranges
// it touches. The files of a tier cover their zone without gaps.
func splitByFile(files []*FileMetaData, frag temporal.TimeInterval) []filePiece {
	var out []filePiece
	for _, f := range overlapping(files, frag) {
		piece, ok := frag.Intersect(f.Range())
		if !ok {
			continue
		}
		out = append(out, filePiece{file: f, interval: piece})
	}
	return out
}
