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

package segmentindex

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/bits"

	"github.com/pkg/errors"
)

// Node points from a key to the byte range [Start, End) of its record.
type Node struct {
	Key   []byte
	Start uint64
	End   uint64
}

// nodeOverhead is keyLen(4) + start(8) + end(8) + left(8) + right(8)
const nodeOverhead = 36

// MarshalSortedNodes writes nodes, which must already be sorted by key, as a
// balanced binary search tree in breadth-first order. Every serialized node
// is
//
//	keyLen uint32 | key | start uint64 | end uint64 | left int64 | right int64
//
// where left and right are byte offsets of the children relative to the
// start of the tree, or -1.
func MarshalSortedNodes(w io.Writer, nodes []Node) (int64, error) {
	n := len(nodes)
	if n == 0 {
		return 0, nil
	}

	for i := 1; i < n; i++ {
		if bytes.Compare(nodes[i-1].Key, nodes[i].Key) >= 0 {
			return 0, errors.Errorf("index keys not strictly increasing at position %d", i)
		}
	}

	capacity := balancedTreeCapacity(n)

	// -1 marks an empty position
	bfsToSorted := make([]int32, capacity)
	for i := range bfsToSorted {
		bfsToSorted[i] = -1
	}
	fillBFS(bfsToSorted, 0, 0, n-1)

	offsets := make([]int64, capacity)
	var current int64
	for i := 0; i < capacity; i++ {
		offsets[i] = current
		if si := bfsToSorted[i]; si >= 0 {
			if len(nodes[si].Key) > math.MaxUint32 {
				return 0, errors.Errorf("max key size is %d", math.MaxUint32)
			}
			current += int64(nodeOverhead + len(nodes[si].Key))
		}
	}

	buf := make([]byte, nodeOverhead)
	for i := 0; i < capacity; i++ {
		si := bfsToSorted[i]
		if si < 0 {
			continue
		}

		node := nodes[si]
		left, right := int64(-1), int64(-1)
		if pos := 2*i + 1; pos < capacity && bfsToSorted[pos] >= 0 {
			left = offsets[pos]
		}
		if pos := 2*i + 2; pos < capacity && bfsToSorted[pos] >= 0 {
			right = offsets[pos]
		}

		binary.LittleEndian.PutUint32(buf[0:4], uint32(len(node.Key)))
		binary.LittleEndian.PutUint64(buf[4:12], node.Start)
		binary.LittleEndian.PutUint64(buf[12:20], node.End)
		binary.LittleEndian.PutUint64(buf[20:28], uint64(left))
		binary.LittleEndian.PutUint64(buf[28:36], uint64(right))

		if _, err := w.Write(buf[:4]); err != nil {
			return 0, err
		}
		if _, err := w.Write(node.Key); err != nil {
			return 0, err
		}
		if _, err := w.Write(buf[4:36]); err != nil {
			return 0, err
		}
	}

	return current, nil
}

// smallest power of 2 > n, i.e. 2^ceil(log2(n+1))
func balancedTreeCapacity(n int) int {
	if n <= 0 {
		return 0
	}
	return 1 << bits.Len(uint(n))
}

func fillBFS(bfsToSorted []int32, targetPos, leftBound, rightBound int) {
	if leftBound > rightBound || targetPos >= len(bfsToSorted) {
		return
	}
	mid := (leftBound + rightBound) / 2
	bfsToSorted[targetPos] = int32(mid)
	fillBFS(bfsToSorted, 2*targetPos+1, leftBound, mid-1)
	fillBFS(bfsToSorted, 2*targetPos+2, mid+1, rightBound)
}
