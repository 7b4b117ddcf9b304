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

	"github.com/pkg/errors"
)

var NotFound = errors.Errorf("not found")

// DiskTree reads a tree written by MarshalSortedNodes straight from its
// serialized form, typically a slice of a memory-mapped table.
type DiskTree struct {
	data []byte
}

type dtNode struct {
	key        []byte
	startPos   uint64
	endPos     uint64
	leftChild  int64
	rightChild int64
}

func NewDiskTree(data []byte) *DiskTree {
	return &DiskTree{
		data: data,
	}
}

// Floor returns the node with the greatest key <= key.
func (t *DiskTree) Floor(key []byte) (Node, error) {
	if len(t.data) == 0 {
		return Node{}, NotFound
	}

	var (
		best  dtNode
		found bool
	)

	offset := int64(0)
	for offset >= 0 {
		node, err := t.readNode(offset)
		if err != nil {
			return Node{}, err
		}

		switch c := bytes.Compare(key, node.key); {
		case c == 0:
			return node.toNode(), nil
		case c < 0:
			offset = node.leftChild
		default:
			best, found = node, true
			offset = node.rightChild
		}
	}

	if !found {
		return Node{}, NotFound
	}
	return best.toNode(), nil
}

func (t *DiskTree) Size() int {
	return len(t.data)
}

func (t *DiskTree) readNode(offset int64) (dtNode, error) {
	if offset < 0 || offset+4 > int64(len(t.data)) {
		return dtNode{}, errors.Errorf("index node offset %d out of range", offset)
	}

	keyLen := int64(binary.LittleEndian.Uint32(t.data[offset : offset+4]))
	pos := offset + 4
	if pos+keyLen+32 > int64(len(t.data)) {
		return dtNode{}, errors.Errorf("index node at %d truncated", offset)
	}

	out := dtNode{key: t.data[pos : pos+keyLen]}
	pos += keyLen
	out.startPos = binary.LittleEndian.Uint64(t.data[pos : pos+8])
	out.endPos = binary.LittleEndian.Uint64(t.data[pos+8 : pos+16])
	out.leftChild = int64(binary.LittleEndian.Uint64(t.data[pos+16 : pos+24]))
	out.rightChild = int64(binary.LittleEndian.Uint64(t.data[pos+24 : pos+32]))

	return out, nil
}

func (n dtNode) toNode() Node {
	return Node{
		Key:   n.key,
		Start: n.startPos,
		End:   n.endPos,
	}
}
