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
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	// IDSize is the encoded size of an EntityPropertyID.
	IDSize = 4 + 8
	// KeySize is the encoded size of an InternalKey: the id followed by the
	// packed (time, value type) trailer.
	KeySize = IDSize + 8

	typeBits = 3
	typeMask = 1<<typeBits - 1
)

// InternalKey is a point key: the start of a validity span of one
// EntityPropertyID which lasts until the next key of the same id or Now.
type InternalKey struct {
	ID   EntityPropertyID
	Time TimePoint
	Type ValueType
}

func NewInternalKey(id EntityPropertyID, t TimePoint, vt ValueType) InternalKey {
	return InternalKey{ID: id, Time: t, Type: vt}
}

// Compare orders keys by id, then time. The value type does not take part:
// two keys of the same id at the same instant are equal.
func (k InternalKey) Compare(other InternalKey) int {
	if c := k.ID.Compare(other.ID); c != 0 {
		return c
	}
	return k.Time.Compare(other.Time)
}

func (k InternalKey) Less(other InternalKey) bool {
	return k.Compare(other) < 0
}

func (k InternalKey) String() string {
	return fmt.Sprintf("%s@%s(%s)", k.ID, k.Time, k.Type)
}

// Encode returns the 20 byte binary form. Byte order of encoded keys equals
// the logical order of Compare.
func (k InternalKey) Encode() []byte {
	buf := make([]byte, KeySize)
	k.EncodeInto(buf)
	return buf
}

func (k InternalKey) EncodeInto(buf []byte) {
	if k.ID.PropertyID < 0 {
		panic(fmt.Sprintf("encode key with negative property id %d", k.ID.PropertyID))
	}
	if k.Time < 0 || k.Time > Now {
		panic(fmt.Sprintf("encode key with time %s", k.Time))
	}
	if !k.Type.Valid() {
		panic(fmt.Sprintf("encode key with value type %s", k.Type))
	}
	EncodeID(buf[:IDSize], k.ID)
	binary.BigEndian.PutUint64(buf[IDSize:KeySize], packTime(k.Time, uint64(k.Type)))
}

// EncodeFloorTarget encodes (id, t) with every type bit set, so the greatest
// encoded key that is <= the target is the logical floor of (id, t) whatever
// its value type.
func EncodeFloorTarget(id EntityPropertyID, t TimePoint) []byte {
	buf := make([]byte, KeySize)
	EncodeID(buf[:IDSize], id)
	binary.BigEndian.PutUint64(buf[IDSize:KeySize], packTime(t, typeMask))
	return buf
}

func EncodeID(buf []byte, id EntityPropertyID) {
	binary.BigEndian.PutUint32(buf[0:4], uint32(id.PropertyID))
	binary.BigEndian.PutUint64(buf[4:12], id.EntityID)
}

func DecodeID(buf []byte) EntityPropertyID {
	return EntityPropertyID{
		PropertyID: int32(binary.BigEndian.Uint32(buf[0:4])),
		EntityID:   binary.BigEndian.Uint64(buf[4:12]),
	}
}

func DecodeInternalKey(buf []byte) (InternalKey, error) {
	if len(buf) != KeySize {
		return InternalKey{}, errors.Wrapf(ErrCorruptKey,
			"expected %d bytes, got %d", KeySize, len(buf))
	}
	packed := binary.BigEndian.Uint64(buf[IDSize:KeySize])
	vt := ValueType(packed & typeMask)
	if !vt.Valid() {
		return InternalKey{}, errors.Wrapf(ErrCorruptKey, "value type %d", uint8(vt))
	}
	return InternalKey{
		ID:   DecodeID(buf[:IDSize]),
		Time: TimePoint(packed >> typeBits),
		Type: vt,
	}, nil
}

func packTime(t TimePoint, vt uint64) uint64 {
	return uint64(t)<<typeBits | vt
}
