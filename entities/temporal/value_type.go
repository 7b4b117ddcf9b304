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

import "fmt"

// ValueType classifies the entry that starts at an InternalKey.
type ValueType uint8

const (
	// Unknown marks the start of a gap: nothing is known from this layer on.
	Unknown ValueType = iota
	// Value carries bytes.
	Value
	// Invalid states explicitly that there is no value.
	Invalid
)

// IsKnown is true for Value and Invalid.
func (vt ValueType) IsKnown() bool {
	return vt == Value || vt == Invalid
}

func (vt ValueType) Valid() bool {
	return vt <= Invalid
}

func (vt ValueType) String() string {
	switch vt {
	case Unknown:
		return "unknown"
	case Value:
		return "value"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("ValueType(%d)", uint8(vt))
	}
}
