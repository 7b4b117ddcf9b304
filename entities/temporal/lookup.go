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

// LookupState is the outcome of resolving one id at one instant in a single
// storage tier.
type LookupState uint8

const (
	// LookupUnknown means the tier has nothing known at that instant and the
	// next older tier must be consulted.
	LookupUnknown LookupState = iota
	LookupInvalid
	LookupKnown
)

// Lookup is the tri-state result of a point lookup.
type Lookup struct {
	State LookupState
	Value []byte
}

func Known(value []byte) Lookup {
	return Lookup{State: LookupKnown, Value: value}
}

func InvalidLookup() Lookup {
	return Lookup{State: LookupInvalid}
}

func UnknownLookup() Lookup {
	return Lookup{State: LookupUnknown}
}

// LookupFromType builds the lookup for an entry of the given type.
func LookupFromType(vt ValueType, value []byte) Lookup {
	switch vt {
	case Value:
		return Known(value)
	case Invalid:
		return InvalidLookup()
	default:
		return UnknownLookup()
	}
}

// Resolved is true when no older tier needs to be consulted.
func (l Lookup) Resolved() bool {
	return l.State != LookupUnknown
}

// Bytes returns the value for a known lookup and nil otherwise.
func (l Lookup) Bytes() []byte {
	if l.State != LookupKnown {
		return nil
	}
	return l.Value
}
