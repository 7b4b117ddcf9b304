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

	"github.com/pkg/errors"
)

// PropertyKind is the declared value kind of a property. Values of fixed
// width kinds are checked on write, all other kinds accept any bytes.
type PropertyKind uint8

const (
	KindBytes PropertyKind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
)

func (k PropertyKind) width() int {
	switch k {
	case KindInt32, KindFloat32:
		return 4
	case KindInt64, KindFloat64:
		return 8
	default:
		return -1
	}
}

// Check validates an entry of the given type against the kind. Invalid
// entries never carry bytes.
func (k PropertyKind) Check(vt ValueType, value []byte) error {
	if vt == Invalid {
		if len(value) != 0 {
			return errors.Wrap(ErrValueTypeMismatch, "invalid entry must not carry a value")
		}
		return nil
	}
	if w := k.width(); w > 0 && len(value) != w {
		return errors.Wrapf(ErrValueTypeMismatch, "%s expects %d bytes, got %d",
			k, w, len(value))
	}
	return nil
}

func (k PropertyKind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("PropertyKind(%d)", uint8(k))
	}
}

// ParsePropertyKind is the inverse of String.
func ParsePropertyKind(s string) (PropertyKind, error) {
	for k := KindBytes; k <= KindString; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown property kind %q", s)
}
