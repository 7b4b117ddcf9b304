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

import "github.com/pkg/errors"

var (
	// ErrInvalidArgument is returned for malformed time points, intervals,
	// property ids or value types passed in by a caller.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStoreClosed is returned by every operation after shutdown.
	ErrStoreClosed = errors.New("store is shut down")

	// ErrValueTypeMismatch is returned when a value does not fit the
	// declared kind of its property.
	ErrValueTypeMismatch = errors.New("value does not match declared property kind")

	// ErrCorruptKey is returned when decoding an encoded InternalKey fails.
	ErrCorruptKey = errors.New("corrupt internal key")
)
