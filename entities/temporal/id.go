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

// EntityPropertyID identifies one temporal value stream: one property of one
// entity. Ids order by property first, then entity.
type EntityPropertyID struct {
	EntityID   uint64
	PropertyID int32
}

func NewEntityPropertyID(entityID uint64, propertyID int32) EntityPropertyID {
	return EntityPropertyID{EntityID: entityID, PropertyID: propertyID}
}

func (id EntityPropertyID) Compare(other EntityPropertyID) int {
	if id.PropertyID != other.PropertyID {
		if id.PropertyID < other.PropertyID {
			return -1
		}
		return 1
	}
	switch {
	case id.EntityID < other.EntityID:
		return -1
	case id.EntityID > other.EntityID:
		return 1
	default:
		return 0
	}
}

func (id EntityPropertyID) Less(other EntityPropertyID) bool {
	return id.Compare(other) < 0
}

func (id EntityPropertyID) String() string {
	return fmt.Sprintf("%d/%d", id.PropertyID, id.EntityID)
}
