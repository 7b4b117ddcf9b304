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

// IndexUpdater keeps an external index in sync with the files of a
// property. For every file written by a compaction the store calls Update
// once per record in key order, then Finish with the metadata of the new
// file, UpdateMeta after the metadata commit, and CleanUp last. CleanUp is
// called even if an earlier phase failed.
type IndexUpdater interface {
	Update(e Entry) error
	Finish(meta *FileMetaData) error
	UpdateMeta() error
	CleanUp() error
}

// IndexUpdaterFactory returns the updater for one file rewrite.
type IndexUpdaterFactory func(pid int32, tier Tier, number uint64) IndexUpdater

type noopIndexUpdater struct{}

func (noopIndexUpdater) Update(Entry) error         { return nil }
func (noopIndexUpdater) Finish(*FileMetaData) error { return nil }
func (noopIndexUpdater) UpdateMeta() error          { return nil }
func (noopIndexUpdater) CleanUp() error             { return nil }

func noopIndexUpdaters(int32, Tier, uint64) IndexUpdater {
	return noopIndexUpdater{}
}
