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

package diskio

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

func FileExists(file string) (bool, error) {
	_, err := os.Stat(file)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Fsync syncs a file or directory by path.
func Fsync(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Sync()
}

// Replace renames tmp to path and syncs the parent directory, so the rename
// survives a crash once Replace returns.
func Replace(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %q", tmp)
	}
	if err := Fsync(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "sync dir of %q", path)
	}
	return nil
}

// WriteFile writes data to a temporary file next to path, syncs it and
// moves it into place with Replace.
func WriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %q", tmp)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %q", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "sync %q", tmp)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %q", tmp)
	}
	return Replace(tmp, path)
}
