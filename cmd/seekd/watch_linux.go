// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"time"

	fsnotify "gopkg.in/fsnotify.v1"
)

// watchFiles returns when one of the files is modified or ctx is done.
//
// Files that do not exist are ignored.
func watchFiles(ctx context.Context, files ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	mods := map[string]time.Time{}
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			continue
		}
		mods[f] = fi.ModTime()
		if err = watcher.Add(f); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err = <-watcher.Errors:
			return err
		case e := <-watcher.Events:
			mod0, ok := mods[e.Name]
			if !ok {
				continue
			}
			if fi, err := os.Stat(e.Name); err != nil || !fi.ModTime().Equal(mod0) {
				return err
			}
		}
	}
}
