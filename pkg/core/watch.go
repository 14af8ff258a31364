package core

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/packline/revstore/pkg/model"
	storagestatus "github.com/packline/revstore/pkg/storage/status"
)

// WatchMinUnpacked reports watermark movements of the repository at
// osPath: fn is invoked with the new watermark every time another
// process replaces min-unpacked-rev. The watcher runs until ctx is
// canceled. It needs a real directory, so only OS-backed repositories
// can be watched.
func WatchMinUnpacked(ctx context.Context, osPath string, fn func(model.RevNum)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// watch the directory: the file is replaced by rename, not written
	// in place
	if err := watcher.Add(osPath); err != nil {
		_ = watcher.Close()
		return err
	}
	target := filepath.Join(osPath, model.MinUnpackedFile)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				data, err := ioutil.ReadFile(target)
				if err != nil {
					continue
				}
				wm, err := model.ParseRevNum(strings.TrimSpace(string(data)))
				if err != nil {
					continue
				}
				fn(wm)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// WatchMinUnpacked keeps the watermark hint of the handle in sync with
// packs run by other processes, so reads stop probing the loose side
// of shards that have been swept.
func (r *Repository) WatchMinUnpacked(ctx context.Context) error {
	if r.osPath == "" {
		return storagestatus.ErrNotSupported.WrapMessage("watching needs an OS-backed repository")
	}
	return WatchMinUnpacked(ctx, r.osPath, func(wm model.RevNum) {
		r.mu.Lock()
		r.minUnpacked = wm
		r.mu.Unlock()
		r.l.Debug("watermark moved", zap.Int64("min_unpacked", int64(wm)))
	})
}
