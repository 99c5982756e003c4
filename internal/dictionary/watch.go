package dictionary

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch reloads cache whenever the file at path changes, until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// are still seen. A failed reload keeps the previous index.
func Watch(ctx context.Context, path string, cache *Cache) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer fw.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					timer.Reset(watchDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if _, err := cache.Load(ctx, true); err != nil {
					cache.logger.Error("dictionary reload failed", "path", abs, "error", err)
					continue
				}
				cache.logger.Info("dictionary reloaded from file", "path", abs)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				cache.logger.Warn("dictionary watcher error", "error", err)
			}
		}
	}()
	return nil
}
