package config

import (
	"context"
	"path/filepath"
	"time"

	"quotra/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// debounce absorbs editor write bursts before a reload.
const debounce = 500 * time.Millisecond

// Watch reloads the configuration whenever path changes and hands the
// fresh Config to onChange. Reload failures are logged and the previous
// configuration stays in effect. Blocks until ctx ends.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file, which would
	// otherwise drop a file-level watch.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config watch error: %v", err)
		case <-reload:
			cfg, err := Load(abs)
			if err != nil {
				logger.Errorf("config reload failed, keeping previous: %v", err)
				continue
			}
			logger.Infof("configuration reloaded from %s", abs)
			onChange(cfg)
		}
	}
}
