package localstore

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch invokes fn whenever the blob under key is rewritten by someone else
// (another process, another storefront tab). The watcher observes the state
// directory rather than the file itself because atomic replacement swaps the
// inode on every Put.
//
// Watching stops when ctx is cancelled or the returned stop function runs.
func (s *Store) Watch(ctx context.Context, key string, fn func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Base(s.Path(key))
	done := make(chan struct{})

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				s.logger.Debug("blob changed on disk", zap.String("key", key))
				fn()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("blob watcher error", zap.String("key", key), zap.Error(err))
			}
		}
	}()

	var stopped bool
	return func() {
		if !stopped {
			stopped = true
			close(done)
		}
	}, nil
}
