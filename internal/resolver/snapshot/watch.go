package snapshot

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a Store whenever its snapshot file changes. The parent
// directory is watched so editors that replace the file are followed.
type Watcher struct {
	path     string
	store    *Store
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Watch starts watching path on behalf of store
func Watch(ctx context.Context, path string, store *Store, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		store:    store,
		logger:   logger,
		watcher:  fw,
		debounce: 200 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.run(ctx)

	logger.Info("Watching snapshot file", zap.String("path", abs))
	return w, nil
}

// Close stops the watcher and waits for its goroutine
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	// a stopped timer with a drained channel
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Snapshot watcher error", zap.Error(err))

		case <-timer.C:
			w.reload()
		}
	}
}

// reload keeps the previous snapshot when the new file does not parse
func (w *Watcher) reload() {
	snap, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("Failed to reload snapshot, keeping previous", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.store.Replace(snap); err != nil {
		w.logger.Warn("Rejected reloaded snapshot", zap.String("path", w.path), zap.Error(err))
	}
}
