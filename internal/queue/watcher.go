package queue

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DirWatcher watches the brief input directory and emits one notification per
// brief that lands there. It is the local-mode queue: dropping a JSON file
// into the watched directory plays the role of an object-created event.
//
// fsnotify can surface a create as several events while the file is still
// being written, so events are debounced per path and the notification fires
// once the file has settled.
type DirWatcher struct {
	root   string // storage root the keys are relative to
	prefix string // key namespace of the watched directory
	log    *zap.Logger

	settle time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewDirWatcher watches root/prefix for brief documents. Keys emitted on the
// channel are relative to root.
func NewDirWatcher(root, prefix string, logger *zap.Logger) *DirWatcher {
	return &DirWatcher{
		root:    root,
		prefix:  strings.TrimSuffix(prefix, "/") + "/",
		log:     logger.Named("watcher"),
		settle:  200 * time.Millisecond,
		pending: make(map[string]time.Time),
	}
}

func (w *DirWatcher) Start(ctx context.Context) (<-chan Notification, error) {
	dir := filepath.Join(w.root, filepath.FromSlash(strings.TrimSuffix(w.prefix, "/")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	ch := make(chan Notification, 16)
	go w.loop(ctx, watcher, ch)
	w.log.Info("watching for campaign briefs", zap.String("dir", dir))
	return ch, nil
}

func (w *DirWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, ch chan<- Notification) {
	defer watcher.Close()
	defer close(ch)

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if strings.ToLower(filepath.Ext(ev.Name)) != ".json" {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-ticker.C:
			for _, path := range w.settled() {
				n := Notification{
					ID:  uuid.NewString(),
					Key: w.prefix + filepath.Base(path),
				}
				w.log.Info("brief detected",
					zap.String("key", n.Key),
					zap.String("message_id", n.ID))
				select {
				case ch <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// settled drains and returns paths whose last event is older than the settle
// window.
func (w *DirWatcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	cutoff := time.Now().Add(-w.settle)
	for path, last := range w.pending {
		if last.Before(cutoff) {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}
