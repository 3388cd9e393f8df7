package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"conductor/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads agent definitions when their YAML files change.
// Rapid saves are debounced: an event is processed only after the file has
// been quiet for the debounce window.
type Watcher struct {
	defs    *Definitions
	watcher *fsnotify.Watcher

	mu          sync.Mutex
	debounceMap map[string]time.Time
	debounceDur time.Duration
	running     bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a watcher over the definitions registry's directory.
func NewWatcher(defs *Definitions) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		defs:        defs,
		watcher:     fsw,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Idempotent errors: starting twice fails.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.defs.dir); err != nil {
		// The event loop never launched; undo the running mark so a later
		// Stop returns instead of blocking on doneCh.
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		if cerr := w.watcher.Close(); cerr != nil {
			logging.AgentWarn("Error closing definitions watcher: %v", cerr)
		}
		return fmt.Errorf("failed to watch %s: %w", w.defs.dir, err)
	}

	logging.Agent("Watching %s for definition changes", w.defs.dir)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.AgentWarn("Error closing definitions watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.AgentWarn("Definitions watcher error: %v", err)

		case <-ticker.C:
			w.processSettled()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isYAML(event.Name) {
		return
	}

	switch {
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		w.defs.remove(event.Name)
	case event.Op&fsnotify.Create != 0, event.Op&fsnotify.Write != 0:
		w.mu.Lock()
		w.debounceMap[event.Name] = time.Now()
		w.mu.Unlock()
	}
}

// processSettled reloads files whose last event is older than the debounce
// window.
func (w *Watcher) processSettled() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range settled {
		if err := w.defs.loadFile(path); err != nil {
			logging.AgentWarn("Reload of %s failed: %v", path, err)
			continue
		}
		logging.Agent("Reloaded definition from %s", path)
	}
}
