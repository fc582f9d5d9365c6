package rendertree

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Reload reports the outcome of a hot reload triggered by a file change.
type Reload struct {
	Path    string
	Removed bool
	Err     error
}

// Watcher hot-reloads a render tree directory into a Registry.
type Watcher struct {
	watcher  *fsnotify.Watcher
	registry *Registry
	dir      string
	logger   zerolog.Logger

	mu       sync.RWMutex
	onReload func(Reload)

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher starts watching dir. Changes are applied to reg as they
// arrive.
func NewWatcher(reg *Registry, dir string, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		registry: reg,
		dir:      dir,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// SetOnReload registers a callback run after each applied change.
func (w *Watcher) SetOnReload(fn func(Reload)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Str("dir", w.dir).Msg("render tree watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !isTreeFile(event.Name) {
		return
	}

	var r Reload
	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		r = Reload{Path: event.Name, Err: w.registry.LoadPath(event.Name)}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.registry.unloadPath(event.Name)
		r = Reload{Path: event.Name, Removed: true}
	default:
		return
	}

	if r.Err == nil {
		w.logger.Info().Str("path", r.Path).Bool("removed", r.Removed).Msg("render tree reloaded")
	}

	w.mu.RLock()
	fn := w.onReload
	w.mu.RUnlock()
	if fn != nil {
		fn(r)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
