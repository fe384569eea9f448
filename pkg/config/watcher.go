package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/jupiter/pkg/core"
	"mercator-hq/jupiter/pkg/security/auth"
)

// Watcher reloads a config file into a core.Registry (and, if attached,
// an auth.Resolver) whenever the file changes on disk, driven by
// fsnotify events and applied through Load/Registry.Swap. Every
// matching event triggers a reload; events are not debounced.
type Watcher struct {
	path     string
	reg      *core.Registry
	resolver *auth.Resolver
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	done     chan struct{}
}

// NewWatcher opens an fsnotify watch on path's directory (editors
// replace the file rather than writing in place, which shows up as a
// rename+create, not a plain write) and begins applying reloads to reg.
// resolver may be nil, in which case principal changes are ignored.
func NewWatcher(path string, reg *core.Registry, resolver *auth.Resolver) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		reg:      reg,
		resolver: resolver,
		watcher:  fw,
		logger:   slog.Default().With("component", "config.watcher"),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	providers, rules, principals, defaultProvider, _, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous snapshot", "path", w.path, "error", err)
		return
	}
	w.reg.Swap(providers, rules, defaultProvider)
	if w.resolver != nil {
		syncPrincipals(w.resolver, principals)
	}
	w.logger.Info("config reloaded", "path", w.path)
}

// syncPrincipals replaces the resolver's principal set wholesale:
// removes keys no longer present in the file, adds/updates the rest.
func syncPrincipals(resolver *auth.Resolver, principals []*auth.Principal) {
	seen := make(map[string]bool, len(principals))
	for _, p := range principals {
		resolver.Add(p)
		seen[p.Key] = true
	}
	for _, existing := range resolver.List() {
		if !seen[existing.Key] {
			resolver.Remove(existing.Key)
		}
	}
}

// Close stops watching and releases the underlying inotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

