package core

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches AGENTCORE_CONFIG_DIR's overlay files and invokes a
// callback with the reparsed AgentsConfig whenever base.yaml or <env>.yaml
// changes, so retry tuning can be adjusted without a restart.
type ConfigWatcher struct {
	dir      string
	env      string
	logger   Logger
	fsw      *fsnotify.Watcher
	debounce time.Duration
	dropped  atomic.Int64
}

// NewConfigWatcher creates a watcher over dir (the value of
// AGENTCORE_CONFIG_DIR). Returns nil, nil if dir is empty: hot-reload is
// opt-in and requires an overlay directory to already be configured.
func NewConfigWatcher(dir, env string, logger Logger) (*ConfigWatcher, error) {
	if dir == "" {
		return nil, nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, NewFrameworkError("config.Watch", "ValidationError", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, NewFrameworkError("config.Watch", "ValidationError", err)
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if env == "" {
		env = "dev"
	}
	return &ConfigWatcher{dir: dir, env: env, logger: logger, fsw: fsw, debounce: 200 * time.Millisecond}, nil
}

// Close stops the underlying filesystem watch.
func (w *ConfigWatcher) Close() error {
	return w.fsw.Close()
}

// DroppedEvents reports how many reload attempts failed to parse and were
// skipped, so a caller can alert on a persistently broken overlay file.
func (w *ConfigWatcher) DroppedEvents() int64 {
	return w.dropped.Load()
}

// Watch blocks (run it in a goroutine) processing filesystem events until
// stop is closed, calling onReload with the merged AgentsConfig each time
// base.yaml or <env>.yaml changes on disk. Events are debounced so a save
// that fires multiple fs events only triggers one reload.
func (w *ConfigWatcher) Watch(stop <-chan struct{}, onReload func(AgentsConfig)) {
	base := filepath.Join(w.dir, "base.yaml")
	overlay := filepath.Join(w.dir, w.env+".yaml")

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != base && event.Name != overlay {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", map[string]interface{}{"error": err.Error()})

		case <-timer.C:
			agents, err := w.reloadAgents()
			if err != nil {
				w.dropped.Add(1)
				w.logger.Warn("config reload failed, keeping previous settings", map[string]interface{}{"error": err.Error()})
				continue
			}
			w.logger.Info("retry policy overlay reloaded", map[string]interface{}{"dir": w.dir})
			onReload(agents)
		}
	}
}

func (w *ConfigWatcher) reloadAgents() (AgentsConfig, error) {
	cfg := DefaultConfig()
	if err := applyOverlay(cfg, w.dir); err != nil {
		return AgentsConfig{}, err
	}
	return cfg.Agents, nil
}
