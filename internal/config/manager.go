package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadHandler runs after a watched file changes. Returning an error keeps
// the previous state; the manager logs it and waits for the next change.
type ReloadHandler func() error

// Manager watches the config directory and triggers registered reload
// handlers when files change. Used to hot-reload routing.yaml without
// restarting the service.
type Manager struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu       sync.RWMutex
	handlers map[string]ReloadHandler

	// debounce collapses editor save bursts into one reload
	debounce   time.Duration
	lastReload map[string]time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewManager(configDir string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Manager{
		dir:        configDir,
		watcher:    watcher,
		logger:     logger,
		handlers:   make(map[string]ReloadHandler),
		debounce:   500 * time.Millisecond,
		lastReload: make(map[string]time.Time),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// RegisterHandler binds a handler to a filename (base name, e.g.
// "routing.yaml").
func (m *Manager) RegisterHandler(filename string, handler ReloadHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[filename] = handler
}

// Start begins watching. It returns once the watch is established; events are
// handled on a background goroutine until Stop or ctx cancellation.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.watcher.Add(m.dir); err != nil {
		return err
	}
	m.logger.Info("Config hot-reload watching", zap.String("dir", m.dir))

	go func() {
		defer close(m.doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case event, ok := <-m.watcher.Events:
				if !ok {
					return
				}
				m.handleEvent(event)
			case err, ok := <-m.watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("Config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (m *Manager) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	name := filepath.Base(event.Name)
	if !isConfigFile(name) {
		return
	}

	m.mu.Lock()
	handler, ok := m.handlers[name]
	if ok {
		if last, seen := m.lastReload[name]; seen && time.Since(last) < m.debounce {
			m.mu.Unlock()
			return
		}
		m.lastReload[name] = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := handler(); err != nil {
		m.logger.Error("Config reload failed, keeping previous state",
			zap.String("file", name),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("Config reloaded", zap.String("file", name))
}

// Stop ends watching and waits for the event loop to exit.
func (m *Manager) Stop() error {
	close(m.stopCh)
	err := m.watcher.Close()
	select {
	case <-m.doneCh:
	case <-time.After(2 * time.Second):
		m.logger.Warn("Timeout waiting for config watcher to stop")
	}
	return err
}

func isConfigFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
