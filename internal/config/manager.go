package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager provides hot-reloadable configuration. The active Config is
// held behind an atomic pointer so readers never block; file change
// events are debounced before triggering a reload.
type Manager struct {
	path    string
	current atomic.Pointer[Config]
	logger  *slog.Logger

	mu          sync.Mutex
	onChange    []func(*Config)
	watcher     *fsnotify.Watcher
	done        chan struct{}
	closeOnce   sync.Once
	checksum    string
	loadedAt    time.Time
	reloadCount int64
}

// Status describes the manager's current load state.
type Status struct {
	Path        string
	Checksum    string
	LoadedAt    time.Time
	ReloadCount int64
}

// NewManager loads the configuration from path and returns a manager
// ready to watch it for changes.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := m.load(); err != nil {
		return nil, err
	}

	return m, nil
}

// Current returns the active configuration. The returned pointer must
// be treated as read-only.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// OnChange registers a callback invoked after each successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Reload re-reads the configuration file. A file that fails to parse
// or validate leaves the active configuration untouched.
func (m *Manager) Reload() error {
	return m.load()
}

// Status reports the path, content checksum, and reload history.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Path:        m.path,
		Checksum:    m.checksum,
		LoadedAt:    m.loadedAt,
		ReloadCount: m.reloadCount,
	}
}

func (m *Manager) load() error {
	cfg, err := LoadFromFile(m.path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	sum := sha256.Sum256(data)

	m.current.Store(cfg)

	m.mu.Lock()
	m.checksum = hex.EncodeToString(sum[:])
	m.loadedAt = time.Now()
	m.reloadCount++
	callbacks := make([]func(*Config), len(m.onChange))
	copy(callbacks, m.onChange)
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Editors
// often replace files via rename, so the parent directory is watched
// and events are filtered by name.
func (m *Manager) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	go m.watchLoop(watcher)

	m.logger.Info("watching config file", "path", m.path)
	return nil
}

func (m *Manager) watchLoop(watcher *fsnotify.Watcher) {
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	target := filepath.Clean(m.path)

	for {
		select {
		case <-m.done:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := m.load(); err != nil {
					m.logger.Error("config reload failed, keeping previous config",
						"path", m.path, "error", err)
					return
				}
				m.logger.Info("config reloaded", "path", m.path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", "error", err)
		}
	}
}

// Close stops watching and releases resources.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		w := m.watcher
		m.mu.Unlock()
		if w != nil {
			err = w.Close()
		}
	})
	return err
}
