// Package watcher watches the config and credentials files and triggers hot reloads.
// It supports cross-platform fsnotify event handling.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	log "github.com/sirupsen/logrus"
)

// Watcher manages file watching for the configuration and credentials files.
type Watcher struct {
	configPath      string
	credentialsPath string

	mu                  sync.RWMutex
	config              *config.Config
	oldConfigYaml       []byte
	lastConfigHash      string
	lastCredentialsHash string

	reloadMu          sync.Mutex
	configReloadTimer *time.Timer

	reloadCallback      func(*config.Config)
	credentialsCallback func()
	watcher             *fsnotify.Watcher
}

const (
	configReloadDebounce = 150 * time.Millisecond
)

// NewWatcher creates a new file watcher instance. credentialsPath may be empty when the
// credentials do not live in a file.
func NewWatcher(configPath, credentialsPath string, reloadCallback func(*config.Config), credentialsCallback func()) (*Watcher, error) {
	fsw, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	w := &Watcher{
		configPath:          cleanPath(configPath),
		credentialsPath:     cleanPath(credentialsPath),
		reloadCallback:      reloadCallback,
		credentialsCallback: credentialsCallback,
		watcher:             fsw,
	}
	w.lastConfigHash, _ = fileHash(w.configPath)
	if w.credentialsPath != "" {
		w.lastCredentialsHash, _ = fileHash(w.credentialsPath)
	}
	return w, nil
}

// Start begins watching. The parent directories are watched rather than the files so that
// editors replacing a file through rename keep being observed.
func (w *Watcher) Start(ctx context.Context) error {
	dirs := []string{filepath.Dir(w.configPath)}
	if w.credentialsPath != "" && filepath.Dir(w.credentialsPath) != dirs[0] {
		dirs = append(dirs, filepath.Dir(w.credentialsPath))
	}
	for _, dir := range dirs {
		if errAdd := w.watcher.Add(dir); errAdd != nil {
			log.Errorf("failed to watch directory %s: %v", dir, errAdd)
			return errAdd
		}
		log.Debugf("watching directory: %s", dir)
	}
	go w.processEvents(ctx)
	return nil
}

// Stop stops the file watcher
func (w *Watcher) Stop() error {
	w.stopConfigReloadTimer()
	return w.watcher.Close()
}

// SetConfig updates the current configuration
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
	w.oldConfigYaml, _ = yaml.Marshal(cfg)
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

func cleanPath(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
