// events.go implements fsnotify event handling for config and credentials file changes.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const watchedOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", errWatch)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&watchedOps == 0 {
		return
	}
	name := normalizePath(event.Name)
	switch name {
	case normalizePath(w.configPath):
		log.Debugf("config file event: %s %s", event.Op.String(), event.Name)
		w.scheduleConfigReload()
	case normalizePath(w.credentialsPath):
		if w.credentialsPath == "" {
			return
		}
		log.Debugf("credentials file event: %s %s", event.Op.String(), event.Name)
		w.reloadCredentialsIfChanged()
	}
}

func (w *Watcher) reloadCredentialsIfChanged() {
	newHash, err := fileHash(w.credentialsPath)
	if err != nil {
		log.Debugf("credentials file not readable yet: %v", err)
		return
	}
	w.mu.Lock()
	unchanged := newHash == w.lastCredentialsHash
	w.lastCredentialsHash = newHash
	w.mu.Unlock()
	if unchanged {
		log.Debugf("credentials file unchanged (hash match), skipping reload")
		return
	}
	log.Infof("credentials file changed: %s", filepath.Base(w.credentialsPath))
	if w.credentialsCallback != nil {
		w.credentialsCallback()
	}
}

func normalizePath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	if runtime.GOOS == "windows" {
		cleaned = strings.ToLower(cleaned)
	}
	return cleaned
}

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
