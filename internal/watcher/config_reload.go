// config_reload.go implements debounced configuration hot reload.
package watcher

import (
	"os"
	"time"

	"github.com/ebooklister/ebooklister/internal/config"
	"github.com/ebooklister/ebooklister/internal/util"
	"gopkg.in/yaml.v3"

	log "github.com/sirupsen/logrus"
)

func (w *Watcher) stopConfigReloadTimer() {
	w.reloadMu.Lock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
		w.configReloadTimer = nil
	}
	w.reloadMu.Unlock()
}

func (w *Watcher) scheduleConfigReload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
	}
	w.configReloadTimer = time.AfterFunc(configReloadDebounce, func() {
		w.reloadMu.Lock()
		w.configReloadTimer = nil
		w.reloadMu.Unlock()
		w.reloadConfigIfChanged()
	})
}

func (w *Watcher) reloadConfigIfChanged() {
	data, err := os.ReadFile(w.configPath)
	if err != nil {
		log.Errorf("failed to read config file for hash check: %v", err)
		return
	}
	if len(data) == 0 {
		log.Debugf("ignoring empty config file write event")
		return
	}
	newHash, _ := fileHash(w.configPath)

	w.mu.RLock()
	currentHash := w.lastConfigHash
	w.mu.RUnlock()

	if currentHash != "" && currentHash == newHash {
		log.Debugf("config file content unchanged (hash match), skipping reload")
		return
	}
	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reloadConfig() {
		w.mu.Lock()
		w.lastConfigHash = newHash
		w.mu.Unlock()
	}
}

func (w *Watcher) reloadConfig() bool {
	log.Debugf("starting config reload from: %s", w.configPath)

	newConfig, errLoadConfig := config.LoadConfig(w.configPath)
	if errLoadConfig != nil {
		log.Errorf("failed to reload config: %v", errLoadConfig)
		return false
	}

	w.mu.Lock()
	var oldConfig *config.Config
	if len(w.oldConfigYaml) > 0 {
		_ = yaml.Unmarshal(w.oldConfigYaml, &oldConfig)
	}
	w.oldConfigYaml, _ = yaml.Marshal(newConfig)
	w.config = newConfig
	w.mu.Unlock()

	util.SetLogLevel(newConfig)
	if oldConfig != nil {
		details := BuildConfigChangeDetails(oldConfig, newConfig)
		if len(details) > 0 {
			log.Debugf("config changes detected:")
			for _, d := range details {
				log.Debugf("  %s", d)
			}
		} else {
			log.Debugf("no material config field changes detected")
		}
	}

	if w.reloadCallback != nil {
		w.reloadCallback(newConfig)
	}
	log.Info("config successfully reloaded")
	return true
}
