package logging

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const logDirCleanerInterval = time.Minute

// logDirCleaner periodically trims the oldest *.log files until the directory fits maxBytes.
type logDirCleaner struct {
	dir       string
	maxBytes  int64
	protected string
	cancel    context.CancelFunc
}

// startLogDirCleaner returns nil when the limit is disabled.
func startLogDirCleaner(logDir string, maxTotalSizeMB int, protectedPath string) *logDirCleaner {
	dir := strings.TrimSpace(logDir)
	if maxTotalSizeMB <= 0 || dir == "" {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &logDirCleaner{
		dir:       filepath.Clean(dir),
		maxBytes:  int64(maxTotalSizeMB) * 1024 * 1024,
		protected: strings.TrimSpace(protectedPath),
		cancel:    cancel,
	}
	go c.run(ctx)
	return c
}

func (c *logDirCleaner) stop() {
	if c == nil || c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
}

func (c *logDirCleaner) run(ctx context.Context) {
	ticker := time.NewTicker(logDirCleanerInterval)
	defer ticker.Stop()
	for {
		deleted, err := enforceLogDirSizeLimit(c.dir, c.maxBytes, c.protected)
		if err != nil {
			log.WithError(err).Warn("logging: failed to enforce log directory size limit")
		} else if deleted > 0 {
			log.Debugf("logging: removed %d old log file(s)", deleted)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type logFile struct {
	path    string
	size    int64
	modTime time.Time
}

func enforceLogDirSizeLimit(dir string, maxBytes int64, protectedPath string) (int, error) {
	if maxBytes <= 0 || dir == "" {
		return 0, nil
	}
	files, total, err := listLogFiles(filepath.Clean(dir))
	if err != nil || total <= maxBytes {
		return 0, err
	}

	slices.SortFunc(files, func(a, b logFile) int { return a.modTime.Compare(b.modTime) })

	protected := ""
	if protectedPath != "" {
		protected = filepath.Clean(protectedPath)
	}
	deleted := 0
	for _, f := range files {
		if total <= maxBytes {
			break
		}
		if f.path == protected {
			continue
		}
		if errRemove := os.Remove(f.path); errRemove != nil {
			log.WithError(errRemove).Warnf("logging: failed to remove old log file: %s", filepath.Base(f.path))
			continue
		}
		total -= f.size
		deleted++
	}
	return deleted, nil
}

func listLogFiles(dir string) ([]logFile, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	var (
		files []logFile
		total int64
	)
	for _, entry := range entries {
		name := strings.ToLower(entry.Name())
		if entry.IsDir() || !(strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".log.gz")) {
			continue
		}
		info, errInfo := entry.Info()
		if errInfo != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, logFile{path: filepath.Join(dir, entry.Name()), size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
	}
	return files, total, nil
}
