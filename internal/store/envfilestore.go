package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ebooklister/ebooklister/internal/auth/etsy"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// EnvFileStore keeps the token pair as KEY=VALUE lines in a dotenv file. Every other line,
// including comments, blanks and lines that are not assignments, is preserved verbatim across
// saves and ignored by Load.
type EnvFileStore struct {
	path       string
	accessKey  string
	refreshKey string
	expiresKey string
	mu         sync.Mutex
}

// NewEnvFileStore returns a store writing <prefix>ACCESS_TOKEN, <prefix>REFRESH_TOKEN and
// <prefix>TOKEN_EXPIRES_AT to path.
func NewEnvFileStore(path, prefix string) *EnvFileStore {
	return &EnvFileStore{
		path:       path,
		accessKey:  prefix + "ACCESS_TOKEN",
		refreshKey: prefix + "REFRESH_TOKEN",
		expiresKey: prefix + "TOKEN_EXPIRES_AT",
	}
}

// Location returns the file path.
func (s *EnvFileStore) Location() string { return s.path }

// Load reads the pair back. A missing file or access token yields ErrNoCredentials. Only the
// credential lines are parsed; when a key repeats, the last line wins.
func (s *EnvFileStore) Load(_ context.Context) (etsy.TokenPair, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return etsy.TokenPair{}, ErrNoCredentials
		}
		return etsy.TokenPair{}, fmt.Errorf("env store: read %s: %w", s.path, err)
	}

	values := make(map[string]string, 3)
	for _, line := range splitLines(string(data)) {
		if !s.isCredentialLine(line) {
			continue
		}
		parsed, errParse := godotenv.Unmarshal(line)
		if errParse != nil {
			return etsy.TokenPair{}, fmt.Errorf("env store: parse %s: %w", s.path, errParse)
		}
		maps.Copy(values, parsed)
	}

	pair := etsy.TokenPair{
		AccessToken:  values[s.accessKey],
		RefreshToken: values[s.refreshKey],
	}
	if pair.AccessToken == "" {
		return etsy.TokenPair{}, ErrNoCredentials
	}
	if raw := values[s.expiresKey]; raw != "" {
		expires, errTime := time.Parse(time.RFC3339, raw)
		if errTime != nil {
			log.Warnf("env store: ignoring %s=%q: %v", s.expiresKey, raw, errTime)
		} else {
			pair.ExpiresAt = expires
		}
	}
	return pair, nil
}

// Save replaces the credential lines and atomically rewrites the file.
func (s *EnvFileStore) Save(_ context.Context, pair etsy.TokenPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	access, err := formatEnvValue(s.accessKey, pair.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := formatEnvValue(s.refreshKey, pair.RefreshToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, mode, err := s.readLocked()
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, line := range splitLines(existing) {
		if s.isCredentialLine(line) {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%s=%s\n", s.accessKey, access)
	fmt.Fprintf(&b, "%s=%s\n", s.refreshKey, refresh)
	if !pair.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "%s=%s\n", s.expiresKey, pair.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if err = writeFileAtomic(s.path, []byte(b.String()), mode); err != nil {
		return fmt.Errorf("env store: %w", err)
	}
	log.Debugf("env store: credentials written to %s", s.path)
	return nil
}

// formatEnvValue single-quotes values that dotenv would otherwise expand, unescape or cut at a
// comment. Single-quoted values are read back literally.
func formatEnvValue(key, value string) (string, error) {
	if strings.ContainsAny(value, "'\n\r") || strings.HasSuffix(value, `\`) {
		return "", fmt.Errorf("%w: %s cannot be written as a dotenv value", ErrUnstorableValue, key)
	}
	if value == "" || !strings.ContainsAny(value, "$#\"\\` \t") {
		return value, nil
	}
	return "'" + value + "'", nil
}

func (s *EnvFileStore) readLocked() (string, fs.FileMode, error) {
	mode := fs.FileMode(0o600)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", mode, nil
		}
		return "", mode, fmt.Errorf("env store: read %s: %w", s.path, err)
	}
	if info, errStat := os.Stat(s.path); errStat == nil {
		mode = info.Mode().Perm()
	}
	return string(data), mode, nil
}

func (s *EnvFileStore) isCredentialLine(line string) bool {
	key, _, found := strings.Cut(line, "=")
	if !found {
		return false
	}
	key = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key), "export "))
	return key == s.accessKey || key == s.refreshKey || key == s.expiresKey
}

// splitLines drops only the terminator of the last line so a rewrite does not grow the file.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// writeFileAtomic writes data to a temp file beside path, syncs it and renames it over path.
func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true
	return nil
}
