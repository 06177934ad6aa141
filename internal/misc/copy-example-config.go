package misc

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// CopyConfigTemplate writes src to dst when dst does not exist yet. It reports whether a copy happened.
func CopyConfigTemplate(src, dst string) (bool, error) {
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer func() {
		if errClose := in.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close config template")
		}
	}()

	if dir := filepath.Dir(dst); dir != "." {
		if err = os.MkdirAll(dir, 0o700); err != nil {
			return false, err
		}
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return false, err
	}
	defer func() {
		if errClose := out.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close config file")
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return false, err
	}
	return true, out.Sync()
}
