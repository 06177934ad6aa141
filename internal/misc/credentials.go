package misc

import (
	"fmt"
	"path/filepath"

	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
)

// LogSavingCredentials tells the operator where tokens are being persisted.
func LogSavingCredentials(location string) {
	if location == "" {
		return
	}
	if filepath.IsAbs(location) || filepath.Base(location) != location {
		location = filepath.Clean(location)
	}
	fmt.Printf("Saving credentials to %s\n", location)
}

// CopyToClipboard places text on the system clipboard, returning false when no clipboard is available.
func CopyToClipboard(text string) bool {
	if clipboard.Unsupported {
		return false
	}
	if err := clipboard.WriteAll(text); err != nil {
		log.Debugf("clipboard write failed: %v", err)
		return false
	}
	return true
}
