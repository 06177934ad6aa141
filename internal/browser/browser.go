// Package browser opens the marketplace authorization page in the user's default browser.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// OpenURL opens url with open-golang and falls back to a platform command when that fails.
func OpenURL(url string) error {
	err := open.Run(url)
	if err == nil {
		return nil
	}
	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)

	name, args, errCmd := platformCommand(url)
	if errCmd != nil {
		return errCmd
	}
	cmd := exec.Command(name, args...)
	log.Debugf("Running command: %s %v", cmd.Path, args)
	if err = cmd.Start(); err != nil {
		return fmt.Errorf("failed to start browser command: %w", err)
	}
	return nil
}

// IsAvailable reports whether a command for opening a browser exists on this system.
func IsAvailable() bool {
	_, _, err := platformCommand("")
	return err == nil
}

func platformCommand(url string) (string, []string, error) {
	switch runtime.GOOS {
	case "darwin":
		return lookup("open", url)
	case "windows":
		return lookup("rundll32", "url.dll,FileProtocolHandler", url)
	case "linux", "freebsd", "openbsd":
		for _, b := range linuxBrowsers {
			if _, err := exec.LookPath(b); err == nil {
				return b, []string{url}, nil
			}
		}
		return "", nil, fmt.Errorf("no suitable browser found on %s", runtime.GOOS)
	default:
		return "", nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

func lookup(name string, args ...string) (string, []string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", nil, fmt.Errorf("browser command %q not found: %w", name, err)
	}
	return name, args, nil
}
