package server

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

// validateURL rejects anything but a plain http(s) URL before it reaches a
// system command.
func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}
	if i := strings.IndexAny(rawURL, ";&|`$()<>\"'\\ \n\r"); i >= 0 {
		return fmt.Errorf("URL contains forbidden character %q", rawURL[i])
	}
	return nil
}

func browserCommand(ctx context.Context, goos, target string) (*exec.Cmd, error) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return exec.CommandContext(ctx, "xdg-open", target), nil
	case "darwin":
		return exec.CommandContext(ctx, "open", target), nil
	case "windows":
		return exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", target), nil
	default:
		return nil, fmt.Errorf("cannot open a browser on %s", goos)
	}
}

func (s *Server) openBrowser(ctx context.Context, target string) {
	if err := validateURL(target); err != nil {
		s.logger.Warn(ctx, err, "Not opening browser")
		return
	}
	cmd, err := browserCommand(ctx, runtime.GOOS, target)
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser", "url", target)
		return
	}
	go func() { _ = cmd.Wait() }()
}
