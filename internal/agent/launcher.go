package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// Launcher opens an authorization URL in an external user agent.
type Launcher interface {
	Launch(ctx context.Context, authURL string) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, authURL string) error

func (f LauncherFunc) Launch(ctx context.Context, authURL string) error {
	return f(ctx, authURL)
}

// Browser opens URLs in the system browser.
type Browser struct{}

// Launch starts the platform URL opener; it is not tied to ctx.
func (Browser) Launch(ctx context.Context, authURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", authURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", authURL)
	default: // "linux", "freebsd", etc.
		cmd = exec.Command("xdg-open", authURL)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go cmd.Wait()
	return nil
}

// PrintOnly logs the URL for the user to open by hand.
type PrintOnly struct{}

func (PrintOnly) Launch(ctx context.Context, authURL string) error {
	slog.Info("Open this URL to sign in", "url", authURL)
	return nil
}
