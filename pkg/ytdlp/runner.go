// Package ytdlp runs the yt-dlp media tool as a bounded subprocess.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/iconidentify/igrabba/internal/config"
	"github.com/iconidentify/igrabba/internal/domain"
)

// DefaultFormat prefers broadly compatible containers.
const DefaultFormat = "best[ext=mp4]/best[ext=jpg]/best[ext=png]/best"

// Runner invokes yt-dlp with a per-call timeout.
type Runner struct {
	binary  string
	timeout time.Duration
	format  string
}

// NewRunner creates a runner from configuration. The binary is resolved lazily
// so a missing tool only disables the fallback strategy.
func NewRunner(cfg config.YtDLPConfig) *Runner {
	r := &Runner{
		binary:  cfg.Binary,
		timeout: cfg.Timeout,
		format:  cfg.Format,
	}
	if r.binary == "" {
		r.binary = "yt-dlp"
	}
	if r.timeout <= 0 {
		r.timeout = 120 * time.Second
	}
	if r.format == "" {
		r.format = DefaultFormat
	}
	return r
}

// Timeout returns the per-invocation time budget.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Available reports whether the binary can be found.
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.binary)
	return err == nil
}

// Download runs yt-dlp against rawURL writing to outputTemplate (a yt-dlp
// -o template such as dir/name.%(ext)s). The process is killed when the
// timeout elapses.
func (r *Runner) Download(ctx context.Context, rawURL, outputTemplate string) error {
	path, err := exec.LookPath(r.binary)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrToolUnavailable, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path,
		"--format", r.format,
		"--output", outputTemplate,
		"--no-playlist",
		// Keep the local mtime so the temp janitor never sees a fresh file as stale.
		"--no-mtime",
		"--no-warnings",
		"--quiet",
		"--no-progress",
		rawURL,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Children of a killed tool may keep stderr open.
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", domain.ErrToolTimeout, r.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: %s", domain.ErrToolFailed, msg)
	}
	return nil
}

// Version returns the tool's version string.
func (r *Runner) Version(ctx context.Context) (string, error) {
	path, err := exec.LookPath(r.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrToolUnavailable, err)
	}

	vCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(vCtx, path, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrToolFailed, err)
	}
	return strings.TrimSpace(string(out)), nil
}
