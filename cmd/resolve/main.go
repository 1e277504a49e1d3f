// Command resolve prints the media an Instagram URL resolves to, without Telegram.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iconidentify/igrabba/internal/config"
	"github.com/iconidentify/igrabba/internal/domain"
	"github.com/iconidentify/igrabba/internal/locator"
	"github.com/iconidentify/igrabba/internal/netx"
	"github.com/iconidentify/igrabba/pkg/instagram"
	"github.com/iconidentify/igrabba/pkg/ytdlp"
)

type options struct {
	format   string
	ytdlp    string
	noTool   bool
	tempDir  string
	keep     bool
	timeout  time.Duration
	verbose  bool
	proxies  []string
	pageBase string
}

// resolution is the JSON output shape.
type resolution struct {
	URL       string                  `json:"url"`
	Kind      domain.ContentKind      `json:"kind"`
	ContentID string                  `json:"content_id"`
	Strategy  string                  `json:"strategy,omitempty"`
	Assets    []domain.AssetReference `json:"assets"`
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "resolve <instagram-url>",
		Short: "Resolve an Instagram URL to downloadable media",
		Long: `Classify an Instagram URL and run the locator chain against it.

Prints the strategy that found media and every asset reference in delivery
order. Files produced by yt-dlp are removed afterwards unless --keep is set.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", "text", "output format: text or json")
	f.StringVar(&opts.ytdlp, "ytdlp", defaults.YtDLP.Binary, "yt-dlp binary")
	f.BoolVar(&opts.noTool, "no-ytdlp", false, "skip the yt-dlp strategy")
	f.StringVar(&opts.tempDir, "temp-dir", os.TempDir(), "directory for yt-dlp output")
	f.BoolVar(&opts.keep, "keep", false, "keep files produced by yt-dlp")
	f.DurationVar(&opts.timeout, "timeout", defaults.Download.Timeout, "HTTP timeout")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log each strategy attempt to stderr")
	f.StringSliceVar(&opts.proxies, "proxy", nil, "proxy URL, repeatable")
	f.StringVar(&opts.pageBase, "base-url", "", "override the instagram origin (testing)")
	f.MarkHidden("base-url")

	return cmd
}

func run(ctx context.Context, opts *options, rawURL string, out, errOut io.Writer) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q: must be text or json", opts.format)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	req := instagram.Classify(rawURL)
	if !req.Classified() {
		return fmt.Errorf("%w: %s", domain.ErrClassification, rawURL)
	}

	cfg := config.Default()
	cfg.Download.Timeout = opts.timeout
	cfg.Download.Proxies = opts.proxies
	hc, err := netx.NewClient(cfg.Download)
	if err != nil {
		return err
	}
	ig := instagram.NewClient(hc, cfg.Download.MaxPageBytes, logger)
	if opts.pageBase != "" {
		ig.SetBaseURL(opts.pageBase)
	}

	strategies := []locator.Strategy{
		locator.EmbeddedStrategy{},
		locator.PatternStrategy{},
		locator.APIStrategy{API: ig},
	}
	if !opts.noTool {
		runner := ytdlp.NewRunner(config.YtDLPConfig{Binary: opts.ytdlp, Format: cfg.YtDLP.Format})
		strategies = append(strategies, locator.YtDLPStrategy{Tool: runner, TempDir: opts.tempDir})
	}

	res, err := locator.NewChain(ig, logger, strategies...).Locate(ctx, req)
	if err != nil {
		return err
	}
	if !opts.keep {
		defer removeLocal(res.Assets)
	}
	if res.Empty() {
		return fmt.Errorf("%w: %s", domain.ErrLocatorExhausted, req.ContentID)
	}

	r := resolution{
		URL:       req.NormalizedURL,
		Kind:      req.Kind,
		ContentID: req.ContentID,
		Strategy:  res.Strategy,
		Assets:    res.Assets,
	}
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(out, "%s %s (found by %s)\n", r.Kind, r.ContentID, r.Strategy)
	for _, a := range r.Assets {
		fmt.Fprintf(out, "  %d  %-6s  %s\n", a.Ordinal, a.Kind, a.Locator)
	}
	return nil
}

func removeLocal(refs []domain.AssetReference) {
	for _, ref := range refs {
		if ref.IsLocal() {
			if err := os.Remove(ref.Locator); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("failed to remove file", "path", ref.Locator, "error", err)
			}
		}
	}
}
