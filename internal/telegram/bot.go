package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/iconidentify/igrabba/internal/domain"
	"github.com/iconidentify/igrabba/internal/worker"
	"github.com/iconidentify/igrabba/pkg/instagram"
)

// UpdateSource is the part of *tgbotapi.BotAPI used for long polling.
type UpdateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// Pipeline turns a URL into delivered files.
type Pipeline interface {
	Run(ctx context.Context, rawURL, dest string) domain.DeliveryOutcome
}

// Submitter runs jobs on a bounded pool.
type Submitter interface {
	Submit(job worker.Job) error
}

// ToolProbe reports the media tool's version.
type ToolProbe interface {
	Version(ctx context.Context) (string, error)
}

// StatsSource provides aggregate history for /status.
type StatsSource interface {
	Stats(ctx context.Context) (*domain.HistoryStats, error)
}

// Config holds bot behavior settings.
type Config struct {
	PollTimeout  int
	PollInterval time.Duration
	ErrorBackoff time.Duration
	// ArchiveBucket is shown by /status; empty means archiving is off.
	ArchiveBucket string
}

// Bot handles inbound updates and replies through a Channel.
type Bot struct {
	cfg      Config
	channel  *Channel
	pipeline Pipeline
	pool     Submitter
	tool     ToolProbe
	stats    StatsSource
	logger   *slog.Logger
}

// NewBot creates a bot. tool and stats may be nil.
func NewBot(cfg Config, channel *Channel, pipeline Pipeline, pool Submitter, tool ToolProbe, stats StatsSource, logger *slog.Logger) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		cfg:      cfg,
		channel:  channel,
		pipeline: pipeline,
		pool:     pool,
		tool:     tool,
		stats:    stats,
		logger:   logger,
	}
}

// pollState carries the getUpdates offset between iterations of one Poll call.
type pollState struct {
	offset int
}

// Poll long-polls for updates until ctx is cancelled.
func (b *Bot) Poll(ctx context.Context, source UpdateSource) {
	b.logger.Info("polling for updates", "timeout", b.cfg.PollTimeout)

	state := &pollState{}
	for {
		wait := b.cfg.PollInterval
		if err := b.pollOnce(ctx, source, state); err != nil {
			b.logger.Error("error in polling loop", "error", err)
			wait = b.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			b.logger.Info("polling stopped")
			return
		case <-time.After(wait):
		}
	}
}

func (b *Bot) pollOnce(ctx context.Context, source UpdateSource, state *pollState) error {
	req := tgbotapi.NewUpdate(state.offset)
	req.Timeout = b.cfg.PollTimeout
	req.AllowedUpdates = []string{"message"}

	updates, err := source.GetUpdates(req)
	if err != nil {
		return fmt.Errorf("get updates: %w", err)
	}

	for _, update := range updates {
		if update.UpdateID >= state.offset {
			state.offset = update.UpdateID + 1
		}
		if err := b.HandleUpdate(ctx, update); err != nil {
			b.logger.Warn("update dropped", "update_id", update.UpdateID, "error", err)
		}
	}
	return nil
}

// HandleUpdate queues a text message for processing. Updates without text are ignored.
// When the pool is full the sender is told to retry.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return nil
	}

	dest := strconv.FormatInt(msg.Chat.ID, 10)
	text := msg.Text

	err := b.pool.Submit(func(ctx context.Context) {
		b.handleMessage(ctx, dest, text)
	})
	if errors.Is(err, worker.ErrQueueFull) {
		b.reply(ctx, dest, busyText)
	}
	return err
}

func (b *Bot) handleMessage(ctx context.Context, dest, text string) {
	logger := b.logger.With("chat_id", dest)

	switch commandName(text) {
	case "start":
		b.reply(ctx, dest, startText)
		return
	case "help":
		b.reply(ctx, dest, helpText)
		return
	case "status":
		b.reply(ctx, dest, StatusText(b.Status(ctx)))
		return
	}

	rawURL, ok := instagram.FindURL(text)
	if !ok {
		b.reply(ctx, dest, usageText)
		return
	}

	req := instagram.Classify(rawURL)
	logger.Info("instagram url received", "url", rawURL, "kind", req.Kind)
	b.reply(ctx, dest, DetectedText(req.Kind))

	outcome := b.pipeline.Run(ctx, rawURL, dest)
	b.reply(ctx, dest, SummaryText(outcome))
}

// Located implements pipeline.Observer.
func (b *Bot) Located(ctx context.Context, dest string, _ domain.ContentRequest, count int) {
	b.reply(ctx, dest, LocatedText(count))
}

// Status gathers the /status report.
func (b *Bot) Status(ctx context.Context) StatusReport {
	report := StatusReport{ArchiveBucket: b.cfg.ArchiveBucket}

	if b.tool != nil {
		version, err := b.tool.Version(ctx)
		if err == nil {
			report.ToolAvailable = true
			report.ToolVersion = version
		} else {
			b.logger.Debug("yt-dlp probe failed", "error", err)
		}
	}

	if b.stats != nil {
		stats, err := b.stats.Stats(ctx)
		if err != nil {
			b.logger.Warn("failed to load history stats", "error", err)
		} else {
			report.Stats = stats
		}
	}
	return report
}

func (b *Bot) reply(ctx context.Context, dest, text string) {
	if err := b.channel.SendText(ctx, dest, text); err != nil {
		b.logger.Warn("failed to send message", "chat_id", dest, "error", err)
	}
}

// commandName returns the bot command in text without slash or @botname suffix,
// or "" when text is not a command.
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}

// DecodeUpdate parses a webhook request body.
func DecodeUpdate(r io.Reader) (tgbotapi.Update, error) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r).Decode(&update); err != nil {
		return tgbotapi.Update{}, fmt.Errorf("decode update: %w", err)
	}
	return update, nil
}
