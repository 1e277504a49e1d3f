// Package delivery sends fetched files to a destination and owns their cleanup.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/igrabba/internal/domain"
)

// Channel is the messaging capability files are delivered through.
// dest is a chat identifier understood by the implementation.
type Channel interface {
	SendText(ctx context.Context, dest, text string) error
	SendAudio(ctx context.Context, dest, path, caption string) error
	SendPhoto(ctx context.Context, dest, path, caption string) error
	// SendVideo marks the upload as streamable.
	SendVideo(ctx context.Context, dest, path, caption string) error
	SendDocument(ctx context.Context, dest, path, caption string) error
}

// Archiver keeps a copy of a delivered file. It runs before the file is released.
type Archiver interface {
	Archive(ctx context.Context, path string) error
}

// Operation is the delivery call chosen for a file.
type Operation string

const (
	OpAudio    Operation = "audio"
	OpPhoto    Operation = "photo"
	OpVideo    Operation = "video"
	OpDocument Operation = "document"
)

// Dispatcher enforces the size ceiling and routes files by kind.
type Dispatcher struct {
	channel  Channel
	maxBytes int64
	archiver Archiver
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. archiver may be nil.
func NewDispatcher(channel Channel, maxBytes int64, archiver Archiver, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		channel:  channel,
		maxBytes: maxBytes,
		archiver: archiver,
		logger:   logger,
	}
}

// MaxBytes returns the transport ceiling.
func (d *Dispatcher) MaxBytes() int64 {
	return d.maxBytes
}

// Deliver sends asset to dest. The asset's file is released on every return path.
// A false result carries domain.ErrSizeRejected or domain.ErrDeliveryFailed; the
// destination has already been told why.
func (d *Dispatcher) Deliver(ctx context.Context, asset *domain.FetchedAsset, dest, caption string) (bool, error) {
	defer func() {
		if err := asset.Release(); err != nil {
			d.logger.Warn("failed to remove temp file", "path", asset.Path, "error", err)
		}
	}()

	logger := d.logger.With("path", asset.Path, "ordinal", asset.Ordinal)

	if asset.Size > d.maxBytes {
		d.notify(ctx, dest, TooLargeText(asset.Size, d.maxBytes))
		logger.Info("file rejected by size gate", "size", humanize.IBytes(uint64(asset.Size)))
		return false, fmt.Errorf("%w: %d > %d bytes", domain.ErrSizeRejected, asset.Size, d.maxBytes)
	}

	op := SelectOperation(asset)
	logger.Info("sending file", "op", string(op), "size", humanize.IBytes(uint64(asset.Size)))

	if err := d.send(ctx, op, dest, asset.Path, caption); err != nil {
		d.notify(ctx, dest, SendErrorText(err))
		logger.Error("delivery failed", "op", string(op), "error", err)
		return false, fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}

	if d.archiver != nil {
		if err := d.archiver.Archive(ctx, asset.Path); err != nil {
			logger.Warn("archive failed", "error", err)
		}
	}

	logger.Info("file sent")
	return true, nil
}

func (d *Dispatcher) send(ctx context.Context, op Operation, dest, path, caption string) error {
	switch op {
	case OpAudio:
		return d.channel.SendAudio(ctx, dest, path, caption)
	case OpPhoto:
		return d.channel.SendPhoto(ctx, dest, path, caption)
	case OpVideo:
		return d.channel.SendVideo(ctx, dest, path, caption)
	default:
		return d.channel.SendDocument(ctx, dest, path, caption)
	}
}

// notify sends a status text; failures are only logged.
func (d *Dispatcher) notify(ctx context.Context, dest, text string) {
	if err := d.channel.SendText(ctx, dest, text); err != nil {
		d.logger.Warn("failed to notify destination", "error", err)
	}
}

// SelectOperation picks the delivery call from the file extension, then the
// fetched kind, then falls back to a document.
func SelectOperation(asset *domain.FetchedAsset) Operation {
	kind, ok := domain.KindFromExtension(asset.Ext())
	if !ok {
		kind = asset.Kind
	}
	switch kind {
	case domain.AssetKindAudio:
		return OpAudio
	case domain.AssetKindImage:
		return OpPhoto
	case domain.AssetKindVideo:
		return OpVideo
	default:
		return OpDocument
	}
}

// TooLargeText is sent when a file exceeds the ceiling.
func TooLargeText(size, limit int64) string {
	return fmt.Sprintf("❌ File too large (%s). Telegram limit is %s.",
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}

// SendErrorText is sent when the channel rejects a file.
func SendErrorText(err error) string {
	return "❌ Error sending file: " + err.Error()
}
