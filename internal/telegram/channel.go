// Package telegram connects the download pipeline to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrInvalidTarget is returned for a destination that is neither a chat id nor @username.
var ErrInvalidTarget = errors.New("telegram target must be @username or chat_id")

// Sender is the part of *tgbotapi.BotAPI used for outbound messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Channel uploads local files and text to Telegram chats.
type Channel struct {
	sender Sender
}

// NewChannel wraps a sender.
func NewChannel(sender Sender) *Channel {
	return &Channel{sender: sender}
}

// target is a parsed destination: a numeric chat or a public @channel.
type target struct {
	chatID   int64
	username string
}

func parseTarget(dest string) (target, error) {
	dest = strings.TrimSpace(dest)
	if strings.HasPrefix(dest, "@") && len(dest) > 1 {
		return target{username: dest}, nil
	}
	id, err := strconv.ParseInt(dest, 10, 64)
	if err != nil {
		return target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, dest)
	}
	return target{chatID: id}, nil
}

func (t target) apply(base *tgbotapi.BaseChat) {
	if t.username != "" {
		base.ChatID = 0
		base.ChannelUsername = t.username
		return
	}
	base.ChatID = t.chatID
}

// SendText sends a plain text message.
func (c *Channel) SendText(ctx context.Context, dest, text string) error {
	t, err := parseTarget(dest)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	t.apply(&msg.BaseChat)
	msg.DisableWebPagePreview = true
	return c.send(ctx, msg)
}

// SendAudio uploads path as an audio track.
func (c *Channel) SendAudio(ctx context.Context, dest, path, caption string) error {
	t, err := parseTarget(dest)
	if err != nil {
		return err
	}
	audio := tgbotapi.NewAudio(t.chatID, tgbotapi.FilePath(path))
	t.apply(&audio.BaseChat)
	audio.Caption = caption
	return c.send(ctx, audio)
}

// SendPhoto uploads path as a compressed photo.
func (c *Channel) SendPhoto(ctx context.Context, dest, path, caption string) error {
	t, err := parseTarget(dest)
	if err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FilePath(path))
	t.apply(&photo.BaseChat)
	photo.Caption = caption
	return c.send(ctx, photo)
}

// SendVideo uploads path as a streamable video.
func (c *Channel) SendVideo(ctx context.Context, dest, path, caption string) error {
	t, err := parseTarget(dest)
	if err != nil {
		return err
	}
	video := tgbotapi.NewVideo(t.chatID, tgbotapi.FilePath(path))
	t.apply(&video.BaseChat)
	video.Caption = caption
	video.SupportsStreaming = true
	return c.send(ctx, video)
}

// SendDocument uploads path as a generic file.
func (c *Channel) SendDocument(ctx context.Context, dest, path, caption string) error {
	t, err := parseTarget(dest)
	if err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(path))
	t.apply(&doc.BaseChat)
	doc.Caption = caption
	return c.send(ctx, doc)
}

// send gives up early if ctx is already done. The Bot API client has no
// per-request context, so an upload in flight is not interrupted.
func (c *Channel) send(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.sender.Send(msg); err != nil {
		return err
	}
	return nil
}
