// Package relay turns run output into chat messages.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
)

// UnsupportedMediaText replaces content blocks the chat side cannot render.
const UnsupportedMediaText = "IMAGE: Image format not supported yet"

// Sender posts one message to a channel.
type Sender interface {
	Send(ctx context.Context, channelID string, msg *channels.OutgoingMessage) error
}

// Identity is who a message is posted as. The zero Identity is the bot
// itself; an Identity with a WebhookURL posts through that webhook.
type Identity struct {
	WebhookURL string
	Username   string
	AvatarURL  string
}

// IsBot reports whether messages are posted as the bot account.
func (id Identity) IsBot() bool {
	return id.WebhookURL == ""
}

// Relay delivers run output.
type Relay struct {
	sender Sender
	budget int
	logger *slog.Logger
}

// New creates a Relay posting chunks of at most budget characters.
func New(sender Sender, budget int, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if budget <= 0 || budget > DefaultBudget {
		budget = DefaultBudget
	}
	return &Relay{sender: sender, budget: budget, logger: logger.With("component", "relay")}
}

// Deliver posts blocks to channelID as id. Text is chunked and each chunk
// carries the local media files it references; other blocks become
// UnsupportedMediaText. The first failed send stops delivery and is returned.
func (r *Relay) Deliver(ctx context.Context, channelID string, id Identity, blocks []llm.ContentBlock) error {
	sent := 0
	for _, block := range blocks {
		switch block.Kind {
		case llm.ContentText, llm.ContentRefusal:
			for _, chunk := range SplitMessage(block.Text, r.budget) {
				if err := r.send(ctx, channelID, id, chunk, r.attachments(chunk)); err != nil {
					return err
				}
				sent++
			}
		default:
			if err := r.send(ctx, channelID, id, UnsupportedMediaText, nil); err != nil {
				return err
			}
			sent++
		}
	}

	r.logger.Debug("reply delivered", "channel_id", channelID, "messages", sent, "as_bot", id.IsBot())
	return nil
}

// DeliverError posts a visible error marker for cause.
func (r *Relay) DeliverError(ctx context.Context, channelID string, id Identity, cause error) error {
	for _, chunk := range SplitMessage("error: "+cause.Error(), r.budget) {
		if err := r.send(ctx, channelID, id, chunk, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Relay) send(ctx context.Context, channelID string, id Identity, content string, files []string) error {
	msg := &channels.OutgoingMessage{
		Content:    content,
		Files:      files,
		WebhookURL: id.WebhookURL,
		Username:   id.Username,
		AvatarURL:  id.AvatarURL,
	}
	if err := r.sender.Send(ctx, channelID, msg); err != nil {
		return fmt.Errorf("sending to channel %s: %w", channelID, err)
	}
	return nil
}

// attachments returns the referenced files present on disk.
func (r *Relay) attachments(chunk string) []string {
	var files []string
	for _, p := range ExtractLocalFiles(chunk) {
		if _, err := os.Stat(p); err != nil {
			r.logger.Warn("referenced file not found, skipping attachment", "path", p)
			continue
		}
		files = append(files, p)
	}
	return files
}
