// Package channels defines the chat platform boundary: inbound messages and
// commands, outbound messages, and the Gateway a platform implements.
package channels

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// IncomingMessage is a chat message observed by the gateway.
type IncomingMessage struct {
	ID        string
	ChannelID string
	GuildID   string

	AuthorID       string
	AuthorName     string // display name
	AuthorNickname string // per-guild nickname, if any
	AuthorBot      bool

	// WebhookID is set when the message was posted through a webhook.
	WebhookID string

	// FromSelf marks messages sent by the gateway's own bot account.
	FromSelf bool

	Content   string
	Timestamp time.Time
}

// OutgoingMessage is a message to post. When WebhookURL is set the message
// is posted through the webhook under Username and AvatarURL; otherwise it
// is posted as the bot.
type OutgoingMessage struct {
	Content string

	// Files are local paths attached to the message.
	Files []string

	WebhookURL string
	Username   string
	AvatarURL  string
}

// Administrative command names.
const (
	CommandReset      = "reset"
	CommandRegister   = "register"
	CommandAssistants = "assistants"
	CommandPersonas   = "personas"
	CommandImage      = "image"
	CommandTTS        = "tts"
)

// PublicCommands answer in the channel rather than only to the invoking
// user.
var PublicCommands = map[string]bool{
	CommandImage: true,
	CommandTTS:   true,
}

// Command is a slash command invoked in a channel.
type Command struct {
	Name      string
	ChannelID string
	UserID    string
	UserName  string
	Options   map[string]string

	// Respond answers the command, attaching the local files given.
	Respond func(ctx context.Context, content string, files ...string) error
}

// Gateway is a chat platform connection.
type Gateway interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error

	Messages() <-chan *IncomingMessage
	Commands() <-chan *Command

	Send(ctx context.Context, channelID string, msg *OutgoingMessage) error
	SendTyping(ctx context.Context, channelID string) error
	CreateWebhook(ctx context.Context, channelID, name string) (string, error)
}

// ParseWebhookURL extracts id and token from a
// https://<host>/api/webhooks/<id>/<token> URL.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing webhook url: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.New("webhook url has no id and token")
}
