// Package discord – discord.go implements the chat gateway on top of the
// Discord bot API: gateway events in, channel messages and webhook posts out.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
)

const (
	webhookBase = "https://discord.com/api/webhooks/"
	queueSize   = 64
)

// Gateway is a Discord bot connection.
type Gateway struct {
	cfg     config.DiscordConfig
	session *discordgo.Session

	messages chan *channels.IncomingMessage
	commands chan *channels.Command

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger
}

var _ channels.Gateway = (*Gateway)(nil)

// New creates a gateway for the bot token in cfg. It does not connect.
func New(cfg config.DiscordConfig, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Token == "" {
		return nil, errors.New("discord token is empty")
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	g := &Gateway{
		cfg:      cfg,
		session:  s,
		messages: make(chan *channels.IncomingMessage, queueSize),
		commands: make(chan *channels.Command, queueSize),
		logger:   logger.With("component", "discord"),
	}

	s.AddHandler(g.onReady)
	s.AddHandler(g.onMessage)
	s.AddHandler(g.onInteraction)
	return g, nil
}

// Name returns "discord".
func (g *Gateway) Name() string { return "discord" }

// Start opens the gateway websocket.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.mu.Unlock()

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	g.logger.Info("discord gateway connected")
	return nil
}

// Stop closes the websocket. Pending events are dropped.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	g.mu.Unlock()
	return g.session.Close()
}

// Messages returns inbound chat messages.
func (g *Gateway) Messages() <-chan *channels.IncomingMessage { return g.messages }

// Commands returns inbound slash commands.
func (g *Gateway) Commands() <-chan *channels.Command { return g.commands }

// Send posts msg to channelID, through msg.WebhookURL when set.
func (g *Gateway) Send(ctx context.Context, channelID string, msg *channels.OutgoingMessage) error {
	files, closeFiles, err := openFiles(msg.Files)
	if err != nil {
		return err
	}
	defer closeFiles()

	if msg.WebhookURL != "" {
		id, token, err := channels.ParseWebhookURL(msg.WebhookURL)
		if err != nil {
			return err
		}
		_, err = g.session.WebhookExecute(id, token, true, &discordgo.WebhookParams{
			Content:   msg.Content,
			Username:  msg.Username,
			AvatarURL: msg.AvatarURL,
			Files:     files,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("executing webhook in %s: %w", channelID, err)
		}
		return nil
	}

	_, err = g.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: msg.Content,
		Files:   files,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending message to %s: %w", channelID, err)
	}
	return nil
}

// SendTyping shows the typing indicator in channelID for a few seconds.
func (g *Gateway) SendTyping(ctx context.Context, channelID string) error {
	return g.session.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

// CreateWebhook creates a webhook in channelID and returns its URL.
func (g *Gateway) CreateWebhook(ctx context.Context, channelID, name string) (string, error) {
	wh, err := g.session.WebhookCreate(channelID, name, "", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("creating webhook in %s: %w", channelID, err)
	}
	return webhookBase + wh.ID + "/" + wh.Token, nil
}

func (g *Gateway) context() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx == nil {
		return context.Background()
	}
	return g.ctx
}

func (g *Gateway) onReady(s *discordgo.Session, r *discordgo.Ready) {
	g.logger.Info("discord ready", "user", r.User.Username, "guilds", len(r.Guilds))
	if err := g.registerCommands(s, r.User.ID); err != nil {
		g.logger.Error("failed to register slash commands", "error", err)
	}
}

func (g *Gateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	msg := toIncoming(m.Message, selfID)
	if msg == nil {
		return
	}

	ctx := g.context()
	select {
	case g.messages <- msg:
	case <-ctx.Done():
	}
}

func (g *Gateway) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	// Commands may take longer than the interaction deadline, so acknowledge
	// first and edit the deferred reply later.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: deferFlags(i.ApplicationCommandData().Name)},
	})
	if err != nil {
		g.logger.Warn("failed to acknowledge interaction", "error", err)
		return
	}

	interaction := i.Interaction
	cmd := toCommand(i)
	cmd.Respond = func(ctx context.Context, content string, paths ...string) error {
		files, closeFiles, err := openFiles(paths)
		if err != nil {
			return err
		}
		defer closeFiles()
		_, err = s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
			Content: &content,
			Files:   files,
		}, discordgo.WithContext(ctx))
		return err
	}

	ctx := g.context()
	select {
	case g.commands <- cmd:
	case <-ctx.Done():
	}
}

// deferFlags keeps administrative replies visible to the invoking user only.
func deferFlags(command string) discordgo.MessageFlags {
	if channels.PublicCommands[command] {
		return 0
	}
	return discordgo.MessageFlagsEphemeral
}

// toIncoming converts a gateway message. It returns nil for messages
// without an author.
func toIncoming(m *discordgo.Message, selfID string) *channels.IncomingMessage {
	if m == nil || m.Author == nil {
		return nil
	}

	msg := &channels.IncomingMessage{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.GlobalName,
		AuthorBot:  m.Author.Bot,
		WebhookID:  m.WebhookID,
		FromSelf:   selfID != "" && m.Author.ID == selfID && m.WebhookID == "",
		Content:    m.Content,
		Timestamp:  m.Timestamp,
	}
	if msg.AuthorName == "" {
		msg.AuthorName = m.Author.Username
	}
	if m.Member != nil {
		msg.AuthorNickname = m.Member.Nick
	}
	return msg
}

func toCommand(i *discordgo.InteractionCreate) *channels.Command {
	data := i.ApplicationCommandData()

	cmd := &channels.Command{
		Name:      data.Name,
		ChannelID: i.ChannelID,
		Options:   make(map[string]string, len(data.Options)),
	}

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user != nil {
		cmd.UserID = user.ID
		cmd.UserName = user.GlobalName
		if cmd.UserName == "" {
			cmd.UserName = user.Username
		}
	}

	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			cmd.Options[opt.Name] = opt.StringValue()
		} else {
			cmd.Options[opt.Name] = fmt.Sprint(opt.Value)
		}
	}
	return cmd
}

func openFiles(paths []string) ([]*discordgo.File, func(), error) {
	var (
		files  []*discordgo.File
		opened []*os.File
	)
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("opening attachment: %w", err)
		}
		opened = append(opened, f)

		name := filepath.Base(p)
		files = append(files, &discordgo.File{
			Name:        name,
			ContentType: mime.TypeByExtension(filepath.Ext(name)),
			Reader:      f,
		})
	}
	return files, closeAll, nil
}
