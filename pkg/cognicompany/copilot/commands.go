package copilot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/session"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/store"
)

const commandTimeout = 60 * time.Second

// handleCommand runs a slash command and answers the invoking user.
func (a *Assistant) handleCommand(cmd *channels.Command) {
	logger := a.logger.With(
		"command", cmd.Name,
		"channel_id", cmd.ChannelID,
		"user_id", cmd.UserID,
	)

	ctx, cancel := context.WithTimeout(a.ctx, commandTimeout)
	defer cancel()

	reply, files, err := a.runCommand(ctx, cmd)
	// Generated media is only kept until it has been attached.
	defer func() {
		for _, f := range files {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				logger.Warn("failed to remove command media", "path", f, "error", err)
			}
		}
	}()
	attach := files
	if err != nil {
		logger.Error("command failed", "error", err)
		reply, attach = "error: "+err.Error(), nil
	} else {
		logger.Info("command processed", "files", len(files))
	}

	if cmd.Respond == nil {
		return
	}
	if err := cmd.Respond(ctx, reply, attach...); err != nil {
		logger.Warn("failed to answer command", "error", err)
	}
}

// runCommand returns the reply text and any local files to attach.
func (a *Assistant) runCommand(ctx context.Context, cmd *channels.Command) (string, []string, error) {
	switch cmd.Name {
	case channels.CommandImage:
		return a.imageCommand(ctx, cmd.Options)
	case channels.CommandTTS:
		return a.ttsCommand(ctx, cmd.Options)
	}

	reply, err := a.adminCommand(ctx, cmd)
	return reply, nil, err
}

func (a *Assistant) adminCommand(ctx context.Context, cmd *channels.Command) (string, error) {
	switch cmd.Name {
	case channels.CommandReset:
		if err := a.ResetChannel(ctx, cmd.ChannelID); err != nil {
			if errors.Is(err, session.ErrChannelNotConfigured) {
				return "This channel has no conversation yet.", nil
			}
			return "", err
		}
		return "Conversation reset. Starting a new thread.", nil

	case channels.CommandRegister:
		u := store.User{
			ID:            cmd.UserID,
			DisplayName:   cmd.UserName,
			PreferredName: strings.TrimSpace(cmd.Options["name"]),
		}
		if err := a.RegisterUser(ctx, u); err != nil {
			return "", err
		}
		stored, err := a.userStore.Get(ctx, u.ID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Registered as %s.", stored.Name()), nil

	case channels.CommandAssistants:
		list := a.personas.All()
		if len(list) == 0 {
			return "No assistants available.", nil
		}
		var b strings.Builder
		for _, p := range list {
			fmt.Fprintf(&b, "%s (%s)\n", p.Name, p.ID)
		}
		return strings.TrimSuffix(b.String(), "\n"), nil

	case channels.CommandPersonas:
		ids := splitIDs(cmd.Options["ids"])
		cfg, err := a.SetChannelPersonas(ctx, cmd.ChannelID, ids)
		if err != nil {
			return "", err
		}
		if len(cfg.ActivePersonaIDs) == 0 {
			return "No active assistants. The default assistant answers to its trigger word.", nil
		}
		found, missing := a.personas.Lookup(cfg.ActivePersonaIDs)
		names := make([]string, 0, len(found))
		for _, p := range found {
			names = append(names, p.Name)
		}
		reply := "Active assistants: " + strings.Join(names, ", ")
		if len(missing) > 0 {
			reply += "\nUnknown ids: " + strings.Join(missing, ", ")
		}
		return reply, nil

	default:
		return "", fmt.Errorf("unknown command %q", cmd.Name)
	}
}

// ResetChannel starts a new conversation thread in channelID, aborting any
// run in flight there.
func (a *Assistant) ResetChannel(ctx context.Context, channelID string) error {
	_, err := a.sessions.Reset(ctx, channelID)
	return err
}

// RegisterUser records u in the user directory.
func (a *Assistant) RegisterUser(ctx context.Context, u store.User) error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	return a.userStore.Upsert(ctx, u)
}

// SetChannelPersonas replaces the personas active in channelID, bootstrapping
// the channel first if needed.
func (a *Assistant) SetChannelPersonas(ctx context.Context, channelID string, ids []string) (store.ChannelConfiguration, error) {
	if _, _, err := a.sessions.Resolve(ctx, channelID, store.User{}); err != nil {
		return store.ChannelConfiguration{}, err
	}
	return a.sessions.SetActivePersonas(ctx, channelID, ids)
}

// SetPersonaImage sets the avatar a persona posts with.
func (a *Assistant) SetPersonaImage(ctx context.Context, personaID, imageURL string) error {
	return a.personas.SetAvatar(ctx, personaID, imageURL)
}

// SyncPersonaTools advertises the available tools to the given personas, or
// to every known persona when none are given. It returns how many were
// updated.
func (a *Assistant) SyncPersonaTools(ctx context.Context, personaIDs ...string) (int, error) {
	if len(personaIDs) == 0 {
		if err := a.personas.Refresh(ctx); err != nil {
			return 0, err
		}
		for _, p := range a.personas.All() {
			personaIDs = append(personaIDs, p.ID)
		}
	}

	defs := a.tools.Definitions()
	for i, id := range personaIDs {
		if err := a.llm.UpdateAssistantTools(ctx, id, defs); err != nil {
			return i, fmt.Errorf("updating tools of %s: %w", id, err)
		}
		a.logger.Info("persona tools updated", "persona", id, "tools", len(defs))
	}
	return len(personaIDs), nil
}

func splitIDs(raw string) []string {
	var ids []string
	for _, f := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		ids = append(ids, f)
	}
	return ids
}
