package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
)

// Definitions returns the slash commands the bot offers.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        channels.CommandReset,
			Description: "Start a fresh conversation thread in this channel",
		},
		{
			Name:        channels.CommandRegister,
			Description: "Register yourself with the assistants",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "name",
				Description: "The name the assistants should call you",
				Required:    false,
			}},
		},
		{
			Name:        channels.CommandAssistants,
			Description: "List the available assistants",
		},
		{
			Name:        channels.CommandPersonas,
			Description: "Set the assistants active in this channel",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "ids",
				Description: "Comma-separated assistant ids, empty to clear",
				Required:    false,
			}},
		},
		{
			Name:        channels.CommandImage,
			Description: "Generate an image",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prompt",
					Description: "Describe the image",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "model",
					Description: "The model to use",
					Choices:     choices("DALL·E 3", "dall-e-3", "DALL·E 2", "dall-e-2"),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "style",
					Description: "The style to use (only applies to DALL·E 3)",
					Choices:     choices("Natural", "natural", "Vivid", "vivid"),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "quality",
					Description: "The quality of the image",
					Choices:     choices("Standard", "standard", "HD", "hd"),
				},
			},
		},
		{
			Name:        channels.CommandTTS,
			Description: "Generate speech from text",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "The text to generate speech from",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "voice",
					Description: "The voice to use",
					Choices: choices(
						"Alloy", "alloy", "Echo", "echo", "Fable", "fable",
						"Nova", "nova", "Onyx", "onyx", "Shimmer", "shimmer",
					),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "quality",
					Description: "The quality of the speech",
					Choices:     choices("Standard", "standard", "HD", "hd"),
				},
			},
		},
	}
}

// choices pairs up name, value arguments.
func choices(pairs ...string) []*discordgo.ApplicationCommandOptionChoice {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: pairs[i], Value: pairs[i+1]})
	}
	return out
}

// registerCommands installs the slash commands, deleting the existing
// ones first when recreate_commands is set.
func (g *Gateway) registerCommands(s *discordgo.Session, appID string) error {
	guildID := g.cfg.GuildID

	if g.cfg.RecreateCommands {
		existing, err := s.ApplicationCommands(appID, guildID)
		if err != nil {
			return fmt.Errorf("listing commands: %w", err)
		}
		for _, c := range existing {
			if err := s.ApplicationCommandDelete(appID, guildID, c.ID); err != nil {
				return fmt.Errorf("deleting command %s: %w", c.Name, err)
			}
		}
		g.logger.Info("slash commands deleted", "count", len(existing))
	}

	for _, c := range Definitions() {
		if _, err := s.ApplicationCommandCreate(appID, guildID, c); err != nil {
			return fmt.Errorf("creating command %s: %w", c.Name, err)
		}
	}
	g.logger.Info("slash commands registered", "guild", guildID)
	return nil
}
