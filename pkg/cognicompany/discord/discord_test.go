package discord

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
)

func TestToIncoming(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "lovelace, hi",
		Timestamp: ts,
		Author:    &discordgo.User{ID: "u1", Username: "ada99", GlobalName: "Ada"},
		Member:    &discordgo.Member{Nick: "Countess"},
	}

	msg := toIncoming(m, "bot")
	require.NotNil(t, msg)
	assert.Equal(t, "u1", msg.AuthorID)
	assert.Equal(t, "Ada", msg.AuthorName)
	assert.Equal(t, "Countess", msg.AuthorNickname)
	assert.False(t, msg.FromSelf)
	assert.Equal(t, ts, msg.Timestamp)

	assert.Nil(t, toIncoming(&discordgo.Message{}, "bot"))
}

func TestToIncomingSelfAndWebhook(t *testing.T) {
	own := toIncoming(&discordgo.Message{Author: &discordgo.User{ID: "bot", Username: "relay", Bot: true}}, "bot")
	assert.True(t, own.FromSelf)
	assert.Equal(t, "relay", own.AuthorName)

	relayed := toIncoming(&discordgo.Message{
		WebhookID: "w1",
		Author:    &discordgo.User{ID: "w1", Username: "Grace", Bot: true},
	}, "bot")
	assert.False(t, relayed.FromSelf, "persona webhook posts stay visible")
	assert.Equal(t, "w1", relayed.WebhookID)
}

func TestToCommand(t *testing.T) {
	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "ada"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: channels.CommandPersonas,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "ids", Type: discordgo.ApplicationCommandOptionString, Value: "asst_a,asst_b"},
			},
		},
	}}

	cmd := toCommand(i)
	assert.Equal(t, channels.CommandPersonas, cmd.Name)
	assert.Equal(t, "c1", cmd.ChannelID)
	assert.Equal(t, "u1", cmd.UserID)
	assert.Equal(t, "ada", cmd.UserName)
	assert.Equal(t, map[string]string{"ids": "asst_a,asst_b"}, cmd.Options)
}

func TestDefinitionsNames(t *testing.T) {
	var names []string
	for _, c := range Definitions() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		channels.CommandReset, channels.CommandRegister, channels.CommandAssistants,
		channels.CommandPersonas, channels.CommandImage, channels.CommandTTS,
	}, names)
}

func TestMediaCommandOptions(t *testing.T) {
	byName := map[string]*discordgo.ApplicationCommand{}
	for _, c := range Definitions() {
		byName[c.Name] = c
	}

	image := byName[channels.CommandImage]
	require.NotNil(t, image)
	require.Len(t, image.Options, 4)
	assert.Equal(t, "prompt", image.Options[0].Name)
	assert.True(t, image.Options[0].Required)
	assert.Equal(t, "dall-e-2", image.Options[1].Choices[1].Value)

	tts := byName[channels.CommandTTS]
	require.NotNil(t, tts)
	assert.Equal(t, "text", tts.Options[0].Name)
	assert.Len(t, tts.Options[1].Choices, 6)
}

func TestDeferFlags(t *testing.T) {
	assert.Equal(t, discordgo.MessageFlagsEphemeral, deferFlags(channels.CommandReset))
	assert.Equal(t, discordgo.MessageFlags(0), deferFlags(channels.CommandImage))
	assert.Equal(t, discordgo.MessageFlags(0), deferFlags(channels.CommandTTS))
}

func TestOpenFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chart.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	files, closeFiles, err := openFiles([]string{path})
	require.NoError(t, err)
	defer closeFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "chart.png", files[0].Name)
	assert.Equal(t, "image/png", files[0].ContentType)

	_, _, err = openFiles([]string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(config.DiscordConfig{}, nil)
	assert.Error(t, err)

	g, err := New(config.DiscordConfig{Token: "abc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "discord", g.Name())
}
