package persona

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
)

type fakeAssistants struct {
	list    []llm.Assistant
	updated map[string]map[string]string
}

func (f *fakeAssistants) ListAssistants(context.Context) ([]llm.Assistant, error) {
	return f.list, nil
}

func (f *fakeAssistants) UpdateAssistantMetadata(_ context.Context, id string, md map[string]string) error {
	if f.updated == nil {
		f.updated = map[string]map[string]string{}
	}
	f.updated[id] = md
	return nil
}

func (f *fakeAssistants) UpdateAssistantTools(context.Context, string, []llm.FunctionDefinition) error {
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const channelWebhook = "https://discord.com/api/webhooks/900/tok"

var (
	ada   = Persona{ID: "asst_ada", Name: "Ada"}
	grace = Persona{ID: "asst_grace", Name: "Grace", AuthorID: "bot_grace"}
	fallb = Persona{ID: "asst_default", Name: "Lovelace"}
)

func msg(content string) *channels.IncomingMessage {
	return &channels.IncomingMessage{AuthorID: "u1", AuthorName: "human", Content: content}
}

func TestSelectActivePersonasByName(t *testing.T) {
	active := []Persona{ada, grace}

	assert.Equal(t, []Persona{ada}, Select(msg("hey ADA, thoughts?"), active, fallb, "lovelace", "900"))
	assert.Equal(t, []Persona{ada, grace}, Select(msg("ada and grace"), active, fallb, "lovelace", "900"))
	assert.Empty(t, Select(msg("lovelace?"), active, fallb, "lovelace", "900"), "trigger is ignored while personas are active")
}

func TestSelectSkipsOwnMessages(t *testing.T) {
	active := []Persona{ada, grace}

	relayed := &channels.IncomingMessage{AuthorID: "900", AuthorName: "Ada", WebhookID: "900", AuthorBot: true, Content: "I am Ada, ask Grace"}
	assert.Equal(t, []Persona{grace}, Select(relayed, active, fallb, "lovelace", "900"))

	own := &channels.IncomingMessage{AuthorID: "bot_grace", Content: "grace here, hi ada"}
	assert.Equal(t, []Persona{ada}, Select(own, active, fallb, "lovelace", "900"))
}

func TestSelectFallback(t *testing.T) {
	assert.Equal(t, []Persona{fallb}, Select(msg("Lovelace, what time is it?"), nil, fallb, "lovelace", ""))
	assert.Empty(t, Select(msg("hello"), nil, fallb, "lovelace", ""))

	bot := msg("lovelace")
	bot.AuthorBot = true
	assert.Empty(t, Select(bot, nil, fallb, "lovelace", ""), "bots never wake the default persona")
}

func TestAuthoredWithPersonaWebhook(t *testing.T) {
	p := Persona{ID: "a", Name: "Ada", WebhookURL: "https://discord.com/api/webhooks/777/x"}
	m := &channels.IncomingMessage{WebhookID: "777", AuthorName: "Someone Else"}
	assert.True(t, p.Authored(m, "900"))
	assert.False(t, p.Authored(&channels.IncomingMessage{WebhookID: "900", AuthorName: "Grace"}, "900"))
}

func TestRegistryRefreshMergesStatic(t *testing.T) {
	api := &fakeAssistants{list: []llm.Assistant{
		{ID: "asst_ada", Name: "Ada", Metadata: map[string]string{MetaAvatar: "https://img/ada.png", MetaVoice: "echo"}},
		{ID: "asst_grace", Name: "Grace"},
	}}
	r := NewRegistry([]config.PersonaConfig{
		{ID: "asst_ada", Voice: "nova"},
		{ID: "asst_local", Name: "Local"},
	}, api, discard())

	require.NoError(t, r.Refresh(context.Background()))

	p, ok := r.Get("asst_ada")
	require.True(t, ok)
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, "nova", p.Voice, "static config wins")
	assert.Equal(t, "https://img/ada.png", p.AvatarURL)

	found, missing := r.Lookup([]string{"asst_grace", "asst_gone", "asst_local"})
	assert.Equal(t, []string{"asst_gone"}, missing)
	require.Len(t, found, 2)
	assert.Equal(t, "Local", found[1].Name)

	var names []string
	for _, p := range r.All() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Ada", "Grace", "Local"}, names)
}

func TestRegistrySetAvatarKeepsMetadata(t *testing.T) {
	api := &fakeAssistants{list: []llm.Assistant{
		{ID: "asst_ada", Name: "Ada", Metadata: map[string]string{MetaVoice: "echo"}},
	}}
	r := NewRegistry(nil, api, discard())
	require.NoError(t, r.Refresh(context.Background()))

	require.NoError(t, r.SetAvatar(context.Background(), "asst_ada", "https://img/new.png"))
	assert.Equal(t, map[string]string{MetaVoice: "echo", MetaAvatar: "https://img/new.png"}, api.updated["asst_ada"])

	p, _ := r.Get("asst_ada")
	assert.Equal(t, "https://img/new.png", p.AvatarURL)

	assert.Error(t, r.SetAvatar(context.Background(), "asst_missing", "x"))
}
