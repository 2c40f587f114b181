// Package persona knows which assistant personas exist, how they present
// themselves in chat and which of them a message addresses.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/config"
	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
)

// Metadata keys read from and written to the assistant record.
const (
	MetaAvatar   = "avatar"
	MetaVoice    = "voice"
	MetaWebhook  = "webhook"
	MetaAuthorID = "author_id"
)

// Persona is an assistant configuration with a chat presence.
type Persona struct {
	ID          string
	Name        string
	Description string
	Voice       string
	AvatarURL   string

	// WebhookURL overrides the channel webhook for this persona.
	WebhookURL string

	// AuthorID is the chat user id the persona posts as, when it has one.
	AuthorID string
}

// Authored reports whether msg was posted by p, either under its own
// author id or through a relay webhook with its name.
func (p Persona) Authored(msg *channels.IncomingMessage, channelWebhookID string) bool {
	if p.AuthorID != "" && msg.AuthorID == p.AuthorID {
		return true
	}
	if msg.WebhookID == "" {
		return false
	}
	if p.WebhookURL != "" {
		if id, _, err := channels.ParseWebhookURL(p.WebhookURL); err == nil && id == msg.WebhookID {
			return true
		}
	}
	return msg.WebhookID == channelWebhookID && strings.EqualFold(msg.AuthorName, p.Name)
}

// Registry holds the known personas. Static entries from config take
// precedence over values read from the assistant service.
type Registry struct {
	api    llm.Assistants
	static map[string]config.PersonaConfig

	mu   sync.RWMutex
	byID map[string]Persona

	logger *slog.Logger
}

// NewRegistry creates a registry seeded with the static personas. api may
// be nil, in which case Refresh only re-applies the static entries.
func NewRegistry(static []config.PersonaConfig, api llm.Assistants, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		api:    api,
		static: make(map[string]config.PersonaConfig, len(static)),
		byID:   make(map[string]Persona, len(static)),
		logger: logger.With("component", "personas"),
	}
	for _, pc := range static {
		r.static[pc.ID] = pc
		r.byID[pc.ID] = overlay(Persona{ID: pc.ID}, pc)
	}
	return r
}

// Refresh reloads personas from the assistant service.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.api == nil {
		return nil
	}

	assistants, err := r.api.ListAssistants(ctx)
	if err != nil {
		return fmt.Errorf("refreshing personas: %w", err)
	}

	next := make(map[string]Persona, len(assistants)+len(r.static))
	for _, a := range assistants {
		p := Persona{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Voice:       a.Metadata[MetaVoice],
			AvatarURL:   a.Metadata[MetaAvatar],
			WebhookURL:  a.Metadata[MetaWebhook],
			AuthorID:    a.Metadata[MetaAuthorID],
		}
		if pc, ok := r.static[a.ID]; ok {
			p = overlay(p, pc)
		}
		next[a.ID] = p
	}
	for id, pc := range r.static {
		if _, ok := next[id]; !ok {
			next[id] = overlay(Persona{ID: id}, pc)
		}
	}

	r.mu.Lock()
	r.byID = next
	r.mu.Unlock()

	r.logger.Debug("personas refreshed", "count", len(next))
	return nil
}

// Get returns the persona with id.
func (r *Registry) Get(id string) (Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Lookup returns the known personas among ids, in order, and the ids that
// are unknown.
func (r *Registry) Lookup(ids []string) (found []Persona, missing []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			found = append(found, p)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}

// All returns every persona ordered by name.
func (r *Registry) All() []Persona {
	r.mu.RLock()
	out := make([]Persona, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetAvatar stores avatarURL in the assistant's metadata, keeping the other
// metadata keys, and updates the cached persona.
func (r *Registry) SetAvatar(ctx context.Context, id, avatarURL string) error {
	if r.api == nil {
		return fmt.Errorf("no assistant service configured")
	}

	assistants, err := r.api.ListAssistants(ctx)
	if err != nil {
		return fmt.Errorf("loading assistant %s: %w", id, err)
	}

	var metadata map[string]string
	found := false
	for _, a := range assistants {
		if a.ID == id {
			metadata, found = a.Metadata, true
			break
		}
	}
	if !found {
		return fmt.Errorf("assistant %s not found", id)
	}

	updated := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		updated[k] = v
	}
	updated[MetaAvatar] = avatarURL

	if err := r.api.UpdateAssistantMetadata(ctx, id, updated); err != nil {
		return err
	}

	r.mu.Lock()
	if p, ok := r.byID[id]; ok {
		p.AvatarURL = avatarURL
		r.byID[id] = p
	}
	r.mu.Unlock()
	return nil
}

func overlay(p Persona, pc config.PersonaConfig) Persona {
	if pc.Name != "" {
		p.Name = pc.Name
	}
	if pc.Voice != "" {
		p.Voice = pc.Voice
	}
	if pc.Avatar != "" {
		p.AvatarURL = pc.Avatar
	}
	if pc.Webhook != "" {
		p.WebhookURL = pc.Webhook
	}
	if pc.AuthorID != "" {
		p.AuthorID = pc.AuthorID
	}
	return p
}
