package persona

import (
	"strings"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/channels"
)

// Select returns the personas that should answer msg.
//
// With active personas, each one whose name appears in the message
// (case-insensitive) answers, except the persona that posted it. Without
// active personas, fallback answers messages from non-bot authors that
// contain trigger.
func Select(msg *channels.IncomingMessage, active []Persona, fallback Persona, trigger, channelWebhookID string) []Persona {
	content := strings.ToLower(msg.Content)

	if len(active) == 0 {
		if fallback.ID == "" || msg.AuthorBot || msg.FromSelf || trigger == "" {
			return nil
		}
		if strings.Contains(content, strings.ToLower(trigger)) {
			return []Persona{fallback}
		}
		return nil
	}

	var selected []Persona
	for _, p := range active {
		if p.Name == "" || p.Authored(msg, channelWebhookID) {
			continue
		}
		if strings.Contains(content, strings.ToLower(p.Name)) {
			selected = append(selected, p)
		}
	}
	return selected
}
