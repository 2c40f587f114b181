package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookURL(t *testing.T) {
	id, token, err := ParseWebhookURL("https://discord.com/api/webhooks/123456/abc-DEF_789")
	require.NoError(t, err)
	assert.Equal(t, "123456", id)
	assert.Equal(t, "abc-DEF_789", token)

	id, _, err = ParseWebhookURL("https://discord.com/api/v10/webhooks/42/tok/")
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	for _, bad := range []string{"", "https://discord.com/api/webhooks/123", "://nope"} {
		_, _, err := ParseWebhookURL(bad)
		assert.Error(t, err, bad)
	}
}
