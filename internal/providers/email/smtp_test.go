package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	body, err := Render("product_approved", map[string]any{
		"Uploader":    "alice",
		"ProductName": "Bridge <model>",
		"ImageURL":    "http://files/api/files/download/1",
		"Comment":     "",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Bridge &lt;model&gt;")
	assert.Contains(t, body, `href="http://files/api/files/download/1"`)
	assert.NotContains(t, body, "Reviewer comment")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}

func TestSMTPProvider_SendRequiresRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 25})
	assert.Error(t, p.Send(context.Background(), nil, "subject", "body"))
}

func TestRecordingProvider(t *testing.T) {
	p := &RecordingProvider{}
	require.NoError(t, p.SendTemplate(context.Background(), []string{"a@example.com"}, "Rejected", "product_rejected", map[string]any{
		"Uploader": "a", "ProductName": "p", "Comment": "blurry",
	}))

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "product_rejected", msgs[0].Template)
	assert.Contains(t, msgs[0].Body, "blurry")
}
