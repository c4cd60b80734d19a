package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tender-hub/backend/internal/models"
)

func TestLoadTemplatesCoversEveryTemplate(t *testing.T) {
	tpls, err := LoadTemplates()
	require.NoError(t, err)
	assert.Len(t, tpls.byName, len(templateFiles))
}

func TestRenderEscapesBodyButNotSubject(t *testing.T) {
	tpls, err := LoadTemplates()
	require.NoError(t, err)

	subject, body, err := tpls.Render(models.TemplateInvitation, map[string]string{
		"inviter_name": "Naledi O'Neil",
		"role":         "manager",
		"invite_url":   "https://hub.example/invitations/accept?token=abc",
		"expires_at":   "2025-03-12 10:00 UTC",
	})
	require.NoError(t, err)
	assert.Equal(t, "Naledi O'Neil invited you to Tender Hub", subject)
	assert.Contains(t, body, "Naledi O&#39;Neil")
	assert.Contains(t, body, `href="https://hub.example/invitations/accept?token=abc"`)
}

func TestRenderRequiresVariables(t *testing.T) {
	tpls, err := LoadTemplates()
	require.NoError(t, err)

	_, _, err = tpls.Render(models.TemplateProfileUpdateRejected, map[string]string{"name": "Sipho"})
	assert.Error(t, err)

	_, _, err = tpls.Render("nope", nil)
	assert.Error(t, err)
}
