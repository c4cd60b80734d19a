package notifications

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/tender-hub/backend/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// templateFiles lists every template the outbox accepts.
var templateFiles = map[string]struct{}{
	models.TemplateProfileUpdateSubmitted: {},
	models.TemplateProfileUpdateApproved:  {},
	models.TemplateProfileUpdateRejected:  {},
	models.TemplateInvitation:             {},
	models.TemplateWelcome:                {},
	models.TemplateAccountSuspended:       {},
}

type emailTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Templates renders notification emails from the embedded templates directory.
type Templates struct {
	byName map[string]emailTemplate
}

// LoadTemplates parses every known template. Variables referenced by a template are required.
func LoadTemplates() (*Templates, error) {
	t := &Templates{byName: make(map[string]emailTemplate, len(templateFiles))}
	for name := range templateFiles {
		subject, err := texttemplate.New(name+".subject").Option("missingkey=error").
			ParseFS(templateFS, "templates/"+name+".subject.txt")
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		body, err := htmltemplate.New(name+".html").Option("missingkey=error").
			ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", name, err)
		}
		t.byName[name] = emailTemplate{subject: subject.Lookup(name + ".subject.txt"), body: body.Lookup(name + ".html")}
	}
	return t, nil
}

// Render returns the subject and HTML body for template name.
func (t *Templates) Render(name string, vars map[string]string) (subject, body string, err error) {
	tpl, ok := t.byName[name]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", name)
	}
	if vars == nil {
		vars = map[string]string{}
	}
	var sb, bb bytes.Buffer
	if err := tpl.subject.Execute(&sb, vars); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := tpl.body.Execute(&bb, vars); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), bb.String(), nil
}
