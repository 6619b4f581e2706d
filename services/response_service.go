package services

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"text/template"

	"support-chatbot-backend/config"
	"support-chatbot-backend/models"
)

// ResponseService renders the catalog reply template of an intent.
type ResponseService struct {
	catalog   *config.Catalog
	templates map[models.MessageIntent]*template.Template
}

// NewResponseService parses every intent template up front so that a broken
// catalog fails at startup.
func NewResponseService(catalog *config.Catalog) (*ResponseService, error) {
	templates := make(map[models.MessageIntent]*template.Template, len(catalog.Intents))
	for _, spec := range catalog.Intents {
		tmpl, err := template.New(string(spec.Name)).Option("missingkey=zero").Parse(spec.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template for intent %s: %w", spec.Name, err)
		}
		templates[spec.Name] = tmpl
	}
	return &ResponseService{catalog: catalog, templates: templates}, nil
}

// Generate renders the reply for intent. Entities from the message take
// precedence over those remembered by the session.
func (s *ResponseService) Generate(ctx context.Context, intent models.MessageIntent, entities map[string]string, conv *models.ConversationContext, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmpl, ok := s.templates[intent]
	if !ok {
		tmpl, ok = s.templates[s.catalog.DefaultIntent]
		if !ok {
			return "", fmt.Errorf("no template for intent %q", intent)
		}
	}

	data := map[string]string{}
	if conv != nil {
		maps.Copy(data, conv.Entities)
	}
	maps.Copy(data, entities)

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render response for intent %s: %w", intent, err)
	}
	return strings.TrimSpace(b.String()), nil
}
