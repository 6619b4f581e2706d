package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"support-chatbot-backend/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	ErrEmptyCatalog     = errors.New("catalog defines no intents")
	ErrNoFallbacks      = errors.New("catalog defines no fallback messages")
	ErrUnknownIntentRef = errors.New("catalog references an unknown intent")
)

// Catalog describes the intents the bot knows about: how to recognise them,
// how to answer them and which quick replies to offer.
type Catalog struct {
	DefaultIntent      models.MessageIntent     `yaml:"default_intent"`
	FallbackMessages   []string                 `yaml:"fallback_messages"`
	RelatedGroups      [][]models.MessageIntent `yaml:"related_groups"`
	SuggestionClusters []SuggestionCluster      `yaml:"suggestion_clusters"`
	Intents            []IntentSpec             `yaml:"intents"`
}

type IntentSpec struct {
	Name             models.MessageIntent `yaml:"name" json:"intent"`
	Description      string               `yaml:"description" json:"description"`
	Keywords         []string             `yaml:"keywords" json:"-"`
	Examples         []string             `yaml:"examples" json:"examples"`
	Template         string               `yaml:"template" json:"-"`
	Suggestions      []string             `yaml:"suggestions" json:"suggestions"`
	RelevantEntities []string             `yaml:"relevant_entities" json:"relevant_entities"`
}

type SuggestionCluster struct {
	Keywords    []string `yaml:"keywords"`
	Suggestions []string `yaml:"suggestions"`
}

// LoadCatalog reads the catalog at path, or the built-in one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	if len(c.Intents) == 0 {
		return ErrEmptyCatalog
	}
	if len(c.FallbackMessages) == 0 {
		return ErrNoFallbacks
	}
	if c.DefaultIntent == "" {
		c.DefaultIntent = c.Intents[len(c.Intents)-1].Name
	}
	if _, ok := c.Intent(c.DefaultIntent); !ok {
		return fmt.Errorf("%w: default intent %q", ErrUnknownIntentRef, c.DefaultIntent)
	}
	for i, group := range c.RelatedGroups {
		for _, name := range group {
			if _, ok := c.Intent(name); !ok {
				return fmt.Errorf("%w: related group %d names %q", ErrUnknownIntentRef, i, name)
			}
		}
	}
	return nil
}

// Intent looks up an intent by name.
func (c *Catalog) Intent(name models.MessageIntent) (IntentSpec, bool) {
	for _, spec := range c.Intents {
		if spec.Name == name {
			return spec, true
		}
	}
	return IntentSpec{}, false
}

// Related reports whether two different intents share a related group.
func (c *Catalog) Related(a, b models.MessageIntent) bool {
	if a == "" || b == "" || a == b {
		return false
	}
	for _, group := range c.RelatedGroups {
		if slices.Contains(group, a) && slices.Contains(group, b) {
			return true
		}
	}
	return false
}

// RelevantEntities returns the entity kinds that support the given intent.
func (c *Catalog) RelevantEntities(name models.MessageIntent) []string {
	spec, ok := c.Intent(name)
	if !ok {
		return nil
	}
	return spec.RelevantEntities
}
