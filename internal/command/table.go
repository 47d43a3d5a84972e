// Package command turns noisy voice transcripts into storefront actions.
package command

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/voicecart/internal/domain"
)

//go:embed commands.yaml
var defaultTable []byte

// Action names used in the table file.
const (
	actionRespond  = "respond"
	actionSearch   = "search"
	actionNavigate = "navigate"
)

// termPlaceholder is replaced by the search term in a search confirmation.
const termPlaceholder = "{term}"

// Table is the editable command registry: categories in priority order,
// search prefixes, and phonetic confusion groups (canonical token to the
// words commonly heard in its place).
type Table struct {
	SearchPrefixes []string            `yaml:"search_prefixes"`
	Confusions     map[string][]string `yaml:"confusions"`
	Categories     []Category          `yaml:"categories"`
}

// Category is one command family.
type Category struct {
	Name         string   `yaml:"name"`
	Action       string   `yaml:"action"`
	Path         string   `yaml:"path,omitempty"`
	Text         string   `yaml:"text,omitempty"`
	Confirmation string   `yaml:"confirmation,omitempty"`
	Phrases      []string `yaml:"phrases"`
}

// DefaultTable returns the built-in command table.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultTable)
}

// LoadTable reads a table file. An empty path yields the built-in table.
func LoadTable(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading command table: %w", err)
	}
	t, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseTable decodes and validates a YAML table.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing command table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that every category can produce its action.
func (t *Table) Validate() error {
	if len(t.Categories) == 0 {
		return errors.New("command table has no categories")
	}
	seen := make(map[string]bool, len(t.Categories))
	for i, c := range t.Categories {
		if c.Name == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = true

		if len(c.Phrases) == 0 {
			return fmt.Errorf("category %q has no phrases", c.Name)
		}
		switch c.Action {
		case actionRespond:
			if c.Text == "" {
				return fmt.Errorf("respond category %q has no text", c.Name)
			}
		case actionNavigate:
			if c.Path == "" {
				return fmt.Errorf("navigate category %q has no path", c.Name)
			}
		case actionSearch:
			if len(t.SearchPrefixes) == 0 {
				return fmt.Errorf("search category %q needs search_prefixes", c.Name)
			}
		default:
			return fmt.Errorf("category %q: unknown action %q", c.Name, c.Action)
		}
	}
	return nil
}

// actionFor builds the action of a matched category.
func (c Category) actionFor(term string) domain.Action {
	switch c.Action {
	case actionNavigate:
		return domain.Navigate(c.Path, c.Confirmation)
	case actionSearch:
		if term == "" {
			if c.Text == "" {
				return domain.Respond("What would you like to search for?")
			}
			return domain.Respond(c.Text)
		}
		confirm := c.Confirmation
		if confirm == "" {
			confirm = "Searching for " + termPlaceholder
		}
		return domain.Search(term, strings.ReplaceAll(confirm, termPlaceholder, term))
	default:
		return domain.Respond(c.Text)
	}
}
