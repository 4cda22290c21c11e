package philosopher

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPhilosopher is returned when a lookup names an id that is not in the catalog.
var ErrUnknownPhilosopher = errors.New("unknown philosopher")

//go:embed philosophers.yaml
var defaultCatalogYAML []byte

// Philosopher is a persona that takes part in a discussion.
type Philosopher struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`                 // Display name used as the speaker label
	Description  string `yaml:"description" json:"description"`   // One-line blurb for listings
	Era          string `yaml:"era" json:"era"`                   // e.g. "Ancient Greece", "19th Century"
	Nationality  string `yaml:"nationality" json:"nationality"`
	SystemPrompt string `yaml:"systemPrompt" json:"systemPrompt"` // Sent verbatim as the LLM system prompt
}

type catalogFile struct {
	Philosophers []Philosopher `yaml:"philosophers"`
}

// Catalog is an immutable, ordered set of philosophers.
type Catalog struct {
	ordered []Philosopher
	byID    map[string]int
}

// DefaultCatalog returns the built-in persona set.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded philosopher catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a YAML catalog from path. An empty path yields the built-in set.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read philosopher catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse philosopher catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Philosophers) == 0 {
		return nil, errors.New("catalog has no philosophers")
	}

	c := &Catalog{byID: make(map[string]int, len(f.Philosophers))}
	for i, p := range f.Philosophers {
		p.ID = strings.TrimSpace(p.ID)
		p.Name = strings.TrimSpace(p.Name)
		p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("philosopher %d: missing id", i)
		case p.Name == "":
			return nil, fmt.Errorf("philosopher %q: missing name", p.ID)
		case p.SystemPrompt == "":
			return nil, fmt.Errorf("philosopher %q: missing system prompt", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate philosopher id %q", p.ID)
		}
		c.byID[p.ID] = len(c.ordered)
		c.ordered = append(c.ordered, p)
	}
	return c, nil
}

// All returns every philosopher in catalog order.
func (c *Catalog) All() []Philosopher {
	out := make([]Philosopher, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// IDs returns the catalog ids in order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.ordered))
	for i, p := range c.ordered {
		ids[i] = p.ID
	}
	return ids
}

func (c *Catalog) Get(id string) (Philosopher, error) {
	i, ok := c.byID[id]
	if !ok {
		return Philosopher{}, fmt.Errorf("%w: %q", ErrUnknownPhilosopher, id)
	}
	return c.ordered[i], nil
}

// Resolve looks up ids in the order given. The first unknown id fails the whole call.
func (c *Catalog) Resolve(ids []string) ([]Philosopher, error) {
	out := make([]Philosopher, 0, len(ids))
	for _, id := range ids {
		p, err := c.Get(strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FindByName matches a display name case-insensitively.
func (c *Catalog) FindByName(name string) (Philosopher, error) {
	name = strings.TrimSpace(name)
	for _, p := range c.ordered {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Philosopher{}, fmt.Errorf("%w: no philosopher named %q", ErrUnknownPhilosopher, name)
}

func (c *Catalog) ByEra(era string) []Philosopher {
	var out []Philosopher
	for _, p := range c.ordered {
		if strings.EqualFold(p.Era, era) {
			out = append(out, p)
		}
	}
	return out
}

// Search returns philosophers whose name, description, era or nationality contains query.
func (c *Catalog) Search(query string) []Philosopher {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Philosopher
	for _, p := range c.ordered {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) ||
			strings.Contains(strings.ToLower(p.Era), q) ||
			strings.Contains(strings.ToLower(p.Nationality), q) {
			out = append(out, p)
		}
	}
	return out
}
