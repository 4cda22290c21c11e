package philosopher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Equal(t, []string{
		"socrates", "nietzsche", "kant", "aristotle", "sartre",
		"confucius", "rousseau", "marcusAurelius", "laoTzu",
	}, c.IDs())

	for _, p := range c.All() {
		assert.NotEmpty(t, p.Name, p.ID)
		assert.NotEmpty(t, p.SystemPrompt, p.ID)
	}
}

func TestGetUnknownFails(t *testing.T) {
	c := DefaultCatalog()

	p, err := c.Get("socrates")
	require.NoError(t, err)
	assert.Equal(t, "Socrates", p.Name)

	_, err = c.Get("plato")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPhilosopher)
}

func TestResolve(t *testing.T) {
	c := DefaultCatalog()

	ps, err := c.Resolve([]string{"kant", " socrates"})
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "kant", ps[0].ID)
	assert.Equal(t, "socrates", ps[1].ID)

	_, err = c.Resolve([]string{"kant", "hume"})
	assert.ErrorIs(t, err, ErrUnknownPhilosopher)
}

func TestByEraAndSearch(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		name string
		got  []Philosopher
		want []string
	}{
		{"era exact", c.ByEra("ancient greece"), []string{"socrates", "aristotle"}},
		{"era none", c.ByEra("Renaissance"), nil},
		{"search nationality", c.Search("german"), []string{"nietzsche", "kant"}},
		{"search name", c.Search("TZU"), []string{"laoTzu"}},
		{"search description", c.Search("stoic"), []string{"marcusAurelius"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, p := range tt.got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestFindByName(t *testing.T) {
	c := DefaultCatalog()

	p, err := c.FindByName("immanuel kant")
	require.NoError(t, err)
	assert.Equal(t, "kant", p.ID)

	_, err = c.FindByName("Plato")
	assert.ErrorIs(t, err, ErrUnknownPhilosopher)
}

func TestParseCatalogValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "philosophers: []"},
		{"missing id", "philosophers:\n  - name: A\n    systemPrompt: x\n"},
		{"missing prompt", "philosophers:\n  - id: a\n    name: A\n"},
		{"duplicate", "philosophers:\n  - id: a\n    name: A\n    systemPrompt: x\n  - id: a\n    name: B\n    systemPrompt: y\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	doc := "philosophers:\n  - id: plato\n    name: Plato\n    era: Ancient Greece\n    systemPrompt: You are Plato.\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"plato"}, c.IDs())

	_, err = c.Get("socrates")
	assert.ErrorIs(t, err, ErrUnknownPhilosopher)
}
