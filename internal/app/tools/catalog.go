package tools

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

//go:embed catalog.toml
var defaultCatalog string

// Tool is a sidebar view the agent can suggest for a theme.
type Tool struct {
	Name        string            `toml:"name"`
	Mode        domain.TargetMode `toml:"mode"`
	Theme       domain.Theme      `toml:"theme"`
	Description string            `toml:"description"`
}

type Game struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// Category maps an emotional category to the game that helps with it.
type Category struct {
	Label string `toml:"label"`
	Game  string `toml:"game"`
}

type catalogFile struct {
	Tools      []Tool     `toml:"tools"`
	Games      []Game     `toml:"games"`
	Categories []Category `toml:"categories"`
}

// Catalog is read-only after construction.
type Catalog struct {
	tools      []Tool
	games      []Game
	categories []Category

	gamesByKey map[string]Game
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	var f catalogFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog %s: %w", path, err)
	}
	return newCatalog(f)
}

// Parse decodes a catalog from TOML text.
func Parse(data string) (*Catalog, error) {
	var f catalogFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return newCatalog(f)
}

func newCatalog(f catalogFile) (*Catalog, error) {
	c := &Catalog{
		tools:      f.Tools,
		games:      f.Games,
		categories: f.Categories,
		gamesByKey: make(map[string]Game, len(f.Games)),
	}

	for _, g := range f.Games {
		key := normalize(g.Name)
		if key == "" {
			return nil, fmt.Errorf("catalog: game with empty name")
		}
		if _, dup := c.gamesByKey[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate game %q", g.Name)
		}
		c.gamesByKey[key] = g
	}

	for _, cat := range f.Categories {
		if _, ok := c.gamesByKey[normalize(cat.Game)]; !ok {
			return nil, fmt.Errorf("catalog: category %q points to unknown game %q", cat.Label, cat.Game)
		}
	}

	for _, t := range f.Tools {
		if domain.ParseTheme(string(t.Theme)) == domain.ThemeNone || t.Mode == domain.TargetNone {
			return nil, fmt.Errorf("catalog: tool %q needs a theme and a mode", t.Name)
		}
	}

	return c, nil
}

func (c *Catalog) Tools() []Tool { return append([]Tool(nil), c.tools...) }
func (c *Catalog) Games() []Game { return append([]Game(nil), c.games...) }
func (c *Catalog) Categories() []Category { return append([]Category(nil), c.categories...) }

// Game looks a game up by name, ignoring case, spaces and punctuation.
func (c *Catalog) Game(name string) (Game, bool) {
	g, ok := c.gamesByKey[normalize(name)]
	return g, ok
}

// GameForCategory returns the game mapped to an emotional category label.
func (c *Catalog) GameForCategory(label string) (Game, bool) {
	key := normalize(label)
	for _, cat := range c.categories {
		if normalize(cat.Label) == key {
			return c.Game(cat.Game)
		}
	}
	return Game{}, false
}

// ToolForTheme returns the tool suggested for a theme.
func (c *Catalog) ToolForTheme(theme domain.Theme) (Tool, bool) {
	for _, t := range c.tools {
		if t.Theme == theme {
			return t, true
		}
	}
	return Tool{}, false
}

// ToolForMode returns the tool that opens the given view.
func (c *Catalog) ToolForMode(mode domain.TargetMode) (Tool, bool) {
	for _, t := range c.tools {
		if t.Mode == mode {
			return t, true
		}
	}
	return Tool{}, false
}

// Resolve turns a classification into a suggestion. It reports false for
// unclear themes and for Simplicity without a known game.
func (c *Catalog) Resolve(cl domain.ThemeClassification) (domain.PendingSuggestion, bool) {
	switch cl.Theme {
	case domain.ThemeSpecificity, domain.ThemeComplexity:
		t, ok := c.ToolForTheme(cl.Theme)
		if !ok {
			return domain.PendingSuggestion{}, false
		}
		return domain.PendingSuggestion{Kind: domain.KindMode, Target: string(t.Mode)}, true
	case domain.ThemeSimplicity:
		g, ok := c.Game(cl.TargetGame)
		if !ok {
			return domain.PendingSuggestion{}, false
		}
		return domain.PendingSuggestion{Kind: domain.KindGame, Target: g.Name}, true
	default:
		return domain.PendingSuggestion{}, false
	}
}

// DisplayName is the human name of a suggestion target.
func (c *Catalog) DisplayName(p domain.PendingSuggestion) string {
	if p.Kind == domain.KindMode {
		if t, ok := c.ToolForMode(domain.TargetMode(p.Target)); ok {
			return t.Name
		}
	}
	return p.Target
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
