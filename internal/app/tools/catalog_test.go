package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

func defaultCatalogT(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestDefaultCatalogContents(t *testing.T) {
	c := defaultCatalogT(t)

	assert.Len(t, c.Games(), 5)
	assert.Len(t, c.Tools(), 2)
	assert.Len(t, c.Categories(), 5)

	g, ok := c.GameForCategory("Depression, Anger Issues")
	require.True(t, ok)
	assert.Equal(t, "Dragon Flyer", g.Name)

	g, ok = c.GameForCategory("stress + overthinking + anxiety")
	require.True(t, ok)
	assert.Equal(t, "Crystal Race", g.Name)
}

func TestGameLookupIsLenient(t *testing.T) {
	c := defaultCatalogT(t)

	for _, name := range []string{"Magic Paint", "MagicPaint", "magic-paint", " MAGIC paint "} {
		g, ok := c.Game(name)
		require.True(t, ok, name)
		assert.Equal(t, "Magic Paint", g.Name)
	}

	_, ok := c.Game("Tetris")
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	c := defaultCatalogT(t)

	tests := []struct {
		name string
		in   domain.ThemeClassification
		want domain.PendingSuggestion
		ok   bool
	}{
		{
			name: "specificity opens the visualizer",
			in:   domain.ThemeClassification{Theme: domain.ThemeSpecificity},
			want: domain.PendingSuggestion{Kind: domain.KindMode, Target: "visualizer"},
			ok:   true,
		},
		{
			name: "complexity opens the mind map",
			in:   domain.ThemeClassification{Theme: domain.ThemeComplexity},
			want: domain.PendingSuggestion{Kind: domain.KindMode, Target: "mind_map"},
			ok:   true,
		},
		{
			name: "simplicity with game",
			in:   domain.ThemeClassification{Theme: domain.ThemeSimplicity, TargetGame: "StarCatcher"},
			want: domain.PendingSuggestion{Kind: domain.KindGame, Target: "Star Catcher"},
			ok:   true,
		},
		{
			name: "simplicity without game",
			in:   domain.ThemeClassification{Theme: domain.ThemeSimplicity},
		},
		{
			name: "unclear",
			in:   domain.ThemeClassification{Theme: domain.ThemeUnclear},
		},
		{
			name: "failed classification",
			in:   domain.ThemeClassification{Theme: domain.ThemeNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Resolve(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDisplayName(t *testing.T) {
	c := defaultCatalogT(t)

	assert.Equal(t, "Mind Map", c.DisplayName(domain.PendingSuggestion{Kind: domain.KindMode, Target: "mind_map"}))
	assert.Equal(t, "Glitter Maze", c.DisplayName(domain.PendingSuggestion{Kind: domain.KindGame, Target: "Glitter Maze"}))
}

func TestParseRejectsBrokenCatalogs(t *testing.T) {
	_, err := Parse(`
[[games]]
name = "A"
[[categories]]
label = "x"
game = "B"
`)
	assert.Error(t, err)

	_, err = Parse(`
[[games]]
name = "A"
[[games]]
name = "a"
`)
	assert.Error(t, err)

	_, err = Parse(`
[[tools]]
name = "Visualizer"
`)
	assert.Error(t, err)

	_, err = Parse(`not toml = = =`)
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[games]]
name = "Breathing Bubbles"
[[categories]]
label = "Panic"
game = "Breathing Bubbles"
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	g, ok := c.GameForCategory("panic")
	require.True(t, ok)
	assert.Equal(t, "Breathing Bubbles", g.Name)

	_, ok = c.ToolForTheme(domain.ThemeSpecificity)
	assert.False(t, ok)
}
