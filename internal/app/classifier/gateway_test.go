package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/haven-agent/internal/app/tools"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

type fakeGenerator struct {
	reply   string
	err     error
	delay   time.Duration
	prompts []string
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func newGateway(t *testing.T, gen JSONGenerator, timeout time.Duration) *Gateway {
	t.Helper()
	catalog, err := tools.Default()
	require.NoError(t, err)
	return NewGateway(gen, catalog, timeout)
}

func TestClassifyTheme(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  domain.ThemeClassification
	}{
		{
			name:  "specificity",
			reply: `{"theme":"Specificity","targetMode":"visualizer","targetGame":null}`,
			want:  domain.ThemeClassification{Theme: domain.ThemeSpecificity, TargetMode: domain.TargetVisualizer},
		},
		{
			name:  "complexity ignores a stray game",
			reply: `{"theme":"Complexity","targetMode":"mind_map","targetGame":"Dragon Flyer"}`,
			want:  domain.ThemeClassification{Theme: domain.ThemeComplexity, TargetMode: domain.TargetMindMap},
		},
		{
			name:  "simplicity with game name",
			reply: `{"theme":"Simplicity","targetMode":"game_selection","targetGame":"DragonFlyer"}`,
			want: domain.ThemeClassification{
				Theme: domain.ThemeSimplicity, TargetMode: domain.TargetGameSelection, TargetGame: "Dragon Flyer",
			},
		},
		{
			name:  "simplicity resolved through the category",
			reply: `{"theme":"Simplicity","emotionCategory":"Grief, Stress, Anxiety","targetGame":null}`,
			want: domain.ThemeClassification{
				Theme: domain.ThemeSimplicity, TargetMode: domain.TargetGameSelection, TargetGame: "Magic Paint",
			},
		},
		{
			name:  "simplicity with unknown game",
			reply: `{"theme":"Simplicity","targetGame":"Solitaire"}`,
			want:  domain.ThemeClassification{Theme: domain.ThemeSimplicity, TargetMode: domain.TargetGameSelection},
		},
		{
			name:  "unclear",
			reply: `{"theme":"Unclear","targetMode":null,"targetGame":null}`,
			want:  domain.ThemeClassification{Theme: domain.ThemeUnclear},
		},
		{
			name:  "fenced json",
			reply: "```json\n{\"theme\":\"Complexity\"}\n```",
			want:  domain.ThemeClassification{Theme: domain.ThemeComplexity, TargetMode: domain.TargetMindMap},
		},
		{
			name:  "unknown label",
			reply: `{"theme":"Angry"}`,
			want:  domain.ThemeClassification{},
		},
		{
			name:  "not json",
			reply: `I think this is Specificity`,
			want:  domain.ThemeClassification{},
		},
		{
			name:  "empty",
			reply: ``,
			want:  domain.ThemeClassification{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t, &fakeGenerator{reply: tt.reply}, time.Second)
			assert.Equal(t, tt.want, g.ClassifyTheme(context.Background(), "some text"))
		})
	}
}

func TestClassifyThemePromptCarriesTextAndCategories(t *testing.T) {
	gen := &fakeGenerator{reply: `{"theme":"Unclear"}`}
	g := newGateway(t, gen, time.Second)

	g.ClassifyTheme(context.Background(), "my boss yelled at me")

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "my boss yelled at me")
	assert.Contains(t, gen.prompts[0], "Depression, Anger Issues")
	assert.Contains(t, gen.prompts[0], "Star Catcher")
}

func TestClassifyThemeFailuresYieldNone(t *testing.T) {
	g := newGateway(t, &fakeGenerator{err: errors.New("503 from upstream")}, time.Second)
	assert.Equal(t, domain.ThemeNone, g.ClassifyTheme(context.Background(), "hi").Theme)

	g = newGateway(t, nil, time.Second)
	assert.Equal(t, domain.ThemeNone, g.ClassifyTheme(context.Background(), "hi").Theme)
}

func TestClassifyThemeTimeoutYieldsNone(t *testing.T) {
	gen := &fakeGenerator{reply: `{"theme":"Specificity"}`, delay: time.Second}
	g := newGateway(t, gen, 20*time.Millisecond)

	start := time.Now()
	out := g.ClassifyTheme(context.Background(), "hi")

	assert.Equal(t, domain.ThemeNone, out.Theme)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestClassifyConfirmation(t *testing.T) {
	pending := domain.PendingSuggestion{Kind: domain.KindGame, Target: "Dragon Flyer"}

	gen := &fakeGenerator{reply: `{"confirmed": true}`}
	g := newGateway(t, gen, time.Second)
	ok, err := g.ClassifyConfirmation(context.Background(), "yes please", pending)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, gen.prompts, 1)
	assert.True(t, strings.Contains(gen.prompts[0], `the game "Dragon Flyer"`))
	assert.Contains(t, gen.prompts[0], "yes please")

	g = newGateway(t, &fakeGenerator{reply: `{"confirmed": false}`}, time.Second)
	ok, err = g.ClassifyConfirmation(context.Background(), "nah", pending)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassifyConfirmationNamesTheTool(t *testing.T) {
	gen := &fakeGenerator{reply: `{"confirmed": true}`}
	g := newGateway(t, gen, time.Second)

	_, err := g.ClassifyConfirmation(context.Background(), "ok", domain.PendingSuggestion{Kind: domain.KindMode, Target: "mind_map"})
	require.NoError(t, err)
	assert.Contains(t, gen.prompts[0], `the "Mind Map" tool`)
}

func TestClassifyConfirmationErrors(t *testing.T) {
	pending := domain.PendingSuggestion{Kind: domain.KindMode, Target: "visualizer"}

	g := newGateway(t, &fakeGenerator{err: errors.New("boom")}, time.Second)
	ok, err := g.ClassifyConfirmation(context.Background(), "yes", pending)
	assert.Error(t, err)
	assert.False(t, ok)

	g = newGateway(t, &fakeGenerator{reply: `{}`}, time.Second)
	ok, err = g.ClassifyConfirmation(context.Background(), "yes", pending)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.False(t, ok)

	g = newGateway(t, &fakeGenerator{reply: `{"confirmed": true}`, delay: time.Second}, 20*time.Millisecond)
	ok, err = g.ClassifyConfirmation(context.Background(), "yes", pending)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
}
