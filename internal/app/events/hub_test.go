package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

func TestPublishReachesOnlyTheSession(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe("a")
	defer cancelA()
	b, cancelB := h.Subscribe("b")
	defer cancelB()

	h.Publish("a", domain.Event{Type: domain.EventActivate, Target: "mind_map"})

	require.Len(t, a, 1)
	assert.Empty(t, b)
	evt := <-a
	assert.Equal(t, "mind_map", evt.Target)
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	h := NewHub(2)
	ch, cancel := h.Subscribe("a")
	defer cancel()

	for _, target := range []string{"1", "2", "3"} {
		h.Publish("a", domain.Event{Type: domain.EventNotice, Text: target})
	}

	require.Len(t, ch, 2)
	assert.Equal(t, "2", (<-ch).Text)
	assert.Equal(t, "3", (<-ch).Text)
}

func TestCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("a")
	assert.Equal(t, 1, h.Subscribers("a"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers("a"))

	assert.NotPanics(t, func() { h.Publish("a", domain.Event{}) })
}

func TestCloseSession(t *testing.T) {
	h := NewHub(1)
	ch1, cancel1 := h.Subscribe("a")
	ch2, _ := h.Subscribe("a")

	h.CloseSession("a")
	cancel1()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)
}
