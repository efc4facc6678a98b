package mindmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

func newTestGraph() *Graph {
	g := NewGraph()
	n := 0
	g.newID = func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}
	g.jitter = func() float64 { return 25 }
	return g
}

func TestNewGraphHasRoot(t *testing.T) {
	g := NewGraph()

	root := g.Root()
	assert.True(t, root.IsRoot)
	assert.Equal(t, RootText, root.Text)
	assert.Equal(t, 400.0, root.X)
	assert.Equal(t, 250.0, root.Y)
	assert.Len(t, g.Nodes(), 1)
	assert.Empty(t, g.Edges())
}

func TestAddChildPlacement(t *testing.T) {
	g := newTestGraph()
	root := g.Root()

	child, err := g.AddChild(root.ID)
	require.NoError(t, err)
	assert.Equal(t, NewNodeText, child.Text)
	assert.Equal(t, root.X+150, child.X)
	assert.Equal(t, root.Y+25, child.Y)
	assert.False(t, child.IsRoot)

	assert.Equal(t, []domain.MindMapEdge{{From: root.ID, To: child.ID}}, g.Edges())

	_, err = g.AddChild("nope")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestDefaultJitterStaysInRange(t *testing.T) {
	g := NewGraph()
	root := g.Root()
	for i := 0; i < 50; i++ {
		c, err := g.AddChild(root.ID)
		require.NoError(t, err)
		assert.InDelta(t, root.Y, c.Y, 50)
	}
}

func TestUpdateAndMove(t *testing.T) {
	g := newTestGraph()
	child, err := g.AddChild(g.Root().ID)
	require.NoError(t, err)

	updated, err := g.UpdateText(child.ID, "Work")
	require.NoError(t, err)
	assert.Equal(t, "Work", updated.Text)

	moved, err := g.Move(child.ID, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, 10.0, moved.X)
	assert.Equal(t, 20.0, moved.Y)

	got, ok := g.Node(child.ID)
	require.True(t, ok)
	assert.Equal(t, moved, got)
	_, ok = g.Node("ghost")
	assert.False(t, ok)

	_, err = g.UpdateText("ghost", "x")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	_, err = g.Move("ghost", 0, 0)
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestDeleteLeavesDanglingEdgesUnrendered(t *testing.T) {
	g := newTestGraph()
	root := g.Root()
	a, err := g.AddChild(root.ID)
	require.NoError(t, err)
	b, err := g.AddChild(a.ID)
	require.NoError(t, err)

	require.Len(t, g.Segments(), 2)

	require.NoError(t, g.Delete(a.ID))

	assert.Len(t, g.Edges(), 2)
	assert.Empty(t, g.Segments())
	assert.Len(t, g.Nodes(), 2)

	// b is still reachable and editable
	_, err = g.UpdateText(b.ID, "still here")
	require.NoError(t, err)

	assert.ErrorIs(t, g.Delete(a.ID), domain.ErrNodeNotFound)
	assert.ErrorIs(t, g.Delete(root.ID), domain.ErrRootNode)
}

func TestCurvePath(t *testing.T) {
	assert.Equal(t, "M 400 250 C 475 250, 475 300, 550 300", CurvePath(400, 250, 550, 300))
}

func TestSegmentPathUsesNodeAnchors(t *testing.T) {
	g := newTestGraph()
	root := g.Root()
	_, err := g.AddChild(root.ID)
	require.NoError(t, err)

	segs := g.Segments()
	require.Len(t, segs, 1)
	// root (400,250) -> child (550,275)
	assert.Equal(t, "M 460 270 C 505 270, 505 295, 550 295", segs[0].Path)
}
