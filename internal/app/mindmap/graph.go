// Package mindmap keeps the node/edge graph behind the mind map view.
package mindmap

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/haven-agent/internal/domain"
)

const (
	RootText    = "Central Idea"
	NewNodeText = "New Node"

	rootX = 400
	rootY = 250

	childOffsetX = 150
	childJitterY = 50

	// edges leave a node from its right side and enter the next on its left
	anchorOutX = 60
	anchorY    = 20
)

// Segment is an edge whose both endpoints exist.
type Segment struct {
	From domain.MindMapNode `json:"from"`
	To   domain.MindMapNode `json:"to"`
	Path string             `json:"path"`
}

// Graph is safe for concurrent use. Edges may point at deleted nodes; those
// are kept but never rendered.
type Graph struct {
	mu     sync.RWMutex
	order  []domain.NodeID
	nodes  map[domain.NodeID]*domain.MindMapNode
	edges  []domain.MindMapEdge
	rootID domain.NodeID

	newID  func() string
	jitter func() float64
}

func NewGraph() *Graph {
	g := &Graph{
		nodes:  make(map[domain.NodeID]*domain.MindMapNode),
		newID:  uuid.NewString,
		jitter: func() float64 { return (rand.Float64() - 0.5) * 2 * childJitterY },
	}
	root := &domain.MindMapNode{
		ID:     domain.NodeID(g.newID()),
		Text:   RootText,
		X:      rootX,
		Y:      rootY,
		IsRoot: true,
	}
	g.rootID = root.ID
	g.nodes[root.ID] = root
	g.order = append(g.order, root.ID)
	return g
}

func (g *Graph) Root() domain.MindMapNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return *g.nodes[g.rootID]
}

func (g *Graph) Node(id domain.NodeID) (domain.MindMapNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return domain.MindMapNode{}, false
	}
	return *n, true
}

// AddChild places a new node to the right of parent and links them.
func (g *Graph) AddChild(parentID domain.NodeID) (domain.MindMapNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	parent, ok := g.nodes[parentID]
	if !ok {
		return domain.MindMapNode{}, fmt.Errorf("add child to %s: %w", parentID, domain.ErrNodeNotFound)
	}

	child := &domain.MindMapNode{
		ID:   domain.NodeID(g.newID()),
		Text: NewNodeText,
		X:    parent.X + childOffsetX,
		Y:    parent.Y + g.jitter(),
	}
	g.nodes[child.ID] = child
	g.order = append(g.order, child.ID)
	g.edges = append(g.edges, domain.MindMapEdge{From: parent.ID, To: child.ID})

	return *child, nil
}

func (g *Graph) UpdateText(id domain.NodeID, text string) (domain.MindMapNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return domain.MindMapNode{}, fmt.Errorf("update %s: %w", id, domain.ErrNodeNotFound)
	}
	n.Text = text
	return *n, nil
}

func (g *Graph) Move(id domain.NodeID, x, y float64) (domain.MindMapNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return domain.MindMapNode{}, fmt.Errorf("move %s: %w", id, domain.ErrNodeNotFound)
	}
	n.X, n.Y = x, y
	return *n, nil
}

// Delete removes a node. Its edges stay in place and become dangling.
func (g *Graph) Delete(id domain.NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id == g.rootID {
		return domain.ErrRootNode
	}
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, domain.ErrNodeNotFound)
	}
	delete(g.nodes, id)
	for i, nid := range g.order {
		if nid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// Nodes returns the nodes in creation order.
func (g *Graph) Nodes() []domain.MindMapNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.MindMapNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns every edge, dangling ones included.
func (g *Graph) Edges() []domain.MindMapEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]domain.MindMapEdge(nil), g.edges...)
}

// Segments returns the drawable edges with their curve paths.
func (g *Graph) Segments() []Segment {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Segment, 0, len(g.edges))
	for _, e := range g.edges {
		from, ok := g.nodes[e.From]
		if !ok {
			continue
		}
		to, ok := g.nodes[e.To]
		if !ok {
			continue
		}
		path := CurvePath(from.X+anchorOutX, from.Y+anchorY, to.X, to.Y+anchorY)
		out = append(out, Segment{From: *from, To: *to, Path: path})
	}
	return out
}

// CurvePath is an SVG cubic bezier that leaves and enters horizontally.
func CurvePath(sx, sy, ex, ey float64) string {
	mx := (sx + ex) / 2
	return fmt.Sprintf("M %g %g C %g %g, %g %g, %g %g", sx, sy, mx, sy, mx, ey, ex, ey)
}
