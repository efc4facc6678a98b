package conversation

import (
	"context"

	"github.com/PabloGalante/haven-agent/internal/app/mindmap"
	"github.com/PabloGalante/haven-agent/internal/domain"
)

// MindMapView is what the host needs to draw a session's mind map.
type MindMapView struct {
	Nodes    []domain.MindMapNode
	Edges    []domain.MindMapEdge
	Segments []mindmap.Segment
}

func (s *Service) MindMap(_ context.Context, id domain.SessionID) (*MindMapView, error) {
	g, err := s.graph(id)
	if err != nil {
		return nil, err
	}
	return &MindMapView{Nodes: g.Nodes(), Edges: g.Edges(), Segments: g.Segments()}, nil
}

// AddMindMapNode adds a child of parent. An empty parent means the root.
func (s *Service) AddMindMapNode(_ context.Context, id domain.SessionID, parent domain.NodeID) (domain.MindMapNode, error) {
	g, err := s.graph(id)
	if err != nil {
		return domain.MindMapNode{}, err
	}
	if parent == "" {
		parent = g.Root().ID
	}
	return g.AddChild(parent)
}

// MindMapPatch lists the node fields to change. Nil fields are kept.
type MindMapPatch struct {
	Text *string
	X    *float64
	Y    *float64
}

func (s *Service) UpdateMindMapNode(_ context.Context, id domain.SessionID, node domain.NodeID, p MindMapPatch) (domain.MindMapNode, error) {
	g, err := s.graph(id)
	if err != nil {
		return domain.MindMapNode{}, err
	}

	out, ok := g.Node(node)
	if !ok {
		return domain.MindMapNode{}, domain.ErrNodeNotFound
	}

	if p.Text != nil {
		if out, err = g.UpdateText(node, *p.Text); err != nil {
			return domain.MindMapNode{}, err
		}
	}
	if p.X != nil || p.Y != nil {
		x, y := out.X, out.Y
		if p.X != nil {
			x = *p.X
		}
		if p.Y != nil {
			y = *p.Y
		}
		if out, err = g.Move(node, x, y); err != nil {
			return domain.MindMapNode{}, err
		}
	}
	return out, nil
}

func (s *Service) DeleteMindMapNode(_ context.Context, id domain.SessionID, node domain.NodeID) error {
	g, err := s.graph(id)
	if err != nil {
		return err
	}
	return g.Delete(node)
}

func (s *Service) graph(id domain.SessionID) (*mindmap.Graph, error) {
	_, sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sess.mindMap, nil
}
