package domain

type NodeID string

type MindMapNode struct {
	ID     NodeID  `json:"id"`
	Text   string  `json:"text"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	IsRoot bool    `json:"is_root,omitempty"`
}

type MindMapEdge struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}
