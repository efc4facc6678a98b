package domain

import "time"

type SessionID string
type MessageID string
type PlaybackID string

// Sender identifies who authored a transcript message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// SidebarMode is the host's active view. The orchestrator only uses it to
// build the context prefix, so any value is accepted.
type SidebarMode string

const (
	SidebarNone          SidebarMode = ""
	SidebarVisualizer    SidebarMode = "visualizer"
	SidebarMindMap       SidebarMode = "mind_map"
	SidebarGameSelection SidebarMode = "game_selection"
)

type Timestamp = time.Time
