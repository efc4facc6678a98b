package domain

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("session already exists")
	ErrEmptyMessage      = errors.New("message text is empty")
	ErrTurnInProgress    = errors.New("a turn is already in progress for this session")
	ErrTurnDiscarded     = errors.New("the turn was discarded by a reset")
	ErrMissingCredential = errors.New("missing credential")
	ErrNodeNotFound      = errors.New("mind map node not found")
	ErrRootNode          = errors.New("the root node cannot be deleted")
	ErrVoiceUnavailable  = errors.New("voice output is unavailable")
)
