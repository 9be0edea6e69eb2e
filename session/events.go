package session

import (
	"context"

	"scriv.town/asr"
)

// TransportEvent is what a session hands back to the transport layer,
// tagged by the adapter with the owning connection's id.
type TransportEvent struct {
	Kind EventKind

	// EventStarted
	Language string

	// EventResult
	Text    string
	IsFinal bool

	// EventStopped; empty when archival failed or stored nothing.
	ArchiveRef string

	// EventError
	Message string
}

type EventKind string

const (
	EventStarted EventKind = "started"
	EventResult  EventKind = "result"
	EventStopped EventKind = "stopped"
	EventError   EventKind = "error"
)

// Emitter delivers events to one client connection. Implementations must
// tolerate emits after the connection is gone.
type Emitter interface {
	Emit(connID string, ev TransportEvent)
}

// Bridge is the session's view of one live recognition stream.
// *asr.Stream satisfies it.
type Bridge interface {
	Send(frame []byte) error
	Events() <-chan asr.Event
	Close(ctx context.Context) error
}

// OpenBridge opens a recognition stream for a starting session.
type OpenBridge func(ctx context.Context, cfg asr.StreamConfig) (Bridge, error)
