package session

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"scriv.town/metrics"
	"scriv.town/store"
)

// Manager is what the transport adapter talks to. It owns the registry and
// the shared collaborators every session needs.
type Manager struct {
	registry *Registry
	open     OpenBridge
	sink     store.Sink
	emitter  Emitter
	logger   *log.Logger
}

func NewManager(
	open OpenBridge,
	sink store.Sink,
	emitter Emitter,
	logger *log.Logger,
) *Manager {
	return &Manager{
		registry: NewRegistry(),
		open:     open,
		sink:     sink,
		emitter:  emitter,
		logger:   logger,
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start creates and starts a session for a connection. Fails with
// ErrAlreadyActive when the connection already has one, and with
// ErrSessionStartFailed when the recognition stream cannot be opened.
func (m *Manager) Start(ctx context.Context, connID, language string) (*Session, error) {
	if language == "" {
		language = "en-US"
	}

	s := &Session{
		ID:        connID,
		Language:  language,
		CreatedAt: time.Now(),
		state:     StateIdle,
		pumpDone:  make(chan struct{}),
		registry:  m.registry,
		sink:      m.sink,
		emitter:   m.emitter,
		logger:    m.logger,
	}

	if err := m.registry.Add(connID, s); err != nil {
		return nil, err
	}

	if err := s.start(ctx, m.open); err != nil {
		return nil, err
	}

	metrics.SessionsStarted.Inc()
	metrics.ActiveSessions.Set(float64(m.registry.Len()))
	return s, nil
}

// Frame routes one audio frame to the connection's session.
func (m *Manager) Frame(connID string, frame []byte) error {
	s, ok := m.registry.Get(connID)
	if !ok {
		return ErrSessionNotActive
	}

	if err := s.HandleFrame(frame); err != nil {
		return err
	}

	metrics.FramesReceived.Inc()
	metrics.AudioBytesReceived.Add(float64(len(frame)))
	return nil
}

// Stop tears down the connection's session on an explicit stop command.
func (m *Manager) Stop(ctx context.Context, connID string) error {
	s, ok := m.registry.Get(connID)
	if !ok {
		return ErrSessionNotActive
	}

	err := s.Stop(ctx)
	metrics.ActiveSessions.Set(float64(m.registry.Len()))
	return err
}

// Disconnect tears down the connection's session, if any, after the
// transport dropped. Safe to call for connections that never started one,
// and safe to call twice.
func (m *Manager) Disconnect(ctx context.Context, connID string) {
	s, ok := m.registry.Get(connID)
	if !ok {
		return
	}

	s.Disconnect(ctx)
	metrics.ActiveSessions.Set(float64(m.registry.Len()))
}
