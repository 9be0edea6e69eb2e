package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"scriv.town/asr"
	"scriv.town/metrics"
	"scriv.town/pcm"
	"scriv.town/store"
)

var (
	// ErrAlreadyActive means the connection already has a live session.
	ErrAlreadyActive = errors.New("session already active for connection")

	// ErrSessionNotActive means a frame or stop arrived before the session
	// reached its active state.
	ErrSessionNotActive = errors.New("session not active")

	// ErrSessionClosed means the session has been torn down.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionStartFailed means the recognition stream could not be
	// opened; the session went straight to closed.
	ErrSessionStartFailed = errors.New("session start failed")
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session binds one client connection to one recognition stream and one
// audio buffer. Two flows run while it is active: inbound frames are fed to
// the buffer and the bridge, and an event pump forwards recognition events
// to the transport. Both stop at teardown, which also archives the audio.
type Session struct {
	ID        string
	Language  string
	CreatedAt time.Time

	mu     sync.Mutex
	state  State
	bridge Bridge
	buffer *pcm.Buffer

	pumpDone chan struct{}

	registry *Registry
	sink     store.Sink
	emitter  Emitter
	logger   *log.Logger
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// start opens the bridge and launches the event pump. On open failure the
// session transitions directly to closed and its registry entry is removed.
func (s *Session) start(ctx context.Context, open OpenBridge) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		if state == StateClosed {
			return ErrSessionClosed
		}
		return ErrAlreadyActive
	}
	s.state = StateStarting
	s.mu.Unlock()

	bridge, err := open(ctx, asr.StreamConfig{Language: s.Language})
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		s.registry.Remove(s.ID)
		s.logger.Error("failed to open recognition stream",
			"session", s.ID, "language", s.Language, "error", err)
		return fmt.Errorf("%w: %v", ErrSessionStartFailed, err)
	}

	s.mu.Lock()
	if s.state != StateStarting {
		// Disconnected while the stream was being opened.
		s.mu.Unlock()
		bridge.Close(ctx)
		return ErrSessionClosed
	}
	s.bridge = bridge
	s.buffer = pcm.NewBuffer()
	s.state = StateActive
	s.mu.Unlock()

	s.logger.Info("session started", "session", s.ID, "language", s.Language)
	s.emitter.Emit(s.ID, TransportEvent{Kind: EventStarted, Language: s.Language})

	go s.pumpEvents()
	return nil
}

// pumpEvents forwards recognition events to the transport in the order the
// bridge emitted them. It exits when the bridge's event feed ends, which
// teardown forces via the bridge's close sequence.
func (s *Session) pumpEvents() {
	defer close(s.pumpDone)

	for ev := range s.bridge.Events() {
		s.emitter.Emit(s.ID, TransportEvent{
			Kind:    EventResult,
			Text:    ev.Text,
			IsFinal: ev.IsFinal,
		})
		metrics.RecognitionEvents.Inc()
	}
}

// HandleFrame buffers one audio frame and submits it to the bridge. Both
// sinks are attempted even if one fails; a failure in either is reported
// but does not stop the session.
func (s *Session) HandleFrame(frame []byte) error {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		if state == StateClosed {
			return ErrSessionClosed
		}
		return ErrSessionNotActive
	}
	buffer, bridge := s.buffer, s.bridge
	s.mu.Unlock()

	appendErr := buffer.Append(frame)
	sendErr := bridge.Send(frame)

	if sendErr != nil {
		s.logger.Warn("frame submission failed",
			"session", s.ID, "error", sendErr)
	}

	return errors.Join(appendErr, sendErr)
}

// Stop tears the session down on an explicit stop command.
func (s *Session) Stop(ctx context.Context) error {
	return s.teardown(ctx, "stop")
}

// Disconnect tears the session down after the transport went away. It is
// a no-op if teardown already ran.
func (s *Session) Disconnect(ctx context.Context) {
	err := s.teardown(ctx, "disconnect")
	if err != nil && !errors.Is(err, ErrSessionClosed) {
		s.logger.Warn("teardown on disconnect", "session", s.ID, "error", err)
	}
}

// teardown drives Active (or Starting, on disconnect races) to Closed:
// stop accepting frames, close the bridge and wait out its drain, archive
// the buffered audio, emit the final event, drop the registry entry.
// Persistence failure does not block any of the later steps.
func (s *Session) teardown(ctx context.Context, reason string) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case StateStopping:
		s.mu.Unlock()
		return ErrSessionClosed
	case StateIdle, StateStarting:
		// Disconnect before the bridge was ever opened.
		s.state = StateClosed
		s.mu.Unlock()
		s.registry.Remove(s.ID)
		return nil
	}
	s.state = StateStopping
	bridge, buffer := s.bridge, s.buffer
	s.mu.Unlock()

	if err := bridge.Close(ctx); err != nil {
		// Drain timeout or a dead socket; audio and prior events stand.
		s.logger.Warn("bridge close", "session", s.ID, "error", err)
	}
	<-s.pumpDone

	blob, err := buffer.Drain()
	if err != nil {
		s.logger.Error("drain audio buffer", "session", s.ID, "error", err)
	}

	var ref string
	if len(blob) > 0 {
		metrics.ArchivedBytes.Add(float64(len(blob)))
		ref, err = s.sink.Put(ctx, s.archiveKey(), blob)
		if err != nil {
			metrics.ArchiveFailures.Inc()
			s.logger.Error("archive audio", "session", s.ID,
				"bytes", len(blob), "error", err)
			ref = ""
		} else {
			s.logger.Info("archived audio", "session", s.ID,
				"bytes", len(blob), "ref", ref)
		}
	}

	s.emitter.Emit(s.ID, TransportEvent{Kind: EventStopped, ArchiveRef: ref})

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.registry.Remove(s.ID)

	s.logger.Info("session closed", "session", s.ID, "reason", reason)
	return nil
}

// archiveKey is a date-partitioned path for the archived blob.
func (s *Session) archiveKey() string {
	return fmt.Sprintf("audio/%s/%s.pcm",
		s.CreatedAt.UTC().Format("2006/01/02"), s.ID)
}
