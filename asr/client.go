package asr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	DefaultBaseURL          = "https://asr.api.scriv.town/v2"
	DefaultWebSocketBaseURL = "wss://rt.asr.api.scriv.town/v2"

	// How long Close waits for trailing transcript events after
	// signalling end-of-stream before it force-closes the socket.
	DefaultDrainTimeout = 5 * time.Second
)

var (
	// ErrUpstreamUnavailable means the recognition service could not be
	// reached or refused the stream; the session never becomes active.
	ErrUpstreamUnavailable = errors.New("recognition service unavailable")

	// ErrStreamClosed means audio was submitted after the stream ended.
	ErrStreamClosed = errors.New("recognition stream closed")

	// ErrDrainTimeout means the service did not finish its event feed
	// within the drain window. Prior events and buffered audio are still
	// valid; the socket has been force-closed.
	ErrDrainTimeout = errors.New("timed out draining recognition stream")
)

// Client talks to the streaming recognition service: realtime duplex
// streams over websocket, batch jobs over HTTPS.
type Client struct {
	APIKey           string
	BaseURL          string
	WebSocketBaseURL string
	HTTPClient       *http.Client
	DrainTimeout     time.Duration

	logger *log.Logger
}

func NewClient(apiKey string, logger *log.Logger) *Client {
	return &Client{
		APIKey:           apiKey,
		BaseURL:          DefaultBaseURL,
		WebSocketBaseURL: DefaultWebSocketBaseURL,
		HTTPClient:       &http.Client{},
		DrainTimeout:     DefaultDrainTimeout,
		logger:           logger,
	}
}

// StreamConfig selects language and audio format for one realtime stream.
type StreamConfig struct {
	Language   string
	SampleRate int
	Encoding   string
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Encoding == "" {
		c.Encoding = "pcm_s16le"
	}
	return c
}

// Event is one recognition result. Partial events may be revised by later
// events; a final event will not be.
type Event struct {
	Text    string
	IsFinal bool
}

// Stream is one live recognition stream. Send and Events consumption may
// proceed concurrently; neither blocks the other.
type Stream struct {
	conn   *websocket.Conn
	logger *log.Logger

	events     chan Event
	readerDone chan struct{}
	cancel     chan struct{}

	writeMu sync.Mutex
	seqNo   int
	ended   bool

	closeOnce sync.Once
	closeErr  error

	drainTimeout time.Duration
}

// OpenStream dials the realtime endpoint and starts recognition. The
// returned stream's event feed runs until the upstream feed ends or the
// stream is closed.
func (c *Client) OpenStream(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	cfg = cfg.withDefaults()

	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))

	url := fmt.Sprintf("%s/%s", c.WebSocketBaseURL, cfg.Language)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	start := startRecognitionMessage{
		Message: msgStartRecognition,
		AudioFormat: audioFormat{
			Type:       "raw",
			Encoding:   cfg.Encoding,
			SampleRate: cfg.SampleRate,
		},
		TranscriptionConfig: transcriptionConfig{
			Language:       cfg.Language,
			EnablePartials: true,
		},
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: start recognition: %v", ErrUpstreamUnavailable, err)
	}

	s := &Stream{
		conn:         conn,
		logger:       c.logger,
		events:       make(chan Event),
		readerDone:   make(chan struct{}),
		cancel:       make(chan struct{}),
		drainTimeout: c.DrainTimeout,
	}

	go s.readLoop()

	return s, nil
}

// Events yields recognition events in the order the service emitted them.
// The channel is closed when the upstream feed ends.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Send submits one audio frame. Fails with ErrStreamClosed once the stream
// has ended.
func (s *Stream) Send(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.ended {
		return ErrStreamClosed
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	s.seqNo++
	return nil
}

// Close signals end-of-stream and waits for the service to finish its event
// feed, bounded by the drain timeout. It is idempotent and safe to call at
// any point after OpenStream, including after a read error. A drain timeout
// is reported as ErrDrainTimeout; events received before it are unaffected.
func (s *Stream) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.ended = true
		end := endOfStreamMessage{Message: msgEndOfStream, LastSeqNo: s.seqNo}
		err := s.conn.WriteJSON(end)
		s.writeMu.Unlock()

		if err != nil {
			// The socket is already dead; the reader will notice.
			s.logger.Debug("end of stream write failed", "error", err)
		}

		select {
		case <-s.readerDone:
		case <-time.After(s.drainTimeout):
			s.closeErr = ErrDrainTimeout
		case <-ctx.Done():
			s.closeErr = ctx.Err()
		}

		close(s.cancel)
		s.conn.Close()
	})
	return s.closeErr
}

func (s *Stream) readLoop() {
	defer close(s.readerDone)
	defer close(s.events)

	for {
		var msg serverMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("recognition socket closed", "error", err)
			}
			return
		}

		switch msg.Message {
		case msgAddPartialTranscript, msgAddTranscript:
			text := msg.Metadata.Transcript
			if text == "" {
				continue
			}
			ev := Event{Text: text, IsFinal: msg.Message == msgAddTranscript}
			select {
			case s.events <- ev:
			case <-s.cancel:
				return
			}
		case msgEndOfTranscript:
			return
		case msgError:
			s.logger.Error("recognition error",
				"type", msg.Type, "reason", msg.Reason)
			return
		case msgRecognitionStarted, msgAudioAdded, msgInfo, msgWarning:
			// Flow control and diagnostics; nothing to surface.
		default:
			s.logger.Warn("unhandled recognition message", "message", msg.Message)
		}
	}
}
