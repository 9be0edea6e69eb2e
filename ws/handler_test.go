package ws

import (
	"context"
	"encoding/base64"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"scriv.town/asr"
	"scriv.town/session"
)

type fakeBridge struct {
	mu     sync.Mutex
	events chan asr.Event
	sent   [][]byte
	closed bool
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{events: make(chan asr.Event, 16)}
}

func (b *fakeBridge) Send(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, append([]byte(nil), frame...))
	return nil
}

func (b *fakeBridge) Events() <-chan asr.Event { return b.events }

func (b *fakeBridge) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

type fakeSink struct {
	mu   sync.Mutex
	blob []byte
}

func (s *fakeSink) Put(ctx context.Context, key string, blob []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = append([]byte(nil), blob...)
	return "pg://audio_archive/" + key, nil
}

func dialTestServer(t *testing.T, bridge *fakeBridge, sink *fakeSink) (*websocket.Conn, func()) {
	t.Helper()
	logger := log.New(io.Discard)

	h := NewHandler(logger)
	h.Manager = session.NewManager(
		func(ctx context.Context, cfg asr.StreamConfig) (session.Bridge, error) {
			return bridge, nil
		},
		sink, h, logger,
	)

	server := httptest.NewServer(h)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		server.Close()
		t.Fatalf("dial: %v", err)
	}

	return conn, func() {
		conn.Close()
		server.Close()
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg serverMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return msg
}

func TestRealtimeSessionOverWebSocket(t *testing.T) {
	bridge := newFakeBridge()
	sink := &fakeSink{}
	conn, cleanup := dialTestServer(t, bridge, sink)
	defer cleanup()

	if ev := readEvent(t, conn); ev.Event != "connected" {
		t.Fatalf("first event = %q, want connected", ev.Event)
	}

	if err := conn.WriteJSON(clientMessage{
		Event:        "start_transcription",
		LanguageCode: "en-US",
	}); err != nil {
		t.Fatal(err)
	}

	started := readEvent(t, conn)
	if started.Event != "transcription_started" {
		t.Fatalf("event = %q, want transcription_started", started.Event)
	}
	if started.LanguageCode != "en-US" {
		t.Errorf("language = %q, want en-US", started.LanguageCode)
	}

	frame := []byte("one hundred bytes of pcm")
	if err := conn.WriteJSON(clientMessage{
		Event: "audio_chunk",
		Chunk: base64.StdEncoding.EncodeToString(frame),
	}); err != nil {
		t.Fatal(err)
	}

	bridge.events <- asr.Event{Text: "hello", IsFinal: false}
	bridge.events <- asr.Event{Text: "hello world", IsFinal: true}

	partial := readEvent(t, conn)
	if partial.Event != "transcription_result" || !partial.IsPartial || partial.Text != "hello" {
		t.Fatalf("partial event = %+v", partial)
	}
	final := readEvent(t, conn)
	if final.Event != "transcription_result" || final.IsPartial || final.Text != "hello world" {
		t.Fatalf("final event = %+v", final)
	}

	if err := conn.WriteJSON(clientMessage{Event: "stop_transcription"}); err != nil {
		t.Fatal(err)
	}

	stopped := readEvent(t, conn)
	if stopped.Event != "transcription_stopped" {
		t.Fatalf("event = %q, want transcription_stopped", stopped.Event)
	}
	if stopped.ArchiveRef == "" {
		t.Error("stopped event missing archive reference")
	}

	sink.mu.Lock()
	archived := string(sink.blob)
	sink.mu.Unlock()
	if archived != string(frame) {
		t.Errorf("archived blob = %q, want the submitted frame", archived)
	}

	// Frames after stop produce an error event, not silence.
	if err := conn.WriteJSON(clientMessage{
		Event: "audio_chunk",
		Chunk: base64.StdEncoding.EncodeToString([]byte("late")),
	}); err != nil {
		t.Fatal(err)
	}
	errEvent := readEvent(t, conn)
	if errEvent.Event != "error" {
		t.Fatalf("event = %q, want error for a late frame", errEvent.Event)
	}
}

func TestStartTwiceReportsError(t *testing.T) {
	bridge := newFakeBridge()
	conn, cleanup := dialTestServer(t, bridge, &fakeSink{})
	defer cleanup()

	readEvent(t, conn) // connected

	conn.WriteJSON(clientMessage{Event: "start_transcription", LanguageCode: "en-US"})
	if ev := readEvent(t, conn); ev.Event != "transcription_started" {
		t.Fatalf("event = %q, want transcription_started", ev.Event)
	}

	conn.WriteJSON(clientMessage{Event: "start_transcription", LanguageCode: "en-US"})
	ev := readEvent(t, conn)
	if ev.Event != "error" {
		t.Fatalf("event = %q, want error on duplicate start", ev.Event)
	}
	if !strings.Contains(ev.Message, "already active") {
		t.Errorf("message = %q, want already-active error", ev.Message)
	}
}

func TestInvalidChunkEncoding(t *testing.T) {
	bridge := newFakeBridge()
	conn, cleanup := dialTestServer(t, bridge, &fakeSink{})
	defer cleanup()

	readEvent(t, conn) // connected

	conn.WriteJSON(clientMessage{Event: "start_transcription"})
	readEvent(t, conn) // started

	conn.WriteJSON(clientMessage{Event: "audio_chunk", Chunk: "not-base64!!!"})
	ev := readEvent(t, conn)
	if ev.Event != "error" || !strings.Contains(ev.Message, "base64") {
		t.Fatalf("event = %+v, want base64 error", ev)
	}
}

func TestUnknownEvent(t *testing.T) {
	bridge := newFakeBridge()
	conn, cleanup := dialTestServer(t, bridge, &fakeSink{})
	defer cleanup()

	readEvent(t, conn) // connected

	conn.WriteJSON(clientMessage{Event: "make_coffee"})
	ev := readEvent(t, conn)
	if ev.Event != "error" {
		t.Fatalf("event = %q, want error for unknown event", ev.Event)
	}
}
