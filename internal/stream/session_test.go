package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KlinikX/aione/internal/protocol"
)

func testSessionConfig() SessionConfig {
	config := DefaultSessionConfig()
	config.KeepAliveInterval = 20 * time.Millisecond
	config.ReceiveTimeout = 5 * time.Millisecond
	config.ProcessTimeout = 5 * time.Second
	return config
}

type sessionHarness struct {
	conn        *fakeConn
	acc         *recordingAccumulator
	transcriber *fakeTranscriber
	session     *Session
	done        chan error
}

func startSession(t *testing.T, config SessionConfig, transcriber *fakeTranscriber) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		conn:        newFakeConn(),
		acc:         &recordingAccumulator{Accumulator: NewIncrementalAccumulator(newTestCombiner(t))},
		transcriber: transcriber,
		done:        make(chan error, 1),
	}
	h.session = NewSession("test-session", h.conn, h.acc, transcriber, config, testLogger())

	go func() {
		h.done <- h.session.Run(context.Background())
	}()

	waitFor(t, time.Second, func() bool { return h.session.State() == StateActive })
	return h
}

func (h *sessionHarness) wait(t *testing.T) error {
	t.Helper()

	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not finish")
		return nil
	}
}

func TestSessionStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateAccepted, "accepted"},
		{StateActive, "active"},
		{StateClosing, "closing"},
		{StateClosed, "closed"},
		{State(42), "unknown(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, got)
		}
	}
}

func TestSessionTranscribesCumulativeSpeech(t *testing.T) {
	h := startSession(t, testSessionConfig(), &fakeTranscriber{text: "hello"})

	for i := 0; i < 3; i++ {
		h.conn.sendPCM(speechChunk(500 * time.Millisecond))
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(h.conn.messages(protocol.MessageTranscription)) == 3
	})

	results, _ := h.acc.snapshot()
	if len(results) != 3 {
		t.Fatalf("Expected 3 accumulator results, got %d", len(results))
	}

	// each call covers every chunk so far
	for i, r := range results {
		expected := time.Duration(i+1) * 500 * time.Millisecond
		if d := wavDuration(t, r); d != expected {
			t.Errorf("Result %d: expected %v of speech, got %v", i, expected, d)
		}
	}

	for _, msg := range h.conn.messages(protocol.MessageTranscription) {
		if msg.Transcription != "hello" {
			t.Errorf("Expected transcription %q, got %q", "hello", msg.Transcription)
		}
	}

	h.conn.fail(ErrDisconnected)
	if err := h.wait(t); err != nil {
		t.Errorf("Expected clean close on disconnect, got %v", err)
	}

	info := h.session.GetSessionInfo()
	if info.ChunksReceived != 3 {
		t.Errorf("Expected 3 chunks received, got %d", info.ChunksReceived)
	}
	if info.Transcriptions != 3 {
		t.Errorf("Expected 3 transcriptions, got %d", info.Transcriptions)
	}
}

func TestSessionKeepAliveWithoutAudio(t *testing.T) {
	h := startSession(t, testSessionConfig(), &fakeTranscriber{text: "unused"})

	waitFor(t, time.Second, func() bool {
		return len(h.conn.messages(protocol.MessagePing)) >= 3
	})

	results, _ := h.acc.snapshot()
	if len(results) != 0 {
		t.Errorf("Expected no accumulator calls without audio, got %d", len(results))
	}

	if h.transcriber.callCount() != 0 {
		t.Errorf("Expected no transcription calls, got %d", h.transcriber.callCount())
	}

	if h.session.State() != StateActive {
		t.Errorf("Expected session to stay active across receive ticks, got %s", h.session.State())
	}

	h.conn.fail(ErrDisconnected)
	if err := h.wait(t); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}
}

func TestSessionTeardownOnDisconnect(t *testing.T) {
	h := startSession(t, testSessionConfig(), &fakeTranscriber{text: "hi"})

	h.conn.sendPCM(speechChunk(500 * time.Millisecond))
	waitFor(t, 2*time.Second, func() bool {
		return len(h.conn.messages(protocol.MessageTranscription)) == 1
	})

	h.conn.fail(ErrDisconnected)
	if err := h.wait(t); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}

	if h.session.State() != StateClosed {
		t.Errorf("Expected state closed, got %s", h.session.State())
	}

	if !h.conn.isClosed() {
		t.Error("Expected connection to be closed")
	}

	_, resets := h.acc.snapshot()
	if resets != 1 {
		t.Errorf("Expected accumulator reset once, got %d", resets)
	}

	if h.acc.Len() != 0 {
		t.Errorf("Expected no buffered chunks after teardown, got %d", h.acc.Len())
	}

	// no pings after close
	pings := len(h.conn.messages(protocol.MessagePing))
	time.Sleep(60 * time.Millisecond)
	if got := len(h.conn.messages(protocol.MessagePing)); got != pings {
		t.Errorf("Expected no pings after close, got %d more", got-pings)
	}
}

func TestSessionIgnoresMessagesWithoutAudio(t *testing.T) {
	h := startSession(t, testSessionConfig(), &fakeTranscriber{text: "ok"})

	h.conn.send(protocol.Inbound{})
	h.conn.send(protocol.Inbound{StreamBytes: "!!!not base64!!!"})
	h.conn.sendPCM(speechChunk(500 * time.Millisecond))

	waitFor(t, 2*time.Second, func() bool {
		return len(h.conn.messages(protocol.MessageTranscription)) == 1
	})

	info := h.session.GetSessionInfo()
	if info.ChunksReceived != 1 {
		t.Errorf("Expected 1 chunk received, got %d", info.ChunksReceived)
	}
	if info.ChunksRejected != 1 {
		t.Errorf("Expected 1 chunk rejected, got %d", info.ChunksRejected)
	}

	h.conn.fail(ErrDisconnected)
	h.wait(t)
}

func TestSessionSilenceSendsNothing(t *testing.T) {
	h := startSession(t, testSessionConfig(), &fakeTranscriber{text: "ghost"})

	h.conn.sendPCM(silenceChunk(500 * time.Millisecond))
	h.conn.sendPCM(silenceChunk(500 * time.Millisecond))

	waitFor(t, 2*time.Second, func() bool {
		results, _ := h.acc.snapshot()
		return len(results) == 2
	})

	if h.transcriber.callCount() != 0 {
		t.Errorf("Expected no transcription for silence, got %d calls", h.transcriber.callCount())
	}

	if n := len(h.conn.messages(protocol.MessageTranscription)); n != 0 {
		t.Errorf("Expected no transcription messages, got %d", n)
	}

	h.conn.fail(ErrDisconnected)
	h.wait(t)
}

func TestSessionTranscriptionErrorKeepsSessionOpen(t *testing.T) {
	transcriber := &fakeTranscriber{
		text: "recovered",
		errs: []error{errors.New("service unavailable")},
	}
	h := startSession(t, testSessionConfig(), transcriber)

	h.conn.sendPCM(speechChunk(500 * time.Millisecond))
	waitFor(t, 2*time.Second, func() bool { return transcriber.callCount() == 1 })

	if h.session.State() != StateActive {
		t.Fatalf("Expected session to stay active after transcription error, got %s", h.session.State())
	}

	h.conn.sendPCM(speechChunk(500 * time.Millisecond))
	waitFor(t, 2*time.Second, func() bool {
		return len(h.conn.messages(protocol.MessageTranscription)) == 1
	})

	info := h.session.GetSessionInfo()
	if info.TranscriptionErrors != 1 {
		t.Errorf("Expected 1 transcription error, got %d", info.TranscriptionErrors)
	}

	h.conn.fail(ErrDisconnected)
	h.wait(t)
}

func TestSessionEmptyTranscriptionNotSent(t *testing.T) {
	h := startSession(t, testSessionConfig(), &fakeTranscriber{text: ""})

	h.conn.sendPCM(speechChunk(500 * time.Millisecond))
	waitFor(t, 2*time.Second, func() bool { return h.transcriber.callCount() == 1 })

	if n := len(h.conn.messages(protocol.MessageTranscription)); n != 0 {
		t.Errorf("Expected empty text to be dropped, got %d messages", n)
	}

	h.conn.fail(ErrDisconnected)
	h.wait(t)
}

func TestSessionReadErrorEndsSession(t *testing.T) {
	h := startSession(t, testSessionConfig(), &fakeTranscriber{text: "x"})

	readErr := errors.New("malformed frame")
	h.conn.fail(readErr)

	err := h.wait(t)
	if !errors.Is(err, readErr) {
		t.Errorf("Expected read error to be returned, got %v", err)
	}

	if h.session.State() != StateClosed {
		t.Errorf("Expected state closed, got %s", h.session.State())
	}

	if !h.conn.isClosed() {
		t.Error("Expected connection to be closed")
	}
}

func TestSessionSendFailureEndsSession(t *testing.T) {
	config := testSessionConfig()
	config.KeepAliveInterval = time.Hour
	h := startSession(t, config, &fakeTranscriber{text: "lost"})

	h.conn.mu.Lock()
	h.conn.writeErr = errors.New("broken pipe")
	h.conn.mu.Unlock()

	h.conn.sendPCM(speechChunk(500 * time.Millisecond))

	if err := h.wait(t); err == nil {
		t.Error("Expected send failure to end the session with an error")
	}

	if h.session.State() != StateClosed {
		t.Errorf("Expected state closed, got %s", h.session.State())
	}
}

func TestSessionPingFailureStopsKeepAliveOnly(t *testing.T) {
	h := startSession(t, testSessionConfig(), &fakeTranscriber{text: "x"})

	h.conn.mu.Lock()
	h.conn.writeErr = errors.New("broken pipe")
	h.conn.mu.Unlock()

	time.Sleep(80 * time.Millisecond)

	if h.session.State() != StateActive {
		t.Errorf("Expected receive loop to keep running, got %s", h.session.State())
	}

	h.conn.fail(ErrDisconnected)
	if err := h.wait(t); err != nil {
		t.Errorf("Expected clean close, got %v", err)
	}
}

func TestSessionContextCancel(t *testing.T) {
	conn := newFakeConn()
	acc := NewIncrementalAccumulator(newTestCombiner(t))
	session := NewSession("cancel", conn, acc, &fakeTranscriber{}, testSessionConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	waitFor(t, time.Second, func() bool { return session.State() == StateActive })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error on cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not stop after cancellation")
	}

	if !conn.isClosed() {
		t.Error("Expected connection to be closed")
	}
}

func TestSessionRunOnce(t *testing.T) {
	h := startSession(t, testSessionConfig(), &fakeTranscriber{})

	if err := h.session.Run(context.Background()); err == nil {
		t.Error("Expected error when running a session twice")
	}

	h.conn.fail(ErrDisconnected)
	h.wait(t)
}
