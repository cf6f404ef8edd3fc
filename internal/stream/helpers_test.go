package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/KlinikX/aione/internal/audio"
	"github.com/KlinikX/aione/internal/audio/audiotest"
	"github.com/KlinikX/aione/internal/protocol"
	"github.com/KlinikX/aione/internal/vad"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCombiner(t *testing.T) *Combiner {
	t.Helper()

	detector, err := vad.NewEnergyDetector(0.5, 512)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	seg, err := vad.NewSegmenter(detector, vad.DefaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}

	return NewCombiner(seg, testLogger())
}

func speechChunk(d time.Duration) []byte {
	return audiotest.WAV(audiotest.Speech(d, 16000))
}

func silenceChunk(d time.Duration) []byte {
	return audiotest.WAV(audiotest.Silence(d, 16000))
}

func wavDuration(t *testing.T, data []byte) time.Duration {
	t.Helper()

	w, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("Failed to decode combined WAV: %v", err)
	}
	return w.Duration()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

// fakeConn is an in-memory Conn driven by the test
type fakeConn struct {
	in        chan readResult
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	out      []protocol.Outbound
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan readResult, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (protocol.Inbound, error) {
	select {
	case r := <-c.in:
		return r.msg, r.err
	case <-c.closed:
		return protocol.Inbound{}, ErrDisconnected
	}
}

func (c *fakeConn) WriteMessage(msg protocol.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.out = append(c.out, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) send(msg protocol.Inbound) {
	c.in <- readResult{msg: msg}
}

func (c *fakeConn) sendPCM(chunkWAV []byte) {
	pcm, err := audio.PCM(chunkWAV)
	if err != nil {
		panic(err)
	}
	c.send(protocol.AudioMessage(pcm))
}

func (c *fakeConn) fail(err error) {
	c.in <- readResult{err: err}
}

func (c *fakeConn) messages(kind string) []protocol.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []protocol.Outbound
	for _, m := range c.out {
		if m.Message == kind {
			out = append(out, m)
		}
	}
	return out
}

// recordingAccumulator wraps an Accumulator and records each result
type recordingAccumulator struct {
	Accumulator

	mu      sync.Mutex
	results [][]byte
	resets  int
}

func (r *recordingAccumulator) Add(ctx context.Context, chunk []byte) ([]byte, error) {
	out, err := r.Accumulator.Add(ctx, chunk)
	r.mu.Lock()
	r.results = append(r.results, out)
	r.mu.Unlock()
	return out, err
}

func (r *recordingAccumulator) Reset() {
	r.mu.Lock()
	r.resets++
	r.mu.Unlock()
	r.Accumulator.Reset()
}

func (r *recordingAccumulator) snapshot() ([][]byte, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.results...), r.resets
}

// fakeTranscriber returns text for every call, or err when set
type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	text  string
	errs  []error // consumed one per call
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return f.text, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
