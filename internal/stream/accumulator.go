package stream

import (
	"context"
	"fmt"

	"github.com/KlinikX/aione/internal/audio"
)

// Combine strategies
const (
	StrategyIncremental = "incremental"
	StrategyFull        = "full"
)

// Accumulator holds one session's audio history. Add appends a WAV chunk
// and returns the speech of every chunk so far as WAV, or nil if there is
// none yet. Accumulators are owned by a single session and are not safe
// for concurrent use.
type Accumulator interface {
	Add(ctx context.Context, chunk []byte) ([]byte, error)
	Len() int
	Reset()
}

// NewAccumulator returns the accumulator for strategy
func NewAccumulator(strategy string, combiner *Combiner) (Accumulator, error) {
	switch strategy {
	case StrategyIncremental, "":
		return NewIncrementalAccumulator(combiner), nil
	case StrategyFull:
		return NewFullAccumulator(combiner), nil
	default:
		return nil, fmt.Errorf("unknown combine strategy %q", strategy)
	}
}

// FullAccumulator keeps every chunk and recombines the whole history on
// each Add. Cost grows with the total audio received.
type FullAccumulator struct {
	combiner *Combiner
	chunks   [][]byte
}

// NewFullAccumulator creates a full reprocessing accumulator
func NewFullAccumulator(combiner *Combiner) *FullAccumulator {
	return &FullAccumulator{combiner: combiner}
}

// Add implements Accumulator
func (a *FullAccumulator) Add(ctx context.Context, chunk []byte) ([]byte, error) {
	a.chunks = append(a.chunks, chunk)
	return a.combiner.Combine(ctx, a.chunks)
}

// Len returns the number of chunks received
func (a *FullAccumulator) Len() int {
	return len(a.chunks)
}

// Reset drops all chunks
func (a *FullAccumulator) Reset() {
	a.chunks = nil
}

// IncrementalAccumulator runs VAD once per chunk and keeps only the speech
// found so far. Chunks are segmented independently, so the output equals
// FullAccumulator's for the same chunk sequence.
type IncrementalAccumulator struct {
	combiner *Combiner
	speech   []audio.Waveform
	count    int
}

// NewIncrementalAccumulator creates an incremental accumulator
func NewIncrementalAccumulator(combiner *Combiner) *IncrementalAccumulator {
	return &IncrementalAccumulator{combiner: combiner}
}

// Add implements Accumulator. Only the new chunk is processed, so ctx is
// not consulted.
func (a *IncrementalAccumulator) Add(ctx context.Context, chunk []byte) ([]byte, error) {
	index := a.count
	a.count++

	if speech, ok := a.combiner.ChunkSpeech(index, chunk); ok {
		a.speech = append(a.speech, speech)
	}

	return a.combiner.Encode(a.speech)
}

// Len returns the number of chunks received
func (a *IncrementalAccumulator) Len() int {
	return a.count
}

// Reset drops all retained speech
func (a *IncrementalAccumulator) Reset() {
	a.speech = nil
	a.count = 0
}
