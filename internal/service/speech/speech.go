package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrBackendUnavailable 表示无法建立合成连接。
	ErrBackendUnavailable = errors.New("speech backend unavailable")
	// ErrStreamInterrupted 表示音频流在结束标记之前中断。
	ErrStreamInterrupted = errors.New("speech stream interrupted")
)

// AudioStream is a lazy, finite, non-restartable sequence of audio chunks.
// Recv returns io.EOF once the backend signals the end of the utterance.
type AudioStream interface {
	Recv() ([]byte, error)
	Close() error
}

// Synthesizer opens an audio stream for one utterance.
type Synthesizer interface {
	Stream(ctx context.Context, text, voiceID string) (AudioStream, error)
}

// Status 描述一次音频流的结束方式。
type Status int

const (
	Completed Status = iota + 1
	CompletedWithPartialFailure
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case CompletedWithPartialFailure:
		return "completed_with_partial_failure"
	default:
		return "unknown"
	}
}

// Outcome summarises a drained audio stream. Err is set only for partial failures.
type Outcome struct {
	Status Status
	Chunks int
	Bytes  int
	Err    error
}

// Partial reports whether the stream ended before the backend's end marker.
func (o Outcome) Partial() bool {
	return o.Status == CompletedWithPartialFailure
}

// Pump opens a stream and hands every chunk to emit, in order, until the stream ends.
// Failures never escape as errors: they are folded into the returned Outcome.
func Pump(ctx context.Context, synth Synthesizer, text, voiceID string, emit func([]byte) error) Outcome {
	stream, err := synth.Stream(ctx, text, voiceID)
	if err != nil {
		return Outcome{Status: CompletedWithPartialFailure, Err: err}
	}
	defer stream.Close()

	var out Outcome
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			out.Status = Completed
			return out
		}
		if err != nil {
			out.Status = CompletedWithPartialFailure
			out.Err = err
			return out
		}
		if len(chunk) == 0 {
			continue
		}

		if err := emit(chunk); err != nil {
			out.Status = CompletedWithPartialFailure
			out.Err = fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
			return out
		}
		out.Chunks++
		out.Bytes += len(chunk)
	}
}
