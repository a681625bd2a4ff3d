package speech

import (
	"context"
	"io"
)

// SilentSynthesizer produces streams that end immediately. Used when no speech provider
// is configured so the conversation still runs text-only.
type SilentSynthesizer struct{}

// Stream implements Synthesizer.
func (SilentSynthesizer) Stream(context.Context, string, string) (AudioStream, error) {
	return silentStream{}, nil
}

type silentStream struct{}

func (silentStream) Recv() ([]byte, error) { return nil, io.EOF }
func (silentStream) Close() error          { return nil }
