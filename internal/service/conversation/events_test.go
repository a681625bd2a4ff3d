package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/zhouzirui/callsim/backend/internal/service/ai"
)

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantKind string
		wantErr  bool
	}{
		{name: "start", raw: `{"type":"start_session","payload":{"persona_id":"marcus","operator_id":"u1"}}`, wantKind: TypeStartSession},
		{name: "speech", raw: `{"type":"operator_speech","payload":{"transcript":" hi "}}`, wantKind: TypeOperatorSpeech},
		{name: "legacy speech", raw: `{"type":"user_speech","payload":{"transcript":"hi"}}`, wantKind: TypeOperatorSpeech},
		{name: "end without payload", raw: `{"type":"end_session"}`, wantKind: TypeEndSession},
		{name: "malformed", raw: `{"type":`, wantErr: true},
		{name: "missing type", raw: `{"payload":{}}`, wantErr: true},
		{name: "unknown type", raw: `{"type":"dance"}`, wantErr: true},
		{name: "missing persona", raw: `{"type":"start_session","payload":{"operator_id":"u1"}}`, wantErr: true},
		{name: "blank transcript", raw: `{"type":"operator_speech","payload":{"transcript":"  "}}`, wantErr: true},
		{name: "wrong payload shape", raw: `{"type":"operator_speech","payload":"hi"}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := decodeInbound([]byte(tc.raw))
			if tc.wantErr {
				var perr *ProtocolError
				if !errors.As(err, &perr) || perr.Code != CodeInvalidMessage {
					t.Fatalf("expected InvalidMessage, got %v", err)
				}
				if !errors.Is(err, ErrProtocol) {
					t.Fatal("protocol errors must match ErrProtocol")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if msg.kind != tc.wantKind {
				t.Fatalf("expected kind %s, got %s", tc.wantKind, msg.kind)
			}
		})
	}
}

func TestDecodeInboundNormalisesPayloads(t *testing.T) {
	msg, err := decodeInbound([]byte(`{"type":"start_session","payload":{"persona_id":"sarah","user_id":"legacy-7"}}`))
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if msg.start.OperatorID != "legacy-7" {
		t.Fatalf("expected user_id fallback, got %q", msg.start.OperatorID)
	}

	msg, err = decodeInbound([]byte(`{"type":"operator_speech","payload":{"transcript":"  hello  "}}`))
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if msg.speech.Transcript != "hello" {
		t.Fatalf("expected trimmed transcript, got %q", msg.speech.Transcript)
	}
}

func TestOutboundEnvelopeShape(t *testing.T) {
	raw, err := json.Marshal(Event{Type: TypeAudioComplete, Payload: AudioCompletePayload{Transcript: "Hi.", TurnNumber: 3}})
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}
	want := `{"type":"audio_complete","payload":{"transcript":"Hi.","turn_number":3}}`
	if string(raw) != want {
		t.Fatalf("unexpected envelope:\n got %s\nwant %s", raw, want)
	}

	raw, _ = json.Marshal(Event{Type: TypeError, Payload: ErrorPayload{Code: CodeSessionBusy, Message: "busy", Recoverable: true}})
	want = `{"type":"error","payload":{"code":"SessionBusy","message":"busy","recoverable":true}}`
	if string(raw) != want {
		t.Fatalf("unexpected error envelope:\n got %s\nwant %s", raw, want)
	}
}

func TestGenerationCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: deadline", ai.ErrBackendTimeout), CodeBackendTimeout},
		{fmt.Errorf("%w: policy", ai.ErrBackendRejected), CodeBackendRejected},
		{ai.ErrBackendUnavailable, CodeBackendUnavailable},
		{errors.New("boom"), CodeBackendUnavailable},
	}
	for _, tc := range cases {
		if got := GenerationCode(tc.err); got != tc.want {
			t.Fatalf("GenerationCode(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
