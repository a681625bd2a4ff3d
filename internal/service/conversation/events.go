package conversation

import (
	"encoding/json"
	"strings"
)

// 入站事件类型
const (
	TypeStartSession   = "start_session"
	TypeOperatorSpeech = "operator_speech"
	TypeEndSession     = "end_session"

	// legacy client names
	typeUserSpeech = "user_speech"
)

// 出站事件类型
const (
	TypeSessionStarted  = "session_started"
	TypePersonaThinking = "persona_thinking"
	TypeAudioChunk      = "audio_chunk"
	TypeAudioComplete   = "audio_complete"
	TypeSessionEnded    = "session_ended"
	TypeError           = "error"
)

// End reasons reported in session_ended.
const (
	ReasonUserRequested = "user_requested"
	ReasonMaxTurns      = "max_turns"
	ReasonDisconnected  = "disconnected"
)

// Event is the JSON envelope used in both directions.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inboundEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// StartSessionPayload opens a call with a persona.
type StartSessionPayload struct {
	PersonaID  string `json:"persona_id"`
	OperatorID string `json:"operator_id"`
	UserID     string `json:"user_id,omitempty"`
}

// OperatorSpeechPayload carries one operator utterance as text.
type OperatorSpeechPayload struct {
	Transcript string `json:"transcript"`
}

// PersonaInfo is the persona view sent on session start.
type PersonaInfo struct {
	Name    string `json:"name"`
	VoiceID string `json:"voice_id"`
}

type SessionStartedPayload struct {
	SessionID string      `json:"session_id"`
	Persona   PersonaInfo `json:"persona"`
}

type AudioChunkPayload struct {
	Audio      string `json:"audio"`
	TurnNumber int    `json:"turn_number"`
}

type AudioCompletePayload struct {
	Transcript string `json:"transcript"`
	TurnNumber int    `json:"turn_number"`
}

type SessionEndedPayload struct {
	Reason     string `json:"reason"`
	TotalTurns int    `json:"total_turns"`
	SessionID  string `json:"session_id"`
}

type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// inbound is a decoded client event.
type inbound struct {
	kind   string
	start  StartSessionPayload
	speech OperatorSpeechPayload
}

// decodeInbound parses one raw frame. Every failure is an InvalidMessage protocol error.
func decodeInbound(raw []byte) (inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return inbound{}, newProtocolError(CodeInvalidMessage, "malformed event: %v", err)
	}

	msg := inbound{kind: env.Type}
	switch env.Type {
	case TypeStartSession:
		if err := decodePayload(env.Payload, &msg.start); err != nil {
			return inbound{}, err
		}
		if msg.start.OperatorID == "" {
			msg.start.OperatorID = msg.start.UserID
		}
		if strings.TrimSpace(msg.start.PersonaID) == "" {
			return inbound{}, newProtocolError(CodeInvalidMessage, "persona_id is required")
		}
	case TypeOperatorSpeech, typeUserSpeech:
		msg.kind = TypeOperatorSpeech
		if err := decodePayload(env.Payload, &msg.speech); err != nil {
			return inbound{}, err
		}
		msg.speech.Transcript = strings.TrimSpace(msg.speech.Transcript)
		if msg.speech.Transcript == "" {
			return inbound{}, newProtocolError(CodeInvalidMessage, "transcript is required")
		}
	case TypeEndSession:
	case "":
		return inbound{}, newProtocolError(CodeInvalidMessage, "event type is required")
	default:
		return inbound{}, newProtocolError(CodeInvalidMessage, "unsupported event type: %s", env.Type)
	}
	return msg, nil
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return newProtocolError(CodeInvalidMessage, "invalid payload: %v", err)
	}
	return nil
}
