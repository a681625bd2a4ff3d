package transcript

import (
	"context"
	"errors"
	"time"

	"github.com/zhouzirui/callsim/backend/internal/model/conversation"
)

var (
	ErrSessionNotFound = errors.New("transcript session not found")
	ErrSessionExists   = errors.New("transcript session already recorded")
)

// SessionRecord is the persisted summary of one call.
type SessionRecord struct {
	ID         string              `json:"sessionId"`
	OperatorID string              `json:"operatorId"`
	PersonaID  string              `json:"personaId"`
	Status     conversation.Status `json:"status"`
	EndReason  string              `json:"endReason,omitempty"`
	TotalTurns int                 `json:"totalTurns"`
	StartedAt  time.Time           `json:"startedAt"`
	EndedAt    *time.Time          `json:"endedAt,omitempty"`
}

// Recorder is the write side used by the orchestrator. Calls are best effort.
type Recorder interface {
	StartSession(ctx context.Context, record SessionRecord) error
	AppendTurn(ctx context.Context, sessionID string, turn conversation.Turn) error
	EndSession(ctx context.Context, sessionID, reason string, totalTurns int, endedAt time.Time) error
}

// Reader serves stored transcripts.
type Reader interface {
	// List returns sessions newest first; an empty operatorID lists every operator.
	List(ctx context.Context, operatorID string) ([]SessionRecord, error)
	Session(ctx context.Context, sessionID string) (SessionRecord, error)
	Transcript(ctx context.Context, sessionID string) ([]conversation.Turn, error)
}

// Store is a Recorder that can also be read back.
type Store interface {
	Recorder
	Reader
	Close() error
}

// Discard drops every record. Used when TRANSCRIPT_STORE=none.
type Discard struct{}

func (Discard) StartSession(context.Context, SessionRecord) error { return nil }
func (Discard) AppendTurn(context.Context, string, conversation.Turn) error { return nil }
func (Discard) EndSession(context.Context, string, string, int, time.Time) error { return nil }
