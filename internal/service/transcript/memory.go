package transcript

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/callsim/backend/internal/model/conversation"
)

// MemoryStore keeps transcripts for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
	turns    map[string][]conversation.Turn
}

// NewMemoryStore bootstraps the in-memory store suitable for local runs.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]SessionRecord),
		turns:    make(map[string][]conversation.Turn),
	}
}

// StartSession records a new active session.
func (s *MemoryStore) StartSession(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[record.ID]; ok {
		return ErrSessionExists
	}
	if record.Status == "" {
		record.Status = conversation.StatusActive
	}
	s.sessions[record.ID] = record
	s.turns[record.ID] = make([]conversation.Turn, 0, 16)
	return nil
}

// AppendTurn appends a turn to the session history.
func (s *MemoryStore) AppendTurn(_ context.Context, sessionID string, turn conversation.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

// EndSession marks the session ended.
func (s *MemoryStore) EndSession(_ context.Context, sessionID, reason string, totalTurns int, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	record.Status = conversation.StatusEnded
	record.EndReason = reason
	record.TotalTurns = totalTurns
	record.EndedAt = &endedAt
	s.sessions[sessionID] = record
	return nil
}

// Session retrieves a session summary by identifier.
func (s *MemoryStore) Session(_ context.Context, sessionID string) (SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.sessions[sessionID]
	if !ok {
		return SessionRecord{}, ErrSessionNotFound
	}
	if record.Status == conversation.StatusActive {
		record.TotalTurns = len(s.turns[sessionID])
	}
	return record, nil
}

// List returns the operator's sessions, most recent first.
func (s *MemoryStore) List(_ context.Context, operatorID string) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]SessionRecord, 0, len(s.sessions))
	for id, record := range s.sessions {
		if operatorID != "" && record.OperatorID != operatorID {
			continue
		}
		if record.Status == conversation.StatusActive {
			record.TotalTurns = len(s.turns[id])
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].StartedAt.After(records[j].StartedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// Transcript returns stored turns for the provided session.
func (s *MemoryStore) Transcript(_ context.Context, sessionID string) ([]conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]conversation.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
