package conversation

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionEnded is returned when a turn is appended to an ended session.
var ErrSessionEnded = errors.New("session already ended")

// Role identifies which party produced a turn.
type Role int

const (
	RoleOperator Role = iota + 1
	RolePersona
)

func (r Role) String() string {
	switch r {
	case RoleOperator:
		return "operator"
	case RolePersona:
		return "persona"
	default:
		return "unknown"
	}
}

// MarshalText renders the role as its lowercase name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a lowercase role name.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole is the inverse of Role.String.
func ParseRole(name string) (Role, error) {
	switch name {
	case "operator":
		return RoleOperator, nil
	case "persona":
		return RolePersona, nil
	default:
		return 0, fmt.Errorf("unknown role %q", name)
	}
}

// Status is the lifecycle status of a session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Turn is one utterance. Immutable once appended.
type Turn struct {
	Number    int       `json:"turnNumber"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the in-memory record of one conversation. It has exactly one writer:
// the connection that created it.
type Session struct {
	ID         string
	OperatorID string
	PersonaID  string
	CreatedAt  time.Time

	turns  []Turn
	status Status
}

// NewSession returns an active session with an empty history.
func NewSession(id, operatorID, personaID string, now time.Time) *Session {
	return &Session{
		ID:         id,
		OperatorID: operatorID,
		PersonaID:  personaID,
		CreatedAt:  now,
		turns:      make([]Turn, 0, 16),
		status:     StatusActive,
	}
}

// AppendTurn numbers and records a new turn.
func (s *Session) AppendTurn(role Role, content string, now time.Time) (Turn, error) {
	if s.status == StatusEnded {
		return Turn{}, ErrSessionEnded
	}

	turn := Turn{
		Number:    len(s.turns) + 1,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	s.turns = append(s.turns, turn)
	return turn, nil
}

// TurnCount equals the number of turns appended so far.
func (s *Session) TurnCount() int {
	return len(s.turns)
}

// Turns returns a copy of the ordered history.
func (s *Session) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

// Status reports the lifecycle status.
func (s *Session) Status() Status {
	return s.status
}

// End marks the session ended. It reports false if it was already ended.
func (s *Session) End() bool {
	if s.status == StatusEnded {
		return false
	}
	s.status = StatusEnded
	return true
}
