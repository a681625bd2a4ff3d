package conversation

import (
	"errors"
	"fmt"

	"github.com/zhouzirui/callsim/backend/internal/service/ai"
)

// Protocol error codes reported in the error event.
const (
	CodeUnknownPersona        = "UnknownPersona"
	CodeSessionNotFound       = "SessionNotFound"
	CodeSessionBusy           = "SessionBusy"
	CodeSessionAlreadyStarted = "SessionAlreadyStarted"
	CodeInvalidMessage        = "InvalidMessage"

	CodeBackendUnavailable = "BackendUnavailable"
	CodeBackendTimeout     = "BackendTimeout"
	CodeBackendRejected    = "BackendRejected"
)

// ErrProtocol matches every *ProtocolError via errors.Is.
var ErrProtocol = errors.New("protocol violation")

// ProtocolError is a client mistake. It is reported and the connection stays open.
type ProtocolError struct {
	Code    string
	Message string
}

func newProtocolError(code, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// GenerationCode maps a Generation Client failure to its error code.
func GenerationCode(err error) string {
	switch {
	case errors.Is(err, ai.ErrBackendTimeout):
		return CodeBackendTimeout
	case errors.Is(err, ai.ErrBackendRejected):
		return CodeBackendRejected
	default:
		return CodeBackendUnavailable
	}
}
