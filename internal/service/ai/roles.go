package ai

import (
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/callsim/backend/internal/model/conversation"
)

// BackendRole maps a speaker to the role name the generation backend expects.
func BackendRole(role conversation.Role) (schema.RoleType, error) {
	switch role {
	case conversation.RoleOperator:
		return schema.User, nil
	case conversation.RolePersona:
		return schema.Assistant, nil
	default:
		return "", fmt.Errorf("unmapped role %d", int(role))
	}
}

// HistoryMessages converts the ordered turn history to backend messages.
func HistoryMessages(turns []conversation.Turn) ([]*schema.Message, error) {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		role, err := BackendRole(turn.Role)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", turn.Number, err)
		}
		messages = append(messages, &schema.Message{Role: role, Content: turn.Content})
	}
	return messages, nil
}

// OpeningMessages is the seed history for the persona's first line.
func OpeningMessages() []*schema.Message {
	return []*schema.Message{schema.UserMessage(OpeningInstruction)}
}
