package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid returns true if the role is user or assistant
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn of a conversation. Messages are never edited after
// creation.
type Message struct {
	ID         uuid.UUID `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Model      string    `json:"model,omitempty"`      // provider-reported model, assistant only
	TokensUsed int       `json:"tokensUsed,omitempty"` // best effort, assistant only
	Fallback   bool      `json:"fallback,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewUserMessage creates a message authored by the user
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAssistantMessage creates a reply with the model and usage reported for it
func NewAssistantMessage(content, model string, tokensUsed int) Message {
	return Message{
		ID:         uuid.New(),
		Role:       RoleAssistant,
		Content:    content,
		Model:      model,
		TokensUsed: tokensUsed,
		CreatedAt:  time.Now().UTC(),
	}
}
