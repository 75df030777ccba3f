package models

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation is an append-only list of messages kept by the caller. The
// server never stores it; each request carries a trailing window of it.
type Conversation struct {
	mu        sync.RWMutex
	id        uuid.UUID
	createdAt time.Time
	messages  []Message
}

// NewConversation creates an empty conversation
func NewConversation() *Conversation {
	return &Conversation{
		id:        uuid.New(),
		createdAt: time.Now().UTC(),
	}
}

// ID returns the conversation identifier
func (c *Conversation) ID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Append adds a message to the end of the conversation
func (c *Conversation) Append(msg Message) error {
	if !msg.Role.IsValid() {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

// Messages returns a copy of every message in order
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Window returns a copy of the trailing n messages, oldest first. n <= 0
// returns nothing.
func (c *Conversation) Window(n int) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 {
		return []Message{}
	}
	start := len(c.messages) - n
	if start < 0 {
		start = 0
	}

	out := make([]Message, len(c.messages)-start)
	copy(out, c.messages[start:])
	return out
}

// Len returns the number of messages
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

type conversationJSON struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// MarshalJSON implements json.Marshaler
func (c *Conversation) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	messages := c.messages
	if messages == nil {
		messages = []Message{}
	}
	return json.Marshal(conversationJSON{
		ID:        c.id,
		CreatedAt: c.createdAt,
		Messages:  messages,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Conversation) UnmarshalJSON(data []byte) error {
	var raw conversationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for i, msg := range raw.Messages {
		if !msg.Role.IsValid() {
			return fmt.Errorf("message %d: invalid role %q", i, msg.Role)
		}
	}
	if raw.ID == uuid.Nil {
		raw.ID = uuid.New()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = raw.ID
	c.createdAt = raw.CreatedAt
	c.messages = raw.Messages
	return nil
}
