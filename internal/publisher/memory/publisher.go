// Package memory contains an in-memory notification publisher for
// development runs and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Publisher records task notifications instead of sending them anywhere.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// Message captures one published notification.
type Message struct {
	Topic   string
	Payload any
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notification and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", fmt.Errorf("topic is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded notifications.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
