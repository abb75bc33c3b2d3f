// Package messaging is the asynchronous mailbox between agents.
//
// Delivery is at-least-once: FetchPending keeps returning a message until the
// recipient acknowledges it, so handlers must tolerate redelivery.
package messaging

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/store"
)

// Message types sent by the engine itself.
const (
	TypeTaskCompleted = "task.completed"
	TypeTaskFailed    = "task.failed"
)

// Channel sends, fetches and acknowledges messages over a MessageStore.
type Channel struct {
	store store.MessageStore
	now   func() time.Time

	mu      sync.Mutex
	entropy io.Reader
}

// New creates a channel.
func New(s store.MessageStore) *Channel {
	return &Channel{
		store:   s,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (c *Channel) newID(at time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(at), c.entropy)
	if err != nil {
		return "", fmt.Errorf("generate message id: %w", err)
	}
	return id.String(), nil
}

// Send appends a pending message addressed to `to` and returns its id.
// content is marshaled to JSON; json.RawMessage passes through unchanged.
func (c *Channel) Send(ctx context.Context, from, to, msgType string, content interface{}) (string, error) {
	if to == "" {
		return "", fmt.Errorf("message recipient is required")
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("encode message content: %w", err)
	}

	at := c.now().UTC()
	id, err := c.newID(at)
	if err != nil {
		return "", err
	}
	msg := &models.Message{
		ID:        id,
		From:      from,
		To:        to,
		Type:      msgType,
		Content:   payload,
		Status:    models.MessageStatusPending,
		Timestamp: at,
	}
	if err := c.store.AppendMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return id, nil
}

// FetchPending returns to's unconsumed messages, oldest first. It does not
// consume them.
func (c *Channel) FetchPending(ctx context.Context, to string) ([]*models.Message, error) {
	msgs, err := c.store.PendingMessages(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", to, err)
	}
	return msgs, nil
}

// Acknowledge marks a message consumed. Acknowledging twice is a no-op.
func (c *Channel) Acknowledge(ctx context.Context, id string) error {
	if err := c.store.MarkConsumed(ctx, id); err != nil {
		return fmt.Errorf("acknowledge %s: %w", id, err)
	}
	return nil
}
