package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// Change operations carried by RecordChangedMessage.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// RecordChangedMessage announces that a document changed on the server.
// It carries only the document key; consumers read the document itself.
type RecordChangedMessage struct {
	UserID    string      `json:"userId"`
	Entity    core.Entity `json:"entity"`
	ID        string      `json:"id"`
	Op        string      `json:"op"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewRecordChangedMessage(userID string, entity core.Entity, id, op string) *RecordChangedMessage {
	return &RecordChangedMessage{
		UserID:    userID,
		Entity:    entity,
		ID:        id,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// Validate rejects messages no consumer can act on.
func (m *RecordChangedMessage) Validate() error {
	if m.UserID == "" || m.ID == "" {
		return errors.New("message missing user or record id")
	}
	if !m.Entity.Valid() {
		return fmt.Errorf("unknown entity %q", m.Entity)
	}
	switch m.Op {
	case OpCreated, OpUpdated, OpDeleted:
		return nil
	default:
		return fmt.Errorf("unknown op %q", m.Op)
	}
}

func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes and validates a message body.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
