package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// OpType is the kind of mutation a queued operation replays.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

func (t OpType) Valid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Payload is the data an operation carries. It is either a RecordPayload
// (create, update) or a DeletePayload.
type Payload interface {
	isPayload()
}

// RecordPayload carries the full record for a create or update.
type RecordPayload struct {
	Record core.Record
}

// DeletePayload carries the id of the record to delete.
type DeletePayload struct {
	ID string `json:"id"`
}

func (RecordPayload) isPayload() {}
func (DeletePayload) isPayload() {}

// QueuedOperation is a pending mutation awaiting replay.
type QueuedOperation struct {
	ID         string
	Type       OpType
	Entity     core.Entity
	Payload    Payload
	Timestamp  time.Time
	RetryCount int
}

// NewCreate builds an unqueued create operation for rec.
func NewCreate(rec core.Record) QueuedOperation {
	return QueuedOperation{Type: OpCreate, Entity: rec.EntityKind(), Payload: RecordPayload{Record: rec}}
}

// NewUpdate builds an unqueued update operation carrying the full record.
func NewUpdate(rec core.Record) QueuedOperation {
	return QueuedOperation{Type: OpUpdate, Entity: rec.EntityKind(), Payload: RecordPayload{Record: rec}}
}

// NewDelete builds an unqueued delete operation.
func NewDelete(entity core.Entity, id string) QueuedOperation {
	return QueuedOperation{Type: OpDelete, Entity: entity, Payload: DeletePayload{ID: id}}
}

// Record returns the carried record for create/update operations.
func (op QueuedOperation) Record() (core.Record, bool) {
	p, ok := op.Payload.(RecordPayload)
	if !ok || p.Record == nil {
		return nil, false
	}
	return p.Record, true
}

// TargetID is the id of the record the operation touches.
func (op QueuedOperation) TargetID() string {
	switch p := op.Payload.(type) {
	case RecordPayload:
		if p.Record != nil {
			return p.Record.RecordID()
		}
	case DeletePayload:
		return p.ID
	}
	return ""
}

// Validate checks that the payload variant matches the operation type and
// entity.
func (op QueuedOperation) Validate() error {
	if !op.Type.Valid() {
		return fmt.Errorf("invalid operation type %q", op.Type)
	}
	if !op.Entity.Valid() {
		return fmt.Errorf("invalid entity %q", op.Entity)
	}
	switch p := op.Payload.(type) {
	case RecordPayload:
		if op.Type == OpDelete {
			return errors.New("delete operation carries a record payload")
		}
		if p.Record == nil {
			return errors.New("record payload is empty")
		}
		if p.Record.EntityKind() != op.Entity {
			return fmt.Errorf("payload is %s, operation targets %s", p.Record.EntityKind(), op.Entity)
		}
	case DeletePayload:
		if op.Type != OpDelete {
			return fmt.Errorf("%s operation carries a delete payload", op.Type)
		}
		if p.ID == "" {
			return core.ErrMissingID
		}
	default:
		return errors.New("missing payload")
	}
	return nil
}

type wireOperation struct {
	ID         string          `json:"id"`
	Type       OpType          `json:"type"`
	Entity     core.Entity     `json:"entity"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

func (op QueuedOperation) MarshalJSON() ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	switch p := op.Payload.(type) {
	case RecordPayload:
		payload, err = json.Marshal(p.Record)
	case DeletePayload:
		payload, err = json.Marshal(p)
	default:
		payload = []byte("null")
	}
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return json.Marshal(wireOperation{
		ID:         op.ID,
		Type:       op.Type,
		Entity:     op.Entity,
		Payload:    payload,
		Timestamp:  op.Timestamp,
		RetryCount: op.RetryCount,
	})
}

// UnmarshalJSON decodes the payload into the concrete record type named by
// the entity tag.
func (op *QueuedOperation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	decoded := QueuedOperation{
		ID:         w.ID,
		Type:       w.Type,
		Entity:     w.Entity,
		Timestamp:  w.Timestamp,
		RetryCount: w.RetryCount,
	}
	switch w.Type {
	case OpCreate, OpUpdate:
		rec, err := core.DecodeRecord(w.Entity, w.Payload)
		if err != nil {
			return err
		}
		decoded.Payload = RecordPayload{Record: rec}
	case OpDelete:
		var p DeletePayload
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return fmt.Errorf("decode delete payload: %w", err)
		}
		decoded.Payload = p
	default:
		return fmt.Errorf("invalid operation type %q", w.Type)
	}

	*op = decoded
	return nil
}
