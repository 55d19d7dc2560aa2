package services

import (
	"context"
	"encoding/json"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/localstore"
	"fintrack/internal/queue"
)

// CacheKeyPrefix prefixes the storage key holding each entity's cached records.
const CacheKeyPrefix = "fintrack.cache."

// LocalCache is the client's view of its records, one JSON array per entity.
// Records are kept in insertion order.
type LocalCache struct {
	store localstore.Storage
}

func NewLocalCache(store localstore.Storage) *LocalCache {
	return &LocalCache{store: store}
}

func cacheKey(entity core.Entity) string {
	return CacheKeyPrefix + string(entity)
}

// List returns every cached record of entity.
func (c *LocalCache) List(ctx context.Context, entity core.Entity) ([]core.Record, error) {
	raw, ok, err := c.store.GetItem(ctx, cacheKey(entity))
	if err != nil {
		return nil, fmt.Errorf("read %s cache: %w", entity, err)
	}
	if !ok || raw == "" {
		return []core.Record{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode %s cache: %w", entity, err)
	}
	out := make([]core.Record, 0, len(items))
	for _, item := range items {
		rec, err := core.DecodeRecord(entity, item)
		if err != nil {
			return nil, fmt.Errorf("decode %s cache: %w", entity, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns the cached record with id.
func (c *LocalCache) Get(ctx context.Context, entity core.Entity, id string) (core.Record, bool, error) {
	recs, err := c.List(ctx, entity)
	if err != nil {
		return nil, false, err
	}
	if i := indexOf(recs, id); i >= 0 {
		return recs[i], true, nil
	}
	return nil, false, nil
}

// Put inserts rec or replaces the record with the same id. It returns the
// replaced record, or nil.
func (c *LocalCache) Put(ctx context.Context, rec core.Record) (core.Record, error) {
	recs, err := c.List(ctx, rec.EntityKind())
	if err != nil {
		return nil, err
	}
	var prev core.Record
	if i := indexOf(recs, rec.RecordID()); i >= 0 {
		prev = recs[i]
		recs[i] = rec
	} else {
		recs = append(recs, rec)
	}
	return prev, c.Replace(ctx, rec.EntityKind(), recs)
}

// Remove drops the record with id and returns it, or nil if it was not cached.
func (c *LocalCache) Remove(ctx context.Context, entity core.Entity, id string) (core.Record, error) {
	recs, err := c.List(ctx, entity)
	if err != nil {
		return nil, err
	}
	i := indexOf(recs, id)
	if i < 0 {
		return nil, nil
	}
	prev := recs[i]
	recs = append(recs[:i], recs[i+1:]...)
	return prev, c.Replace(ctx, entity, recs)
}

// Replace overwrites the cached records of entity.
func (c *LocalCache) Replace(ctx context.Context, entity core.Entity, recs []core.Record) error {
	if recs == nil {
		recs = []core.Record{}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode %s cache: %w", entity, err)
	}
	if err := c.store.SetItem(ctx, cacheKey(entity), string(data)); err != nil {
		return fmt.Errorf("write %s cache: %w", entity, err)
	}
	return nil
}

// Reconcile replaces the cached records of entity with the server's copy,
// then reapplies the pending operations in queue order so changes that have
// not synced yet stay visible. It returns what was cached.
func (c *LocalCache) Reconcile(ctx context.Context, entity core.Entity, server []core.Record, pending []queue.QueuedOperation) ([]core.Record, error) {
	recs := OverlayPending(entity, server, pending)
	if err := c.Replace(ctx, entity, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// OverlayPending applies the create, update and delete operations for
// entity in pending to a copy of recs.
func OverlayPending(entity core.Entity, recs []core.Record, pending []queue.QueuedOperation) []core.Record {
	out := append(make([]core.Record, 0, len(recs)), recs...)
	for _, op := range pending {
		if op.Entity != entity {
			continue
		}
		i := indexOf(out, op.TargetID())
		if op.Type == queue.OpDelete {
			if i >= 0 {
				out = append(out[:i], out[i+1:]...)
			}
			continue
		}
		rec, ok := op.Record()
		if !ok {
			continue
		}
		if i >= 0 {
			out[i] = rec
		} else {
			out = append(out, rec)
		}
	}
	return out
}

func indexOf(recs []core.Record, id string) int {
	for i, r := range recs {
		if r.RecordID() == id {
			return i
		}
	}
	return -1
}
