package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/storage"

	"github.com/go-chi/chi/v5"
)

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Items []core.Record `json:"items"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte("ok"))
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	p := paramsFrom(r)
	rec, ok := s.readValid(w, r, p.Entity)
	if !ok {
		return
	}
	if id := rec.RecordID(); id != "" && !validKey(id) {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	id, err := s.store.Create(r.Context(), p.UserID, rec)
	if err != nil {
		s.storeFailed(w, r, err, log.OpCreate, p, rec.RecordID())
		return
	}
	s.afterMutation(r.Context(), p, id, amqp.OpCreated)
	writeJSON(w, http.StatusCreated, createResponse{ID: id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	p := paramsFrom(r)
	key := listCacheKey(p.UserID, p.Entity)

	if body, ok := s.listCache.Get(key); ok {
		metrics.IncCacheLookup(true)
		writeRawJSON(w, http.StatusOK, body)
		return
	}
	metrics.IncCacheLookup(false)

	recs, err := s.store.List(r.Context(), p.UserID, p.Entity)
	if err != nil {
		s.storeFailed(w, r, err, log.OpList, p, "")
		return
	}
	if recs == nil {
		recs = []core.Record{}
	}
	body, err := json.Marshal(listResponse{Items: recs})
	if err != nil {
		s.storeFailed(w, r, err, log.OpList, p, "")
		return
	}
	s.listCache.Set(key, body)
	writeRawJSON(w, http.StatusOK, body)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p := paramsFrom(r)
	id := chi.URLParam(r, "id")
	rec, err := s.store.Get(r.Context(), p.UserID, p.Entity, id)
	if err != nil {
		s.storeFailed(w, r, err, log.OpRead, p, id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p := paramsFrom(r)
	id := chi.URLParam(r, "id")
	rec, ok := s.readValid(w, r, p.Entity)
	if !ok {
		return
	}

	switch rec.RecordID() {
	case id:
	case "":
		ident, ok := rec.(core.Identifiable)
		if !ok {
			writeError(w, http.StatusBadRequest, "record id does not match path")
			return
		}
		ident.SetRecordID(id)
	default:
		writeError(w, http.StatusBadRequest, "record id does not match path")
		return
	}

	if err := s.store.Update(r.Context(), p.UserID, rec); err != nil {
		s.storeFailed(w, r, err, log.OpUpdate, p, id)
		return
	}
	s.afterMutation(r.Context(), p, id, amqp.OpUpdated)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p := paramsFrom(r)
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), p.UserID, p.Entity, id); err != nil {
		s.storeFailed(w, r, err, log.OpDelete, p, id)
		return
	}
	s.afterMutation(r.Context(), p, id, amqp.OpDeleted)
	w.WriteHeader(http.StatusNoContent)
}

// readValid decodes and validates the body, writing 400/413/422 on failure.
func (s *Server) readValid(w http.ResponseWriter, r *http.Request, entity core.Entity) (core.Record, bool) {
	rec, err := decodeRecord(w, r, entity)
	if err != nil {
		if isMaxBytes(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed: "+err.Error())
		return nil, false
	}
	return rec, true
}

// HandleRecordChanged drops the cached list a record-changed event touches.
// It covers writes made outside this server, such as recurring expenses
// created by the worker.
func (s *Server) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	s.listCache.DeletePrefix(listCacheKey(msg.UserID, msg.Entity))
	s.logger.DebugContext(ctx, "List cache invalidated by event",
		log.NewFields().WithRecord(msg.UserID, string(msg.Entity), msg.ID).WithOperation(msg.Op).ToSlice()...)
	return nil
}

// afterMutation drops the cached list and announces the change. Publishing
// is best effort: the worker resync covers lost events.
func (s *Server) afterMutation(ctx context.Context, p docParams, id, op string) {
	s.listCache.DeletePrefix(listCacheKey(p.UserID, p.Entity))
	s.events.LogRecordChanged(ctx, op, p.UserID, string(p.Entity), id)

	if s.publisher == nil {
		return
	}
	msg := amqp.NewRecordChangedMessage(p.UserID, p.Entity, id, op)
	if err := s.publisher.PublishRecordChanged(ctx, msg); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Failed to publish record change",
			log.NewFields().WithRecord(p.UserID, string(p.Entity), id).WithOperation(op).WithError(err).ToSlice()...)
	}
}

func (s *Server) storeFailed(w http.ResponseWriter, r *http.Request, err error, op string, p docParams, id string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if errors.Is(err, core.ErrMissingID) {
		writeError(w, http.StatusUnprocessableEntity, "validation failed: "+err.Error())
		return
	}
	s.events.LogError(r.Context(), "Document store failure", err, op,
		log.NewFields().WithRecord(p.UserID, string(p.Entity), id))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func listCacheKey(userID string, entity core.Entity) string {
	return userID + "\x00" + string(entity)
}
