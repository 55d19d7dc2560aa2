package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fintrack/internal/core"

	"github.com/go-chi/chi/v5"
)

type paramsKey struct{}

// docParams are the path parameters shared by every document route.
type docParams struct {
	UserID string
	Entity core.Entity
}

// documentParams validates {userID} and {entity} once for the subtree.
func documentParams(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if !validKey(userID) {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		entity, err := core.ParseEntity(chi.URLParam(r, "entity"))
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), paramsKey{}, docParams{UserID: userID, Entity: entity})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func paramsFrom(r *http.Request) docParams {
	p, _ := r.Context().Value(paramsKey{}).(docParams)
	return p
}

// validKey accepts printable identifiers of reasonable length.
func validKey(s string) bool {
	if s == "" || len(s) > 128 || strings.TrimSpace(s) != s {
		return false
	}
	for _, r := range s {
		if r < 32 || r == 127 {
			return false
		}
	}
	return true
}

// decodeRecord reads a JSON document of the given entity from the body.
func decodeRecord(w http.ResponseWriter, r *http.Request, entity core.Entity) (core.Record, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	rec, err := core.DecodeRecord(entity, body)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func isMaxBytes(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
