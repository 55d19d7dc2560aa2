// Package backend selects the sheet mirror the worker writes expenses to.
package backend

import (
	"context"
	"fmt"

	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/sheets/memory"

	goption "google.golang.org/api/option"
)

// Type names a mirror implementation.
type Type string

const (
	Memory Type = "memory"
	Sheets Type = "sheets"
)

func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is known
func (t Type) IsValid() bool {
	switch t {
	case Memory, Sheets:
		return true
	default:
		return false
	}
}

// Config holds configuration for mirror creation
type Config struct {
	Type Type

	// Google Sheets specific
	Sheets gsheet.Config

	// Extra client options for the Sheets service, mostly for tests.
	SheetsOptions []goption.ClientOption
}

// CleanupFunc releases resources held by a mirror.
type CleanupFunc func() error

// Result contains the mirror and an optional cleanup function
type Result struct {
	Mirror  sheets.Mirror
	Cleanup CleanupFunc
}

// Close runs Cleanup if there is one.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// NewMirror builds the mirror named by cfg.Type. An empty type means Memory.
func NewMirror(ctx context.Context, cfg Config, logger *log.Logger) (*Result, error) {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	if cfg.Type == "" {
		cfg.Type = Memory
	}
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.Type)
	}

	switch cfg.Type {
	case Sheets:
		client, err := gsheet.New(ctx, cfg.Sheets, logger, cfg.SheetsOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		logger.Info("Initialized Google Sheets mirror",
			"spreadsheet_id", cfg.Sheets.SpreadsheetID,
			"sheet", cfg.Sheets.SheetName)
		return &Result{Mirror: client}, nil
	default:
		logger.Info("Initialized memory mirror")
		return &Result{Mirror: memory.New()}, nil
	}
}
