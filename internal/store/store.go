// Package store provides typed access to the vault: named stages holding Task
// Documents plus the raw artifacts (ledger files, dashboard, log lines) that
// live beside them. Nothing above this package touches storage directly.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/vaultflow/internal/models"
)

var (
	// ErrNotFound is returned when a referenced document is gone, typically
	// because another process moved it between List and Read/Move.
	ErrNotFound = errors.New("store: not found")
	// ErrExists is returned by Create when the target already exists
	ErrExists = errors.New("store: already exists")
)

// DocumentExt is the extension of Task Documents. List ignores other files.
const DocumentExt = ".md"

// Store is the contract every backing implementation satisfies
type Store interface {
	// List returns the documents of a stage sorted by name. A missing stage is empty.
	List(ctx context.Context, stage models.Stage) ([]models.Ref, error)
	// Read returns the parsed document or ErrNotFound
	Read(ctx context.Context, ref models.Ref) (*models.Document, error)
	// Write creates or replaces a document
	Write(ctx context.Context, ref models.Ref, doc *models.Document) error
	// Create writes a document only if nothing exists at ref, else ErrExists
	Create(ctx context.Context, ref models.Ref, doc *models.Document) error
	// Move relocates a document to another stage. On a name collision at the
	// destination a timestamp suffix is appended; the final ref is returned.
	Move(ctx context.Context, ref models.Ref, to models.Stage) (models.Ref, error)

	// ReadFile returns raw bytes or ErrNotFound
	ReadFile(ctx context.Context, ref models.Ref) ([]byte, error)
	// WriteFile replaces a raw artifact
	WriteFile(ctx context.Context, ref models.Ref, data []byte) error
	// AppendFile appends to a raw artifact, creating it if needed
	AppendFile(ctx context.Context, ref models.Ref, data []byte) error
}

// Exists reports whether ref can be read
func Exists(ctx context.Context, s Store, ref models.Ref) (bool, error) {
	_, err := s.ReadFile(ctx, ref)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Count returns the number of documents in a stage
func Count(ctx context.Context, s Store, stage models.Stage) (int, error) {
	refs, err := s.List(ctx, stage)
	if err != nil {
		return 0, err
	}
	return len(refs), nil
}

// collisionName builds the disambiguated name used when a move target exists
func collisionName(ref models.Ref, now time.Time, attempt int) string {
	ext := ref.Name[len(ref.Stem()):]
	name := fmt.Sprintf("%s_%s", ref.Stem(), now.Format("20060102_150405"))
	if attempt > 0 {
		name = fmt.Sprintf("%s_%d", name, attempt)
	}
	return name + ext
}

// maxCollisionAttempts bounds the suffix search in Move
const maxCollisionAttempts = 100
