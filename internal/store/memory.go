package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benvon/vaultflow/internal/models"
)

// MemoryStore is a goroutine-safe Store backed by maps. It mirrors FSStore
// semantics and is used for deterministic tests.
type MemoryStore struct {
	mu     sync.RWMutex
	stages map[models.Stage]map[string][]byte
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stages: make(map[models.Stage]map[string][]byte),
		now:    time.Now,
	}
}

// SetClock overrides the clock used for collision suffixes
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = clock
}

func (s *MemoryStore) stage(stage models.Stage) map[string][]byte {
	files, ok := s.stages[stage]
	if !ok {
		files = make(map[string][]byte)
		s.stages[stage] = files
	}
	return files
}

// List returns the Task Documents in a stage sorted by name
func (s *MemoryStore) List(ctx context.Context, stage models.Stage) ([]models.Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []models.Ref
	for name := range s.stages[stage] {
		if strings.HasSuffix(name, DocumentExt) {
			refs = append(refs, models.NewRef(stage, name))
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Read parses the document at ref
func (s *MemoryStore) Read(ctx context.Context, ref models.Ref) (*models.Document, error) {
	data, err := s.ReadFile(ctx, ref)
	if err != nil {
		return nil, err
	}
	return models.ParseDocument(data), nil
}

// Write replaces the document at ref
func (s *MemoryStore) Write(ctx context.Context, ref models.Ref, doc *models.Document) error {
	return s.WriteFile(ctx, ref, doc.Render())
}

// Create writes the document only if ref does not exist yet
func (s *MemoryStore) Create(ctx context.Context, ref models.Ref, doc *models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.stage(ref.Stage)
	if _, ok := files[ref.Name]; ok {
		return fmt.Errorf("%s: %w", ref, ErrExists)
	}
	files[ref.Name] = doc.Render()
	return nil
}

// Move relocates a document, suffixing the name on collision
func (s *MemoryStore) Move(ctx context.Context, ref models.Ref, to models.Stage) (models.Ref, error) {
	if err := ctx.Err(); err != nil {
		return models.Ref{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.stage(ref.Stage)
	data, ok := src[ref.Name]
	if !ok {
		return models.Ref{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	dst := s.stage(to)
	dest := models.NewRef(to, ref.Name)
	now := s.now()
	for attempt := 0; ; attempt++ {
		if _, taken := dst[dest.Name]; !taken {
			break
		}
		if attempt >= maxCollisionAttempts {
			return models.Ref{}, fmt.Errorf("no free name for %s in %s", ref.Name, to)
		}
		dest = models.NewRef(to, collisionName(ref, now, attempt))
	}
	delete(src, ref.Name)
	dst[dest.Name] = data
	return dest, nil
}

// ReadFile returns the raw contents at ref
func (s *MemoryStore) ReadFile(ctx context.Context, ref models.Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.stages[ref.Stage][ref.Name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile replaces the contents at ref
func (s *MemoryStore) WriteFile(ctx context.Context, ref models.Ref, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.stage(ref.Stage)[ref.Name] = buf
	return nil
}

// AppendFile appends data at ref
func (s *MemoryStore) AppendFile(ctx context.Context, ref models.Ref, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.stage(ref.Stage)
	files[ref.Name] = append(files[ref.Name], data...)
	return nil
}

// Put is a test helper that writes a document from text
func (s *MemoryStore) Put(stage models.Stage, name, text string) {
	_ = s.WriteFile(context.Background(), models.NewRef(stage, name), []byte(text))
}

// Names is a test helper returning the document names in a stage
func (s *MemoryStore) Names(stage models.Stage) []string {
	refs, _ := s.List(context.Background(), stage)
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names
}

var _ Store = (*MemoryStore)(nil)
