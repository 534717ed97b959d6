package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/benvon/vaultflow/internal/models"
)

// FSStore keeps stages as folders under a vault root
type FSStore struct {
	root string
	now  func() time.Time
}

// FSOption customizes an FSStore
type FSOption func(*FSStore)

// WithClock overrides the clock used for collision suffixes
func WithClock(clock func() time.Time) FSOption {
	return func(s *FSStore) {
		s.now = clock
	}
}

// NewFSStore creates a store rooted at the vault directory
func NewFSStore(root string, opts ...FSOption) *FSStore {
	s := &FSStore{root: root, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the vault directory
func (s *FSStore) Root() string {
	return s.root
}

// Path resolves a ref to its location on disk
func (s *FSStore) Path(ref models.Ref) string {
	return filepath.Join(s.stageDir(ref.Stage), ref.Name)
}

func (s *FSStore) stageDir(stage models.Stage) string {
	return filepath.Join(s.root, filepath.FromSlash(string(stage)))
}

// EnsureStages creates the stage folders
func (s *FSStore) EnsureStages(stages ...models.Stage) error {
	for _, stage := range stages {
		if err := os.MkdirAll(s.stageDir(stage), 0o755); err != nil {
			return fmt.Errorf("failed to create stage %s: %w", stage, err)
		}
	}
	return nil
}

// List returns the Task Documents in a stage sorted by name
func (s *FSStore) List(ctx context.Context, stage models.Stage) ([]models.Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.stageDir(stage))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list stage %s: %w", stage, err)
	}
	refs := make([]models.Ref, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), DocumentExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		refs = append(refs, models.NewRef(stage, e.Name()))
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Read parses the document at ref
func (s *FSStore) Read(ctx context.Context, ref models.Ref) (*models.Document, error) {
	data, err := s.ReadFile(ctx, ref)
	if err != nil {
		return nil, err
	}
	return models.ParseDocument(data), nil
}

// Write replaces the document at ref
func (s *FSStore) Write(ctx context.Context, ref models.Ref, doc *models.Document) error {
	return s.WriteFile(ctx, ref, doc.Render())
}

// Create writes the document only if ref does not exist yet
func (s *FSStore) Create(ctx context.Context, ref models.Ref, doc *models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create stage %s: %w", ref.Stage, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", ref, ErrExists)
		}
		return fmt.Errorf("failed to create %s: %w", ref, err)
	}
	if _, err := f.Write(doc.Render()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return f.Close()
}

// Move renames the document into another stage. The rename is atomic; the
// existence check before it is not, so two movers racing for the same
// destination name can still collide.
func (s *FSStore) Move(ctx context.Context, ref models.Ref, to models.Stage) (models.Ref, error) {
	if err := ctx.Err(); err != nil {
		return models.Ref{}, err
	}
	src := s.Path(ref)
	if _, err := os.Lstat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Ref{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return models.Ref{}, fmt.Errorf("failed to stat %s: %w", ref, err)
	}
	if err := os.MkdirAll(s.stageDir(to), 0o755); err != nil {
		return models.Ref{}, fmt.Errorf("failed to create stage %s: %w", to, err)
	}

	dest := models.NewRef(to, ref.Name)
	now := s.now()
	for attempt := 0; ; attempt++ {
		if _, err := os.Lstat(s.Path(dest)); errors.Is(err, fs.ErrNotExist) {
			break
		}
		if attempt >= maxCollisionAttempts {
			return models.Ref{}, fmt.Errorf("no free name for %s in %s", ref.Name, to)
		}
		dest = models.NewRef(to, collisionName(ref, now, attempt))
	}

	if err := os.Rename(src, s.Path(dest)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Ref{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return models.Ref{}, fmt.Errorf("failed to move %s to %s: %w", ref, dest, err)
	}
	return dest, nil
}

// ReadFile returns the raw contents at ref
func (s *FSStore) ReadFile(ctx context.Context, ref models.Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

// WriteFile replaces the contents at ref via a temp file and rename so readers
// never observe a partial write
func (s *FSStore) WriteFile(ctx context.Context, ref models.Ref, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(ref)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create stage %s: %w", ref.Stage, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+ref.Name+"-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return nil
}

// AppendFile appends data at ref
func (s *FSStore) AppendFile(ctx context.Context, ref models.Ref, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create stage %s: %w", ref.Stage, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", ref, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append %s: %w", ref, err)
	}
	return f.Close()
}

var _ Store = (*FSStore)(nil)
