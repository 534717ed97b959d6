// Package watcher turns files dropped into the vault inbox into Task Documents
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benvon/vaultflow/internal/logger"
	"github.com/benvon/vaultflow/internal/models"
	"github.com/benvon/vaultflow/internal/store"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	// DefaultSettle is how long a file must be quiet before it is ingested
	DefaultSettle = 500 * time.Millisecond
	filePrefix    = "FILE_"
)

// DropFolder watches an inbox directory and ingests every new file
type DropFolder struct {
	dir    string
	store  store.Store
	logger *zap.Logger
	settle time.Duration
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option customizes a DropFolder
type Option func(*DropFolder)

// WithSettle overrides the quiet period before ingest
func WithSettle(d time.Duration) Option {
	return func(f *DropFolder) { f.settle = d }
}

// WithClock overrides the clock
func WithClock(clock func() time.Time) Option {
	return func(f *DropFolder) { f.now = clock }
}

// NewDropFolder creates a watcher for dir that writes into s
func NewDropFolder(dir string, s store.Store, log *zap.Logger, opts ...Option) *DropFolder {
	if log == nil {
		log = zap.NewNop()
	}
	f := &DropFolder{
		dir:     dir,
		store:   s,
		logger:  log,
		settle:  DefaultSettle,
		now:     time.Now,
		pending: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run ingests files already present, then watches until ctx is done
func (f *DropFolder) Run(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox %s: %w", f.dir, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(f.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", f.dir, err)
	}
	f.logger.Info("dropfolder_watching", zap.String("dir", logger.SanitizePath(f.dir)))

	if err := f.scan(ctx); err != nil {
		f.logger.Warn("dropfolder_scan_failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			f.stopPending()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				f.schedule(ctx, ev.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("dropfolder_watch_error", zap.Error(err))
		}
	}
}

func (f *DropFolder) scan(ctx context.Context) error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := f.Ingest(ctx, filepath.Join(f.dir, e.Name())); err != nil {
			f.logger.Warn("dropfolder_ingest_failed", zap.String("file", logger.SanitizeName(e.Name())), zap.Error(err))
		}
	}
	return nil
}

// schedule debounces events for one path until the file has settled
func (f *DropFolder) schedule(ctx context.Context, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if t, ok := f.pending[path]; ok {
		t.Reset(f.settle)
		return
	}
	f.pending[path] = time.AfterFunc(f.settle, func() {
		f.mu.Lock()
		delete(f.pending, path)
		f.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if _, err := f.Ingest(ctx, path); err != nil {
			f.logger.Warn("dropfolder_ingest_failed", zap.String("file", logger.SanitizePath(path)), zap.Error(err))
		}
	})
}

func (f *DropFolder) stopPending() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for path, t := range f.pending {
		t.Stop()
		delete(f.pending, path)
	}
}

// Ingest copies one dropped file into Raw, writes its Task Document and
// removes the file from the inbox. It reports false when the file was skipped
// or already ingested.
func (f *DropFolder) Ingest(ctx context.Context, path string) (bool, error) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	docRef := models.NewRef(models.StageRaw, filePrefix+strings.TrimSuffix(name, filepath.Ext(name))+store.DocumentExt)
	copyRef := models.NewRef(models.StageRaw, filePrefix+name)
	if ok, err := store.Exists(ctx, f.store, docRef); err != nil {
		return false, err
	} else if ok {
		f.logger.Debug("dropfolder_already_ingested", zap.String("file", logger.SanitizeName(name)))
		f.retire(path)
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}

	// a dropped .md would share its name with the Task Document, so it is inlined instead
	inline := copyRef == docRef
	if !inline {
		if err := f.store.WriteFile(ctx, copyRef, data); err != nil {
			return false, fmt.Errorf("failed to copy %s: %w", name, err)
		}
	}

	doc := models.NewDocument(models.DocTypeFileDrop, renderBody(name, copyRef, info.Size(), inline, data))
	doc.Header.Set("original_name", name)
	doc.Header.Set("size", fmt.Sprintf("%d", info.Size()))
	doc.Header.Set(models.FieldCreated, f.now().UTC().Format(time.RFC3339))

	if err := f.store.Create(ctx, docRef, doc); err != nil {
		if errors.Is(err, store.ErrExists) {
			f.retire(path)
			return false, nil
		}
		return false, fmt.Errorf("failed to write %s: %w", docRef, err)
	}
	// the inbox only holds files that were never ingested
	f.retire(path)
	f.logger.Info("dropfolder_ingested",
		zap.String("file", logger.SanitizeName(name)),
		zap.String("document", docRef.String()),
		zap.Int64("size", info.Size()),
	)
	return true, nil
}

// retire removes an ingested file from the inbox
func (f *DropFolder) retire(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Warn("dropfolder_retire_failed", zap.String("file", logger.SanitizePath(path)), zap.Error(err))
	}
}

func renderBody(name string, copyRef models.Ref, size int64, inline bool, data []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# File Drop: %s\n\n", name)
	b.WriteString("A new file was dropped into the inbox for processing.\n\n")
	b.WriteString("## File Details\n")
	fmt.Fprintf(&b, "- Name: %s\n", name)
	fmt.Fprintf(&b, "- Size: %d bytes\n", size)
	if inline {
		b.WriteString("\n## Content\n\n")
		b.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			b.WriteByte('\n')
		}
	} else {
		fmt.Fprintf(&b, "- Copy: %s\n", copyRef)
	}
	return b.String()
}
