package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/benvon/vaultflow/internal/models"
)

var fixedNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func implementations(t *testing.T) map[string]Store {
	t.Helper()
	mem := NewMemoryStore()
	mem.SetClock(func() time.Time { return fixedNow })
	return map[string]Store{
		"memory": mem,
		"fs":     NewFSStore(t.TempDir(), WithClock(func() time.Time { return fixedNow })),
	}
}

func TestStore_ListSortedAndFiltered(t *testing.T) {
	t.Parallel()

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			for _, n := range []string{"b.md", "a.md", "c.md"} {
				if err := s.Write(ctx, models.NewRef(models.StageRaw, n), models.NewDocument(models.DocTypeEmail, n)); err != nil {
					t.Fatalf("Write failed: %v", err)
				}
			}
			if err := s.WriteFile(ctx, models.NewRef(models.StageRaw, "FILE_photo.png"), []byte{1, 2}); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}

			refs, err := s.List(ctx, models.StageRaw)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			var names []string
			for _, r := range refs {
				names = append(names, r.Name)
			}
			want := []string{"a.md", "b.md", "c.md"}
			if !reflect.DeepEqual(names, want) {
				t.Errorf("Expected %v, got %v", want, names)
			}
		})
	}
}

func TestStore_ListMissingStageIsEmpty(t *testing.T) {
	t.Parallel()

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			refs, err := s.List(context.Background(), models.StageApproved)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if len(refs) != 0 {
				t.Errorf("Expected empty list, got %v", refs)
			}
		})
	}
}

func TestStore_MoveRelocatesExactlyOnce(t *testing.T) {
	t.Parallel()

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			src := models.NewRef(models.StageApproved, "task.md")
			if err := s.Write(ctx, src, models.NewDocument(models.DocTypeMessage, "hi")); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			dest, err := s.Move(ctx, src, models.StageDone)
			if err != nil {
				t.Fatalf("Move failed: %v", err)
			}
			if dest != models.NewRef(models.StageDone, "task.md") {
				t.Errorf("Unexpected destination %v", dest)
			}
			if _, err := s.Read(ctx, src); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected source to be gone, got %v", err)
			}
			doc, err := s.Read(ctx, dest)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if doc.Body != "hi" {
				t.Errorf("Expected body hi, got %q", doc.Body)
			}
		})
	}
}

func TestStore_MoveCollisionAppendsSuffix(t *testing.T) {
	t.Parallel()

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			existing := models.NewRef(models.StageDone, "task.md")
			if err := s.Write(ctx, existing, models.NewDocument(models.DocTypeMessage, "old")); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			for i, want := range []string{"task_20260315_103000.md", "task_20260315_103000_1.md"} {
				src := models.NewRef(models.StageApproved, "task.md")
				if err := s.Write(ctx, src, models.NewDocument(models.DocTypeMessage, "new")); err != nil {
					t.Fatalf("Write failed: %v", err)
				}
				dest, err := s.Move(ctx, src, models.StageDone)
				if err != nil {
					t.Fatalf("Move %d failed: %v", i, err)
				}
				if dest.Name != want {
					t.Errorf("Expected %s, got %s", want, dest.Name)
				}
			}

			old, err := s.Read(ctx, existing)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if old.Body != "old" {
				t.Errorf("Expected existing document untouched, got %q", old.Body)
			}
		})
	}
}

func TestStore_VanishedDocumentIsNotFound(t *testing.T) {
	t.Parallel()

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			ref := models.NewRef(models.StageRaw, "gone.md")
			if _, err := s.Read(ctx, ref); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound from Read, got %v", err)
			}
			if _, err := s.Move(ctx, ref, models.StageDone); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound from Move, got %v", err)
			}
		})
	}
}

func TestStore_CreateIsWriteOnce(t *testing.T) {
	t.Parallel()

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			ref := models.NewRef(models.StagePlans, "PLAN_x.md")
			if err := s.Create(ctx, ref, models.NewDocument(models.DocTypePlan, "first")); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			err := s.Create(ctx, ref, models.NewDocument(models.DocTypePlan, "second"))
			if !errors.Is(err, ErrExists) {
				t.Fatalf("Expected ErrExists, got %v", err)
			}
			doc, err := s.Read(ctx, ref)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if doc.Body != "first" {
				t.Errorf("Expected first body to survive, got %q", doc.Body)
			}
		})
	}
}

func TestStore_AppendFile(t *testing.T) {
	t.Parallel()

	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			ref := models.NewRef(models.StageLogs, "watchdog.log")
			for _, line := range []string{"one\n", "two\n"} {
				if err := s.AppendFile(ctx, ref, []byte(line)); err != nil {
					t.Fatalf("AppendFile failed: %v", err)
				}
			}
			data, err := s.ReadFile(ctx, ref)
			if err != nil {
				t.Fatalf("ReadFile failed: %v", err)
			}
			if string(data) != "one\ntwo\n" {
				t.Errorf("Unexpected contents %q", data)
			}
			ok, err := Exists(ctx, s, ref)
			if err != nil || !ok {
				t.Errorf("Expected Exists to be true, got %v, %v", ok, err)
			}
		})
	}
}

func TestFSStore_WriteLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := NewFSStore(root)
	ref := models.NewRef(models.StageRoot, "Dashboard.md")
	if err := s.WriteFile(context.Background(), ref, []byte("# Dashboard\n")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "Dashboard.md" {
		t.Errorf("Expected only Dashboard.md, got %v", entries)
	}
	if _, err := os.Stat(filepath.Join(root, "Dashboard.md")); err != nil {
		t.Errorf("Expected dashboard on disk: %v", err)
	}
}
