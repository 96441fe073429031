package summaries

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"grouplog-digest/internal/domain"
)

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "summaries")
	store := NewStore(dir)
	group := domain.NewTargetGroup("Retail All-Stars")
	generated := time.Date(2025, 9, 26, 18, 0, 0, 0, time.UTC)
	artifact := domain.SummaryArtifact{
		Group:          group,
		SourceSegments: []domain.LogSegment{{Group: group, Path: "/logs/retail-all-stars-messages-2025-09-26.txt"}},
		GeneratedAt:    generated,
		Model:          "gpt-4o-mini",
		Text:           "Unique Issues\n- No issues detected.",
	}

	path, err := store.Save(context.Background(), artifact)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "retail-all-stars-summary.txt" {
		t.Fatalf("неожиданный путь %s", path)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "Summary for: retail-all-stars-messages-2025-09-26.txt\nGenerated at: 2025-09-26T18:00:00Z\nModel: gpt-4o-mini\n\n=== Summary ===\n\n") {
		t.Fatalf("неожиданный заголовок:\n%s", data)
	}

	loaded, err := store.Load(context.Background(), path, []domain.TargetGroup{group})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Text != artifact.Text || loaded.Model != artifact.Model || !loaded.GeneratedAt.Equal(generated) {
		t.Fatalf("неожиданный артефакт %+v", loaded)
	}
	if loaded.Group.DisplayName != "Retail All-Stars" {
		t.Fatalf("группа не восстановлена: %+v", loaded.Group)
	}
	if got := loaded.Sources(); len(got) != 1 || got[0] != "retail-all-stars-messages-2025-09-26.txt" {
		t.Fatalf("неожиданные источники %v", got)
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())
	group := domain.NewTargetGroup("ops")
	for _, text := range []string{"first", "second"} {
		if _, err := store.Save(context.Background(), domain.SummaryArtifact{Group: group, Text: text, GeneratedAt: time.Now()}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	entries, err := os.ReadDir(store.dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ожидали один файл без временных, получили %d", len(entries))
	}
	loaded, err := store.Load(context.Background(), filepath.Join(store.dir, entries[0].Name()), nil)
	if err != nil || loaded.Text != "second" {
		t.Fatalf("ожидали последнюю сводку, получили %q %v", loaded.Text, err)
	}
}

func TestLoadPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.summary.txt")
	if err := os.WriteFile(path, []byte("just text\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := NewStore(t.TempDir()).Load(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Text != "just text" || loaded.Group.Slug != "legacy" || loaded.GeneratedAt.IsZero() {
		t.Fatalf("неожиданный артефакт %+v", loaded)
	}
}

func TestReloadKeepsIdempotencyKey(t *testing.T) {
	store := NewStore(t.TempDir())
	group := domain.NewTargetGroup("Retail All-Stars")
	artifact := domain.SummaryArtifact{
		Group:       group,
		GeneratedAt: time.Date(2025, 9, 26, 21, 4, 5, 123456789, time.FixedZone("MSK", 3*3600)),
		Model:       "gpt-4o-mini",
		Text:        "Unique Issues\n- No issues detected.",
	}
	path, err := store.Save(context.Background(), artifact)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load(context.Background(), path, []domain.TargetGroup{group})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.IdempotencyKey() != artifact.IdempotencyKey() {
		t.Fatalf("ключ изменился после перечитывания: %s != %s", loaded.IdempotencyKey(), artifact.IdempotencyKey())
	}
}
