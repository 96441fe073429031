package logs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
)

type fakeCatalog struct {
	files     map[string]string
	stats     []domain.SegmentStat
	readCalls int
}

func (c *fakeCatalog) DiscoverLatest(context.Context, []domain.TargetGroup) (map[string]domain.LogSegment, error) {
	return nil, nil
}

func (c *fakeCatalog) ResolveExplicit(context.Context, string, []domain.TargetGroup) (domain.LogSegment, error) {
	return domain.LogSegment{}, nil
}

func (c *fakeCatalog) Status(context.Context, []domain.TargetGroup) ([]domain.SegmentStat, error) {
	return c.stats, nil
}

func (c *fakeCatalog) ReadNamed(_ context.Context, filename string) ([]byte, error) {
	c.readCalls++
	data, ok := c.files[filename]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return []byte(data), nil
}

func newTestService(c *fakeCatalog) *Service {
	groups := []domain.TargetGroup{domain.NewTargetGroup("Retail All-Stars"), domain.NewTargetGroup("Winwise Agent Support")}
	return NewService(c, groups, zerolog.Nop())
}

func TestContentRejectsInvalidNamesWithoutReading(t *testing.T) {
	c := &fakeCatalog{}
	svc := newTestService(c)
	for _, name := range []string{
		"../../etc/passwd",
		"../retail-all-stars-messages-2025-09-26.txt",
		"retail-all-stars-messages-2025-9-26.txt",
		"unknown-group-messages-2025-09-26.txt",
		"retail-all-stars-summary.txt",
		"",
	} {
		if _, err := svc.Content(context.Background(), name); !errors.Is(err, domain.ErrInvalidName) {
			t.Fatalf("%q: ожидали ErrInvalidName, получили %v", name, err)
		}
	}
	if c.readCalls != 0 {
		t.Fatalf("недопустимые имена не должны читаться с диска, было %d чтений", c.readCalls)
	}
}

func TestContentReturnsTextAndLineCount(t *testing.T) {
	name := "retail-all-stars-messages-2025-09-26.txt"
	c := &fakeCatalog{files: map[string]string{name: "[2025-09-26T10:00:00Z] Jane: hello\n[2025-09-26T10:01:00Z] Bob: hi\n"}}
	got, err := newTestService(c).Content(context.Background(), name)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if got.Filename != name || got.LineCount != 2 {
		t.Fatalf("неожиданный ответ %+v", got)
	}
}

func TestContentMissingFile(t *testing.T) {
	c := &fakeCatalog{files: map[string]string{}}
	_, err := newTestService(c).Content(context.Background(), "retail-all-stars-messages-2025-09-27.txt")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestStatusListsEveryGroup(t *testing.T) {
	retail := domain.NewTargetGroup("Retail All-Stars")
	now := time.Date(2025, 9, 26, 12, 0, 0, 0, time.UTC)
	c := &fakeCatalog{stats: []domain.SegmentStat{
		{Filename: "retail-all-stars-messages-2025-09-26.txt", Group: retail, ModifiedAt: now, LineCount: 3},
		{Filename: "retail-all-stars-messages-2025-09-25.txt", Group: retail, ModifiedAt: now.Add(-24 * time.Hour), LineCount: 1},
	}}
	st, err := newTestService(c).Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(st.Groups) != 2 {
		t.Fatalf("ожидали две группы, получили %d", len(st.Groups))
	}
	files := st.Files["retail-all-stars"]
	if len(files) != 2 || files[0].Filename != "retail-all-stars-messages-2025-09-26.txt" {
		t.Fatalf("неожиданные файлы %+v", files)
	}
	if other, ok := st.Files["winwise-agent-support"]; !ok || len(other) != 0 {
		t.Fatalf("группа без файлов должна присутствовать с пустым списком: %v", other)
	}
}
