package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
)

type memoryCache struct {
	keys map[string]bool
	err  error
}

func (c *memoryCache) Once(_ context.Context, key string, _ time.Duration, fn func() error) error {
	if c.err != nil {
		return c.err
	}
	if c.keys[key] {
		return nil
	}
	c.keys[key] = true
	if err := fn(); err != nil {
		delete(c.keys, key)
		return err
	}
	return nil
}

type countingPublisher struct {
	calls int
	err   error
}

func (p *countingPublisher) Publish(_ context.Context, a domain.SummaryArtifact, channel string) (domain.NotificationRecord, error) {
	p.calls++
	if p.err != nil {
		return domain.NotificationRecord{Status: domain.NotificationFailed}, p.err
	}
	return domain.NotificationRecord{Artifact: a, Channel: channel, Status: domain.NotificationPosted}, nil
}

func testArtifact() domain.SummaryArtifact {
	return domain.SummaryArtifact{Group: domain.NewTargetGroup("ops"), GeneratedAt: time.Unix(100, 0), Model: "m", Text: "t"}
}

func TestPublishSkipsDuplicates(t *testing.T) {
	next := &countingPublisher{}
	p := New(next, &memoryCache{keys: map[string]bool{}}, time.Hour, zerolog.Nop())

	first, err := p.Publish(context.Background(), testArtifact(), "C1")
	if err != nil || first.Status != domain.NotificationPosted {
		t.Fatalf("первая публикация: %+v %v", first, err)
	}
	second, err := p.Publish(context.Background(), testArtifact(), "C1")
	if err != nil || second.Status != domain.NotificationDuplicate {
		t.Fatalf("ожидали дубль, получили %+v %v", second, err)
	}
	if next.calls != 1 {
		t.Fatalf("ожидали одну публикацию, получили %d", next.calls)
	}
	if _, err := p.Publish(context.Background(), testArtifact(), "C2"); err != nil || next.calls != 2 {
		t.Fatalf("другой канал публикуется отдельно: calls=%d err=%v", next.calls, err)
	}
}

func TestPublishFailureReleasesKey(t *testing.T) {
	next := &countingPublisher{err: errors.New("boom")}
	p := New(next, &memoryCache{keys: map[string]bool{}}, time.Hour, zerolog.Nop())
	if _, err := p.Publish(context.Background(), testArtifact(), "C1"); err == nil {
		t.Fatalf("ожидали ошибку")
	}
	next.err = nil
	record, err := p.Publish(context.Background(), testArtifact(), "C1")
	if err != nil || record.Status != domain.NotificationPosted || next.calls != 2 {
		t.Fatalf("ожидали повторную публикацию: %+v %v calls=%d", record, err, next.calls)
	}
}

func TestPublishWithoutCacheFallsThrough(t *testing.T) {
	next := &countingPublisher{}
	p := New(next, &memoryCache{err: errors.New("redis down")}, time.Hour, zerolog.Nop())
	record, err := p.Publish(context.Background(), testArtifact(), "C1")
	if err != nil || record.Status != domain.NotificationPosted {
		t.Fatalf("ожидали публикацию без защиты: %+v %v", record, err)
	}
}
