package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/adapters/segments"
	"grouplog-digest/internal/adapters/slack"
	"grouplog-digest/internal/adapters/summaries"
	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/retry"
	groupsuc "grouplog-digest/internal/usecase/groups"
	"grouplog-digest/internal/usecase/ingest"
	"grouplog-digest/internal/usecase/summary"
)

type fakeIndex struct {
	latest map[string]domain.LogSegment
	err    error
}

func (f fakeIndex) DiscoverLatest(context.Context, []domain.TargetGroup) (map[string]domain.LogSegment, error) {
	return f.latest, f.err
}

func (f fakeIndex) ResolveExplicit(_ context.Context, path string, groups []domain.TargetGroup) (domain.LogSegment, error) {
	for _, seg := range f.latest {
		if seg.Path == path {
			return seg, nil
		}
	}
	return domain.LogSegment{}, domain.ErrNotFound
}

func (f fakeIndex) Status(context.Context, []domain.TargetGroup) ([]domain.SegmentStat, error) {
	return nil, nil
}

type fakeSummarizer struct {
	mu       sync.Mutex
	calls    map[string][]string
	loaded   []string
	failSlug string
}

func (f *fakeSummarizer) Summarize(_ context.Context, group domain.TargetGroup, segs []domain.LogSegment, model string) (domain.SummaryArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string][]string{}
	}
	if group.Slug == f.failSlug {
		err := domain.MarkPermanent(errors.New("openai: 401 invalid api key"))
		return domain.SummaryArtifact{}, &domain.SummarizeError{Group: group.DisplayName, Permanent: true, Err: err}
	}
	for _, s := range segs {
		f.calls[group.Slug] = append(f.calls[group.Slug], s.Path)
	}
	return domain.SummaryArtifact{Group: group, SourceSegments: segs, Model: model, Text: domain.NoIssuesText, Path: group.Slug + "-summary.txt"}, nil
}

func (f *fakeSummarizer) LoadArtifact(_ context.Context, path string, groups []domain.TargetGroup) (domain.SummaryArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, path)
	group := domain.GroupForSlug(groups, domain.SlugFromFilename(path))
	return domain.SummaryArtifact{Group: group, SourceNames: []string{"old.txt"}, Text: "x", Path: path}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	failSlug  string
	delivered []string
}

func (p *fakePublisher) Publish(_ context.Context, a domain.SummaryArtifact, channel string) (domain.NotificationRecord, error) {
	record := domain.NotificationRecord{Artifact: a, Channel: channel, IdempotencyKey: a.IdempotencyKey()}
	if a.Group.Slug == p.failSlug {
		record.Status = domain.NotificationFailed
		err := domain.MarkPermanent(errors.New("invalid_auth"))
		return record, &domain.PublishError{Group: a.Group.DisplayName, Channel: channel, Permanent: true, Err: err}
	}
	p.mu.Lock()
	p.delivered = append(p.delivered, a.Group.Slug)
	p.mu.Unlock()
	record.Status = domain.NotificationPosted
	return record, nil
}

type fakeRecords struct {
	mu      sync.Mutex
	records []domain.NotificationRecord
}

func (r *fakeRecords) SaveNotification(_ context.Context, _ string, rec domain.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func testGroups() []domain.TargetGroup {
	return []domain.TargetGroup{domain.NewTargetGroup("Alpha Team"), domain.NewTargetGroup("Beta Team")}
}

func segFor(g domain.TargetGroup, day int) domain.LogSegment {
	date := time.Date(2025, 9, day, 0, 0, 0, 0, time.UTC)
	return domain.LogSegment{Group: g, Date: date, Path: "/logs/" + domain.SegmentFilename(g.Slug, date)}
}

func resultFor(t *testing.T, r RunReport, slug string) GroupResult {
	t.Helper()
	for _, g := range r.Groups {
		if g.Group.Slug == slug {
			return g
		}
	}
	t.Fatalf("нет результата для %s", slug)
	return GroupResult{}
}

func TestRunDiscoveryIsolatesPublishFailure(t *testing.T) {
	groups := testGroups()
	index := fakeIndex{latest: map[string]domain.LogSegment{
		groups[0].Slug: segFor(groups[0], 26),
		groups[1].Slug: segFor(groups[1], 26),
	}}
	pub := &fakePublisher{failSlug: groups[0].Slug}
	records := &fakeRecords{}
	o := New(groups, index, &fakeSummarizer{}, pub, records, Options{Post: true, Channel: "C1", Concurrency: 2}, zerolog.Nop())

	report, err := o.RunDiscovery(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	a := resultFor(t, report, "alpha-team")
	if a.State != StatePublishFailed || !domain.IsPermanent(a.Err) {
		t.Fatalf("alpha: ожидали publish_failed с постоянной ошибкой, получили %s %v", a.State, a.Err)
	}
	b := resultFor(t, report, "beta-team")
	if b.State != StatePublished || b.Record == nil || b.Record.Status != domain.NotificationPosted {
		t.Fatalf("beta: неожиданный результат %+v", b)
	}
	if len(pub.delivered) != 1 || pub.delivered[0] != "beta-team" {
		t.Fatalf("доставлено %v", pub.delivered)
	}
	if !report.Failed() || report.FailedCount() != 1 {
		t.Fatalf("ожидали одну неудачную группу, получили %d", report.FailedCount())
	}
	if len(records.records) != 2 {
		t.Fatalf("ожидали две записи о публикации, получили %d", len(records.records))
	}
	if report.RunID == "" {
		t.Fatalf("пустой идентификатор запуска")
	}
}

func TestRunDiscoveryIsolatesSummarizeFailure(t *testing.T) {
	groups := testGroups()
	index := fakeIndex{latest: map[string]domain.LogSegment{
		groups[0].Slug: segFor(groups[0], 26),
		groups[1].Slug: segFor(groups[1], 26),
	}}
	pub := &fakePublisher{}
	o := New(groups, index, &fakeSummarizer{failSlug: groups[0].Slug}, pub, nil, Options{Post: true, Channel: "C1", Concurrency: 2}, zerolog.Nop())

	report, err := o.RunDiscovery(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	a := resultFor(t, report, "alpha-team")
	var serr *domain.SummarizeError
	if a.State != StateSummarizeFailed || !errors.As(a.Err, &serr) || !serr.Permanent {
		t.Fatalf("alpha: ожидали summarize_failed с постоянной ошибкой, получили %s %v", a.State, a.Err)
	}
	if a.Record != nil {
		t.Fatalf("alpha: публикации быть не должно, получили %+v", a.Record)
	}
	b := resultFor(t, report, "beta-team")
	if b.State != StatePublished || b.Record == nil || b.Record.Status != domain.NotificationPosted {
		t.Fatalf("beta: неожиданный результат %+v", b)
	}
	if len(pub.delivered) != 1 || pub.delivered[0] != "beta-team" {
		t.Fatalf("доставлено %v", pub.delivered)
	}
	if report.FailedCount() != 1 {
		t.Fatalf("ожидали одну неудачную группу, получили %d", report.FailedCount())
	}
}

func TestRunDiscoveryMissingSegment(t *testing.T) {
	groups := testGroups()
	index := fakeIndex{latest: map[string]domain.LogSegment{groups[1].Slug: segFor(groups[1], 25)}}
	summ := &fakeSummarizer{}
	o := New(groups, index, summ, nil, nil, Options{}, zerolog.Nop())

	report, err := o.RunDiscovery(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	a := resultFor(t, report, "alpha-team")
	if a.State != StateDiscoveryFailed || !errors.Is(a.Err, domain.ErrNoSegments) {
		t.Fatalf("alpha: %s %v", a.State, a.Err)
	}
	if b := resultFor(t, report, "beta-team"); b.State != StateSummarized || b.Err != nil {
		t.Fatalf("beta: без публикации ожидали summarized, получили %s %v", b.State, b.Err)
	}
	if _, ok := summ.calls["alpha-team"]; ok {
		t.Fatalf("группа без сегментов не должна суммаризоваться")
	}
}

func TestRunDiscoveryReportsCollidingGroups(t *testing.T) {
	retail := domain.NewTargetGroup("Retail All-Stars")
	alias := domain.NewTargetGroup("retail all stars")
	index := fakeIndex{latest: map[string]domain.LogSegment{retail.Slug: segFor(retail, 26)}}
	summ := &fakeSummarizer{}
	o := New([]domain.TargetGroup{retail, alias}, index, summ, nil, nil, Options{}, zerolog.Nop())

	report, err := o.RunDiscovery(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Groups) != 2 {
		t.Fatalf("каждая настроенная группа должна попасть в отчёт, получили %d", len(report.Groups))
	}
	if got := report.Groups[1]; got.Group.DisplayName != "retail all stars" || got.State != StateSummarized {
		t.Fatalf("неожиданный итог для второй группы %+v", got)
	}
	if len(summ.calls[retail.Slug]) != 1 {
		t.Fatalf("общий сегмент должен суммаризоваться один раз, вызовов %d", len(summ.calls[retail.Slug]))
	}
}

func TestRunDiscoveryDirectoryError(t *testing.T) {
	o := New(testGroups(), fakeIndex{err: errors.New("permission denied")}, &fakeSummarizer{}, nil, nil, Options{}, zerolog.Nop())
	if _, err := o.RunDiscovery(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку чтения каталога")
	}
}

func TestRunExplicitGroupsBySlug(t *testing.T) {
	groups := testGroups()
	a25, a26, b26 := segFor(groups[0], 25), segFor(groups[0], 26), segFor(groups[1], 26)
	index := fakeIndex{latest: map[string]domain.LogSegment{"a25": a25, "a26": a26, "b26": b26}}
	summ := &fakeSummarizer{}
	o := New(groups, index, summ, nil, nil, Options{Concurrency: 3}, zerolog.Nop())

	report, err := o.RunExplicit(context.Background(), []string{a26.Path, b26.Path, a25.Path, "/out/beta-team-summary.txt"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Groups) != 3 {
		t.Fatalf("ожидали три задания, получили %d", len(report.Groups))
	}
	if got := summ.calls["alpha-team"]; len(got) != 2 || got[0] != a26.Path || got[1] != a25.Path {
		t.Fatalf("сегменты alpha в порядке передачи: %v", got)
	}
	if len(summ.loaded) != 1 || summ.loaded[0] != "/out/beta-team-summary.txt" {
		t.Fatalf("сводка должна читаться без модели: %v", summ.loaded)
	}
	if report.Groups[2].State != StateSummarized || report.Groups[2].Sources[0] != "old.txt" {
		t.Fatalf("неожиданный результат для сводки %+v", report.Groups[2])
	}
}

func TestRunExplicitMissingFileFailsGroup(t *testing.T) {
	groups := testGroups()
	a26, b26 := segFor(groups[0], 26), segFor(groups[1], 26)
	index := fakeIndex{latest: map[string]domain.LogSegment{"a26": a26, "b26": b26}}
	summ := &fakeSummarizer{}
	o := New(groups, index, summ, nil, nil, Options{}, zerolog.Nop())

	missing := "/logs/" + domain.SegmentFilename("alpha-team", time.Date(2025, 9, 27, 0, 0, 0, 0, time.UTC))
	report, err := o.RunExplicit(context.Background(), []string{a26.Path, missing, b26.Path})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	a := resultFor(t, report, "alpha-team")
	if a.State != StateDiscoveryFailed || !errors.Is(a.Err, domain.ErrNotFound) {
		t.Fatalf("alpha: %s %v", a.State, a.Err)
	}
	if _, ok := summ.calls["alpha-team"]; ok {
		t.Fatalf("группа с недоступным файлом не должна суммаризоваться")
	}
	if b := resultFor(t, report, "beta-team"); b.State != StateSummarized {
		t.Fatalf("beta: %s", b.State)
	}
}

type scriptedEngine struct {
	mu      sync.Mutex
	prompts []string
}

func (e *scriptedEngine) Complete(_ context.Context, _, _, user string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompts = append(e.prompts, user)
	if len(e.prompts) == 1 {
		return `[{"category":"Greeting","occurrences":1,"last_seen":"2025-09-26T10:00:00Z","samples":["hello"]}]`, nil
	}
	return "not json", nil
}

func TestEndToEndIngestSummarizePublish(t *testing.T) {
	logDir := t.TempDir()
	summaryDir := t.TempDir()
	group := domain.NewTargetGroup("Retail All-Stars")
	store := segments.NewStore(logDir, time.UTC, zerolog.Nop())

	before := time.Now().UTC().Format(domain.DateLayout)
	dispatcher := ingest.NewDispatcher(groupsuc.NewMatcher([]string{"Retail All-Stars"}), store, zerolog.Nop())
	events := make(chan domain.IngestEvent, 1)
	events <- domain.IngestEvent{Kind: domain.EventMessage, Message: domain.InboundMessage{
		ChatName: "Retail All-Stars", IsGroup: true, SenderName: "Jane", Body: "hello", Timestamp: time.Now(),
	}}
	close(events)
	dispatcher.Run(context.Background(), events)
	after := time.Now().UTC().Format(domain.DateLayout)

	entries, err := os.ReadDir(logDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ожидали один файл журнала, получили %v (%v)", entries, err)
	}
	segName := entries[0].Name()
	if segName != "retail-all-stars-messages-"+before+".txt" && segName != "retail-all-stars-messages-"+after+".txt" {
		t.Fatalf("неожиданное имя сегмента %s", segName)
	}
	data, err := os.ReadFile(filepath.Join(logDir, segName))
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	line := string(data)
	if domain.CountLines(data) != 1 || !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "] Jane: hello\n") {
		t.Fatalf("неожиданное содержимое сегмента %q", line)
	}

	var (
		mu     sync.Mutex
		posted []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		posted = append(posted, body)
		mu.Unlock()
		fmt.Fprint(w, `{"ok":true,"ts":"1.0001","channel":"C9"}`)
	}))
	defer srv.Close()

	engine := &scriptedEngine{}
	svc := summary.NewService(store, engine, summaries.NewStore(summaryDir), 15000, zerolog.Nop())
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	pub := slack.NewPublisher(srv.Client(), "xoxb-test", srv.URL, policy, zerolog.Nop())
	o := New([]domain.TargetGroup{group}, store, svc, pub, nil, Options{Model: "gpt-4o-mini", Channel: "C9", Post: true}, zerolog.Nop())

	report, err := o.RunDiscovery(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res := resultFor(t, report, "retail-all-stars")
	if res.State != StatePublished {
		t.Fatalf("ожидали published, получили %s %v", res.State, res.Err)
	}
	if len(engine.prompts) == 0 || !strings.Contains(engine.prompts[0], "Jane: hello") {
		t.Fatalf("модель не получила содержимое журнала: %v", engine.prompts)
	}
	saved, err := os.ReadFile(filepath.Join(summaryDir, "retail-all-stars-summary.txt"))
	if err != nil {
		t.Fatalf("сводка не сохранена: %v", err)
	}
	if !strings.Contains(string(saved), "Summary for: "+segName) || !strings.Contains(string(saved), "Category: Greeting") {
		t.Fatalf("неожиданная сводка:\n%s", saved)
	}
	if len(posted) != 1 {
		t.Fatalf("ожидали одну публикацию, получили %d", len(posted))
	}
	raw, _ := json.Marshal(posted[0])
	for _, want := range []string{"Retail All-Stars", segName, "Greeting"} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("в сообщении нет %q: %s", want, raw)
		}
	}
}
