package domain

import (
	"context"
	"time"
)

// SegmentWriter дозаписывает записи в дневные сегменты групп.
type SegmentWriter interface {
	Append(ctx context.Context, group TargetGroup, entry LogEntry) error
}

// SegmentIndex находит сегменты в каталоге журналов.
type SegmentIndex interface {
	// DiscoverLatest возвращает последний сегмент для каждой группы по slug.
	DiscoverLatest(ctx context.Context, groups []TargetGroup) (map[string]LogSegment, error)
	// ResolveExplicit проверяет явно указанный путь и определяет его группу.
	ResolveExplicit(ctx context.Context, path string, groups []TargetGroup) (LogSegment, error)
	// Status перечисляет все сегменты групп, свежие по времени изменения — первыми.
	Status(ctx context.Context, groups []TargetGroup) ([]SegmentStat, error)
}

// SegmentReader читает стабильный снимок сегмента.
type SegmentReader interface {
	ReadSnapshot(ctx context.Context, segment LogSegment) ([]byte, error)
}

// LogCatalog отдаёт содержимое файла журнала по уже проверенному имени.
type LogCatalog interface {
	SegmentIndex
	ReadNamed(ctx context.Context, filename string) ([]byte, error)
}

// SummaryEngine выполняет один запрос к внешней модели.
type SummaryEngine interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// SummaryStore хранит последнюю сводку каждой группы.
type SummaryStore interface {
	Save(ctx context.Context, artifact SummaryArtifact) (string, error)
	Load(ctx context.Context, path string, groups []TargetGroup) (SummaryArtifact, error)
}

// Publisher публикует сводку во внешний канал.
type Publisher interface {
	Publish(ctx context.Context, artifact SummaryArtifact, channel string) (NotificationRecord, error)
}

// NotificationRecordRepo сохраняет итоги публикаций.
type NotificationRecordRepo interface {
	SaveNotification(ctx context.Context, runID string, record NotificationRecord) error
}

// Cache используется для идемпотентных операций с TTL.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// EventSource поставляет события чат-транспорта в порядке поступления.
type EventSource interface {
	Run(ctx context.Context, out chan<- IngestEvent) error
}
