package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"
)

// TargetGroup описывает отслеживаемую группу чата.
type TargetGroup struct {
	DisplayName string
	Slug        string
}

// NewTargetGroup строит группу по отображаемому имени.
func NewTargetGroup(displayName string) TargetGroup {
	return TargetGroup{DisplayName: displayName, Slug: Slug(displayName)}
}

// LogSegment — дневной файл журнала одной группы.
type LogSegment struct {
	Group TargetGroup
	Date  time.Time
	Path  string
}

// Filename возвращает имя файла сегмента без каталога.
func (s LogSegment) Filename() string {
	return filepath.Base(s.Path)
}

// LogEntry — одна строка журнала.
type LogEntry struct {
	Timestamp  time.Time
	SenderName string
	Body       string
}

// SummaryArtifact содержит результат суммаризации одного или нескольких сегментов.
type SummaryArtifact struct {
	Group          TargetGroup
	SourceSegments []LogSegment
	// SourceNames хранит имена исходных файлов, если сегменты не восстановить (pass-through).
	SourceNames []string
	GeneratedAt time.Time
	Model       string
	Text        string
	Path        string
}

// Sources возвращает имена исходных файлов в порядке суммаризации.
func (a SummaryArtifact) Sources() []string {
	if len(a.SourceSegments) == 0 {
		return a.SourceNames
	}
	names := make([]string, 0, len(a.SourceSegments))
	for _, seg := range a.SourceSegments {
		names = append(names, seg.Filename())
	}
	return names
}

// TimeRange возвращает диапазон дат исходных сегментов. ok=false, если дат нет.
func (a SummaryArtifact) TimeRange() (from, to time.Time, ok bool) {
	for _, seg := range a.SourceSegments {
		if seg.Date.IsZero() {
			continue
		}
		if !ok || seg.Date.Before(from) {
			from = seg.Date
		}
		if !ok || seg.Date.After(to) {
			to = seg.Date
		}
		ok = true
	}
	return from, to, ok
}

// IdempotencyKey возвращает стабильный ключ публикации артефакта.
func (a SummaryArtifact) IdempotencyKey() string {
	sum := sha256.Sum256([]byte(a.Group.Slug + "|" + a.GeneratedAt.UTC().Format(time.RFC3339Nano) + "|" + a.Model))
	return hex.EncodeToString(sum[:16])
}

// NotificationStatus описывает исход публикации.
type NotificationStatus string

const (
	NotificationPosted    NotificationStatus = "posted"
	NotificationFailed    NotificationStatus = "failed"
	NotificationDuplicate NotificationStatus = "duplicate"
)

// NotificationRecord фиксирует попытку публикации артефакта в канал.
type NotificationRecord struct {
	Artifact       SummaryArtifact
	Channel        string
	PostedAt       time.Time
	Status         NotificationStatus
	ExternalID     string
	IdempotencyKey string
	Error          string
}

// Issue — одна категория обращений в сводке "Unique Issues".
type Issue struct {
	Category    string   `json:"category"`
	Occurrences int      `json:"occurrences"`
	LastSeen    string   `json:"last_seen"`
	Samples     []string `json:"samples"`
}

// SegmentStat описывает файл журнала для статусного запроса.
type SegmentStat struct {
	Filename   string
	Group      TargetGroup
	SizeBytes  int64
	CreatedAt  time.Time
	ModifiedAt time.Time
	LineCount  int
}
