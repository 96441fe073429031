package pipeline

import (
	"time"

	"grouplog-digest/internal/domain"
)

// State — состояние группы в пакетном запуске.
type State string

const (
	StatePending         State = "pending"
	StateDiscovered      State = "discovered"
	StateSummarized      State = "summarized"
	StatePublished       State = "published"
	StateDiscoveryFailed State = "discovery_failed"
	StateSummarizeFailed State = "summarize_failed"
	StatePublishFailed   State = "publish_failed"
)

// Failed сообщает, является ли состояние терминальной ошибкой.
func (s State) Failed() bool {
	switch s {
	case StateDiscoveryFailed, StateSummarizeFailed, StatePublishFailed:
		return true
	}
	return false
}

// GroupResult — итог обработки одной группы.
type GroupResult struct {
	Group       domain.TargetGroup
	State       State
	Sources     []string
	SummaryPath string
	Record      *domain.NotificationRecord
	Err         error
}

// RunReport — итог пакетного запуска.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Groups     []GroupResult
}

// Failed сообщает, завершилась ли ошибкой хотя бы одна группа.
func (r RunReport) Failed() bool {
	return r.FailedCount() > 0
}

// FailedCount возвращает число групп в состоянии ошибки.
func (r RunReport) FailedCount() int {
	n := 0
	for _, g := range r.Groups {
		if g.State.Failed() {
			n++
		}
	}
	return n
}
