package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/metrics"
)

// Postgres хранит итоги публикаций сводок.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.NotificationRecordRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const schema = `
CREATE TABLE IF NOT EXISTS notification_records (
    id              BIGSERIAL PRIMARY KEY,
    run_id          TEXT        NOT NULL,
    group_slug      TEXT        NOT NULL,
    group_name      TEXT        NOT NULL,
    channel         TEXT        NOT NULL,
    status          TEXT        NOT NULL,
    external_id     TEXT,
    idempotency_key TEXT        NOT NULL,
    model           TEXT        NOT NULL,
    sources         TEXT        NOT NULL,
    generated_at    TIMESTAMPTZ NOT NULL,
    posted_at       TIMESTAMPTZ NOT NULL,
    error           TEXT
);
CREATE INDEX IF NOT EXISTS notification_records_key_idx ON notification_records (idempotency_key);
`

// EnsureSchema создаёт таблицу записей, если её нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, schema)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "notification_records", start, err)
	return err
}

// SaveNotification реализует domain.NotificationRecordRepo.
func (p *Postgres) SaveNotification(ctx context.Context, runID string, r domain.NotificationRecord) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	postedAt := r.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO notification_records
    (run_id, group_slug, group_name, channel, status, external_id, idempotency_key, model, sources, generated_at, posted_at, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`,
		runID,
		r.Artifact.Group.Slug,
		r.Artifact.Group.DisplayName,
		r.Channel,
		string(r.Status),
		nullString(r.ExternalID),
		r.IdempotencyKey,
		r.Artifact.Model,
		strings.Join(r.Artifact.Sources(), ","),
		r.Artifact.GeneratedAt.UTC(),
		postedAt.UTC(),
		nullString(r.Error),
	)
	metrics.ObserveNetworkRequest("postgres", "notification_records_insert", "notification_records", start, err)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
