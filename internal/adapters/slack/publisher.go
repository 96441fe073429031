package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
	"grouplog-digest/internal/infra/metrics"
	"grouplog-digest/internal/infra/retry"
)

const defaultAPIBase = "https://slack.com/api"

// permanentCodes — ошибки Slack API, которые не исправятся повтором.
var permanentCodes = map[string]bool{
	"invalid_auth":      true,
	"not_authed":        true,
	"account_inactive":  true,
	"token_revoked":     true,
	"missing_scope":     true,
	"channel_not_found": true,
	"not_in_channel":    true,
	"invalid_blocks":    true,
	"msg_too_long":      true,
	"no_text":           true,
}

// Publisher публикует сводки через chat.postMessage.
type Publisher struct {
	http    *http.Client
	token   string
	apiBase string
	policy  retry.Policy
	log     zerolog.Logger
	now     func() time.Time
}

// NewPublisher создаёт публикатор Slack. Токен не попадает в логи.
func NewPublisher(httpClient *http.Client, token, apiBase string, policy retry.Policy, logger zerolog.Logger) *Publisher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &Publisher{
		http:    httpClient,
		token:   token,
		apiBase: strings.TrimRight(apiBase, "/"),
		policy:  policy.Normalized(),
		log:     logger,
		now:     time.Now,
	}
}

type metadata struct {
	EventType    string            `json:"event_type"`
	EventPayload map[string]string `json:"event_payload"`
}

type postMessageRequest struct {
	Channel     string    `json:"channel"`
	Text        string    `json:"text"`
	Blocks      []Block   `json:"blocks"`
	Metadata    *metadata `json:"metadata,omitempty"`
	UnfurlLinks bool      `json:"unfurl_links"`
}

type postMessageResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	TS      string `json:"ts"`
	Channel string `json:"channel"`
}

// Publish отправляет сводку в канал. Ключ идемпотентности передаётся в metadata сообщения.
func (p *Publisher) Publish(ctx context.Context, a domain.SummaryArtifact, channel string) (domain.NotificationRecord, error) {
	key := a.IdempotencyKey()
	record := domain.NotificationRecord{Artifact: a, Channel: channel, IdempotencyKey: key}
	fail := func(err error) (domain.NotificationRecord, error) {
		record.Status = domain.NotificationFailed
		record.PostedAt = p.now()
		record.Error = err.Error()
		return record, &domain.PublishError{Group: a.Group.DisplayName, Channel: channel, Permanent: domain.IsPermanent(err), Err: err}
	}
	if p.token == "" {
		return fail(domain.MarkPermanent(errors.New("slack: bot token is empty")))
	}
	if channel == "" {
		return fail(domain.MarkPermanent(errors.New("slack: channel is empty")))
	}

	body, err := json.Marshal(postMessageRequest{
		Channel: channel,
		Text:    FallbackText(a),
		Blocks:  BuildBlocks(a),
		Metadata: &metadata{
			EventType:    "group_summary_posted",
			EventPayload: map[string]string{"idempotency_key": key, "group": a.Group.Slug},
		},
	})
	if err != nil {
		return fail(domain.MarkPermanent(fmt.Errorf("slack: marshal: %w", err)))
	}

	var resp postMessageResponse
	_, err = retry.Do(ctx, p.policy, func(ctx context.Context) error {
		var callErr error
		resp, callErr = p.post(ctx, body)
		return callErr
	}, func(err error, wait time.Duration) {
		p.log.Warn().Err(err).Str("group", a.Group.Slug).Str("channel", channel).Dur("retry_in", wait).Msg("slack: повтор публикации")
	})
	if err != nil {
		return fail(err)
	}
	record.Status = domain.NotificationPosted
	record.PostedAt = p.now()
	record.ExternalID = resp.TS
	if resp.Channel != "" {
		record.Channel = resp.Channel
	}
	return record, nil
}

func (p *Publisher) post(ctx context.Context, body []byte) (resp postMessageResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("slack", "chat.postMessage", "slack", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return resp, domain.MarkPermanent(fmt.Errorf("slack: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	httpResp, err := p.http.Do(req)
	if err != nil {
		return resp, fmt.Errorf("slack: do request: %w", err)
	}
	defer httpResp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return resp, fmt.Errorf("slack: read response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return resp, &retry.AfterError{Wait: retryAfter(httpResp.Header), Err: errors.New("slack: rate limited")}
	case httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusRequestTimeout:
		return resp, fmt.Errorf("slack: unexpected status %d", httpResp.StatusCode)
	case httpResp.StatusCode >= 400:
		return resp, domain.MarkPermanent(fmt.Errorf("slack: unexpected status %d", httpResp.StatusCode))
	}

	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, fmt.Errorf("slack: decode response: %w", err)
	}
	if !resp.OK {
		apiErr := fmt.Errorf("slack: api error %q", resp.Error)
		switch {
		case permanentCodes[resp.Error]:
			return resp, domain.MarkPermanent(apiErr)
		case resp.Error == "ratelimited":
			return resp, &retry.AfterError{Wait: retryAfter(httpResp.Header), Err: apiErr}
		default:
			return resp, apiErr
		}
	}
	return resp, nil
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
