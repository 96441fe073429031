package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"grouplog-digest/internal/domain"
	openaiinfra "grouplog-digest/internal/infra/openai"
	"grouplog-digest/internal/infra/retry"
)

var fastPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestCompleteRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
			return
		}
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"[]"}}]}`)
	}))
	defer srv.Close()

	engine := NewOpenAI(openaiinfra.NewClient("key", srv.URL, srv.Client()), fastPolicy, time.Second, zerolog.Nop())
	text, err := engine.Complete(context.Background(), "gpt-test", "sys", "user")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if text != "[]" {
		t.Fatalf("неожиданный ответ %q", text)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("ожидали 2 запроса, получили %d", got)
	}
}

func TestCompleteDoesNotRetryUnauthorized(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"auth"}}`)
	}))
	defer srv.Close()

	engine := NewOpenAI(openaiinfra.NewClient("key", srv.URL, srv.Client()), fastPolicy, time.Second, zerolog.Nop())
	_, err := engine.Complete(context.Background(), "gpt-test", "sys", "user")
	if !domain.IsPermanent(err) {
		t.Fatalf("ожидали постоянную ошибку, получили %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("ожидали один запрос, получили %d", got)
	}
}

type stubCompleter struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubCompleter) Complete(context.Context, string, string, string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", nil
}

func TestCompleteRetriesEmptyAnswerThenGivesUp(t *testing.T) {
	stub := &stubCompleter{}
	engine := NewOpenAI(stub, fastPolicy, time.Second, zerolog.Nop())
	_, err := engine.Complete(context.Background(), "m", "s", "u")
	if !errors.Is(err, errEmptyCompletion) {
		t.Fatalf("ожидали errEmptyCompletion, получили %v", err)
	}
	if stub.calls != 3 {
		t.Fatalf("ожидали 3 попытки, получили %d", stub.calls)
	}
}
