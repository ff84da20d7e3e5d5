package retrieval

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/veridoc/veridoc-backend/internal/pkg/apierr"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
)

func retryStore(t *testing.T) *corpusStore {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return &corpusStore{log: log.With("service", "CorpusStore")}
}

func connRefused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestWithRetrySurfacesPermanentErrorsImmediately(t *testing.T) {
	s := retryStore(t)
	calls := 0
	_, err := withRetry(context.Background(), s, "store.Test", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("SyntaxError: invalid input near RETRUN")
	})
	if calls != 1 {
		t.Fatalf("permanent failure must not be retried, got %d calls", calls)
	}
	if !apierr.IsKind(err, apierr.KindGraphUnavailable) {
		t.Fatalf("expected graph_unavailable, got %v", err)
	}
}

func TestWithRetryRetriesConnectionFailureOnce(t *testing.T) {
	s := retryStore(t)
	calls := 0
	_, err := withRetry(context.Background(), s, "store.Test", func(context.Context) (int, error) {
		calls++
		return 0, connRefused()
	})
	if calls != 2 {
		t.Fatalf("transient failure should be retried exactly once, got %d calls", calls)
	}
	if !apierr.IsKind(err, apierr.KindGraphTransient) {
		t.Fatalf("expected graph_transient after exhausted retry, got %v", err)
	}
}

func TestWithRetryRecoversOnSecondAttempt(t *testing.T) {
	s := retryStore(t)
	calls := 0
	out, err := withRetry(context.Background(), s, "store.Test", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, connRefused()
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("second attempt succeeded, got error %v", err)
	}
	if out != 7 || calls != 2 {
		t.Fatalf("expected the retried result, got out=%d calls=%d", out, calls)
	}
}

func TestWithRetryPassesCancellationThrough(t *testing.T) {
	s := retryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := withRetry(ctx, s, "store.Test", func(context.Context) (int, error) {
		cancel()
		return 0, connRefused()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation must surface as the context error, got %v", err)
	}
}
