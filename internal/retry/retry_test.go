package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastPolicy(3), "chat_model", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("temporarily unavailable")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	cause := errors.New("503")
	_, err := Do(context.Background(), fastPolicy(2), "embedding_model", func(ctx context.Context) (int, error) {
		calls++
		return 0, cause
	})
	require.ErrorIs(t, err, cause)
	require.Equal(t, 2, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	cause := errors.New("bad request")
	_, err := Do(context.Background(), fastPolicy(5), "chat_model", func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(cause)
	})
	require.ErrorIs(t, err, cause)
	require.Equal(t, 1, calls)
}

func TestDoDoesNotRetryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, fastPolicy(5), "chat_model", func(ctx context.Context) (int, error) {
		calls++
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestZeroAttemptsStillCallsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{}, "chat_model", func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestIsClientError(t *testing.T) {
	cases := map[string]bool{
		"API returned unexpected status code: 401: Incorrect API key provided": true,
		"API returned unexpected status code: 400: max_tokens is too large":    true,
		"API returned unexpected status code: 404":                             true,
		"API returned unexpected status code: 429: Rate limit reached":         false,
		"API returned unexpected status code: 408":                             false,
		"API returned unexpected status code: 503: overloaded":                 false,
		`model "nomic-embed-text" not found, try pulling it first`:             true,
		"connection refused":                                                   false,
	}
	for msg, want := range cases {
		t.Run(msg, func(t *testing.T) {
			require.Equal(t, want, IsClientError(errors.New(msg)))
		})
	}
	require.False(t, IsClientError(nil))
	require.NoError(t, Classify(nil))
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	cause := errors.New("API returned unexpected status code: 401: Incorrect API key provided")
	_, err := Do(context.Background(), fastPolicy(5), "chat_model", func(ctx context.Context) (int, error) {
		calls++
		return 0, Classify(cause)
	})
	require.ErrorIs(t, err, cause)
	require.Equal(t, 1, calls)
}
