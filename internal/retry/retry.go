package retry

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/config"
)

// Policy bounds how often an upstream call is retried and how long it waits in between.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func NewPolicy(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// statusCodePattern matches the status the OpenAI client puts in its errors,
// e.g. "API returned unexpected status code: 401: Incorrect API key provided".
var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

// rejectedPhrases are lower-cased fragments of errors a retry cannot fix.
// The Ollama client only reports the server's message, not the status.
var rejectedPhrases = []string{
	"invalid api key",
	"incorrect api key",
	"invalid_api_key",
	"unauthorized",
	"try pulling it first",
	"does not support embeddings",
}

// IsClientError reports whether err is a request the upstream rejected, such as
// a 4xx response or a bad API key. 408 and 429 are transient.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
			return false
		case code >= 400 && code < 500:
			return true
		}
	}
	lower := strings.ToLower(msg)
	for _, phrase := range rejectedPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Classify marks client errors permanent and leaves everything else retryable.
func Classify(err error) error {
	if IsClientError(err) {
		return Permanent(err)
	}
	return err
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	opts := []backoff.ExponentialBackOffOpts{backoff.WithMaxElapsedTime(0)}
	if p.InitialInterval > 0 {
		opts = append(opts, backoff.WithInitialInterval(p.InitialInterval))
	}
	if p.MaxInterval > 0 {
		opts = append(opts, backoff.WithMaxInterval(p.MaxInterval))
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(opts...), uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

// Do runs op until it succeeds, returns a permanent error, or the attempts are exhausted.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	var result T
	err := backoff.RetryNotify(func() error {
		attempt++
		res, err := op(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("call", name).Int("attempt", attempt).Dur("retry_in", wait).Msg("Upstream call failed, retrying")
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
