package pipeline

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/compintel/cibot/internal/index"
	"github.com/compintel/cibot/tools/chunk"
)

// retryable reports whether a failed network call is worth repeating.
// Input-shape and lifecycle errors are defects or user errors; retrying
// them cannot change the outcome.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrMalformedPrompt),
		errors.Is(err, ErrAmbiguousIntent),
		errors.Is(err, chunk.ErrInvalidChunkConfig),
		errors.Is(err, index.ErrInvalidState),
		errors.Is(err, context.Canceled):
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var tempErr interface{ Temporary() bool }
	if errors.As(err, &tempErr) {
		return tempErr.Temporary()
	}
	return false
}

// withRetry runs fn up to 1+maxRetries times with exponential backoff,
// stopping early on non-retryable errors or context cancellation.
func withRetry(ctx context.Context, logger *log.Logger, maxRetries int, backoff time.Duration, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= maxRetries || !retryable(err) {
			return err
		}
		wait := backoff << attempt
		logger.Printf("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt+1, maxRetries+1, wait, err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return err
		}
	}
}
