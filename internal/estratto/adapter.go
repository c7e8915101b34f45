package estratto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Adapter runs single chunks against the extraction model, enforcing the
// retry policy: rate limits and transient overloads are retried with
// backoff, anything else fails the chunk. A failed chunk is reported and
// skipped; it never aborts the rest of the import.
type Adapter struct {
	model      ExtractionModel
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func NewAdapter(model ExtractionModel, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *Adapter {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return &Adapter{model: model, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// ChunkOutcome is one chunk's result after retries: the recovered raw
// transactions plus any truncation warning.
type ChunkOutcome struct {
	Transactions []RawTransaction
	Truncated    bool
}

// ProcessChunk calls the model for one chunk, emitting waiting events for
// each backoff pause.
func (a *Adapter) ProcessChunk(ctx context.Context, chunk Chunk, emit EventSink) (*ChunkOutcome, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		result, err := a.model.ExtractChunk(ctx, chunk)
		if err == nil {
			outcome := &ChunkOutcome{
				Transactions: RepairTransactions(result.RawText),
				Truncated:    result.Truncated(),
			}
			if outcome.Truncated {
				a.logger.Warn("Model output truncated, keeping recoverable prefix",
					zap.Int("chunk", chunk.Index),
					zap.Int("recovered", len(outcome.Transactions)),
				)
			}
			return outcome, nil
		}

		lastErr = err
		if !retryable(err) || attempt == a.maxRetries {
			break
		}

		wait := a.baseDelay * time.Duration(1<<attempt)
		a.logger.Info("Transient model error, backing off",
			zap.Int("chunk", chunk.Index),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if emit != nil {
			emit(Event{
				Type:        EventWaiting,
				Chunk:       chunk.Index,
				WaitSeconds: int(wait / time.Second),
			})
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("chunk %d failed: %w", chunk.Index, lastErr)
}

func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrModelOverloaded) ||
		errors.Is(err, context.DeadlineExceeded)
}
