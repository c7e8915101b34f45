package estratto

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WindowRequest asks the processor to handle at most MaxChunks chunks
// starting at StartChunk. One request is one client round trip; a single
// invocation cannot safely chew through an unbounded statement within its
// execution deadline, hence the cursor.
type WindowRequest struct {
	BatchID    uuid.UUID
	AccountID  uuid.UUID
	StartChunk int
	MaxChunks  int
}

// WindowProcessor executes one window of chunks sequentially, in page
// order. Chunks are never processed in parallel: the model's rate limit
// and the memory bound both want one in flight at a time, with a short
// proactive delay in between.
type WindowProcessor struct {
	adapter    *Adapter
	chunkDelay time.Duration
	logger     *zap.Logger
}

func NewWindowProcessor(adapter *Adapter, chunkDelay time.Duration, logger *zap.Logger) *WindowProcessor {
	return &WindowProcessor{adapter: adapter, chunkDelay: chunkDelay, logger: logger}
}

// Process runs the requested window over the pre-split chunks and returns
// the terminal done event. Per-chunk progress, backoff waits and chunk
// failures are pushed through emit as they happen.
func (w *WindowProcessor) Process(ctx context.Context, chunks []Chunk, req WindowRequest, emit EventSink) Event {
	total := len(chunks)
	start := req.StartChunk
	if start < 0 {
		start = 0
	}
	maxChunks := req.MaxChunks
	if maxChunks < 1 {
		maxChunks = 1
	}
	end := start + maxChunks
	if end > total {
		end = total
	}

	var raws []RawTransaction
	var failed []int
	var warnings []string

	for i := start; i < end; i++ {
		if i > start && w.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				warnings = append(warnings, "window cancelled before completion")
				end = i
				goto done
			case <-time.After(w.chunkDelay):
			}
		}

		outcome, err := w.adapter.ProcessChunk(ctx, chunks[i], emit)
		if err != nil {
			failed = append(failed, i)
			warnings = append(warnings, fmt.Sprintf("chunk %d failed: %s", i, truncateError(err)))
			if emit != nil {
				emit(Event{Type: EventChunkError, Chunk: i, Error: truncateError(err)})
			}
			if ctx.Err() != nil {
				end = i
				break
			}
			continue
		}

		if outcome.Truncated {
			warnings = append(warnings, fmt.Sprintf("chunk %d output truncated, recovered %d transactions", i, len(outcome.Transactions)))
		}
		raws = append(raws, outcome.Transactions...)

		if emit != nil {
			emit(Event{
				Type:        EventProgress,
				Chunk:       i,
				TotalChunks: total,
				Found:       len(raws),
			})
		}
	}

done:
	transactions := Normalize(raws, req.BatchID, req.AccountID)
	w.logger.Info("Window processed",
		zap.Int("start_chunk", start),
		zap.Int("end_chunk", end),
		zap.Int("total_chunks", total),
		zap.Int("transactions", len(transactions)),
		zap.Int("failed_chunks", len(failed)),
	)

	doneEvent := Event{
		Type:         EventDone,
		Transactions: transactions,
		FailedChunks: failed,
		Warnings:     warnings,
		TotalChunks:  total,
		StartChunk:   start,
		EndChunk:     end,
		HasMore:      end < total,
	}
	if doneEvent.HasMore {
		next := end
		doneEvent.NextStart = &next
	}
	return doneEvent
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > 300 {
		msg = msg[:300] + "…"
	}
	return msg
}
