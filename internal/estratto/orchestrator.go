package estratto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"primanota/internal/models"

	"go.uber.org/zap"
)

// defaultMaxWindows is the circuit breaker on the cursor loop: even a
// server that keeps honoring the monotonic-cursor rule cannot drag one
// import past this many round trips.
const defaultMaxWindows = 50

// Orchestrator drives the window protocol from the client side: a
// resumable iterator across a network boundary, modeled as an explicit
// state struct advanced by a loop so any caller can drive it without
// coroutines. Each round requests one window and reads its event stream;
// the terminal done event moves the cursor.
type Orchestrator struct {
	client        *http.Client
	endpoint      string
	maxChunks     int
	maxWindows    int
	windowTimeout time.Duration // applied per round
	logger        *zap.Logger
}

type OrchestratorOption func(*Orchestrator)

func WithMaxWindows(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxWindows = n }
}

func WithHTTPClient(c *http.Client) OrchestratorOption {
	return func(o *Orchestrator) { o.client = c }
}

// NewOrchestrator builds an orchestrator posting to endpoint (the extract
// URL for one statement). windowTimeout bounds each round trip.
func NewOrchestrator(endpoint string, maxChunksPerWindow int, windowTimeout time.Duration, logger *zap.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:        http.DefaultClient,
		endpoint:      endpoint,
		maxChunks:     maxChunksPerWindow,
		maxWindows:    defaultMaxWindows,
		windowTimeout: windowTimeout,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ImportResult is the accumulated outcome of a full cursor run.
type ImportResult struct {
	Transactions []models.BankTransaction
	FailedChunks []int
	Warnings     []string
	TotalChunks  int
	Windows      int
}

// Run advances the cursor until the server reports no more chunks. Events
// other than done are forwarded to onEvent as they arrive. Protocol
// violations (missing or non-increasing cursor) and per-window timeouts
// are fatal to the run; the caller may retry from scratch, dedup makes the
// replay harmless.
func (o *Orchestrator) Run(ctx context.Context, onEvent EventSink) (*ImportResult, error) {
	state := ImportResult{}
	seen := make(map[string]struct{})
	startChunk := 0

	for window := 0; ; window++ {
		if window >= o.maxWindows {
			return nil, ErrWindowCap
		}

		done, err := o.requestWindow(ctx, startChunk, onEvent)
		if err != nil {
			return nil, err
		}

		state.Windows++
		state.TotalChunks = done.TotalChunks
		state.FailedChunks = append(state.FailedChunks, done.FailedChunks...)
		state.Warnings = append(state.Warnings, done.Warnings...)
		for _, tx := range done.Transactions {
			// Windows can overlap after a client retry; the hash keeps the
			// accumulator idempotent.
			if _, dup := seen[tx.DedupHash]; dup {
				continue
			}
			seen[tx.DedupHash] = struct{}{}
			state.Transactions = append(state.Transactions, tx)
		}

		if !done.HasMore {
			o.logger.Info("Import complete",
				zap.Int("windows", state.Windows),
				zap.Int("transactions", len(state.Transactions)),
				zap.Int("failed_chunks", len(state.FailedChunks)),
			)
			return &state, nil
		}

		if done.NextStart == nil || *done.NextStart <= startChunk {
			return nil, fmt.Errorf("%w: start=%d next=%v", ErrBadCursor, startChunk, done.NextStart)
		}
		startChunk = *done.NextStart
	}
}

// requestWindow performs one round trip and reads the event stream through
// its terminal done event.
func (o *Orchestrator) requestWindow(ctx context.Context, startChunk int, onEvent EventSink) (*Event, error) {
	reqCtx := ctx
	if o.windowTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, o.windowTimeout)
		defer cancel()
	}

	u, err := url.Parse(o.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid extract endpoint: %w", err)
	}
	q := u.Query()
	q.Set("start_chunk", strconv.Itoa(startChunk))
	q.Set("max_chunks", strconv.Itoa(o.maxChunks))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(reqCtx, "POST", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create window request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || (reqCtx.Err() != nil && ctx.Err() == nil) {
			return nil, fmt.Errorf("%w (start_chunk=%d)", ErrWindowTimeout, startChunk)
		}
		return nil, fmt.Errorf("window request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("window request answered %d: %s", resp.StatusCode, string(body))
	}

	reader := NewEventReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("event stream ended without a done event (start_chunk=%d)", startChunk)
		}
		if err != nil {
			if reqCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("%w (start_chunk=%d)", ErrWindowTimeout, startChunk)
			}
			return nil, fmt.Errorf("failed to read event stream: %w", err)
		}
		if ev.Type == EventDone {
			return &ev, nil
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
}
