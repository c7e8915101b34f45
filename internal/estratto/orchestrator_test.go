package estratto

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"primanota/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// windowServer simulates the extract endpoint for a statement with
// totalChunks chunks, answering each window with a short event stream.
type windowServer struct {
	totalChunks int
	mu          sync.Mutex
	starts      []int
}

func (s *windowServer) handler(w http.ResponseWriter, r *http.Request) {
	start, _ := strconv.Atoi(r.URL.Query().Get("start_chunk"))
	maxChunks, _ := strconv.Atoi(r.URL.Query().Get("max_chunks"))

	s.mu.Lock()
	s.starts = append(s.starts, start)
	s.mu.Unlock()

	end := start + maxChunks
	if end > s.totalChunks {
		end = s.totalChunks
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	var txs []models.BankTransaction
	for i := start; i < end; i++ {
		WriteEvent(w, Event{Type: EventProgress, Chunk: i, TotalChunks: s.totalChunks, Found: i - start + 1})
		txs = append(txs, models.BankTransaction{
			Date:        fmt.Sprintf("2024-03-%02d", i+1),
			Amount:      float64(-i - 1),
			Description: fmt.Sprintf("chunk %d", i),
			DedupHash:   fmt.Sprintf("hash-%d", i),
		})
	}

	done := Event{
		Type:         EventDone,
		Transactions: txs,
		TotalChunks:  s.totalChunks,
		StartChunk:   start,
		EndChunk:     end,
		HasMore:      end < s.totalChunks,
	}
	if done.HasMore {
		next := end
		done.NextStart = &next
	}
	WriteEvent(w, done)
}

func TestOrchestratorRun(t *testing.T) {
	srv := &windowServer{totalChunks: 7}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	o := NewOrchestrator(ts.URL, 3, time.Minute, zap.NewNop())

	var progress int
	result, err := o.Run(context.Background(), func(ev Event) {
		if ev.Type == EventProgress {
			progress++
		}
	})
	require.NoError(t, err)

	// 7 chunks at 3 per window: exactly three round trips.
	assert.Equal(t, []int{0, 3, 6}, srv.starts)
	assert.Equal(t, 3, result.Windows)
	assert.Equal(t, 7, result.TotalChunks)
	assert.Len(t, result.Transactions, 7)
	assert.Equal(t, 7, progress)
	assert.Empty(t, result.FailedChunks)
}

func TestOrchestratorDedupAcrossWindows(t *testing.T) {
	// A server that replays chunk 2 in both windows; the accumulator must
	// not double-count it.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start_chunk"))
		done := Event{
			Type: EventDone,
			Transactions: []models.BankTransaction{
				{Date: "2024-03-03", Amount: -3, DedupHash: "hash-2"},
			},
			TotalChunks: 6,
			StartChunk:  start,
			EndChunk:    start + 3,
			HasMore:     start+3 < 6,
		}
		if done.HasMore {
			next := start + 3
			done.NextStart = &next
		}
		WriteEvent(w, done)
	}))
	defer ts.Close()

	o := NewOrchestrator(ts.URL, 3, time.Minute, zap.NewNop())
	result, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Windows)
	assert.Len(t, result.Transactions, 1)
}

func TestOrchestratorBadCursor(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// HasMore without a usable cursor.
		next := 0
		WriteEvent(w, Event{
			Type:        EventDone,
			TotalChunks: 9,
			HasMore:     true,
			NextStart:   &next,
		})
	}))
	defer ts.Close()

	o := NewOrchestrator(ts.URL, 3, time.Minute, zap.NewNop())
	_, err := o.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrBadCursor)
}

func TestOrchestratorMissingCursor(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteEvent(w, Event{Type: EventDone, TotalChunks: 9, HasMore: true})
	}))
	defer ts.Close()

	o := NewOrchestrator(ts.URL, 3, time.Minute, zap.NewNop())
	_, err := o.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrBadCursor)
}

func TestOrchestratorWindowCap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start_chunk"))
		next := start + 1
		WriteEvent(w, Event{
			Type:        EventDone,
			TotalChunks: 1000000,
			StartChunk:  start,
			EndChunk:    next,
			HasMore:     true,
			NextStart:   &next,
		})
	}))
	defer ts.Close()

	o := NewOrchestrator(ts.URL, 3, time.Minute, zap.NewNop(), WithMaxWindows(5))
	_, err := o.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrWindowCap)
}

func TestOrchestratorStreamEndsWithoutDone(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteEvent(w, Event{Type: EventProgress, Chunk: 0, TotalChunks: 2})
		// Connection drops before the done event.
	}))
	defer ts.Close()

	o := NewOrchestrator(ts.URL, 3, time.Minute, zap.NewNop())
	_, err := o.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a done event")
}

func TestOrchestratorNonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"batch not found"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	o := NewOrchestrator(ts.URL, 3, time.Minute, zap.NewNop())
	_, err := o.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOrchestratorWindowTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	o := NewOrchestrator(ts.URL, 3, 50*time.Millisecond, zap.NewNop())
	_, err := o.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrWindowTimeout)
}
