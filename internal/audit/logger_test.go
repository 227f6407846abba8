package audit_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morannon-ai/morannon/internal/audit"
)

// fakeQuerier records Exec calls so the batch insert path can be tested
// without a database.
type fakeQuerier struct {
	mu    sync.Mutex
	execs []execCall
}

type execCall struct {
	sql  string
	args []any
}

func (f *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, nil
}

func (f *fakeQuerier) insertedActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var actions []string
	for _, call := range f.execs {
		if !strings.Contains(call.sql, "INSERT INTO audit_events") {
			continue
		}
		// Action is the third column of each 10-column row.
		for i := 2; i < len(call.args); i += 10 {
			actions = append(actions, call.args[i].(string))
		}
	}
	return actions
}

func TestAsyncLogger_FlushesOnClose(t *testing.T) {
	db := &fakeQuerier{}
	logger := audit.NewAsyncLogger(db, audit.NewStore(), audit.LoggerConfig{
		FlushInterval: time.Hour, // only Close should flush
	})

	logger.Log(context.Background(), audit.Event{Action: audit.ActionFilterBuilt, Subject: "alice"})
	logger.Log(context.Background(), audit.Event{Action: audit.ActionGateChunkDenied, Subject: "alice"})
	require.NoError(t, logger.Close())

	assert.ElementsMatch(t,
		[]string{audit.ActionFilterBuilt, audit.ActionGateChunkDenied},
		db.insertedActions())
}

func TestAsyncLogger_FlushesOnBatchSize(t *testing.T) {
	db := &fakeQuerier{}
	logger := audit.NewAsyncLogger(db, audit.NewStore(), audit.LoggerConfig{
		BatchSize:     2,
		FlushInterval: time.Hour,
	})
	defer logger.Close()

	logger.Log(context.Background(), audit.Event{Action: "a"})
	logger.Log(context.Background(), audit.Event{Action: "b"})

	require.Eventually(t, func() bool {
		return len(db.insertedActions()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAsyncLogger_NeverBlocksWhenBufferFull(t *testing.T) {
	db := &fakeQuerier{}
	logger := audit.NewAsyncLogger(db, audit.NewStore(), audit.LoggerConfig{
		BufferSize:    1,
		BatchSize:     1000,
		FlushInterval: time.Hour,
	})
	defer logger.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			logger.Log(context.Background(), audit.Event{Action: "burst"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a full buffer")
	}
}

func TestAsyncLogger_TeesToBroadcaster(t *testing.T) {
	b := audit.NewBroadcaster()
	events, cancel := b.Subscribe(8)
	defer cancel()

	db := &fakeQuerier{}
	logger := audit.NewAsyncLogger(db, audit.NewStore(), audit.LoggerConfig{},
		audit.WithBroadcaster(b))
	defer logger.Close()

	logger.Log(context.Background(), audit.Event{Action: audit.ActionCitationDenied, Tenant: "acme"})

	select {
	case got := <-events:
		assert.Equal(t, audit.ActionCitationDenied, got.Action)
		assert.Equal(t, "acme", got.Tenant)
	case <-time.After(time.Second):
		t.Fatal("broadcast event not delivered")
	}
}
