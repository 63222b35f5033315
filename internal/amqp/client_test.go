package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"expensetracker/internal/core"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("connection refused"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"other error", errors.New("some other error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "ledger", queueName: "ledger_events"}

	t.Run("initial state is closed", func(t *testing.T) {
		if client.isCircuitOpen() {
			t.Error("circuit breaker should be closed initially")
		}
	})

	t.Run("failures open the circuit", func(t *testing.T) {
		for i := 0; i < maxFailures; i++ {
			client.recordFailure()
		}
		if !client.isCircuitOpen() {
			t.Error("circuit breaker should be open after max failures")
		}
	})

	t.Run("half-open after timeout", func(t *testing.T) {
		client.lastFailure = time.Now().Add(-openTimeout - time.Second)
		if client.isCircuitOpen() {
			t.Error("circuit should let a trial request through after the timeout")
		}
		if atomic.LoadInt32(&client.state) != StateHalfOpen {
			t.Error("state should be StateHalfOpen")
		}
	})

	t.Run("failed trial request reopens", func(t *testing.T) {
		client.recordFailure()
		if atomic.LoadInt32(&client.state) != StateOpen {
			t.Error("a half-open failure must reopen the circuit")
		}
	})

	t.Run("success closes", func(t *testing.T) {
		client.recordSuccess()
		if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
			t.Error("success should reset the breaker")
		}
	})
}

func TestPublishLedgerEvent_FailsFast(t *testing.T) {
	client := &Client{exchangeName: "ledger", queueName: "ledger_events"}

	t.Run("open circuit", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.PublishLedgerEvent(context.Background(), core.EventTransactionCreated, 1, 2)
		if !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("err = %v, want ErrCircuitOpen", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		client.recordSuccess()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := client.PublishLedgerEvent(ctx, core.EventTransactionCreated, 1, 2); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	})
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func TestSettle(t *testing.T) {
	good, err := NewLedgerEvent(core.EventTransactionDeleted, 7, 9).ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	ok := func(context.Context, *LedgerEvent) error { return nil }
	failing := func(context.Context, *LedgerEvent) error { return errors.New("store down") }

	tests := []struct {
		name        string
		body        []byte
		handler     Handler
		wantAck     bool
		wantRequeue bool
		wantNack    bool
	}{
		{"handled", good, ok, true, false, false},
		{"handler error requeues", good, failing, false, true, true},
		{"garbage dropped", []byte("{"), ok, false, false, true},
		{"unknown type dropped", []byte(`{"type":"transaction.exploded","user_id":1}`), ok, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			settle(context.Background(), ack, tt.body, tt.handler)
			if ack.acked != tt.wantAck || ack.nacked != tt.wantNack || ack.requeued != tt.wantRequeue {
				t.Fatalf("ack=%v nack=%v requeue=%v", ack.acked, ack.nacked, ack.requeued)
			}
		})
	}
}

func TestLedgerEventJSON(t *testing.T) {
	msg := NewLedgerEvent(core.EventTransactionCreated, 3, 11)
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Fatalf("event not stamped: %+v", msg)
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	parsed, err := LedgerEventFromJSON(body)
	if err != nil {
		t.Fatalf("LedgerEventFromJSON: %v", err)
	}
	if parsed.ID != msg.ID || parsed.Type != msg.Type || parsed.UserID != 3 || parsed.TransactionID != 11 {
		t.Fatalf("parsed = %+v", parsed)
	}

	if _, err := LedgerEventFromJSON([]byte(`{"type":"ledger.purged","user_id":0}`)); err == nil {
		t.Fatal("event without user should be rejected")
	}
}
