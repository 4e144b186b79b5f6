package offline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/ordercore/internal/enum"
)

type countingKicker struct{ kicks int }

func (k *countingKicker) Kick() { k.kicks++ }

func cart(productID string, qty int32) CheckoutRequest {
	return CheckoutRequest{
		PaymentMethod: enum.PaymentMethodCash,
		Items:         []Line{{ProductID: productID, Quantity: qty}},
	}
}

func newTestQueue(server Submitter) (*Queue, *MemoryStore, *countingKicker) {
	store := NewMemoryStore()
	kicker := &countingKicker{}
	q := NewQueue(store, server, kicker, time.Second)
	q.now = func() time.Time { return t0 }
	return q, store, kicker
}

func TestQueueCheckout_Completed(t *testing.T) {
	server := newFakeServer(map[string]int32{"kopi": 10})
	q, store, kicker := newTestQueue(server)

	res, err := q.Checkout(context.Background(), cart("kopi", 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateCompleted || res.Order == nil || res.Order.OrderNumber != "ORD-0001" {
		t.Fatalf("result = %+v", res)
	}
	if entries, _ := store.List(context.Background()); len(entries) != 0 {
		t.Errorf("completed checkout queued %d entries", len(entries))
	}
	if kicker.kicks != 0 {
		t.Error("completed checkout kicked the syncer")
	}
}

func TestQueueCheckout_RejectedIsFailed(t *testing.T) {
	server := newFakeServer(map[string]int32{"kopi": 1})
	q, store, _ := newTestQueue(server)

	res, err := q.Checkout(context.Background(), cart("kopi", 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFailed || res.Error == nil || res.Error.Kind != enum.ErrorKindInsufficientStock {
		t.Fatalf("result = %+v", res)
	}
	if entries, _ := store.List(context.Background()); len(entries) != 0 {
		t.Error("rejected checkout was queued")
	}
}

func TestQueueCheckout_UnreachableIsQueued(t *testing.T) {
	server := newFakeServer(map[string]int32{"kopi": 10})
	server.down = true
	q, store, kicker := newTestQueue(server)
	key := uuid.New()
	q.newKey = func() uuid.UUID { return key }

	res, err := q.Checkout(context.Background(), cart("kopi", 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StatePendingSync || res.EntryID == nil {
		t.Fatalf("result = %+v", res)
	}

	e, err := store.Get(context.Background(), *res.EntryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if e.IdempotencyKey != key.String() {
		t.Errorf("key = %s, want %s", e.IdempotencyKey, key)
	}
	if e.Status != enum.QueueStatusPending || e.Attempts != 1 || e.LastError == "" {
		t.Errorf("entry = %+v", e)
	}
	if !e.NextAttemptAt.Equal(t0) {
		t.Errorf("next attempt = %v, want immediately", e.NextAttemptAt)
	}
	if kicker.kicks != 1 {
		t.Errorf("kicks = %d, want 1", kicker.kicks)
	}
}

func TestQueueCheckout_EmptyCart(t *testing.T) {
	q, _, _ := newTestQueue(newFakeServer(nil))
	if _, err := q.Checkout(context.Background(), CheckoutRequest{PaymentMethod: enum.PaymentMethodCash}); err == nil {
		t.Fatal("expected error for empty cart")
	}
}

type failingStore struct{ Store }

func (failingStore) Enqueue(ctx context.Context, e Entry) error { return errors.New("disk full") }

func TestQueueCheckout_EnqueueFailureIsReported(t *testing.T) {
	server := newFakeServer(nil)
	server.down = true
	q := NewQueue(failingStore{NewMemoryStore()}, server, nil, time.Second)

	if _, err := q.Checkout(context.Background(), cart("kopi", 1)); err == nil {
		t.Fatal("expected error when the checkout cannot be stored")
	}
}
