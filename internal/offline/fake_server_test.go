package offline

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiwari-pos/ordercore/internal/enum"
)

// fakeServer is an idempotent order server with injectable failures.
type fakeServer struct {
	mu      sync.Mutex
	stock   map[string]int32
	orders  map[string]*Order // by idempotency key
	next    int
	submits int
	lookups int

	// down refuses every call before it reaches the catalog.
	down bool
	// dropReplies applies submits but loses the reply, like a timeout.
	dropReplies int
}

func newFakeServer(stock map[string]int32) *fakeServer {
	return &fakeServer{stock: stock, orders: map[string]*Order{}}
}

func (f *fakeServer) Submit(ctx context.Context, key string, req CheckoutRequest) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.down {
		return nil, fmt.Errorf("dial tcp: connection refused: %w", ErrUnavailable)
	}
	if o, ok := f.orders[key]; ok {
		return f.reply(o)
	}
	for _, l := range req.Items {
		avail, ok := f.stock[l.ProductID]
		if !ok {
			return nil, &RejectedError{Kind: enum.ErrorKindProductNotFound, Message: "product not found in outlet"}
		}
		if avail < l.Quantity {
			return nil, &RejectedError{Kind: enum.ErrorKindInsufficientStock, Message: "insufficient stock"}
		}
	}
	for _, l := range req.Items {
		f.stock[l.ProductID] -= l.Quantity
	}
	f.next++
	o := &Order{ID: fmt.Sprintf("order-%d", f.next), OrderNumber: fmt.Sprintf("ORD-%04d", f.next), Status: enum.OrderStatusNew}
	f.orders[key] = o
	return f.reply(o)
}

func (f *fakeServer) reply(o *Order) (*Order, error) {
	if f.dropReplies > 0 {
		f.dropReplies--
		return nil, fmt.Errorf("context deadline exceeded: %w", ErrUnavailable)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeServer) Lookup(ctx context.Context, key string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.down {
		return nil, ErrUnavailable
	}
	o, ok := f.orders[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeServer) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeServer) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}
