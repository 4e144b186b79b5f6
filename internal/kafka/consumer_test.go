package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// fakeReader serves a fixed set of messages then blocks until cancelled.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	c := NewConsumer(r, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var mu sync.Mutex
	seen := 0
	go func() {
		done <- c.Start(ctx, func(ctx context.Context, m kafka.Message) error {
			mu.Lock()
			seen++
			mu.Unlock()
			if m.Offset == 2 {
				return errors.New("boom")
			}
			return nil
		})
	}()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := seen
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("handled %d messages, want 3", n)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Start returned %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.committed) != 2 || r.committed[0] != 1 || r.committed[1] != 3 {
		t.Errorf("committed = %v, want [1 3]", r.committed)
	}
	if !r.closed {
		t.Error("reader not closed")
	}
}
