package publisher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeConfirmation resolves once done is closed, like *amqp.DeferredConfirmation.
type fakeConfirmation struct {
	done chan struct{}
	ack  bool
}

func newFakeConfirmation() *fakeConfirmation {
	return &fakeConfirmation{done: make(chan struct{})}
}

func (f *fakeConfirmation) resolve(ack bool) {
	f.ack = ack
	close(f.done)
}

func (f *fakeConfirmation) WaitContext(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-f.done:
	}
	return f.ack, nil
}

func TestAwaitConfirm_Acked(t *testing.T) {
	conf := newFakeConfirmation()
	conf.resolve(true)

	if err := awaitConfirm(context.Background(), conf, "op-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAwaitConfirm_Nacked(t *testing.T) {
	conf := newFakeConfirmation()
	conf.resolve(false)

	err := awaitConfirm(context.Background(), conf, "op-1")
	if err == nil || !strings.Contains(err.Error(), "nacked") {
		t.Fatalf("expected nack error, got %v", err)
	}
}

func TestAwaitConfirm_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := awaitConfirm(ctx, newFakeConfirmation(), "op-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

// A late ack for a message that already timed out must not confirm the next one.
func TestAwaitConfirm_LateAckNotMisattributed(t *testing.T) {
	first := newFakeConfirmation()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := awaitConfirm(ctx, first, "op-1"); err == nil {
		t.Fatal("expected first publish to time out")
	}

	first.resolve(true)

	second := newFakeConfirmation()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if err := awaitConfirm(ctx2, second, "op-2"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second publish to wait for its own confirm, got %v", err)
	}

	second.resolve(false)
	if err := awaitConfirm(context.Background(), second, "op-2"); err == nil {
		t.Fatal("expected second publish to report its own nack")
	}
}
