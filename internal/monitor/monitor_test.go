package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"stokpos/internal/domain"
)

// fakeLister serves a mutable low-stock snapshot.
type fakeLister struct {
	mu  sync.Mutex
	low []domain.LowStockProduct
}

func (f *fakeLister) set(low ...domain.LowStockProduct) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.low = low
}

func (f *fakeLister) LowStockList(_ context.Context, _ int) ([]domain.LowStockProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.LowStockProduct(nil), f.low...), nil
}

// recordingNotifier collects notifications and optionally fails them.
type recordingNotifier struct {
	mu       sync.Mutex
	notified []domain.LowStockProduct
	fail     bool
}

func (n *recordingNotifier) Notify(_ context.Context, product domain.LowStockProduct) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("delivery failed")
	}
	n.notified = append(n.notified, product)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notified)
}

func (n *recordingNotifier) setFail(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = fail
}

func TestMonitorNotifiesOncePerQuantity(t *testing.T) {
	lister := &fakeLister{}
	notifier := &recordingNotifier{}
	mon := New(lister, notifier, zap.NewNop(), 5, time.Minute)
	ctx := context.Background()

	item := domain.LowStockProduct{ProductID: "p1", Name: "Sugar", Quantity: 5}

	// 6 -> 5: first notification.
	lister.set(item)
	mon.Trigger(ctx)
	if notifier.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", notifier.count())
	}

	// 5 -> 4: a further drop notifies again.
	item.Quantity = 4
	lister.set(item)
	mon.Trigger(ctx)
	if notifier.count() != 2 {
		t.Fatalf("expected 2 notifications, got %d", notifier.count())
	}

	// Steady at 4 across repeated scans: silent.
	mon.Trigger(ctx)
	mon.Trigger(ctx)
	if notifier.count() != 2 {
		t.Fatalf("expected no repeat notifications, got %d", notifier.count())
	}
}

func TestMonitorRecoveryClearsState(t *testing.T) {
	lister := &fakeLister{}
	notifier := &recordingNotifier{}
	mon := New(lister, notifier, zap.NewNop(), 5, time.Minute)
	ctx := context.Background()

	lister.set(domain.LowStockProduct{ProductID: "p1", Name: "Sugar", Quantity: 4})
	mon.Trigger(ctx)
	if notifier.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", notifier.count())
	}

	// Restock above the threshold: the product leaves the low list.
	lister.set()
	mon.Trigger(ctx)
	if notifier.count() != 1 {
		t.Fatalf("expected no notification on recovery, got %d", notifier.count())
	}

	// Dipping again, even to the same quantity as before, notifies.
	lister.set(domain.LowStockProduct{ProductID: "p1", Name: "Sugar", Quantity: 4})
	mon.Trigger(ctx)
	if notifier.count() != 2 {
		t.Fatalf("expected notification after recovery and dip, got %d", notifier.count())
	}
}

func TestMonitorFailedNotificationStaysEligible(t *testing.T) {
	lister := &fakeLister{}
	notifier := &recordingNotifier{}
	mon := New(lister, notifier, zap.NewNop(), 5, time.Minute)
	ctx := context.Background()

	lister.set(domain.LowStockProduct{ProductID: "p1", Name: "Sugar", Quantity: 3})

	notifier.setFail(true)
	mon.Trigger(ctx)
	if notifier.count() != 0 {
		t.Fatalf("expected no recorded notifications, got %d", notifier.count())
	}

	// Delivery recovers; the same quantity must notify because the failed
	// attempt never updated the dedup state.
	notifier.setFail(false)
	mon.Trigger(ctx)
	if notifier.count() != 1 {
		t.Fatalf("expected notification after delivery recovered, got %d", notifier.count())
	}
}

// blockingLister holds a scan open until released.
type blockingLister struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingLister) LowStockList(_ context.Context, _ int) ([]domain.LowStockProduct, error) {
	b.entered <- struct{}{}
	<-b.release
	return nil, nil
}

func TestMonitorSkipsOverlappingTriggers(t *testing.T) {
	lister := &blockingLister{entered: make(chan struct{}, 2), release: make(chan struct{})}
	mon := New(lister, &recordingNotifier{}, zap.NewNop(), 5, time.Minute)

	done := make(chan bool, 1)
	go func() {
		done <- mon.Trigger(context.Background())
	}()

	select {
	case <-lister.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("scan never started")
	}

	if mon.Trigger(context.Background()) {
		t.Fatalf("expected overlapping trigger to be skipped")
	}

	close(lister.release)
	select {
	case first := <-done:
		if !first {
			t.Fatalf("expected first trigger to run")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first trigger never finished")
	}

	// With the first scan done, triggers run again.
	if !mon.Trigger(context.Background()) {
		t.Fatalf("expected trigger to run after scan finished")
	}
}
