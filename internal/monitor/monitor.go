package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"stokpos/internal/domain"
)

const (
	DefaultThreshold = 5
	DefaultInterval  = 10 * time.Minute
)

// Lister supplies the products at or under a stock threshold.
type Lister interface {
	LowStockList(ctx context.Context, threshold int) ([]domain.LowStockProduct, error)
}

// Notifier delivers a single low-stock notification. Delivery failure keeps
// the product eligible for the next scan.
type Notifier interface {
	Notify(ctx context.Context, product domain.LowStockProduct) error
}

// LogNotifier writes notifications to the structured log. It stands in for
// an email or webhook sink.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, product domain.LowStockProduct) error {
	n.logger.Warn(Message(product),
		zap.String("product_id", product.ProductID),
		zap.Int("quantity", product.Quantity),
	)
	return nil
}

// Monitor scans for low-stock products on an interval and on demand after
// sales. At most one scan runs at a time: overlapping triggers are dropped,
// not queued. It notifies once per distinct quantity per product, so a
// product sitting at the same low quantity across scans stays silent, but
// every further drop notifies again. Recovery above the threshold clears the
// product's state so the next dip notifies.
type Monitor struct {
	lister    Lister
	notifier  Notifier
	logger    *zap.Logger
	threshold int
	interval  time.Duration

	running atomic.Bool

	mu           sync.Mutex
	lastNotified map[string]int
}

func New(lister Lister, notifier Notifier, logger *zap.Logger, threshold int, interval time.Duration) *Monitor {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		lister:       lister,
		notifier:     notifier,
		logger:       logger,
		threshold:    threshold,
		interval:     interval,
		lastNotified: make(map[string]int),
	}
}

// Run scans immediately, then on every interval tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Trigger(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Trigger(ctx)
		}
	}
}

// Trigger runs one scan unless another is already in flight, in which case it
// returns false and does nothing. Sale completion calls this in a goroutine;
// a skipped trigger is fine because the periodic scan will catch up.
func (m *Monitor) Trigger(ctx context.Context) bool {
	if !m.running.CompareAndSwap(false, true) {
		return false
	}
	defer m.running.Store(false)

	m.scan(ctx)
	return true
}

func (m *Monitor) scan(ctx context.Context) {
	low, err := m.lister.LowStockList(ctx, m.threshold)
	if err != nil {
		m.logger.Error("low stock scan failed", zap.Error(err))
		return
	}

	lowSet := make(map[string]struct{}, len(low))
	for _, product := range low {
		lowSet[product.ProductID] = struct{}{}
	}

	m.mu.Lock()
	for productID := range m.lastNotified {
		if _, stillLow := lowSet[productID]; !stillLow {
			delete(m.lastNotified, productID)
		}
	}
	pending := make([]domain.LowStockProduct, 0, len(low))
	for _, product := range low {
		if last, seen := m.lastNotified[product.ProductID]; seen && last == product.Quantity {
			continue
		}
		pending = append(pending, product)
	}
	m.mu.Unlock()

	for _, product := range pending {
		if err := m.notifier.Notify(ctx, product); err != nil {
			// Keep the old state so the product notifies on the next scan.
			m.logger.Error("low stock notification failed",
				zap.String("product_id", product.ProductID),
				zap.Error(err),
			)
			continue
		}
		m.mu.Lock()
		m.lastNotified[product.ProductID] = product.Quantity
		m.mu.Unlock()
	}
}

// Message renders the human-readable notification body.
func Message(product domain.LowStockProduct) string {
	return fmt.Sprintf("Low stock: %s (%d left)", product.Name, product.Quantity)
}
