package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stokpos/internal/cache"
	"stokpos/internal/domain"
	"stokpos/internal/store"
	"stokpos/internal/store/memory"
)

func newTestService() (*Service, store.Repository) {
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopBalanceCache{}, nil, zap.NewNop(), time.Second)
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func createProduct(t *testing.T, svc *Service, name string, barcode string, price string, stock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		CategoryID:   "cat-grocery",
		Name:         name,
		Barcode:      barcode,
		PriceUnit:    decimal.RequireFromString(price),
		InitialStock: stock,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func TestCompleteSaleDecrementsStockAndWritesLedger(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()

	product := createProduct(t, svc, "Flour 1kg", "600000000001", "150.00", 10)

	result, err := svc.CompleteSale(ctx, domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: product.ID, Qty: 3}},
	})
	if err != nil {
		t.Fatalf("complete sale failed: %v", err)
	}

	if result.Sale.TotalQuantity != 3 {
		t.Fatalf("expected total quantity 3, got %d", result.Sale.TotalQuantity)
	}
	wantTotal := decimal.RequireFromString("450.00")
	if !result.Sale.TotalPrice.Equal(wantTotal) {
		t.Fatalf("expected total %s, got %s", wantTotal, result.Sale.TotalPrice)
	}
	if result.Invoice.ID == "" || result.Invoice.SaleID != result.Sale.ID {
		t.Fatalf("expected invoice referencing sale, got %+v", result.Invoice)
	}
	if result.Invoice.Type != domain.InvoiceSale {
		t.Fatalf("expected sale invoice, got %s", result.Invoice.Type)
	}

	balance, err := svc.BalanceOf(ctx, product.ID)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 7 {
		t.Fatalf("expected balance 7 after sale, got %d", balance)
	}

	entries, _, err := repo.LedgerHistory(ctx, product.ID, "", 10)
	if err != nil {
		t.Fatalf("ledger history failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries (initial stock + sale), got %d", len(entries))
	}
	newest := entries[0]
	if newest.EntryType != domain.EntrySale || newest.QuantityDelta != -3 {
		t.Fatalf("expected sale entry with delta -3, got %+v", newest)
	}
	if newest.SaleID != result.Sale.ID {
		t.Fatalf("expected sale entry to reference sale %s, got %s", result.Sale.ID, newest.SaleID)
	}
}

func TestCompleteSaleInsufficientStockLeavesNoTrace(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()

	product := createProduct(t, svc, "Rice 5kg", "600000000002", "900.00", 2)

	_, err := svc.CompleteSale(ctx, domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: product.ID, Qty: 5}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	balance, err := svc.BalanceOf(ctx, product.ID)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 2 {
		t.Fatalf("expected balance unchanged at 2, got %d", balance)
	}

	entries, _, err := repo.LedgerHistory(ctx, product.ID, "", 10)
	if err != nil {
		t.Fatalf("ledger history failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the initial stock entry, got %d entries", len(entries))
	}
}

func TestCompleteSaleMergesDuplicateCartLines(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	product := createProduct(t, svc, "Milk 1L", "600000000003", "95.00", 10)

	result, err := svc.CompleteSale(ctx, domain.CompleteSaleRequest{
		Cart: []domain.CartLine{
			{ProductID: product.ID, Qty: 2},
			{ProductID: product.ID, Qty: 3},
		},
	})
	if err != nil {
		t.Fatalf("complete sale failed: %v", err)
	}
	if len(result.Sale.Items) != 1 {
		t.Fatalf("expected merged single line item, got %d", len(result.Sale.Items))
	}
	if result.Sale.Items[0].Qty != 5 {
		t.Fatalf("expected merged qty 5, got %d", result.Sale.Items[0].Qty)
	}
}

func TestCompleteSaleRejectsNonPositiveQuantityLine(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()

	product := createProduct(t, svc, "Butter 250g", "600000000011", "180.00", 10)

	// One bad line fails the whole cart; the valid line must not sell.
	_, err := svc.CompleteSale(ctx, domain.CompleteSaleRequest{
		Cart: []domain.CartLine{
			{ProductID: product.ID, Qty: 3},
			{ProductID: "prod-sugar", Qty: -1},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	balance, err := svc.BalanceOf(ctx, product.ID)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 10 {
		t.Fatalf("expected balance unchanged at 10, got %d", balance)
	}
	entries, _, err := repo.LedgerHistory(ctx, product.ID, "", 10)
	if err != nil {
		t.Fatalf("ledger history failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the initial stock entry, got %d entries", len(entries))
	}

	_, err = svc.CompleteSale(ctx, domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: product.ID, Qty: 0}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero quantity, got %v", err)
	}
}

func TestCompleteSaleRequiresActor(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CompleteSale(context.Background(), domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: "prod-sugar", Qty: 1}},
	})
	if err == nil {
		t.Fatalf("expected sale without actor to fail")
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, repo := newTestService()

	product := createProduct(t, svc, "Yeast Pack", "600000000004", "40.00", 6)

	const workers = 8
	var wg sync.WaitGroup
	successes := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CompleteSale(cashierCtx(), domain.CompleteSaleRequest{
				Cart: []domain.CartLine{{ProductID: product.ID, Qty: 2}},
			})
			if err == nil {
				successes <- 2
			} else if !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected sale error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(successes)

	sold := 0
	for qty := range successes {
		sold += qty
	}
	if sold != 6 {
		t.Fatalf("expected exactly 6 units sold, got %d", sold)
	}

	balance, err := svc.BalanceOf(cashierCtx(), product.ID)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0 after selling out, got %d", balance)
	}

	entries, _, err := repo.LedgerHistory(context.Background(), product.ID, "", 50)
	if err != nil {
		t.Fatalf("ledger history failed: %v", err)
	}
	derived := 0
	for _, e := range entries {
		derived += e.QuantityDelta
	}
	if derived != balance {
		t.Fatalf("ledger replay %d disagrees with balance %d", derived, balance)
	}
}

// conflictOnceRepo fails the first CompleteSale with a conflict, then
// delegates.
type conflictOnceRepo struct {
	store.Repository
	mu    sync.Mutex
	calls int
}

func (r *conflictOnceRepo) CompleteSale(ctx context.Context, cashierID string, cart []domain.CartLine) (*domain.SaleResult, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if first {
		return nil, fmt.Errorf("%w: simulated serialization failure", store.ErrConflict)
	}
	return r.Repository.CompleteSale(ctx, cashierID, cart)
}

func TestCompleteSaleRetriesOnceOnConflict(t *testing.T) {
	repo := &conflictOnceRepo{Repository: memory.NewSeeded()}
	svc := New(repo, cache.NoopBalanceCache{}, nil, zap.NewNop(), time.Second)

	result, err := svc.CompleteSale(cashierCtx(), domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: "prod-sugar", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if result.Sale.TotalQuantity != 1 {
		t.Fatalf("expected total quantity 1, got %d", result.Sale.TotalQuantity)
	}
	if repo.calls != 2 {
		t.Fatalf("expected exactly 2 store attempts, got %d", repo.calls)
	}
}

// conflictAlwaysRepo fails every CompleteSale with a conflict.
type conflictAlwaysRepo struct {
	store.Repository
	mu    sync.Mutex
	calls int
}

func (r *conflictAlwaysRepo) CompleteSale(_ context.Context, _ string, _ []domain.CartLine) (*domain.SaleResult, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil, fmt.Errorf("%w: simulated serialization failure", store.ErrConflict)
}

func TestCompleteSaleSurfacesConflictAfterSingleRetry(t *testing.T) {
	repo := &conflictAlwaysRepo{Repository: memory.NewSeeded()}
	svc := New(repo, cache.NoopBalanceCache{}, nil, zap.NewNop(), time.Second)

	_, err := svc.CompleteSale(cashierCtx(), domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: "prod-sugar", Qty: 1}},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected exactly 2 store attempts, got %d", repo.calls)
	}
}

func TestReceiptKeepsSaleTimePriceAfterCatalogEdit(t *testing.T) {
	svc, _ := newTestService()

	product := createProduct(t, svc, "Honey Jar", "600000000005", "500.00", 5)

	result, err := svc.CompleteSale(cashierCtx(), domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: product.ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("complete sale failed: %v", err)
	}

	newPrice := decimal.RequireFromString("650.00")
	if _, err := svc.UpdateProduct(adminCtx(), product.ID, domain.ProductUpdateRequest{PriceUnit: &newPrice}); err != nil {
		t.Fatalf("price update failed: %v", err)
	}

	receipt, err := svc.GetReceipt(cashierCtx(), result.Sale.ID)
	if err != nil {
		t.Fatalf("receipt failed: %v", err)
	}
	if len(receipt.Lines) != 1 {
		t.Fatalf("expected 1 receipt line, got %d", len(receipt.Lines))
	}
	wantPrice := decimal.RequireFromString("500.00")
	if !receipt.Lines[0].UnitPrice.Equal(wantPrice) {
		t.Fatalf("expected frozen unit price %s, got %s", wantPrice, receipt.Lines[0].UnitPrice)
	}
	if !receipt.TotalPrice.Equal(wantPrice) {
		t.Fatalf("expected frozen total %s, got %s", wantPrice, receipt.TotalPrice)
	}
	if receipt.InvoiceID != result.Invoice.ID {
		t.Fatalf("expected receipt invoice %s, got %s", result.Invoice.ID, receipt.InvoiceID)
	}
}

func TestRecordStockEntryTypesAndFloor(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	product := createProduct(t, svc, "Tea Box", "600000000006", "200.00", 4)

	if _, err := svc.RecordStockEntry(ctx, domain.StockEntryRequest{
		ProductID: product.ID, Qty: -2, EntryType: domain.EntryCorrection,
	}); err != nil {
		t.Fatalf("negative correction failed: %v", err)
	}

	_, err := svc.RecordStockEntry(ctx, domain.StockEntryRequest{
		ProductID: product.ID, Qty: -5, EntryType: domain.EntryCorrection,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected floor violation, got %v", err)
	}

	_, err = svc.RecordStockEntry(ctx, domain.StockEntryRequest{
		ProductID: product.ID, Qty: -1, EntryType: domain.EntrySale,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected sale-type entry to be rejected, got %v", err)
	}

	balance, err := svc.BalanceOf(ctx, product.ID)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 2 {
		t.Fatalf("expected balance 2, got %d", balance)
	}
}

func TestRecordStockEntryRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.RecordStockEntry(cashierCtx(), domain.StockEntryRequest{
		ProductID: "prod-sugar", Qty: 5, EntryType: domain.EntryManual,
	})
	if err == nil {
		t.Fatalf("expected cashier stock entry to be rejected")
	}
}

func TestRecordPurchaseIncreasesStockWithInvoice(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()

	product := createProduct(t, svc, "Coffee 250g", "600000000007", "320.00", 1)

	result, err := svc.RecordPurchase(ctx, domain.PurchaseRequest{
		SupplierID: "sup-main",
		Items: []domain.PurchaseItem{
			{ProductID: product.ID, Qty: 12, UnitCost: decimal.RequireFromString("210.00")},
		},
	})
	if err != nil {
		t.Fatalf("record purchase failed: %v", err)
	}

	wantCost := decimal.RequireFromString("2520.00")
	if !result.Purchase.TotalCost.Equal(wantCost) {
		t.Fatalf("expected total cost %s, got %s", wantCost, result.Purchase.TotalCost)
	}
	if result.Invoice.Type != domain.InvoicePurchase || result.Invoice.PurchaseID != result.Purchase.ID {
		t.Fatalf("expected purchase invoice referencing purchase, got %+v", result.Invoice)
	}

	balance, err := svc.BalanceOf(ctx, product.ID)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 13 {
		t.Fatalf("expected balance 13, got %d", balance)
	}

	entries, _, err := repo.LedgerHistory(ctx, product.ID, "", 10)
	if err != nil {
		t.Fatalf("ledger history failed: %v", err)
	}
	if entries[0].EntryType != domain.EntryPurchase || entries[0].PurchaseID != result.Purchase.ID {
		t.Fatalf("expected purchase ledger entry, got %+v", entries[0])
	}
}

func TestLedgerReplayMatchesBalanceAfterMixedOperations(t *testing.T) {
	svc, _ := newTestService()

	product := createProduct(t, svc, "Pasta 500g", "600000000008", "180.00", 20)

	if _, err := svc.RecordPurchase(adminCtx(), domain.PurchaseRequest{
		Items: []domain.PurchaseItem{{ProductID: product.ID, Qty: 10, UnitCost: decimal.RequireFromString("120.00")}},
	}); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := svc.RecordStockEntry(adminCtx(), domain.StockEntryRequest{
		ProductID: product.ID, Qty: -4, EntryType: domain.EntryCorrection,
	}); err != nil {
		t.Fatalf("correction failed: %v", err)
	}
	if _, err := svc.CompleteSale(cashierCtx(), domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: product.ID, Qty: 7}},
	}); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if _, err := svc.RecordStockEntry(adminCtx(), domain.StockEntryRequest{
		ProductID: product.ID, Qty: 1, EntryType: domain.EntryReturn,
	}); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	balance, err := svc.BalanceOf(cashierCtx(), product.ID)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 20 {
		t.Fatalf("expected balance 20, got %d", balance)
	}

	derived := 0
	cursor := ""
	for {
		page, err := svc.LedgerHistory(context.Background(), product.ID, cursor, 2)
		if err != nil {
			t.Fatalf("ledger page failed: %v", err)
		}
		for _, e := range page.Entries {
			derived += e.QuantityDelta
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if derived != balance {
		t.Fatalf("ledger replay %d disagrees with balance %d", derived, balance)
	}

	drifts, err := svc.Reconcile(adminCtx(), false)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("expected no drift on consistent state, got %+v", drifts)
	}
}

// fakeTrigger records low-stock scan triggers.
type fakeTrigger struct {
	ch chan struct{}
}

func (f *fakeTrigger) Trigger(_ context.Context) bool {
	select {
	case f.ch <- struct{}{}:
	default:
	}
	return true
}

func TestCompleteSaleTriggersLowStockScan(t *testing.T) {
	trigger := &fakeTrigger{ch: make(chan struct{}, 1)}
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopBalanceCache{}, trigger, zap.NewNop(), time.Second)

	if _, err := svc.CompleteSale(cashierCtx(), domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: "prod-sugar", Qty: 1}},
	}); err != nil {
		t.Fatalf("complete sale failed: %v", err)
	}

	select {
	case <-trigger.ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected low stock trigger after sale")
	}
}

// countingCache tracks balance cache traffic.
type countingCache struct {
	mu          sync.Mutex
	values      map[string]int
	invalidated map[string]int
}

func newCountingCache() *countingCache {
	return &countingCache{values: make(map[string]int), invalidated: make(map[string]int)}
}

func (c *countingCache) Get(_ context.Context, productID string) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	quantity, hit := c.values[productID]
	return quantity, hit, nil
}

func (c *countingCache) Set(_ context.Context, productID string, quantity int, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[productID] = quantity
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, productIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range productIDs {
		delete(c.values, id)
		c.invalidated[id]++
	}
	return nil
}

func TestBalanceMapBulkReadWarmsCache(t *testing.T) {
	balances := newCountingCache()
	repo := memory.NewSeeded()
	svc := New(repo, balances, nil, zap.NewNop(), time.Minute)

	first := createProduct(t, svc, "Tea Box", "600000000012", "75.00", 14)
	second := createProduct(t, svc, "Coffee Bag", "600000000013", "320.00", 8)

	got, err := svc.BalanceMap(cashierCtx(), []string{first.ID, second.ID})
	if err != nil {
		t.Fatalf("balance map failed: %v", err)
	}
	if got[first.ID] != 14 || got[second.ID] != 8 {
		t.Fatalf("unexpected balances: %v", got)
	}
	if balances.values[first.ID] != 14 || balances.values[second.ID] != 8 {
		t.Fatalf("expected both balances cached, got %v", balances.values)
	}

	// A stale cached value must be served as-is until invalidated.
	balances.values[first.ID] = 99
	got, err = svc.BalanceMap(cashierCtx(), []string{first.ID, second.ID})
	if err != nil {
		t.Fatalf("balance map failed: %v", err)
	}
	if got[first.ID] != 99 {
		t.Fatalf("expected cached value 99, got %d", got[first.ID])
	}

	// Unknown products are simply absent from the result.
	got, err = svc.BalanceMap(cashierCtx(), []string{second.ID, "prod-missing"})
	if err != nil {
		t.Fatalf("balance map failed: %v", err)
	}
	if _, present := got["prod-missing"]; present {
		t.Fatalf("expected unknown product to be omitted, got %v", got)
	}
	if got[second.ID] != 8 {
		t.Fatalf("expected balance 8, got %d", got[second.ID])
	}
}

func TestBalanceCacheInvalidatedAfterSale(t *testing.T) {
	balances := newCountingCache()
	repo := memory.NewSeeded()
	svc := New(repo, balances, nil, zap.NewNop(), time.Minute)

	product := createProduct(t, svc, "Jam Jar", "600000000009", "260.00", 9)

	// Warm the cache, then sell and read again.
	if _, err := svc.BalanceOf(cashierCtx(), product.ID); err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if _, hit := balances.values[product.ID]; !hit {
		t.Fatalf("expected cache to be populated after read")
	}

	if _, err := svc.CompleteSale(cashierCtx(), domain.CompleteSaleRequest{
		Cart: []domain.CartLine{{ProductID: product.ID, Qty: 4}},
	}); err != nil {
		t.Fatalf("complete sale failed: %v", err)
	}
	if balances.invalidated[product.ID] == 0 {
		t.Fatalf("expected cache invalidation after sale")
	}

	balance, err := svc.BalanceOf(cashierCtx(), product.ID)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance != 5 {
		t.Fatalf("expected fresh balance 5, got %d", balance)
	}
}

func TestProductCreateRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{
		CategoryID: "cat-grocery",
		Name:       "Forbidden",
		Barcode:    "600000000010",
		PriceUnit:  decimal.RequireFromString("10.00"),
	})
	if err == nil {
		t.Fatalf("expected cashier product creation to be rejected")
	}
}
