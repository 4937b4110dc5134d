package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"stokpos/internal/cache"
	"stokpos/internal/domain"
	"stokpos/internal/store"
	"stokpos/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// SaleTrigger is the post-sale hook into the low-stock monitor. Trigger must
// be non-blocking for callers; it returns false when a scan is already in
// flight.
type SaleTrigger interface {
	Trigger(ctx context.Context) bool
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type Service struct {
	repo       store.Repository
	balances   cache.BalanceCache
	saleHook   SaleTrigger
	logger     *zap.Logger
	balanceTTL time.Duration
}

func New(repo store.Repository, balances cache.BalanceCache, saleHook SaleTrigger, logger *zap.Logger, balanceTTL time.Duration) *Service {
	if balances == nil {
		balances = cache.NoopBalanceCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if balanceTTL <= 0 {
		balanceTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		balances:   balances,
		saleHook:   saleHook,
		logger:     logger,
		balanceTTL: balanceTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireRole(ctx, "admin"); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Name == "" || req.Barcode == "" || req.CategoryID == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.PriceUnit.IsNegative() || req.InitialStock < 0 {
		return domain.Product{}, store.ErrValidation
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		CategoryID: req.CategoryID,
		Name:       req.Name,
		Barcode:    req.Barcode,
		PriceUnit:  req.PriceUnit,
	}, req.InitialStock)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,price=%s,initial_stock=%d", created.Name, created.PriceUnit.StringFixed(2), req.InitialStock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireRole(ctx, "admin"); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	product := *existing
	if req.CategoryID != nil {
		product.CategoryID = *req.CategoryID
	}
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Barcode != nil {
		product.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.PriceUnit != nil {
		product.PriceUnit = *req.PriceUnit
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", updated.ID,
		fmt.Sprintf("name=%s,price=%s", updated.Name, updated.PriceUnit.StringFixed(2)))
	return *updated, nil
}

func (s *Service) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	if err := requireRole(ctx, "admin"); err != nil {
		return domain.Category{}, err
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: name})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, "category_create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

// BalanceOf reads through the balance cache. Misses and cache errors fall
// back to the authoritative store; cache errors never fail the read.
func (s *Service) BalanceOf(ctx context.Context, productID string) (int, error) {
	if quantity, hit, err := s.balances.Get(ctx, productID); err == nil && hit {
		return quantity, nil
	} else if err != nil {
		s.logger.Warn("balance cache read failed", zap.String("product_id", productID), zap.Error(err))
	}

	quantity, err := s.repo.BalanceOf(ctx, productID)
	if err != nil {
		return 0, err
	}
	if err := s.balances.Set(ctx, productID, quantity, s.balanceTTL); err != nil {
		s.logger.Warn("balance cache write failed", zap.String("product_id", productID), zap.Error(err))
	}
	return quantity, nil
}

// BalanceMap returns quantities for many products in one call, for list and
// dashboard views. Cached balances are used where present; the rest come from
// the store in a single read and warm the cache on the way out.
func (s *Service) BalanceMap(ctx context.Context, productIDs []string) (map[string]int, error) {
	balances := make(map[string]int, len(productIDs))
	missing := make([]string, 0, len(productIDs))
	for _, productID := range productIDs {
		quantity, hit, err := s.balances.Get(ctx, productID)
		if err != nil {
			s.logger.Warn("balance cache read failed", zap.String("product_id", productID), zap.Error(err))
		}
		if err == nil && hit {
			balances[productID] = quantity
			continue
		}
		missing = append(missing, productID)
	}

	if len(missing) > 0 {
		fetched, err := s.repo.BalanceMap(ctx, missing)
		if err != nil {
			return nil, err
		}
		for productID, quantity := range fetched {
			balances[productID] = quantity
			if err := s.balances.Set(ctx, productID, quantity, s.balanceTTL); err != nil {
				s.logger.Warn("balance cache write failed", zap.String("product_id", productID), zap.Error(err))
			}
		}
	}
	return balances, nil
}

func (s *Service) LedgerHistory(ctx context.Context, productID string, cursor string, limit int) (domain.LedgerPage, error) {
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, next, err := s.repo.LedgerHistory(ctx, productID, cursor, limit)
	if err != nil {
		return domain.LedgerPage{}, err
	}
	return domain.LedgerPage{Entries: entries, NextCursor: next}, nil
}

// CompleteSale validates and normalizes the cart, then hands the whole sale
// to the store as one atomic unit. A single conflict retry runs against
// fresh state; after that the conflict surfaces to the caller. On success the
// affected cache keys are dropped and the low-stock monitor is nudged.
func (s *Service) CompleteSale(ctx context.Context, req domain.CompleteSaleRequest) (domain.SaleResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SaleResult{}, fmt.Errorf("authenticated cashier required")
	}

	cart, err := normalizeCart(req.Cart)
	if err != nil {
		return domain.SaleResult{}, err
	}
	if len(cart) == 0 {
		return domain.SaleResult{}, store.ErrValidation
	}

	result, err := s.repo.CompleteSale(ctx, actor.Username, cart)
	if errors.Is(err, store.ErrConflict) {
		s.logger.Info("sale conflict, retrying once", zap.String("cashier", actor.Username))
		result, err = s.repo.CompleteSale(ctx, actor.Username, cart)
	}
	if err != nil {
		return domain.SaleResult{}, err
	}

	productIDs := make([]string, 0, len(cart))
	for _, line := range cart {
		productIDs = append(productIDs, line.ProductID)
	}
	if err := s.balances.Invalidate(ctx, productIDs...); err != nil {
		s.logger.Warn("balance cache invalidation failed", zap.Error(err))
	}

	s.triggerLowStockScan()
	s.logAudit(ctx, "sale_complete", "sale", result.Sale.ID,
		fmt.Sprintf("total=%s,items=%d", result.Sale.TotalPrice.StringFixed(2), len(result.Sale.Items)))

	return *result, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) GetReceipt(ctx context.Context, saleID string) (domain.Receipt, error) {
	receipt, err := s.repo.GetReceipt(ctx, saleID)
	if err != nil {
		return domain.Receipt{}, err
	}
	return *receipt, nil
}

// RecordStockEntry appends one manual, correction, or return entry.
// Corrections may be negative but never below the current balance.
func (s *Service) RecordStockEntry(ctx context.Context, req domain.StockEntryRequest) (domain.LedgerEntry, error) {
	if err := requireRole(ctx, "admin"); err != nil {
		return domain.LedgerEntry{}, err
	}

	switch req.EntryType {
	case domain.EntryManual, domain.EntryCorrection, domain.EntryReturn:
	default:
		return domain.LedgerEntry{}, fmt.Errorf("%w: entry type %q not allowed", store.ErrValidation, req.EntryType)
	}
	if req.Qty == 0 {
		return domain.LedgerEntry{}, store.ErrValidation
	}

	entry, err := s.repo.AppendEntry(ctx, domain.LedgerEntry{
		ProductID:     req.ProductID,
		QuantityDelta: req.Qty,
		EntryType:     req.EntryType,
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	if err := s.balances.Invalidate(ctx, req.ProductID); err != nil {
		s.logger.Warn("balance cache invalidation failed", zap.Error(err))
	}
	if req.Qty > 0 {
		// Stock came back up: give the monitor a chance to clear its state.
		s.triggerLowStockScan()
	}

	s.logAudit(ctx, "stock_entry", "ledger_entry", entry.ID,
		fmt.Sprintf("product=%s,type=%s,delta=%d", entry.ProductID, entry.EntryType, entry.QuantityDelta))
	return *entry, nil
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	if err := requireRole(ctx, "admin"); err != nil {
		return domain.PurchaseResult{}, err
	}
	actor, _ := ActorFromContext(ctx)

	result, err := s.repo.RecordPurchase(ctx, domain.Purchase{
		SupplierID: req.SupplierID,
		CreatedBy:  actor.Username,
		Items:      req.Items,
	})
	if err != nil {
		return domain.PurchaseResult{}, err
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	if err := s.balances.Invalidate(ctx, productIDs...); err != nil {
		s.logger.Warn("balance cache invalidation failed", zap.Error(err))
	}
	s.triggerLowStockScan()

	s.logAudit(ctx, "purchase_record", "purchase", result.Purchase.ID,
		fmt.Sprintf("total=%s,items=%d", result.Purchase.TotalCost.StringFixed(2), len(result.Purchase.Items)))
	return *result, nil
}

func (s *Service) LowStockList(ctx context.Context, threshold int) ([]domain.LowStockProduct, error) {
	return s.repo.LowStockList(ctx, threshold)
}

// Reconcile compares every cached balance against its ledger sum. With
// repair set, drifted balances are reset to the ledger-derived value.
func (s *Service) Reconcile(ctx context.Context, repair bool) ([]domain.BalanceDrift, error) {
	if err := requireRole(ctx, "admin"); err != nil {
		return nil, err
	}

	drifts, err := s.repo.ReconcileBalances(ctx, repair)
	if err != nil {
		return nil, err
	}

	if len(drifts) > 0 {
		productIDs := make([]string, 0, len(drifts))
		for _, d := range drifts {
			productIDs = append(productIDs, d.ProductID)
		}
		if err := s.balances.Invalidate(ctx, productIDs...); err != nil {
			s.logger.Warn("balance cache invalidation failed", zap.Error(err))
		}
		s.logger.Warn("balance drift detected", zap.Int("products", len(drifts)), zap.Bool("repaired", repair))
	}

	s.logAudit(ctx, "balance_reconcile", "stock_balances", "",
		fmt.Sprintf("drifts=%d,repair=%t", len(drifts), repair))
	return drifts, nil
}

func (s *Service) GetStoreInfo(ctx context.Context) (domain.StoreInfo, error) {
	info, err := s.repo.GetStoreInfo(ctx)
	if err != nil {
		return domain.StoreInfo{}, err
	}
	return *info, nil
}

func (s *Service) UpdateStoreInfo(ctx context.Context, info domain.StoreInfo) error {
	if err := requireRole(ctx, "admin"); err != nil {
		return err
	}
	if err := s.repo.UpdateStoreInfo(ctx, info); err != nil {
		return err
	}
	s.logAudit(ctx, "store_info_update", "store_info", "", "name="+info.Name)
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if err := requireRole(ctx, "admin"); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

// triggerLowStockScan nudges the monitor without blocking the request. The
// scan gets its own deadline because the request context ends with the
// response.
func (s *Service) triggerLowStockScan() {
	if s.saleHook == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.saleHook.Trigger(ctx)
	}()
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func requireRole(ctx context.Context, role string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != role {
		return fmt.Errorf("%s role required", role)
	}
	return nil
}

// normalizeCart merges duplicate product lines, keeping a stable order for
// deterministic totals. Every line must name a product and carry a positive
// quantity; a single bad line fails the whole cart, nothing is sold.
func normalizeCart(cart []domain.CartLine) ([]domain.CartLine, error) {
	merged := make(map[string]int, len(cart))
	order := make([]string, 0, len(cart))
	for _, line := range cart {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: cart line missing product id", store.ErrValidation)
		}
		if line.Qty < 1 {
			return nil, fmt.Errorf("%w: quantity %d for product %s", store.ErrValidation, line.Qty, productID)
		}
		if merged[productID] == 0 {
			order = append(order, productID)
		}
		merged[productID] += line.Qty
	}

	sort.Strings(order)
	normalized := make([]domain.CartLine, 0, len(order))
	for _, productID := range order {
		normalized = append(normalized, domain.CartLine{ProductID: productID, Qty: merged[productID]})
	}
	return normalized, nil
}
