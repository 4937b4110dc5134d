package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"stokpos/internal/domain"
	"stokpos/internal/store"
	"stokpos/internal/xid"
)

// Store is a mutex-guarded in-memory repository. It backs the dev/demo mode
// and the test suite. All multi-step writes stage their effects in local
// values and apply them only after every step has succeeded, so a failure
// mid-operation leaves no partial state, matching the transactional
// behaviour of the postgres store.
type Store struct {
	mu            sync.RWMutex
	categories    map[string]domain.Category
	products      map[string]domain.Product
	barcodes      map[string]string
	ledger        map[string][]domain.LedgerEntry
	balances      map[string]int
	sales         map[string]domain.Sale
	invoices      map[string]domain.Invoice
	invoiceBySale map[string]string
	purchases     map[string]domain.Purchase
	auditLogs     []domain.AuditLog
	storeInfo     domain.StoreInfo
	users         map[string]domain.UserAccount

	// failStep, when set by tests, is invoked between the staged steps of
	// CompleteSale to simulate an engine failure mid-transaction.
	failStep func(step string) error
}

func New() *Store {
	return &Store{
		categories:    make(map[string]domain.Category),
		products:      make(map[string]domain.Product),
		barcodes:      make(map[string]string),
		ledger:        make(map[string][]domain.LedgerEntry),
		balances:      make(map[string]int),
		sales:         make(map[string]domain.Sale),
		invoices:      make(map[string]domain.Invoice),
		invoiceBySale: make(map[string]string),
		purchases:     make(map[string]domain.Purchase),
		auditLogs:     make([]domain.AuditLog, 0, 128),
		storeInfo: domain.StoreInfo{
			Name:     "Default Store",
			Currency: "DZD",
		},
		users: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with demo catalog data and dev user
// accounts. Initial stock lands through the ledger so the balance invariant
// holds from the first read.
func NewSeeded() *Store {
	s := New()
	s.users = seedUsers()

	grocery := domain.Category{ID: "cat-grocery", Name: "Grocery", CreatedAt: time.Now().UTC()}
	beverage := domain.Category{ID: "cat-beverage", Name: "Beverage", CreatedAt: time.Now().UTC()}
	household := domain.Category{ID: "cat-household", Name: "Household", CreatedAt: time.Now().UTC()}
	for _, c := range []domain.Category{grocery, beverage, household} {
		s.categories[c.ID] = c
	}

	seed := []struct {
		product domain.Product
		stock   int
	}{
		{domain.Product{ID: "prod-semolina", CategoryID: grocery.ID, Name: "Semolina 5kg", Barcode: "6130001000015", PriceUnit: decimal.RequireFromString("650.00")}, 40},
		{domain.Product{ID: "prod-oil", CategoryID: grocery.ID, Name: "Sunflower Oil 2L", Barcode: "6130001000022", PriceUnit: decimal.RequireFromString("780.00")}, 24},
		{domain.Product{ID: "prod-sugar", CategoryID: grocery.ID, Name: "Sugar 1kg", Barcode: "6130001000039", PriceUnit: decimal.RequireFromString("110.00")}, 60},
		{domain.Product{ID: "prod-water", CategoryID: beverage.ID, Name: "Mineral Water 1.5L", Barcode: "6130001000046", PriceUnit: decimal.RequireFromString("35.00")}, 120},
		{domain.Product{ID: "prod-soda", CategoryID: beverage.ID, Name: "Soda 1L", Barcode: "6130001000053", PriceUnit: decimal.RequireFromString("120.00")}, 48},
		{domain.Product{ID: "prod-soap", CategoryID: household.ID, Name: "Bar Soap", Barcode: "6130001000060", PriceUnit: decimal.RequireFromString("90.00")}, 80},
	}

	now := time.Now().UTC()
	for _, item := range seed {
		p := item.product
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.barcodes[p.Barcode] = p.ID
		s.balances[p.ID] = 0
		if item.stock > 0 {
			s.applyEntryLocked(domain.LedgerEntry{
				ID:            xid.New("led"),
				ProductID:     p.ID,
				QuantityDelta: item.stock,
				EntryType:     domain.EntryManual,
				CreatedAt:     now,
			})
		}
	}

	return s
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables, with hardcoded dev defaults as a fallback.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrValidation
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.categories[category.ID]; exists {
		return nil, store.ErrValidation
	}

	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, initialStock int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	product.Barcode = strings.TrimSpace(product.Barcode)
	if product.Name == "" || product.Barcode == "" || product.PriceUnit.IsNegative() {
		return nil, store.ErrValidation
	}
	if initialStock < 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.categories[product.CategoryID]; !exists {
		return nil, fmt.Errorf("%w: unknown category %s", store.ErrValidation, product.CategoryID)
	}
	if _, exists := s.barcodes[product.Barcode]; exists {
		return nil, fmt.Errorf("%w: barcode already in use", store.ErrValidation)
	}

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	product.Quantity = 0

	s.products[product.ID] = product
	s.barcodes[product.Barcode] = product.ID
	s.balances[product.ID] = 0

	if initialStock > 0 {
		s.applyEntryLocked(domain.LedgerEntry{
			ID:            xid.New("led"),
			ProductID:     product.ID,
			QuantityDelta: initialStock,
			EntryType:     domain.EntryManual,
			CreatedAt:     now,
		})
	}

	created := product
	created.Quantity = s.balances[product.ID]
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProductLocked(productID)
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	productID, exists := s.barcodes[strings.TrimSpace(barcode)]
	if !exists {
		return nil, store.ErrNotFound
	}
	return s.getProductLocked(productID)
}

func (s *Store) getProductLocked(productID string) (*domain.Product, error) {
	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	copied.Quantity = s.balances[productID]
	return &copied, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		p.Quantity = s.balances[p.ID]
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Name = strings.TrimSpace(product.Name)
	product.Barcode = strings.TrimSpace(product.Barcode)
	if product.Name == "" || product.Barcode == "" || product.PriceUnit.IsNegative() {
		return nil, store.ErrValidation
	}
	if _, ok := s.categories[product.CategoryID]; !ok {
		return nil, fmt.Errorf("%w: unknown category %s", store.ErrValidation, product.CategoryID)
	}
	if other, ok := s.barcodes[product.Barcode]; ok && other != product.ID {
		return nil, fmt.Errorf("%w: barcode already in use", store.ErrValidation)
	}

	delete(s.barcodes, existing.Barcode)
	s.barcodes[product.Barcode] = product.ID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := product
	updated.Quantity = s.balances[product.ID]
	return &updated, nil
}

func (s *Store) AppendEntry(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	if _, exists := s.products[entry.ProductID]; !exists {
		return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, entry.ProductID)
	}
	if s.balances[entry.ProductID]+entry.QuantityDelta < 0 {
		return nil, store.ErrInsufficientStock
	}

	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.applyEntryLocked(entry)
	created := entry
	return &created, nil
}

// validateEntry rejects sale entries: stock decrements for sales are only
// written by CompleteSale so that every one of them references its sale.
func validateEntry(entry domain.LedgerEntry) error {
	switch entry.EntryType {
	case domain.EntryManual, domain.EntryCorrection, domain.EntryReturn, domain.EntryPurchase:
	default:
		return fmt.Errorf("%w: entry type %q not allowed", store.ErrValidation, entry.EntryType)
	}
	if entry.QuantityDelta == 0 {
		return fmt.Errorf("%w: quantity delta must be non-zero", store.ErrValidation)
	}
	if entry.EntryType == domain.EntryReturn && entry.QuantityDelta < 1 {
		return fmt.Errorf("%w: return quantity must be positive", store.ErrValidation)
	}
	return nil
}

func (s *Store) applyEntryLocked(entry domain.LedgerEntry) {
	s.ledger[entry.ProductID] = append(s.ledger[entry.ProductID], entry)
	s.balances[entry.ProductID] += entry.QuantityDelta
}

func (s *Store) BalanceOf(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.products[productID]; !exists {
		return 0, store.ErrNotFound
	}
	return s.balances[productID], nil
}

func (s *Store) BalanceMap(_ context.Context, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int, len(productIDs))
	for _, id := range productIDs {
		if _, exists := s.products[id]; exists {
			result[id] = s.balances[id]
		}
	}
	return result, nil
}

// LedgerHistory pages reverse-chronologically. The cursor is the ID of the
// last entry of the previous page; an empty cursor starts from the newest
// entry. Entries are append-only, so a cursor stays valid across writes.
func (s *Store) LedgerHistory(_ context.Context, productID string, cursor string, limit int) ([]domain.LedgerEntry, string, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.products[productID]; !exists {
		return nil, "", store.ErrNotFound
	}

	entries := s.ledger[productID]
	start := len(entries) - 1
	if cursor != "" {
		idx := -1
		for i, e := range entries {
			if e.ID == cursor {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, "", fmt.Errorf("%w: unknown cursor", store.ErrValidation)
		}
		start = idx - 1
	}

	page := make([]domain.LedgerEntry, 0, limit)
	for i := start; i >= 0 && len(page) < limit; i-- {
		page = append(page, entries[i])
	}

	next := ""
	if len(page) == limit {
		last := page[len(page)-1]
		for i, e := range entries {
			if e.ID == last.ID && i > 0 {
				next = last.ID
				break
			}
		}
	}
	return page, next, nil
}

func (s *Store) ReconcileBalances(_ context.Context, repair bool) ([]domain.BalanceDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drifts := make([]domain.BalanceDrift, 0)
	for productID := range s.products {
		derived := 0
		for _, e := range s.ledger[productID] {
			derived += e.QuantityDelta
		}
		cached := s.balances[productID]
		if cached != derived {
			drifts = append(drifts, domain.BalanceDrift{ProductID: productID, Cached: cached, Derived: derived})
			if repair {
				s.balances[productID] = derived
			}
		}
	}
	slices.SortFunc(drifts, func(a, b domain.BalanceDrift) int {
		return cmpString(a.ProductID, b.ProductID)
	})
	return drifts, nil
}

func (s *Store) CompleteSale(_ context.Context, cashierID string, cart []domain.CartLine) (*domain.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cashierID == "" || len(cart) == 0 {
		return nil, store.ErrValidation
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:        xid.New("sale"),
		CashierID: cashierID,
		CreatedAt: now,
	}
	if err := s.fail("sale_header"); err != nil {
		return nil, err
	}

	total := decimal.Zero
	totalQty := 0
	staged := make(map[string]int, len(cart))
	lines := make([]domain.SaleLineItem, 0, len(cart))
	entries := make([]domain.LedgerEntry, 0, len(cart))

	for _, cl := range cart {
		if cl.Qty < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
		}
		product, exists := s.products[cl.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, cl.ProductID)
		}
		if s.balances[cl.ProductID]-staged[cl.ProductID] < cl.Qty {
			return nil, store.ErrInsufficientStock
		}
		staged[cl.ProductID] += cl.Qty

		subtotal := product.PriceUnit.Mul(decimal.NewFromInt(int64(cl.Qty)))
		lines = append(lines, domain.SaleLineItem{
			ID:              xid.New("li"),
			SaleID:          sale.ID,
			ProductID:       cl.ProductID,
			Qty:             cl.Qty,
			UnitPriceAtSale: product.PriceUnit,
			Subtotal:        subtotal,
		})
		entries = append(entries, domain.LedgerEntry{
			ID:            xid.New("led"),
			ProductID:     cl.ProductID,
			QuantityDelta: -cl.Qty,
			EntryType:     domain.EntrySale,
			SaleID:        sale.ID,
			CreatedAt:     now,
		})
		total = total.Add(subtotal)
		totalQty += cl.Qty
	}
	if err := s.fail("line_items"); err != nil {
		return nil, err
	}
	if err := s.fail("ledger_entries"); err != nil {
		return nil, err
	}

	sale.TotalPrice = total
	sale.TotalQuantity = totalQty
	sale.Items = lines

	invoice := domain.Invoice{
		ID:        xid.New("inv"),
		Type:      domain.InvoiceSale,
		Amount:    total,
		CreatedBy: cashierID,
		SaleID:    sale.ID,
		CreatedAt: now,
	}
	if err := s.fail("invoice"); err != nil {
		return nil, err
	}

	// All steps staged successfully: apply atomically under the lock.
	for _, entry := range entries {
		s.applyEntryLocked(entry)
	}
	s.sales[sale.ID] = sale
	s.invoices[invoice.ID] = invoice
	s.invoiceBySale[sale.ID] = invoice.ID

	return &domain.SaleResult{Sale: sale, Invoice: invoice}, nil
}

func (s *Store) fail(step string) error {
	if s.failStep == nil {
		return nil
	}
	return s.failStep(step)
}

func (s *Store) GetSale(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := sale
	copied.Items = slices.Clone(sale.Items)
	return &copied, nil
}

func (s *Store) GetReceipt(_ context.Context, saleID string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	invoiceID := s.invoiceBySale[saleID]

	lines := make([]domain.ReceiptLine, 0, len(sale.Items))
	for _, item := range sale.Items {
		product := s.products[item.ProductID]
		lines = append(lines, domain.ReceiptLine{
			ProductID: item.ProductID,
			Name:      product.Name,
			Barcode:   product.Barcode,
			Qty:       item.Qty,
			UnitPrice: item.UnitPriceAtSale,
			Subtotal:  item.Subtotal,
		})
	}

	return &domain.Receipt{
		InvoiceID:     invoiceID,
		SaleID:        sale.ID,
		Cashier:       sale.CashierID,
		Store:         s.storeInfo,
		Lines:         lines,
		TotalPrice:    sale.TotalPrice,
		TotalQuantity: sale.TotalQuantity,
		CreatedAt:     sale.CreatedAt,
	}, nil
}

func (s *Store) RecordPurchase(_ context.Context, purchase domain.Purchase) (*domain.PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.CreatedBy == "" || len(purchase.Items) == 0 {
		return nil, store.ErrValidation
	}

	now := time.Now().UTC()
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}

	total := decimal.Zero
	entries := make([]domain.LedgerEntry, 0, len(purchase.Items))
	for _, item := range purchase.Items {
		if item.Qty < 1 || item.UnitCost.IsNegative() {
			return nil, store.ErrValidation
		}
		if _, exists := s.products[item.ProductID]; !exists {
			return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, item.ProductID)
		}
		entries = append(entries, domain.LedgerEntry{
			ID:            xid.New("led"),
			ProductID:     item.ProductID,
			QuantityDelta: item.Qty,
			EntryType:     domain.EntryPurchase,
			PurchaseID:    purchase.ID,
			UnitCost:      item.UnitCost,
			CreatedAt:     now,
		})
		total = total.Add(item.UnitCost.Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	purchase.TotalCost = total

	invoice := domain.Invoice{
		ID:         xid.New("inv"),
		Type:       domain.InvoicePurchase,
		Amount:     total,
		CreatedBy:  purchase.CreatedBy,
		PurchaseID: purchase.ID,
		CreatedAt:  now,
	}

	for _, entry := range entries {
		s.applyEntryLocked(entry)
	}
	s.purchases[purchase.ID] = purchase
	s.invoices[invoice.ID] = invoice

	return &domain.PurchaseResult{Purchase: purchase, Invoice: invoice}, nil
}

func (s *Store) LowStockList(_ context.Context, threshold int) ([]domain.LowStockProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.LowStockProduct, 0)
	for id, product := range s.products {
		qty := s.balances[id]
		if qty <= threshold {
			low = append(low, domain.LowStockProduct{ProductID: id, Name: product.Name, Quantity: qty})
		}
	}
	slices.SortFunc(low, func(a, b domain.LowStockProduct) int {
		if a.Quantity != b.Quantity {
			return a.Quantity - b.Quantity
		}
		return cmpString(a.Name, b.Name)
	})
	return low, nil
}

func (s *Store) GetStoreInfo(_ context.Context) (*domain.StoreInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := s.storeInfo
	return &info, nil
}

func (s *Store) UpdateStoreInfo(_ context.Context, info domain.StoreInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(info.Name) == "" {
		return store.ErrValidation
	}
	s.storeInfo = info
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.auditLogs[i])
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
