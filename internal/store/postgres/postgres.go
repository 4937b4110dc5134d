package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"stokpos/internal/domain"
	"stokpos/internal/store"
	"stokpos/internal/xid"
)

// Store is the postgres-backed repository. Stock-affecting writes run in
// serializable transactions and lock the relevant stock_balances rows with
// FOR UPDATE, so the cached balance and the ledger can never diverge under
// concurrent sales. Engine-level contention surfaces as store.ErrConflict.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at)
		VALUES ($1,$2,$3)
	`, category.ID, category.Name, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := category
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

// CreateProduct inserts the product, its zero balance row, and, when
// initialStock is positive, a manual ledger entry in the same transaction.
// A product is never visible without its balance row.
func (s *Store) CreateProduct(ctx context.Context, product domain.Product, initialStock int) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	product.Barcode = strings.TrimSpace(product.Barcode)
	if product.Name == "" || product.Barcode == "" || product.PriceUnit.IsNegative() || initialStock < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, category_id, name, barcode, price_unit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, product.ID, product.CategoryID, product.Name, product.Barcode, product.PriceUnit, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: barcode already in use", store.ErrValidation)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: unknown category %s", store.ErrValidation, product.CategoryID)
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_balances (product_id, quantity, updated_at)
		VALUES ($1, 0, $2)
	`, product.ID, now)
	if err != nil {
		return nil, err
	}

	if initialStock > 0 {
		if err := appendEntryTx(ctx, tx, domain.LedgerEntry{
			ID:            xid.New("led"),
			ProductID:     product.ID,
			QuantityDelta: initialStock,
			EntryType:     domain.EntryManual,
			CreatedAt:     now,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	created := product
	created.Quantity = initialStock
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.getProductBy(ctx, "p.id", productID)
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.getProductBy(ctx, "p.barcode", strings.TrimSpace(barcode))
}

func (s *Store) getProductBy(ctx context.Context, column string, value string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT p.id, p.category_id, p.name, p.barcode, p.price_unit, b.quantity, p.created_at, p.updated_at
		FROM products p
		JOIN stock_balances b ON b.product_id = p.id
		WHERE %s = $1
	`, column), value).Scan(&p.ID, &p.CategoryID, &p.Name, &p.Barcode, &p.PriceUnit, &p.Quantity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.category_id, p.name, p.barcode, p.price_unit, b.quantity, p.created_at, p.updated_at
		FROM products p
		JOIN stock_balances b ON b.product_id = p.id
		ORDER BY p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Barcode, &p.PriceUnit, &p.Quantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	product.Barcode = strings.TrimSpace(product.Barcode)
	if product.Name == "" || product.Barcode == "" || product.PriceUnit.IsNegative() {
		return nil, store.ErrValidation
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET category_id = $2, name = $3, barcode = $4, price_unit = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.CategoryID, product.Name, product.Barcode, product.PriceUnit)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: barcode already in use", store.ErrValidation)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: unknown category %s", store.ErrValidation, product.CategoryID)
		}
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProduct(ctx, product.ID)
}

// AppendEntry writes a single non-sale ledger entry and moves the cached
// balance in the same transaction. Sale entries only exist through
// CompleteSale so each carries its sale reference.
func (s *Store) AppendEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var balance int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity
		FROM stock_balances
		WHERE product_id = $1
		FOR UPDATE
	`, entry.ProductID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, entry.ProductID)
		}
		return nil, mapTxError(err)
	}
	if balance+entry.QuantityDelta < 0 {
		return nil, store.ErrInsufficientStock
	}

	if err := appendEntryTx(ctx, tx, entry); err != nil {
		return nil, mapTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	created := entry
	return &created, nil
}

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

// appendEntryTx inserts the ledger row and shifts the balance. Callers hold
// the balance row lock and have already checked the non-negative floor.
func appendEntryTx(ctx context.Context, tx *sql.Tx, entry domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, product_id, quantity_delta, entry_type, sale_id, purchase_id, unit_cost, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ProductID, entry.QuantityDelta, entry.EntryType,
		nullIfEmpty(entry.SaleID), nullIfEmpty(entry.PurchaseID), entry.UnitCost, entry.CreatedAt)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE stock_balances
		SET quantity = quantity + $1, updated_at = now()
		WHERE product_id = $2
	`, entry.QuantityDelta, entry.ProductID)
	return err
}

func (s *Store) BalanceOf(ctx context.Context, productID string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx, `
		SELECT quantity
		FROM stock_balances
		WHERE product_id = $1
	`, productID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (s *Store) BalanceMap(ctx context.Context, productIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM stock_balances
		WHERE product_id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var balance int
		if err := rows.Scan(&productID, &balance); err != nil {
			return nil, err
		}
		result[productID] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LedgerHistory pages reverse-chronologically with keyset pagination over
// (created_at, id). The cursor is the ID of the last entry of the previous
// page; entries are immutable so cursors stay valid across writes.
func (s *Store) LedgerHistory(ctx context.Context, productID string, cursor string, limit int) ([]domain.LedgerEntry, string, error) {
	if limit < 1 {
		limit = 50
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
	`, productID).Scan(&exists)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, "", store.ErrNotFound
	}

	var rows *sql.Rows
	if cursor == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, product_id, quantity_delta, entry_type, sale_id, purchase_id, unit_cost, created_at
			FROM ledger_entries
			WHERE product_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, productID, limit+1)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT e.id, e.product_id, e.quantity_delta, e.entry_type, e.sale_id, e.purchase_id, e.unit_cost, e.created_at
			FROM ledger_entries e
			JOIN ledger_entries anchor ON anchor.id = $2 AND anchor.product_id = $1
			WHERE e.product_id = $1
			  AND (e.created_at, e.id) < (anchor.created_at, anchor.id)
			ORDER BY e.created_at DESC, e.id DESC
			LIMIT $3
		`, productID, cursor, limit+1)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var e domain.LedgerEntry
		var saleID, purchaseID sql.NullString
		if err := rows.Scan(&e.ID, &e.ProductID, &e.QuantityDelta, &e.EntryType, &saleID, &purchaseID, &e.UnitCost, &e.CreatedAt); err != nil {
			return nil, "", err
		}
		e.SaleID = saleID.String
		e.PurchaseID = purchaseID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if cursor != "" && len(entries) == 0 {
		// The anchor join yields nothing for an unknown cursor as well as for
		// an exhausted page; distinguish them.
		var anchorExists bool
		if err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE id = $1 AND product_id = $2)
		`, cursor, productID).Scan(&anchorExists); err != nil {
			return nil, "", err
		}
		if !anchorExists {
			return nil, "", fmt.Errorf("%w: unknown cursor", store.ErrValidation)
		}
	}

	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		next = entries[limit-1].ID
	}
	return entries, next, nil
}

func (s *Store) ReconcileBalances(ctx context.Context, repair bool) ([]domain.BalanceDrift, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock every balance row first so concurrent sales cannot move balances
	// between the comparison and the repair.
	if _, err := tx.ExecContext(ctx, `
		SELECT product_id FROM stock_balances FOR UPDATE
	`); err != nil {
		return nil, mapTxError(err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT b.product_id, b.quantity, COALESCE(SUM(e.quantity_delta), 0) AS derived
		FROM stock_balances b
		LEFT JOIN ledger_entries e ON e.product_id = b.product_id
		GROUP BY b.product_id, b.quantity
		HAVING b.quantity <> COALESCE(SUM(e.quantity_delta), 0)
		ORDER BY b.product_id
	`)
	if err != nil {
		return nil, mapTxError(err)
	}

	drifts := make([]domain.BalanceDrift, 0)
	for rows.Next() {
		var d domain.BalanceDrift
		if err := rows.Scan(&d.ProductID, &d.Cached, &d.Derived); err != nil {
			_ = rows.Close()
			return nil, err
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if repair {
		for _, d := range drifts {
			if _, err := tx.ExecContext(ctx, `
				UPDATE stock_balances
				SET quantity = $1, updated_at = now()
				WHERE product_id = $2
			`, d.Derived, d.ProductID); err != nil {
				return nil, mapTxError(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return drifts, nil
}

// CompleteSale runs the whole sale in one serializable transaction: lock
// balances, validate availability, write the sale header and line items with
// the current catalog prices frozen in, append the negative ledger entries,
// move the balances, and write the invoice. Any failure rolls back every
// step.
func (s *Store) CompleteSale(ctx context.Context, cashierID string, cart []domain.CartLine) (*domain.SaleResult, error) {
	if cashierID == "" || len(cart) == 0 {
		return nil, store.ErrValidation
	}
	productIDs := make([]string, 0, len(cart))
	needed := make(map[string]int, len(cart))
	for _, cl := range cart {
		if cl.Qty < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
		}
		if needed[cl.ProductID] == 0 {
			productIDs = append(productIDs, cl.ProductID)
		}
		needed[cl.ProductID] += cl.Qty
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	productRows, err := tx.QueryContext(ctx, `
		SELECT p.id, p.price_unit, b.quantity
		FROM products p
		JOIN stock_balances b ON b.product_id = p.id
		WHERE p.id = ANY($1)
		FOR UPDATE OF b
	`, productIDs)
	if err != nil {
		return nil, mapTxError(err)
	}
	type priced struct {
		price   decimal.Decimal
		balance int
	}
	productMap := make(map[string]priced, len(productIDs))
	for productRows.Next() {
		var id string
		var p priced
		if err := productRows.Scan(&id, &p.price, &p.balance); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[id] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	for productID, qty := range needed {
		product, exists := productMap[productID]
		if !exists {
			return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, productID)
		}
		if product.balance < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:        xid.New("sale"),
		CashierID: cashierID,
		CreatedAt: now,
	}

	total := decimal.Zero
	totalQty := 0
	lines := make([]domain.SaleLineItem, 0, len(cart))
	for _, cl := range cart {
		product := productMap[cl.ProductID]
		subtotal := product.price.Mul(decimal.NewFromInt(int64(cl.Qty)))
		lines = append(lines, domain.SaleLineItem{
			ID:              xid.New("li"),
			SaleID:          sale.ID,
			ProductID:       cl.ProductID,
			Qty:             cl.Qty,
			UnitPriceAtSale: product.price,
			Subtotal:        subtotal,
		})
		total = total.Add(subtotal)
		totalQty += cl.Qty
	}
	sale.TotalPrice = total
	sale.TotalQuantity = totalQty
	sale.Items = lines

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, cashier_id, total_price, total_quantity, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, sale.ID, sale.CashierID, sale.TotalPrice, sale.TotalQuantity, sale.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_line_items (id, sale_id, product_id, qty, unit_price_at_sale, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, line.ID, line.SaleID, line.ProductID, line.Qty, line.UnitPriceAtSale, line.Subtotal)
		if err != nil {
			return nil, mapTxError(err)
		}
	}

	for _, line := range lines {
		if err := appendEntryTx(ctx, tx, domain.LedgerEntry{
			ID:            xid.New("led"),
			ProductID:     line.ProductID,
			QuantityDelta: -line.Qty,
			EntryType:     domain.EntrySale,
			SaleID:        sale.ID,
			CreatedAt:     now,
		}); err != nil {
			return nil, mapTxError(err)
		}
	}

	invoice := domain.Invoice{
		ID:        xid.New("inv"),
		Type:      domain.InvoiceSale,
		Amount:    total,
		CreatedBy: cashierID,
		SaleID:    sale.ID,
		CreatedAt: now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_type, amount, created_by, sale_id, purchase_id, created_at)
		VALUES ($1,$2,$3,$4,$5,NULL,$6)
	`, invoice.ID, invoice.Type, invoice.Amount, invoice.CreatedBy, invoice.SaleID, invoice.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	return &domain.SaleResult{Sale: sale, Invoice: invoice}, nil
}

func (s *Store) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cashier_id, total_price, total_quantity, created_at
		FROM sales
		WHERE id = $1
	`, saleID).Scan(&sale.ID, &sale.CashierID, &sale.TotalPrice, &sale.TotalQuantity, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, qty, unit_price_at_sale, subtotal
		FROM sale_line_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleLineItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Qty, &item.UnitPriceAtSale, &item.Subtotal); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetReceipt(ctx context.Context, saleID string) (*domain.Receipt, error) {
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	var invoiceID string
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM invoices WHERE sale_id = $1
	`, saleID).Scan(&invoiceID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	info, err := s.GetStoreInfo(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, p.name, p.barcode, i.qty, i.unit_price_at_sale, i.subtotal
		FROM sale_line_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = $1
		ORDER BY i.id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.ReceiptLine, 0, len(sale.Items))
	for rows.Next() {
		var line domain.ReceiptLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Barcode, &line.Qty, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.Receipt{
		InvoiceID:     invoiceID,
		SaleID:        sale.ID,
		Cashier:       sale.CashierID,
		Store:         *info,
		Lines:         lines,
		TotalPrice:    sale.TotalPrice,
		TotalQuantity: sale.TotalQuantity,
		CreatedAt:     sale.CreatedAt,
	}, nil
}

func (s *Store) RecordPurchase(ctx context.Context, purchase domain.Purchase) (*domain.PurchaseResult, error) {
	if purchase.CreatedBy == "" || len(purchase.Items) == 0 {
		return nil, store.ErrValidation
	}
	for _, item := range purchase.Items {
		if item.Qty < 1 || item.UnitCost.IsNegative() {
			return nil, store.ErrValidation
		}
	}
	if purchase.ID == "" {
		purchase.ID = xid.New("pur")
	}
	now := time.Now().UTC()
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}

	total := decimal.Zero
	for _, item := range purchase.Items {
		total = total.Add(item.UnitCost.Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	purchase.TotalCost = total

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, supplier_id, created_by, total_cost, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, purchase.ID, nullIfEmpty(purchase.SupplierID), purchase.CreatedBy, purchase.TotalCost, purchase.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	for _, item := range purchase.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_items (purchase_id, product_id, qty, unit_cost)
			VALUES ($1,$2,$3,$4)
		`, purchase.ID, item.ProductID, item.Qty, item.UnitCost)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("%w: unknown product %s", store.ErrValidation, item.ProductID)
			}
			return nil, mapTxError(err)
		}
		if err := appendEntryTx(ctx, tx, domain.LedgerEntry{
			ID:            xid.New("led"),
			ProductID:     item.ProductID,
			QuantityDelta: item.Qty,
			EntryType:     domain.EntryPurchase,
			PurchaseID:    purchase.ID,
			UnitCost:      item.UnitCost,
			CreatedAt:     now,
		}); err != nil {
			return nil, mapTxError(err)
		}
	}

	invoice := domain.Invoice{
		ID:         xid.New("inv"),
		Type:       domain.InvoicePurchase,
		Amount:     total,
		CreatedBy:  purchase.CreatedBy,
		PurchaseID: purchase.ID,
		CreatedAt:  now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_type, amount, created_by, sale_id, purchase_id, created_at)
		VALUES ($1,$2,$3,$4,NULL,$5,$6)
	`, invoice.ID, invoice.Type, invoice.Amount, invoice.CreatedBy, invoice.PurchaseID, invoice.CreatedAt)
	if err != nil {
		return nil, mapTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapTxError(err)
	}

	return &domain.PurchaseResult{Purchase: purchase, Invoice: invoice}, nil
}

func (s *Store) LowStockList(ctx context.Context, threshold int) ([]domain.LowStockProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, b.quantity
		FROM products p
		JOIN stock_balances b ON b.product_id = p.id
		WHERE b.quantity <= $1
		ORDER BY b.quantity, p.name
	`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	low := make([]domain.LowStockProduct, 0, 16)
	for rows.Next() {
		var item domain.LowStockProduct
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity); err != nil {
			return nil, err
		}
		low = append(low, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return low, nil
}

func (s *Store) GetStoreInfo(ctx context.Context) (*domain.StoreInfo, error) {
	var info domain.StoreInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT name, address, phone, email, tax_id, currency
		FROM store_info
		WHERE id = 1
	`).Scan(&info.Name, &info.Address, &info.Phone, &info.Email, &info.TaxID, &info.Currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.StoreInfo{Name: "Default Store", Currency: "DZD"}, nil
		}
		return nil, err
	}
	return &info, nil
}

func (s *Store) UpdateStoreInfo(ctx context.Context, info domain.StoreInfo) error {
	if strings.TrimSpace(info.Name) == "" {
		return store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_info (id, name, address, phone, email, tax_id, currency)
		VALUES (1,$1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, address = EXCLUDED.address, phone = EXCLUDED.phone,
		    email = EXCLUDED.email, tax_id = EXCLUDED.tax_id, currency = EXCLUDED.currency
	`, info.Name, info.Address, info.Phone, info.Email, info.TaxID, info.Currency)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// mapTxError translates engine contention into store.ErrConflict so callers
// can retry once against fresh state. 40001 is a serialization failure,
// 40P01 a deadlock, 55P03 a lock-not-available timeout.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Code)
		}
	}
	return err
}
