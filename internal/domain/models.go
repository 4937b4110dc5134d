package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Product carries the cached on-hand quantity. The cache is maintained in the
// same unit of work as every ledger append; the ledger remains the source of
// truth and ReconcileBalances surfaces any drift.
type Product struct {
	ID         string          `json:"id"`
	CategoryID string          `json:"category_id"`
	Name       string          `json:"name"`
	Barcode    string          `json:"barcode"`
	PriceUnit  decimal.Decimal `json:"price_unit"`
	Quantity   int             `json:"quantity"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	CategoryID   string          `json:"category_id"`
	Name         string          `json:"name"`
	Barcode      string          `json:"barcode"`
	PriceUnit    decimal.Decimal `json:"price_unit"`
	InitialStock int             `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	CategoryID *string          `json:"category_id,omitempty"`
	Name       *string          `json:"name,omitempty"`
	Barcode    *string          `json:"barcode,omitempty"`
	PriceUnit  *decimal.Decimal `json:"price_unit,omitempty"`
}

const (
	EntryPurchase   = "purchase"
	EntryManual     = "manual"
	EntryCorrection = "correction"
	EntryReturn     = "return"
	EntrySale       = "sale"
)

// LedgerEntry is one immutable stock-affecting event. QuantityDelta is signed:
// negative for sale entries, positive or negative for corrections.
type LedgerEntry struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	QuantityDelta int             `json:"quantity_delta"`
	EntryType     string          `json:"entry_type"`
	SaleID        string          `json:"sale_id,omitempty"`
	PurchaseID    string          `json:"purchase_id,omitempty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	CreatedAt     time.Time       `json:"created_at"`
}

type LedgerPage struct {
	Entries    []LedgerEntry `json:"entries"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type CartLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CompleteSaleRequest struct {
	Cart []CartLine `json:"cart"`
}

type SaleLineItem struct {
	ID              string          `json:"id"`
	SaleID          string          `json:"sale_id"`
	ProductID       string          `json:"product_id"`
	Qty             int             `json:"qty"`
	UnitPriceAtSale decimal.Decimal `json:"unit_price_at_sale"`
	Subtotal        decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID            string          `json:"id"`
	CashierID     string          `json:"cashier_id"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	TotalQuantity int             `json:"total_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleLineItem  `json:"items"`
}

const (
	InvoiceSale     = "sale"
	InvoicePurchase = "purchase"
)

type Invoice struct {
	ID         string          `json:"id"`
	Type       string          `json:"invoice_type"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedBy  string          `json:"created_by"`
	SaleID     string          `json:"sale_id,omitempty"`
	PurchaseID string          `json:"purchase_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type SaleResult struct {
	Sale    Sale    `json:"sale"`
	Invoice Invoice `json:"invoice"`
}

type StockEntryRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	EntryType string `json:"entry_type"`
}

type PurchaseItem struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type Purchase struct {
	ID         string          `json:"id"`
	SupplierID string          `json:"supplier_id,omitempty"`
	CreatedBy  string          `json:"created_by"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	CreatedAt  time.Time       `json:"created_at"`
	Items      []PurchaseItem  `json:"items"`
}

type PurchaseRequest struct {
	SupplierID string         `json:"supplier_id"`
	Items      []PurchaseItem `json:"items"`
}

type PurchaseResult struct {
	Purchase Purchase `json:"purchase"`
	Invoice  Invoice  `json:"invoice"`
}

type StoreInfo struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	TaxID    string `json:"tax_id"`
	Currency string `json:"currency"`
}

type ReceiptLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Barcode   string          `json:"barcode"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Receipt is the printable join of a sale, its frozen line items, and store
// metadata. Prices come from the line items, never from the live catalog.
type Receipt struct {
	InvoiceID     string          `json:"invoice_id"`
	SaleID        string          `json:"sale_id"`
	Cashier       string          `json:"cashier"`
	Store         StoreInfo       `json:"store"`
	Lines         []ReceiptLine   `json:"lines"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	TotalQuantity int             `json:"total_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
}

type LowStockProduct struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type BalanceDrift struct {
	ProductID string `json:"product_id"`
	Cached    int    `json:"cached"`
	Derived   int    `json:"derived"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
