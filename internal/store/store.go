package store

import (
	"context"
	"errors"

	"stokpos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid request")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict marks engine-level contention (serialization failures, lock
	// timeouts). Callers may retry once against fresh state.
	ErrConflict = errors.New("stock changed concurrently")
)

type Repository interface {
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateProduct(ctx context.Context, product domain.Product, initialStock int) (*domain.Product, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	AppendEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	BalanceOf(ctx context.Context, productID string) (int, error)
	BalanceMap(ctx context.Context, productIDs []string) (map[string]int, error)
	LedgerHistory(ctx context.Context, productID string, cursor string, limit int) ([]domain.LedgerEntry, string, error)
	ReconcileBalances(ctx context.Context, repair bool) ([]domain.BalanceDrift, error)

	CompleteSale(ctx context.Context, cashierID string, cart []domain.CartLine) (*domain.SaleResult, error)
	GetSale(ctx context.Context, saleID string) (*domain.Sale, error)
	GetReceipt(ctx context.Context, saleID string) (*domain.Receipt, error)

	RecordPurchase(ctx context.Context, purchase domain.Purchase) (*domain.PurchaseResult, error)

	LowStockList(ctx context.Context, threshold int) ([]domain.LowStockProduct, error)

	GetStoreInfo(ctx context.Context) (*domain.StoreInfo, error)
	UpdateStoreInfo(ctx context.Context, info domain.StoreInfo) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
