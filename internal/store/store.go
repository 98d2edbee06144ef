package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gudangpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnauthorized      = errors.New("unauthorized")
)

// InsufficientStockError names the product a checkout or transfer could not
// cover and carries the available-vs-requested figures for the caller's
// error message. It matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s; available: %d, requested: %d", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type BatchFilter struct {
	ProductID   string
	WarehouseID string
	// WithStockOnly restricts to batches with qty_remaining > 0.
	WithStockOnly bool
	From          time.Time
	To            time.Time
	Limit         int
}

type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	ListProducts(ctx context.Context, query string, includeInactive bool) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error)
	GetWarehouseByID(ctx context.Context, id string) (*domain.Warehouse, error)
	ListWarehouses(ctx context.Context) ([]domain.Warehouse, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	// CreateBatch appends one inventory batch. Pure insert; existing batches
	// are never touched.
	CreateBatch(ctx context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]domain.InventoryBatch, error)
	// SetBatchRemaining is the admin escape hatch: overrides qty_remaining
	// directly, clamped by the store to 0..qty_original.
	SetBatchRemaining(ctx context.Context, batchID string, qtyRemaining int) (*domain.InventoryBatch, error)
	// GetSystemStock sums qty_remaining over all batches for the pair.
	GetSystemStock(ctx context.Context, productID string, warehouseID string) (int, error)
	GetStockOnHand(ctx context.Context, warehouseID string) ([]domain.StockOnHand, error)

	// CreateCheckout persists the transaction header plus items and applies
	// the FIFO deduction for every line in one atomic unit. On any shortfall
	// it fails with an InsufficientStockError and no batch changes.
	CreateCheckout(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error)
	// VoidTransaction marks a completed sale voided and restocks its
	// quantities as adjustment batches, atomically.
	VoidTransaction(ctx context.Context, id string, restockedBy string, at time.Time) (*domain.Transaction, error)

	// CreateTransfer deducts FIFO from the source warehouse, creates the
	// destination batches preserving each consumed lot's unit cost, and
	// appends the single summary row — all in one atomic unit. A failed log
	// write rolls back the stock movement.
	CreateTransfer(ctx context.Context, transfer domain.StockTransfer) (*domain.StockTransfer, error)
	ListTransfers(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.StockTransfer, error)

	// CreateOpname snapshots system stock and records the audit row. Batch
	// quantities are never modified.
	CreateOpname(ctx context.Context, opname domain.StockOpname) (*domain.StockOpname, error)
	ListOpnames(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.StockOpname, error)

	GetDailySalesReport(ctx context.Context, warehouseID string, from time.Time, to time.Time) (domain.DailySalesReport, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
