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

	"gudangpos/backend/internal/allocation"
	"gudangpos/backend/internal/domain"
	"gudangpos/backend/internal/store"
	"gudangpos/backend/internal/xid"
)

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

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.SellPriceCents < 0 || product.LowStockThreshold < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, sell_price_cents, low_stock_threshold, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	`, product.ID, product.SKU, product.Name, product.SellPriceCents, product.LowStockThreshold, product.Active, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.getProduct(ctx, "id", id)
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return s.getProduct(ctx, "sku", sku)
}

func (s *Store) getProduct(ctx context.Context, column string, value string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, sku, name, sell_price_cents, low_stock_threshold, active, created_at, updated_at
		FROM products
		WHERE %s = $1
	`, column), value).Scan(&product.ID, &product.SKU, &product.Name, &product.SellPriceCents,
		&product.LowStockThreshold, &product.Active, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, query string, includeInactive bool) ([]domain.Product, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, sell_price_cents, low_stock_threshold, active, created_at, updated_at
		FROM products
		WHERE (active = true OR $2)
		  AND (lower(name) LIKE $1 OR lower(sku) LIKE $1)
		ORDER BY name
	`, pattern, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.SellPriceCents, &p.LowStockThreshold, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
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
	if product.ID == "" || product.Name == "" || product.SellPriceCents < 0 || product.LowStockThreshold < 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sell_price_cents = $3, low_stock_threshold = $4, active = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.SellPriceCents, product.LowStockThreshold, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) CreateWarehouse(ctx context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	if warehouse.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if warehouse.ID == "" {
		warehouse.ID = xid.New("wh")
	}
	warehouse.Active = true
	warehouse.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warehouses (id, name, active, created_at)
		VALUES ($1,$2,$3,$4)
	`, warehouse.ID, warehouse.Name, warehouse.Active, warehouse.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := warehouse
	return &created, nil
}

func (s *Store) GetWarehouseByID(ctx context.Context, id string) (*domain.Warehouse, error) {
	var warehouse domain.Warehouse
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, active, created_at
		FROM warehouses
		WHERE id = $1
	`, id).Scan(&warehouse.ID, &warehouse.Name, &warehouse.Active, &warehouse.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	warehouse.CreatedAt = warehouse.CreatedAt.UTC()
	return &warehouse, nil
}

func (s *Store) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active, created_at
		FROM warehouses
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	warehouses := make([]domain.Warehouse, 0, 16)
	for rows.Next() {
		var w domain.Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Active, &w.CreatedAt); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return warehouses, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	customer.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), customer.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	var phone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &phone, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.Phone = phone.String
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		var phone sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Phone = phone.String
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error) {
	if batch.ProductID == "" || batch.WarehouseID == "" || batch.QtyOriginal < 1 || batch.BuyPriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if batch.QtyRemaining == 0 {
		batch.QtyRemaining = batch.QtyOriginal
	}
	if batch.QtyRemaining < 0 || batch.QtyRemaining > batch.QtyOriginal {
		return nil, store.ErrInvalidInput
	}
	if batch.SourceType == "" {
		batch.SourceType = domain.BatchSourceReceiving
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_batches (
			id, product_id, warehouse_id, qty_original, qty_remaining,
			buy_price_cents, source_type, source_id, created_by, received_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, batch.ID, batch.ProductID, batch.WarehouseID, batch.QtyOriginal, batch.QtyRemaining,
		batch.BuyPriceCents, batch.SourceType, nullIfEmpty(batch.SourceID), nullIfEmpty(batch.CreatedBy), batch.ReceivedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := batch
	return &created, nil
}

func (s *Store) ListBatches(ctx context.Context, filter store.BatchFilter) ([]domain.InventoryBatch, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	conditions := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ProductID != "" {
		conditions = append(conditions, "product_id = "+arg(filter.ProductID))
	}
	if filter.WarehouseID != "" {
		conditions = append(conditions, "warehouse_id = "+arg(filter.WarehouseID))
	}
	if filter.WithStockOnly {
		conditions = append(conditions, "qty_remaining > 0")
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "received_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "received_at < "+arg(filter.To))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, warehouse_id, qty_original, qty_remaining,
		       buy_price_cents, source_type, source_id, created_by, received_at
		FROM inventory_batches
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY received_at ASC, id ASC
		LIMIT `+arg(limit), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBatches(rows)
}

func scanBatches(rows *sql.Rows) ([]domain.InventoryBatch, error) {
	batches := make([]domain.InventoryBatch, 0, 16)
	for rows.Next() {
		var b domain.InventoryBatch
		var sourceID, createdBy sql.NullString
		if err := rows.Scan(&b.ID, &b.ProductID, &b.WarehouseID, &b.QtyOriginal, &b.QtyRemaining,
			&b.BuyPriceCents, &b.SourceType, &sourceID, &createdBy, &b.ReceivedAt); err != nil {
			return nil, err
		}
		b.SourceID = sourceID.String
		b.CreatedBy = createdBy.String
		b.ReceivedAt = b.ReceivedAt.UTC()
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) SetBatchRemaining(ctx context.Context, batchID string, qtyRemaining int) (*domain.InventoryBatch, error) {
	if qtyRemaining < 0 {
		return nil, store.ErrInvalidInput
	}

	var b domain.InventoryBatch
	var sourceID, createdBy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		UPDATE inventory_batches
		SET qty_remaining = $2, updated_at = now()
		WHERE id = $1 AND qty_original >= $2
		RETURNING id, product_id, warehouse_id, qty_original, qty_remaining,
		          buy_price_cents, source_type, source_id, created_by, received_at
	`, batchID, qtyRemaining).Scan(&b.ID, &b.ProductID, &b.WarehouseID, &b.QtyOriginal, &b.QtyRemaining,
		&b.BuyPriceCents, &b.SourceType, &sourceID, &createdBy, &b.ReceivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the batch does not exist or the override exceeds the
			// original quantity; distinguish for the caller.
			var exists bool
			if checkErr := s.db.QueryRowContext(ctx, `SELECT true FROM inventory_batches WHERE id = $1`, batchID).Scan(&exists); checkErr == nil {
				return nil, store.ErrInvalidInput
			}
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	b.SourceID = sourceID.String
	b.CreatedBy = createdBy.String
	b.ReceivedAt = b.ReceivedAt.UTC()
	return &b, nil
}

func (s *Store) GetSystemStock(ctx context.Context, productID string, warehouseID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(qty_remaining), 0)
		FROM inventory_batches
		WHERE product_id = $1 AND warehouse_id = $2 AND qty_remaining > 0
	`, productID, warehouseID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) GetStockOnHand(ctx context.Context, warehouseID string) ([]domain.StockOnHand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.sku, COALESCE(SUM(b.qty_remaining), 0)
		FROM products p
		LEFT JOIN inventory_batches b
		  ON b.product_id = p.id AND b.qty_remaining > 0 AND ($1 = '' OR b.warehouse_id = $1)
		WHERE p.active = true
		GROUP BY p.id, p.name, p.sku
		ORDER BY p.name
	`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockOnHand, 0, 128)
	for rows.Next() {
		var row domain.StockOnHand
		if err := rows.Scan(&row.ProductID, &row.ProductName, &row.SKU, &row.Qty); err != nil {
			return nil, err
		}
		row.WarehouseID = warehouseID
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// deductFIFO locks the live batches for (product, warehouse), plans the FIFO
// consumption and applies the per-batch decrements within pgTx. The row locks
// serialize concurrent allocations on the same pair, so two callers can never
// act on the same availability snapshot.
func deductFIFO(ctx context.Context, pgTx *sql.Tx, productID, warehouseID string, qty int) ([]allocation.Allocation, error) {
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, product_id, warehouse_id, qty_original, qty_remaining,
		       buy_price_cents, source_type, source_id, created_by, received_at
		FROM inventory_batches
		WHERE product_id = $1 AND warehouse_id = $2 AND qty_remaining > 0
		ORDER BY received_at ASC, id ASC
		FOR UPDATE
	`, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	batches, err := scanBatches(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	plan, err := allocation.Plan(batches, qty)
	if err != nil {
		return nil, err
	}

	for _, a := range plan {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE inventory_batches
			SET qty_remaining = qty_remaining - $1, updated_at = now()
			WHERE id = $2 AND qty_remaining >= $1
		`, a.Qty, a.BatchID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("batch %s changed under lock", a.BatchID)
		}
	}
	return plan, nil
}

func asInsufficientStock(err error, productID string, productName string) error {
	var shortfall *allocation.ShortfallError
	if errors.As(err, &shortfall) {
		return &store.InsufficientStockError{
			ProductID:   productID,
			ProductName: productName,
			Requested:   shortfall.Requested,
			Available:   shortfall.Available,
		}
	}
	return err
}

func (s *Store) CreateCheckout(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.WarehouseID == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, item := range tx.Items {
		if item.ProductID == "" || item.Qty < 1 || item.SellPriceCents < 0 {
			return nil, store.ErrInvalidInput
		}
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var totalCents int64
	for i := range tx.Items {
		item := &tx.Items[i]

		var name string
		var active bool
		err := pgTx.QueryRowContext(ctx, `
			SELECT name, active FROM products WHERE id = $1
		`, item.ProductID).Scan(&name, &active)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if !active {
			return nil, store.ErrNotFound
		}

		plan, err := deductFIFO(ctx, pgTx, item.ProductID, tx.WarehouseID, item.Qty)
		if err != nil {
			return nil, asInsufficientStock(err, item.ProductID, name)
		}

		item.ProductName = name
		item.BuyPriceTotalCents = allocation.CostCents(plan)
		totalCents += int64(item.Qty) * item.SellPriceCents
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Status = domain.TxStatusCompleted
	tx.TotalCents = totalCents

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (id, warehouse_id, customer_id, cashier_id, total_cents, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, tx.ID, tx.WarehouseID, nullIfEmpty(tx.CustomerID), tx.CashierID, tx.TotalCents, tx.Status, tx.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, item := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, product_name, qty, sell_price_cents, buy_price_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tx.ID, item.ProductID, item.ProductName, item.Qty, item.SellPriceCents, item.BuyPriceTotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	var customerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, warehouse_id, customer_id, cashier_id, total_cents, status, created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &tx.WarehouseID, &customerID, &tx.CashierID, &tx.TotalCents, &tx.Status, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.CustomerID = customerID.String
	tx.CreatedAt = tx.CreatedAt.UTC()

	items, err := s.listTransactionItems(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	tx.Items = items
	return &tx, nil
}

func (s *Store) listTransactionItems(ctx context.Context, transactionID string) ([]domain.TransactionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, qty, sell_price_cents, buy_price_total_cents
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY product_name
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionItem, 0, 8)
	for rows.Next() {
		var item domain.TransactionItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Qty, &item.SellPriceCents, &item.BuyPriceTotalCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTransactions(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, warehouse_id, customer_id, cashier_id, total_cents, status, created_at
		FROM transactions
		WHERE ($1 = '' OR warehouse_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, warehouseID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		var tx domain.Transaction
		var customerID sql.NullString
		if err := rows.Scan(&tx.ID, &tx.WarehouseID, &customerID, &tx.CashierID, &tx.TotalCents, &tx.Status, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.CustomerID = customerID.String
		tx.CreatedAt = tx.CreatedAt.UTC()
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) VoidTransaction(ctx context.Context, id string, restockedBy string, at time.Time) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var tx domain.Transaction
	var customerID sql.NullString
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, warehouse_id, customer_id, cashier_id, total_cents, status, created_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&tx.ID, &tx.WarehouseID, &customerID, &tx.CashierID, &tx.TotalCents, &tx.Status, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.CustomerID = customerID.String
	tx.CreatedAt = tx.CreatedAt.UTC()
	if tx.Status != domain.TxStatusCompleted {
		return nil, store.ErrInvalidInput
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, product_name, qty, sell_price_cents, buy_price_total_cents
		FROM transaction_items
		WHERE transaction_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var item domain.TransactionItem
		if err := itemRows.Scan(&item.ProductID, &item.ProductName, &item.Qty, &item.SellPriceCents, &item.BuyPriceTotalCents); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		tx.Items = append(tx.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	// Restock each line at its COGS-derived unit cost.
	for _, item := range tx.Items {
		unitCost := item.BuyPriceTotalCents / int64(item.Qty)
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO inventory_batches (
				id, product_id, warehouse_id, qty_original, qty_remaining,
				buy_price_cents, source_type, source_id, created_by, received_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$4,$5,$6,$7,$8,$9,now())
		`, xid.New("batch"), item.ProductID, tx.WarehouseID, item.Qty, unitCost,
			domain.BatchSourceAdjustment, tx.ID, nullIfEmpty(restockedBy), at)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE transactions SET status = $2 WHERE id = $1
	`, id, domain.TxStatusVoided)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	tx.Status = domain.TxStatusVoided
	return &tx, nil
}

func (s *Store) CreateTransfer(ctx context.Context, transfer domain.StockTransfer) (*domain.StockTransfer, error) {
	if transfer.ProductID == "" || transfer.FromWarehouseID == "" || transfer.ToWarehouseID == "" || transfer.Qty < 1 {
		return nil, store.ErrInvalidInput
	}
	if transfer.FromWarehouseID == transfer.ToWarehouseID {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var productName string
	err = pgTx.QueryRowContext(ctx, `
		SELECT name FROM products WHERE id = $1
	`, transfer.ProductID).Scan(&productName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var destExists bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT true FROM warehouses WHERE id = $1
	`, transfer.ToWarehouseID).Scan(&destExists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	plan, err := deductFIFO(ctx, pgTx, transfer.ProductID, transfer.FromWarehouseID, transfer.Qty)
	if err != nil {
		return nil, asInsufficientStock(err, transfer.ProductID, productName)
	}

	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}

	// One destination batch per consumed source lot, preserving its cost.
	// The summary row commits with the batch movement: a failed insert rolls
	// everything back, so the transfer log can never silently miss a move.
	for _, a := range plan {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO inventory_batches (
				id, product_id, warehouse_id, qty_original, qty_remaining,
				buy_price_cents, source_type, source_id, created_by, received_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$4,$5,$6,$7,$8,$9,now())
		`, xid.New("batch"), transfer.ProductID, transfer.ToWarehouseID, a.Qty, a.BuyPriceCents,
			domain.BatchSourceTransfer, transfer.ID, nullIfEmpty(transfer.CreatedBy), transfer.CreatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_transfers (id, product_id, from_warehouse_id, to_warehouse_id, qty, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, transfer.ID, transfer.ProductID, transfer.FromWarehouseID, transfer.ToWarehouseID,
		transfer.Qty, transfer.CreatedBy, transfer.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := transfer
	return &created, nil
}

func (s *Store) ListTransfers(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.StockTransfer, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, from_warehouse_id, to_warehouse_id, qty, created_by, created_at
		FROM stock_transfers
		WHERE ($1 = '' OR from_warehouse_id = $1 OR to_warehouse_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, warehouseID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockTransfer, 0, limit)
	for rows.Next() {
		var t domain.StockTransfer
		if err := rows.Scan(&t.ID, &t.ProductID, &t.FromWarehouseID, &t.ToWarehouseID, &t.Qty, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateOpname(ctx context.Context, opname domain.StockOpname) (*domain.StockOpname, error) {
	if opname.ProductID == "" || opname.WarehouseID == "" || opname.CountedQty < 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	// Snapshot only: batches are read, never written, inside an opname.
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(qty_remaining), 0)
		FROM inventory_batches
		WHERE product_id = $1 AND warehouse_id = $2 AND qty_remaining > 0
	`, opname.ProductID, opname.WarehouseID).Scan(&opname.SystemQty)
	if err != nil {
		return nil, err
	}
	opname.Difference = opname.CountedQty - opname.SystemQty
	if opname.ID == "" {
		opname.ID = xid.New("opn")
	}
	if opname.CreatedAt.IsZero() {
		opname.CreatedAt = time.Now().UTC()
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_opnames (id, warehouse_id, product_id, system_qty, counted_qty, difference, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, opname.ID, opname.WarehouseID, opname.ProductID, opname.SystemQty, opname.CountedQty,
		opname.Difference, strings.TrimSpace(opname.Notes), opname.CreatedBy, opname.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := opname
	return &created, nil
}

func (s *Store) ListOpnames(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.StockOpname, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, warehouse_id, product_id, system_qty, counted_qty, difference, notes, created_by, created_at
		FROM stock_opnames
		WHERE ($1 = '' OR warehouse_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, warehouseID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockOpname, 0, limit)
	for rows.Next() {
		var o domain.StockOpname
		if err := rows.Scan(&o.ID, &o.WarehouseID, &o.ProductID, &o.SystemQty, &o.CountedQty, &o.Difference, &o.Notes, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.CreatedAt = o.CreatedAt.UTC()
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetDailySalesReport(ctx context.Context, warehouseID string, from time.Time, to time.Time) (domain.DailySalesReport, error) {
	report := domain.DailySalesReport{
		WarehouseID: warehouseID,
		Date:        from.UTC().Format("2006-01-02"),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM transactions
		WHERE status = $1
		  AND ($2 = '' OR warehouse_id = $2)
		  AND created_at >= $3 AND created_at < $4
	`, domain.TxStatusCompleted, warehouseID, from, to).Scan(&report.Transactions, &report.RevenueCents)
	if err != nil {
		return report, err
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(i.buy_price_total_cents), 0)
		FROM transaction_items i
		JOIN transactions t ON t.id = i.transaction_id
		WHERE t.status = $1
		  AND ($2 = '' OR t.warehouse_id = $2)
		  AND t.created_at >= $3 AND t.created_at < $4
	`, domain.TxStatusCompleted, warehouseID, from, to).Scan(&report.COGSCents)
	if err != nil {
		return report, err
	}
	report.ProfitCents = report.RevenueCents - report.COGSCents

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, i.product_name, SUM(i.qty), SUM(i.qty * i.sell_price_cents)
		FROM transaction_items i
		JOIN transactions t ON t.id = i.transaction_id
		WHERE t.status = $1
		  AND ($2 = '' OR t.warehouse_id = $2)
		  AND t.created_at >= $3 AND t.created_at < $4
		GROUP BY i.product_id, i.product_name
		ORDER BY SUM(i.qty) DESC, i.product_name
		LIMIT 10
	`, domain.TxStatusCompleted, warehouseID, from, to)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.DailySalesProduct
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.QtySold, &p.RevenueCents); err != nil {
			return report, err
		}
		report.TopProducts = append(report.TopProducts, p)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}
	return report, nil
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

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, warehouse_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.Username, user.Password, user.Role, nullIfEmpty(user.WarehouseID), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var warehouseID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, warehouse_id, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &warehouseID, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.WarehouseID = warehouseID.String
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, warehouse_id, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		var warehouseID sql.NullString
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &warehouseID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.WarehouseID = warehouseID.String
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
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

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
