package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gudangpos/backend/internal/allocation"
	"gudangpos/backend/internal/domain"
	"gudangpos/backend/internal/store"
	"gudangpos/backend/internal/xid"
)

// Store is the in-memory Repository used for dev/demo mode and tests. The
// single mutex is the atomic unit: every mutating operation plans first and
// applies only once the whole plan is known to succeed, so callers observe
// all of an operation's writes or none of them.
type Store struct {
	mu               sync.Mutex
	productsByID     map[string]domain.Product
	productIDBySKU   map[string]string
	warehousesByID   map[string]domain.Warehouse
	customersByID    map[string]domain.Customer
	batchesByID      map[string]*domain.InventoryBatch
	batchOrder       []string
	transactionsByID map[string]*domain.Transaction
	transferLog      []domain.StockTransfer
	opnameLog        []domain.StockOpname
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		productsByID:     make(map[string]domain.Product),
		productIDBySKU:   make(map[string]string),
		warehousesByID:   make(map[string]domain.Warehouse),
		customersByID:    make(map[string]domain.Customer),
		batchesByID:      make(map[string]*domain.InventoryBatch),
		transactionsByID: make(map[string]*domain.Transaction),
		transferLog:      make([]domain.StockTransfer, 0, 64),
		opnameLog:        make([]domain.StockOpname, 0, 64),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD, SEED_GUDANG_PASSWORD and
// SEED_KASIR_PASSWORD environment variables; hardcoded dev defaults are used
// with a warning otherwise. Never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers(mainWarehouseID string) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	gudangPwd := envOr("SEED_GUDANG_PASSWORD", "gudang123")
	kasirPwd := envOr("SEED_KASIR_PASSWORD", "kasir123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_GUDANG_PASSWORD") == "" || os.Getenv("SEED_KASIR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_GUDANG_PASSWORD and SEED_KASIR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username    string
		password    string
		role        string
		warehouseID string
	}{
		{"admin", adminPwd, domain.RoleSuperadmin, ""},
		{"gudang", gudangPwd, domain.RoleGudang, mainWarehouseID},
		{"kasir", kasirPwd, domain.RoleKasir, mainWarehouseID},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:    u.username,
			Password:    string(hash),
			Role:        u.role,
			WarehouseID: u.warehouseID,
			Active:      true,
			CreatedAt:   now,
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

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	warehouses := []domain.Warehouse{
		{ID: "wh-pusat", Name: "Gudang Pusat", Active: true, CreatedAt: now},
		{ID: "wh-cabang", Name: "Gudang Cabang", Active: true, CreatedAt: now},
	}
	for _, w := range warehouses {
		s.warehousesByID[w.ID] = w
	}

	products := []domain.Product{
		{ID: "prod-mie", SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", SellPriceCents: 3500, LowStockThreshold: 24, Active: true},
		{ID: "prod-telur", SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", SellPriceCents: 26500, LowStockThreshold: 12, Active: true},
		{ID: "prod-susu", SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", SellPriceCents: 18900, LowStockThreshold: 12, Active: true},
		{ID: "prod-kopi", SKU: "SKU-KOPI-01", Name: "Kopi Sachet", SellPriceCents: 2600, LowStockThreshold: 48, Active: true},
		{ID: "prod-gula", SKU: "SKU-GULA-01", Name: "Gula 1kg", SellPriceCents: 17400, LowStockThreshold: 10, Active: true},
		{ID: "prod-sabun", SKU: "SKU-SABUN-01", Name: "Sabun Mandi", SellPriceCents: 7400, LowStockThreshold: 10, Active: true},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.productsByID[p.ID] = p
		s.productIDBySKU[p.SKU] = p.ID
		for i, wh := range warehouses {
			b := domain.InventoryBatch{
				ID:            xid.New("batch"),
				ProductID:     p.ID,
				WarehouseID:   wh.ID,
				QtyOriginal:   120,
				QtyRemaining:  120,
				BuyPriceCents: p.SellPriceCents * 7 / 10,
				SourceType:    domain.BatchSourceReceiving,
				CreatedBy:     "seed",
				ReceivedAt:    now.Add(-time.Duration(i+1) * 24 * time.Hour),
			}
			s.batchesByID[b.ID] = &b
			s.batchOrder = append(s.batchOrder, b.ID)
		}
	}

	s.customersByID["cust-umum"] = domain.Customer{ID: "cust-umum", Name: "Pelanggan Umum", CreatedAt: now}
	s.usersByUsername = seedUsers("wh-pusat")
	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.SellPriceCents < 0 || product.LowStockThreshold < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productIDBySKU[product.SKU]; exists {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true

	s.productsByID[product.ID] = product
	s.productIDBySKU[product.SKU] = product.ID
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getProductLocked(id)
}

func (s *Store) getProductLocked(id string) (*domain.Product, error) {
	product, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.productIDBySKU[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	return s.getProductLocked(id)
}

func (s *Store) ListProducts(_ context.Context, query string, includeInactive bool) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query = strings.ToLower(strings.TrimSpace(query))
	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if !p.Active && !includeInactive {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) && !strings.Contains(strings.ToLower(p.SKU), query) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.productsByID[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.SellPriceCents < 0 || product.LowStockThreshold < 0 {
		return nil, store.ErrInvalidInput
	}

	product.SKU = existing.SKU
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreateWarehouse(_ context.Context, warehouse domain.Warehouse) (*domain.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if warehouse.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if warehouse.ID == "" {
		warehouse.ID = xid.New("wh")
	}
	if warehouse.CreatedAt.IsZero() {
		warehouse.CreatedAt = time.Now().UTC()
	}
	warehouse.Active = true
	s.warehousesByID[warehouse.ID] = warehouse
	created := warehouse
	return &created, nil
}

func (s *Store) GetWarehouseByID(_ context.Context, id string) (*domain.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	warehouse, exists := s.warehousesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyWarehouse := warehouse
	return &copyWarehouse, nil
}

func (s *Store) ListWarehouses(_ context.Context) ([]domain.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	warehouses := make([]domain.Warehouse, 0, len(s.warehousesByID))
	for _, w := range s.warehousesByID {
		warehouses = append(warehouses, w)
	}
	slices.SortFunc(warehouses, func(a, b domain.Warehouse) int {
		return strings.Compare(a.Name, b.Name)
	})
	return warehouses, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.InventoryBatch) (*domain.InventoryBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBatchLocked(batch)
}

func (s *Store) createBatchLocked(batch domain.InventoryBatch) (*domain.InventoryBatch, error) {
	if batch.ProductID == "" || batch.WarehouseID == "" || batch.QtyOriginal < 1 || batch.BuyPriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productsByID[batch.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.warehousesByID[batch.WarehouseID]; !exists {
		return nil, store.ErrNotFound
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

	stored := batch
	s.batchesByID[stored.ID] = &stored
	s.batchOrder = append(s.batchOrder, stored.ID)
	created := stored
	return &created, nil
}

func (s *Store) ListBatches(_ context.Context, filter store.BatchFilter) ([]domain.InventoryBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.listBatchesLocked(filter)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// listBatchesLocked returns copies in FIFO order (received_at asc, id asc).
func (s *Store) listBatchesLocked(filter store.BatchFilter) []domain.InventoryBatch {
	result := make([]domain.InventoryBatch, 0, 16)
	for _, id := range s.batchOrder {
		b := s.batchesByID[id]
		if filter.ProductID != "" && b.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != "" && b.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.WithStockOnly && b.QtyRemaining <= 0 {
			continue
		}
		if !filter.From.IsZero() && b.ReceivedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !b.ReceivedAt.Before(filter.To) {
			continue
		}
		result = append(result, *b)
	}
	slices.SortFunc(result, func(a, b domain.InventoryBatch) int {
		if a.ReceivedAt.Equal(b.ReceivedAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.ReceivedAt.Before(b.ReceivedAt) {
			return -1
		}
		return 1
	})
	return result
}

func (s *Store) SetBatchRemaining(_ context.Context, batchID string, qtyRemaining int) (*domain.InventoryBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.batchesByID[batchID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if qtyRemaining < 0 || qtyRemaining > b.QtyOriginal {
		return nil, store.ErrInvalidInput
	}
	b.QtyRemaining = qtyRemaining
	updated := *b
	return &updated, nil
}

func (s *Store) GetSystemStock(_ context.Context, productID string, warehouseID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemStockLocked(productID, warehouseID), nil
}

func (s *Store) systemStockLocked(productID string, warehouseID string) int {
	total := 0
	for _, b := range s.batchesByID {
		if b.ProductID == productID && b.WarehouseID == warehouseID && b.QtyRemaining > 0 {
			total += b.QtyRemaining
		}
	}
	return total
}

func (s *Store) GetStockOnHand(_ context.Context, warehouseID string) ([]domain.StockOnHand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[string]int)
	for _, b := range s.batchesByID {
		if warehouseID != "" && b.WarehouseID != warehouseID {
			continue
		}
		if b.QtyRemaining > 0 {
			totals[b.ProductID] += b.QtyRemaining
		}
	}

	result := make([]domain.StockOnHand, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if !p.Active {
			continue
		}
		result = append(result, domain.StockOnHand{
			ProductID:   p.ID,
			ProductName: p.Name,
			SKU:         p.SKU,
			WarehouseID: warehouseID,
			Qty:         totals[p.ID],
		})
	}
	slices.SortFunc(result, func(a, b domain.StockOnHand) int {
		return strings.Compare(a.ProductName, b.ProductName)
	})
	return result, nil
}

// planLine builds a FIFO plan for one line against staged remaining
// quantities, so later lines of the same checkout see earlier lines'
// deductions before anything is applied.
func (s *Store) planLine(productID, warehouseID string, qty int, staged map[string]int) ([]allocation.Allocation, error) {
	candidates := s.listBatchesLocked(store.BatchFilter{
		ProductID:   productID,
		WarehouseID: warehouseID,
	})
	for i := range candidates {
		if taken, ok := staged[candidates[i].ID]; ok {
			candidates[i].QtyRemaining -= taken
		}
	}
	return allocation.Plan(candidates, qty)
}

func (s *Store) CreateCheckout(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.WarehouseID == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.warehousesByID[tx.WarehouseID]; !exists {
		return nil, store.ErrNotFound
	}
	if tx.CustomerID != "" {
		if _, exists := s.customersByID[tx.CustomerID]; !exists {
			return nil, store.ErrNotFound
		}
	}

	staged := make(map[string]int)
	var totalCents int64
	for i := range tx.Items {
		item := &tx.Items[i]
		if item.Qty < 1 || item.SellPriceCents < 0 {
			return nil, store.ErrInvalidInput
		}
		product, exists := s.productsByID[item.ProductID]
		if !exists || !product.Active {
			return nil, store.ErrNotFound
		}

		plan, err := s.planLine(item.ProductID, tx.WarehouseID, item.Qty, staged)
		if err != nil {
			if shortfall, ok := err.(*allocation.ShortfallError); ok {
				return nil, &store.InsufficientStockError{
					ProductID:   item.ProductID,
					ProductName: product.Name,
					Requested:   shortfall.Requested,
					Available:   shortfall.Available,
				}
			}
			return nil, err
		}
		for _, a := range plan {
			staged[a.BatchID] += a.Qty
		}
		item.ProductName = product.Name
		item.BuyPriceTotalCents = allocation.CostCents(plan)
		totalCents += int64(item.Qty) * item.SellPriceCents
	}

	// Every line planned: apply the staged decrements and persist the header.
	for batchID, taken := range staged {
		s.batchesByID[batchID].QtyRemaining -= taken
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Status = domain.TxStatusCompleted
	tx.TotalCents = totalCents

	stored := tx
	stored.Items = make([]domain.TransactionItem, len(tx.Items))
	copy(stored.Items, tx.Items)
	s.transactionsByID[stored.ID] = &stored

	created := cloneTransaction(&stored)
	return &created, nil
}

func (s *Store) GetTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cloned := cloneTransaction(tx)
	return &cloned, nil
}

func (s *Store) ListTransactions(_ context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.Transaction, 0, limit)
	for _, tx := range s.transactionsByID {
		if warehouseID != "" && tx.WarehouseID != warehouseID {
			continue
		}
		if !from.IsZero() && tx.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !tx.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) VoidTransaction(_ context.Context, id string, restockedBy string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if tx.Status != domain.TxStatusCompleted {
		return nil, store.ErrInvalidInput
	}

	// Restock each line at its COGS-derived unit cost.
	for _, item := range tx.Items {
		unitCost := item.BuyPriceTotalCents / int64(item.Qty)
		if _, err := s.createBatchLocked(domain.InventoryBatch{
			ProductID:     item.ProductID,
			WarehouseID:   tx.WarehouseID,
			QtyOriginal:   item.Qty,
			QtyRemaining:  item.Qty,
			BuyPriceCents: unitCost,
			SourceType:    domain.BatchSourceAdjustment,
			SourceID:      tx.ID,
			CreatedBy:     restockedBy,
			ReceivedAt:    at,
		}); err != nil {
			return nil, err
		}
	}

	tx.Status = domain.TxStatusVoided
	voided := cloneTransaction(tx)
	return &voided, nil
}

func (s *Store) CreateTransfer(_ context.Context, transfer domain.StockTransfer) (*domain.StockTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transfer.ProductID == "" || transfer.FromWarehouseID == "" || transfer.ToWarehouseID == "" || transfer.Qty < 1 {
		return nil, store.ErrInvalidInput
	}
	if transfer.FromWarehouseID == transfer.ToWarehouseID {
		return nil, store.ErrInvalidInput
	}
	product, exists := s.productsByID[transfer.ProductID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.warehousesByID[transfer.FromWarehouseID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.warehousesByID[transfer.ToWarehouseID]; !exists {
		return nil, store.ErrNotFound
	}

	plan, err := s.planLine(transfer.ProductID, transfer.FromWarehouseID, transfer.Qty, map[string]int{})
	if err != nil {
		if shortfall, ok := err.(*allocation.ShortfallError); ok {
			return nil, &store.InsufficientStockError{
				ProductID:   transfer.ProductID,
				ProductName: product.Name,
				Requested:   shortfall.Requested,
				Available:   shortfall.Available,
			}
		}
		return nil, err
	}

	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}

	// One destination batch per consumed source lot, preserving its cost.
	for _, a := range plan {
		s.batchesByID[a.BatchID].QtyRemaining -= a.Qty
		if _, err := s.createBatchLocked(domain.InventoryBatch{
			ProductID:     transfer.ProductID,
			WarehouseID:   transfer.ToWarehouseID,
			QtyOriginal:   a.Qty,
			QtyRemaining:  a.Qty,
			BuyPriceCents: a.BuyPriceCents,
			SourceType:    domain.BatchSourceTransfer,
			SourceID:      transfer.ID,
			CreatedBy:     transfer.CreatedBy,
			ReceivedAt:    transfer.CreatedAt,
		}); err != nil {
			return nil, err
		}
	}

	s.transferLog = append(s.transferLog, transfer)
	created := transfer
	return &created, nil
}

func (s *Store) ListTransfers(_ context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.StockTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.StockTransfer, 0, limit)
	for _, t := range s.transferLog {
		if warehouseID != "" && t.FromWarehouseID != warehouseID && t.ToWarehouseID != warehouseID {
			continue
		}
		if !from.IsZero() && t.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !t.CreatedAt.Before(to) {
			continue
		}
		result = append(result, t)
	}
	slices.Reverse(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateOpname(_ context.Context, opname domain.StockOpname) (*domain.StockOpname, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opname.ProductID == "" || opname.WarehouseID == "" || opname.CountedQty < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productsByID[opname.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.warehousesByID[opname.WarehouseID]; !exists {
		return nil, store.ErrNotFound
	}

	opname.SystemQty = s.systemStockLocked(opname.ProductID, opname.WarehouseID)
	opname.Difference = opname.CountedQty - opname.SystemQty
	if opname.ID == "" {
		opname.ID = xid.New("opn")
	}
	if opname.CreatedAt.IsZero() {
		opname.CreatedAt = time.Now().UTC()
	}

	s.opnameLog = append(s.opnameLog, opname)
	created := opname
	return &created, nil
}

func (s *Store) ListOpnames(_ context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.StockOpname, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.StockOpname, 0, limit)
	for _, o := range s.opnameLog {
		if warehouseID != "" && o.WarehouseID != warehouseID {
			continue
		}
		if !from.IsZero() && o.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !o.CreatedAt.Before(to) {
			continue
		}
		result = append(result, o)
	}
	slices.Reverse(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetDailySalesReport(_ context.Context, warehouseID string, from time.Time, to time.Time) (domain.DailySalesReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := domain.DailySalesReport{
		WarehouseID: warehouseID,
		Date:        from.UTC().Format("2006-01-02"),
	}
	perProduct := make(map[string]*domain.DailySalesProduct)
	for _, tx := range s.transactionsByID {
		if tx.Status != domain.TxStatusCompleted {
			continue
		}
		if warehouseID != "" && tx.WarehouseID != warehouseID {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		report.Transactions++
		report.RevenueCents += tx.TotalCents
		for _, item := range tx.Items {
			report.COGSCents += item.BuyPriceTotalCents
			agg, ok := perProduct[item.ProductID]
			if !ok {
				agg = &domain.DailySalesProduct{ProductID: item.ProductID, ProductName: item.ProductName}
				perProduct[item.ProductID] = agg
			}
			agg.QtySold += item.Qty
			agg.RevenueCents += int64(item.Qty) * item.SellPriceCents
		}
	}
	report.ProfitCents = report.RevenueCents - report.COGSCents

	report.TopProducts = make([]domain.DailySalesProduct, 0, len(perProduct))
	for _, agg := range perProduct {
		report.TopProducts = append(report.TopProducts, *agg)
	}
	slices.SortFunc(report.TopProducts, func(a, b domain.DailySalesProduct) int {
		if a.QtySold != b.QtySold {
			return b.QtySold - a.QtySold
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	if len(report.TopProducts) > 10 {
		report.TopProducts = report.TopProducts[:10]
	}
	return report, nil
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

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.Reverse(result)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func cloneTransaction(tx *domain.Transaction) domain.Transaction {
	cloned := *tx
	cloned.Items = make([]domain.TransactionItem, len(tx.Items))
	copy(cloned.Items, tx.Items)
	return cloned
}
