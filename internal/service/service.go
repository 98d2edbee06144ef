package service

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gudangpos/backend/internal/cache"
	"gudangpos/backend/internal/domain"
	"gudangpos/backend/internal/store"
	"gudangpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const reportCacheTTL = 2 * time.Minute

type Service struct {
	repo    store.Repository
	reports cache.ReportCache
}

func New(repo store.Repository, reports cache.ReportCache) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	return &Service{repo: repo, reports: reports}
}

// requireRole resolves the acting user and checks membership in roles. An
// empty roles list accepts any authenticated actor.
func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, store.ErrUnauthorized
	}
	if len(roles) == 0 {
		return actor, nil
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, store.ErrUnauthorized
}

// requireWarehouse enforces warehouse scoping: superadmin touches any
// warehouse, everyone else only their assigned one. The warehouse id is
// always an explicit argument; nothing is read from ambient session state.
func requireWarehouse(actor domain.Actor, warehouseID string) error {
	if warehouseID == "" {
		return store.ErrInvalidInput
	}
	if actor.Role == domain.RoleSuperadmin {
		return nil
	}
	if actor.WarehouseID == "" || actor.WarehouseID != warehouseID {
		return store.ErrUnauthorized
	}
	return nil
}

func (s *Service) ListProducts(ctx context.Context, query string, includeInactive bool) ([]domain.Product, error) {
	if _, err := requireRole(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, query, includeInactive)
}

func (s *Service) GetProductBySKU(ctx context.Context, sku string) (domain.Product, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.Product{}, err
	}
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	_, err := requireRole(ctx, domain.RoleSuperadmin)
	if err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.SellPriceCents < 0 || req.LowStockThreshold < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:               req.SKU,
		Name:              req.Name,
		SellPriceCents:    req.SellPriceCents,
		LowStockThreshold: req.LowStockThreshold,
		Active:            true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,name=%s,price=%d", created.SKU, created.Name, created.SellPriceCents))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	_, err := requireRole(ctx, domain.RoleSuperadmin)
	if err != nil {
		return domain.Product{}, err
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.SellPriceCents != nil {
		if *req.SellPriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellPriceCents = *req.SellPriceCents
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.LowStockThreshold = *req.LowStockThreshold
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("sku=%s,active=%t,price=%d", saved.SKU, saved.Active, saved.SellPriceCents))
	return *saved, nil
}

func (s *Service) CreateWarehouse(ctx context.Context, req domain.WarehouseCreateRequest) (domain.Warehouse, error) {
	_, err := requireRole(ctx, domain.RoleSuperadmin)
	if err != nil {
		return domain.Warehouse{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Warehouse{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateWarehouse(ctx, domain.Warehouse{Name: req.Name, Active: true})
	if err != nil {
		return domain.Warehouse{}, err
	}

	s.logAudit(ctx, "warehouse_create", "warehouse", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListWarehouses(ctx context.Context) ([]domain.Warehouse, error) {
	if _, err := requireRole(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListWarehouses(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	if _, err := requireRole(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListCustomers(ctx)
}

// ReceiveStock appends one batch for (product, warehouse). Existing batches
// are never touched.
func (s *Service) ReceiveStock(ctx context.Context, req domain.ReceiveStockRequest) (domain.InventoryBatch, error) {
	actor, err := requireRole(ctx, domain.RoleSuperadmin, domain.RoleGudang)
	if err != nil {
		return domain.InventoryBatch{}, err
	}
	if err := requireWarehouse(actor, req.WarehouseID); err != nil {
		return domain.InventoryBatch{}, err
	}
	if req.ProductID == "" || req.Qty < 1 || req.BuyPriceCents < 0 {
		return domain.InventoryBatch{}, store.ErrInvalidInput
	}

	var receivedAt time.Time
	if req.ReceivedAt != "" {
		receivedAt, err = time.Parse(time.RFC3339, req.ReceivedAt)
		if err != nil {
			return domain.InventoryBatch{}, store.ErrInvalidInput
		}
		receivedAt = receivedAt.UTC()
	}

	created, err := s.repo.CreateBatch(ctx, domain.InventoryBatch{
		ProductID:     req.ProductID,
		WarehouseID:   req.WarehouseID,
		QtyOriginal:   req.Qty,
		QtyRemaining:  req.Qty,
		BuyPriceCents: req.BuyPriceCents,
		SourceType:    domain.BatchSourceReceiving,
		CreatedBy:     actor.Username,
		ReceivedAt:    receivedAt,
	})
	if err != nil {
		return domain.InventoryBatch{}, err
	}

	s.logAudit(ctx, "stock_receive", "batch", created.ID, fmt.Sprintf("product=%s,warehouse=%s,qty=%d,cost=%d", created.ProductID, created.WarehouseID, created.QtyOriginal, created.BuyPriceCents))
	s.invalidateReports(ctx, created.WarehouseID)
	return *created, nil
}

func (s *Service) ListBatches(ctx context.Context, productID string, warehouseID string, withStockOnly bool, limit int) ([]domain.InventoryBatch, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return nil, err
	}
	if warehouseID != "" {
		if err := requireWarehouse(actor, warehouseID); err != nil {
			return nil, err
		}
	} else if actor.Role != domain.RoleSuperadmin {
		warehouseID = actor.WarehouseID
	}

	return s.repo.ListBatches(ctx, store.BatchFilter{
		ProductID:     productID,
		WarehouseID:   warehouseID,
		WithStockOnly: withStockOnly,
		Limit:         limit,
	})
}

// AdjustBatch is the direct override for corrections. It bypasses FIFO on
// purpose and is restricted to superadmin; the audit trail records the
// override and its reason.
func (s *Service) AdjustBatch(ctx context.Context, batchID string, req domain.BatchAdjustRequest) (domain.InventoryBatch, error) {
	_, err := requireRole(ctx, domain.RoleSuperadmin)
	if err != nil {
		return domain.InventoryBatch{}, err
	}
	if batchID == "" || req.QtyRemaining < 0 {
		return domain.InventoryBatch{}, store.ErrInvalidInput
	}

	updated, err := s.repo.SetBatchRemaining(ctx, batchID, req.QtyRemaining)
	if err != nil {
		return domain.InventoryBatch{}, err
	}

	s.logAudit(ctx, "batch_adjust", "batch", updated.ID, fmt.Sprintf("qty_remaining=%d,reason=%s", updated.QtyRemaining, strings.TrimSpace(req.Reason)))
	s.invalidateReports(ctx, updated.WarehouseID)
	return *updated, nil
}

// Checkout records a sale: one transaction header plus items, stock deducted
// FIFO per line, all-or-nothing. A shortfall on any line surfaces as an
// InsufficientStockError naming the product and leaves every batch unchanged.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Transaction, error) {
	actor, err := requireRole(ctx, domain.RoleSuperadmin, domain.RoleKasir)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := requireWarehouse(actor, req.WarehouseID); err != nil {
		return domain.Transaction{}, err
	}
	if len(req.Lines) == 0 {
		return domain.Transaction{}, store.ErrInvalidInput
	}

	items := make([]domain.TransactionItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		if line.ProductID == "" || line.Qty < 1 || line.SellPriceCents < 0 {
			return domain.Transaction{}, store.ErrInvalidInput
		}
		items = append(items, domain.TransactionItem{
			ProductID:      line.ProductID,
			Qty:            line.Qty,
			SellPriceCents: line.SellPriceCents,
		})
	}

	created, err := s.repo.CreateCheckout(ctx, domain.Transaction{
		WarehouseID: req.WarehouseID,
		CustomerID:  strings.TrimSpace(req.CustomerID),
		CashierID:   actor.Username,
		Items:       items,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "checkout", "transaction", created.ID, fmt.Sprintf("warehouse=%s,total=%d,lines=%d", created.WarehouseID, created.TotalCents, len(created.Items)))
	s.invalidateReports(ctx, created.WarehouseID)
	return *created, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx, err := s.repo.GetTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := requireWarehouse(actor, tx.WarehouseID); err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return nil, err
	}
	if warehouseID != "" {
		if err := requireWarehouse(actor, warehouseID); err != nil {
			return nil, err
		}
	} else if actor.Role != domain.RoleSuperadmin {
		warehouseID = actor.WarehouseID
	}
	return s.repo.ListTransactions(ctx, warehouseID, from, to, limit)
}

// VoidTransaction reverses a completed sale: the header flips to voided and
// each line's quantity returns to the warehouse as an adjustment batch at
// the line's COGS-derived unit cost.
func (s *Service) VoidTransaction(ctx context.Context, id string, req domain.VoidTransactionRequest) (domain.Transaction, error) {
	actor, err := requireRole(ctx, domain.RoleSuperadmin)
	if err != nil {
		return domain.Transaction{}, err
	}
	if id == "" {
		return domain.Transaction{}, store.ErrInvalidInput
	}

	voided, err := s.repo.VoidTransaction(ctx, id, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "transaction_void", "transaction", voided.ID, "reason="+strings.TrimSpace(req.Reason))
	s.invalidateReports(ctx, voided.WarehouseID)
	return *voided, nil
}

// Transfer moves stock between warehouses. The source deduction, destination
// batch creation and the single summary log row commit together.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (domain.StockTransfer, error) {
	actor, err := requireRole(ctx, domain.RoleSuperadmin, domain.RoleGudang)
	if err != nil {
		return domain.StockTransfer{}, err
	}
	if err := requireWarehouse(actor, req.FromWarehouseID); err != nil {
		return domain.StockTransfer{}, err
	}
	if req.ProductID == "" || req.ToWarehouseID == "" || req.Qty < 1 {
		return domain.StockTransfer{}, store.ErrInvalidInput
	}
	if req.FromWarehouseID == req.ToWarehouseID {
		return domain.StockTransfer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateTransfer(ctx, domain.StockTransfer{
		ProductID:       req.ProductID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		Qty:             req.Qty,
		CreatedBy:       actor.Username,
	})
	if err != nil {
		return domain.StockTransfer{}, err
	}

	s.logAudit(ctx, "stock_transfer", "transfer", created.ID, fmt.Sprintf("product=%s,from=%s,to=%s,qty=%d", created.ProductID, created.FromWarehouseID, created.ToWarehouseID, created.Qty))
	s.invalidateReports(ctx, created.FromWarehouseID)
	s.invalidateReports(ctx, created.ToWarehouseID)
	return *created, nil
}

func (s *Service) ListTransfers(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.StockTransfer, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return nil, err
	}
	if warehouseID != "" {
		if err := requireWarehouse(actor, warehouseID); err != nil {
			return nil, err
		}
	} else if actor.Role != domain.RoleSuperadmin {
		warehouseID = actor.WarehouseID
	}
	return s.repo.ListTransfers(ctx, warehouseID, from, to, limit)
}

// RecordOpname captures a physical count against the system figure. Audit
// only: the batches are read for the snapshot and never written.
func (s *Service) RecordOpname(ctx context.Context, req domain.OpnameRequest) (domain.StockOpname, error) {
	actor, err := requireRole(ctx, domain.RoleSuperadmin, domain.RoleGudang)
	if err != nil {
		return domain.StockOpname{}, err
	}
	if err := requireWarehouse(actor, req.WarehouseID); err != nil {
		return domain.StockOpname{}, err
	}
	if req.ProductID == "" || req.CountedQty < 0 {
		return domain.StockOpname{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateOpname(ctx, domain.StockOpname{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		CountedQty:  req.CountedQty,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedBy:   actor.Username,
	})
	if err != nil {
		return domain.StockOpname{}, err
	}

	s.logAudit(ctx, "stock_opname", "opname", created.ID, fmt.Sprintf("product=%s,warehouse=%s,system=%d,counted=%d,diff=%d", created.ProductID, created.WarehouseID, created.SystemQty, created.CountedQty, created.Difference))
	return *created, nil
}

func (s *Service) ListOpnames(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.StockOpname, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return nil, err
	}
	if warehouseID != "" {
		if err := requireWarehouse(actor, warehouseID); err != nil {
			return nil, err
		}
	} else if actor.Role != domain.RoleSuperadmin {
		warehouseID = actor.WarehouseID
	}
	return s.repo.ListOpnames(ctx, warehouseID, from, to, limit)
}

func (s *Service) GetStockOnHand(ctx context.Context, warehouseID string) ([]domain.StockOnHand, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return nil, err
	}
	if warehouseID != "" {
		if err := requireWarehouse(actor, warehouseID); err != nil {
			return nil, err
		}
	} else if actor.Role != domain.RoleSuperadmin {
		warehouseID = actor.WarehouseID
	}
	return s.repo.GetStockOnHand(ctx, warehouseID)
}

func (s *Service) GetDailySalesReport(ctx context.Context, warehouseID string, day time.Time) (domain.DailySalesReport, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.DailySalesReport{}, err
	}
	if warehouseID != "" {
		if err := requireWarehouse(actor, warehouseID); err != nil {
			return domain.DailySalesReport{}, err
		}
	} else if actor.Role != domain.RoleSuperadmin {
		warehouseID = actor.WarehouseID
	}

	day = day.UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	key := cache.DailySalesKey(warehouseID, from.Format("2006-01-02"))
	if cached, found, err := s.reports.GetDailySales(ctx, key); err == nil && found {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: report cache read failed key=%s: %v", key, err)
	}

	report, err := s.repo.GetDailySalesReport(ctx, warehouseID, from, to)
	if err != nil {
		return domain.DailySalesReport{}, err
	}
	if err := s.reports.SetDailySales(ctx, key, &report, reportCacheTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed key=%s: %v", key, err)
	}
	return report, nil
}

func (s *Service) GetLowStockAlerts(ctx context.Context, warehouseID string) (domain.LowStockResponse, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.LowStockResponse{}, err
	}
	if warehouseID != "" {
		if err := requireWarehouse(actor, warehouseID); err != nil {
			return domain.LowStockResponse{}, err
		}
	} else if actor.Role != domain.RoleSuperadmin {
		warehouseID = actor.WarehouseID
	}

	key := cache.LowStockKey(warehouseID)
	if cached, found, err := s.reports.GetLowStock(ctx, key); err == nil && found {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: report cache read failed key=%s: %v", key, err)
	}

	stock, err := s.repo.GetStockOnHand(ctx, warehouseID)
	if err != nil {
		return domain.LowStockResponse{}, err
	}
	products, err := s.repo.ListProducts(ctx, "", false)
	if err != nil {
		return domain.LowStockResponse{}, err
	}
	thresholds := make(map[string]int, len(products))
	for _, p := range products {
		thresholds[p.ID] = p.LowStockThreshold
	}

	resp := domain.LowStockResponse{
		WarehouseID: warehouseID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Alerts:      make([]domain.LowStockAlert, 0, 8),
	}
	for _, row := range stock {
		threshold := thresholds[row.ProductID]
		if threshold > 0 && row.Qty <= threshold {
			resp.Alerts = append(resp.Alerts, domain.LowStockAlert{
				ProductID:   row.ProductID,
				ProductName: row.ProductName,
				SKU:         row.SKU,
				WarehouseID: row.WarehouseID,
				Qty:         row.Qty,
				Threshold:   threshold,
			})
		}
	}

	if err := s.reports.SetLowStock(ctx, key, &resp, reportCacheTTL); err != nil {
		log.Printf("[service] WARN: report cache write failed key=%s: %v", key, err)
	}
	return resp, nil
}

func (s *Service) GetIncomingStockReport(ctx context.Context, warehouseID string, from time.Time, to time.Time) (domain.IncomingStockReport, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.IncomingStockReport{}, err
	}
	if warehouseID != "" {
		if err := requireWarehouse(actor, warehouseID); err != nil {
			return domain.IncomingStockReport{}, err
		}
	} else if actor.Role != domain.RoleSuperadmin {
		warehouseID = actor.WarehouseID
	}

	batches, err := s.repo.ListBatches(ctx, store.BatchFilter{
		WarehouseID: warehouseID,
		From:        from,
		To:          to,
		Limit:       1000,
	})
	if err != nil {
		return domain.IncomingStockReport{}, err
	}

	report := domain.IncomingStockReport{From: from, To: to, Rows: make([]domain.IncomingStockRow, 0, len(batches))}
	names := make(map[string]string)
	for _, b := range batches {
		name, ok := names[b.ProductID]
		if !ok {
			product, err := s.repo.GetProductByID(ctx, b.ProductID)
			if err != nil {
				name = b.ProductID
			} else {
				name = product.Name
			}
			names[b.ProductID] = name
		}
		report.Rows = append(report.Rows, domain.IncomingStockRow{
			BatchID:       b.ID,
			ProductID:     b.ProductID,
			ProductName:   name,
			WarehouseID:   b.WarehouseID,
			Qty:           b.QtyOriginal,
			BuyPriceCents: b.BuyPriceCents,
			SourceType:    b.SourceType,
			ReceivedAt:    b.ReceivedAt,
		})
	}
	return report, nil
}

// GetMutationReport interleaves transfers and opnames into one history view,
// newest first.
func (s *Service) GetMutationReport(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) (domain.MutationReport, error) {
	transfers, err := s.ListTransfers(ctx, warehouseID, from, to, limit)
	if err != nil {
		return domain.MutationReport{}, err
	}
	opnames, err := s.ListOpnames(ctx, warehouseID, from, to, limit)
	if err != nil {
		return domain.MutationReport{}, err
	}

	rows := make([]domain.StockMutation, 0, len(transfers)+len(opnames))
	for _, t := range transfers {
		rows = append(rows, domain.StockMutation{
			Type:        domain.MutationTransfer,
			ID:          t.ID,
			ProductID:   t.ProductID,
			WarehouseID: t.FromWarehouseID,
			Qty:         t.Qty,
			Detail:      fmt.Sprintf("from=%s,to=%s", t.FromWarehouseID, t.ToWarehouseID),
			CreatedBy:   t.CreatedBy,
			CreatedAt:   t.CreatedAt,
		})
	}
	for _, o := range opnames {
		rows = append(rows, domain.StockMutation{
			Type:        domain.MutationOpname,
			ID:          o.ID,
			ProductID:   o.ProductID,
			WarehouseID: o.WarehouseID,
			Qty:         o.Difference,
			Detail:      fmt.Sprintf("system=%d,counted=%d", o.SystemQty, o.CountedQty),
			CreatedBy:   o.CreatedBy,
			CreatedAt:   o.CreatedAt,
		})
	}

	slices.SortFunc(rows, func(a, b domain.StockMutation) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return domain.MutationReport{Rows: rows}, nil
}

// GetSalesReport resolves customer names for the listing; walk-in sales show
// as "Guest".
func (s *Service) GetSalesReport(ctx context.Context, warehouseID string, from time.Time, to time.Time, limit int) ([]domain.SalesReportRow, error) {
	transactions, err := s.ListTransactions(ctx, warehouseID, from, to, limit)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	rows := make([]domain.SalesReportRow, 0, len(transactions))
	for _, tx := range transactions {
		customerName := "Guest"
		if tx.CustomerID != "" {
			name, ok := names[tx.CustomerID]
			if !ok {
				customer, err := s.repo.GetCustomerByID(ctx, tx.CustomerID)
				if err == nil {
					name = customer.Name
				} else {
					name = "Guest"
				}
				names[tx.CustomerID] = name
			}
			customerName = name
		}
		rows = append(rows, domain.SalesReportRow{
			TransactionID: tx.ID,
			WarehouseID:   tx.WarehouseID,
			CustomerName:  customerName,
			CashierID:     tx.CashierID,
			TotalCents:    tx.TotalCents,
			Status:        tx.Status,
			CreatedAt:     tx.CreatedAt,
		})
	}
	return rows, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleSuperadmin); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserView, error) {
	_, err := requireRole(ctx, domain.RoleSuperadmin)
	if err != nil {
		return domain.UserView{}, err
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 8 {
		return domain.UserView{}, store.ErrInvalidInput
	}
	switch req.Role {
	case domain.RoleSuperadmin:
		req.WarehouseID = ""
	case domain.RoleGudang, domain.RoleKasir:
		if req.WarehouseID == "" {
			return domain.UserView{}, store.ErrInvalidInput
		}
		if _, err := s.repo.GetWarehouseByID(ctx, req.WarehouseID); err != nil {
			return domain.UserView{}, err
		}
	default:
		return domain.UserView{}, store.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserView{}, err
	}

	user := domain.UserAccount{
		Username:    req.Username,
		Password:    string(hash),
		Role:        req.Role,
		WarehouseID: req.WarehouseID,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.UserView{}, err
	}

	s.logAudit(ctx, "user_create", "user", user.Username, fmt.Sprintf("role=%s,warehouse=%s", user.Role, user.WarehouseID))
	return domain.UserView{
		Username:    user.Username,
		Role:        user.Role,
		WarehouseID: user.WarehouseID,
		Active:      user.Active,
		CreatedAt:   user.CreatedAt,
	}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	if _, err := requireRole(ctx, domain.RoleSuperadmin); err != nil {
		return nil, err
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, domain.UserView{
			Username:    u.Username,
			Role:        u.Role,
			WarehouseID: u.WarehouseID,
			Active:      u.Active,
			CreatedAt:   u.CreatedAt,
		})
	}
	return views, nil
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
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

func (s *Service) invalidateReports(ctx context.Context, warehouseID string) {
	if err := s.reports.InvalidateWarehouse(ctx, warehouseID); err != nil {
		log.Printf("[service] WARN: failed to invalidate report cache warehouse=%s: %v", warehouseID, err)
	}
}
