package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gudangpos/backend/internal/domain"
	"gudangpos/backend/internal/store"
	"gudangpos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil)
}

func superCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleSuperadmin})
}

func gudangCtx(warehouseID string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "gudang", Role: domain.RoleGudang, WarehouseID: warehouseID})
}

func kasirCtx(warehouseID string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "kasir", Role: domain.RoleKasir, WarehouseID: warehouseID})
}

// newProductWithBatches creates a fresh product and receives the given
// (qty, unitCost) batches into warehouseID, oldest first.
func newProductWithBatches(t *testing.T, svc *Service, sku string, warehouseID string, batches ...[2]int64) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(superCtx(), domain.ProductCreateRequest{
		SKU:            sku,
		Name:           "Test " + sku,
		SellPriceCents: 5000,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	base := time.Now().UTC().Add(-time.Duration(len(batches)) * time.Hour)
	for i, b := range batches {
		_, err := svc.ReceiveStock(superCtx(), domain.ReceiveStockRequest{
			ProductID:     product.ID,
			WarehouseID:   warehouseID,
			Qty:           int(b[0]),
			BuyPriceCents: b[1],
			ReceivedAt:    base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
		})
		if err != nil {
			t.Fatalf("receive batch %d: %v", i, err)
		}
	}
	return product
}

func stockFor(t *testing.T, svc *Service, ctx context.Context, warehouseID string, productID string) int {
	t.Helper()
	rows, err := svc.GetStockOnHand(ctx, warehouseID)
	if err != nil {
		t.Fatalf("stock on hand: %v", err)
	}
	for _, row := range rows {
		if row.ProductID == productID {
			return row.Qty
		}
	}
	return 0
}

func TestReceiveStockCreatesBatch(t *testing.T) {
	svc := newTestService()

	batch, err := svc.ReceiveStock(gudangCtx("wh-pusat"), domain.ReceiveStockRequest{
		ProductID:     "prod-mie",
		WarehouseID:   "wh-pusat",
		Qty:           30,
		BuyPriceCents: 2100,
	})
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if batch.QtyRemaining != 30 || batch.QtyOriginal != 30 {
		t.Fatalf("expected qty 30/30, got %d/%d", batch.QtyRemaining, batch.QtyOriginal)
	}
	if batch.SourceType != domain.BatchSourceReceiving {
		t.Fatalf("expected receiving source, got %s", batch.SourceType)
	}
	if batch.CreatedBy != "gudang" {
		t.Fatalf("expected created_by gudang, got %s", batch.CreatedBy)
	}
}

func TestReceiveStockRejectsForeignWarehouse(t *testing.T) {
	svc := newTestService()

	_, err := svc.ReceiveStock(gudangCtx("wh-pusat"), domain.ReceiveStockRequest{
		ProductID:     "prod-mie",
		WarehouseID:   "wh-cabang",
		Qty:           10,
		BuyPriceCents: 2100,
	})
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCheckoutConsumesOldestBatchFirst(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-FIFO-01", "wh-pusat", [2]int64{5, 100}, [2]int64{5, 200})

	tx, err := svc.Checkout(kasirCtx("wh-pusat"), domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines: []domain.CheckoutLine{
			{ProductID: product.ID, Qty: 7, SellPriceCents: 5000},
		},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if len(tx.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(tx.Items))
	}
	// 5 units at 100 from the old batch, 2 at 200 from the new one.
	if got := tx.Items[0].BuyPriceTotalCents; got != 900 {
		t.Fatalf("expected COGS 900, got %d", got)
	}
	if tx.TotalCents != 7*5000 {
		t.Fatalf("expected total %d, got %d", 7*5000, tx.TotalCents)
	}
	if left := stockFor(t, svc, superCtx(), "wh-pusat", product.ID); left != 3 {
		t.Fatalf("expected 3 left, got %d", left)
	}
}

func TestCheckoutExactBoundary(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-EDGE-01", "wh-pusat", [2]int64{4, 150})

	_, err := svc.Checkout(kasirCtx("wh-pusat"), domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines:       []domain.CheckoutLine{{ProductID: product.ID, Qty: 4, SellPriceCents: 5000}},
	})
	if err != nil {
		t.Fatalf("exact-stock checkout should succeed: %v", err)
	}
	if left := stockFor(t, svc, superCtx(), "wh-pusat", product.ID); left != 0 {
		t.Fatalf("expected 0 left, got %d", left)
	}

	_, err = svc.Checkout(kasirCtx("wh-pusat"), domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines:       []domain.CheckoutLine{{ProductID: product.ID, Qty: 1, SellPriceCents: 5000}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestCheckoutRollsBackAllLinesOnShortfall(t *testing.T) {
	svc := newTestService()
	plenty := newProductWithBatches(t, svc, "SKU-FULL-01", "wh-pusat", [2]int64{10, 100})
	scarce := newProductWithBatches(t, svc, "SKU-LOW-01", "wh-pusat", [2]int64{2, 100})

	_, err := svc.Checkout(kasirCtx("wh-pusat"), domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines: []domain.CheckoutLine{
			{ProductID: plenty.ID, Qty: 5, SellPriceCents: 5000},
			{ProductID: scarce.ID, Qty: 5, SellPriceCents: 5000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var shortfall *store.InsufficientStockError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected typed shortfall error, got %T", err)
	}
	if shortfall.Requested != 5 || shortfall.Available != 2 {
		t.Fatalf("expected requested=5 available=2, got %+v", shortfall)
	}

	if left := stockFor(t, svc, superCtx(), "wh-pusat", plenty.ID); left != 10 {
		t.Fatalf("first line must be untouched after rollback, got %d", left)
	}
	if left := stockFor(t, svc, superCtx(), "wh-pusat", scarce.ID); left != 2 {
		t.Fatalf("second line must be untouched after rollback, got %d", left)
	}
}

func TestCheckoutSameProductOnTwoLines(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-DUP-01", "wh-pusat", [2]int64{6, 100})

	// 4 + 3 exceeds the 6 on hand even though each line alone fits.
	_, err := svc.Checkout(kasirCtx("wh-pusat"), domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines: []domain.CheckoutLine{
			{ProductID: product.ID, Qty: 4, SellPriceCents: 5000},
			{ProductID: product.ID, Qty: 3, SellPriceCents: 5000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if left := stockFor(t, svc, superCtx(), "wh-pusat", product.ID); left != 6 {
		t.Fatalf("stock must be untouched, got %d", left)
	}
}

func TestCheckoutRequiresCashierRole(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(gudangCtx("wh-pusat"), domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines:       []domain.CheckoutLine{{ProductID: "prod-mie", Qty: 1, SellPriceCents: 3500}},
	})
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for gudang checkout, got %v", err)
	}
}

func TestTransferPreservesUnitCost(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-MOVE-01", "wh-pusat", [2]int64{5, 100}, [2]int64{5, 250})

	transfer, err := svc.Transfer(superCtx(), domain.TransferRequest{
		ProductID:       product.ID,
		FromWarehouseID: "wh-pusat",
		ToWarehouseID:   "wh-cabang",
		Qty:             7,
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if transfer.Qty != 7 {
		t.Fatalf("expected qty 7, got %d", transfer.Qty)
	}

	if left := stockFor(t, svc, superCtx(), "wh-pusat", product.ID); left != 3 {
		t.Fatalf("expected 3 left at source, got %d", left)
	}
	if got := stockFor(t, svc, superCtx(), "wh-cabang", product.ID); got != 7 {
		t.Fatalf("expected 7 at destination, got %d", got)
	}

	// One destination batch per consumed source lot, each at the lot's cost.
	batches, err := svc.ListBatches(superCtx(), product.ID, "wh-cabang", true, 0)
	if err != nil {
		t.Fatalf("list destination batches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 destination batches, got %d", len(batches))
	}
	costQty := map[int64]int{}
	for _, b := range batches {
		if b.SourceType != domain.BatchSourceTransfer {
			t.Fatalf("expected transfer source, got %s", b.SourceType)
		}
		costQty[b.BuyPriceCents] += b.QtyRemaining
	}
	if costQty[100] != 5 || costQty[250] != 2 {
		t.Fatalf("expected 5@100 and 2@250, got %v", costQty)
	}
}

func TestTransferRejectsSameWarehouse(t *testing.T) {
	svc := newTestService()

	_, err := svc.Transfer(superCtx(), domain.TransferRequest{
		ProductID:       "prod-mie",
		FromWarehouseID: "wh-pusat",
		ToWarehouseID:   "wh-pusat",
		Qty:             5,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestTransferShortfallLeavesSourceUntouched(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-SHORT-01", "wh-pusat", [2]int64{3, 100})

	_, err := svc.Transfer(superCtx(), domain.TransferRequest{
		ProductID:       product.ID,
		FromWarehouseID: "wh-pusat",
		ToWarehouseID:   "wh-cabang",
		Qty:             10,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if left := stockFor(t, svc, superCtx(), "wh-pusat", product.ID); left != 3 {
		t.Fatalf("source must be untouched, got %d", left)
	}
	if got := stockFor(t, svc, superCtx(), "wh-cabang", product.ID); got != 0 {
		t.Fatalf("destination must be untouched, got %d", got)
	}
}

func TestOpnameSnapshotsWithoutMutation(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-COUNT-01", "wh-pusat", [2]int64{10, 100})

	opname, err := svc.RecordOpname(gudangCtx("wh-pusat"), domain.OpnameRequest{
		WarehouseID: "wh-pusat",
		ProductID:   product.ID,
		CountedQty:  7,
		Notes:       "broken packaging",
	})
	if err != nil {
		t.Fatalf("opname failed: %v", err)
	}
	if opname.SystemQty != 10 || opname.Difference != -3 {
		t.Fatalf("expected system=10 diff=-3, got system=%d diff=%d", opname.SystemQty, opname.Difference)
	}

	// Batches are never written by an opname; a second count sees the same figure.
	if left := stockFor(t, svc, superCtx(), "wh-pusat", product.ID); left != 10 {
		t.Fatalf("opname must not change stock, got %d", left)
	}
	second, err := svc.RecordOpname(gudangCtx("wh-pusat"), domain.OpnameRequest{
		WarehouseID: "wh-pusat",
		ProductID:   product.ID,
		CountedQty:  7,
	})
	if err != nil {
		t.Fatalf("second opname failed: %v", err)
	}
	if second.SystemQty != 10 {
		t.Fatalf("expected system qty still 10, got %d", second.SystemQty)
	}
}

func TestVoidRestoresStockAtCost(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-VOID-01", "wh-pusat", [2]int64{10, 100})

	tx, err := svc.Checkout(kasirCtx("wh-pusat"), domain.CheckoutRequest{
		WarehouseID: "wh-pusat",
		Lines:       []domain.CheckoutLine{{ProductID: product.ID, Qty: 3, SellPriceCents: 5000}},
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if left := stockFor(t, svc, superCtx(), "wh-pusat", product.ID); left != 7 {
		t.Fatalf("expected 7 left after checkout, got %d", left)
	}

	voided, err := svc.VoidTransaction(superCtx(), tx.ID, domain.VoidTransactionRequest{Reason: "customer returned"})
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if voided.Status != domain.TxStatusVoided {
		t.Fatalf("expected voided status, got %s", voided.Status)
	}
	if left := stockFor(t, svc, superCtx(), "wh-pusat", product.ID); left != 10 {
		t.Fatalf("expected stock restored to 10, got %d", left)
	}

	batches, err := svc.ListBatches(superCtx(), product.ID, "wh-pusat", true, 0)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	var adjustment *domain.InventoryBatch
	for i := range batches {
		if batches[i].SourceType == domain.BatchSourceAdjustment {
			adjustment = &batches[i]
		}
	}
	if adjustment == nil {
		t.Fatalf("expected an adjustment batch after void")
	}
	if adjustment.QtyRemaining != 3 || adjustment.BuyPriceCents != 100 {
		t.Fatalf("expected restock 3@100, got %d@%d", adjustment.QtyRemaining, adjustment.BuyPriceCents)
	}

	if _, err := svc.VoidTransaction(superCtx(), tx.ID, domain.VoidTransactionRequest{}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("double void must fail with invalid input, got %v", err)
	}
}

func TestConcurrentCheckoutsOnlyOneWins(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-RACE-01", "wh-pusat", [2]int64{5, 100})

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(kasirCtx("wh-pusat"), domain.CheckoutRequest{
				WarehouseID: "wh-pusat",
				Lines:       []domain.CheckoutLine{{ProductID: product.ID, Qty: 4, SellPriceCents: 5000}},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, short int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	if ok != 1 || short != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d short=%d", ok, short)
	}
	if left := stockFor(t, svc, superCtx(), "wh-pusat", product.ID); left != 1 {
		t.Fatalf("expected 1 left, got %d", left)
	}
}

func TestWarehouseScopingOnReports(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GetDailySalesReport(kasirCtx("wh-pusat"), "wh-cabang", time.Now()); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for foreign warehouse report, got %v", err)
	}

	// Empty warehouse falls back to the actor's own scope for non-superadmins.
	report, err := svc.GetDailySalesReport(kasirCtx("wh-pusat"), "", time.Now())
	if err != nil {
		t.Fatalf("own-warehouse report failed: %v", err)
	}
	if report.WarehouseID != "wh-pusat" {
		t.Fatalf("expected report scoped to wh-pusat, got %q", report.WarehouseID)
	}
}

func TestLowStockAlerts(t *testing.T) {
	svc := newTestService()
	product, err := svc.CreateProduct(superCtx(), domain.ProductCreateRequest{
		SKU:               "SKU-ALERT-01",
		Name:              "Alert Item",
		SellPriceCents:    5000,
		LowStockThreshold: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := svc.ReceiveStock(superCtx(), domain.ReceiveStockRequest{
		ProductID: product.ID, WarehouseID: "wh-pusat", Qty: 5, BuyPriceCents: 100,
	}); err != nil {
		t.Fatalf("receive: %v", err)
	}

	resp, err := svc.GetLowStockAlerts(superCtx(), "wh-pusat")
	if err != nil {
		t.Fatalf("low stock alerts: %v", err)
	}
	found := false
	for _, alert := range resp.Alerts {
		if alert.ProductID == product.ID {
			found = true
			if alert.Qty != 5 || alert.Threshold != 10 {
				t.Fatalf("expected qty=5 threshold=10, got %+v", alert)
			}
		}
	}
	if !found {
		t.Fatalf("expected low stock alert for %s", product.ID)
	}
}

func TestMutationReportInterleavesNewestFirst(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-HIST-01", "wh-pusat", [2]int64{20, 100})

	if _, err := svc.Transfer(superCtx(), domain.TransferRequest{
		ProductID: product.ID, FromWarehouseID: "wh-pusat", ToWarehouseID: "wh-cabang", Qty: 5,
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := svc.RecordOpname(superCtx(), domain.OpnameRequest{
		WarehouseID: "wh-pusat", ProductID: product.ID, CountedQty: 15,
	}); err != nil {
		t.Fatalf("opname: %v", err)
	}

	report, err := svc.GetMutationReport(superCtx(), "wh-pusat", time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("mutation report: %v", err)
	}
	var rows []domain.StockMutation
	for _, row := range report.Rows {
		if row.ProductID == product.ID {
			rows = append(rows, row)
		}
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 mutation rows, got %d", len(rows))
	}
	if rows[0].Type != domain.MutationOpname || rows[1].Type != domain.MutationTransfer {
		t.Fatalf("expected opname first (newest), got %s then %s", rows[0].Type, rows[1].Type)
	}
}

func TestAdjustBatchIsSuperadminOnly(t *testing.T) {
	svc := newTestService()
	product := newProductWithBatches(t, svc, "SKU-ADJ-01", "wh-pusat", [2]int64{10, 100})

	batches, err := svc.ListBatches(superCtx(), product.ID, "wh-pusat", true, 0)
	if err != nil || len(batches) != 1 {
		t.Fatalf("list batches: %v (%d)", err, len(batches))
	}

	if _, err := svc.AdjustBatch(gudangCtx("wh-pusat"), batches[0].ID, domain.BatchAdjustRequest{QtyRemaining: 4}); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for gudang adjust, got %v", err)
	}

	adjusted, err := svc.AdjustBatch(superCtx(), batches[0].ID, domain.BatchAdjustRequest{QtyRemaining: 4, Reason: "damage write-off"})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if adjusted.QtyRemaining != 4 {
		t.Fatalf("expected remaining 4, got %d", adjusted.QtyRemaining)
	}
}

func TestCreateUserValidatesRoleAndWarehouse(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateUser(superCtx(), domain.UserCreateRequest{
		Username: "kasir2", Password: "rahasia-kuat", Role: domain.RoleKasir,
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("kasir without warehouse must fail, got %v", err)
	}

	if _, err := svc.CreateUser(superCtx(), domain.UserCreateRequest{
		Username: "kasir2", Password: "rahasia-kuat", Role: domain.RoleKasir, WarehouseID: "wh-missing",
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown warehouse must fail, got %v", err)
	}

	user, err := svc.CreateUser(superCtx(), domain.UserCreateRequest{
		Username: "admin2", Password: "rahasia-kuat", Role: domain.RoleSuperadmin, WarehouseID: "wh-pusat",
	})
	if err != nil {
		t.Fatalf("create superadmin: %v", err)
	}
	if user.WarehouseID != "" {
		t.Fatalf("superadmin must not carry a warehouse, got %q", user.WarehouseID)
	}

	if _, err := svc.CreateUser(gudangCtx("wh-pusat"), domain.UserCreateRequest{
		Username: "kasir3", Password: "rahasia-kuat", Role: domain.RoleKasir, WarehouseID: "wh-pusat",
	}); !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("non-superadmin user creation must fail, got %v", err)
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	svc := newTestService()
	newProductWithBatches(t, svc, "SKU-AUDIT-01", "wh-pusat", [2]int64{5, 100})

	logs, err := svc.ListAuditLogs(superCtx(), time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	actions := map[string]bool{}
	for _, entry := range logs {
		actions[entry.Action] = true
	}
	if !actions["product_create"] || !actions["stock_receive"] {
		t.Fatalf("expected product_create and stock_receive audit entries, got %v", actions)
	}
}
