package allocation

import (
	"errors"
	"testing"
	"time"

	"gudangpos/backend/internal/domain"
)

func batch(id string, received time.Time, remaining int, costCents int64) domain.InventoryBatch {
	return domain.InventoryBatch{
		ID:            id,
		ProductID:     "prod-1",
		WarehouseID:   "wh-1",
		QtyOriginal:   remaining,
		QtyRemaining:  remaining,
		BuyPriceCents: costCents,
		ReceivedAt:    received,
	}
}

func TestPlanConsumesOldestFirst(t *testing.T) {
	t1 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(48 * time.Hour)
	batches := []domain.InventoryBatch{
		batch("b2", t2, 5, 1200),
		batch("b1", t1, 5, 1000),
	}

	plan, err := Plan(batches, 7)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(plan))
	}
	if plan[0].BatchID != "b1" || plan[0].Qty != 5 {
		t.Fatalf("expected 5 units from b1 first, got %+v", plan[0])
	}
	if plan[1].BatchID != "b2" || plan[1].Qty != 2 {
		t.Fatalf("expected 2 units from b2, got %+v", plan[1])
	}
	if got := CostCents(plan); got != 5*1000+2*1200 {
		t.Fatalf("cost basis mismatch: got %d", got)
	}
}

func TestPlanTieBreaksOnID(t *testing.T) {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	batches := []domain.InventoryBatch{
		batch("batch-b", at, 3, 900),
		batch("batch-a", at, 3, 800),
	}

	plan, err := Plan(batches, 4)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan[0].BatchID != "batch-a" || plan[0].Qty != 3 {
		t.Fatalf("tie must resolve by id, got %+v", plan[0])
	}
	if plan[1].BatchID != "batch-b" || plan[1].Qty != 1 {
		t.Fatalf("expected 1 unit from batch-b, got %+v", plan[1])
	}
}

func TestPlanExactBoundary(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.InventoryBatch{
		batch("b1", t1, 4, 500),
		batch("b2", t1.Add(time.Hour), 6, 700),
	}

	plan, err := Plan(batches, 10)
	if err != nil {
		t.Fatalf("exact-availability request must succeed: %v", err)
	}
	total := 0
	for _, a := range plan {
		total += a.Qty
	}
	if total != 10 {
		t.Fatalf("plan covers %d of 10", total)
	}

	if _, err := Plan(batches, 11); err == nil {
		t.Fatal("available+1 must fail")
	}
}

func TestPlanShortfallReportsAvailable(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.InventoryBatch{
		batch("b1", t1, 2, 500),
		{ID: "b-empty", QtyRemaining: 0, BuyPriceCents: 100, ReceivedAt: t1},
	}

	_, err := Plan(batches, 5)
	var shortfall *ShortfallError
	if !errors.As(err, &shortfall) {
		t.Fatalf("expected ShortfallError, got %v", err)
	}
	if shortfall.Available != 2 || shortfall.Requested != 5 {
		t.Fatalf("unexpected shortfall figures: %+v", shortfall)
	}
}

func TestPlanSkipsEmptyBatches(t *testing.T) {
	t1 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	empty := batch("b0", t1, 0, 100)
	empty.QtyRemaining = 0
	batches := []domain.InventoryBatch{
		empty,
		batch("b1", t1.Add(time.Hour), 5, 300),
	}

	plan, err := Plan(batches, 3)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 1 || plan[0].BatchID != "b1" {
		t.Fatalf("empty batches must be skipped, got %+v", plan)
	}
}

func TestPlanRejectsNonPositiveQty(t *testing.T) {
	if _, err := Plan(nil, 0); err == nil {
		t.Fatal("qty 0 must be rejected")
	}
	if _, err := Plan(nil, -3); err == nil {
		t.Fatal("negative qty must be rejected")
	}
}

func TestPlanDoesNotMutateInput(t *testing.T) {
	t1 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.InventoryBatch{batch("b1", t1, 5, 100)}

	if _, err := Plan(batches, 3); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if batches[0].QtyRemaining != 5 {
		t.Fatalf("planner mutated input batch: %+v", batches[0])
	}
}
