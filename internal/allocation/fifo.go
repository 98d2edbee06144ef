// Package allocation plans FIFO consumption across inventory batches. The
// planner is pure: it never mutates the batches it is given. Callers apply
// the returned plan inside their own atomic unit (database transaction or
// store mutex) so a failed operation leaves no partial decrements.
package allocation

import (
	"fmt"
	"sort"

	"gudangpos/backend/internal/domain"
)

// Allocation is one slice of a plan: take Qty units from BatchID at that
// batch's immutable unit cost.
type Allocation struct {
	BatchID       string
	Qty           int
	BuyPriceCents int64
}

// ShortfallError reports that the available quantity cannot cover the
// request. Available is the sum of remaining quantity across all candidate
// batches at planning time.
type ShortfallError struct {
	Requested int
	Available int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, available %d", e.Requested, e.Available)
}

// Plan walks batches oldest-received-first and returns the consumption plan
// for qty units. Ties on ReceivedAt break on batch id, so the order is stable
// regardless of input order. The availability check happens before any slice
// of the plan is produced: on shortfall the returned plan is nil.
func Plan(batches []domain.InventoryBatch, qty int) ([]Allocation, error) {
	if qty < 1 {
		return nil, fmt.Errorf("allocation qty must be positive, got %d", qty)
	}

	ordered := make([]domain.InventoryBatch, 0, len(batches))
	available := 0
	for _, b := range batches {
		if b.QtyRemaining <= 0 {
			continue
		}
		ordered = append(ordered, b)
		available += b.QtyRemaining
	}
	if available < qty {
		return nil, &ShortfallError{Requested: qty, Available: available}
	}

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ReceivedAt.Equal(ordered[j].ReceivedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].ReceivedAt.Before(ordered[j].ReceivedAt)
	})

	plan := make([]Allocation, 0, 2)
	remaining := qty
	for _, b := range ordered {
		if remaining == 0 {
			break
		}
		take := b.QtyRemaining
		if take > remaining {
			take = remaining
		}
		plan = append(plan, Allocation{BatchID: b.ID, Qty: take, BuyPriceCents: b.BuyPriceCents})
		remaining -= take
	}
	return plan, nil
}

// CostCents returns the total cost basis of a plan.
func CostCents(plan []Allocation) int64 {
	var total int64
	for _, a := range plan {
		total += int64(a.Qty) * a.BuyPriceCents
	}
	return total
}
