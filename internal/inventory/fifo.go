package inventory

import "sort"

// planConsumption computes the FIFO-by-expiry deduction plan for qty units
// over the given batches. Only ACTIVE batches participate. Ordering is
// expiry ascending, ties broken by receipt time then id, so the plan never
// depends on storage result ordering. Batches are never planned below zero.
//
// Returns ErrNoActiveInventory when no ACTIVE batch exists at all, and
// ErrInsufficientStock when the ACTIVE total is less than qty; in both
// cases no partial plan is returned.
func planConsumption(batches []Batch, qty int64) ([]BatchConsumption, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	active := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.Status == BatchActive {
			active = append(active, b)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoActiveInventory
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].ExpiryDate.Equal(active[j].ExpiryDate) {
			return active[i].ExpiryDate.Before(active[j].ExpiryDate)
		}
		if !active[i].ReceivedAt.Equal(active[j].ReceivedAt) {
			return active[i].ReceivedAt.Before(active[j].ReceivedAt)
		}
		return active[i].ID < active[j].ID
	})

	var available int64
	for _, b := range active {
		available += b.Quantity
	}
	if available < qty {
		return nil, ErrInsufficientStock
	}

	remaining := qty
	plan := make([]BatchConsumption, 0, len(active))
	for _, b := range active {
		if remaining == 0 {
			break
		}
		if b.Quantity == 0 {
			continue
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		plan = append(plan, BatchConsumption{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Qty:         take,
			UnitCost:    b.UnitCost,
			ExpiryDate:  b.ExpiryDate,
			ReceivedAt:  b.ReceivedAt,
		})
		remaining -= take
	}
	return plan, nil
}
