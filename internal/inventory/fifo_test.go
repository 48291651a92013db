package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(offset int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func activeBatch(id int64, number string, expiry time.Time, qty int64) Batch {
	return Batch{
		ID:          id,
		BatchNumber: number,
		ExpiryDate:  expiry,
		Quantity:    qty,
		UnitCost:    decimal.NewFromInt(100),
		Status:      BatchActive,
		ReceivedAt:  day(0),
	}
}

func TestPlanConsumptionFIFOByExpiry(t *testing.T) {
	batches := []Batch{
		activeBatch(2, "BY", day(60), 30),
		activeBatch(1, "BX", day(30), 50),
	}

	plan, err := planConsumption(batches, 60)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, "BX", plan[0].BatchNumber)
	require.Equal(t, int64(50), plan[0].Qty)
	require.Equal(t, "BY", plan[1].BatchNumber)
	require.Equal(t, int64(10), plan[1].Qty)
}

func TestPlanConsumptionTieBreaks(t *testing.T) {
	early := activeBatch(5, "B-LATE-RECEIPT", day(30), 10)
	early.ReceivedAt = day(2)
	first := activeBatch(9, "B-EARLY-RECEIPT", day(30), 10)
	first.ReceivedAt = day(1)

	plan, err := planConsumption([]Batch{early, first}, 15)
	require.NoError(t, err)
	require.Equal(t, "B-EARLY-RECEIPT", plan[0].BatchNumber)
	require.Equal(t, int64(10), plan[0].Qty)
	require.Equal(t, "B-LATE-RECEIPT", plan[1].BatchNumber)
	require.Equal(t, int64(5), plan[1].Qty)

	// Same expiry and receipt time: lower id wins.
	a := activeBatch(3, "B3", day(10), 4)
	b := activeBatch(1, "B1", day(10), 4)
	plan, err = planConsumption([]Batch{a, b}, 6)
	require.NoError(t, err)
	require.Equal(t, "B1", plan[0].BatchNumber)
	require.Equal(t, "B3", plan[1].BatchNumber)
}

func TestPlanConsumptionSkipsNonActive(t *testing.T) {
	expired := activeBatch(1, "OLD", day(-5), 100)
	expired.Status = BatchExpired
	held := activeBatch(2, "HELD", day(5), 100)
	held.Status = BatchOnHold
	ok := activeBatch(3, "OK", day(40), 20)

	plan, err := planConsumption([]Batch{expired, held, ok}, 20)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.Equal(t, "OK", plan[0].BatchNumber)

	_, err = planConsumption([]Batch{expired, held, ok}, 21)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestPlanConsumptionNoActiveInventory(t *testing.T) {
	expired := activeBatch(1, "OLD", day(-5), 100)
	expired.Status = BatchExpired

	_, err := planConsumption(nil, 1)
	require.ErrorIs(t, err, ErrNoActiveInventory)

	_, err = planConsumption([]Batch{expired}, 1)
	require.ErrorIs(t, err, ErrNoActiveInventory)
}

func TestPlanConsumptionExactTotal(t *testing.T) {
	batches := []Batch{
		activeBatch(1, "B1", day(10), 7),
		activeBatch(2, "B2", day(20), 3),
	}

	plan, err := planConsumption(batches, 10)
	require.NoError(t, err)
	var total int64
	for _, c := range plan {
		total += c.Qty
	}
	require.Equal(t, int64(10), total)

	_, err = planConsumption(batches, 11)
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = planConsumption(batches, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}
