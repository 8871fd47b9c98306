package downgrade

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ringChildIDs(n int) []uint64 {
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = (math.MaxUint64 / uint64(n)) * uint64(i)
	}
	return ids
}

func TestHashingSelectorFIFO(t *testing.T) {
	ids := ringChildIDs(4)
	var sel HashingDowngradeSelector

	steps := []struct {
		frac float64
		want []bool
	}{
		{0.20, []bool{true, false, false, false}},
		{0.20, []bool{true, false, false, false}},
		{0.00, []bool{false, false, false, false}},
		{0.50, []bool{false, true, true, false}},
		{0.25, []bool{false, false, true, false}},
		{0.00, []bool{false, false, false, false}},
		{0.50, []bool{true, false, false, true}},
	}
	for i, step := range steps {
		sel.PickChildren(step.frac)
		assert.Equal(t, step.want, sel.LOPRIBitmap(ids), "step %d (frac = %v)", i, step.frac)
	}
}

// Raising the fraction must never upgrade a downgraded child, and
// lowering it must never downgrade a new one.
func TestHashingSelectorSticky(t *testing.T) {
	ids := ringChildIDs(64)
	var sel HashingDowngradeSelector

	prev := sel.LOPRIBitmap(ids)
	for _, frac := range []float64{0.1, 0.25, 0.40, 0.55, 0.90, 1.0} {
		sel.PickChildren(frac)
		cur := sel.LOPRIBitmap(ids)
		for i := range ids {
			if prev[i] {
				assert.True(t, cur[i], "child %d upgraded while frac grew to %v", i, frac)
			}
		}
		prev = cur
	}
	for _, frac := range []float64{0.9, 0.5, 0.2, 0.0} {
		sel.PickChildren(frac)
		cur := sel.LOPRIBitmap(ids)
		for i := range ids {
			if !prev[i] {
				assert.False(t, cur[i], "child %d downgraded while frac shrank to %v", i, frac)
			}
		}
		prev = cur
	}
}

func diffSelects(diff UnorderedIds, id uint64) bool {
	for _, r := range diff.Ranges {
		if id >= r.Lo && id <= r.Hi {
			return true
		}
	}
	for _, p := range diff.Points {
		if p == id {
			return true
		}
	}
	return false
}

// The emitted diff must exactly describe the change of the bitmap.
func TestHashingSelectorDiffMatchesBitmap(t *testing.T) {
	ids := ringChildIDs(32)
	var sel HashingDowngradeSelector

	prev := sel.LOPRIBitmap(ids)
	for _, frac := range []float64{0.3, 0.1, 0.8, 1.0, 0.45, 0.0, 0.6} {
		diff := sel.PickChildren(frac)
		cur := sel.LOPRIBitmap(ids)
		for i, id := range ids {
			switch {
			case !prev[i] && cur[i]:
				assert.True(t, diffSelects(diff.ToDowngrade, id), "frac %v: child %d missing from to_downgrade", frac, i)
			case prev[i] && !cur[i]:
				assert.True(t, diffSelects(diff.ToUpgrade, id), "frac %v: child %d missing from to_upgrade", frac, i)
			default:
				assert.False(t, diffSelects(diff.ToDowngrade, id) || diffSelects(diff.ToUpgrade, id),
					"frac %v: unchanged child %d appears in diff", frac, i)
			}
		}
		prev = cur
	}
}
