package downgrade

import "math"

// IdRange is an inclusive range of host ids.
type IdRange struct {
	Lo uint64
	Hi uint64
}

// UnorderedIds names a set of host ids as ranges plus loose points.
type UnorderedIds struct {
	Ranges []IdRange
	Points []uint64
}

// DowngradeDiff expresses a change of QoS assignment relative to the
// previous tick: flip these ids to LOPRI, flip those back to HIPRI.
type DowngradeDiff struct {
	ToDowngrade UnorderedIds
	ToUpgrade   UnorderedIds
}

// HashingDowngradeSelector places children on a ring that spans the
// host-id space and downgrades every child inside a contiguous arc
// whose length is proportional to the downgrade fraction.
//
// The arc end advances when the fraction grows and the arc start
// advances when it shrinks, so downgrades are sticky: raising the
// fraction only adds to the LOPRI set, lowering it upgrades the
// longest-downgraded children first.
//
// The zero value is an empty arc (nothing downgraded).
type HashingDowngradeSelector struct {
	start uint64
	width uint64
	// complete records that the arc covers the whole ring, which a
	// uint64 width cannot represent exactly.
	complete bool
}

func ringWidth(frac float64) (uint64, bool) {
	if frac >= 1 {
		return math.MaxUint64, true
	}
	if frac <= 0 {
		return 0, false
	}
	return uint64(frac * float64(math.MaxUint64)), false
}

// IsLOPRI reports whether the child with the given id currently falls
// inside the downgraded arc.
func (s *HashingDowngradeSelector) IsLOPRI(id uint64) bool {
	if s.complete {
		return true
	}
	return id-s.start < s.width
}

func appendWrappedRange(ranges []IdRange, lo, hi uint64) []IdRange {
	if lo <= hi {
		return append(ranges, IdRange{Lo: lo, Hi: hi})
	}
	return append(ranges, IdRange{Lo: lo, Hi: math.MaxUint64}, IdRange{Lo: 0, Hi: hi})
}

// PickChildren moves the arc to cover wantFracLOPRI of the ring and
// returns the ids whose assignment flipped. All arithmetic is modular,
// so ranges that cross the top of the id space split in two.
func (s *HashingDowngradeSelector) PickChildren(wantFracLOPRI float64) DowngradeDiff {
	newWidth, newComplete := ringWidth(wantFracLOPRI)

	var diff DowngradeDiff
	switch {
	case newComplete && !s.complete:
		// Grow to the full ring: downgrade everything outside the arc.
		diff.ToDowngrade.Ranges = appendWrappedRange(nil, s.start+s.width, s.start-1)
	case s.complete && !newComplete:
		// Shrink from the full ring: the arc start moves so that the
		// children downgraded longest ago are upgraded first.
		newStart := s.start - newWidth
		diff.ToUpgrade.Ranges = appendWrappedRange(nil, s.start, newStart-1)
		s.start = newStart
	case newWidth > s.width:
		diff.ToDowngrade.Ranges = appendWrappedRange(nil, s.start+s.width, s.start+newWidth-1)
	case newWidth < s.width:
		newStart := s.start + (s.width - newWidth)
		diff.ToUpgrade.Ranges = appendWrappedRange(nil, s.start, newStart-1)
		s.start = newStart
	}
	s.width = newWidth
	s.complete = newComplete
	return diff
}

// LOPRIBitmap evaluates the current arc against each child id.
func (s *HashingDowngradeSelector) LOPRIBitmap(childIDs []uint64) []bool {
	lopri := make([]bool, len(childIDs))
	for i, id := range childIDs {
		lopri[i] = s.IsLOPRI(id)
	}
	return lopri
}
