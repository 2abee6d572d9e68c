// Package funding implements the pre-flight guard that refuses to let the
// distributor start if what it has already promised buyers exceeds what a
// group was actually allotted.
package funding

import (
	"fmt"

	"github.com/klingon-exchange/splgiver/internal/corerr"
	"github.com/klingon-exchange/splgiver/internal/store"
)

// Check sums pending_spl_lamports across every buyer in every group and
// compares it to that group's spl_total_lamports, failing with
// corerr.ErrInsufficientFunding on the first group that is over-allotted.
// This is a startup guard, not a live invariant: buyers imported later are
// not automatically re-checked.
func Check(s *store.Store) error {
	groups, err := s.GetAllGroups()
	if err != nil {
		return fmt.Errorf("funding check: load groups: %w", err)
	}

	for _, g := range groups {
		buyers, err := s.GetBuyersByGroup(g.ID)
		if err != nil {
			return fmt.Errorf("funding check: load buyers for group %d: %w", g.ID, err)
		}

		var pending uint64
		for _, b := range buyers {
			pending += b.PendingSplLamports
		}

		if g.SplTotalLamports < pending {
			return fmt.Errorf("%w: group %d owes %d but was allotted %d", corerr.ErrInsufficientFunding, g.ID, pending, g.SplTotalLamports)
		}
	}

	return nil
}
