// Package planner computes the minimum set of future schedule rows that
// bring each buyer from their current progress to 100%, and persists only
// the ones not already represented.
package planner

import (
	"fmt"
	"time"

	"github.com/klingon-exchange/splgiver/internal/model"
	"github.com/klingon-exchange/splgiver/internal/store"
	"github.com/klingon-exchange/splgiver/pkg/logging"
)

var log = logging.Default().Component("planner")

// Run plans every group's buyers. Per-buyer errors are logged and skipped so
// that one bad row never blocks the rest of the roster; it returns the
// number of schedule rows actually persisted.
func Run(s *store.Store) (int, error) {
	return run(s, time.Now)
}

func run(s *store.Store, now func() time.Time) (int, error) {
	groups, err := s.GetAllGroups()
	if err != nil {
		return 0, fmt.Errorf("planner: load groups: %w", err)
	}

	total := 0
	for _, g := range groups {
		buyers, err := s.GetBuyersByGroup(g.ID)
		if err != nil {
			return total, fmt.Errorf("planner: load buyers for group %d: %w", g.ID, err)
		}

		for _, b := range buyers {
			n, err := planBuyer(s, g, b, now)
			if err != nil {
				log.Warn("skipping buyer after planning error", "wallet", b.Wallet, "group_id", g.ID, "error", err)
				continue
			}
			total += n
		}
	}

	return total, nil
}

// planBuyer runs the per-buyer planning algorithm and persists any rows not
// already represented, identified by their percent-key.
func planBuyer(s *store.Store, g *model.Group, b *model.Buyer, now func() time.Time) (int, error) {
	buyerTotal := g.BuyerTotal(b.PaidLamports)
	if buyerTotal == 0 || b.ReceivedPercent >= 1.0 || b.ReceivedSplLamports >= buyerTotal {
		return 0, nil
	}

	existing, err := s.GetSchedulesByBuyerAndGroup(b.Wallet, g.ID)
	if err != nil {
		return 0, fmt.Errorf("load existing schedules: %w", err)
	}
	seen := make(map[int64]struct{}, len(existing))
	for _, sch := range existing {
		seen[model.PercentKey(sch.Percent)] = struct{}{}
	}

	remainingPercent := 1.0 - b.ReceivedPercent
	currentPercent := b.ReceivedPercent
	remainingLamports := buyerTotal - b.ReceivedSplLamports
	unlockTime := now()

	type tranche struct {
		at      time.Time
		amount  uint64
		percent float64
	}
	var tranches []tranche

	if b.ReceivedSplLamports == 0 {
		p := minF(g.InitialUnlockPercent, remainingPercent)
		if p > 0 {
			amount := roundU64(float64(buyerTotal) * p)
			currentPercent += p
			if _, ok := seen[model.PercentKey(currentPercent)]; !ok {
				tranches = append(tranches, tranche{at: unlockTime, amount: amount, percent: currentPercent})
			}
			remainingLamports = saturatingSub(remainingLamports, amount)
			remainingPercent -= p
		}
	}

	for remainingLamports > 0 && remainingPercent > 0 {
		unlockTime = unlockTime.Add(time.Duration(g.UnlockIntervalSeconds) * time.Second)
		p := minF(g.UnlockPercentPerInterval, remainingPercent)

		amount := roundU64(float64(buyerTotal) * p)
		isLast := remainingPercent <= g.UnlockPercentPerInterval || amount >= remainingLamports
		if isLast {
			amount = remainingLamports
		}

		currentPercent += p
		if _, ok := seen[model.PercentKey(currentPercent)]; !ok {
			tranches = append(tranches, tranche{at: unlockTime, amount: amount, percent: currentPercent})
		}

		remainingLamports = saturatingSub(remainingLamports, amount)
		remainingPercent -= p
	}

	for _, t := range tranches {
		if _, err := s.SaveSchedule(&model.Schedule{
			GroupID:        g.ID,
			BuyerWallet:    b.Wallet,
			ScheduledAt:    t.at,
			AmountLamports: t.amount,
			Percent:        t.percent,
			Status:         model.ScheduleStatusPending,
		}); err != nil {
			return 0, fmt.Errorf("save schedule at percent %.6f: %w", t.percent, err)
		}
	}

	return len(tranches), nil
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func roundU64(f float64) uint64 {
	if f < 0 {
		return 0
	}
	return uint64(f + 0.5)
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
