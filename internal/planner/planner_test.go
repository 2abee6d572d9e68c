package planner

import (
	"testing"
	"time"

	"github.com/klingon-exchange/splgiver/internal/model"
	"github.com/klingon-exchange/splgiver/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(&store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestPlanSingleBuyerInitialUnlockOnly(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if _, err := s.SaveGroup(&model.Group{
		ID: 1, SplPriceLamports: 1,
		InitialUnlockPercent: 1.0, UnlockPercentPerInterval: 1.0, UnlockIntervalSeconds: 60,
	}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "w1", GroupID: 1, PaidLamports: 100}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}

	n, err := run(s, fixedNow(now))
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("planned %d rows, want 1", n)
	}

	rows, err := s.GetSchedulesByBuyerAndGroup("w1", 1)
	if err != nil {
		t.Fatalf("GetSchedulesByBuyerAndGroup() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].AmountLamports != 100 {
		t.Errorf("amount = %d, want 100", rows[0].AmountLamports)
	}
	if diff := rows[0].Percent - 1.0; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("percent = %f, want ~1.0", rows[0].Percent)
	}
}

func TestPlanPartialVesting(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if _, err := s.SaveGroup(&model.Group{
		ID: 1, SplPriceLamports: 1,
		InitialUnlockPercent: 0.5, UnlockPercentPerInterval: 0.25, UnlockIntervalSeconds: 3600,
	}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "w1", GroupID: 1, PaidLamports: 100}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}

	n, err := run(s, fixedNow(now))
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("planned %d rows, want 3", n)
	}

	rows, err := s.GetSchedulesByBuyerAndGroup("w1", 1)
	if err != nil {
		t.Fatalf("GetSchedulesByBuyerAndGroup() error = %v", err)
	}
	wantAmounts := []uint64{50, 25, 25}
	wantPercents := []float64{0.5, 0.75, 1.0}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	var total uint64
	for i, row := range rows {
		total += row.AmountLamports
		if row.AmountLamports != wantAmounts[i] {
			t.Errorf("rows[%d].AmountLamports = %d, want %d", i, row.AmountLamports, wantAmounts[i])
		}
		if diff := row.Percent - wantPercents[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("rows[%d].Percent = %f, want %f", i, row.Percent, wantPercents[i])
		}
	}
	if total != 100 {
		t.Errorf("total amount = %d, want 100 (last-tranche exactness)", total)
	}
}

func TestPlanRoundingDust(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if _, err := s.SaveGroup(&model.Group{
		ID: 1, SplPriceLamports: 1,
		InitialUnlockPercent: 0.3, UnlockPercentPerInterval: 0.3, UnlockIntervalSeconds: 60,
	}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "w1", GroupID: 1, PaidLamports: 100}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}

	if _, err := run(s, fixedNow(now)); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	rows, err := s.GetSchedulesByBuyerAndGroup("w1", 1)
	if err != nil {
		t.Fatalf("GetSchedulesByBuyerAndGroup() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("len(rows) = %d, want 4", len(rows))
	}

	wantAmounts := []uint64{30, 30, 30, 10}
	var total uint64
	for i, row := range rows {
		total += row.AmountLamports
		if row.AmountLamports != wantAmounts[i] {
			t.Errorf("rows[%d].AmountLamports = %d, want %d", i, row.AmountLamports, wantAmounts[i])
		}
	}
	if total != 100 {
		t.Errorf("total amount = %d, want 100", total)
	}
	if diff := rows[3].Percent - 1.0; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("final percent = %f, want 1.0", rows[3].Percent)
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	if _, err := s.SaveGroup(&model.Group{
		ID: 1, SplPriceLamports: 1,
		InitialUnlockPercent: 0.5, UnlockPercentPerInterval: 0.25, UnlockIntervalSeconds: 3600,
	}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "w1", GroupID: 1, PaidLamports: 100}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}

	if _, err := run(s, fixedNow(now)); err != nil {
		t.Fatalf("first run() error = %v", err)
	}
	n, err := run(s, fixedNow(now))
	if err != nil {
		t.Fatalf("second run() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second run planned %d new rows, want 0", n)
	}

	rows, err := s.GetSchedulesByBuyerAndGroup("w1", 1)
	if err != nil {
		t.Fatalf("GetSchedulesByBuyerAndGroup() error = %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("len(rows) = %d, want 3 (no duplicates)", len(rows))
	}
}

func TestPlanSkipsFullyReceivedBuyer(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveGroup(&model.Group{ID: 1, SplPriceLamports: 1, UnlockPercentPerInterval: 1}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "w1", GroupID: 1, PaidLamports: 100, ReceivedPercent: 1.0, ReceivedSplLamports: 100}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}

	n, err := Run(s)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 0 {
		t.Errorf("planned %d rows for fully-received buyer, want 0", n)
	}
}
