package funding

import (
	"errors"
	"testing"

	"github.com/klingon-exchange/splgiver/internal/corerr"
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

func TestCheckPassesWithinAllotment(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveGroup(&model.Group{ID: 1, SplTotalLamports: 1000, SplPriceLamports: 1, UnlockPercentPerInterval: 1}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "wallet-1", GroupID: 1, PendingSplLamports: 900}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}

	if err := Check(s); err != nil {
		t.Errorf("Check() error = %v, want nil", err)
	}
}

func TestCheckFailsWhenOverAllotted(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveGroup(&model.Group{ID: 1, SplTotalLamports: 100, SplPriceLamports: 1, UnlockPercentPerInterval: 1}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "wallet-1", GroupID: 1, PendingSplLamports: 60}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "wallet-2", GroupID: 1, PendingSplLamports: 60}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}

	err := Check(s)
	if err == nil {
		t.Fatal("Check() error = nil, want insufficient funding")
	}
	if !errors.Is(err, corerr.ErrInsufficientFunding) {
		t.Errorf("Check() error = %v, want wrapping ErrInsufficientFunding", err)
	}
}
