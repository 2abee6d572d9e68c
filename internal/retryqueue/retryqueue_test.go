package retryqueue

import (
	"path/filepath"
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

func TestLoadMissingFileCreatesEmptyQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_ops.json")

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestPushAndPersistSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending_ops.json")

	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	op := NewUpdateBuyerOp("wallet-1", 10, 0.1, 90)
	if err := q.PushAndPersist(op); err != nil {
		t.Fatalf("PushAndPersist() error = %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() reload error = %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("Len() after reload = %d, want 1", reloaded.Len())
	}
}

func TestFlushAppliesAndDrainsOps(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveGroup(&model.Group{ID: 1, SplPriceLamports: 1, UnlockPercentPerInterval: 1}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "wallet-1", PaidLamports: 100, GroupID: 1, PendingSplLamports: 100}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "pending_ops.json")
	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := q.PushAndPersist(NewUpdateBuyerOp("wallet-1", 50, 0.5, 50)); err != nil {
		t.Fatalf("PushAndPersist() error = %v", err)
	}
	if err := q.PushAndPersist(NewSaveTransactionOp(&model.Transaction{
		BuyerWallet:    "wallet-1",
		GroupID:        1,
		AmountLamports: 50,
		Percent:        0.5,
		Status:         model.TransactionStatusSuccess,
		SentAt:         time.Now(),
	})); err != nil {
		t.Fatalf("PushAndPersist() error = %v", err)
	}

	if err := q.Flush(s); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Len() after flush = %d, want 0", q.Len())
	}

	b, err := s.GetBuyerByWallet("wallet-1")
	if err != nil {
		t.Fatalf("GetBuyerByWallet() error = %v", err)
	}
	if b.ReceivedSplLamports != 50 {
		t.Errorf("ReceivedSplLamports = %d, want 50", b.ReceivedSplLamports)
	}
}

func TestFlushKeepsFailingOps(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "pending_ops.json")
	q, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// No matching buyer row exists, so this update must fail and be retained.
	if err := q.PushAndPersist(NewUpdateBuyerOp("missing-wallet", 1, 1, 0)); err != nil {
		t.Fatalf("PushAndPersist() error = %v", err)
	}

	if err := q.Flush(s); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len() after flush = %d, want 1 (op should be retained)", q.Len())
	}
}
