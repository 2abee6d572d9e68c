package api

import (
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klingon-exchange/splgiver/internal/chain"
	"github.com/klingon-exchange/splgiver/internal/model"
	"github.com/klingon-exchange/splgiver/internal/retryqueue"
	"github.com/klingon-exchange/splgiver/internal/runner"
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

func newTestKeypair(t *testing.T) *chain.Keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	kp := &chain.Keypair{Private: priv}
	copy(kp.Public[:], pub)
	return kp
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	funding := newTestKeypair(t)
	mint := newTestKeypair(t)
	queue, err := retryqueue.Load(t.TempDir() + "/pending_ops.json")
	if err != nil {
		t.Fatalf("retryqueue.Load() error = %v", err)
	}

	gw := chain.NewMockGateway(9)
	r := runner.New(s, gw, queue, funding, mint.Public, 9, runner.DefaultConfig())
	return New(s, r), s
}

func TestHandleListSchedulesDefaultsToPending(t *testing.T) {
	srv, s := newTestServer(t)
	if _, err := s.SaveGroup(&model.Group{ID: 1, SplPriceLamports: 1, UnlockPercentPerInterval: 1}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}
	if _, err := s.SaveBuyer(&model.Buyer{Wallet: "w1", GroupID: 1, PaidLamports: 100}); err != nil {
		t.Fatalf("SaveBuyer() error = %v", err)
	}
	if _, err := s.SaveSchedule(&model.Schedule{
		GroupID: 1, BuyerWallet: "w1", ScheduledAt: time.Now(),
		AmountLamports: 10, Percent: 0.1, Status: model.ScheduleStatusPending,
	}); err != nil {
		t.Fatalf("SaveSchedule() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
	rec := httptest.NewRecorder()
	srv.handleListSchedules(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "w1") {
		t.Errorf("body = %s, want it to contain the pending schedule", rec.Body.String())
	}
}

func TestHandleListSchedulesRejectsInvalidStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/schedules?status=bogus", nil)
	rec := httptest.NewRecorder()
	srv.handleListSchedules(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRetryFailedReturnsCount(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/schedules/retry", nil)
	rec := httptest.NewRecorder()
	srv.handleRetryFailed(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"retried":0`) {
		t.Errorf("body = %s, want retried=0 with no failed schedules", rec.Body.String())
	}
}

func TestHandleImportBuyersInsertsAndPlans(t *testing.T) {
	srv, s := newTestServer(t)
	if _, err := s.SaveGroup(&model.Group{
		ID: 1, SplPriceLamports: 1, SplTotalLamports: 1000,
		InitialUnlockPercent: 1.0, UnlockPercentPerInterval: 1.0,
	}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}

	csv := "wallet,paid_lamports,group_id\nw9,100,1\n"
	req := httptest.NewRequest(http.MethodPost, "/buyers/upload", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	srv.handleImportBuyers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"imported":1`) {
		t.Errorf("body = %s, want imported=1", rec.Body.String())
	}

	buyer, err := s.GetBuyerByWallet("w9")
	if err != nil {
		t.Fatalf("GetBuyerByWallet() error = %v", err)
	}
	if buyer.PendingSplLamports != 100 {
		t.Errorf("PendingSplLamports = %d, want 100", buyer.PendingSplLamports)
	}

	schedules, err := s.GetSchedulesByStatus(model.ScheduleStatusPending)
	if err != nil {
		t.Fatalf("GetSchedulesByStatus() error = %v", err)
	}
	if len(schedules) == 0 {
		t.Error("expected the import to trigger planning and create at least one schedule")
	}
}

func TestHandleImportBuyersRestoresResumeState(t *testing.T) {
	srv, s := newTestServer(t)
	if _, err := s.SaveGroup(&model.Group{
		ID: 1, SplPriceLamports: 1, SplTotalLamports: 1000,
		InitialUnlockPercent: 1.0, UnlockPercentPerInterval: 1.0,
	}); err != nil {
		t.Fatalf("SaveGroup() error = %v", err)
	}

	csv := "wallet,paid_lamports,group_id,received_spl_lamports,received_percent,pending_spl_lamports,error\n" +
		"w10,100,1,40,0.4,60,\n"
	req := httptest.NewRequest(http.MethodPost, "/buyers/upload", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	srv.handleImportBuyers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	buyer, err := s.GetBuyerByWallet("w10")
	if err != nil {
		t.Fatalf("GetBuyerByWallet() error = %v", err)
	}
	if buyer.ReceivedSplLamports != 40 || buyer.ReceivedPercent != 0.4 || buyer.PendingSplLamports != 60 {
		t.Errorf("buyer = %+v, want the CSV's own resume state restored (received=40 percent=0.4 pending=60)", buyer)
	}
}
