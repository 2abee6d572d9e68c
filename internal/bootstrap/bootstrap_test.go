package bootstrap

import (
	"context"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/klingon-exchange/splgiver/internal/chain"
	"github.com/klingon-exchange/splgiver/internal/config"
	"github.com/klingon-exchange/splgiver/internal/model"
)

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

func writeFixture(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}

func TestRunPlansAndPassesFundingCheck(t *testing.T) {
	dir := t.TempDir()
	mainWallet := newTestKeypair(t)
	mint := newTestKeypair(t)
	buyerWallet := newTestKeypair(t)

	groupsPath := writeFixture(t, dir, "groups.yaml", `
- id: 1
  spl_share_percent: 0.5
  spl_price_lamports: 1
  initial_unlock_percent: 1.0
  unlock_interval_seconds: 86400
  unlock_percent_per_interval: 1.0
`)
	buyersPath := writeFixture(t, dir, "buyers.csv",
		"wallet,paid_lamports,group_id\n"+buyerWallet.Public.String()+",100,1\n")

	gw := chain.NewMockGateway(9)
	fundingATA, err := chain.DeriveATA(mainWallet.Public, mint.Public)
	if err != nil {
		t.Fatalf("DeriveATA() error = %v", err)
	}
	gw.SetBalance(fundingATA, 1_000_000)

	cfg := &config.Config{
		DataDir:     filepath.Join(dir, "data"),
		MainWallet:  mainWallet,
		MintPubkey:  mint.Public,
		GroupsYAML:  groupsPath,
		BuyersCSV:   buyersPath,
		PendingJSON: filepath.Join(dir, "pending_ops.json"),
	}

	result, err := Run(context.Background(), cfg, gw)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	t.Cleanup(func() { result.Store.Close() })

	schedules, err := result.Store.GetSchedulesByStatus(model.ScheduleStatusPending)
	if err != nil {
		t.Fatalf("GetSchedulesByStatus() error = %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("got %d pending schedules, want 1 (single initial unlock)", len(schedules))
	}
	if schedules[0].AmountLamports != 100 {
		t.Errorf("AmountLamports = %d, want 100", schedules[0].AmountLamports)
	}
}

func TestParseBuyerRowRestoresResumeState(t *testing.T) {
	groupByID := map[int64]*model.Group{
		1: {ID: 1, SplPriceLamports: 1},
	}
	header := []string{"wallet", "paid_lamports", "group_id", "received_spl_lamports", "received_percent", "pending_spl_lamports", "error"}
	col := columnIndex(header)
	row := []string{"w1", "100", "1", "40", "0.4", "60", "transfer delayed"}

	b, err := ParseBuyerRow(col, row, groupByID)
	if err != nil {
		t.Fatalf("ParseBuyerRow() error = %v", err)
	}

	if b.ReceivedSplLamports != 40 {
		t.Errorf("ReceivedSplLamports = %d, want 40 (restored, not recomputed)", b.ReceivedSplLamports)
	}
	if b.ReceivedPercent != 0.4 {
		t.Errorf("ReceivedPercent = %v, want 0.4", b.ReceivedPercent)
	}
	if b.PendingSplLamports != 60 {
		t.Errorf("PendingSplLamports = %d, want 60 (the CSV's own value, not recomputed from paid/price)", b.PendingSplLamports)
	}
	if b.Error == nil || *b.Error != "transfer delayed" {
		t.Errorf("Error = %v, want \"transfer delayed\"", b.Error)
	}
}

func TestParseBuyerRowDefaultsPendingWhenZeroOrAbsent(t *testing.T) {
	groupByID := map[int64]*model.Group{
		1: {ID: 1, SplPriceLamports: 2},
	}
	header := []string{"wallet", "paid_lamports", "group_id"}
	col := columnIndex(header)
	row := []string{"w2", "100", "1"}

	b, err := ParseBuyerRow(col, row, groupByID)
	if err != nil {
		t.Fatalf("ParseBuyerRow() error = %v", err)
	}
	if b.PendingSplLamports != 50 {
		t.Errorf("PendingSplLamports = %d, want 50 (paid_lamports/spl_price_lamports default)", b.PendingSplLamports)
	}
	if b.ReceivedSplLamports != 0 || b.ReceivedPercent != 0 || b.Error != nil {
		t.Errorf("unexpected non-zero resume state from a 3-column row: %+v", b)
	}
}

func TestRunFailsFundingCheckWhenUnderfunded(t *testing.T) {
	dir := t.TempDir()
	mainWallet := newTestKeypair(t)
	mint := newTestKeypair(t)
	buyerWallet := newTestKeypair(t)

	groupsPath := writeFixture(t, dir, "groups.yaml", `
- id: 1
  spl_share_percent: 0.0000001
  spl_price_lamports: 1
  initial_unlock_percent: 1.0
  unlock_interval_seconds: 86400
  unlock_percent_per_interval: 1.0
`)
	buyersPath := writeFixture(t, dir, "buyers.csv",
		"wallet,paid_lamports,group_id\n"+buyerWallet.Public.String()+",100,1\n")

	gw := chain.NewMockGateway(9)
	fundingATA, err := chain.DeriveATA(mainWallet.Public, mint.Public)
	if err != nil {
		t.Fatalf("DeriveATA() error = %v", err)
	}
	gw.SetBalance(fundingATA, 1)

	cfg := &config.Config{
		DataDir:     filepath.Join(dir, "data"),
		MainWallet:  mainWallet,
		MintPubkey:  mint.Public,
		GroupsYAML:  groupsPath,
		BuyersCSV:   buyersPath,
		PendingJSON: filepath.Join(dir, "pending_ops.json"),
	}

	if _, err := Run(context.Background(), cfg, gw); err == nil {
		t.Fatal("Run() error = nil, want funding check failure")
	}
}
