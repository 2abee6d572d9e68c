// Package bootstrap wires every other component together at process
// startup: load groups and buyers from files, run the Planner, run the
// Funding Check, and hand a Runner back to the caller to start.
package bootstrap

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/klingon-exchange/splgiver/internal/chain"
	"github.com/klingon-exchange/splgiver/internal/config"
	"github.com/klingon-exchange/splgiver/internal/funding"
	"github.com/klingon-exchange/splgiver/internal/model"
	"github.com/klingon-exchange/splgiver/internal/planner"
	"github.com/klingon-exchange/splgiver/internal/retryqueue"
	"github.com/klingon-exchange/splgiver/internal/runner"
	"github.com/klingon-exchange/splgiver/internal/store"
	"github.com/klingon-exchange/splgiver/pkg/logging"
)

var log = logging.Default().Component("bootstrap")

// groupFile is the on-disk shape of one row in the groups YAML, matching the
// original distributor's config format.
type groupFile struct {
	ID                       int64   `yaml:"id"`
	SplSharePercent          float64 `yaml:"spl_share_percent"`
	SplPriceLamports         uint64  `yaml:"spl_price_lamports"`
	InitialUnlockPercent     float64 `yaml:"initial_unlock_percent"`
	UnlockIntervalSeconds    int64   `yaml:"unlock_interval_seconds"`
	UnlockPercentPerInterval float64 `yaml:"unlock_percent_per_interval"`
}

// Result is everything Bootstrap produces: a Runner ready to Start, and the
// store/gateway it was built from, for the admin API to share.
type Result struct {
	Store   *store.Store
	Gateway chain.Gateway
	Queue   *retryqueue.Queue
	Runner  *runner.Runner
}

// Run performs the full startup sequence: Planner fills missing future rows,
// then the Funding Check must pass before the Runner is handed back.
func Run(ctx context.Context, cfg *config.Config, gateway chain.Gateway) (*Result, error) {
	s, err := store.New(&store.Config{DataDir: cfg.DataDir})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open store: %w", err)
	}

	decimals, err := gateway.MintDecimals(ctx, cfg.MintPubkey)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read mint decimals: %w", err)
	}

	fundingATA, err := chain.DeriveATA(cfg.MainWallet.Public, cfg.MintPubkey)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: derive funding ata: %w", err)
	}
	totalMintBalance, err := gateway.TokenAccountBalance(ctx, fundingATA)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read funding wallet balance: %w", err)
	}

	if err := loadGroups(s, cfg.GroupsYAML, totalMintBalance); err != nil {
		return nil, fmt.Errorf("bootstrap: load groups: %w", err)
	}
	if err := loadBuyers(s, cfg.BuyersCSV); err != nil {
		return nil, fmt.Errorf("bootstrap: load buyers: %w", err)
	}

	planned, err := planner.Run(s)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: plan schedules: %w", err)
	}
	log.Info("schedule planning complete", "new_rows", planned)

	if err := funding.Check(s); err != nil {
		return nil, fmt.Errorf("bootstrap: funding check: %w", err)
	}

	queue, err := retryqueue.Load(cfg.PendingJSON)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load retry queue: %w", err)
	}

	r := runner.New(s, gateway, queue, cfg.MainWallet, cfg.MintPubkey, decimals, runner.DefaultConfig())

	return &Result{Store: s, Gateway: gateway, Queue: queue, Runner: r}, nil
}

// loadGroups reads the groups YAML and insert-ignores each row, computing
// spl_total_lamports from the group's share of the funding wallet's balance.
func loadGroups(s *store.Store, path string, totalMintBalance uint64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read groups file: %w", err)
	}

	var files []groupFile
	if err := yaml.Unmarshal(data, &files); err != nil {
		return fmt.Errorf("parse groups yaml: %w", err)
	}

	for _, f := range files {
		g := &model.Group{
			ID:                       f.ID,
			SplSharePercent:          f.SplSharePercent,
			SplTotalLamports:         uint64(f.SplSharePercent*float64(totalMintBalance) + 0.5),
			SplPriceLamports:         f.SplPriceLamports,
			InitialUnlockPercent:     f.InitialUnlockPercent,
			UnlockIntervalSeconds:    f.UnlockIntervalSeconds,
			UnlockPercentPerInterval: f.UnlockPercentPerInterval,
		}
		inserted, err := s.SaveGroup(g)
		if err != nil {
			return fmt.Errorf("save group %d: %w", f.ID, err)
		}
		if inserted {
			log.Debug("loaded group", "id", g.ID, "spl_total_lamports", g.SplTotalLamports)
		}
	}
	return nil
}

// loadBuyers reads the buyers CSV (columns: wallet,paid_lamports,group_id,
// and optionally received_spl_lamports,received_percent,pending_spl_lamports,
// error) and insert-ignores each row, restoring any in-progress vesting
// state the file carries.
func loadBuyers(s *store.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open buyers file: %w", err)
	}
	defer f.Close()

	groups, err := s.GetAllGroups()
	if err != nil {
		return fmt.Errorf("load groups for buyer defaults: %w", err)
	}
	groupByID := make(map[int64]*model.Group, len(groups))
	for _, g := range groups {
		groupByID[g.ID] = g
	}

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("parse buyers csv: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	header := records[0]
	col := columnIndex(header)

	for _, row := range records[1:] {
		b, err := ParseBuyerRow(col, row, groupByID)
		if err != nil {
			return fmt.Errorf("parse buyer row: %w", err)
		}

		inserted, err := s.SaveBuyer(b)
		if err != nil {
			return fmt.Errorf("save buyer %s: %w", b.Wallet, err)
		}
		if inserted {
			log.Debug("loaded buyer", "wallet", b.Wallet, "group_id", b.GroupID)
		}
	}
	return nil
}

// columnIndex maps a CSV header row to each column's position.
func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	return col
}

// ParseBuyerRow builds a Buyer from one buyers-CSV row, honoring every
// optional resume column the file carries (received_spl_lamports,
// received_percent, pending_spl_lamports, error) and only falling back to
// the group's computed default for pending_spl_lamports when the row
// leaves it zero or absent, matching the original distributor's CSV
// resume contract. Shared by bootstrap's startup load and the admin API's
// buyer-import endpoint so the two can't drift apart.
func ParseBuyerRow(col map[string]int, row []string, groupByID map[int64]*model.Group) (*model.Buyer, error) {
	get := func(name string) (string, bool) {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return "", false
		}
		return row[idx], true
	}

	wallet, _ := get("wallet")

	paidStr, ok := get("paid_lamports")
	if !ok {
		return nil, fmt.Errorf("missing paid_lamports column for %s", wallet)
	}
	paidLamports, err := strconv.ParseUint(paidStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse paid_lamports for %s: %w", wallet, err)
	}

	groupIDStr, ok := get("group_id")
	if !ok {
		return nil, fmt.Errorf("missing group_id column for %s", wallet)
	}
	groupID, err := strconv.ParseInt(groupIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse group_id for %s: %w", wallet, err)
	}

	b := &model.Buyer{
		Wallet:       wallet,
		PaidLamports: paidLamports,
		GroupID:      groupID,
	}

	if v, ok := get("received_spl_lamports"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse received_spl_lamports for %s: %w", wallet, err)
		}
		b.ReceivedSplLamports = n
	}
	if v, ok := get("received_percent"); ok && v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse received_percent for %s: %w", wallet, err)
		}
		b.ReceivedPercent = p
	}
	if v, ok := get("pending_spl_lamports"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse pending_spl_lamports for %s: %w", wallet, err)
		}
		b.PendingSplLamports = n
	}
	if v, ok := get("error"); ok && v != "" {
		errMsg := v
		b.Error = &errMsg
	}

	if b.PendingSplLamports == 0 {
		if g, ok := groupByID[groupID]; ok {
			b.PendingSplLamports = g.BuyerTotal(paidLamports)
		}
	}

	return b, nil
}
