// Package runner drives the long-lived loop that turns due schedule rows
// into on-chain transfers and advances persistent state to match.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/splgiver/internal/chain"
	"github.com/klingon-exchange/splgiver/internal/corerr"
	"github.com/klingon-exchange/splgiver/internal/model"
	"github.com/klingon-exchange/splgiver/internal/retryqueue"
	"github.com/klingon-exchange/splgiver/internal/store"
	"github.com/klingon-exchange/splgiver/pkg/logging"
)

// Config configures the Runner's poll cadence and transfer retry policy.
type Config struct {
	PollInterval  time.Duration // how often to scan for due schedules
	TransferTries int           // attempts per transfer before giving up
	RetryBackoff  time.Duration // fixed delay between transfer attempts
}

// DefaultConfig is the standard production cadence: a 60s poll, 4 transfer
// attempts, 2s fixed backoff between them.
func DefaultConfig() Config {
	return Config{
		PollInterval:  60 * time.Second,
		TransferTries: 4,
		RetryBackoff:  2 * time.Second,
	}
}

// Runner is the cooperative long-lived task described in §4.6: fetch due
// rows, transfer on chain, update buyer, update schedule, enqueuing retries
// on any partial database failure after a transfer has already succeeded.
type Runner struct {
	store    *store.Store
	gateway  chain.Gateway
	queue    *retryqueue.Queue
	funding  *chain.Keypair
	mint     chain.Pubkey
	decimals uint8
	cfg      Config
	log      *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// OnScheduleTransition, when set, is called after every terminal
	// transition of a schedule row (success or failed), letting a caller
	// (the admin live feed) observe progress without the Runner knowing
	// anything about HTTP or WebSockets.
	OnScheduleTransition func(scheduleID int64, status model.ScheduleStatus)
}

// New builds a Runner. decimals is the mint's decimals, read once at
// bootstrap via the gateway.
func New(s *store.Store, gateway chain.Gateway, queue *retryqueue.Queue, funding *chain.Keypair, mint chain.Pubkey, decimals uint8, cfg Config) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:    s,
		gateway:  gateway,
		queue:    queue,
		funding:  funding,
		mint:     mint,
		decimals: decimals,
		cfg:      cfg,
		log:      logging.Default().Component("runner"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the poll loop in a background goroutine.
func (r *Runner) Start() {
	go r.run()
	r.log.Info("schedule runner started", "poll_interval", r.cfg.PollInterval)
}

// Stop signals the poll loop to exit.
func (r *Runner) Stop() {
	r.cancel()
	r.log.Info("schedule runner stopped")
}

func (r *Runner) run() {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.tick()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Runner) tick() {
	due, err := r.store.GetSchedulesDue(time.Now())
	if err != nil {
		r.log.Error("failed to load due schedules", "error", err)
		return
	}

	for _, sch := range due {
		if err := r.ProcessSchedule(r.ctx, sch); err != nil {
			r.log.Error("failed to process schedule", "schedule_id", sch.ID, "error", err)
		}
	}
}

// RetryFailed re-invokes ProcessSchedule for every schedule row currently in
// the failed state, the administrative retry operation described in §4.6.
func (r *Runner) RetryFailed(ctx context.Context) (int, error) {
	failed, err := r.store.GetSchedulesByStatus(model.ScheduleStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("load failed schedules: %w", err)
	}

	retried := 0
	for _, sch := range failed {
		if err := r.ProcessSchedule(ctx, sch); err != nil {
			r.log.Error("retry failed again", "schedule_id", sch.ID, "error", err)
			continue
		}
		retried++
	}
	return retried, nil
}

// ProcessSchedule is the state machine in §4.6: flush the retry queue, load
// group and buyer, transfer with bounded retry, then advance buyer/schedule
// state — enqueuing whatever database write fails so it is not lost.
func (r *Runner) ProcessSchedule(ctx context.Context, sch *model.Schedule) error {
	if err := r.queue.Flush(r.store); err != nil {
		return fmt.Errorf("flush retry queue: %w", err)
	}

	group, err := r.store.GetGroup(sch.GroupID)
	if err != nil {
		return r.failSchedule(sch, fmt.Errorf("load group %d: %w", sch.GroupID, err))
	}
	buyer, err := r.store.GetBuyerByWallet(sch.BuyerWallet)
	if err != nil {
		return r.failSchedule(sch, fmt.Errorf("load buyer %s: %w", sch.BuyerWallet, err))
	}

	signature, transferErr := r.transferWithRetries(ctx, sch, buyer)
	if transferErr == nil {
		return r.onTransferSuccess(sch, group, buyer, signature)
	}
	return r.onTransferFailure(sch, transferErr)
}

func (r *Runner) transferWithRetries(ctx context.Context, sch *model.Schedule, buyer *model.Buyer) (string, error) {
	ownerPk, err := chain.ParsePubkey(buyer.Wallet)
	if err != nil {
		return "", fmt.Errorf("parse buyer wallet: %w", err)
	}

	destATA, err := r.gateway.EnsureATA(ctx, r.funding, ownerPk, r.mint)
	if err != nil {
		return "", fmt.Errorf("ensure ata: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.TransferTries; attempt++ {
		sig, err := r.gateway.TransferChecked(ctx, r.funding, r.mint, destATA, sch.AmountLamports, r.decimals)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		r.log.Warn("transfer attempt failed", "schedule_id", sch.ID, "attempt", attempt, "error", err)

		if errors.Is(err, corerr.ErrChainPermanent) {
			return "", fmt.Errorf("transfer failed permanently on attempt %d: %w", attempt, err)
		}

		if attempt < r.cfg.TransferTries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(r.cfg.RetryBackoff):
			}
		}
	}
	return "", fmt.Errorf("transfer failed after %d attempts: %w", r.cfg.TransferTries, lastErr)
}

func (r *Runner) onTransferSuccess(sch *model.Schedule, group *model.Group, buyer *model.Buyer, signature string) error {
	_ = signature // recorded in logs only; the Transaction row is the audit trail
	now := time.Now()

	tx := &model.Transaction{
		BuyerWallet:    sch.BuyerWallet,
		GroupID:        sch.GroupID,
		AmountLamports: sch.AmountLamports,
		Percent:        sch.Percent,
		Status:         model.TransactionStatusSuccess,
		SentAt:         now,
	}
	if _, err := r.store.SaveTransaction(tx); err != nil {
		r.log.Warn("save_transaction failed, enqueuing for retry", "schedule_id", sch.ID, "error", err)
		if err := r.queue.PushAndPersist(retryqueue.NewSaveTransactionOp(tx)); err != nil {
			return fmt.Errorf("fatal: enqueue save_transaction: %w", err)
		}
	}

	buyerTotal := group.BuyerTotal(buyer.PaidLamports)
	newReceived := buyer.ReceivedSplLamports + sch.AmountLamports
	newPending := saturatingSub(buyerTotal, newReceived)
	if err := r.store.UpdateBuyer(buyer.Wallet, newReceived, sch.Percent, newPending); err != nil {
		r.log.Warn("update_buyer failed, enqueuing for retry", "schedule_id", sch.ID, "error", err)
		if err := r.queue.PushAndPersist(retryqueue.NewUpdateBuyerOp(buyer.Wallet, newReceived, sch.Percent, newPending)); err != nil {
			return fmt.Errorf("fatal: enqueue update_buyer: %w", err)
		}
	}

	if err := r.store.UpdateScheduleStatus(sch.ID, model.ScheduleStatusSuccess, nil); err != nil {
		r.log.Warn("update_schedule_status failed, enqueuing for retry", "schedule_id", sch.ID, "error", err)
		if err := r.queue.PushAndPersist(retryqueue.NewUpdateScheduleOp(sch.ID, model.ScheduleStatusSuccess, nil)); err != nil {
			return fmt.Errorf("fatal: enqueue update_schedule: %w", err)
		}
	}

	r.notify(sch.ID, model.ScheduleStatusSuccess)
	return nil
}

func (r *Runner) notify(scheduleID int64, status model.ScheduleStatus) {
	if r.OnScheduleTransition != nil {
		r.OnScheduleTransition(scheduleID, status)
	}
}

func (r *Runner) onTransferFailure(sch *model.Schedule, transferErr error) error {
	now := time.Now()
	msg := transferErr.Error()

	tx := &model.Transaction{
		BuyerWallet:    sch.BuyerWallet,
		GroupID:        sch.GroupID,
		AmountLamports: sch.AmountLamports,
		Percent:        sch.Percent,
		Status:         model.TransactionStatusFailed,
		ErrorMessage:   &msg,
		SentAt:         now,
	}
	if _, err := r.store.SaveTransaction(tx); err != nil {
		r.log.Warn("save_transaction failed, enqueuing for retry", "schedule_id", sch.ID, "error", err)
		if err := r.queue.PushAndPersist(retryqueue.NewSaveTransactionOp(tx)); err != nil {
			return fmt.Errorf("fatal: enqueue save_transaction: %w", err)
		}
	}

	return r.failSchedule(sch, transferErr)
}

// failSchedule marks sch failed, enqueuing the write if the store rejects it.
func (r *Runner) failSchedule(sch *model.Schedule, cause error) error {
	msg := cause.Error()
	if err := r.store.UpdateScheduleStatus(sch.ID, model.ScheduleStatusFailed, &msg); err != nil {
		r.log.Warn("update_schedule_status failed, enqueuing for retry", "schedule_id", sch.ID, "error", err)
		if err := r.queue.PushAndPersist(retryqueue.NewUpdateScheduleOp(sch.ID, model.ScheduleStatusFailed, &msg)); err != nil {
			return fmt.Errorf("fatal: enqueue update_schedule: %w", err)
		}
	}
	r.notify(sch.ID, model.ScheduleStatusFailed)
	return cause
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
