// Package retryqueue is the correctness glue between the chain (which is not
// transactional with the database) and the store: once a transfer has
// succeeded on chain, the follow-up database writes it implies must land
// eventually, even if the store is briefly unavailable. Pending writes are
// appended to a single on-disk JSON file and drained against the store the
// next time anything flushes the queue.
package retryqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/klingon-exchange/splgiver/internal/model"
	"github.com/klingon-exchange/splgiver/internal/store"
	"github.com/klingon-exchange/splgiver/pkg/logging"
)

// OpKind tags which store mutation a Pending Operation replays.
type OpKind string

const (
	OpSaveTransaction OpKind = "save_transaction"
	OpUpdateBuyer     OpKind = "update_buyer"
	OpUpdateSchedule  OpKind = "update_schedule"
)

// SaveTransactionOp replays a Transaction insert that failed the first time.
type SaveTransactionOp struct {
	Transaction *model.Transaction `json:"transaction"`
}

// UpdateBuyerOp replays a buyer progress update that failed the first time.
type UpdateBuyerOp struct {
	Wallet              string  `json:"wallet"`
	ReceivedSplLamports uint64  `json:"received_spl_lamports"`
	ReceivedPercent     float64 `json:"received_percent"`
	PendingSplLamports  uint64  `json:"pending_spl_lamports"`
}

// UpdateScheduleOp replays a schedule status transition that failed the
// first time.
type UpdateScheduleOp struct {
	ScheduleID   int64                `json:"schedule_id"`
	Status       model.ScheduleStatus `json:"status"`
	ErrorMessage *string              `json:"error_message,omitempty"`
}

// PendingOp is one tagged entry in the queue. Exactly one of the typed
// fields is set, selected by Kind.
type PendingOp struct {
	ID   string `json:"id"`
	Kind OpKind `json:"kind"`

	SaveTransaction *SaveTransactionOp `json:"save_transaction,omitempty"`
	UpdateBuyer     *UpdateBuyerOp     `json:"update_buyer,omitempty"`
	UpdateSchedule  *UpdateScheduleOp  `json:"update_schedule,omitempty"`
}

// NewSaveTransactionOp builds a pending op that replays a transaction save.
func NewSaveTransactionOp(tx *model.Transaction) PendingOp {
	return PendingOp{ID: uuid.NewString(), Kind: OpSaveTransaction, SaveTransaction: &SaveTransactionOp{Transaction: tx}}
}

// NewUpdateBuyerOp builds a pending op that replays a buyer progress update.
func NewUpdateBuyerOp(wallet string, receivedSplLamports uint64, receivedPercent float64, pendingSplLamports uint64) PendingOp {
	return PendingOp{
		ID:   uuid.NewString(),
		Kind: OpUpdateBuyer,
		UpdateBuyer: &UpdateBuyerOp{
			Wallet:              wallet,
			ReceivedSplLamports: receivedSplLamports,
			ReceivedPercent:     receivedPercent,
			PendingSplLamports:  pendingSplLamports,
		},
	}
}

// NewUpdateScheduleOp builds a pending op that replays a schedule status
// transition.
func NewUpdateScheduleOp(scheduleID int64, status model.ScheduleStatus, errMessage *string) PendingOp {
	return PendingOp{
		ID:   uuid.NewString(),
		Kind: OpUpdateSchedule,
		UpdateSchedule: &UpdateScheduleOp{ScheduleID: scheduleID, Status: status, ErrorMessage: errMessage},
	}
}

// Queue is a durable, single-mutex-guarded list of Pending Operations backed
// by one JSON file on disk.
type Queue struct {
	mu   sync.Mutex
	path string
	ops  []PendingOp
	log  *logging.Logger
}

// Load reads the queue file at path, creating it if absent. An empty or
// whitespace-only file is treated as an empty queue.
func Load(path string) (*Queue, error) {
	q := &Queue{path: path, log: logging.Default().Component("retryqueue")}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if writeErr := os.WriteFile(path, []byte("[]"), 0o644); writeErr != nil {
			return nil, fmt.Errorf("create retry queue file: %w", writeErr)
		}
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read retry queue file: %w", err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return q, nil
	}

	var ops []PendingOp
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("parse retry queue file: %w", err)
	}
	q.ops = ops
	return q, nil
}

// Len reports how many operations are currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// PushAndPersist appends op to the in-memory list and atomically rewrites
// the whole file.
func (q *Queue) PushAndPersist(op PendingOp) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = append(q.ops, op)
	if err := q.persistLocked(); err != nil {
		return fmt.Errorf("persist retry queue after push: %w", err)
	}
	return nil
}

// Flush drains the current queue against s: each op is applied in FIFO
// order, ops that fail to apply are kept, and the file is rewritten with
// whatever remains. A failure to rewrite the file after flushing is fatal —
// the caller cannot tell whether already-applied ops are still durably
// recorded as pending, so it must not proceed silently.
func (q *Queue) Flush(s *store.Store) error {
	q.mu.Lock()
	pending := q.ops
	q.ops = nil
	q.mu.Unlock()

	var remaining []PendingOp
	for _, op := range pending {
		if err := q.apply(s, op); err != nil {
			q.log.Warn("pending operation failed to apply, keeping for next flush", "kind", op.Kind, "id", op.ID, "error", err)
			remaining = append(remaining, op)
			continue
		}
		q.log.Debug("pending operation applied", "kind", op.Kind, "id", op.ID)
	}

	q.mu.Lock()
	q.ops = append(remaining, q.ops...)
	err := q.persistLocked()
	q.mu.Unlock()

	if err != nil {
		return fmt.Errorf("fatal: rewrite retry queue after flush: %w", err)
	}
	return nil
}

func (q *Queue) apply(s *store.Store, op PendingOp) error {
	switch op.Kind {
	case OpSaveTransaction:
		_, err := s.SaveTransaction(op.SaveTransaction.Transaction)
		return err
	case OpUpdateBuyer:
		b := op.UpdateBuyer
		return s.UpdateBuyer(b.Wallet, b.ReceivedSplLamports, b.ReceivedPercent, b.PendingSplLamports)
	case OpUpdateSchedule:
		u := op.UpdateSchedule
		return s.UpdateScheduleStatus(u.ScheduleID, u.Status, u.ErrorMessage)
	default:
		return fmt.Errorf("unknown pending operation kind %q", op.Kind)
	}
}

// persistLocked truncates and rewrites the queue file. Callers must hold mu.
func (q *Queue) persistLocked() error {
	data, err := json.Marshal(q.ops)
	if err != nil {
		return fmt.Errorf("marshal retry queue: %w", err)
	}
	return os.WriteFile(q.path, data, 0o644)
}
