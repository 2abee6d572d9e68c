// Package model holds the entities shared by the store, planner, and runner:
// Group, Buyer, Schedule, Transaction, and User, as defined by the data model.
package model

import "time"

// ScheduleStatus is the closed set of states a Schedule row can be in.
type ScheduleStatus string

const (
	ScheduleStatusPending ScheduleStatus = "pending"
	ScheduleStatusSuccess ScheduleStatus = "success"
	ScheduleStatusFailed  ScheduleStatus = "failed"
)

// ValidScheduleStatus reports whether s is a member of the closed status set.
func ValidScheduleStatus(s string) bool {
	switch ScheduleStatus(s) {
	case ScheduleStatusPending, ScheduleStatusSuccess, ScheduleStatusFailed:
		return true
	default:
		return false
	}
}

// TransactionStatus is the closed set of states a Transaction row can be in.
type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// Group is a cohort with a single vesting policy.
type Group struct {
	ID                       int64
	SplSharePercent          float64
	SplTotalLamports         uint64
	SplPriceLamports         uint64
	InitialUnlockPercent     float64
	UnlockIntervalSeconds    int64
	UnlockPercentPerInterval float64
}

// BuyerTotal returns paid_lamports / spl_price_lamports, integer division
// truncated toward zero, per the data model's derived quantity.
func (g *Group) BuyerTotal(paidLamports uint64) uint64 {
	if g.SplPriceLamports == 0 {
		return 0
	}
	return paidLamports / g.SplPriceLamports
}

// Buyer is one wallet bound to one group.
type Buyer struct {
	Wallet              string
	PaidLamports        uint64
	GroupID             int64
	ReceivedSplLamports uint64
	ReceivedPercent     float64
	PendingSplLamports  uint64
	Error               *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Schedule is one planned tranche.
type Schedule struct {
	ID             int64
	GroupID        int64
	BuyerWallet    string
	ScheduledAt    time.Time
	AmountLamports uint64
	Percent        float64
	Status         ScheduleStatus
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is an append-only audit record per transfer attempt.
type Transaction struct {
	ID             int64
	BuyerWallet    string
	GroupID        int64
	AmountLamports uint64
	Percent        float64
	Status         TransactionStatus
	ErrorMessage   *string
	SentAt         time.Time
}

// User is an admin API principal. Password hashing and JWT issuance are
// external to the core; this struct only carries what the store persists.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// PercentKey converts a cumulative percent to the fixed-precision
// microfraction integer the Planner uses as its dedup key, avoiding
// float-equality pitfalls per the design notes.
func PercentKey(percent float64) int64 {
	return int64(percent*1_000_000 + 0.5)
}
