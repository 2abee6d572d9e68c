package store

import (
	"fmt"

	"github.com/klingon-exchange/splgiver/internal/model"
)

// SaveTransaction inserts an append-only transaction audit row and returns
// its id.
func (s *Store) SaveTransaction(tx *model.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		INSERT INTO transactions (
			buyer_wallet, group_id, amount_lamports, percent, status, error_message, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tx.BuyerWallet, tx.GroupID, tx.AmountLamports, tx.Percent, string(tx.Status),
		tx.ErrorMessage, tx.SentAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("save transaction for %s: %w", tx.BuyerWallet, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save transaction for %s: %w", tx.BuyerWallet, err)
	}
	return id, nil
}
