package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/splgiver/internal/corerr"
	"github.com/klingon-exchange/splgiver/internal/model"
)

// SaveBuyer inserts a buyer, ignoring the row if the wallet already exists.
func (s *Store) SaveBuyer(b *model.Buyer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO buyers (
			wallet, paid_lamports, group_id, received_spl_lamports,
			received_percent, pending_spl_lamports, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.Wallet, b.PaidLamports, b.GroupID, b.ReceivedSplLamports,
		b.ReceivedPercent, b.PendingSplLamports, b.Error, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("save buyer %s: %w", b.Wallet, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save buyer %s: %w", b.Wallet, err)
	}
	return rows > 0, nil
}

func scanBuyer(scan func(dest ...any) error) (*model.Buyer, error) {
	b := &model.Buyer{}
	var errStr sql.NullString
	var createdAt, updatedAt int64
	if err := scan(&b.Wallet, &b.PaidLamports, &b.GroupID, &b.ReceivedSplLamports,
		&b.ReceivedPercent, &b.PendingSplLamports, &errStr, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if errStr.Valid {
		b.Error = &errStr.String
	}
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	b.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return b, nil
}

const buyerColumns = `wallet, paid_lamports, group_id, received_spl_lamports,
	received_percent, pending_spl_lamports, error, created_at, updated_at`

// GetBuyerByWallet fetches a buyer by wallet address.
func (s *Store) GetBuyerByWallet(wallet string) (*model.Buyer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+buyerColumns+` FROM buyers WHERE wallet = ?`, wallet)
	b, err := scanBuyer(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("buyer %s: %w", wallet, corerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get buyer %s: %w", wallet, err)
	}
	return b, nil
}

// GetBuyersByGroup returns all buyers in a group.
func (s *Store) GetBuyersByGroup(groupID int64) ([]*model.Buyer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+buyerColumns+` FROM buyers WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, fmt.Errorf("get buyers by group %d: %w", groupID, err)
	}
	defer rows.Close()

	var buyers []*model.Buyer
	for rows.Next() {
		b, err := scanBuyer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan buyer: %w", err)
		}
		buyers = append(buyers, b)
	}
	return buyers, rows.Err()
}

// UpdateBuyer updates a buyer's progress by wallet. Fails with
// corerr.ErrNotFound if no row matches wallet.
func (s *Store) UpdateBuyer(wallet string, receivedSplLamports uint64, receivedPercent float64, pendingSplLamports uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE buyers SET received_spl_lamports = ?, received_percent = ?,
			pending_spl_lamports = ?, updated_at = ?
		WHERE wallet = ?
	`, receivedSplLamports, receivedPercent, pendingSplLamports, time.Now().Unix(), wallet)
	if err != nil {
		return fmt.Errorf("update buyer %s: %w", wallet, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update buyer %s: %w", wallet, err)
	}
	if rows == 0 {
		return fmt.Errorf("buyer %s: %w", wallet, corerr.ErrNotFound)
	}
	return nil
}
