package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/klingon-exchange/splgiver/internal/corerr"
	"github.com/klingon-exchange/splgiver/internal/model"
)

// SaveGroup inserts a group, ignoring the row if one with the same id
// already exists. Group rows are inserted once and never mutated.
func (s *Store) SaveGroup(g *model.Group) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO groups (
			id, spl_share_percent, spl_total_lamports, spl_price_lamports,
			initial_unlock_percent, unlock_interval_seconds, unlock_percent_per_interval
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		g.ID, g.SplSharePercent, g.SplTotalLamports, g.SplPriceLamports,
		g.InitialUnlockPercent, g.UnlockIntervalSeconds, g.UnlockPercentPerInterval,
	)
	if err != nil {
		return false, fmt.Errorf("save group %d: %w", g.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("save group %d: %w", g.ID, err)
	}
	return rows > 0, nil
}

// GetGroup fetches a group by id.
func (s *Store) GetGroup(id int64) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, spl_share_percent, spl_total_lamports, spl_price_lamports,
		initial_unlock_percent, unlock_interval_seconds, unlock_percent_per_interval
		FROM groups WHERE id = ?`, id)

	g := &model.Group{}
	err := row.Scan(&g.ID, &g.SplSharePercent, &g.SplTotalLamports, &g.SplPriceLamports,
		&g.InitialUnlockPercent, &g.UnlockIntervalSeconds, &g.UnlockPercentPerInterval)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %d: %w", id, corerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get group %d: %w", id, err)
	}
	return g, nil
}

// GetAllGroups returns every group row.
func (s *Store) GetAllGroups() ([]*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, spl_share_percent, spl_total_lamports, spl_price_lamports,
		initial_unlock_percent, unlock_interval_seconds, unlock_percent_per_interval
		FROM groups`)
	if err != nil {
		return nil, fmt.Errorf("get all groups: %w", err)
	}
	defer rows.Close()

	var groups []*model.Group
	for rows.Next() {
		g := &model.Group{}
		if err := rows.Scan(&g.ID, &g.SplSharePercent, &g.SplTotalLamports, &g.SplPriceLamports,
			&g.InitialUnlockPercent, &g.UnlockIntervalSeconds, &g.UnlockPercentPerInterval); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
