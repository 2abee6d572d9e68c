package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/splgiver/internal/corerr"
	"github.com/klingon-exchange/splgiver/internal/model"
)

// SaveSchedule inserts a schedule row and returns its id. Not deduplicated
// at this layer — the Planner owns dedup.
func (s *Store) SaveSchedule(sch *model.Schedule) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	status := sch.Status
	if status == "" {
		status = model.ScheduleStatusPending
	}

	result, err := s.db.Exec(`
		INSERT INTO schedules (
			group_id, buyer_wallet, scheduled_at, amount_lamports, percent,
			status, error_message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sch.GroupID, sch.BuyerWallet, sch.ScheduledAt.Unix(), sch.AmountLamports,
		sch.Percent, status, sch.ErrorMessage, now, now)
	if err != nil {
		return 0, fmt.Errorf("save schedule for %s: %w", sch.BuyerWallet, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save schedule for %s: %w", sch.BuyerWallet, err)
	}
	return id, nil
}

func scanSchedule(scan func(dest ...any) error) (*model.Schedule, error) {
	sch := &model.Schedule{}
	var errMsg sql.NullString
	var status string
	var scheduledAt, createdAt, updatedAt int64
	if err := scan(&sch.ID, &sch.GroupID, &sch.BuyerWallet, &scheduledAt,
		&sch.AmountLamports, &sch.Percent, &status, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sch.Status = model.ScheduleStatus(status)
	if errMsg.Valid {
		sch.ErrorMessage = &errMsg.String
	}
	sch.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	sch.CreatedAt = time.Unix(createdAt, 0).UTC()
	sch.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return sch, nil
}

const scheduleColumns = `id, group_id, buyer_wallet, scheduled_at, amount_lamports,
	percent, status, error_message, created_at, updated_at`

// GetSchedule fetches a schedule row by id.
func (s *Store) GetSchedule(id int64) (*model.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sch, err := scanSchedule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", id, corerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %d: %w", id, err)
	}
	return sch, nil
}

// GetSchedulesByStatus returns all schedules with the given status. status
// must be a member of the closed status set.
func (s *Store) GetSchedulesByStatus(status model.ScheduleStatus) ([]*model.Schedule, error) {
	if !model.ValidScheduleStatus(string(status)) {
		return nil, fmt.Errorf("invalid schedule status %q: %w", status, corerr.ErrInvariantViolation)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+scheduleColumns+` FROM schedules WHERE status = ? ORDER BY scheduled_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("get schedules by status %s: %w", status, err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// GetSchedulesByBuyerAndGroup returns all schedule rows for a (buyer, group) pair.
func (s *Store) GetSchedulesByBuyerAndGroup(wallet string, groupID int64) ([]*model.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+scheduleColumns+` FROM schedules WHERE buyer_wallet = ? AND group_id = ?`, wallet, groupID)
	if err != nil {
		return nil, fmt.Errorf("get schedules for %s/%d: %w", wallet, groupID, err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// GetSchedulesDue returns pending schedules whose scheduled_at has passed,
// ordered by scheduled_at so the Runner processes the oldest tranche first.
func (s *Store) GetSchedulesDue(now time.Time) ([]*model.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+scheduleColumns+` FROM schedules
		WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at`,
		string(model.ScheduleStatusPending), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("get due schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func collectSchedules(rows *sql.Rows) ([]*model.Schedule, error) {
	var out []*model.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}

// UpdateScheduleStatus transitions a schedule's status and error message.
// Fails with corerr.ErrNotFound if id is absent.
func (s *Store) UpdateScheduleStatus(id int64, status model.ScheduleStatus, errMessage *string) error {
	if !model.ValidScheduleStatus(string(status)) {
		return fmt.Errorf("invalid schedule status %q: %w", status, corerr.ErrInvariantViolation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE schedules SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), errMessage, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update schedule %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update schedule %d: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("schedule %d: %w", id, corerr.ErrNotFound)
	}
	return nil
}

// DeleteSchedule removes a schedule row by id.
func (s *Store) DeleteSchedule(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule %d: %w", id, err)
	}
	return nil
}
