package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tamannathakur/Invora/internal/models"
)

// ReminderRepository defines the durable vendor-reminder schedule. Rows
// survive restarts; correctness comes from the scheduler re-checking the
// request at fire time, not from row cleanup.
type ReminderRepository interface {
	Enqueue(ctx context.Context, executor SQLExecutor, requestID int64, fireAt time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]models.VendorReminder, error)
	MarkSent(ctx context.Context, executor SQLExecutor, id int64) error
}

type reminderRepository struct {
	db *sql.DB
}

// NewReminderRepository creates a new instance of ReminderRepository.
func NewReminderRepository(db *sql.DB) ReminderRepository {
	return &reminderRepository{db: db}
}

func (r *reminderRepository) Enqueue(ctx context.Context, executor SQLExecutor, requestID int64, fireAt time.Time) error {
	query := `INSERT INTO vendor_reminders (request_id, fire_at, sent, created_at)
	          VALUES ($1, $2, FALSE, $3)`
	_, err := executor.ExecContext(ctx, query, requestID, fireAt, time.Now())
	if err != nil {
		return fmt.Errorf("%w: enqueueing vendor reminder for request %d: %v", ErrDatabaseError, requestID, err)
	}
	return nil
}

func (r *reminderRepository) Due(ctx context.Context, now time.Time, limit int) ([]models.VendorReminder, error) {
	query := `SELECT id, request_id, fire_at, sent, created_at
	          FROM vendor_reminders
	          WHERE NOT sent AND fire_at <= $1
	          ORDER BY fire_at ASC
	          LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: loading due vendor reminders: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	reminders := []models.VendorReminder{}
	for rows.Next() {
		var reminder models.VendorReminder
		if err := rows.Scan(&reminder.ID, &reminder.RequestID, &reminder.FireAt, &reminder.Sent, &reminder.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning vendor reminder: %v", ErrDatabaseError, err)
		}
		reminders = append(reminders, reminder)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating vendor reminders: %v", ErrDatabaseError, err)
	}
	return reminders, nil
}

func (r *reminderRepository) MarkSent(ctx context.Context, executor SQLExecutor, id int64) error {
	_, err := executor.ExecContext(ctx, `UPDATE vendor_reminders SET sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: marking vendor reminder %d sent: %v", ErrDatabaseError, id, err)
	}
	return nil
}
