package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// ReminderExists сообщает, есть ли у пользователя напоминание этого типа,
// запланированное на момент from или позже.
func (s *Storage) ReminderExists(ctx context.Context, userUID string, reminderType models.ReminderType, from time.Time) (bool, error) {
	const op = "storage.ReminderExists"
	query := `SELECT EXISTS (
				SELECT 1 FROM billing_reminders
				WHERE user_uid = $1 AND reminder_type = $2 AND scheduled_at >= $3
			  )`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, userUID, reminderType, from).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// CreateReminder сохраняет напоминание. Повторная вставка того же
// (пользователь, тип, время) игнорируется, в этом случае возвращается false.
func (s *Storage) CreateReminder(ctx context.Context, userUID string, reminderType models.ReminderType, scheduledAt time.Time) (bool, error) {
	const op = "storage.CreateReminder"
	query := `INSERT INTO billing_reminders (user_uid, reminder_type, scheduled_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (user_uid, reminder_type, scheduled_at) DO NOTHING`
	res, err := s.DB.ExecContext(ctx, query, userUID, reminderType, scheduledAt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	ok, err := rowsChanged(res)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// FindDueReminders возвращает неотправленные напоминания, срок которых наступил,
// вместе с контактными данными и текущим состоянием подписки.
func (s *Storage) FindDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.ReminderNotice, error) {
	const op = "storage.FindDueReminders"
	query := `SELECT r.id, r.user_uid, COALESCE(s.email, ''), r.reminder_type, r.scheduled_at, s.subscription_ends_at,
			         s.renewal_canceled_at IS NOT NULL,
			         COALESCE(s.subscription_status, 'none'), COALESCE(s.subscription_tier, 'none')
			  FROM billing_reminders r
			  LEFT JOIN subscribers s ON s.user_uid = r.user_uid
			  WHERE r.scheduled_at <= $1 AND r.sent_at IS NULL
			  ORDER BY r.scheduled_at
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ReminderNotice
	for rows.Next() {
		var n models.ReminderNotice
		var endsAt sql.NullTime
		var canceled sql.NullBool
		if err := rows.Scan(&n.ReminderID, &n.UserUID, &n.Email, &n.ReminderType, &n.ScheduledAt, &endsAt,
			&canceled, &n.SubscriptionStatus, &n.SubscriptionTier); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		n.SubscriptionEndsAt = nullTime(endsAt)
		n.RenewalCanceled = canceled.Bool
		result = append(result, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkReminderSent отмечает напоминание отправленным.
// Возвращает false, если оно уже было отмечено.
func (s *Storage) MarkReminderSent(ctx context.Context, id int64, now time.Time) (bool, error) {
	const op = "storage.MarkReminderSent"
	query := `UPDATE billing_reminders SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`
	res, err := s.DB.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	ok, err := rowsChanged(res)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}
