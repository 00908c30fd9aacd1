package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

const paymentColumns = `reference, user_uid, email, amount, currency, tier, status,
	provider_transaction_id, paid_at, created_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	var txID sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(&p.Reference, &p.UserUID, &p.Email, &p.Amount, &p.Currency, &p.Tier, &p.Status,
		&txID, &paidAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ProviderTransactionID = nullString(txID)
	p.PaidAt = nullTime(paidAt)
	return &p, nil
}

// CreatePendingPayment сохраняет платёж в статусе pending при инициализации оплаты.
func (s *Storage) CreatePendingPayment(ctx context.Context, p models.Payment) error {
	const op = "storage.CreatePendingPayment"
	query := `INSERT INTO payments (reference, user_uid, email, amount, currency, tier, status)
			  VALUES ($1, $2, $3, $4, $5, $6, 'pending')`
	_, err := s.DB.ExecContext(ctx, query,
		p.Reference, p.UserUID, strings.ToLower(strings.TrimSpace(p.Email)), p.Amount, p.Currency, p.Tier)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetPayment возвращает платёж по ссылке.
func (s *Storage) GetPayment(ctx context.Context, reference string) (*models.Payment, error) {
	const op = "storage.GetPayment"
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	p, err := scanPayment(s.DB.QueryRowContext(ctx, query, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func completePayment(ctx context.Context, ex execer, reference, txID string, paidAt time.Time) error {
	query := `UPDATE payments
			  SET status = 'success', provider_transaction_id = $2, paid_at = $3
			  WHERE reference = $1 AND status = 'pending'`
	res, err := ex.ExecContext(ctx, query, reference, txID, paidAt)
	if err != nil {
		return err
	}
	ok, err := rowsChanged(res)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrConsistencyViolation
	}
	return nil
}

// CompletePayment переводит платёж из pending в success.
// Возвращает ErrConsistencyViolation, если платёж уже не в pending.
func (s *Storage) CompletePayment(ctx context.Context, reference, txID string, paidAt time.Time) error {
	const op = "storage.CompletePayment"
	if err := completePayment(ctx, s.DB, reference, txID, paidAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FailPayment переводит платёж из pending в failed.
// Возвращает ErrConsistencyViolation, если платёж уже не в pending.
func (s *Storage) FailPayment(ctx context.Context, reference string) error {
	const op = "storage.FailPayment"
	query := `UPDATE payments SET status = 'failed' WHERE reference = $1 AND status = 'pending'`
	res, err := s.DB.ExecContext(ctx, query, reference)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ok, err := rowsChanged(res)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, models.ErrConsistencyViolation)
	}
	return nil
}

// ApplyVerifiedPayment в одной транзакции переводит платёж в success и зачисляет
// период подписчику. Если платёж уже не в pending, ничего не меняется
// и возвращается ErrConsistencyViolation, поэтому период зачисляется не более одного раза.
func (s *Storage) ApplyVerifiedPayment(ctx context.Context, txID string, paidAt time.Time, a models.Activation) (bool, error) {
	const op = "storage.ApplyVerifiedPayment"
	var credited bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := completePayment(ctx, tx, a.PaymentRef, txID, paidAt); err != nil {
			return err
		}
		var err error
		credited, err = activate(ctx, tx, a, activateWhere)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return credited, nil
}

// ApplyReconciledPayment зачисляет период неактивному подписчику по транзакции,
// найденной при сверке, и сохраняет платёж как success. Ожидающий или ранее
// отклонённый платёж с той же ссылкой переводится в success. Возвращает false, если подписчик уже активен.
func (s *Storage) ApplyReconciledPayment(ctx context.Context, p models.Payment, a models.Activation) (bool, error) {
	const op = "storage.ApplyReconciledPayment"
	var credited bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		credited, err = activate(ctx, tx, a, creditInactiveWhere)
		if err != nil || !credited {
			return err
		}
		query := `INSERT INTO payments (reference, user_uid, email, amount, currency, tier, status,
					  provider_transaction_id, paid_at)
				  VALUES ($1, $2, $3, $4, $5, $6, 'success', $7, $8)
				  ON CONFLICT (reference) DO UPDATE SET
					  status = 'success',
					  provider_transaction_id = EXCLUDED.provider_transaction_id,
					  paid_at = EXCLUDED.paid_at
				  WHERE payments.status IN ('pending', 'failed')`
		_, err = tx.ExecContext(ctx, query, p.Reference, p.UserUID, strings.ToLower(p.Email), p.Amount,
			p.Currency, p.Tier, p.ProviderTransactionID, p.PaidAt)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return credited, nil
}

// ListPaymentsForUser возвращает платежи пользователя, начиная с самых новых.
func (s *Storage) ListPaymentsForUser(ctx context.Context, userUID string) ([]*models.Payment, error) {
	const op = "storage.ListPaymentsForUser"
	query := `SELECT ` + paymentColumns + ` FROM payments
			  WHERE user_uid = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func (s *Storage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
