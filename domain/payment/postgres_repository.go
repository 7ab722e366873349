package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const paymentColumns = `id, amount, phone_number, external_reference, COALESCE(checkout_request_id, ''),
	status, COALESCE(mpesa_receipt, ''), COALESCE(result_code, ''), created_at, updated_at`

type postgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRepository(db *sql.DB) IRepository {
	return &postgresRepository{db: db, now: time.Now}
}

func (r *postgresRepository) Insert(ctx context.Context, payment *Entity) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO payments
			(amount, phone_number, external_reference, checkout_request_id, status,
			 mpesa_receipt, result_code, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)
		RETURNING id`,
		payment.Amount,
		payment.PhoneNumber,
		payment.ExternalReference,
		payment.CheckoutRequestID,
		string(payment.Status),
		payment.MpesaReceipt,
		payment.ResultCode,
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	if err := row.Scan(&payment.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *postgresRepository) FindByReference(ctx context.Context, key string) (*Entity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE external_reference = $1 OR checkout_request_id = $1
		LIMIT 1`,
		key,
	)
	return scanPayment(row)
}

// ApplyTerminalStatus relies on the status predicate of the UPDATE: of two
// concurrent callbacks only one sees a PENDING row.
func (r *postgresRepository) ApplyTerminalStatus(
	ctx context.Context, checkoutRequestID string, status Status, receipt, resultCode string,
) (*Entity, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE payments
		SET status = $2, mpesa_receipt = NULLIF($3, ''), result_code = NULLIF($4, ''), updated_at = $5
		WHERE checkout_request_id = $1 AND status = $6
		RETURNING `+paymentColumns,
		checkoutRequestID,
		string(status),
		receipt,
		resultCode,
		r.now().UTC(),
		string(StatusPending),
	)

	payment, err := scanPayment(row)
	if err == nil {
		return payment, true, nil
	}
	if !errors.Is(err, ErrPaymentNotFound) {
		return nil, false, err
	}

	existing, err := r.findByCheckoutID(ctx, checkoutRequestID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *postgresRepository) findByCheckoutID(ctx context.Context, checkoutRequestID string) (*Entity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE checkout_request_id = $1`,
		checkoutRequestID,
	)
	return scanPayment(row)
}

func scanPayment(row *sql.Row) (*Entity, error) {
	var (
		p      Entity
		status string
	)

	if err := row.Scan(
		&p.ID,
		&p.Amount,
		&p.PhoneNumber,
		&p.ExternalReference,
		&p.CheckoutRequestID,
		&status,
		&p.MpesaReceipt,
		&p.ResultCode,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	p.Status = Status(status)
	return &p, nil
}
