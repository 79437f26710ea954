package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

const paymentColumns = `id, payment_id, counterparty_key, counterparty_type, payment_type, method, details,
	payment_date, amount, discount, notes, created_at, updated_at`

const (
	createPaymentSQL = `INSERT INTO payments (` + paymentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	updatePaymentSQL = `UPDATE payments
SET counterparty_type = $2, payment_type = $3, method = $4, details = $5, payment_date = $6,
	amount = $7, discount = $8, notes = $9, updated_at = $10
WHERE id = $1`

	deletePaymentSQL = `DELETE FROM payments WHERE id = $1`

	getPaymentByIDSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	getPaymentByIDForUpdateSQL = getPaymentByIDSQL + ` FOR UPDATE`

	listPaymentIDsSQL = `SELECT payment_id FROM payments WHERE payment_id LIKE $1 || '%'`

	listPaymentsByCounterpartySQL = `SELECT ` + paymentColumns + ` FROM payments
WHERE counterparty_key = $1 ORDER BY payment_date, payment_id`

	listPaymentsSQL = `SELECT ` + paymentColumns + ` FROM payments ORDER BY payment_date, payment_id`

	createAllocationSQL = `INSERT INTO payment_allocations (payment_id, entry_id, position, amount_applied, discount_applied)
VALUES ($1, $2, $3, $4, $5)`

	deleteAllocationsSQL = `DELETE FROM payment_allocations WHERE payment_id = $1`

	listAllocationsSQL = `SELECT payment_id, entry_id, amount_applied, discount_applied
FROM payment_allocations WHERE payment_id = ANY($1) ORDER BY payment_id, position`
)

// PaymentRepository implements usecase.PaymentRepository. Allocations live
// in their own table and are written with the payment row.
type PaymentRepository struct {
	db querier
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return newPaymentRepository(pool)
}

func newPaymentRepository(db querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment and its allocations.
func (r *PaymentRepository) Create(ctx context.Context, tx usecase.Transaction, payment *domain.Payment) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	details, err := domain.MarshalPaymentDetails(payment.Details)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, createPaymentSQL,
		payment.ID,
		payment.PaymentID,
		payment.CounterpartyKey,
		string(payment.CounterpartyType),
		string(payment.Type),
		string(payment.Method()),
		details,
		payment.Date,
		decimalToNumeric(payment.Amount),
		decimalToNumeric(payment.Discount),
		payment.Notes,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment %s: %w", payment.PaymentID, err)
	}

	return insertAllocations(ctx, q, payment)
}

// Update rewrites a payment and replaces its allocations.
func (r *PaymentRepository) Update(ctx context.Context, tx usecase.Transaction, payment *domain.Payment) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	details, err := domain.MarshalPaymentDetails(payment.Details)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, updatePaymentSQL,
		payment.ID,
		string(payment.CounterpartyType),
		string(payment.Type),
		string(payment.Method()),
		details,
		payment.Date,
		decimalToNumeric(payment.Amount),
		decimalToNumeric(payment.Discount),
		payment.Notes,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment %s: %w", payment.PaymentID, err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}

	if _, err := q.Exec(ctx, deleteAllocationsSQL, payment.ID); err != nil {
		return fmt.Errorf("failed to clear allocations of %s: %w", payment.PaymentID, err)
	}

	return insertAllocations(ctx, q, payment)
}

// Delete removes a payment; its allocations cascade.
func (r *PaymentRepository) Delete(ctx context.Context, tx usecase.Transaction, id string) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, deletePaymentSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}

	return nil
}

// GetByID retrieves a payment with its allocations.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.getOne(ctx, r.db, getPaymentByIDSQL, id)
}

// GetByIDForUpdate locks the payment row.
func (r *PaymentRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Payment, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	return r.getOne(ctx, q, getPaymentByIDForUpdateSQL, id)
}

// ListPaymentIDs returns the human-readable IDs starting with prefix.
func (r *PaymentRepository) ListPaymentIDs(ctx context.Context, tx usecase.Transaction, prefix string) ([]string, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, listPaymentIDsSQL, prefix)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListByCounterparty lists payments of one counterparty.
func (r *PaymentRepository) ListByCounterparty(ctx context.Context, counterpartyKey string) ([]*domain.Payment, error) {
	return r.list(ctx, listPaymentsByCounterpartySQL, counterpartyKey)
}

// ListAll lists every payment.
func (r *PaymentRepository) ListAll(ctx context.Context) ([]*domain.Payment, error) {
	return r.list(ctx, listPaymentsSQL)
}

func (r *PaymentRepository) getOne(ctx context.Context, q querier, sql, id string) (*domain.Payment, error) {
	payment, err := scanPayment(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	if err := loadAllocations(ctx, q, []*domain.Payment{payment}); err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.Payment, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		payments = append(payments, p)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := loadAllocations(ctx, r.db, payments); err != nil {
		return nil, err
	}

	return payments, nil
}

func insertAllocations(ctx context.Context, q querier, payment *domain.Payment) error {
	for i, a := range payment.Allocations {
		_, err := q.Exec(ctx, createAllocationSQL,
			payment.ID,
			a.EntryID,
			i,
			decimalToNumeric(a.AmountApplied),
			decimalToNumeric(a.DiscountApplied),
		)
		if err != nil {
			return fmt.Errorf("failed to insert allocation of %s to %s: %w", payment.PaymentID, a.EntryID, err)
		}
	}
	return nil
}

func loadAllocations(ctx context.Context, q querier, payments []*domain.Payment) error {
	if len(payments) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Payment, len(payments))
	ids := make([]string, 0, len(payments))
	for _, p := range payments {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := q.Query(ctx, listAllocationsSQL, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			paymentID        string
			a                domain.Allocation
			amount, discount pgtype.Numeric
		)

		if err := rows.Scan(&paymentID, &a.EntryID, &amount, &discount); err != nil {
			return err
		}

		a.AmountApplied = numericToDecimal(amount)
		a.DiscountApplied = numericToDecimal(discount)

		if p, ok := byID[paymentID]; ok {
			p.Allocations = append(p.Allocations, a)
		}
	}

	return rows.Err()
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p                domain.Payment
		counterpartyType string
		paymentType      string
		method           string
		details          []byte
		amount, discount pgtype.Numeric
		date             time.Time
	)

	err := row.Scan(
		&p.ID,
		&p.PaymentID,
		&p.CounterpartyKey,
		&counterpartyType,
		&paymentType,
		&method,
		&details,
		&date,
		&amount,
		&discount,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Details, err = domain.UnmarshalPaymentDetails(domain.PaymentMethod(method), details)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", p.PaymentID, err)
	}

	p.CounterpartyType = domain.CounterpartyType(counterpartyType)
	p.Type = domain.PaymentType(paymentType)
	p.Date = date.UTC()
	p.Amount = numericToDecimal(amount)
	p.Discount = numericToDecimal(discount)

	return &p, nil
}
