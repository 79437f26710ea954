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

const entryColumns = `id, counterparty_key, counterparty_type, kind, entry_date, details,
	original_amount, outstanding_amount, version, created_at, updated_at`

const (
	createEntrySQL = `INSERT INTO ledger_entries (` + entryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getEntryByIDSQL = `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`

	getEntriesByIDsSQL = `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = ANY($1) ORDER BY id`

	getEntriesByIDsForUpdateSQL = `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	updateEntryBalancesSQL = `UPDATE ledger_entries
SET original_amount = $2, outstanding_amount = $3, updated_at = $4, version = version + 1
WHERE id = $1 AND version = $5`

	listEntriesByCounterpartySQL = `SELECT ` + entryColumns + ` FROM ledger_entries
WHERE counterparty_key = $1 AND (NOT $2 OR outstanding_amount > 0)
ORDER BY entry_date, id`

	listEntriesSQL = `SELECT ` + entryColumns + ` FROM ledger_entries ORDER BY entry_date, id`
)

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	db querier
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return newEntryRepository(pool)
}

func newEntryRepository(db querier) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create inserts a new ledger entry.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	details, err := domain.MarshalEntryDetails(entry.Details)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, createEntrySQL,
		entry.ID,
		entry.CounterpartyKey,
		string(entry.CounterpartyType),
		string(entry.Kind()),
		entry.Date,
		details,
		decimalToNumeric(entry.OriginalAmount),
		decimalToNumeric(entry.OutstandingAmount),
		entry.Version,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// GetByID retrieves a ledger entry by ID.
func (r *EntryRepository) GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, getEntryByIDSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}

	return entry, nil
}

// GetByIDs retrieves entries without locking. Missing ids are skipped.
func (r *EntryRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.LedgerEntry, error) {
	return r.query(ctx, r.db, getEntriesByIDsSQL, ids)
}

// GetByIDsForUpdate locks the entries with FOR UPDATE in id order.
func (r *EntryRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.LedgerEntry, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	return r.query(ctx, q, getEntriesByIDsForUpdateSQL, ids)
}

// UpdateBalances writes the amounts of entry guarded by its version.
func (r *EntryRepository) UpdateBalances(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, updateEntryBalancesSQL,
		entry.ID,
		decimalToNumeric(entry.OriginalAmount),
		decimalToNumeric(entry.OutstandingAmount),
		entry.UpdatedAt,
		entry.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update ledger entry %s: %w", entry.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s at version %d", domain.ErrConcurrentModification, entry.ID, entry.Version)
	}

	return nil
}

// ListByCounterparty lists entries of a counterparty oldest first.
func (r *EntryRepository) ListByCounterparty(ctx context.Context, counterpartyKey string, outstandingOnly bool) ([]*domain.LedgerEntry, error) {
	return r.query(ctx, r.db, listEntriesByCounterpartySQL, counterpartyKey, outstandingOnly)
}

// ListAll lists every entry oldest first.
func (r *EntryRepository) ListAll(ctx context.Context) ([]*domain.LedgerEntry, error) {
	return r.query(ctx, r.db, listEntriesSQL)
}

func (r *EntryRepository) query(ctx context.Context, q querier, sql string, args ...any) ([]*domain.LedgerEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		e                     domain.LedgerEntry
		counterpartyType      string
		kind                  string
		details               []byte
		original, outstanding pgtype.Numeric
		date                  time.Time
	)

	err := row.Scan(
		&e.ID,
		&e.CounterpartyKey,
		&counterpartyType,
		&kind,
		&date,
		&details,
		&original,
		&outstanding,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Details, err = domain.UnmarshalEntryDetails(domain.EntryKind(kind), details)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.ID, err)
	}

	e.CounterpartyType = domain.CounterpartyType(counterpartyType)
	e.Date = date.UTC()
	e.OriginalAmount = numericToDecimal(original)
	e.OutstandingAmount = numericToDecimal(outstanding)

	return &e, nil
}
