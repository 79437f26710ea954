package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	store *Store
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(store *Store) *EntryRepository {
	return &EntryRepository{store: store}
}

// Create inserts a ledger entry.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	st, err := workState(tx)
	if err != nil {
		return err
	}

	if _, exists := st.entries[entry.ID]; exists {
		return fmt.Errorf("memory: ledger entry %s already exists", entry.ID)
	}

	st.entries[entry.ID] = *entry
	return nil
}

// GetByID retrieves a committed ledger entry.
func (r *EntryRepository) GetByID(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	e, ok := r.store.snapshot().entries[id]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return &e, nil
}

// GetByIDs retrieves committed entries; missing ids are skipped.
func (r *EntryRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.LedgerEntry, error) {
	return collect(r.store.snapshot(), ids), nil
}

// GetByIDsForUpdate reads entries from the transaction's working copy.
func (r *EntryRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.LedgerEntry, error) {
	st, err := workState(tx)
	if err != nil {
		return nil, err
	}
	return collect(st, ids), nil
}

// UpdateBalances writes amounts if the stored version matches.
func (r *EntryRepository) UpdateBalances(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	st, err := workState(tx)
	if err != nil {
		return err
	}

	stored, ok := st.entries[entry.ID]
	if !ok {
		return domain.ErrEntryNotFound
	}

	if stored.Version != entry.Version {
		return fmt.Errorf("%w: entry %s at version %d, expected %d",
			domain.ErrConcurrentModification, entry.ID, stored.Version, entry.Version)
	}

	stored.OriginalAmount = entry.OriginalAmount
	stored.OutstandingAmount = entry.OutstandingAmount
	stored.UpdatedAt = entry.UpdatedAt
	stored.Version++
	st.entries[entry.ID] = stored

	return nil
}

// ListByCounterparty lists committed entries of a counterparty, oldest first.
func (r *EntryRepository) ListByCounterparty(ctx context.Context, counterpartyKey string, outstandingOnly bool) ([]*domain.LedgerEntry, error) {
	var out []*domain.LedgerEntry
	for _, e := range r.store.snapshot().entries {
		if e.CounterpartyKey != counterpartyKey {
			continue
		}
		if outstandingOnly && !e.OutstandingAmount.IsPositive() {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sortEntries(out)
	return out, nil
}

// ListAll lists every committed entry, oldest first.
func (r *EntryRepository) ListAll(ctx context.Context) ([]*domain.LedgerEntry, error) {
	snap := r.store.snapshot()
	out := make([]*domain.LedgerEntry, 0, len(snap.entries))
	for _, e := range snap.entries {
		e := e
		out = append(out, &e)
	}
	sortEntries(out)
	return out, nil
}

func collect(st *state, ids []string) []*domain.LedgerEntry {
	out := make([]*domain.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := st.entries[id]; ok {
			out = append(out, &e)
		}
	}
	return out
}

func sortEntries(entries []*domain.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].ID < entries[j].ID
	})
}
