package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/iho/tradebook/internal/adapter/http/dto"
	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

// EntryService is the part of usecase.EntryUseCase the handler needs.
type EntryService interface {
	CreateEntry(ctx context.Context, input usecase.CreateEntryInput) (*domain.LedgerEntry, error)
	GetEntry(ctx context.Context, id string) (*domain.LedgerEntry, error)
	ListEntriesByCounterparty(ctx context.Context, counterpartyKey string, outstandingOnly bool) ([]*domain.LedgerEntry, error)
	AdjustEntry(ctx context.Context, id string, delta decimal.Decimal, reason string) (*domain.LedgerEntry, error)
}

// EntryHandler handles ledger entry HTTP requests.
type EntryHandler struct {
	entryUC EntryService
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(entryUC EntryService) *EntryHandler {
	return &EntryHandler{entryUC: entryUC}
}

// Create books a purchase or sale.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeDomainError(w, "invalid entry", err)
		return
	}

	entry, err := h.entryUC.CreateEntry(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.EntryFromDomain(entry))
}

// Get retrieves an entry by ID.
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "entry")
	if !ok {
		return
	}

	entry, err := h.entryUC.GetEntry(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntryFromDomain(entry))
}

// ListByCounterparty lists the entries of a counterparty. With
// ?outstanding=true settled entries are left out.
func (h *EntryHandler) ListByCounterparty(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing counterparty key", "")
		return
	}

	outstandingOnly := false
	if v := r.URL.Query().Get("outstanding"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'outstanding' parameter", err.Error())
			return
		}
		outstandingOnly = b
	}

	entries, err := h.entryUC.ListEntriesByCounterparty(r.Context(), key, outstandingOnly)
	if err != nil {
		writeDomainError(w, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntriesFromDomain(entries))
}

// Adjust corrects the amount of an entry.
func (h *EntryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "entry")
	if !ok {
		return
	}

	var req dto.AdjustEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	delta, err := req.Parse()
	if err != nil {
		writeDomainError(w, "invalid adjustment", err)
		return
	}

	entry, err := h.entryUC.AdjustEntry(r.Context(), id, delta, req.Reason)
	if err != nil {
		writeDomainError(w, "failed to adjust entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntryFromDomain(entry))
}
