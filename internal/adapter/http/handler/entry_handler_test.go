package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/tradebook/internal/adapter/http/dto"
	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

type entryServiceStub struct {
	createFn func(ctx context.Context, input usecase.CreateEntryInput) (*domain.LedgerEntry, error)
	getFn    func(ctx context.Context, id string) (*domain.LedgerEntry, error)
	listFn   func(ctx context.Context, key string, outstandingOnly bool) ([]*domain.LedgerEntry, error)
	adjustFn func(ctx context.Context, id string, delta decimal.Decimal, reason string) (*domain.LedgerEntry, error)
}

func (s *entryServiceStub) CreateEntry(ctx context.Context, input usecase.CreateEntryInput) (*domain.LedgerEntry, error) {
	return s.createFn(ctx, input)
}

func (s *entryServiceStub) GetEntry(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	return s.getFn(ctx, id)
}

func (s *entryServiceStub) ListEntriesByCounterparty(ctx context.Context, key string, outstandingOnly bool) ([]*domain.LedgerEntry, error) {
	return s.listFn(ctx, key, outstandingOnly)
}

func (s *entryServiceStub) AdjustEntry(ctx context.Context, id string, delta decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
	return s.adjustFn(ctx, id, delta, reason)
}

const (
	entryID1       = "01ARZ3NDEKTSV4RRFFQ69G5FA1"
	entryID2       = "01ARZ3NDEKTSV4RRFFQ69G5FA2"
	missingEntryID = "01ARZ3NDEKTSV4RRFFQ69G5FA9"
	paymentID1     = "01ARZ3NDEKTSV4RRFFQ69G5FB1"
	gonePaymentID  = "01ARZ3NDEKTSV4RRFFQ69G5FB9"
)

func testEntry(id string) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:                id,
		CounterpartyKey:   "ramesh|1",
		CounterpartyType:  domain.CounterpartySupplier,
		Details:           domain.PurchaseDetails{GrossWeight: decimal.NewFromInt(10), Rate: decimal.NewFromInt(10)},
		OriginalAmount:    decimal.NewFromInt(100),
		OutstandingAmount: decimal.NewFromInt(100),
	}
}

// serveWithRoute runs h behind a chi route so URL parameters resolve.
func serveWithRoute(method, pattern, target string, body []byte, h http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	return rec
}

func TestEntryHandler_Create_Success(t *testing.T) {
	var captured usecase.CreateEntryInput
	handler := NewEntryHandler(&entryServiceStub{
		createFn: func(ctx context.Context, input usecase.CreateEntryInput) (*domain.LedgerEntry, error) {
			captured = input
			return testEntry("e1"), nil
		},
	})

	body, _ := json.Marshal(dto.CreateEntryRequest{
		CounterpartyName: "Ramesh",
		Contact:          "1",
		CounterpartyType: "supplier",
		Details:          []byte(`{"gross_weight":"10","rate":"10"}`),
	})

	req := httptest.NewRequest(http.MethodPost, "/entries", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if captured.CounterpartyName != "Ramesh" || captured.Details.Kind() != domain.EntryKindPurchase {
		t.Fatalf("expected input to match request, got %+v", captured)
	}

	var resp dto.EntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "e1" || resp.OutstandingAmount != "100" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestEntryHandler_Create_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", "{bad json", http.StatusBadRequest},
		{"unknown field", `{"counterparty_type":"supplier","colour":"red"}`, http.StatusBadRequest},
		{"unknown counterparty type", `{"counterparty_type":"broker","details":{}}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewEntryHandler(&entryServiceStub{
				createFn: func(ctx context.Context, input usecase.CreateEntryInput) (*domain.LedgerEntry, error) {
					t.Fatal("CreateEntry should not be called")
					return nil, nil
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/entries", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			handler.Create(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestEntryHandler_Get_NotFound(t *testing.T) {
	handler := NewEntryHandler(&entryServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.LedgerEntry, error) {
			return nil, domain.ErrEntryNotFound
		},
	})

	rec := serveWithRoute(http.MethodGet, "/entries/{id}", "/entries/"+missingEntryID, nil, handler.Get)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if resp.Message != domain.ErrEntryNotFound.Error() {
		t.Fatalf("expected not found message, got %+v", resp)
	}
}

func TestEntryHandler_ListByCounterparty(t *testing.T) {
	var gotKey string
	var gotOutstanding bool
	handler := NewEntryHandler(&entryServiceStub{
		listFn: func(ctx context.Context, key string, outstandingOnly bool) ([]*domain.LedgerEntry, error) {
			gotKey, gotOutstanding = key, outstandingOnly
			return []*domain.LedgerEntry{testEntry("e1"), testEntry("e2")}, nil
		},
	})

	rec := serveWithRoute(http.MethodGet, "/counterparties/{key}/entries",
		"/counterparties/ramesh%7C1/entries?outstanding=true", nil, handler.ListByCounterparty)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotKey != "ramesh|1" || !gotOutstanding {
		t.Fatalf("unexpected arguments key=%q outstanding=%v", gotKey, gotOutstanding)
	}

	var resp []dto.EntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || len(resp) != 2 {
		t.Fatalf("unexpected response %s err=%v", rec.Body.String(), err)
	}

	rec = serveWithRoute(http.MethodGet, "/counterparties/{key}/entries",
		"/counterparties/ramesh%7C1/entries?outstanding=maybe", nil, handler.ListByCounterparty)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad flag, got %d", rec.Code)
	}
}

func TestEntryHandler_Adjust(t *testing.T) {
	var gotDelta decimal.Decimal
	var gotReason string
	handler := NewEntryHandler(&entryServiceStub{
		adjustFn: func(ctx context.Context, id string, delta decimal.Decimal, reason string) (*domain.LedgerEntry, error) {
			gotDelta, gotReason = delta, reason
			if delta.IsNegative() {
				return nil, domain.ErrInvalidAdjustment
			}
			return testEntry(id), nil
		},
	})

	rec := serveWithRoute(http.MethodPost, "/entries/{id}/adjustments", "/entries/"+entryID1+"/adjustments",
		[]byte(`{"delta":"25","reason":"weighbridge correction"}`), handler.Adjust)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !gotDelta.Equal(decimal.NewFromInt(25)) || gotReason != "weighbridge correction" {
		t.Fatalf("unexpected arguments delta=%s reason=%q", gotDelta, gotReason)
	}

	rec = serveWithRoute(http.MethodPost, "/entries/{id}/adjustments", "/entries/"+entryID1+"/adjustments",
		[]byte(`{"delta":"-500"}`), handler.Adjust)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	rec = serveWithRoute(http.MethodPost, "/entries/{id}/adjustments", "/entries/"+entryID1+"/adjustments",
		[]byte(`{"delta":"ten"}`), handler.Adjust)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an unparsable delta, got %d", rec.Code)
	}
}

func TestEntryHandler_RejectsMalformedID(t *testing.T) {
	handler := NewEntryHandler(&entryServiceStub{
		getFn: func(ctx context.Context, id string) (*domain.LedgerEntry, error) {
			t.Fatalf("service should not be called for %q", id)
			return nil, nil
		},
	})

	rec := serveWithRoute(http.MethodGet, "/entries/{id}", "/entries/not-a-ulid", nil, handler.Get)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rec.Code, rec.Body.String())
	}
}
