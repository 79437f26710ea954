package handler

import (
	"context"
	"net/http"

	"github.com/iho/tradebook/internal/adapter/http/dto"
	"github.com/iho/tradebook/internal/domain"
	"github.com/iho/tradebook/internal/usecase"
)

// PaymentService is the part of usecase.PaymentUseCase the handler needs.
type PaymentService interface {
	Preview(ctx context.Context, input usecase.PaymentInput) (*usecase.PaymentPreview, error)
	CreatePayment(ctx context.Context, input usecase.PaymentInput) (*domain.Payment, error)
	EditPayment(ctx context.Context, id string, input usecase.PaymentInput) (*domain.Payment, error)
	DeletePayment(ctx context.Context, id string) error
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	ListPaymentsByCounterparty(ctx context.Context, counterpartyKey string) ([]*domain.Payment, error)
}

// PaymentHandler handles payment HTTP requests.
type PaymentHandler struct {
	paymentUC PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentUC PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentUC: paymentUC}
}

func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request) (usecase.PaymentInput, bool) {
	var req dto.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return usecase.PaymentInput{}, false
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeDomainError(w, "invalid payment", err)
		return usecase.PaymentInput{}, false
	}

	return input, true
}

// Preview shows the allocation a payment would produce without saving it.
func (h *PaymentHandler) Preview(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r)
	if !ok {
		return
	}

	preview, err := h.paymentUC.Preview(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to preview payment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PreviewFromUseCase(preview))
}

// Create records a payment.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r)
	if !ok {
		return
	}

	payment, err := h.paymentUC.CreatePayment(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PaymentFromDomain(payment))
}

// Update reverses a payment and applies it again with new input.
func (h *PaymentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "payment")
	if !ok {
		return
	}

	input, ok := h.decode(w, r)
	if !ok {
		return
	}

	payment, err := h.paymentUC.EditPayment(r.Context(), id, input)
	if err != nil {
		writeDomainError(w, "failed to edit payment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentFromDomain(payment))
}

// Delete reverses and removes a payment.
func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "payment")
	if !ok {
		return
	}

	if err := h.paymentUC.DeletePayment(r.Context(), id); err != nil {
		writeDomainError(w, "failed to delete payment", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Get retrieves a payment by ID.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "payment")
	if !ok {
		return
	}

	payment, err := h.paymentUC.GetPayment(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get payment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentFromDomain(payment))
}

// ListByCounterparty lists the payments of a counterparty.
func (h *PaymentHandler) ListByCounterparty(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing counterparty key", "")
		return
	}

	payments, err := h.paymentUC.ListPaymentsByCounterparty(r.Context(), key)
	if err != nil {
		writeDomainError(w, "failed to list payments", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PaymentsFromDomain(payments))
}
