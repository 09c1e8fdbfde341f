package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/pkg/response"
)

// PaymentResponse is returned after a payment or reversal: the new receipt
// and the ledger as it stands afterwards.
type PaymentResponse struct {
	Receipt *domain.FeeReceipt       `json:"receipt"`
	Ledger  *domain.StudentFeeLedger `json:"ledger"`
}

// ProcessReceipt handles POST /ledgers/{id}/receipts
func (h *FeeHandler) ProcessReceipt(w http.ResponseWriter, r *http.Request) {
	ledgerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.RecordPaymentRequest
	if !decode(w, r, &req) {
		return
	}

	receipt, ledger, err := h.service.ProcessReceipt(r.Context(), ledgerID, &req, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, PaymentResponse{Receipt: receipt, Ledger: ledger})
}

// ListReceipts handles GET /ledgers/{id}/receipts
func (h *FeeHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	ledgerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	receipts, err := h.service.ListReceipts(r.Context(), ledgerID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, receipts)
}

// GetReceipt handles GET /receipts/{id}
func (h *FeeHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	receipt, err := h.service.GetReceipt(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, receipt)
}

// GetReceiptByNumber handles GET /receipts/number/{number}
func (h *FeeHandler) GetReceiptByNumber(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.service.GetReceiptByNumber(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, receipt)
}

// ReverseReceipt handles POST /receipts/{id}/reverse
func (h *FeeHandler) ReverseReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.ReverseReceiptRequest
	if !decode(w, r, &req) {
		return
	}

	reversal, ledger, err := h.service.ReverseReceipt(r.Context(), id, &req, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, PaymentResponse{Receipt: reversal, Ledger: ledger})
}
