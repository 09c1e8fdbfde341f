package handler

import (
	"net/http"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/pkg/response"
)

// CreateLedger handles POST /ledgers
func (h *FeeHandler) CreateLedger(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLedgerRequest
	if !decode(w, r, &req) {
		return
	}

	ledger, err := h.service.CreateLedger(r.Context(), &req, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, ledger)
}

// ListLedgers handles GET /ledgers
func (h *FeeHandler) ListLedgers(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter := h.ledgerFilter(q)
	if err := q.err(); err != nil {
		response.FromError(w, err)
		return
	}

	ledgers, err := h.service.ListLedgers(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, ledgers)
}

// GetLedger handles GET /ledgers/{id}
func (h *FeeHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ledger, err := h.service.GetLedger(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, ledger)
}

// GetLedgerSummary handles GET /ledgers/{id}/summary
func (h *FeeHandler) GetLedgerSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.service.GetLedgerSummary(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, summary)
}

// GetStatement handles GET /ledgers/{id}/statement
func (h *FeeHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	statement, err := h.service.GetStatement(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, statement)
}

// CloseLedger handles POST /ledgers/{id}/close
func (h *FeeHandler) CloseLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.CloseLedgerRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	ledger, err := h.service.CloseLedger(r.Context(), id, &req, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, ledger)
}

// RefreshLedger handles POST /ledgers/{id}/refresh
func (h *FeeHandler) RefreshLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	ledger, err := h.service.RefreshLedger(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, ledger)
}
