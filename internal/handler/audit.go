package handler

import (
	"net/http"
	"strings"

	"github.com/segyhp/fee-engine/internal/domain"
	customError "github.com/segyhp/fee-engine/pkg/errors"
	"github.com/segyhp/fee-engine/pkg/response"
)

// QueryAuditLogs handles GET /audit-logs
func (h *FeeHandler) QueryAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	loc := h.service.Location()
	filter := domain.AuditFilter{
		EntityType: domain.EntityType(strings.ToUpper(q.str("entity_type"))),
		EntityID:   q.str("entity_id"),
		ActorID:    q.str("actor_id"),
		Action:     domain.AuditAction(strings.ToUpper(q.str("action"))),
		From:       q.timestamp("from", loc),
		To:         q.timestamp("to", loc),
		Limit:      q.integer("limit"),
		Offset:     q.integer("offset"),
	}
	if err := q.err(); err != nil {
		response.FromError(w, err)
		return
	}

	entries, err := h.service.Audit().Query(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, entries)
}

// AuditActionSummary handles GET /audit-logs/summary
func (h *FeeHandler) AuditActionSummary(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	loc := h.service.Location()
	from, to := q.timestamp("from", loc), q.timestamp("to", loc)
	if err := q.err(); err != nil {
		response.FromError(w, err)
		return
	}

	counts, err := h.service.Audit().ActionSummary(r.Context(), from, to)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, counts)
}

// RejectAuditMutation answers PUT, PATCH and DELETE on audit entries.
func (h *FeeHandler) RejectAuditMutation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodGet)
	response.BusinessError(w, http.StatusMethodNotAllowed, customError.WrapAuditImmutable())
}
