package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/pkg/response"
)

// AgingReport handles GET /reports/aging
func (h *FeeHandler) AgingReport(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter, asOf := h.ledgerFilter(q), h.asOf(q)
	if err := q.err(); err != nil {
		response.FromError(w, err)
		return
	}

	summary, err := h.service.AgingSummary(r.Context(), filter, asOf)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, summary)
}

// CollectionReport handles GET /reports/collection
func (h *FeeHandler) CollectionReport(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter, asOf := h.ledgerFilter(q), h.asOf(q)
	if err := q.err(); err != nil {
		response.FromError(w, err)
		return
	}

	summary, err := h.service.CollectionSummary(r.Context(), filter, asOf)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, summary)
}

// RunOverdueSweep handles POST /maintenance/overdue-sweep. The scheduler runs
// the same sweep nightly; this endpoint is for backfills and manual reruns.
func (h *FeeHandler) RunOverdueSweep(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	asOf := h.asOf(q)
	if err := q.err(); err != nil {
		response.FromError(w, err)
		return
	}

	result, err := h.service.UpdateOverdueStatus(r.Context(), asOf)
	if err != nil {
		response.FromError(w, err)
		return
	}
	h.logger.Info("manual overdue sweep",
		zap.String("actor", actorFrom(r).ID),
		zap.Int("scanned", result.Scanned),
		zap.Int("updated", result.Updated))
	response.Success(w, result)
}
