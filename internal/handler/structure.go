package handler

import (
	"net/http"
	"strings"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/pkg/response"
)

// CreateStructure handles POST /fee-structures
func (h *FeeHandler) CreateStructure(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateStructureRequest
	if !decode(w, r, &req) {
		return
	}

	structure, err := h.service.CreateStructure(r.Context(), &req, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, structure)
}

// ListStructures handles GET /fee-structures
func (h *FeeHandler) ListStructures(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter := domain.StructureFilter{
		AcademicYear: q.str("academic_year"),
		Semester:     q.integer("semester"),
		Department:   q.str("department"),
		Course:       q.str("course"),
		Status:       domain.StructureStatus(strings.ToLower(q.str("status"))),
	}
	if err := q.err(); err != nil {
		response.FromError(w, err)
		return
	}

	structures, err := h.service.ListStructures(r.Context(), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, structures)
}

// GetStructure handles GET /fee-structures/{id}
func (h *FeeHandler) GetStructure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	structure, err := h.service.GetStructure(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, structure)
}

// UpdateFeeHeads handles PUT /fee-structures/{id}/fee-heads
func (h *FeeHandler) UpdateFeeHeads(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateFeeHeadsRequest
	if !decode(w, r, &req) {
		return
	}

	structure, err := h.service.UpdateFeeHeads(r.Context(), id, &req, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, structure)
}

// ApproveStructure handles POST /fee-structures/{id}/approve
func (h *FeeHandler) ApproveStructure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.ApproveStructureRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	structure, err := h.service.ApproveStructure(r.Context(), id, &req, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, structure)
}

// ActivateStructure handles POST /fee-structures/{id}/activate
func (h *FeeHandler) ActivateStructure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	structure, err := h.service.ActivateStructure(r.Context(), id, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, structure)
}

// ArchiveStructure handles POST /fee-structures/{id}/archive
func (h *FeeHandler) ArchiveStructure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	structure, err := h.service.ArchiveStructure(r.Context(), id, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, structure)
}

// LockStructure handles POST /fee-structures/{id}/lock
func (h *FeeHandler) LockStructure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.LockStructureRequest
	if !decode(w, r, &req) {
		return
	}

	structure, err := h.service.LockStructure(r.Context(), id, &req, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, structure)
}

// CreateNewVersion handles POST /fee-structures/{id}/versions
func (h *FeeHandler) CreateNewVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	structure, err := h.service.CreateNewVersion(r.Context(), id, actorFrom(r), requestContextFrom(r))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, structure)
}
