package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/internal/domain"
	"github.com/segyhp/fee-engine/internal/service"
	customError "github.com/segyhp/fee-engine/pkg/errors"
	"github.com/segyhp/fee-engine/pkg/response"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorName = "X-Actor-Name"
	headerActorRole = "X-Actor-Role"

	maxBodyBytes = 1 << 20
)

// FeeHandler exposes the accounting service over HTTP. Callers are
// authenticated upstream and identify themselves with the X-Actor-* headers.
type FeeHandler struct {
	service *service.AccountingService
	logger  *zap.Logger
}

func NewFeeHandler(service *service.AccountingService, logger *zap.Logger) *FeeHandler {
	return &FeeHandler{
		service: service,
		logger:  logger.Named("http"),
	}
}

func actorFrom(r *http.Request) domain.Actor {
	return domain.Actor{
		ID:   strings.TrimSpace(r.Header.Get(headerActorID)),
		Name: strings.TrimSpace(r.Header.Get(headerActorName)),
		Role: strings.TrimSpace(r.Header.Get(headerActorRole)),
	}
}

func requestContextFrom(r *http.Request) domain.RequestContext {
	ip := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return domain.RequestContext{IPAddress: ip, UserAgent: r.UserAgent()}
}

// decode reads a JSON body into dst. Unknown fields are rejected so typos in
// amounts or codes do not pass silently.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.FromError(w, customError.WrapValidation("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return decode(w, r, dst)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		response.FromError(w, customError.WrapValidation("invalid id",
			customError.FieldError{Field: name, Message: "must be a UUID"}))
		return uuid.Nil, false
	}
	return id, true
}

// query reads typed query parameters and collects their parse failures.
type query struct {
	values url.Values
	fields []customError.FieldError
}

func newQuery(r *http.Request) *query {
	return &query{values: r.URL.Query()}
}

func (q *query) str(key string) string {
	if v := q.values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (q *query) integer(key string) int {
	raw := q.str(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.fields = append(q.fields, customError.FieldError{Field: key, Message: "must be an integer"})
	}
	return n
}

func (q *query) boolean(key string) bool {
	raw := q.str(key)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.fields = append(q.fields, customError.FieldError{Field: key, Message: "must be true or false"})
	}
	return b
}

func (q *query) id(key string) *uuid.UUID {
	raw := q.str(key)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		q.fields = append(q.fields, customError.FieldError{Field: key, Message: "must be a UUID"})
		return nil
	}
	return &id
}

// timestamp accepts RFC 3339 timestamps or plain dates, which are read as
// midnight in loc.
func (q *query) timestamp(key string, loc *time.Location) *time.Time {
	raw := q.str(key)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		q.fields = append(q.fields, customError.FieldError{Field: key, Message: "must be a date or RFC 3339 timestamp"})
		return nil
	}
	return &t
}

// err reports parse failures, if any, as one validation error.
func (q *query) err() error {
	if len(q.fields) == 0 {
		return nil
	}
	return customError.WrapValidation("invalid query parameters", q.fields...)
}

func (h *FeeHandler) ledgerFilter(q *query) domain.LedgerFilter {
	return domain.LedgerFilter{
		StudentID:     q.str("student_id"),
		AcademicYear:  q.str("academic_year"),
		Semester:      q.integer("semester"),
		StructureID:   q.id("structure_id"),
		FeeStatus:     domain.FeeStatus(strings.ToUpper(q.str("fee_status"))),
		AgingBucket:   domain.AgingBucket(strings.ToUpper(q.str("aging_bucket"))),
		IncludeClosed: q.boolean("include_closed"),
		Limit:         q.integer("limit"),
		Offset:        q.integer("offset"),
	}
}

// asOf is the as_of query parameter, defaulting to the service clock.
func (h *FeeHandler) asOf(q *query) time.Time {
	if t := q.timestamp("as_of", h.service.Location()); t != nil {
		return *t
	}
	return h.service.Now()
}
