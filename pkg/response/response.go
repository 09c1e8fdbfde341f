package response

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	customError "github.com/segyhp/fee-engine/pkg/errors"
)

type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type ErrorResponse struct {
	Success   bool                     `json:"success"`
	Code      string                   `json:"code,omitempty"`
	Error     string                   `json:"error"`
	Message   string                   `json:"message,omitempty"`
	Fields    []customError.FieldError `json:"fields,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	response := Response{
		Success:   statusCode >= 200 && statusCode < 300,
		Data:      data,
		Timestamp: time.Now(),
	}

	writeJSON(w, statusCode, response)
}

// Success sends a successful JSON response
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// Created sends a created JSON response
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// Error sends an error JSON response
func Error(w http.ResponseWriter, statusCode int, message string, err error) {
	response := ErrorResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now(),
	}

	if err != nil {
		response.Error = err.Error()
	}

	writeJSON(w, statusCode, response)
}

// FromError translates err into a response. Business errors keep their code
// and field details; internal failures are reported without the cause.
func FromError(w http.ResponseWriter, err error) {
	be, ok := customError.As(err)
	if !ok {
		zap.L().Error("unhandled error", zap.Error(err))
		Error(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	BusinessError(w, StatusFor(be.Kind), be)
}

// BusinessError sends be with an explicit status.
func BusinessError(w http.ResponseWriter, statusCode int, be *customError.BusinessError) {
	response := ErrorResponse{
		Success:   false,
		Code:      be.Code,
		Error:     be.Message,
		Fields:    be.Fields,
		Timestamp: time.Now(),
	}
	if statusCode >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("code", be.Code), zap.Error(be))
	}

	writeJSON(w, statusCode, response)
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(kind customError.Kind) int {
	switch kind {
	case customError.KindValidation:
		return http.StatusBadRequest
	case customError.KindNotFound:
		return http.StatusNotFound
	case customError.KindConflict:
		return http.StatusConflict
	case customError.KindState:
		return http.StatusUnprocessableEntity
	case customError.KindTransaction:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("error encoding JSON response", zap.Error(err))
	}
}

// JSONMiddleware sets JSON content type for all responses
func JSONMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware adds CORS headers
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor-ID, X-Actor-Name, X-Actor-Role")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs one line per HTTP request.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", recorder.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *responseRecorder) WriteHeader(statusCode int) {
	rec.statusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}
