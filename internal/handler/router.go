package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/segyhp/fee-engine/pkg/response"
)

// NewRouter wires every route of the fee API.
func NewRouter(fee *FeeHandler, health *HealthHandler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(logger.Named("access")), response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", health.Ready).Methods(http.MethodGet)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/fee-structures", fee.CreateStructure).Methods(http.MethodPost)
	api.HandleFunc("/fee-structures", fee.ListStructures).Methods(http.MethodGet)
	api.HandleFunc("/fee-structures/{id}", fee.GetStructure).Methods(http.MethodGet)
	api.HandleFunc("/fee-structures/{id}/fee-heads", fee.UpdateFeeHeads).Methods(http.MethodPut)
	api.HandleFunc("/fee-structures/{id}/approve", fee.ApproveStructure).Methods(http.MethodPost)
	api.HandleFunc("/fee-structures/{id}/activate", fee.ActivateStructure).Methods(http.MethodPost)
	api.HandleFunc("/fee-structures/{id}/archive", fee.ArchiveStructure).Methods(http.MethodPost)
	api.HandleFunc("/fee-structures/{id}/lock", fee.LockStructure).Methods(http.MethodPost)
	api.HandleFunc("/fee-structures/{id}/versions", fee.CreateNewVersion).Methods(http.MethodPost)

	api.HandleFunc("/ledgers", fee.CreateLedger).Methods(http.MethodPost)
	api.HandleFunc("/ledgers", fee.ListLedgers).Methods(http.MethodGet)
	api.HandleFunc("/ledgers/{id}", fee.GetLedger).Methods(http.MethodGet)
	api.HandleFunc("/ledgers/{id}/summary", fee.GetLedgerSummary).Methods(http.MethodGet)
	api.HandleFunc("/ledgers/{id}/statement", fee.GetStatement).Methods(http.MethodGet)
	api.HandleFunc("/ledgers/{id}/close", fee.CloseLedger).Methods(http.MethodPost)
	api.HandleFunc("/ledgers/{id}/refresh", fee.RefreshLedger).Methods(http.MethodPost)
	api.HandleFunc("/ledgers/{id}/receipts", fee.ProcessReceipt).Methods(http.MethodPost)
	api.HandleFunc("/ledgers/{id}/receipts", fee.ListReceipts).Methods(http.MethodGet)

	api.HandleFunc("/receipts/number/{number}", fee.GetReceiptByNumber).Methods(http.MethodGet)
	api.HandleFunc("/receipts/{id}", fee.GetReceipt).Methods(http.MethodGet)
	api.HandleFunc("/receipts/{id}/reverse", fee.ReverseReceipt).Methods(http.MethodPost)

	api.HandleFunc("/audit-logs", fee.QueryAuditLogs).Methods(http.MethodGet)
	api.HandleFunc("/audit-logs/summary", fee.AuditActionSummary).Methods(http.MethodGet)
	api.HandleFunc("/audit-logs", fee.RejectAuditMutation).Methods(http.MethodPut, http.MethodPatch, http.MethodDelete)
	api.HandleFunc("/audit-logs/{id}", fee.RejectAuditMutation).Methods(http.MethodPut, http.MethodPatch, http.MethodDelete)

	api.HandleFunc("/reports/aging", fee.AgingReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/collection", fee.CollectionReport).Methods(http.MethodGet)
	api.HandleFunc("/maintenance/overdue-sweep", fee.RunOverdueSweep).Methods(http.MethodPost)

	return router
}
