package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"dispatchd/internal/dispatch"
	"dispatchd/internal/domain"
	"dispatchd/internal/health"
	"dispatchd/internal/ledger"
	sqsqueue "dispatchd/internal/queue/sqs"
)

type LogQuerier interface {
	Query(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job sqsqueue.DispatchJob) error
}

type API struct {
	Dispatcher *dispatch.Dispatcher
	Health     *health.Aggregator
	Logs       LogQuerier
	// Enqueuer is optional; /v1/enqueue is not registered when nil.
	Enqueuer Enqueuer
	Validate *validator.Validate
}

func (a *API) Register(mux *mux.Router) {
	mux.HandleFunc("/v1/dispatch", a.handleDispatch).Methods(http.MethodPost)
	mux.HandleFunc("/v1/resend/{logId}", a.handleResend).Methods(http.MethodPost)
	mux.HandleFunc("/v1/logs", a.handleLogs).Methods(http.MethodGet)
	mux.HandleFunc("/v1/health", a.handleHealth).Methods(http.MethodGet)
	mux.HandleFunc("/v1/bulk-test", a.handleBulkTest).Methods(http.MethodPost)
	if a.Enqueuer != nil {
		mux.HandleFunc("/v1/enqueue", a.handleEnqueue).Methods(http.MethodPost)
	}
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req domain.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := a.Dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEventType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("dispatch failed hard",
			"err", err,
			"event_type", req.EventType,
			"recipient", req.Recipient,
		)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleResend(w http.ResponseWriter, r *http.Request) {
	logID, err := strconv.ParseInt(mux.Vars(r)["logId"], 10, 64)
	if err != nil {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}

	resp, err := a.Dispatcher.Resend(r.Context(), logID)
	if err != nil {
		if errors.Is(err, domain.ErrLogNotFound) {
			http.Error(w, ErrNotFound, http.StatusNotFound)
			return
		}
		if errors.Is(err, domain.ErrUnknownEventType) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("resend failed hard", "err", err, "log_id", logID)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.Filter{
		EventType:         q.Get("eventType"),
		RecipientContains: q.Get("recipient"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid success flag", http.StatusBadRequest)
			return
		}
		f.Success = &b
	}

	entries, err := a.Logs.Query(r.Context(), f)
	if err != nil {
		slog.Error("query logs failed", "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{Success: true, Logs: entries})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, err := a.Health.HealthCheck(r.Context())
	if err != nil {
		slog.Error("health check failed", "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Success: true, Report: report})
}

func (a *API) handleBulkTest(w http.ResponseWriter, r *http.Request) {
	var req bulkTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results := a.Health.BulkTest(r.Context(), req.To, req.Tests)
	writeJSON(w, http.StatusOK, bulkTestResponse{Success: true, Results: results})
}

func (a *API) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var job sqsqueue.DispatchJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if job.EventType == "" || job.Recipient == "" {
		http.Error(w, domain.ErrMissingFields.Error(), http.StatusBadRequest)
		return
	}

	if err := a.Enqueuer.Enqueue(r.Context(), job); err != nil {
		slog.Error("enqueue dispatch job failed", "err", err, "event_type", job.EventType)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type logsResponse struct {
	Success bool           `json:"success"`
	Logs    []ledger.Entry `json:"logs"`
}

type healthResponse struct {
	Success bool `json:"success"`
	health.Report
}

type bulkTestRequest struct {
	To    string            `json:"to" validate:"required"`
	Tests []health.TestItem `json:"tests" validate:"required,min=1,dive"`
}

type bulkTestResponse struct {
	Success bool                `json:"success"`
	Results []health.TestResult `json:"results"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
