// Package handlers implements the sync trigger API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/budget-sync/internal/api/middleware"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/jobs"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/dvloznov/budget-sync/internal/runreport"
)

// SyncHandler handles sync job endpoints.
type SyncHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(publisher jobs.Publisher, store jobs.JobStore) *SyncHandler {
	return &SyncHandler{
		publisher: publisher,
		store:     store,
	}
}

// TriggerSync handles POST /api/sync
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	job := &jobs.SyncJob{Trigger: jobs.TriggerAPI}
	if err := h.publisher.PublishSync(ctx, job); err != nil {
		switch {
		case errors.Is(err, jobs.ErrQueueFull):
			middleware.WriteError(w, http.StatusConflict, "A sync run is already queued")
		case errors.Is(err, jobs.ErrQueueClosed):
			middleware.WriteError(w, http.StatusServiceUnavailable, "Sync worker is shutting down")
		default:
			log.Error().Err(err).Msg("Failed to enqueue sync job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync job")
		}
		return
	}

	log.Info().Str("job_id", job.JobID).Msg("Sync job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, job)
}

// GetJob handles GET /api/sync/jobs/{id}
func (h *SyncHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/sync/jobs
func (h *SyncHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// AccountsHandler handles account endpoints.
type AccountsHandler struct {
	accounts repository.AccountRepository
	bank     string
}

// NewAccountsHandler creates a new accounts handler for one bank's accounts.
func NewAccountsHandler(accounts repository.AccountRepository, bank string) *AccountsHandler {
	return &AccountsHandler{
		accounts: accounts,
		bank:     bank,
	}
}

// accountView is an account with its balance rendered in major units.
type accountView struct {
	*domain.Account
	BalanceDisplay string `json:"balance_display"`
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.accounts.FindByBank(ctx, h.bank)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, accountView{Account: acc, BalanceDisplay: runreport.FormatMinor(acc.Balance)})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": views,
		"count":    len(views),
	})
}

// NewRouter registers every endpoint on a new mux.
func NewRouter(sync *SyncHandler, accounts *AccountsHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sync.TriggerSync(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/sync/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			sync.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/sync/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/sync/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		sync.GetJob(w, r, jobID)
	})

	mux.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			accounts.ListAccounts(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	return mux
}
