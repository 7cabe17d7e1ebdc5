package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haesolkim/bokjibot/internal/answer"
	"github.com/haesolkim/bokjibot/internal/cache"
	"github.com/haesolkim/bokjibot/internal/cursor"
	"github.com/haesolkim/bokjibot/internal/intent"
	"github.com/haesolkim/bokjibot/internal/metrics"
	"github.com/haesolkim/bokjibot/internal/queue"
	"github.com/haesolkim/bokjibot/internal/searchstore"
)

// IntentExtractor analyzes a question before it is queued.
type IntentExtractor interface {
	Extract(ctx context.Context, question string, history []queue.Turn) (*intent.Extraction, error)
}

// PageLookup resolves page ids to display metadata for show-more pages.
type PageLookup interface {
	PagesByIDs(ctx context.Context, pageIDs []string) ([]searchstore.Metadata, error)
}

// AnswerCache is the exact-match answer cache plus the operator
// invalidation used by the cache admin call.
type AnswerCache interface {
	GetAnswer(ctx context.Context, question string) (*queue.Result, bool, error)
	Clear(ctx context.Context, patterns []string) (int, error)
}

// HandlerConfig holds the request-path tunables.
type HandlerConfig struct {
	DisplayCount int
	AdminSecret  string
}

// Handlers implements the API endpoints. Conversational intents, cursor
// pages and cached answers resolve synchronously; everything else becomes
// a queued job.
type Handlers struct {
	jobs      queue.Queue
	results   queue.ResultStore
	pages     PageLookup
	answers   AnswerCache
	extractor IntentExtractor
	cfg       HandlerConfig
}

// NewHandlers creates the endpoint set. extractor and answers may be nil,
// which disables intent fast paths and the exact cache respectively.
func NewHandlers(jobs queue.Queue, results queue.ResultStore, pages PageLookup, answers AnswerCache, extractor IntentExtractor, cfg HandlerConfig) *Handlers {
	if cfg.DisplayCount <= 0 {
		cfg.DisplayCount = 2
	}
	return &Handlers{
		jobs:      jobs,
		results:   results,
		pages:     pages,
		answers:   answers,
		extractor: extractor,
		cfg:       cfg,
	}
}

type chatRequest struct {
	Question   string       `json:"question"`
	History    []queue.Turn `json:"chat_history"`
	OrderedIDs []string     `json:"last_result_ids"`
	ShownCount int          `json:"shown_count"`
}

type chatResponse struct {
	Status     queue.Status `json:"status"`
	JobID      string       `json:"job_id,omitempty"`
	Answer     string       `json:"answer,omitempty"`
	OrderedIDs []string     `json:"last_result_ids,omitempty"`
	TotalFound int          `json:"total_found,omitempty"`
	ShownCount int          `json:"shown_count,omitempty"`
	Options    []string     `json:"options,omitempty"`
}

// Chat accepts a question. Fast paths answer inline; a retrieval question
// gets a job id for polling.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx := r.Context()

	// Intent analysis is advisory: if it fails the question simply
	// proceeds as a normal search query.
	extraction := &intent.Extraction{}
	if h.extractor != nil {
		if ex, err := h.extractor.Extract(ctx, question, req.History); err != nil {
			slog.Warn("intent analysis failed, treating as search query", "error", err)
		} else {
			extraction = ex
		}
	}

	// Canned intents resolve first: a profanity or farewell message that
	// happens to contain a pagination word must not get a result page.
	if reply, ok := intent.Canned(extraction, question); ok {
		writeJSON(w, http.StatusOK, chatResponse{
			Status:  queue.StatusComplete,
			Answer:  reply.Answer,
			Options: reply.Options,
		})
		return
	}

	// Cursor pagination re-reads the stored order; retrieval is never
	// re-run for "show more".
	if intent.IsShowMore(question, extraction.Intent) && len(req.OrderedIDs) > 0 {
		h.showMore(w, r, req)
		return
	}

	// Exact cache: history-free repeats of a finished question return the
	// stored response without a new job.
	if h.answers != nil && len(req.History) == 0 {
		if cached, ok, err := h.answers.GetAnswer(ctx, question); err != nil {
			slog.Warn("answer cache lookup failed", "error", err)
		} else if ok {
			metrics.CacheHits.WithLabelValues("exact").Inc()
			writeJSON(w, http.StatusOK, chatResponse{
				Status:     cached.Status,
				Answer:     cached.Answer,
				OrderedIDs: cached.OrderedIDs,
				TotalFound: cached.TotalFound,
				ShownCount: cached.ShownCount,
				Options:    cached.Options,
			})
			return
		}
	}

	job := queue.Job{
		ID:         uuid.NewString(),
		Question:   question,
		History:    req.History,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		slog.Error("enqueue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue question")
		return
	}

	writeJSON(w, http.StatusAccepted, chatResponse{
		Status: queue.StatusPending,
		JobID:  job.ID,
	})
}

// showMore serves the next cursor page from the client-held ordered ids.
func (h *Handlers) showMore(w http.ResponseWriter, r *http.Request, req chatRequest) {
	ids, shown := cursor.Next(req.OrderedIDs, req.ShownCount, h.cfg.DisplayCount)
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, chatResponse{
			Status:     queue.StatusComplete,
			Answer:     answer.MsgNoMoreResults,
			OrderedIDs: req.OrderedIDs,
			TotalFound: len(req.OrderedIDs),
			ShownCount: shown,
		})
		return
	}

	pages, err := h.pages.PagesByIDs(r.Context(), ids)
	if err != nil {
		slog.Error("page lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}

	start := shown - len(ids)
	writeJSON(w, http.StatusOK, chatResponse{
		Status:     queue.StatusComplete,
		Answer:     answer.BuildMore(pages, start, len(req.OrderedIDs)),
		OrderedIDs: req.OrderedIDs,
		TotalFound: len(req.OrderedIDs),
		ShownCount: shown,
	})
}

// Result reports a job's outcome, or pending while the worker still owns it.
func (h *Handlers) Result(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	result, ok, err := h.results.GetResult(r.Context(), jobID)
	if err != nil {
		slog.Error("result lookup failed", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load result")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, chatResponse{Status: queue.StatusPending, JobID: jobID})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Status:     result.Status,
		JobID:      jobID,
		Answer:     result.Answer,
		OrderedIDs: result.OrderedIDs,
		TotalFound: result.TotalFound,
		ShownCount: result.ShownCount,
		Options:    result.Options,
	})
}

// ClearCache drops every operational cache key. Guarded by the shared
// admin secret.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		secret = r.Header.Get("X-Admin-Secret")
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.AdminSecret)) != 1 {
		writeError(w, http.StatusForbidden, "invalid admin secret")
		return
	}

	if h.answers == nil {
		writeError(w, http.StatusServiceUnavailable, "cache not configured")
		return
	}

	deleted, err := h.answers.Clear(r.Context(), cache.AdminPatterns)
	if err != nil {
		slog.Error("cache clear failed", "deleted", deleted, "error", err)
		writeError(w, http.StatusInternalServerError, "cache clear failed")
		return
	}

	slog.Info("cache cleared", "deleted", deleted)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": deleted})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
