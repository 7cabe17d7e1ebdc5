// Package worker drives the retrieval pipeline: it consumes queued
// questions one at a time and turns each into a ranked, paginated,
// cached set of program records.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/haesolkim/bokjibot/internal/answer"
	"github.com/haesolkim/bokjibot/internal/cache"
	"github.com/haesolkim/bokjibot/internal/embedder"
	"github.com/haesolkim/bokjibot/internal/llm"
	"github.com/haesolkim/bokjibot/internal/metrics"
	"github.com/haesolkim/bokjibot/internal/query"
	"github.com/haesolkim/bokjibot/internal/queue"
	"github.com/haesolkim/bokjibot/internal/reranker"
	"github.com/haesolkim/bokjibot/internal/searchstore"
	"github.com/haesolkim/bokjibot/internal/tier"
)

// Config bounds the pipeline's retrieval and retry behavior.
type Config struct {
	SearchLimit       int
	DisplayCount      int
	SemanticThreshold float64
	EmbedTimeout      time.Duration
	RetryAttempts     int
	RetryBaseWait     time.Duration
}

func (c *Config) applyDefaults() {
	if c.SearchLimit <= 0 {
		c.SearchLimit = 100
	}
	if c.DisplayCount <= 0 {
		c.DisplayCount = 2
	}
	if c.SemanticThreshold <= 0 {
		c.SemanticThreshold = 0.92
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 30 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseWait <= 0 {
		c.RetryBaseWait = 2 * time.Second
	}
}

// Worker consumes jobs and writes results. A job is processed to
// completion by exactly one worker; there is no mid-job handoff.
type Worker struct {
	jobs     queue.Queue
	results  queue.ResultStore
	store    searchstore.Store
	embed    embedder.Embedder
	expander *query.Expander
	rerank   reranker.Reranker
	answers  *cache.Cache
	cfg      Config
}

// New creates a worker. answers may be nil to disable the exact-cache
// write-back.
func New(jobs queue.Queue, results queue.ResultStore, store searchstore.Store, embed embedder.Embedder, expander *query.Expander, rr reranker.Reranker, answers *cache.Cache, cfg Config) *Worker {
	cfg.applyDefaults()
	return &Worker{
		jobs:     jobs,
		results:  results,
		store:    store,
		embed:    embed,
		expander: expander,
		rerank:   rr,
		answers:  answers,
		cfg:      cfg,
	}
}

// Start runs the consume loop until the context is canceled. Dequeue
// blocks while the queue is empty; a popped job that the process loses
// mid-flight stays lost (at-most-once delivery).
func (w *Worker) Start(ctx context.Context) {
	slog.Info("worker started, waiting for jobs")
	for {
		job, err := w.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("worker stopping")
				return
			}
			slog.Error("dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		result := w.Process(ctx, job)

		if err := w.results.SetResult(ctx, job.ID, result); err != nil {
			slog.Error("storing job result failed", "job_id", job.ID, "error", err)
			metrics.JobsProcessed.WithLabelValues("store_failed").Inc()
			continue
		}
		metrics.JobsProcessed.WithLabelValues(string(result.Status)).Inc()
	}
}

// Process runs the full pipeline for one job. Every failure path resolves
// to a natural-language answer; only individual remote calls are bounded,
// the pipeline as a whole is not.
func (w *Worker) Process(ctx context.Context, job *queue.Job) queue.Result {
	start := time.Now()
	slog.Info("job started", "job_id", job.ID, "question", job.Question)

	result := w.process(ctx, job)

	elapsed := time.Since(start)
	metrics.PipelineDuration.Observe(elapsed.Seconds())
	slog.Info("job finished", "job_id", job.ID, "status", result.Status,
		"total_found", result.TotalFound, "elapsed", elapsed)

	return result
}

func (w *Worker) process(ctx context.Context, job *queue.Job) queue.Result {
	question := job.Question

	// Step 1: keyword strategy. Rule-based terms first, LLM terms
	// appended, first-seen order kept for downstream dedup.
	expansion := w.expander.Expand(ctx, question)
	if expansion.Degraded {
		metrics.DegradedSteps.WithLabelValues("keyword_expansion").Inc()
	}
	slog.Debug("search keywords resolved", "job_id", job.ID, "keywords", expansion.Keywords)

	// Step 2: query embedding. The query task type matters: embedding
	// with the document mode degrades ranking without erroring. This is
	// the one mandatory remote call; exhausting its retries resolves the
	// job with a temporary-failure answer.
	embText := query.EmbeddingText(question, expansion.RuleKeywords)
	vector, err := w.embedQuery(ctx, embText)
	if err != nil {
		slog.Error("query embedding failed", "job_id", job.ID, "error", err)
		metrics.DegradedSteps.WithLabelValues("embedding").Inc()
		return queue.Result{Status: queue.StatusComplete, Answer: answer.MsgTemporaryFailure}
	}

	// Semantic cache: a near-duplicate question short-circuits retrieval.
	// Best effort; a miss or error never blocks the pipeline.
	if hit, err := w.store.MatchCachedAnswer(ctx, vector, w.cfg.SemanticThreshold); err != nil {
		slog.Warn("semantic cache lookup failed", "job_id", job.ID, "error", err)
	} else if hit != nil {
		slog.Info("semantic cache hit", "job_id", job.ID, "similarity", hit.Similarity)
		metrics.CacheHits.WithLabelValues("semantic").Inc()
		return queue.Result{Status: queue.StatusComplete, Answer: hit.Answer}
	}

	// Step 3: hybrid search.
	raw, err := w.search(ctx, vector, expansion.Keywords)
	if err != nil {
		slog.Error("hybrid search failed", "job_id", job.ID, "error", err)
		raw = nil
	}
	if len(raw) == 0 {
		return queue.Result{Status: queue.StatusComplete, Answer: answer.MsgNotFound}
	}

	// Step 4: collapse chunks sharing a page id, first occurrence wins.
	raw = dedupeByPageID(raw)

	// Step 5: hard domain filter for assessment questions without school
	// context.
	raw = tier.FilterAdministrative(question, raw)
	if len(raw) == 0 {
		return queue.Result{Status: queue.StatusComplete, Answer: answer.MsgNotFound}
	}

	// Steps 6-7: tier classification and candidate assembly. Tier-1
	// documents carry a structured priority flag into the reranker.
	cls := tier.Classify(question, raw)
	if arch := tier.Detect(question); arch != tier.ArchetypeNone {
		slog.Debug("tier classification applied", "job_id", job.ID, "archetype", arch.String(),
			"tier1", len(cls.Tier1), "tier2", len(cls.Tier2))
	}
	candidates := assembleCandidates(cls)

	// Step 8: rerank. Failure degrades to the tier order, never aborts.
	ranked := w.rerank.Rerank(ctx, question, candidates)
	if ranked.Degraded {
		metrics.DegradedSteps.WithLabelValues("rerank").Inc()
	}

	// Steps 9-10: display selection and the full ordered id list.
	display := ranked.Ranked
	if len(display) > w.cfg.DisplayCount {
		display = display[:w.cfg.DisplayCount]
	}
	orderedIDs := buildOrderedIDs(ranked.Ranked, raw)

	// Step 11: assembly.
	displayMeta := make([]searchstore.Metadata, len(display))
	for i, doc := range display {
		displayMeta[i] = doc.Metadata
	}
	text := answer.Build(displayMeta, len(orderedIDs))

	result := queue.Result{
		Status:     queue.StatusComplete,
		Answer:     text,
		OrderedIDs: orderedIDs,
		TotalFound: len(orderedIDs),
		ShownCount: len(display),
	}

	w.writeCaches(ctx, question, vector, result)
	return result
}

// writeCaches stores the finished answer in both cache layers, fire and
// forget.
func (w *Worker) writeCaches(ctx context.Context, question string, vector []float32, result queue.Result) {
	if w.answers != nil {
		if err := w.answers.SetAnswer(ctx, question, result); err != nil {
			slog.Warn("answer cache write failed", "error", err)
		}
	}
	if err := w.store.SaveCachedAnswer(ctx, question, result.Answer, vector); err != nil {
		slog.Warn("semantic cache write failed", "error", err)
	}
}

func (w *Worker) embedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := llm.RetryWithBackoff(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, w.cfg.EmbedTimeout)
		defer cancel()

		var embErr error
		vector, embErr = w.embed.Embed(callCtx, text, embedder.TaskRetrievalQuery)
		return embErr
	}, w.cfg.RetryAttempts, w.cfg.RetryBaseWait, 10*time.Second)
	return vector, err
}

func (w *Worker) search(ctx context.Context, vector []float32, keywords []string) ([]searchstore.Document, error) {
	var docs []searchstore.Document
	err := llm.RetryWithBackoff(ctx, func() error {
		var searchErr error
		docs, searchErr = w.store.Search(ctx, vector, keywords, w.cfg.SearchLimit)
		return searchErr
	}, w.cfg.RetryAttempts, w.cfg.RetryBaseWait, 10*time.Second)
	return docs, err
}

// dedupeByPageID collapses chunks of the same page, keeping the first
// occurrence's content and metadata.
func dedupeByPageID(docs []searchstore.Document) []searchstore.Document {
	seen := make(map[string]struct{}, len(docs))
	unique := make([]searchstore.Document, 0, len(docs))
	for _, doc := range docs {
		if _, dup := seen[doc.PageID]; dup {
			continue
		}
		seen[doc.PageID] = struct{}{}
		unique = append(unique, doc)
	}
	return unique
}

// assembleCandidates orders candidates tier1, tier2, normal, flagging
// tier1 entries as priority for the reranker.
func assembleCandidates(cls tier.Classification) []reranker.Candidate {
	candidates := make([]reranker.Candidate, 0, len(cls.Tier1)+len(cls.Tier2)+len(cls.Normal))
	for _, doc := range cls.Tier1 {
		candidates = append(candidates, reranker.Candidate{Doc: doc, Priority: true})
	}
	for _, doc := range cls.Tier2 {
		candidates = append(candidates, reranker.Candidate{Doc: doc})
	}
	for _, doc := range cls.Normal {
		candidates = append(candidates, reranker.Candidate{Doc: doc})
	}
	return candidates
}

// buildOrderedIDs lists reranked ids first, then any remaining raw-search
// ids in their original order. The result contains no duplicates.
func buildOrderedIDs(ranked, raw []searchstore.Document) []string {
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, doc := range ranked {
		if _, dup := seen[doc.PageID]; dup {
			continue
		}
		seen[doc.PageID] = struct{}{}
		ids = append(ids, doc.PageID)
	}
	for _, doc := range raw {
		if _, dup := seen[doc.PageID]; dup {
			continue
		}
		seen[doc.PageID] = struct{}{}
		ids = append(ids, doc.PageID)
	}
	return ids
}
