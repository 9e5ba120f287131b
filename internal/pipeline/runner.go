// Package pipeline runs incident maintenance passes: fetch unassigned
// complaints, merge them into existing incidents, cluster the rest and
// synchronize incident status.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Meta-project2/RAG-Complaint-2nd/internal/incident"
	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

// RunnerConfig contains per-pass limits.
type RunnerConfig struct {
	// BatchLimit caps the complaints fetched per pass (0 = unlimited).
	BatchLimit int `json:"batch_limit" yaml:"batch_limit"`
	// RecencyWindow limits merge candidates to incidents opened within it
	// (0 = no limit).
	RecencyWindow time.Duration `json:"recency_window" yaml:"recency_window"`
	// IncludeClosed makes CLOSED incidents merge candidates.
	IncludeClosed bool `json:"include_closed" yaml:"include_closed"`
}

// DefaultRunnerConfig returns the default pass configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		BatchLimit:    100,
		RecencyWindow: 30 * 24 * time.Hour,
		IncludeClosed: true,
	}
}

// PassReport summarizes one pass.
type PassReport struct {
	StartedAt        time.Time     `json:"started_at"`
	ID               string        `json:"id"`
	Error            string        `json:"error,omitempty"`
	Elapsed          time.Duration `json:"elapsed_ns"`
	Fetched          int           `json:"fetched"`
	Pending          int           `json:"pending"`
	Deferred         int           `json:"deferred"`
	Candidates       int           `json:"candidates"`
	Merged           int           `json:"merged"`
	Skipped          int           `json:"skipped"`
	IncidentsCreated int           `json:"incidents_created"`
	Singletons       int           `json:"singletons"`
	Rematched        int           `json:"rematched"`
	Discarded        int           `json:"discarded"`
	MergeFailures    int           `json:"merge_failures"`
	ClusterFailures  int           `json:"cluster_failures"`
	Closed           int64         `json:"closed"`
	Reopened         int64         `json:"reopened"`
	Silhouette       float64       `json:"silhouette,omitempty"`
	SilhouetteOK     bool          `json:"silhouette_ok"`
}

// Recorder receives pass outcomes, typically to export metrics.
type Recorder interface {
	ObservePass(report *PassReport, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObservePass(*PassReport, error) {}

// Runner executes passes.
type Runner struct {
	store     incident.Store
	matcher   *incident.Matcher
	clusterer *incident.Clusterer
	syncer    *incident.Synchronizer
	recorder  Recorder
	tracer    trace.Tracer
	now       func() time.Time
	logger    zerolog.Logger
	config    RunnerConfig

	mu sync.Mutex
	// deferred holds the complaints whose writes failed in the last pass.
	deferred []int64
}

// NewRunner creates a pass runner. recorder may be nil.
func NewRunner(
	store incident.Store,
	matcher *incident.Matcher,
	clusterer *incident.Clusterer,
	syncer *incident.Synchronizer,
	recorder Recorder,
	config RunnerConfig,
	logger zerolog.Logger,
) *Runner {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Runner{
		store:     store,
		matcher:   matcher,
		clusterer: clusterer,
		syncer:    syncer,
		recorder:  recorder,
		tracer:    otel.Tracer("github.com/Meta-project2/RAG-Complaint-2nd/internal/pipeline"),
		now:       func() time.Time { return time.Now().UTC() },
		config:    config,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// RunPass runs one full pass. Failures of single merges or clusters are
// counted in the report; the returned error reports a stage that could not run
// at all. Status synchronization runs even when earlier stages fail.
func (r *Runner) RunPass(ctx context.Context) (*PassReport, error) {
	start := time.Now()
	now := r.now()
	report := &PassReport{ID: uuid.NewString(), StartedAt: now}

	ctx, span := r.tracer.Start(ctx, "incident.pass", trace.WithAttributes(attribute.String("pass.id", report.ID)))
	defer span.End()

	assignErr := r.assign(ctx, now, report)
	syncErr := r.sync(ctx, now, report)

	err := assignErr
	if err == nil {
		err = syncErr
	} else if syncErr != nil {
		err = fmt.Errorf("%w; %w", assignErr, syncErr)
	}

	report.Elapsed = time.Since(start)
	if err != nil {
		report.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("pass.fetched", report.Fetched),
		attribute.Int("pass.merged", report.Merged),
		attribute.Int("pass.incidents_created", report.IncidentsCreated),
	)
	r.recorder.ObservePass(report, err)

	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Error().Err(err)
	}
	ev.Str("pass_id", report.ID).
		Int("fetched", report.Fetched).
		Int("merged", report.Merged).
		Int("incidents_created", report.IncidentsCreated).
		Int("singletons", report.Singletons).
		Int("rematched", report.Rematched).
		Int64("closed", report.Closed).
		Int64("reopened", report.Reopened).
		Int("failures", report.MergeFailures+report.ClusterFailures).
		Dur("elapsed", report.Elapsed).
		Msg("Pass complete")

	return report, err
}

// assign merges and clusters the unassigned backlog. Complaints that failed
// in the previous pass are fetched last so they cannot starve the batch.
func (r *Runner) assign(ctx context.Context, now time.Time, report *PassReport) (err error) {
	ctx, span := r.tracer.Start(ctx, "incident.assign")
	defer span.End()

	deferred := r.takeDeferred()
	report.Deferred = len(deferred)
	if len(deferred) > 0 {
		r.logger.Warn().Ints64("complaint_ids", deferred).Msg("Deferring complaints that failed last pass")
	}
	var failed []int64
	defer func() {
		if err != nil {
			failed = deferred
		}
		r.setDeferred(failed)
	}()

	fps, err := r.store.FetchUnassigned(ctx, incident.UnassignedQuery{Limit: r.config.BatchLimit, Deferred: deferred})
	if err != nil {
		return fmt.Errorf("fetch unassigned: %w", err)
	}
	report.Fetched = len(fps)
	fps, report.Pending = withEmbedding(fps)
	if report.Pending > 0 {
		r.logger.Warn().Int("complaints", report.Pending).Msg("Skipping complaints without embedding")
	}
	if len(fps) == 0 {
		return nil
	}

	q := incident.CandidateQuery{IncludeClosed: r.config.IncludeClosed}
	if r.config.RecencyWindow > 0 {
		q.Since = now.Add(-r.config.RecencyWindow)
	}
	members, err := r.store.LoadCandidates(ctx, q)
	if err != nil {
		return fmt.Errorf("load candidates: %w", err)
	}
	idx := incident.NewCandidateIndex(members)
	report.Candidates = idx.Incidents()

	mr := r.matcher.MatchAll(ctx, fps, idx, now)
	report.Merged = mr.Merged
	report.Skipped = mr.Skipped
	report.MergeFailures = mr.Failures
	failed = mr.Failed

	if len(mr.Unmatched) == 0 {
		return nil
	}

	cr := r.clusterer.Cluster(ctx, mr.Unmatched, idx, now)
	report.IncidentsCreated = cr.Clusters + cr.Singletons
	report.Singletons = cr.Singletons
	report.Rematched = cr.Rematched
	report.Discarded = cr.Discarded
	report.Skipped += cr.Skipped
	report.ClusterFailures = cr.Failures
	failed = append(failed, cr.Failed...)
	report.Silhouette = cr.Silhouette
	report.SilhouetteOK = cr.SilhouetteOK
	return nil
}

func (r *Runner) sync(ctx context.Context, now time.Time, report *PassReport) error {
	ctx, span := r.tracer.Start(ctx, "incident.sync")
	defer span.End()

	res, err := r.syncer.Sync(ctx, now)
	if err != nil {
		return err
	}
	report.Closed = res.Closed
	report.Reopened = res.Reopened
	return nil
}

func (r *Runner) takeDeferred() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.deferred
	r.deferred = nil
	return ids
}

func (r *Runner) setDeferred(ids []int64) {
	r.mu.Lock()
	r.deferred = ids
	r.mu.Unlock()
}

// withEmbedding drops complaints whose analysis has not produced an embedding
// yet; they stay unassigned until it has.
func withEmbedding(fps []*models.Fingerprint) ([]*models.Fingerprint, int) {
	out := fps[:0:0]
	for _, fp := range fps {
		if fp.HasEmbedding() {
			out = append(out, fp)
		}
	}
	return out, len(fps) - len(out)
}
