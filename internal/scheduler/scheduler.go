package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/docindex/internal/config"
	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/fetch"
	"github.com/Aman-CERP/docindex/internal/pipeline"
	"github.com/Aman-CERP/docindex/internal/retriever"
	"github.com/Aman-CERP/docindex/internal/store"
)

// Scheduler is the pipeline manager: a bounded worker pool that runs scrape
// and refresh jobs against the catalog (§4.4). One job may be active per
// version at a time; later enqueues for the same version are rejected in
// favor of the in-flight job's id.
type Scheduler struct {
	catalog   store.Catalog
	engine    retriever.SearchEngine
	fetcher   fetch.Fetcher
	pipelines []pipeline.Pipeline
	defaults  config.ScraperConfig
	logger    *slog.Logger
	events    *eventBus

	sem *semaphore.Weighted

	mu      sync.Mutex
	active  map[string]context.CancelFunc // versionID -> cancel
	jobs    map[string]*Job                // versionID -> current job
	jobByID map[string]string              // jobID -> versionID
	wg      sync.WaitGroup
}

// New builds a Scheduler. pipelines are tried in order by CanHandle; the
// first match chunks a fetched page.
func New(catalog store.Catalog, engine retriever.SearchEngine, fetcher fetch.Fetcher, pipelines []pipeline.Pipeline, cfg config.SchedulerConfig, defaults config.ScraperConfig, logger *slog.Logger) *Scheduler {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		catalog:   catalog,
		engine:    engine,
		fetcher:   fetcher,
		pipelines: pipelines,
		defaults:  defaults,
		logger:    logger,
		events:    newEventBus(cfg.EventBufferSize),
		sem:       semaphore.NewWeighted(int64(maxConcurrency)),
		active:    make(map[string]context.CancelFunc),
		jobs:      make(map[string]*Job),
		jobByID:   make(map[string]string),
	}
}

// Subscribe returns a channel of events for a single version (job_enqueued,
// job_status_change, job_progress, library_change), best-effort delivered.
func (s *Scheduler) Subscribe(versionID string) (<-chan Event, func()) {
	return s.events.Subscribe(versionID)
}

// selectPipeline returns the first registered pipeline that can handle
// mimeType, or nil if none can.
func (s *Scheduler) selectPipeline(mimeType string) pipeline.Pipeline {
	for _, p := range s.pipelines {
		if p.CanHandle(mimeType) {
			return p
		}
	}
	return nil
}

// Enqueue starts (or reuses) a scrape job for versionID. If a job is
// already active for this version, its id is returned instead of starting
// a second one (§4.4 one-active-job-per-version rule).
func (s *Scheduler) Enqueue(ctx context.Context, version *store.Version, sourceURL string, opts store.ScraperOptions) (string, error) {
	return s.enqueue(ctx, version, sourceURL, opts, JobScrape)
}

// EnqueueRefresh starts (or reuses) a refresh job for an already indexed
// version (§4.5).
func (s *Scheduler) EnqueueRefresh(ctx context.Context, version *store.Version) (string, error) {
	return s.enqueue(ctx, version, version.SourceURL, version.ScraperOptions, JobRefresh)
}

func (s *Scheduler) enqueue(ctx context.Context, version *store.Version, sourceURL string, opts store.ScraperOptions, kind JobKind) (string, error) {
	s.mu.Lock()
	if existing, ok := s.jobs[version.ID]; ok {
		s.mu.Unlock()
		return existing.ID, nil
	}

	target := store.StatusQueued
	if kind == JobRefresh {
		target = store.StatusUpdating
	}
	if !store.IsLegalTransition(version.Status, target) {
		s.mu.Unlock()
		return "", docerrors.Validation(fmt.Sprintf("cannot start %s: version is %s", kind, version.Status))
	}

	job := &Job{
		ID:         newJobID(),
		Kind:       kind,
		VersionID:  version.ID,
		Library:    version.LibraryID,
		Version:    version.Name,
		SourceURL:  sourceURL,
		Options:    opts,
		EnqueuedAt: time.Now(),
	}
	s.jobs[version.ID] = job
	s.jobByID[job.ID] = version.ID
	s.mu.Unlock()

	if err := s.catalog.UpdateVersionStatus(ctx, version.ID, target, ""); err != nil {
		s.forget(version.ID)
		return "", fmt.Errorf("queue version: %w", err)
	}
	s.publish(Event{Type: EventJobEnqueued, VersionID: version.ID, JobID: job.ID, Status: target, At: time.Now()})

	s.wg.Add(1)
	go s.run(job)

	return job.ID, nil
}

// Cancel requests cancellation of the active job for versionID. It is a
// no-op if no job is running for that version.
func (s *Scheduler) Cancel(versionID string) bool {
	s.mu.Lock()
	cancel, ok := s.active[versionID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// CancelJob requests cancellation of a job by its id, resolving it to the
// owning version internally. Returns false if the job id is unknown or not
// currently running.
func (s *Scheduler) CancelJob(jobID string) bool {
	s.mu.Lock()
	versionID, ok := s.jobByID[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.Cancel(versionID)
}

// JobInfo returns the in-memory snapshot for a job, if any.
func (s *Scheduler) JobInfo(jobID string) (*JobInfo, bool) {
	s.mu.Lock()
	versionID, ok := s.jobByID[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	job := s.jobs[versionID]
	s.mu.Unlock()
	if job == nil {
		return nil, false
	}
	return &JobInfo{
		JobID: job.ID, VersionID: job.VersionID, Library: job.Library,
		Version: job.Version, Kind: job.Kind, EnqueuedAt: job.EnqueuedAt,
	}, true
}

// ListJobs returns a snapshot of every job still tracked in memory
// (enqueued, running, or finished but not yet cleared by ClearCompleted).
func (s *Scheduler) ListJobs() []*JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*JobInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, &JobInfo{
			JobID: job.ID, VersionID: job.VersionID, Library: job.Library,
			Version: job.Version, Kind: job.Kind, EnqueuedAt: job.EnqueuedAt,
		})
	}
	return out
}

// ClearCompleted drops the in-memory bookkeeping for every version whose job
// has already finished (active map entry gone) so get_job_info stops
// reporting it; the catalog's own status/progress fields are untouched.
func (s *Scheduler) ClearCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := 0
	for versionID, job := range s.jobs {
		if _, running := s.active[versionID]; running {
			continue
		}
		delete(s.jobs, versionID)
		delete(s.jobByID, job.ID)
		cleared++
	}
	return cleared
}

func (s *Scheduler) forget(versionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[versionID]; ok {
		delete(s.jobByID, job.ID)
	}
	delete(s.jobs, versionID)
	delete(s.active, versionID)
}

func (s *Scheduler) publish(ev Event) {
	s.events.Publish(ev)
}

// run acquires a worker slot, enforces RUNNING, executes the job body, and
// records the terminal status. It never returns an error: failures are
// recorded on the version itself (§4.4).
func (s *Scheduler) run(job *Job) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.active[job.VersionID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, job.VersionID)
		s.mu.Unlock()
		cancel()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.fail(job, err)
		return
	}
	defer s.sem.Release(1)

	if err := s.catalog.UpdateVersionStatus(ctx, job.VersionID, store.StatusRunning, ""); err != nil {
		s.logger.Error("transition to running failed", slog.String("version_id", job.VersionID), slog.String("error", err.Error()))
		return
	}
	s.publish(Event{Type: EventJobStatusChange, VersionID: job.VersionID, JobID: job.ID, Status: store.StatusRunning, At: time.Now()})

	var err error
	switch job.Kind {
	case JobRefresh:
		err = s.runRefresh(ctx, job)
	default:
		err = s.runScrape(ctx, job)
	}

	switch {
	case ctx.Err() != nil:
		s.cancelled(job)
	case err != nil:
		s.fail(job, err)
	default:
		s.succeed(job)
	}
}

func (s *Scheduler) succeed(job *Job) {
	if err := s.catalog.UpdateVersionStatus(context.Background(), job.VersionID, store.StatusCompleted, ""); err != nil {
		s.logger.Error("transition to completed failed", slog.String("version_id", job.VersionID), slog.String("error", err.Error()))
	}
	s.publish(Event{Type: EventJobStatusChange, VersionID: job.VersionID, JobID: job.ID, Status: store.StatusCompleted, At: time.Now()})
	s.publish(Event{Type: EventLibraryChange, VersionID: job.VersionID, At: time.Now()})
	s.forget(job.VersionID)
}

func (s *Scheduler) fail(job *Job, err error) {
	s.logger.Warn("job failed", slog.String("version_id", job.VersionID), slog.String("kind", string(job.Kind)), slog.String("error", err.Error()))
	if uerr := s.catalog.UpdateVersionStatus(context.Background(), job.VersionID, store.StatusFailed, err.Error()); uerr != nil {
		s.logger.Error("transition to failed failed", slog.String("version_id", job.VersionID), slog.String("error", uerr.Error()))
	}
	s.publish(Event{Type: EventJobStatusChange, VersionID: job.VersionID, JobID: job.ID, Status: store.StatusFailed, Error: err.Error(), At: time.Now()})
	s.forget(job.VersionID)
}

func (s *Scheduler) cancelled(job *Job) {
	if err := s.catalog.UpdateVersionStatus(context.Background(), job.VersionID, store.StatusCancelled, ""); err != nil {
		s.logger.Error("transition to cancelled failed", slog.String("version_id", job.VersionID), slog.String("error", err.Error()))
	}
	s.publish(Event{Type: EventJobStatusChange, VersionID: job.VersionID, JobID: job.ID, Status: store.StatusCancelled, At: time.Now()})
	s.forget(job.VersionID)
}

func (s *Scheduler) reportProgress(job *Job, pages, maxPages int) {
	if err := s.catalog.UpdateVersionProgress(context.Background(), job.VersionID, pages, maxPages); err != nil {
		s.logger.Warn("progress update failed", slog.String("version_id", job.VersionID), slog.String("error", err.Error()))
	}
	s.publish(Event{Type: EventJobProgress, VersionID: job.VersionID, JobID: job.ID, Pages: pages, MaxPages: maxPages, At: time.Now()})
}

// Recover resets every version left QUEUED, RUNNING, or UPDATING by a prior
// process that died mid-job back to QUEUED and re-enqueues it, per the
// startup recovery rule (§4.4, §5): a crash must never strand a version in
// a non-terminal state.
func (s *Scheduler) Recover(ctx context.Context) error {
	stuck, err := s.catalog.GetVersionsByStatus(ctx, store.StatusQueued, store.StatusRunning, store.StatusUpdating)
	if err != nil {
		return fmt.Errorf("list stuck versions: %w", err)
	}
	for _, v := range stuck {
		kind := JobScrape
		if v.Status == store.StatusUpdating {
			kind = JobRefresh
		}
		if err := s.requeueStranded(ctx, v); err != nil {
			s.logger.Warn("recovery requeue failed", slog.String("version_id", v.ID), slog.String("error", err.Error()))
			continue
		}
		job := &Job{
			ID: newJobID(), Kind: kind, VersionID: v.ID, Library: v.LibraryID,
			Version: v.Name, SourceURL: v.SourceURL, Options: v.ScraperOptions,
			EnqueuedAt: time.Now(),
		}
		s.mu.Lock()
		s.jobs[v.ID] = job
		s.jobByID[job.ID] = v.ID
		s.mu.Unlock()
		s.logger.Info("recovered stranded version", slog.String("version_id", v.ID), slog.String("status", string(v.Status)))

		s.wg.Add(1)
		go s.run(job)
	}
	return nil
}

// requeueStranded drives a version back to QUEUED so it can be re-run. The
// state machine has no direct RUNNING/UPDATING -> QUEUED edge, only
// RUNNING/UPDATING -> CANCELLED -> QUEUED, so a version caught mid-job
// passes through CANCELLED first; already-QUEUED versions need no change.
func (s *Scheduler) requeueStranded(ctx context.Context, v *store.Version) error {
	switch v.Status {
	case store.StatusQueued:
		return nil
	case store.StatusRunning, store.StatusUpdating:
		if err := s.catalog.UpdateVersionStatus(ctx, v.ID, store.StatusCancelled, ""); err != nil {
			return err
		}
		return s.catalog.UpdateVersionStatus(ctx, v.ID, store.StatusQueued, "")
	default:
		return fmt.Errorf("unexpected stranded status %s", v.Status)
	}
}

// Wait blocks until every in-flight job completes. Intended for graceful
// shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
