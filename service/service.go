package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"adgen-jobs/constant"
	"adgen-jobs/dto"
	"adgen-jobs/entities"
	"adgen-jobs/notify"
	"adgen-jobs/repository"
)

var (
	ErrJobCreation  = errors.New("failed to create job")
	ErrRunnerClosed = errors.New("job runner is shutting down")
)

// JobRunner owns job lifecycle: creation, background execution, cancellation
// and the in-memory registry of running jobs.
type JobRunner interface {
	StartJob(ctx context.Context, prompt string, generateVideo bool, ownerID string) (string, error)
	Cancel(ctx context.Context, jobID string) bool
	ActiveCount() int
	GetJob(ctx context.Context, jobID string) (*entities.Job, bool)
	ListJobs(ctx context.Context, ownerID string, limit int) []*entities.Job
	Dashboard(ctx context.Context, ownerID string) dto.DashboardResponse
	DeleteJob(ctx context.Context, jobID string) bool
	Recover(ctx context.Context) int
	Shutdown(ctx context.Context) error
}

// task is the cancellable handle of one execution unit. mu orders the unit's
// store writes against Cancel so a cancelled job is never completed.
type task struct {
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	finished bool
}

type jobRunner struct {
	repo  repository.JobRepository
	hub   notify.Broadcaster
	logo  LogoGenerator
	video VideoGenerator
	sem   *semaphore.Weighted
	base  context.Context
	newID func() string

	mu     sync.Mutex
	active map[string]*task
	closed bool
	wg     sync.WaitGroup
}

// NewJobRunner builds a runner executing at most maxConcurrency jobs at once.
// Execution units inherit ctx values (logger) but not its cancellation.
func NewJobRunner(
	ctx context.Context,
	repo repository.JobRepository,
	hub notify.Broadcaster,
	logo LogoGenerator,
	video VideoGenerator,
	maxConcurrency int,
) JobRunner {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &jobRunner{
		repo:   repo,
		hub:    hub,
		logo:   logo,
		video:  video,
		sem:    semaphore.NewWeighted(int64(maxConcurrency)),
		base:   context.WithoutCancel(ctx),
		newID:  newJobID,
		active: make(map[string]*task),
	}
}

func newJobID() string {
	return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (r *jobRunner) StartJob(ctx context.Context, prompt string, generateVideo bool, ownerID string) (string, error) {
	if r.isClosed() {
		return "", ErrRunnerClosed
	}
	if ownerID == "" {
		ownerID = constant.DefaultOwnerID
	}

	id := r.newID()
	job := entities.NewJob(id, prompt, constant.JobTypeFor(generateVideo), ownerID, time.Now().UTC())
	if !r.repo.Create(ctx, job) {
		return "", fmt.Errorf("%w: could not persist job %s", ErrJobCreation, id)
	}

	jobCtx, cancel := context.WithCancel(r.base)
	logger := zerolog.Ctx(r.base).With().Str("job_id", id).Logger()
	t := &task{ctx: logger.WithContext(jobCtx), cancel: cancel}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		r.repo.UpdateStatus(ctx, id, entities.JobUpdate{Status: constant.JobStatusFailed, ErrorMessage: constant.CancelledMessage})
		return "", ErrRunnerClosed
	}
	r.active[id] = t
	r.wg.Add(1)
	r.mu.Unlock()

	zerolog.Ctx(ctx).Info().Str("job_id", id).Str("owner_id", ownerID).Bool("generate_video", generateVideo).Msg("started generation job")
	r.hub.Broadcast(ctx, dto.JobStartedEvent(id, prompt, generateVideo))

	go r.execute(t, id, prompt, generateVideo)
	return id, nil
}

func (r *jobRunner) execute(t *task, id, prompt string, generateVideo bool) {
	ctx := t.ctx
	logger := zerolog.Ctx(ctx)

	defer r.wg.Done()
	defer r.release(id, t)
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("job execution aborted")
			r.finish(t, id, entities.JobUpdate{
				Status:       constant.JobStatusFailed,
				ErrorMessage: fmt.Sprintf("internal error: %v", p),
			}, dto.JobFailedEvent(id, fmt.Sprintf("internal error: %v", p)))
		}
	}()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		logger.Info().Msg("job cancelled before a worker slot was free")
		return
	}
	defer r.sem.Release(1)

	if !r.persist(t, id, entities.JobUpdate{Status: constant.JobStatusProcessing, Progress: entities.Progress(constant.ProgressStarted)}) {
		return
	}
	if !r.persist(t, id, entities.JobUpdate{Status: constant.JobStatusProcessing, Progress: entities.Progress(constant.ProgressLogoStage)}) {
		return
	}

	logger.Info().Msg("generating logo")
	logoURL, err := r.logo.GenerateLogo(ctx, prompt)
	if err != nil {
		msg := fmt.Sprintf("logo generation failed: %v", err)
		logger.Error().Err(err).Msg("logo generation failed")
		r.finish(t, id, entities.JobUpdate{Status: constant.JobStatusFailed, ErrorMessage: msg}, dto.JobFailedEvent(id, msg))
		return
	}
	logger.Info().Str("logo_url", logoURL).Msg("logo generated")
	if !r.persist(t, id, entities.JobUpdate{
		Status:   constant.JobStatusProcessing,
		Progress: entities.Progress(constant.ProgressLogoDone),
		LogoURL:  logoURL,
	}) {
		return
	}

	var videoURL string
	if generateVideo {
		if !r.persist(t, id, entities.JobUpdate{Status: constant.JobStatusProcessing, Progress: entities.Progress(constant.ProgressVideoStage)}) {
			return
		}
		logger.Info().Msg("generating video")
		videoURL, err = r.video.GenerateVideo(ctx, prompt, logoURL)
		if err != nil {
			// Video is best-effort: the job still completes with its logo.
			logger.Warn().Err(err).Msg("video generation failed, completing with logo only")
			videoURL = ""
		} else {
			logger.Info().Str("video_url", videoURL).Msg("video generated")
			if !r.persist(t, id, entities.JobUpdate{
				Status:   constant.JobStatusProcessing,
				Progress: entities.Progress(constant.ProgressVideoDone),
				LogoURL:  logoURL,
				VideoURL: videoURL,
			}) {
				return
			}
		}
	}

	if r.finish(t, id, entities.JobUpdate{
		Status:   constant.JobStatusCompleted,
		Progress: entities.Progress(constant.ProgressDone),
		LogoURL:  logoURL,
		VideoURL: videoURL,
	}, dto.JobCompletedEvent(id, logoURL, videoURL)) {
		logger.Info().Msg("job completed")
	}
}

// persist writes a non-terminal update unless the job was cancelled. It
// reports whether the unit should keep going.
func (r *jobRunner) persist(t *task, id string, update entities.JobUpdate) bool {
	if !r.write(t, id, update, false) {
		return false
	}
	progress := 0
	if update.Progress != nil {
		progress = *update.Progress
	}
	r.hub.Broadcast(t.ctx, dto.JobProgressEvent(id, update.Status, progress))
	return true
}

// finish writes the terminal update unless the job was already cancelled.
func (r *jobRunner) finish(t *task, id string, update entities.JobUpdate, event dto.Event) bool {
	if !r.write(t, id, update, true) {
		return false
	}
	r.hub.Broadcast(t.ctx, event)
	return true
}

func (r *jobRunner) write(t *task, id string, update entities.JobUpdate, terminal bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || t.ctx.Err() != nil {
		return false
	}
	if terminal {
		t.finished = true
	}
	if !r.repo.UpdateStatus(t.ctx, id, update) {
		zerolog.Ctx(t.ctx).Warn().Str("status", string(update.Status)).Bool("terminal", terminal).Msg("job update not persisted")
	}
	return true
}

// release drops the registry entry owned by t. Cancel may already have
// removed it.
func (r *jobRunner) release(id string, t *task) {
	r.mu.Lock()
	if r.active[id] == t {
		delete(r.active, id)
	}
	r.mu.Unlock()
	t.cancel()
}

func (r *jobRunner) Cancel(ctx context.Context, jobID string) bool {
	r.mu.Lock()
	t, ok := r.active[jobID]
	if ok {
		delete(r.active, jobID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	if !r.abort(ctx, jobID, t) {
		return false
	}
	zerolog.Ctx(ctx).Info().Str("job_id", jobID).Msg("job cancelled")
	r.hub.Broadcast(ctx, dto.JobCancelledEvent(jobID))
	return true
}

// abort signals cancellation to t and persists the cancelled state. It
// reports false when the unit had already written its terminal state.
func (r *jobRunner) abort(ctx context.Context, jobID string, t *task) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return false
	}
	t.finished = true
	t.cancel()
	if !r.repo.UpdateStatus(ctx, jobID, entities.JobUpdate{
		Status:       constant.JobStatusFailed,
		ErrorMessage: constant.CancelledMessage,
	}) {
		zerolog.Ctx(ctx).Error().Str("job_id", jobID).Msg("cancelled state not persisted")
	}
	return true
}

func (r *jobRunner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *jobRunner) GetJob(ctx context.Context, jobID string) (*entities.Job, bool) {
	return r.repo.Get(ctx, jobID)
}

func (r *jobRunner) ListJobs(ctx context.Context, ownerID string, limit int) []*entities.Job {
	if ownerID == "" {
		ownerID = constant.DefaultOwnerID
	}
	return r.repo.ListByOwner(ctx, ownerID, NormalizeLimit(limit))
}

func (r *jobRunner) Dashboard(ctx context.Context, ownerID string) dto.DashboardResponse {
	jobs := r.ListJobs(ctx, ownerID, constant.DefaultListLimit)
	summary := dto.DashboardSummary{Total: len(jobs)}
	for _, job := range jobs {
		switch job.Status {
		case constant.JobStatusCompleted:
			summary.Completed++
		case constant.JobStatusPending:
			summary.Pending++
		case constant.JobStatusProcessing:
			summary.Processing++
		case constant.JobStatusFailed:
			summary.Failed++
		}
	}
	return dto.DashboardResponse{Summary: summary, Jobs: jobs}
}

// DeleteJob removes the stored record only; a running unit keeps running.
func (r *jobRunner) DeleteJob(ctx context.Context, jobID string) bool {
	return r.repo.Delete(ctx, jobID)
}

// Recover fails jobs a previous process left pending or processing, since
// no execution unit exists for them any more.
func (r *jobRunner) Recover(ctx context.Context) int {
	recovered := 0
	for _, job := range r.repo.ListPending(ctx) {
		r.mu.Lock()
		_, running := r.active[job.ID]
		r.mu.Unlock()
		if running {
			continue
		}
		if r.repo.UpdateStatus(ctx, job.ID, entities.JobUpdate{
			Status:       constant.JobStatusFailed,
			ErrorMessage: constant.InterruptedMessage,
		}) {
			recovered++
		}
	}
	if recovered > 0 {
		zerolog.Ctx(ctx).Warn().Int("jobs", recovered).Msg("marked interrupted jobs as failed")
	}
	return recovered
}

// Shutdown stops accepting jobs, cancels every active unit and waits for
// them to exit or for ctx to end.
func (r *jobRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	tasks := r.active
	r.active = make(map[string]*task)
	r.mu.Unlock()

	for id, t := range tasks {
		if r.abort(ctx, id, t) {
			r.hub.Broadcast(ctx, dto.JobCancelledEvent(id))
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		zerolog.Ctx(ctx).Info().Int("cancelled", len(tasks)).Msg("job runner drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *jobRunner) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return constant.DefaultListLimit
	case limit > constant.MaxListLimit:
		return constant.MaxListLimit
	default:
		return limit
	}
}
