// package tasks implements study plan generation workflows.
//
// The core abstraction is PlanEngine, which triggers server-side generation, follows the resulting
// job to completion and refreshes the plan. Operations emit progress updates via channels for
// non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/studyctl/internal/jobs"
	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/services"
	"github.com/desertthunder/studyctl/internal/shared"
)

// Job kinds recorded in the job history.
const (
	KindDay     = "day"
	KindSection = "section"
	KindPlan    = "plan"
)

// GenerationResult describes one generate-and-monitor flow.
type GenerationResult struct {
	PlanID    string
	DayID     string
	SectionID string
	JobID     string             // Empty when the server finished synchronously
	State     jobs.State         // Final monitor state
	Tasks     []models.StudyTask // Tasks returned directly by the section endpoint
	Plan      *models.StudyPlan  // Plan refreshed after the job succeeded
}

// JobRecorder persists job states. Implemented by repositories.JobRepository.
type JobRecorder interface {
	Upsert(job *models.JobRecord) error
}

// Engine defines the plan generation workflows.
type Engine interface {
	// GenerateDay asks the server to (re)generate a day, follows the job and returns the refreshed plan.
	GenerateDay(ctx context.Context, progress chan<- ProgressUpdate, planID, dayID string, resetExisting bool) (*GenerationResult, error)

	// ExtendSection requests additional tasks for a plan section.
	ExtendSection(ctx context.Context, progress chan<- ProgressUpdate, planID, sectionID string) (*GenerationResult, error)

	// ExtendDay requests additional tasks for the section a day belongs to.
	ExtendDay(ctx context.Context, progress chan<- ProgressUpdate, planID, dayID string) (*GenerationResult, error)

	// WatchPlan follows the plan's own generation job, if it has one still running.
	WatchPlan(ctx context.Context, progress chan<- ProgressUpdate, planID string) (*GenerationResult, error)

	// BulkGenerate regenerates many days concurrently.
	BulkGenerate(ctx context.Context, progress chan<- ProgressUpdate, planID string, dayIDs []string, opts BulkGenerateOpts) (*BulkGenerateResult, error)
}

// EngineOptions configures a [PlanEngine].
type EngineOptions struct {
	Monitor  jobs.Options // Strategy and interval for job monitors; callbacks are replaced
	Recorder JobRecorder  // Optional job history
}

// PlanEngine implements [Engine] on top of the backend services.
type PlanEngine struct {
	plans    services.PlanService
	poller   services.JobPoller
	streamer services.JobStreamer
	opts     EngineOptions
	logger   *log.Logger
}

var _ Engine = (*PlanEngine)(nil)

// NewPlanEngine creates a new PlanEngine. A nil streamer restricts job monitoring to polling.
func NewPlanEngine(plans services.PlanService, poller services.JobPoller, streamer services.JobStreamer, opts EngineOptions, logger *log.Logger) *PlanEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PlanEngine{
		plans:    plans,
		poller:   poller,
		streamer: streamer,
		opts:     opts,
		logger:   shared.WithLogger(logger, "component", "tasks"),
	}
}

// PlanRequiresJob reports whether the plan is still being generated by a job that can be monitored.
func PlanRequiresJob(plan *models.StudyPlan) bool {
	if plan == nil || plan.JobID == nil || *plan.JobID == "" {
		return false
	}
	pending := plan.GenerationStatus == models.GenerationPending || plan.GenerationStatus == models.GenerationRunning
	return pending || plan.Status == models.PlanDraft
}

// sendProgress sends a progress update through the channel without blocking.
func (e *PlanEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// GenerateDay triggers day generation and follows the returned job.
func (e *PlanEngine) GenerateDay(ctx context.Context, progress chan<- ProgressUpdate, planID, dayID string, resetExisting bool) (*GenerationResult, error) {
	result, err := e.generateDay(ctx, progress, planID, dayID, resetExisting)
	if err != nil {
		return result, err
	}
	return result, e.refresh(ctx, progress, result)
}

// generateDay is GenerateDay without the final plan refresh.
func (e *PlanEngine) generateDay(ctx context.Context, progress chan<- ProgressUpdate, planID, dayID string, resetExisting bool) (*GenerationResult, error) {
	if err := required("plan id", planID); err != nil {
		return nil, err
	}
	if err := required("day id", dayID); err != nil {
		return nil, err
	}

	e.sendProgress(progress, requestDayUpdate(dayID))
	resp, err := e.plans.GenerateDay(ctx, planID, dayID, resetExisting)
	if err != nil {
		return nil, fmt.Errorf("failed to request day generation: %w", err)
	}

	result := &GenerationResult{PlanID: planID, DayID: dayID, JobID: resp.JobID}
	if resp.JobID == "" {
		return result, nil
	}

	result.State, err = e.watch(ctx, progress, KindDay, resp.JobID)
	return result, err
}

// ExtendSection requests new tasks for a section. The server either answers with the tasks or with a job to follow.
func (e *PlanEngine) ExtendSection(ctx context.Context, progress chan<- ProgressUpdate, planID, sectionID string) (*GenerationResult, error) {
	if err := required("plan id", planID); err != nil {
		return nil, err
	}
	if err := required("section id", sectionID); err != nil {
		return nil, err
	}

	e.sendProgress(progress, requestSectionUpdate(sectionID))
	resp, err := e.plans.GenerateSectionTasks(ctx, planID, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to request section tasks: %w", err)
	}

	result := &GenerationResult{PlanID: planID, SectionID: sectionID, JobID: resp.JobID, Tasks: resp.Tasks}
	if resp.JobID != "" {
		if result.State, err = e.watch(ctx, progress, KindSection, resp.JobID); err != nil {
			return result, err
		}
	}

	return result, e.refresh(ctx, progress, result)
}

// ExtendDay resolves the day's section and extends it.
func (e *PlanEngine) ExtendDay(ctx context.Context, progress chan<- ProgressUpdate, planID, dayID string) (*GenerationResult, error) {
	if err := required("day id", dayID); err != nil {
		return nil, err
	}

	plan, err := e.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	day, ok := plan.Day(dayID)
	if !ok {
		return nil, fmt.Errorf("%w: day %s is not part of plan %s", shared.ErrInvalidArgument, dayID, planID)
	}
	if day.SectionID == nil || *day.SectionID == "" {
		return nil, fmt.Errorf("%w: day %s has no section", shared.ErrInvalidArgument, dayID)
	}

	result, err := e.ExtendSection(ctx, progress, planID, *day.SectionID)
	if result != nil {
		result.DayID = dayID
	}
	return result, err
}

// WatchPlan loads the plan and, when [PlanRequiresJob] holds, follows its job and reloads it.
func (e *PlanEngine) WatchPlan(ctx context.Context, progress chan<- ProgressUpdate, planID string) (*GenerationResult, error) {
	if err := required("plan id", planID); err != nil {
		return nil, err
	}

	plan, err := e.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	result := &GenerationResult{PlanID: planID, Plan: plan}
	if !PlanRequiresJob(plan) {
		return result, nil
	}

	result.JobID = *plan.JobID
	if result.State, err = e.watch(ctx, progress, KindPlan, result.JobID); err != nil {
		return result, err
	}
	return result, e.refresh(ctx, progress, result)
}

// watch follows jobID to a terminal state, recording every state change.
func (e *PlanEngine) watch(ctx context.Context, progress chan<- ProgressUpdate, kind, jobID string) (jobs.State, error) {
	opts := e.opts.Monitor
	opts.OnSuccess = nil
	opts.OnError = nil
	opts.OnUpdate = func(s jobs.State) {
		e.sendProgress(progress, jobUpdate(kind, s))
		e.record(kind, s)
	}

	monitor := jobs.New(e.poller, e.streamer, opts, e.logger)
	if err := monitor.Start(ctx, jobID); err != nil {
		return jobs.State{}, err
	}
	defer monitor.Stop()

	state, err := monitor.Wait(ctx)
	if err != nil {
		return state, err
	}

	switch state.Status {
	case models.JobSucceeded:
		return state, nil
	case models.JobFailed:
		return state, fmt.Errorf("%w: %s: %s", shared.ErrJobFailed, jobID, state.Message)
	default:
		if err := ctx.Err(); err != nil {
			return state, err
		}
		return state, fmt.Errorf("%w: monitoring of %s stopped before completion", shared.ErrJobFailed, jobID)
	}
}

// record stores the job state. Failures are logged and otherwise ignored so history never interrupts generation.
func (e *PlanEngine) record(kind string, s jobs.State) {
	if e.opts.Recorder == nil {
		return
	}
	if err := e.opts.Recorder.Upsert(s.Record(kind)); err != nil {
		e.logger.Warn("failed to record job", "job", s.JobID, "error", err)
	}
}

func (e *PlanEngine) refresh(ctx context.Context, progress chan<- ProgressUpdate, result *GenerationResult) error {
	e.sendProgress(progress, refreshPlanUpdate(result.PlanID))

	plan, err := e.plans.GetPlan(ctx, result.PlanID)
	if err != nil {
		return fmt.Errorf("job finished but the plan could not be refreshed: %w", err)
	}
	result.Plan = plan
	return nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return nil
}
