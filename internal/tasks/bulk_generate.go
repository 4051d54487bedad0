package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
)

// BulkGenerateOpts contains configuration for bulk day generation.
type BulkGenerateOpts struct {
	NumWorkers    int     // Concurrent workers (default: 3, max: 10)
	RateLimit     float64 // Generation requests per second (default: 1)
	ResetExisting bool    // Replace tasks of days that already have some
}

// DayGenerationResult is the outcome for one day of a bulk run.
type DayGenerationResult struct {
	DayID   string
	JobID   string
	Success bool
	Error   error
}

// BulkGenerateResult summarizes a bulk run. Results are in completion order.
type BulkGenerateResult struct {
	PlanID    string
	Total     int
	Succeeded int
	Failed    int
	Results   []DayGenerationResult
	Plan      *models.StudyPlan
}

// BulkGenerate regenerates days concurrently with rate limiting and progress tracking.
//
// Each worker runs the generate-and-monitor flow for one day at a time. Failures are reported per day
// and do not stop the other days. The plan is refreshed once at the end.
func (e *PlanEngine) BulkGenerate(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	planID string,
	dayIDs []string,
	opts BulkGenerateOpts,
) (*BulkGenerateResult, error) {
	if err := required("plan id", planID); err != nil {
		return nil, err
	}
	if len(dayIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one day id", shared.ErrMissingArgument)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 3
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1.0
	}

	result := &BulkGenerateResult{
		PlanID:  planID,
		Total:   len(dayIDs),
		Results: make([]DayGenerationResult, 0, len(dayIDs)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	days := make(chan string, len(dayIDs))
	results := make(chan DayGenerationResult, len(dayIDs))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.generateWorker(ctx, &wg, planID, days, results, opts)
	}

	go func() {
		defer close(days)
		e.sendProgress(progress, bulkStartedUpdate(len(dayIDs)))
		for _, dayID := range dayIDs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			days <- dayID
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.Succeeded++
			e.sendProgress(progress, bulkCompletedUpdate(completed, len(dayIDs), res.DayID))
		} else {
			result.Failed++
			e.sendProgress(progress, bulkFailedUpdate(completed, len(dayIDs), res.DayID, res.Error))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	refreshed := &GenerationResult{PlanID: planID}
	if err := e.refresh(ctx, progress, refreshed); err != nil {
		return result, err
	}
	result.Plan = refreshed.Plan

	if result.Failed > 0 {
		errs := make([]error, 0, result.Failed)
		for _, res := range result.Results {
			if !res.Success {
				errs = append(errs, fmt.Errorf("day %s: %w", res.DayID, res.Error))
			}
		}
		return result, fmt.Errorf("%d of %d days failed: %w", result.Failed, result.Total, errors.Join(errs...))
	}
	return result, nil
}

// generateWorker is a worker goroutine that generates the days received on the days channel.
func (e *PlanEngine) generateWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	planID string,
	days <-chan string,
	results chan<- DayGenerationResult,
	opts BulkGenerateOpts,
) {
	defer wg.Done()

	for dayID := range days {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res := DayGenerationResult{DayID: dayID}
		gen, err := e.generateDay(ctx, nil, planID, dayID, opts.ResetExisting)
		if gen != nil {
			res.JobID = gen.JobID
		}
		res.Success = err == nil
		res.Error = err
		results <- res
	}
}
