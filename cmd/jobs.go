package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/studyctl/internal/jobs"
	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/tidwall/gjson"
	"github.com/urfave/cli/v3"
)

type jobJSON struct {
	JobID     string          `json:"job_id"`
	Kind      string          `json:"kind,omitempty"`
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// JobsWatch follows a job until it succeeds or fails, streaming when possible.
func (r *Runner) JobsWatch(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrMissingArgument)
	}

	api, err := r.requireAPI()
	if err != nil {
		return err
	}

	opts, err := r.monitorOptions(cmd.String("strategy"))
	if err != nil {
		return err
	}
	if d := cmd.Duration("interval"); d > 0 {
		opts.Interval = d
	}

	history, err := r.jobHistory()
	if err != nil {
		r.logger.Warn("job history disabled", "error", err)
		history = nil
	}

	var monitor *jobs.Monitor
	opts.OnUpdate = func(s jobs.State) {
		r.logger.Info(s.Message, "job", s.JobID, "status", s.Status, "transport", monitor.Transport())
		if history != nil {
			if err := history.Upsert(s.Record("")); err != nil {
				r.logger.Warn("failed to record job", "job", s.JobID, "error", err)
			}
		}
	}
	monitor = jobs.New(api, api, opts, r.logger)

	if err := monitor.Start(ctx, id); err != nil {
		return err
	}
	defer monitor.Stop()

	state, err := monitor.Wait(ctx)
	if err != nil {
		return err
	}
	if !state.Status.Terminal() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: monitoring stopped before the job finished", shared.ErrJobFailed)
	}

	if cmd.Bool("json") {
		if err := r.writeJSON(jobJSON{JobID: state.JobID, Status: string(state.Status), Message: state.Message, Error: state.Error, Result: state.Result}, true); err != nil {
			return err
		}
	} else {
		r.writeJobState(state.JobID, state.Status, state.Error, state.Result)
	}

	if state.Status == models.JobFailed {
		return fmt.Errorf("%w: %s", shared.ErrJobFailed, state.Error)
	}
	return nil
}

// JobsStatus checks a job once and records what it saw.
func (r *Runner) JobsStatus(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrMissingArgument)
	}

	api, err := r.requireAPI()
	if err != nil {
		return err
	}

	resp, err := api.JobStatus(ctx, id)
	if err != nil {
		return err
	}

	status := models.JobStatus(resp.Status)
	if !status.Terminal() {
		status = models.JobRunning
	}

	if history, err := r.jobHistory(); err == nil {
		state := jobs.State{JobID: resp.JobID, Status: status, Error: resp.Error, Result: resp.Result}
		if err := history.Upsert(state.Record("")); err != nil {
			r.logger.Warn("failed to record job", "job", id, "error", err)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(jobJSON{JobID: resp.JobID, Status: resp.Status, Error: resp.Error, Result: resp.Result}, true)
	}
	r.writeJobState(resp.JobID, status, resp.Error, resp.Result)
	return nil
}

// JobsHistory lists recorded jobs, newest first.
func (r *Runner) JobsHistory(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.jobHistory()
	if err != nil {
		return err
	}

	records, err := repo.List(map[string]any{
		"status": cmd.String("status"),
		"kind":   cmd.String("kind"),
		"limit":  cmd.Int("limit"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make([]jobJSON, 0, len(records))
		for _, rec := range records {
			updated := rec.UpdatedAt()
			out = append(out, jobJSON{
				JobID:     rec.JobID(),
				Kind:      rec.Kind(),
				Status:    string(rec.Status()),
				Message:   rec.Message(),
				Error:     rec.ErrorMessage(),
				Result:    rec.Result(),
				UpdatedAt: &updated,
			})
		}
		return r.writeJSON(out, true)
	}

	if len(records) == 0 {
		return r.writePlain("No jobs recorded\n")
	}

	r.writePlainHeader(fmt.Sprintf("Jobs (%d)", len(records)))
	for _, rec := range records {
		kind := rec.Kind()
		if kind == "" {
			kind = "-"
		}
		r.writePlain("%s  %-9s  %-7s  %s\n", statusIcon(rec.Status()), rec.Status(), kind, rec.JobID())
		if rec.ErrorMessage() != "" {
			r.writePlain("    %s\n", rec.ErrorMessage())
		}
	}
	return nil
}

func (r *Runner) writeJobState(jobID string, status models.JobStatus, errMsg string, result json.RawMessage) {
	r.writePlain("%s Job %s: %s\n", statusIcon(status), jobID, status)
	if errMsg != "" {
		r.writePlain("Error: %s\n", errMsg)
	}
	if len(result) > 0 {
		r.writePlain("Result:\n%s\n", gjson.GetBytes(result, "@pretty").Raw)
	}
}

func statusIcon(s models.JobStatus) string {
	switch s {
	case models.JobSucceeded:
		return "✓"
	case models.JobFailed:
		return "✗"
	default:
		return "…"
	}
}
