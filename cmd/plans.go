package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/studyctl/internal/formatter"
	"github.com/desertthunder/studyctl/internal/jobs"
	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/desertthunder/studyctl/internal/tasks"
	"github.com/urfave/cli/v3"
)

// progressPrinter prints progress updates until the returned stop function is called.
func (r *Runner) progressPrinter() (chan tasks.ProgressUpdate, func()) {
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		last := ""
		for update := range progressCh {
			switch update.Phase {
			case tasks.RequestGeneration:
				r.writePlain("📤 %s\n", update.Message)
			case tasks.MonitorJob:
				// Polling repeats the same message on every check.
				if update.Message != last {
					r.writePlain("⏳ %s\n", update.Message)
				}
			case tasks.RefreshPlan:
				r.writePlain("🔄 %s\n", update.Message)
			case tasks.BulkGenerate:
				if update.Total > 0 && update.Step > 0 {
					r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, update.Message)
				} else {
					r.writePlain("\n📚 %s\n", update.Message)
				}
			}
			last = update.Message
		}
	}()

	return progressCh, func() {
		close(progressCh)
		<-done
	}
}

// PlansList lists the user's study plans.
func (r *Runner) PlansList(ctx context.Context, cmd *cli.Command) error {
	api, err := r.requireAPI()
	if err != nil {
		return err
	}

	plans, err := api.ListPlans(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(plans, true)
	}

	if len(plans) == 0 {
		return r.writePlain("No study plans\n")
	}

	r.writePlainHeader(fmt.Sprintf("Study plans (%d)", len(plans)))
	for _, p := range plans {
		r.writePlain("%s  [%s]  %d days\n", p.Title, models.StatusBadge(p.Status, p.GenerationStatus), p.TotalDays)
		r.writePlain("    %s\n", p.ID)
		if p.LastError != "" {
			r.writePlain("    Last error: %s\n", p.LastError)
		}
	}
	return nil
}

// PlansShow prints a plan outline.
func (r *Runner) PlansShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: plan id is required", shared.ErrMissingArgument)
	}

	api, err := r.requireAPI()
	if err != nil {
		return err
	}

	plan, err := api.GetPlan(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(plan, true)
	}
	return r.writePlain("%s", formatter.PlanToText(plan))
}

// PlansWatch waits for a plan's generation job and prints the refreshed plan.
func (r *Runner) PlansWatch(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: plan id is required", shared.ErrMissingArgument)
	}

	engine, err := r.newEngine(cmd.String("strategy"))
	if err != nil {
		return err
	}

	progress, stop := r.progressPrinter()
	result, err := engine.WatchPlan(ctx, progress, id)
	stop()
	if err != nil {
		return err
	}

	if result.JobID == "" {
		r.writePlain("Plan has no pending generation\n")
	}
	return r.writePlain("\n%s", formatter.PlanToText(result.Plan))
}

// PlansGenerateDay generates one day's tasks, waiting for the job unless --no-watch is set.
func (r *Runner) PlansGenerateDay(ctx context.Context, cmd *cli.Command) error {
	planID := cmd.String("plan")
	dayID := cmd.String("day")
	reset := cmd.Bool("reset")

	if cmd.Bool("no-watch") {
		api, err := r.requireAPI()
		if err != nil {
			return err
		}

		resp, err := api.GenerateDay(ctx, planID, dayID, reset)
		if err != nil {
			return err
		}

		if history, err := r.jobHistory(); err == nil {
			state := jobs.State{JobID: resp.JobID, Status: models.JobRunning, Message: jobs.MessageMonitoring}
			if err := history.Upsert(state.Record(tasks.KindDay)); err != nil {
				r.logger.Warn("failed to record job", "job", resp.JobID, "error", err)
			}
		}

		r.writePlain("✓ Generation started\n")
		r.writePlain("Job: %s\n", resp.JobID)
		r.writePlain("Follow it with 'studyctl jobs watch %s'\n", resp.JobID)
		return nil
	}

	engine, err := r.newEngine(cmd.String("strategy"))
	if err != nil {
		return err
	}

	progress, stop := r.progressPrinter()
	result, err := engine.GenerateDay(ctx, progress, planID, dayID, reset)
	stop()
	if err != nil {
		return err
	}

	r.writePlain("\n✓ Day generated (job %s)\n", result.JobID)
	if day, ok := result.Plan.Day(dayID); ok {
		r.writeDayTasks(day)
	}
	return nil
}

// PlansExtend requests more tasks for --section, or for the section of --day.
func (r *Runner) PlansExtend(ctx context.Context, cmd *cli.Command) error {
	planID := cmd.String("plan")
	sectionID := cmd.String("section")
	dayID := cmd.String("day")

	switch {
	case sectionID == "" && dayID == "":
		return fmt.Errorf("%w: one of --section or --day is required", shared.ErrMissingArgument)
	case sectionID != "" && dayID != "":
		return fmt.Errorf("%w: cannot specify both --section and --day", shared.ErrInvalidArgument)
	}

	engine, err := r.newEngine(cmd.String("strategy"))
	if err != nil {
		return err
	}

	progress, stop := r.progressPrinter()
	var result *tasks.GenerationResult
	if sectionID != "" {
		result, err = engine.ExtendSection(ctx, progress, planID, sectionID)
	} else {
		result, err = engine.ExtendDay(ctx, progress, planID, dayID)
	}
	stop()
	if err != nil {
		return err
	}

	if len(result.Tasks) > 0 {
		r.writePlain("\n✓ %d tasks added\n", len(result.Tasks))
		for _, task := range result.Tasks {
			r.writePlain("  - %s (%s, %d min)\n", task.Title, task.TaskType, task.DurationMinutes)
		}
		return nil
	}

	r.writePlain("\n✓ Section extended (job %s)\n", result.JobID)
	if dayID != "" {
		if day, ok := result.Plan.Day(dayID); ok {
			r.writeDayTasks(day)
		}
	}
	return nil
}

// PlansBulkGenerate generates several days concurrently.
func (r *Runner) PlansBulkGenerate(ctx context.Context, cmd *cli.Command) error {
	planID := cmd.String("plan")
	dayIDs := cmd.StringSlice("day")

	if cmd.Bool("all") {
		api, err := r.requireAPI()
		if err != nil {
			return err
		}
		plan, err := api.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		dayIDs = append(dayIDs, emptyDays(plan)...)
	}
	if len(dayIDs) == 0 {
		return fmt.Errorf("%w: pass --day or --all", shared.ErrMissingArgument)
	}

	engine, err := r.newEngine(cmd.String("strategy"))
	if err != nil {
		return err
	}

	opts := tasks.BulkGenerateOpts{
		NumWorkers:    cmd.Int("workers"),
		RateLimit:     cmd.Float("rate"),
		ResetExisting: cmd.Bool("reset"),
	}

	progress, stop := r.progressPrinter()
	result, err := engine.BulkGenerate(ctx, progress, planID, dayIDs, opts)
	stop()
	if result == nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Bulk Generation Complete")
	r.writePlain("Days: %d\n", result.Total)
	r.writePlain("Succeeded: %d\n", result.Succeeded)
	r.writePlain("Failed: %d\n", result.Failed)

	if result.Failed > 0 {
		r.writePlain("\nFailed days:\n")
		for _, res := range result.Results {
			if !res.Success {
				r.writePlain("  - %s: %v\n", res.DayID, res.Error)
			}
		}
	}

	return err
}

func (r *Runner) writeDayTasks(day *models.StudyDay) {
	r.writePlain("Day %d: %s\n", day.DayIndex, day.Title)
	for _, task := range day.Tasks {
		r.writePlain("  - %s (%s, %d min)\n", task.Title, task.TaskType, task.DurationMinutes)
	}
}

// emptyDays returns the ids of days that have no tasks, in plan order.
func emptyDays(plan *models.StudyPlan) []string {
	var ids []string
	collect := func(days []models.StudyDay) {
		for _, d := range days {
			if len(d.Tasks) == 0 {
				ids = append(ids, d.ID)
			}
		}
	}

	if len(plan.Weeks) > 0 {
		for _, w := range plan.Weeks {
			collect(w.Days)
		}
	} else {
		collect(plan.Days)
	}
	return ids
}
