package tasks

import (
	"fmt"

	"github.com/desertthunder/studyctl/internal/jobs"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	RequestGeneration Phase = iota
	MonitorJob
	RefreshPlan
	BulkGenerate
)

func (p Phase) String() string {
	switch p {
	case RequestGeneration:
		return "request_generation"
	case MonitorJob:
		return "monitor_job"
	case RefreshPlan:
		return "refresh_plan"
	case BulkGenerate:
		return "bulk_generate"
	default:
		return ""
	}
}

func requestDayUpdate(dayID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RequestGeneration,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Requesting generation for day %s...", dayID),
	}
}

func requestSectionUpdate(sectionID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RequestGeneration,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Requesting new tasks for section %s...", sectionID),
	}
}

// jobUpdate carries the monitor state as Data.
func jobUpdate(kind string, s jobs.State) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MonitorJob,
		Message: fmt.Sprintf("[%s %s] %s", kind, s.JobID, s.Message),
		Data:    s,
	}
}

func refreshPlanUpdate(planID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RefreshPlan,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Refreshing plan %s...", planID),
	}
}

func bulkStartedUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BulkGenerate,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Generating %d days...", total),
	}
}

func bulkCompletedUpdate(step, total int, dayID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BulkGenerate,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ day %s", step, total, dayID),
	}
}

func bulkFailedUpdate(step, total int, dayID string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BulkGenerate,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ day %s: %v", step, total, dayID, err),
	}
}
