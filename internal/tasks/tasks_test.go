package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/studyctl/internal/jobs"
	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
)

func ptr[T any](v T) *T { return &v }

type mockBackend struct {
	mu           sync.Mutex
	plan         *models.StudyPlan
	getPlanErr   error
	getPlanCalls int
	dayJobs      map[string]string
	generateErr  map[string]error
	section      *models.SectionTasksResponse
	statuses     map[string][]models.JobStatusResponse
	polls        map[string]int
	generated    []string
	resets       []bool
	delay        time.Duration
	active       int
	maxActive    int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		plan: &models.StudyPlan{
			ID:     "plan-1",
			Title:  "Calculus",
			Status: models.PlanActive,
			Days: []models.StudyDay{
				{ID: "day-1", SectionID: ptr("sec-1")},
				{ID: "day-2"},
			},
		},
		dayJobs:     map[string]string{},
		generateErr: map[string]error{},
		statuses:    map[string][]models.JobStatusResponse{},
		polls:       map[string]int{},
	}
}

func (m *mockBackend) ListPlans(ctx context.Context) ([]models.StudyPlanSummary, error) {
	return nil, shared.ErrNotImplemented
}

func (m *mockBackend) GetPlan(ctx context.Context, planID string) (*models.StudyPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getPlanCalls++
	if m.getPlanErr != nil {
		return nil, m.getPlanErr
	}
	if planID != m.plan.ID {
		return nil, shared.ErrPlanNotFound
	}
	plan := *m.plan
	return &plan, nil
}

func (m *mockBackend) GenerateDay(ctx context.Context, planID, dayID string, resetExisting bool) (*models.GenerateDayResponse, error) {
	m.mu.Lock()
	m.generated = append(m.generated, dayID)
	m.resets = append(m.resets, resetExisting)
	m.active++
	m.maxActive = max(m.maxActive, m.active)
	err := m.generateErr[dayID]
	jobID := m.dayJobs[dayID]
	delay := m.delay
	m.mu.Unlock()

	time.Sleep(delay)

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &models.GenerateDayResponse{JobID: jobID, PlanID: planID, DayID: dayID}, nil
}

func (m *mockBackend) GenerateSectionTasks(ctx context.Context, planID, sectionID string) (*models.SectionTasksResponse, error) {
	if m.section == nil {
		return nil, fmt.Errorf("%w: no section configured", shared.ErrAPIRequest)
	}
	return m.section, nil
}

func (m *mockBackend) JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	script, ok := m.statuses[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, jobID)
	}
	i := min(m.polls[jobID], len(script)-1)
	m.polls[jobID]++
	resp := script[i]
	resp.JobID = jobID
	return &resp, nil
}

func (m *mockBackend) pollCount(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[jobID]
}

type mockRecorder struct {
	mu      sync.Mutex
	records []*models.JobRecord
	err     error
}

func (r *mockRecorder) Upsert(job *models.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, job)
	return r.err
}

func (r *mockRecorder) last() *models.JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[len(r.records)-1]
}

func newEngine(backend *mockBackend, recorder JobRecorder) *PlanEngine {
	opts := EngineOptions{
		Monitor:  jobs.Options{Strategy: jobs.StrategyPolling, Interval: 5 * time.Millisecond},
		Recorder: recorder,
	}
	return NewPlanEngine(backend, backend, nil, opts, shared.NewLogger(io.Discard))
}

func drain(progress chan ProgressUpdate) []ProgressUpdate {
	var out []ProgressUpdate
	for {
		select {
		case u := <-progress:
			out = append(out, u)
		default:
			return out
		}
	}
}

func phases(updates []ProgressUpdate) map[Phase]int {
	counts := map[Phase]int{}
	for _, u := range updates {
		counts[u.Phase]++
	}
	return counts
}

func TestPlanEngineGenerateDay(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		backend := newMockBackend()
		backend.dayJobs["day-1"] = "job-1"
		backend.statuses["job-1"] = []models.JobStatusResponse{{Status: "running"}, {Status: "succeeded"}}
		recorder := &mockRecorder{}
		engine := newEngine(backend, recorder)
		progress := make(chan ProgressUpdate, 64)

		result, err := engine.GenerateDay(context.Background(), progress, "plan-1", "day-1", true)
		if err != nil {
			t.Fatalf("GenerateDay failed: %v", err)
		}

		if result.JobID != "job-1" || result.State.Status != models.JobSucceeded {
			t.Errorf("unexpected result %+v", result)
		}
		if result.Plan == nil || result.Plan.ID != "plan-1" {
			t.Error("expected plan to be refreshed")
		}
		if len(backend.resets) != 1 || !backend.resets[0] {
			t.Errorf("expected reset flag to be forwarded, got %v", backend.resets)
		}

		counts := phases(drain(progress))
		if counts[RequestGeneration] != 1 || counts[MonitorJob] == 0 || counts[RefreshPlan] != 1 {
			t.Errorf("unexpected progress phases %v", counts)
		}

		last := recorder.last()
		if last.JobID() != "job-1" || last.Kind() != KindDay || last.Status() != models.JobSucceeded {
			t.Errorf("unexpected recorded job %s %s %s", last.JobID(), last.Kind(), last.Status())
		}
	})

	t.Run("Job Failed", func(t *testing.T) {
		backend := newMockBackend()
		backend.dayJobs["day-1"] = "job-1"
		backend.statuses["job-1"] = []models.JobStatusResponse{{Status: "failed", Error: "quota exceeded"}}
		engine := newEngine(backend, nil)

		result, err := engine.GenerateDay(context.Background(), nil, "plan-1", "day-1", false)
		if !errors.Is(err, shared.ErrJobFailed) {
			t.Fatalf("expected job failure, got %v", err)
		}
		if result.State.Error != "quota exceeded" {
			t.Errorf("unexpected state %+v", result.State)
		}
		if result.Plan != nil {
			t.Error("plan should not be refreshed after a failed job")
		}
	})

	t.Run("Synchronous", func(t *testing.T) {
		backend := newMockBackend()
		engine := newEngine(backend, nil)

		result, err := engine.GenerateDay(context.Background(), nil, "plan-1", "day-2", false)
		if err != nil {
			t.Fatalf("GenerateDay failed: %v", err)
		}
		if result.JobID != "" || result.Plan == nil {
			t.Errorf("expected an immediate refresh, got %+v", result)
		}
	})

	t.Run("Request Error", func(t *testing.T) {
		backend := newMockBackend()
		backend.generateErr["day-1"] = shared.ErrServiceUnavailable
		engine := newEngine(backend, nil)

		if _, err := engine.GenerateDay(context.Background(), nil, "plan-1", "day-1", false); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected service error, got %v", err)
		}
	})

	t.Run("Missing Arguments", func(t *testing.T) {
		engine := newEngine(newMockBackend(), nil)

		if _, err := engine.GenerateDay(context.Background(), nil, "", "day-1", false); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing plan id, got %v", err)
		}
		if _, err := engine.GenerateDay(context.Background(), nil, "plan-1", " ", false); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing day id, got %v", err)
		}
	})

	t.Run("Recorder Errors Ignored", func(t *testing.T) {
		backend := newMockBackend()
		backend.dayJobs["day-1"] = "job-1"
		backend.statuses["job-1"] = []models.JobStatusResponse{{Status: "succeeded"}}
		engine := newEngine(backend, &mockRecorder{err: errors.New("disk full")})

		if _, err := engine.GenerateDay(context.Background(), nil, "plan-1", "day-1", false); err != nil {
			t.Errorf("recorder failure should not fail generation: %v", err)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		backend := newMockBackend()
		backend.dayJobs["day-1"] = "job-1"
		backend.statuses["job-1"] = []models.JobStatusResponse{{Status: "running"}}
		engine := newEngine(backend, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		if _, err := engine.GenerateDay(ctx, nil, "plan-1", "day-1", false); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestPlanEngineExtend(t *testing.T) {
	t.Run("Immediate Tasks", func(t *testing.T) {
		backend := newMockBackend()
		backend.section = &models.SectionTasksResponse{Tasks: []models.StudyTask{{ID: "t-1", Title: "Quiz"}}}
		engine := newEngine(backend, nil)

		result, err := engine.ExtendSection(context.Background(), nil, "plan-1", "sec-1")
		if err != nil {
			t.Fatalf("ExtendSection failed: %v", err)
		}
		if len(result.Tasks) != 1 || result.JobID != "" || result.Plan == nil {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("With Job", func(t *testing.T) {
		backend := newMockBackend()
		backend.section = &models.SectionTasksResponse{JobID: "job-s"}
		backend.statuses["job-s"] = []models.JobStatusResponse{{Status: "succeeded"}}
		engine := newEngine(backend, nil)

		result, err := engine.ExtendSection(context.Background(), nil, "plan-1", "sec-1")
		if err != nil {
			t.Fatalf("ExtendSection failed: %v", err)
		}
		if result.State.Status != models.JobSucceeded || backend.pollCount("job-s") != 1 {
			t.Errorf("expected the job to be followed, got %+v", result.State)
		}
	})

	t.Run("Extend Day", func(t *testing.T) {
		backend := newMockBackend()
		backend.section = &models.SectionTasksResponse{Tasks: []models.StudyTask{{ID: "t-1"}}}
		engine := newEngine(backend, nil)

		result, err := engine.ExtendDay(context.Background(), nil, "plan-1", "day-1")
		if err != nil {
			t.Fatalf("ExtendDay failed: %v", err)
		}
		if result.SectionID != "sec-1" || result.DayID != "day-1" {
			t.Errorf("expected section of day-1, got %+v", result)
		}
	})

	t.Run("Extend Day Without Section", func(t *testing.T) {
		engine := newEngine(newMockBackend(), nil)

		if _, err := engine.ExtendDay(context.Background(), nil, "plan-1", "day-2"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
		if _, err := engine.ExtendDay(context.Background(), nil, "plan-1", "day-9"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument for unknown day, got %v", err)
		}
	})
}

func TestPlanEngineWatchPlan(t *testing.T) {
	t.Run("Generating Plan", func(t *testing.T) {
		backend := newMockBackend()
		backend.plan.Status = models.PlanDraft
		backend.plan.JobID = ptr("job-p")
		backend.statuses["job-p"] = []models.JobStatusResponse{{Status: "running"}, {Status: "succeeded"}}
		engine := newEngine(backend, nil)

		result, err := engine.WatchPlan(context.Background(), nil, "plan-1")
		if err != nil {
			t.Fatalf("WatchPlan failed: %v", err)
		}
		if result.JobID != "job-p" || result.State.Status != models.JobSucceeded {
			t.Errorf("unexpected result %+v", result)
		}
		if backend.getPlanCalls != 2 {
			t.Errorf("expected the plan to be loaded twice, got %d", backend.getPlanCalls)
		}
	})

	t.Run("Ready Plan", func(t *testing.T) {
		backend := newMockBackend()
		engine := newEngine(backend, nil)

		result, err := engine.WatchPlan(context.Background(), nil, "plan-1")
		if err != nil {
			t.Fatalf("WatchPlan failed: %v", err)
		}
		if result.JobID != "" || result.Plan == nil || backend.getPlanCalls != 1 {
			t.Errorf("ready plan should not be watched, got %+v", result)
		}
	})
}

func TestPlanRequiresJob(t *testing.T) {
	tests := []struct {
		name string
		plan *models.StudyPlan
		want bool
	}{
		{"nil plan", nil, false},
		{"pending with job", &models.StudyPlan{Status: models.PlanActive, GenerationStatus: models.GenerationPending, JobID: ptr("j")}, true},
		{"running with job", &models.StudyPlan{Status: models.PlanActive, GenerationStatus: models.GenerationRunning, JobID: ptr("j")}, true},
		{"draft with job", &models.StudyPlan{Status: models.PlanDraft, GenerationStatus: models.GenerationCompleted, JobID: ptr("j")}, true},
		{"draft without job", &models.StudyPlan{Status: models.PlanDraft, GenerationStatus: models.GenerationPending}, false},
		{"empty job id", &models.StudyPlan{Status: models.PlanDraft, JobID: ptr("")}, false},
		{"completed", &models.StudyPlan{Status: models.PlanActive, GenerationStatus: models.GenerationCompleted, JobID: ptr("j")}, false},
		{"failed", &models.StudyPlan{Status: models.PlanActive, GenerationStatus: models.GenerationFailed, JobID: ptr("j")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlanRequiresJob(tt.plan); got != tt.want {
				t.Errorf("PlanRequiresJob() = %v, want %v", got, tt.want)
			}
		})
	}
}
