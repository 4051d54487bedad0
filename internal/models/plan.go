package models

import "encoding/json"

// Generation statuses reported for plans and days.
const (
	GenerationPending   = "pending"
	GenerationRunning   = "running"
	GenerationFailed    = "failed"
	GenerationCompleted = "completed"
)

// Plan statuses.
const (
	PlanDraft    = "draft"
	PlanActive   = "active"
	PlanArchived = "archived"
)

// StudyPlanSummary is an entry of the plan listing.
type StudyPlanSummary struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Status           string  `json:"status"`
	GenerationStatus string  `json:"generation_status"`
	LastError        string  `json:"last_error"`
	JobID            *string `json:"job_id"`
	Summary          string  `json:"summary"`
	TotalDays        int     `json:"total_days"`
	CurrentWeek      string  `json:"current_week"`
	GeneratedAt      string  `json:"generated_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// StudyPlan is a full plan with weeks and days.
type StudyPlan struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Summary          string          `json:"summary"`
	Status           string          `json:"status"`
	StartDate        *string         `json:"start_date"`
	EndDate          *string         `json:"end_date"`
	TotalDays        int             `json:"total_days"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	Weeks            []StudyWeek     `json:"weeks"`
	Days             []StudyDay      `json:"days"`
	RAGDocumentIDs   []string        `json:"rag_document_ids"`
	GenerationStatus string          `json:"generation_status"`
	LastError        string          `json:"last_error"`
	JobID            *string         `json:"job_id"`
}

// Day looks up a day by id across the plan's flat day list and its weeks.
func (p *StudyPlan) Day(id string) (*StudyDay, bool) {
	for i := range p.Days {
		if p.Days[i].ID == id {
			return &p.Days[i], true
		}
	}
	for w := range p.Weeks {
		for d := range p.Weeks[w].Days {
			if p.Weeks[w].Days[d].ID == id {
				return &p.Weeks[w].Days[d], true
			}
		}
	}
	return nil, false
}

// StudyWeek groups days of a plan.
type StudyWeek struct {
	ID        string          `json:"id"`
	WeekIndex int             `json:"week_index"`
	Title     string          `json:"title"`
	Focus     string          `json:"focus"`
	StartDate *string         `json:"start_date"`
	EndDate   *string         `json:"end_date"`
	Status    string          `json:"status"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Days      []StudyDay      `json:"days"`
}

// StudyDay is one scheduled day of a plan.
type StudyDay struct {
	ID               string          `json:"id"`
	DayIndex         int             `json:"day_index"`
	ScheduledDate    *string         `json:"scheduled_date"`
	Title            string          `json:"title"`
	Focus            string          `json:"focus"`
	TargetMinutes    int             `json:"target_minutes"`
	Status           string          `json:"status"`
	SectionID        *string         `json:"section_id"`
	Prerequisites    []string        `json:"prerequisites"`
	WeekIndex        *int            `json:"week_index"`
	Tasks            []StudyTask     `json:"tasks"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	GenerationStatus *string         `json:"generation_status"`
	JobID            *string         `json:"job_id"`
	LastError        *string         `json:"last_error"`
}

// StudyTask is a single activity within a day (flashcards, quiz, reading...).
type StudyTask struct {
	ID              string            `json:"id"`
	Day             string            `json:"day"`
	Order           int               `json:"order"`
	TaskType        string            `json:"task_type"`
	Status          string            `json:"status"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	DurationMinutes int               `json:"duration_minutes"`
	Resources       []json.RawMessage `json:"resources,omitempty"`
	SectionID       *string           `json:"section_id"`
	Difficulty      *int              `json:"difficulty"`
	ResearchNeeded  *bool             `json:"research_needed"`
	ContentType     *string           `json:"content_type"`
	Content         json.RawMessage   `json:"content,omitempty"`
	Metadata        json.RawMessage   `json:"metadata,omitempty"`
}

// GenerateDayRequest is the body of the day generation endpoint.
type GenerateDayRequest struct {
	ResetExisting bool `json:"reset_existing"`
}

// GenerateDayResponse reports the job started for a day generation.
type GenerateDayResponse struct {
	JobID  string `json:"job_id"`
	PlanID string `json:"plan_id"`
	DayID  string `json:"day_id"`
}

// SectionTasksResponse is the result of requesting new tasks for a plan section.
//
// The server either returns the created tasks directly or a job id to monitor.
type SectionTasksResponse struct {
	Tasks []StudyTask
	JobID string
}

// StatusBadge returns a short label describing a plan's state.
func StatusBadge(status, generationStatus string) string {
	switch {
	case generationStatus == GenerationFailed:
		return "AI error"
	case generationStatus == GenerationPending || generationStatus == GenerationRunning:
		return "Generating..."
	case status == PlanActive:
		return "Active"
	case status == PlanArchived:
		return "Archived"
	default:
		return "Draft"
	}
}
