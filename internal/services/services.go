// package services defines the backend client used by the chat, job and plan components
package services

import (
	"context"

	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/sse"
)

// AuthService manages the cookie-based login session.
type AuthService interface {
	// Login authenticates with username and password. The server sets access and refresh cookies.
	Login(ctx context.Context, username, password string) (*models.LoginResponse, error)

	// Logout clears the server session and the local cookies.
	Logout(ctx context.Context) error

	// Me returns the authenticated user.
	Me(ctx context.Context) (*models.UserRead, error)

	// Refresh exchanges the refresh cookie for a new access cookie.
	Refresh(ctx context.Context) (*models.DetailResponse, error)
}

// ChatService sends chat turns to the assistant.
type ChatService interface {
	// Chat performs a single non-streaming request and returns the complete reply.
	Chat(ctx context.Context, messages []models.ChatMessage) (*models.ChatReply, error)

	// StreamChat posts messages and decodes the event stream into h until it ends.
	StreamChat(ctx context.Context, messages []models.ChatMessage, h sse.Handler) error
}

// JobPoller reads a job's status synchronously.
type JobPoller interface {
	JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error)
}

// JobStreamer subscribes to a job's status stream.
type JobStreamer interface {
	StreamJob(ctx context.Context, jobID string, h sse.Handler) error
}

// PlanService reads study plans and triggers server-side generation.
type PlanService interface {
	ListPlans(ctx context.Context) ([]models.StudyPlanSummary, error)
	GetPlan(ctx context.Context, planID string) (*models.StudyPlan, error)
	GenerateDay(ctx context.Context, planID, dayID string, resetExisting bool) (*models.GenerateDayResponse, error)
	GenerateSectionTasks(ctx context.Context, planID, sectionID string) (*models.SectionTasksResponse, error)
}

var (
	_ AuthService = (*APIService)(nil)
	_ ChatService = (*APIService)(nil)
	_ JobPoller   = (*APIService)(nil)
	_ JobStreamer = (*APIService)(nil)
	_ PlanService = (*APIService)(nil)
)
