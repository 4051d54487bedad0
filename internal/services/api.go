// API service for the study-planning backend
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/desertthunder/studyctl/internal/sse"
)

// Endpoint paths relative to the base URL.
const (
	PathLogin       = "/api/login/"
	PathLogout      = "/api/logout/"
	PathMe          = "/api/me/"
	PathRefresh     = "/api/refresh/"
	PathChat        = "/api/ai/chat/"
	PathChatStream  = "/api/ai/chat/stream/"
	PathJobStream   = "/api/ai/jobs/stream/"
	PathStudyPlans  = "/api/ai/study-plans/"
	pathJobStatus   = "/api/ai/jobs/%s/"
	pathStudyPlan   = "/api/ai/study-plans/%s/"
	pathGenerateDay = "/api/ai/study-plans/%s/days/%s/generate/"
	pathPlanTasks   = "/api/ai/study-plans/%s/tasks/"
)

// Options tunes the REST and streaming clients.
type Options struct {
	Timeout time.Duration
	Retries int
	// RateLimit is the maximum number of REST requests per second. Zero disables limiting.
	RateLimit float64
	// EventDelay is awaited after each dispatched stream event.
	EventDelay time.Duration
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int    `json:"-"`
	Method     string `json:"-"`
	Path       string `json:"-"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Unwrap exposes the sentinel errors the response maps to.
func (e *APIError) Unwrap() []error {
	errs := []error{shared.ErrAPIRequest}
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		errs = append(errs, shared.ErrNotAuthenticated)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		errs = append(errs, shared.ErrServiceUnavailable)
	}
	return errs
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// APIService talks to the backend over REST and SSE.
type APIService struct {
	session *Session
	client  *resty.Client
	stream  *sse.Client
	limiter *rate.Limiter
	opts    Options
	logger  *log.Logger
}

// NewAPIService creates an [APIService] bound to session.
func NewAPIService(session *Session, opts Options, logger *log.Logger) *APIService {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	logger = shared.WithLogger(logger, "component", "api")

	// The REST client gets its own copy so its timeout never cuts a stream short.
	hc := *session.HTTPClient()
	client := resty.NewWithClient(&hc).
		SetBaseURL(session.BaseURL()).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetLogger(logger)
	client.AddRetryCondition(retryCondition)

	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	for k, vs := range session.Header() {
		for _, v := range vs {
			client.SetHeader(k, v)
		}
	}

	svc := &APIService{
		session: session,
		client:  client,
		stream:  sse.NewClient(session.HTTPClient(), session.Header(), logger),
		opts:    opts,
		logger:  logger,
	}

	if opts.RateLimit > 0 {
		svc.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
		client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return svc.limiter.Wait(r.Context())
		})
	}

	return svc
}

// retryCondition retries network failures, server errors and throttling.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// Session returns the session the service is bound to.
func (a *APIService) Session() *Session {
	return a.session
}

// do performs a JSON request, decoding a 2xx body into result and any other status into [APIError].
func (a *APIService) do(ctx context.Context, method, path string, body, result any) (*resty.Response, error) {
	req := a.client.R().SetContext(ctx).SetError(&APIError{})
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", shared.ErrAPIRequest, method, path, err)
	}

	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr == nil {
			apiErr = &APIError{}
		}
		apiErr.StatusCode = resp.StatusCode()
		apiErr.Method = method
		apiErr.Path = path
		if apiErr.Detail == "" {
			apiErr.Detail = gjson.GetBytes(resp.Body(), "detail").String()
		}
		if apiErr.Detail == "" {
			apiErr.Detail = shared.Truncate(strings.TrimSpace(resp.String()), 200)
		}
		return resp, apiErr
	}

	a.logger.Debug("request completed", "method", method, "path", path, "status", resp.StatusCode())
	return resp, nil
}

// Login authenticates and persists the session cookies set by the server.
func (a *APIService) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", shared.ErrInvalidInput)
	}

	var out models.LoginResponse
	if _, err := a.do(ctx, http.MethodPost, PathLogin, models.LoginRequest{Username: username, Password: password}, &out); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
		}
		return nil, err
	}

	if err := a.session.Save(); err != nil {
		a.logger.Warn("failed to persist session", "error", err)
	}
	return &out, nil
}

// Logout ends the server session. Local cookies are cleared even when the request fails.
func (a *APIService) Logout(ctx context.Context) error {
	_, err := a.do(ctx, http.MethodPost, PathLogout, nil, nil)
	if clearErr := a.session.Clear(); clearErr != nil {
		a.logger.Warn("failed to clear session", "error", clearErr)
	}
	return err
}

// Me returns the authenticated user.
func (a *APIService) Me(ctx context.Context) (*models.UserRead, error) {
	var out models.UserRead
	if _, err := a.do(ctx, http.MethodGet, PathMe, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh renews the access cookie.
func (a *APIService) Refresh(ctx context.Context) (*models.DetailResponse, error) {
	var out models.DetailResponse
	if _, err := a.do(ctx, http.MethodPost, PathRefresh, nil, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	if err := a.session.Save(); err != nil {
		a.logger.Warn("failed to persist session", "error", err)
	}
	return &out, nil
}

// Chat sends messages without streaming.
func (a *APIService) Chat(ctx context.Context, messages []models.ChatMessage) (*models.ChatReply, error) {
	var out models.ChatReply
	if _, err := a.do(ctx, http.MethodPost, PathChat, models.ChatRequest{Messages: messages}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamChat posts messages with stream=true and decodes the response events into h.
func (a *APIService) StreamChat(ctx context.Context, messages []models.ChatMessage, h sse.Handler) error {
	body := models.ChatRequest{Messages: messages, Stream: true}
	return a.stream.Post(ctx, a.session.URL(PathChatStream), body, h, sse.Options{Delay: a.opts.EventDelay})
}

// JobStatus fetches the current status of a job.
func (a *APIService) JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	var out models.JobStatusResponse
	if _, err := a.do(ctx, http.MethodGet, fmt.Sprintf(pathJobStatus, url.PathEscape(jobID)), nil, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		out.JobID = jobID
	}
	return &out, nil
}

// StreamJob subscribes to status frames for a job.
func (a *APIService) StreamJob(ctx context.Context, jobID string, h sse.Handler) error {
	u := a.session.URL(PathJobStream) + "?" + url.Values{"job_id": {jobID}}.Encode()
	return a.stream.Get(ctx, u, h, sse.Options{Delay: a.opts.EventDelay})
}

// ListPlans returns the user's plans.
func (a *APIService) ListPlans(ctx context.Context) ([]models.StudyPlanSummary, error) {
	var out []models.StudyPlanSummary
	if _, err := a.do(ctx, http.MethodGet, PathStudyPlans, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPlan returns a plan with its weeks, days and tasks.
func (a *APIService) GetPlan(ctx context.Context, planID string) (*models.StudyPlan, error) {
	var out models.StudyPlan
	if _, err := a.do(ctx, http.MethodGet, fmt.Sprintf(pathStudyPlan, url.PathEscape(planID)), nil, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlanNotFound, planID)
		}
		return nil, err
	}
	return &out, nil
}

// GenerateDay starts asynchronous generation of a day's tasks.
func (a *APIService) GenerateDay(ctx context.Context, planID, dayID string, resetExisting bool) (*models.GenerateDayResponse, error) {
	path := fmt.Sprintf(pathGenerateDay, url.PathEscape(planID), url.PathEscape(dayID))

	var out models.GenerateDayResponse
	if _, err := a.do(ctx, http.MethodPost, path, models.GenerateDayRequest{ResetExisting: resetExisting}, &out); err != nil {
		return nil, err
	}
	if out.PlanID == "" {
		out.PlanID = planID
	}
	if out.DayID == "" {
		out.DayID = dayID
	}
	return &out, nil
}

// GenerateSectionTasks requests new tasks for a plan section.
//
// The server answers either with the created tasks or with a job to monitor.
func (a *APIService) GenerateSectionTasks(ctx context.Context, planID, sectionID string) (*models.SectionTasksResponse, error) {
	if sectionID == "" {
		return nil, fmt.Errorf("%w: section id is required", shared.ErrInvalidInput)
	}

	path := fmt.Sprintf(pathPlanTasks, url.PathEscape(planID))
	resp, err := a.do(ctx, http.MethodPost, path, map[string]string{"section_id": sectionID}, nil)
	if err != nil {
		return nil, err
	}

	return decodeSectionTasks(resp.Body())
}

func decodeSectionTasks(body []byte) (*models.SectionTasksResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed section tasks response", shared.ErrAPIRequest)
	}

	doc := gjson.ParseBytes(body)
	out := &models.SectionTasksResponse{JobID: doc.Get("job_id").String()}

	tasks := doc
	if !doc.IsArray() {
		tasks = doc.Get("tasks")
	}
	if tasks.IsArray() {
		if err := json.Unmarshal([]byte(tasks.Raw), &out.Tasks); err != nil {
			return nil, fmt.Errorf("%w: failed to decode tasks: %v", shared.ErrAPIRequest, err)
		}
	}

	return out, nil
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.raw(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	if len(data) > 0 && !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: request body is not valid JSON", shared.ErrInvalidInput)
	}
	return a.raw(ctx, http.MethodPost, path, data)
}

// raw performs a request without status handling; any response is returned to the caller.
func (a *APIService) raw(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	req := a.client.R().SetContext(ctx)
	if data != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(data)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", shared.ErrAPIRequest, method, path, err)
	}

	body := resp.Body()
	apiResp := &APIResponse{
		StatusCode: resp.StatusCode(),
		Headers:    resp.Header(),
		Body:       body,
	}

	if gjson.ValidBytes(body) {
		apiResp.IsJSON = true
		apiResp.JSONData = gjson.ParseBytes(body).Value()
	}

	return apiResp, nil
}
