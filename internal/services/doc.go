// Package services implements the HTTP client for the study-planning backend.
//
// # Session
//
// [Session] is the explicit context object shared by every component that talks to the backend.
// It owns the base URL, default headers and an [http.Client] with a cookie jar; login and refresh
// tokens arrive as cookies and are persisted under the state directory between runs. When an API
// token is configured, requests also carry it as a bearer token through an [oauth2.Transport].
//
// # APIService
//
// [APIService] implements [AuthService], [ChatService], [JobPoller], [JobStreamer] and [PlanService].
// REST calls go through a resty client that retries network errors, 5xx and 429 responses and waits
// on a rate limiter before each request. Streaming calls use [sse.Client] over the same [http.Client],
// so cookies flow to both.
//
// # Error Handling
//
// Non-2xx responses decode the {detail} body into [APIError], which matches:
//   - [shared.ErrAPIRequest] : Any failed request
//   - [shared.ErrNotAuthenticated] : 401 and 403 responses
//
// Transport failures wrap [shared.ErrAPIRequest] together with the underlying error, so context
// cancellation remains detectable with errors.Is.
package services
