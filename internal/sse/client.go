package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
)

// ErrNoBody is reported when a successful response carries no body to stream.
var ErrNoBody = errors.New("sse: response has no body")

// StatusError is reported when the server answers a stream request with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("sse: unexpected status %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("sse: unexpected status %s", e.Status)
}

// Client opens event streams over an [http.Client].
type Client struct {
	httpClient *http.Client
	header     http.Header
	logger     *log.Logger
}

// NewClient creates a [Client]. A nil httpClient uses [http.DefaultClient].
//
// header is added to every request; it may be nil.
func NewClient(httpClient *http.Client, header http.Header, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if header == nil {
		header = http.Header{}
	}
	return &Client{httpClient: httpClient, header: header, logger: logger}
}

// Get opens a GET stream at url and decodes it into h.
func (c *Client) Get(ctx context.Context, url string, h Handler, opts Options) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		h.error(err)
		return err
	}
	return c.Do(ctx, req, h, opts)
}

// Post sends body as JSON to url and decodes the streamed response into h.
func (c *Client) Post(ctx context.Context, url string, body any, h Handler, opts Options) error {
	payload, err := json.Marshal(body)
	if err != nil {
		err = fmt.Errorf("sse: failed to encode request body: %w", err)
		h.error(err)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		h.error(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(ctx, req, h, opts)
}

// Do sends req and decodes its body into h.
//
// Transport failures, non-2xx statuses and missing bodies are reported through h.OnError and
// returned without parsing anything. The response body is always closed.
func (c *Client) Do(ctx context.Context, req *http.Request, h Handler, opts Options) error {
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	if c.logger != nil {
		c.logger.Debug("opening stream", "method", req.Method, "url", req.URL.String())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		h.error(err)
		return err
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body []byte
		if resp.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(resp.Body, 4096))
		}
		err := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(bytes.TrimSpace(body))}
		h.error(err)
		return err
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		h.error(ErrNoBody)
		return ErrNoBody
	}

	err = Decode(ctx, resp.Body, h, opts)
	if c.logger != nil {
		c.logger.Debug("stream closed", "url", req.URL.String(), "error", err)
	}
	return err
}
