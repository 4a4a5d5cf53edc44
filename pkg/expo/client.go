package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/expobuild/pkg/manifest"
	"github.com/3leaps/expobuild/pkg/session"
)

// DefaultBaseURL is the production API root of the build service.
const DefaultBaseURL = "https://exp.host/--/api"

// StatusPath is the build endpoint, relative to the API root.
const StatusPath = "/build/[]"

// DefaultRequestTimeout bounds a single status request.
const DefaultRequestTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept on APIError.
const maxErrorBody = 4 << 10

// Config configures a Client.
type Config struct {
	// BaseURL is the API root. Empty uses DefaultBaseURL.
	BaseURL string

	// Credentials decorate each request. Nil sends no credentials.
	Credentials session.Credentials

	// HTTPClient overrides the transport. When nil a client with
	// RequestTimeout is created.
	HTTPClient *http.Client

	// RequestTimeout is the per-request timeout for the default HTTP client.
	RequestTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

// Client issues status requests against the build service.
type Client struct {
	baseURL   string
	creds     session.Credentials
	http      *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewClient creates a status client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	creds := cfg.Credentials
	if creds == nil {
		creds = session.Anonymous{}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   baseURL,
		creds:     creds,
		http:      httpClient,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

type statusRequest struct {
	Manifest manifest.Manifest `json:"manifest"`
	Options  statusOptions     `json:"options"`
}

type statusOptions struct {
	Current bool   `json:"current"`
	Mode    string `json:"mode"`
}

// FetchRawStatus performs one status request and returns the decoded response.
// A response without jobs decodes to an empty, non-nil job list.
func (c *Client) FetchRawStatus(ctx context.Context, m manifest.Manifest) (*StatusResponse, error) {
	body, err := json.Marshal(statusRequest{
		Manifest: m,
		Options:  statusOptions{Current: false, Mode: "status"},
	})
	if err != nil {
		return nil, fmt.Errorf("encode status request: %w", err)
	}

	url := c.baseURL + StatusPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	c.creds.Apply(req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("Build status response",
		zap.Int("status", resp.StatusCode),
		zap.String("auth_scheme", c.creds.Scheme()),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	var out StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode build status: %w", err)
	}
	if out.Err != "" && len(out.Jobs) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: out.Err}
	}
	if out.Jobs == nil {
		out.Jobs = []Job{}
	}
	return &out, nil
}

// FetchJobs returns the job list, most recent first.
func (c *Client) FetchJobs(ctx context.Context, m manifest.Manifest) ([]Job, error) {
	status, err := c.FetchRawStatus(ctx, m)
	if err != nil {
		return nil, err
	}
	return status.Jobs, nil
}

// EnsureNoInProgressBuilds reports whether the project has no build running.
// A project that was never published has no builds, so the service's
// "never published" error yields true.
func (c *Client) EnsureNoInProgressBuilds(ctx context.Context, m manifest.Manifest) (bool, error) {
	status, err := c.FetchRawStatus(ctx, m)
	if err != nil {
		if IsNeverPublished(err) {
			c.logger.Debug("Project was never published; treating as idle")
			return true, nil
		}
		return false, err
	}
	return !status.InProgress(), nil
}

// ResolveLatestArtifact returns the most recent job.
func (c *Client) ResolveLatestArtifact(ctx context.Context, m manifest.Manifest) (Job, error) {
	jobs, err := c.FetchJobs(ctx, m)
	if err != nil {
		return Job{}, err
	}
	return LatestJob(jobs)
}

// errorBody covers the error shapes the service has returned over time.
type errorBody struct {
	Err     string `json:"err"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		switch {
		case eb.Err != "":
			apiErr.Message = eb.Err
		case eb.Error != "":
			apiErr.Message = eb.Error
		case len(eb.Errors) > 0:
			apiErr.Message = eb.Errors[0].Message
		case eb.Message != "":
			apiErr.Message = eb.Message
		}
	}
	return apiErr
}
