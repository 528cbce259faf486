package buildmaster

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
	"git.home.luguber.info/inful/buildworker/internal/job"
	"git.home.luguber.info/inful/buildworker/internal/logfields"
	"git.home.luguber.info/inful/buildworker/internal/retry"
)

// State is the attempt state the build master reports when a build starts.
type State string

const (
	StateRunning State = "running"
	StateAborted State = "aborted"
)

const (
	signalTimeout = 60 * time.Second
	uploadTimeout = 5 * time.Minute

	// ArtifactField is the multipart field the build master reads uploads from.
	ArtifactField = "build_artifact[log_file]"
)

// StatusError is returned when the build master answers with a 4xx or 5xx.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("build master responded %d %s for %s", e.Code, http.StatusText(e.Code), e.URL)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// Builder identifies this host in start signals.
	Builder         string
	LogstreamerPort int
	HTTPClient      *http.Client
	Clock           clockwork.Clock
	// Policy governs retries of start and finish signals.
	Policy retry.Policy
}

// Client talks to the build master's build_attempts endpoints.
type Client struct {
	baseURL         string
	builder         string
	logstreamerPort int
	httpClient      *http.Client
	clock           clockwork.Clock
	policy          retry.Policy
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		baseURL:         strings.TrimSuffix(opts.BaseURL, "/"),
		builder:         opts.Builder,
		logstreamerPort: opts.LogstreamerPort,
		httpClient:      httpClient,
		clock:           clock,
		policy:          opts.Policy,
	}
}

// Start announces that this host is taking the attempt. The build master
// answers aborted when the attempt was cancelled or claimed elsewhere.
func (c *Client) Start(ctx context.Context, attemptID string) (State, error) {
	form := url.Values{"builder": {c.builder}}
	if c.logstreamerPort > 0 {
		form.Set("logstreamer_port", strconv.Itoa(c.logstreamerPort))
	}

	var body struct {
		BuildAttempt struct {
			State State `json:"state"`
		} `json:"build_attempt"`
	}
	err := c.signal(ctx, attemptID, "start", form, &body)
	if err != nil {
		return "", err
	}
	switch body.BuildAttempt.State {
	case StateRunning, StateAborted:
		return body.BuildAttempt.State, nil
	default:
		return "", errors.ValidationError("unexpected build attempt state").
			WithContext("attempt_id", attemptID).
			WithContext("state", string(body.BuildAttempt.State)).
			Build()
	}
}

// Finish records the attempt outcome.
func (c *Client) Finish(ctx context.Context, attemptID string, outcome job.Outcome) error {
	return c.signal(ctx, attemptID, "finish", url.Values{"state": {string(outcome)}}, nil)
}

// UploadArtifact posts the file at path as a build artifact. Uploads are
// tried once; callers treat failures as non-fatal.
func (c *Client) UploadArtifact(ctx context.Context, attemptID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.FileSystemError("open artifact").WithCause(err).
			WithContext("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(ArtifactField, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	endpoint := c.endpoint(attemptID, "build_artifacts")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return errors.InternalError("failed to create request").WithCause(err).WithContext("url", endpoint).Build()
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/xml")

	err = c.do(req, nil)
	_ = pr.Close()
	return err
}

func (c *Client) signal(ctx context.Context, attemptID, action string, form url.Values, result any) error {
	endpoint := c.endpoint(attemptID, action)
	r := retry.Retrier{
		Policy:      c.policy,
		Clock:       c.clock,
		ShouldRetry: isTransient,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			slog.Warn("Build master request failed, retrying",
				logfields.AttemptID(attemptID),
				logfields.URL(endpoint),
				logfields.Attempt(attempt),
				slog.Duration("backoff", delay),
				logfields.Error(err))
		},
	}
	return r.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, signalTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return errors.InternalError("failed to create request").WithCause(err).WithContext("url", endpoint).Build()
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return c.do(req, result)
	})
}

func (c *Client) endpoint(attemptID, action string) string {
	return fmt.Sprintf("%s/build_attempts/%s/%s", c.baseURL, url.PathEscape(attemptID), action)
}

// do executes req and decodes a JSON body into result when result is non-nil.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		b := errors.NetworkError("build master request failed").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String())
		if stderrors.Is(req.Context().Err(), context.Canceled) {
			b.WithRetry(errors.RetryNever)
		}
		return b.Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Code: resp.StatusCode,
			URL:  req.URL.String(),
			Body: strings.ReplaceAll(string(limited), "\n", " "),
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return errors.NetworkError("failed to decode build master response").
				WithCause(err).
				WithContext("url", req.URL.String()).
				Build()
		}
	}
	return nil
}

// isTransient retries connection failures and server errors; client errors
// mean the request itself is wrong and are returned immediately.
func isTransient(err error) bool {
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.Code >= 500
	}
	return errors.IsRetryable(err)
}
