package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/logging"
	"github.com/efebarandurmaz/causaldiscover/internal/task"
)

const (
	DefaultPollInterval  = time.Second
	DefaultStartRetries  = 3
	DefaultRemoteTimeout = 10 * time.Second
)

// Remote task statuses reported by the discovery service.
const (
	StatusPending = "pending"
	StatusStarted = "started"
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusRevoked = "revoked"
)

// HTTPClient runs discovery against the remote service: it starts a task,
// polls it until it settles, and cancels it remotely when the caller gives
// up.
type HTTPClient struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	startRetries uint
	progress     ProgressFunc
	deciOptions  map[string]any
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.client = c }
}

func WithPollInterval(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// WithStartRetries sets how many times the start request is attempted.
func WithStartRetries(n uint) HTTPOption {
	return func(h *HTTPClient) {
		if n > 0 {
			h.startRetries = n
		}
	}
}

// WithDeciOptions sets the options sent with DECI runs.
func WithDeciOptions(opts map[string]any) HTTPOption {
	return func(h *HTTPClient) { h.deciOptions = opts }
}

func WithProgress(fn ProgressFunc) HTTPOption {
	return func(h *HTTPClient) { h.progress = fn }
}

// NewHTTPClient creates a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/") + "/",
		client:       &http.Client{Timeout: DefaultRemoteTimeout},
		pollInterval: DefaultPollInterval,
		startRetries: DefaultStartRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type startRequest struct {
	Dataset     *columnarJSON      `json:"dataset"`
	Constraints ConstraintsPayload `json:"constraints"`
	DeciOptions map[string]any     `json:"deciOptions,omitempty"`
}

type startResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status   string          `json:"status"`
	Progress float64         `json:"progress"`
	Result   json.RawMessage `json:"result"`
}

type resultPayload struct {
	Elements struct {
		Edges []struct {
			Data Edge `json:"data"`
		} `json:"edges"`
	} `json:"elements"`
	ConfidenceMatrix             [][]float64 `json:"confidence_matrix"`
	ATEMatrix                    [][]float64 `json:"ate_matrix"`
	Columns                      []string    `json:"columns"`
	InterpretBooleanAsContinuous bool        `json:"interpret_boolean_as_continuous"`
}

// Discover implements Discoverer. Algorithm None returns an empty graph
// without contacting the service.
func (c *HTTPClient) Discover(ctx context.Context, dataset Dataset, inModel []causal.CausalVariable, constraints causal.Constraints, algorithm causal.Algorithm) (*Result, error) {
	if algorithm == causal.AlgorithmNone || algorithm == "" {
		return &Result{Graph: causal.EmptyGraph(inModel, constraints, causal.AlgorithmNone)}, nil
	}
	if dataset.Table == nil {
		return nil, fmt.Errorf("dataset %q has no table", dataset.Name)
	}

	columns := make([]string, len(inModel))
	for i, v := range inModel {
		columns[i] = v.ColumnName
	}
	data, err := tableJSON(dataset.Table, columns)
	if err != nil {
		return nil, err
	}
	req := startRequest{
		Dataset:     data,
		Constraints: BuildConstraintsPayload(inModel, constraints),
	}
	if algorithm == causal.AlgorithmDECI {
		req.DeciOptions = c.deciOptions
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal discovery request: %w", err)
	}

	taskID, err := c.start(ctx, algorithm, body)
	if err != nil {
		return nil, err
	}

	raw, err := c.poll(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var payload resultPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode discovery result %s: %w", taskID, err)
	}
	edges := make([]Edge, len(payload.Elements.Edges))
	for i, e := range payload.Elements.Edges {
		edges[i] = e.Data
	}
	g, err := FromEdges(inModel, edges, constraints, algorithm)
	if err != nil {
		return nil, err
	}

	result := &Result{Graph: g}
	if len(payload.Columns) > 0 && (payload.ConfidenceMatrix != nil || payload.ATEMatrix != nil) {
		result.Model = &InferenceModel{
			ColumnNames:                  payload.Columns,
			ConfidenceMatrix:             payload.ConfidenceMatrix,
			TreatmentEffectMatrix:        payload.ATEMatrix,
			InterpretBooleanAsContinuous: payload.InterpretBooleanAsContinuous,
		}
	}
	return result, nil
}

// start posts the run request, retrying transport errors and 5xx answers.
func (c *HTTPClient) start(ctx context.Context, algorithm causal.Algorithm, body []byte) (string, error) {
	url := c.baseURL + strings.ToLower(string(algorithm)) + "/"
	logger := logging.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.pollInterval

	id, err := backoff.Retry(ctx, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("start discovery: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("start discovery: status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return "", backoff.Permanent(fmt.Errorf("start discovery: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
		}

		var sr startResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return "", backoff.Permanent(fmt.Errorf("decode start response: %w", err))
		}
		if sr.ID == "" {
			return "", backoff.Permanent(fmt.Errorf("start discovery: empty task id"))
		}
		return sr.ID, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.startRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("retrying discovery start", "algorithm", algorithm, "error", err, "backoff", next)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", &task.CanceledError{}
		}
		return "", err
	}
	logger.Debug("discovery task started", "task_id", id, "algorithm", algorithm)
	return id, nil
}

// poll waits for the remote task to settle and returns its raw result.
func (c *HTTPClient) poll(ctx context.Context, taskID string) (json.RawMessage, error) {
	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	lastProgress := 0.0
	c.report(lastProgress, taskID)

	for {
		if err := limiter.Wait(ctx); err != nil {
			c.cancelRemote(ctx, taskID)
			return nil, &task.CanceledError{TaskID: taskID}
		}

		status, err := c.fetchStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				c.cancelRemote(ctx, taskID)
				return nil, &task.CanceledError{TaskID: taskID}
			}
			return nil, err
		}

		if p := math.Max(status.Progress, lastProgress); p != lastProgress {
			lastProgress = p
			c.report(lastProgress, taskID)
		}

		switch strings.ToLower(status.Status) {
		case StatusPending, StatusStarted:
			continue
		case StatusRevoked:
			return nil, &task.CanceledError{TaskID: taskID}
		case StatusFailure:
			return nil, fmt.Errorf("error running discovery: %s", failureMessage(status.Result))
		case StatusSuccess:
			return status.Result, nil
		default:
			return nil, fmt.Errorf("discovery task %s: unexpected status %q", taskID, status.Status)
		}
	}
}

func (c *HTTPClient) fetchStatus(ctx context.Context, taskID string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch discovery status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch discovery status: status %d", resp.StatusCode)
	}
	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode discovery status: %w", err)
	}
	return &sr, nil
}

// Cancel asks the service to revoke a task.
func (c *HTTPClient) Cancel(ctx context.Context, taskID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+taskID, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cancel discovery task %s: %w", taskID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("cancel discovery task %s: status %d", taskID, resp.StatusCode)
	}
	return nil
}

// cancelRemote revokes a task after ctx is done, so it uses a fresh
// deadline detached from ctx.
func (c *HTTPClient) cancelRemote(ctx context.Context, taskID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultRemoteTimeout)
	defer cancel()
	if err := c.Cancel(cctx, taskID); err != nil {
		logging.FromContext(ctx).Warn("failed to cancel discovery task", "task_id", taskID, "error", err)
	}
}

func (c *HTTPClient) report(progress float64, taskID string) {
	if c.progress != nil {
		c.progress(progress, taskID)
	}
}

func failureMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var _ Discoverer = (*HTTPClient)(nil)
