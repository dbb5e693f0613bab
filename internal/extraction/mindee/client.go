// Package mindee implements extraction.Extractor on the Mindee v1 async API
// for custom ("generated") endpoints.
package mindee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docintake/internal/config"
	"docintake/internal/extraction"
	"docintake/internal/logging"
)

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// documentSchema is the minimum shape of a finished job we can read fields from.
const documentSchema = `{
  "type": "object",
  "required": ["document"],
  "properties": {
    "document": {
      "type": "object",
      "required": ["inference"],
      "properties": {
        "inference": {
          "type": "object",
          "required": ["prediction"],
          "properties": {
            "prediction": {"type": "object"}
          }
        }
      }
    }
  }
}`

// Client talks to Mindee. It is safe for concurrent use.
type Client struct {
	apiKey       string
	baseURL      string
	initialDelay time.Duration
	pollInterval time.Duration
	maxPolls     int
	httpClient   *http.Client
	schema       *jsonschema.Schema
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a client from configuration.
func New(cfg config.MindeeConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("MINDEE_API_KEY is required")
	}
	schema, err := jsonschema.CompileString("mindee_document.json", documentSchema)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	c := &Client{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		initialDelay: cfg.InitialDelay,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		httpClient:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		schema:       schema,
	}
	if c.maxPolls <= 0 {
		c.maxPolls = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type job struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type enqueueResponse struct {
	Job job `json:"job"`
}

type queueResponse struct {
	Job      job `json:"job"`
	Document *struct {
		Inference *struct {
			Prediction map[string]json.RawMessage `json:"prediction"`
		} `json:"inference"`
	} `json:"document"`
}

// Extract enqueues the document and polls until the job reaches a terminal state.
func (c *Client) Extract(ctx context.Context, req extraction.Request) (extraction.Prediction, error) {
	if req.Document == nil {
		return nil, errors.New("document reader is nil")
	}
	productURL := fmt.Sprintf("%s/products/%s/%s/v%s",
		c.baseURL, url.PathEscape(req.Template.Account), url.PathEscape(req.Template.Name), url.PathEscape(req.Template.Version))

	jobID, err := c.enqueue(ctx, productURL, req)
	if err != nil {
		return nil, err
	}
	logging.Info("mindee_job_enqueued", map[string]any{"job_id": jobID, "template": req.Template.String()})

	raw, err := c.poll(ctx, productURL+"/documents/queue/"+url.PathEscape(jobID))
	if err != nil {
		return nil, err
	}
	return c.decode(raw)
}

func (c *Client) enqueue(ctx context.Context, productURL string, req extraction.Request) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	filename := req.Filename
	if filename == "" {
		filename = "document"
	}
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, req.Document); err != nil {
		return "", fmt.Errorf("copy document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, productURL+"/predict_async", &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	raw, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	var resp enqueueResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: decode enqueue response: %w", extraction.ErrNoInference, err)
	}
	if resp.Job.ID == "" {
		return "", fmt.Errorf("%w: enqueue response has no job id", extraction.ErrNoInference)
	}
	return resp.Job.ID, nil
}

func (c *Client) poll(ctx context.Context, queueURL string) ([]byte, error) {
	timer := time.NewTimer(c.initialDelay)
	defer timer.Stop()

	for i := 0; i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", extraction.ErrNoInference, ctx.Err())
		case <-timer.C:
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, queueURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		raw, err := c.do(httpReq)
		if err != nil {
			return nil, err
		}

		var resp queueResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("%w: decode queue response: %w", extraction.ErrNoInference, err)
		}
		switch resp.Job.Status {
		case statusCompleted:
			return raw, nil
		case statusFailed:
			msg := "job failed"
			if resp.Job.Error != nil && resp.Job.Error.Message != "" {
				msg = resp.Job.Error.Message
			}
			return nil, fmt.Errorf("%w: %s", extraction.ErrNoInference, msg)
		}
		// a finished document can be served without a job wrapper
		if resp.Job.Status == "" && resp.Document != nil {
			return raw, nil
		}
		timer.Reset(c.pollInterval)
	}
	return nil, fmt.Errorf("%w: job not finished after %d polls", extraction.ErrNoInference, c.maxPolls)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", extraction.ErrNoInference, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", extraction.ErrNoInference, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: %s %s returned %d", extraction.ErrNoInference, req.Method, req.URL.Path, resp.StatusCode)
	}
	return raw, nil
}

func (c *Client) decode(raw []byte) (extraction.Prediction, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", extraction.ErrNoInference, err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", extraction.ErrNoInference, err)
	}

	var resp queueResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", extraction.ErrNoInference, err)
	}
	fields := resp.Document.Inference.Prediction
	if len(fields) == 0 {
		return nil, extraction.ErrEmptyPrediction
	}

	out := make(extraction.Prediction, len(fields))
	for key, rawField := range fields {
		out[key] = fieldValue(rawField)
	}
	return out, nil
}

type fieldObject struct {
	Value json.RawMessage `json:"value"`
}

// fieldValue reads a generated-API field: an object with "value", or a list of
// such objects whose values are joined with a space.
func fieldValue(raw json.RawMessage) extraction.Value {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return extraction.Value{}
	}
	switch raw[0] {
	case '{':
		var f fieldObject
		if err := json.Unmarshal(raw, &f); err != nil {
			return extraction.Value{}
		}
		return scalar(f.Value)
	case '[':
		var items []fieldObject
		if err := json.Unmarshal(raw, &items); err != nil {
			return extraction.Value{}
		}
		var parts []string
		for _, it := range items {
			if v := scalar(it.Value); v.Present && v.Text != "" {
				parts = append(parts, v.Text)
			}
		}
		if len(parts) == 0 {
			return extraction.Value{}
		}
		return extraction.Some(strings.Join(parts, " "))
	}
	return extraction.Value{}
}

func scalar(raw json.RawMessage) extraction.Value {
	if len(raw) == 0 {
		return extraction.Value{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return extraction.Value{}
	}
	switch t := v.(type) {
	case string:
		return extraction.Some(t)
	case float64:
		// keep the literal so long ID numbers are not reformatted
		return extraction.Some(string(raw))
	case bool:
		return extraction.Some(fmt.Sprint(t))
	}
	return extraction.Value{}
}
