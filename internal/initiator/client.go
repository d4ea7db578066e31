package initiator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/judgerelay/schema"
	"pkt.systems/pslog"
)

const (
	// DefaultInterval is the progress polling interval.
	DefaultInterval = time.Second
	// DefaultTimeout bounds a whole Run.
	DefaultTimeout = 6 * time.Minute

	maxResponseBytes = 1 << 20
)

// Client talks to the judgerelay HTTP API.
type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for the server at baseURL, e.g. http://127.0.0.1:27490/relay.
// A nil httpClient gets a client without a timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("server url is required")
	}
	base, err := url.Parse(strings.TrimRight(trimmed, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https: %q", baseURL)
	}
	if httpClient == nil {
		// No client timeout: submit blocks through the whole login and ack
		// wait, so callers bound requests with their context.
		httpClient = &http.Client{}
	}
	return &Client{base: base, http: httpClient}, nil
}

// Submit posts a submission and returns the tab driving it.
func (c *Client) Submit(ctx context.Context, sub schema.Submission) (schema.SubmitResponse, error) {
	var resp schema.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/submit", schema.SubmitRequest{Submission: sub}, &resp)
	return resp, err
}

// Progress fetches the latest report for a tab.
func (c *Client) Progress(ctx context.Context, tabID schema.TabID, source schema.Source) (schema.ProgressReport, error) {
	var report schema.ProgressReport
	err := c.do(ctx, http.MethodPost, "/api/progress", schema.ProgressRequest{TabID: tabID, Source: source}, &report)
	return report, err
}

// Sources lists the judges the server can drive.
func (c *Client) Sources(ctx context.Context) ([]schema.Source, error) {
	var sources []schema.Source
	err := c.do(ctx, http.MethodGet, "/api/sources", nil, &sources)
	return sources, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	target := *c.base
	target.Path = c.base.Path + path
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	var env struct {
		Code    schema.Code     `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Code == "" {
		return &schema.EnvelopeError{Code: schema.CodeUnknownError, Message: fmt.Sprintf("unexpected response (HTTP %d)", resp.StatusCode)}
	}
	pslog.Ctx(ctx).Debug("initiator response", "path", path, "status", resp.StatusCode, "code", env.Code)
	if env.Code != schema.CodeSuccess {
		return &schema.EnvelopeError{Code: env.Code, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &schema.EnvelopeError{Code: schema.CodeUnknownError, Message: "success envelope without data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &schema.EnvelopeError{Code: schema.CodeUnknownError, Message: "decode data: " + err.Error()}
	}
	return nil
}
