package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	stepflow "github.com/goliatone/go-stepflow"
	"github.com/goliatone/go-stepflow/workflow"
)

// ErrorEnvelope is the structured error body returned by the backend.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the backend over JSON/HTTP. Routes:
//
//	GET    /definitions
//	GET    /definitions/{domain}/{scope}
//	PUT    /definitions/{domain}/{scope}
//	DELETE /definitions/{domain}/{scope}
//	GET    /records/{domain}/{id}
//	POST   /records/{domain}
//	PUT    /records/{domain}/{id}
//	DELETE /records/{domain}/{id}
//	GET    /unique/{domain}?field=&value=
type Client struct {
	baseURL string
	http    *http.Client
	headers http.Header
	logger  stepflow.Logger
}

var (
	_ DefinitionService = (*Client)(nil)
	_ RecordService     = (*Client)(nil)
	_ UniquenessChecker = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(cl *Client) {
		cl.headers.Add(key, value)
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(l stepflow.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = stepflow.NormalizeLogger(l)
	}
}

// NewClient builds a client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		headers: make(http.Header),
		logger:  stepflow.NormalizeLogger(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) FetchDefinition(ctx context.Context, key DefinitionKey) (*workflow.Definition, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.path("definitions", key.Domain, key.Scope), nil, &raw); err != nil {
		return nil, err
	}
	return workflow.Parse(raw)
}

func (c *Client) SaveDefinition(ctx context.Context, key DefinitionKey, def *workflow.Definition) error {
	return c.do(ctx, http.MethodPut, c.path("definitions", key.Domain, key.Scope), def, nil)
}

func (c *Client) DeleteDefinition(ctx context.Context, key DefinitionKey) error {
	return c.do(ctx, http.MethodDelete, c.path("definitions", key.Domain, key.Scope), nil, nil)
}

func (c *Client) ListDefinitions(ctx context.Context) ([]DefinitionKey, error) {
	var keys []DefinitionKey
	if err := c.do(ctx, http.MethodGet, c.path("definitions"), nil, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *Client) GetRecord(ctx context.Context, domain, id string) (map[string]any, error) {
	var rec map[string]any
	if err := c.do(ctx, http.MethodGet, c.path("records", domain, id), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) CreateRecord(ctx context.Context, domain string, data map[string]any) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.path("records", domain), data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) UpdateRecord(ctx context.Context, domain, id string, data map[string]any) error {
	return c.do(ctx, http.MethodPut, c.path("records", domain, id), data, nil)
}

func (c *Client) DeleteRecord(ctx context.Context, domain, id string) error {
	return c.do(ctx, http.MethodDelete, c.path("records", domain, id), nil, nil)
}

func (c *Client) IsUnique(ctx context.Context, domain, field string, value any) (bool, error) {
	q := url.Values{}
	q.Set("field", field)
	q.Set("value", fmt.Sprint(value))
	var out struct {
		Unique bool `json:"unique"`
	}
	if err := c.do(ctx, http.MethodGet, c.path("unique", domain)+"?"+q.Encode(), nil, &out); err != nil {
		return false, err
	}
	return out.Unique, nil
}

func (c *Client) path(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return stepflow.NewError(stepflow.ErrRemote, "encode request body", err, nil)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return stepflow.NewError(stepflow.ErrRemote, "build request", err, nil)
	}
	for k, values := range c.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed method=%s url=%s: %v", method, target, err)
		return stepflow.NewError(stepflow.ErrRemote, err.Error(), err, map[string]any{"method": method})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stepflow.NewError(stepflow.ErrRemote, "read response body", err, nil)
	}
	if resp.StatusCode >= 300 {
		return decodeRemoteError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return stepflow.NewError(stepflow.ErrRemote, "decode response body", err, nil)
	}
	return nil
}

func decodeRemoteError(status int, body []byte) error {
	var env ErrorEnvelope
	_ = json.Unmarshal(body, &env)
	message := strings.TrimSpace(env.Message)
	if message == "" {
		message = fmt.Sprintf("backend returned %d %s", status, http.StatusText(status))
	}
	meta := map[string]any{"status": status}
	if env.Code != "" {
		meta["remote_code"] = env.Code
	}
	base := stepflow.ErrRemote
	if env.Code == stepflow.ErrCodeDefinitionInUse || (status == http.StatusConflict && env.Code == "") {
		base = stepflow.ErrDefinitionInUse
	}
	return stepflow.NewError(base, message, nil, meta)
}
