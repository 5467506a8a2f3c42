// Package erpnext implements the remote operation client for the
// ERPNext-compatible document store REST API.
package erpnext

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	stderrors "erpnext-bridge/internal/common/errors"
	"erpnext-bridge/internal/common/logger"
)

// Client issues single document operations against the remote store and
// normalizes failures into StandardErrors carrying the HTTP status class.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     logger.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.WithFields(map[string]interface{}{"component": "erpnext"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doRequest performs one HTTP round trip and returns the raw body. Non-2xx
// responses come back as *StandardError classified by status class, with the
// remote's structured error context preserved in metadata.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.apiSecret))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, stderrors.NewOperationTimeoutError(method+" "+path, err)
		}
		return nil, stderrors.NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stderrors.NewNetworkError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		stdErr := stderrors.FromHTTPStatus(resp.StatusCode, string(respBody))
		attachRemoteContext(stdErr, respBody)
		return nil, stdErr
	}

	return respBody, nil
}

// attachRemoteContext extracts the store's structured error fields
// (exc_type, _server_messages) from the response body.
func attachRemoteContext(stdErr *stderrors.StandardError, body []byte) {
	var remote struct {
		ExcType        string `json:"exc_type"`
		ServerMessages string `json:"_server_messages"`
	}
	if err := json.Unmarshal(body, &remote); err != nil {
		return
	}
	if remote.ExcType != "" {
		stdErr.WithMetadata("exc_type", remote.ExcType)
	}
	if remote.ServerMessages != "" {
		stdErr.WithMetadata("server_messages", remote.ServerMessages)
	}
}

// resourcePath builds /api/resource/{DocType}[/{name}] with escaping.
func resourcePath(doctype, name string) string {
	p := "/api/resource/" + url.PathEscape(doctype)
	if name != "" {
		p += "/" + url.PathEscape(name)
	}
	return p
}

// dataEnvelope is the store's standard {"data": ...} response wrapper.
type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func unwrapData(body []byte) (json.RawMessage, error) {
	var env dataEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return env.Data, nil
}

// Create inserts a new document and returns the remote-assigned name plus
// the store's view of the document.
func (c *Client) Create(ctx context.Context, doctype string, fields map[string]interface{}) (string, map[string]interface{}, error) {
	body, err := c.doRequest(ctx, http.MethodPost, resourcePath(doctype, ""), nil, fields)
	if err != nil {
		return "", nil, err
	}
	return decodeDocument(body)
}

// Get fetches one document by name.
func (c *Client) Get(ctx context.Context, doctype, name string) (map[string]interface{}, error) {
	body, err := c.doRequest(ctx, http.MethodGet, resourcePath(doctype, name), nil, nil)
	if err != nil {
		return nil, err
	}
	_, doc, err := decodeDocument(body)
	return doc, err
}

// Update applies a partial field update to an existing document.
func (c *Client) Update(ctx context.Context, doctype, name string, fields map[string]interface{}) (string, map[string]interface{}, error) {
	body, err := c.doRequest(ctx, http.MethodPut, resourcePath(doctype, name), nil, fields)
	if err != nil {
		return "", nil, err
	}
	return decodeDocument(body)
}

// Delete removes a document.
func (c *Client) Delete(ctx context.Context, doctype, name string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, resourcePath(doctype, name), nil, nil)
	return err
}

func decodeDocument(body []byte) (string, map[string]interface{}, error) {
	data, err := unwrapData(body)
	if err != nil {
		return "", nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", nil, fmt.Errorf("failed to decode document: %w", err)
	}
	name, _ := doc["name"].(string)
	return name, doc, nil
}

// Ping checks connectivity by resolving the logged-in user.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.LoggedUser(ctx)
	return err
}
