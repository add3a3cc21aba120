package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"crmboard/internal/models"
	"crmboard/internal/pipeline"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryDelay = time.Second
	defaultMaxRetries = 1
)

// APIError: ответ upstream с кодом не 2xx.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *APIError) retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRetryDelay задаёт паузу перед единственным повтором.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// Client ходит в CRM API за воронками и лидами.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retryDelay time.Duration
	maxRetries int
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		retryDelay: defaultRetryDelay,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken возвращает копию клиента с токеном вызывающего пользователя.
// Пустой токен оставляет токен из конфига.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	if token != "" {
		cp.token = token
	}
	return &cp
}

type pipelinesEnvelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// GetPipelines: GET /amo-crm/pipelines.
func (c *Client) GetPipelines(ctx context.Context) ([]models.RawPipeline, error) {
	body, err := c.get(ctx, "/amo-crm/pipelines")
	if err != nil {
		return nil, err
	}

	var env pipelinesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse pipelines: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}

	var list []models.RawPipeline
	if err := json.Unmarshal(env.Data, &list); err == nil {
		return list, nil
	}
	// { success: true, data: { data: [...] } }
	var inner struct {
		Data []models.RawPipeline `json:"data"`
	}
	if err := json.Unmarshal(env.Data, &inner); err != nil {
		return nil, fmt.Errorf("parse pipelines: %w", err)
	}
	return inner.Data, nil
}

// ListLeads: GET /leads с параметрами фильтра.
func (c *Client) ListLeads(ctx context.Context, q pipeline.LeadQuery) (*models.LeadsPage, error) {
	body, err := c.get(ctx, "/leads?"+q.Values().Encode())
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Success bool              `json:"success"`
		Data    *models.LeadsPage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Success && wrapped.Data != nil {
		return wrapped.Data, nil
	}

	var page models.LeadsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parse leads: %w", err)
	}
	return &page, nil
}

// get делает запрос с одним повтором через фиксированную паузу
// (сетевые ошибки и 5xx; 4xx возвращаются сразу).
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[apiclient] retry %s after error: %v", path, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		body, err := c.do(ctx, path)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
