package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"pos_data_layer/internal/backend"
	"pos_data_layer/internal/config"
	"pos_data_layer/internal/realtime"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	restPath        = "/rest/v1"
	objectMediaType = "application/vnd.pgrst.object+json"
	clientInfo      = "pos-data-layer/go"

	preferRepresentation = "return=representation"
	preferMinimal        = "return=minimal"

	codeNotSingle = "PGRST116"
)

var (
	ErrMissingURL   = errors.New("supabase url is required")
	ErrMissingKey   = errors.New("supabase api key is required")
	ErrUnauthorized = errors.New("supabase unauthorized")
	ErrRateLimited  = errors.New("supabase rate limited")
)

// APIError is a failed PostgREST response. Code, Message, Details and Hint
// come from the JSON error body when the server sends one.
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"-"`
	Body       string `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Body == "" {
		return fmt.Sprintf("supabase api error: %s", e.Status)
	}
	return fmt.Sprintf("supabase api error: %s: %s", e.Status, e.Body)
}

type Client struct {
	http     *resty.Client
	realtime *realtime.Client
	logger   *zap.Logger
}

func NewClient(cfg config.Config, logger *zap.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	apiKey := strings.TrimSpace(cfg.SupabaseAnonKey)
	if baseURL == "" {
		return nil, ErrMissingURL
	}
	if apiKey == "" {
		return nil, ErrMissingKey
	}
	logger = logger.Named("postgrest")

	httpClient := resty.New().
		SetBaseURL(baseURL+restPath).
		SetHeader("apikey", apiKey).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Client-Info", clientInfo).
		SetAuthScheme("Bearer").
		SetAuthToken(apiKey).
		SetTimeout(cfg.Timeout)

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		req.SetHeader("X-Request-Id", uuid.NewString())
		return nil
	})

	rt, err := realtime.NewClient(baseURL, apiKey, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		http:     httpClient,
		realtime: rt,
		logger:   logger,
	}, nil
}

func (c *Client) Select(ctx context.Context, q backend.Query, dest any) error {
	if err := q.Validate(); err != nil {
		return err
	}
	params, err := encodeQuery(q)
	if err != nil {
		return err
	}
	req := c.request(ctx, params)
	if q.SingleRow {
		req.SetHeader("Accept", objectMediaType)
	}
	return c.do(req, http.MethodGet, q.Table, dest)
}

func (c *Client) Insert(ctx context.Context, table string, rows any, dest any) error {
	if !backend.ValidIdentifier(table) {
		return &backend.IdentifierError{Name: table}
	}
	req := c.request(ctx, nil).
		SetBody(rows).
		SetHeader("Prefer", prefer(dest))
	return c.do(req, http.MethodPost, table, dest)
}

func (c *Client) Update(ctx context.Context, table string, filters []backend.Filter, patch any, dest any) error {
	if err := backend.ValidateFilters(table, filters); err != nil {
		return err
	}
	params, err := encodeFilters(filters)
	if err != nil {
		return err
	}
	req := c.request(ctx, params).
		SetBody(patch).
		SetHeader("Prefer", prefer(dest))
	return c.do(req, http.MethodPatch, table, dest)
}

func (c *Client) Delete(ctx context.Context, table string, filters []backend.Filter, dest any) error {
	if err := backend.ValidateFilters(table, filters); err != nil {
		return err
	}
	params, err := encodeFilters(filters)
	if err != nil {
		return err
	}
	req := c.request(ctx, params).SetHeader("Prefer", prefer(dest))
	return c.do(req, http.MethodDelete, table, dest)
}

// DeleteAll clears a table. PostgREST refuses unfiltered deletes, so the
// request matches every row whose id is set.
func (c *Client) DeleteAll(ctx context.Context, table string) error {
	if !backend.ValidIdentifier(table) {
		return &backend.IdentifierError{Name: table}
	}
	params := url.Values{}
	params.Set("id", "not.is.null")
	req := c.request(ctx, params).SetHeader("Prefer", preferMinimal)
	return c.do(req, http.MethodDelete, table, nil)
}

func (c *Client) Subscribe(ctx context.Context, table string, handler backend.ChangeHandler) (backend.Subscription, error) {
	if !backend.ValidIdentifier(table) {
		return nil, &backend.IdentifierError{Name: table}
	}
	return c.realtime.Subscribe(ctx, "public", table, handler)
}

// Probe succeeds once the REST root answers with a non-error status.
func (c *Client) Probe(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return fmt.Errorf("supabase request: %w", err)
	}
	if resp.IsError() {
		return apiErrorFromResponse(resp)
	}
	return nil
}

func (c *Client) Close() error {
	return c.realtime.Close()
}

func (c *Client) request(ctx context.Context, params url.Values) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if len(params) > 0 {
		req.SetQueryParamsFromValues(params)
	}
	return req
}

func (c *Client) do(req *resty.Request, method, table string, dest any) error {
	resp, err := req.Execute(method, "/"+table)
	if err != nil {
		return fmt.Errorf("supabase request: %w", err)
	}
	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("table", table),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", resp.Time()),
	)
	if resp.IsError() {
		return apiErrorFromResponse(resp)
	}
	return backend.Decode(resp.Body(), dest)
}

func prefer(dest any) string {
	if dest == nil {
		return preferMinimal
	}
	return preferRepresentation
}

func apiErrorFromResponse(resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	apiErr := &APIError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       body,
	}
	if strings.HasPrefix(body, "{") {
		_ = json.Unmarshal([]byte(body), apiErr)
	}

	switch {
	case apiErr.Code == codeNotSingle || resp.StatusCode() == http.StatusNotAcceptable:
		return fmt.Errorf("%w: %w", backend.ErrNotSingle, apiErr)
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
	case resp.StatusCode() == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, apiErr)
	default:
		return apiErr
	}
}
