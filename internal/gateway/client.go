package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	m "github.com/example/qr-payment-confirm/pkg/metrics"
)

const (
	DefaultRequestPath = "/api/v1/common/payments/nets-qr/request"
	DefaultQueryPath   = "/api/v1/common/payments/nets-qr/query"
)

// ErrMalformed is returned when the gateway answered with a body that is not a result envelope.
var ErrMalformed = errors.New("gateway: malformed response")

type Config struct {
	BaseURL     string
	APIKey      string
	ProjectID   string
	RequestPath string
	QueryPath   string
	Timeout     time.Duration
}

// Client calls the create and query endpoints of the payment gateway.
type Client struct {
	http        *resty.Client
	requestPath string
	queryPath   string
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestPath == "" {
		cfg.RequestPath = DefaultRequestPath
	}
	if cfg.QueryPath == "" {
		cfg.QueryPath = DefaultQueryPath
	}

	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		hc.SetHeader("api-key", cfg.APIKey)
	}
	if cfg.ProjectID != "" {
		hc.SetHeader("project-id", cfg.ProjectID)
	}

	return &Client{http: hc, requestPath: cfg.RequestPath, queryPath: cfg.QueryPath}
}

// Create issues the create-payment-code call. A non-nil error means no usable
// response arrived; a declined response is returned without error.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	var out CreateResponse
	if err := c.post(ctx, "create", c.requestPath, req, &out, func() bool { return out.Succeeded() }); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query issues one status query for a retrieval reference.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var out QueryResponse
	if err := c.post(ctx, "query", c.queryPath, req, &out, func() bool { return out.Succeeded() }); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, call, path string, body, out any, ok func() bool) error {
	start := time.Now()
	status := "ERROR"
	defer func() { m.ObserveGateway(call, status, time.Since(start).Seconds()) }()

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return fmt.Errorf("%s: %w", call, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: status=%d body=%s", call, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	if err := decodeEnvelope(resp.Body(), out); err != nil {
		return fmt.Errorf("%s: %w", call, err)
	}

	status = "FAILED"
	if ok() {
		status = "SUCCESS"
	}
	return nil
}

func decodeEnvelope(raw []byte, out any) error {
	var env struct {
		Result struct {
			Data json.RawMessage `json:"data"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	data := env.Result.Data
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: missing result.data", ErrMalformed)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
