// Package autorsa is a Go client for the autorsa-server control plane.
package autorsa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"autorsa/internal/api"
	"autorsa/internal/store"
)

// Order is the request accepted by Submit.
type Order struct {
	Action string          `json:"action"`
	Amount decimal.Decimal `json:"amount"`
	Stock  string          `json:"stock"`
	Dry    bool            `json:"dry"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("autorsa: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Client provides a Go SDK for interacting with the autorsa-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new autorsa API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Ping calls GET / and returns the server's greeting.
func (c *Client) Ping(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/", nil)
	return string(body), err
}

// Submit queues a transaction against the server's default broker set. It
// returns once the server accepted the order, not when it finished. A
// rejected order comes back as an *APIError with StatusCode 422 and the
// validation message; a full queue as 503.
func (c *Client) Submit(ctx context.Context, o Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/", payload)
	return err
}

// ListOrders returns up to limit recent journal entries, newest first.
func (c *Client) ListOrders(ctx context.Context, limit int) ([]store.OrderRecord, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/orders?limit="+strconv.Itoa(limit), nil)
	if err != nil {
		return nil, err
	}
	var recs []store.OrderRecord
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("decoding orders: %w", err)
	}
	return recs, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// SubmitGRPC is Submit over an established gRPC connection.
func SubmitGRPC(ctx context.Context, conn grpc.ClientConnInterface, o Order) error {
	req, err := structpb.NewStruct(map[string]any{
		"action": o.Action,
		"amount": o.Amount.String(),
		"stock":  o.Stock,
		"dry":    o.Dry,
	})
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, api.SubmitMethod, req, new(wrapperspb.StringValue))
}
