// Package posclient is the terminal agent's HTTP client for the order server.
package posclient

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

	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/offline"
)

const maxResponseBytes = 1 << 20

// Client submits checkouts for one outlet. It satisfies offline.Submitter.
type Client struct {
	baseURL  string
	outletID string
	token    string
	http     *http.Client
}

// New creates a Client. Per-call deadlines come from the caller's context;
// timeout is a backstop for calls made without one.
func New(baseURL, outletID, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		outletID: outletID,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Error     string         `json:"error"`
	ErrorKind string         `json:"error_kind"`
	Details   map[string]any `json:"details"`
}

// Submit posts a checkout under key. The server treats a repeated key as a
// replay and returns the order it already created.
func (c *Client) Submit(ctx context.Context, key string, req offline.CheckoutRequest) (*offline.Order, error) {
	if req.Source == "" {
		req.Source = enum.OrderSourceOfflineSync
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ordersURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", key)

	return c.do(httpReq)
}

// Lookup fetches the order created under key. offline.ErrNotFound means the
// server never committed it.
func (c *Client) Lookup(ctx context.Context, key string) (*offline.Order, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ordersURL()+"/by-ref/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	order, err := c.do(httpReq)
	if err != nil {
		var rejected *offline.RejectedError
		if errors.As(err, &rejected) && rejected.Kind == enum.ErrorKindOrderNotFound {
			return nil, offline.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (c *Client) ordersURL() string {
	return c.baseURL + "/outlets/" + url.PathEscape(c.outletID) + "/orders"
}

// do sends the request and classifies the outcome. Only a 4xx that names an
// error kind is a definite refusal; everything else may succeed later.
func (c *Client) do(req *http.Request) (*offline.Order, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", req.Method, req.URL.Path, err, offline.ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, offline.ErrUnavailable)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var order offline.Order
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, fmt.Errorf("decode order: %v: %w", err, offline.ErrUnavailable)
		}
		if order.ID == "" {
			return nil, fmt.Errorf("order response without id: %w", offline.ErrUnavailable)
		}
		return &order, nil
	}

	if retryable(resp.StatusCode) {
		return nil, fmt.Errorf("server returned %d: %w", resp.StatusCode, offline.ErrUnavailable)
	}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || eb.ErrorKind == "" {
		return nil, fmt.Errorf("server returned %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(raw)), offline.ErrUnavailable)
	}
	return nil, &offline.RejectedError{Kind: eb.ErrorKind, Message: eb.Error, Details: eb.Details}
}

// retryable reports statuses that say nothing about the request itself.
// Auth failures are included: a refreshed token will let the replay through.
func retryable(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}
