package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SandboxBaseURL is the Midtrans sandbox host for the Snap API.
const SandboxBaseURL = "https://app.sandbox.midtrans.com"

// SnapRequest is the body of a Snap create-transaction call.
type SnapRequest struct {
	TransactionDetails TransactionDetails `json:"transaction_details"`
	ItemDetails        []ItemDetail       `json:"item_details,omitempty"`
	CustomerDetails    *CustomerDetails   `json:"customer_details,omitempty"`
}

type TransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type ItemDetail struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int32  `json:"quantity"`
}

type CustomerDetails struct {
	FirstName string `json:"first_name,omitempty"`
}

// SnapResponse is returned by a successful create-transaction call.
type SnapResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// SnapClient creates Snap transactions.
type SnapClient struct {
	baseURL   string
	serverKey string
	http      *http.Client
}

// NewSnapClient creates a SnapClient. An empty baseURL targets the sandbox.
func NewSnapClient(baseURL, serverKey string, timeout time.Duration) *SnapClient {
	if baseURL == "" {
		baseURL = SandboxBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SnapClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		serverKey: serverKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// CreateTransaction registers a transaction and returns its Snap token.
func (c *SnapClient) CreateTransaction(ctx context.Context, req SnapRequest) (*SnapResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal snap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build snap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.SetBasicAuth(c.serverKey, "")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("snap request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read snap response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snap returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out SnapResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode snap response: %w", err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("snap response without token")
	}
	return &out, nil
}
