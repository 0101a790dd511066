package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/models"
)

// Transfer describes a single outbound payment
type Transfer struct {
	Destination string       `json:"destination"`
	Amount      float64      `json:"amount"`
	Asset       models.Asset `json:"asset"`
	KeyRef      string       `json:"keyRef"`
}

// Executor signs and broadcasts transfers. Calls are slow and may fail; the
// returned string is the broadcast transaction id.
type Executor interface {
	Send(ctx context.Context, transfer Transfer) (string, error)
}

// SendError is the typed failure returned by executors
type SendError struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment send failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("payment send failed (%s)", e.Reason)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a SendError marked retryable
func IsRetryable(err error) bool {
	var sendErr *SendError
	return errors.As(err, &sendErr) && sendErr.Retryable
}

// HTTPExecutor calls a remote payment executor service
type HTTPExecutor struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewHTTPExecutor creates a new HTTPExecutor. The timeout must cover the
// executor's own confirmation wait, which can reach two minutes.
func NewHTTPExecutor(baseURL, apiKey string, timeout time.Duration) *HTTPExecutor {
	return &HTTPExecutor{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendResponse struct {
	TxID      string `json:"txid"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// Send posts the transfer to the executor's /v1/transfers endpoint
func (e *HTTPExecutor) Send(ctx context.Context, transfer Transfer) (string, error) {
	if transfer.Amount <= 0 {
		return "", &SendError{Reason: "invalid amount"}
	}
	body, err := json.Marshal(transfer)
	if err != nil {
		return "", &SendError{Reason: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return "", &SendError{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", &SendError{Reason: "transport", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &SendError{Reason: "read response", Retryable: true, Err: err}
	}
	var out sendResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", &SendError{Reason: "decode response", Retryable: resp.StatusCode >= 500, Err: err}
		}
	}
	if resp.StatusCode >= 300 {
		reason := out.Error
		if reason == "" {
			reason = resp.Status
		}
		return "", &SendError{Reason: reason, Retryable: out.Retryable || resp.StatusCode >= 500}
	}
	if out.TxID == "" {
		return "", &SendError{Reason: "empty transaction id", Retryable: true}
	}
	return out.TxID, nil
}

// MockExecutor records transfers and returns synthetic transaction ids.
// FailFor makes sends to a destination fail until cleared.
type MockExecutor struct {
	Name string
	// OnSend, when set, is called after every successful send
	OnSend func(Transfer)

	mu        sync.Mutex
	transfers []Transfer
	failures  map[string]error
	counter   int
}

// NewMockExecutor creates a new MockExecutor
func NewMockExecutor(name string) *MockExecutor {
	return &MockExecutor{Name: name, failures: make(map[string]error)}
}

// Send records the transfer
func (m *MockExecutor) Send(ctx context.Context, transfer Transfer) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &SendError{Reason: "cancelled", Retryable: true, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failures[transfer.Destination]; ok {
		return "", &SendError{Reason: "mock failure", Retryable: true, Err: err}
	}
	if transfer.Amount <= 0 {
		return "", &SendError{Reason: "invalid amount"}
	}
	m.counter++
	m.transfers = append(m.transfers, transfer)
	if m.OnSend != nil {
		m.OnSend(transfer)
	}
	return fmt.Sprintf("%s-MOCK-TX-%d", m.Name, m.counter), nil
}

// FailFor makes every send to destination fail with err
func (m *MockExecutor) FailFor(destination string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[destination] = err
}

// ClearFailures removes every scripted failure
func (m *MockExecutor) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]error)
}

// Transfers returns a copy of the recorded transfers
func (m *MockExecutor) Transfers() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transfer(nil), m.transfers...)
}

// TransfersTo returns the recorded transfers to destination
func (m *MockExecutor) TransfersTo(destination string) []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transfer
	for _, t := range m.transfers {
		if t.Destination == destination {
			out = append(out, t)
		}
	}
	return out
}
