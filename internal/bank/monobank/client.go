// Package monobank implements bank.Gateway over the Monobank personal API.
package monobank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/budget-sync/internal/bank"
	"github.com/dvloznov/budget-sync/internal/domain"
)

// DefaultBaseURL is the production Monobank API endpoint.
const DefaultBaseURL = "https://api.monobank.ua"

// ErrNotConfigured is returned when no API token is set.
var ErrNotConfigured = errors.New("monobank: token not configured")

// ClientConfig configures the Monobank client.
type ClientConfig struct {
	// Token is the personal API token sent as X-Token.
	// SENSITIVE: never log this value.
	Token string

	// BaseURL overrides DefaultBaseURL (for testing).
	BaseURL string

	// HTTPClient is an optional custom HTTP client (for testing).
	HTTPClient *http.Client

	// Timeout is the request timeout when HTTPClient is nil.
	Timeout time.Duration
}

// Client is a read-only Monobank API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string

	mu         sync.RWMutex
	currencies map[string]string // account external ID -> alpha currency
}

// NewClient creates a new Monobank client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Token == "" {
		return nil, ErrNotConfigured
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      config.Token,
		currencies: make(map[string]string),
	}, nil
}

// GetAccounts returns the client's accounts from /personal/client-info.
func (c *Client) GetAccounts(ctx context.Context) ([]domain.Account, error) {
	var info clientInfoResponse
	if err := c.get(ctx, "/personal/client-info", &info); err != nil {
		return nil, fmt.Errorf("GetAccounts: %w", err)
	}

	accounts := make([]domain.Account, 0, len(info.Accounts))
	c.mu.Lock()
	for _, p := range info.Accounts {
		acc := toAccount(p)
		c.currencies[acc.ExternalID] = acc.Currency
		accounts = append(accounts, acc)
	}
	c.mu.Unlock()

	return accounts, nil
}

// GetTransactions returns the statement for one account within [from, to].
func (c *Client) GetTransactions(ctx context.Context, accountExternalID string, from, to time.Time) ([]domain.Transaction, error) {
	path := fmt.Sprintf("/personal/statement/%s/%d/%d", accountExternalID, from.Unix(), to.Unix())

	var items []statementItem
	if err := c.get(ctx, path, &items); err != nil {
		return nil, fmt.Errorf("GetTransactions: account %s: %w", accountExternalID, err)
	}

	c.mu.RLock()
	currency := c.currencies[accountExternalID]
	c.mu.RUnlock()

	txs := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		txs = append(txs, toTransaction(item, accountExternalID, currency))
	}
	return txs, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseError maps an error response to bank errors.
func parseError(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return bank.ErrRateLimited
	}

	body, _ := io.ReadAll(resp.Body)
	apiErr := &bank.APIError{StatusCode: resp.StatusCode}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.ErrorDescription != "" {
		apiErr.Message = errResp.ErrorDescription
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// Ensure Client implements bank.Gateway.
var _ bank.Gateway = (*Client)(nil)
