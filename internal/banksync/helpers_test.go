package banksync_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/rs/zerolog"
)

// fakeClock records sleeps and advances its time by the slept duration.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fetchCall records one GetTransactions request.
type fetchCall struct {
	AccountID string
	From      time.Time
	To        time.Time
}

// MockGateway is a mock implementation of bank.Gateway.
type MockGateway struct {
	GetAccountsFunc     func(ctx context.Context) ([]domain.Account, error)
	GetTransactionsFunc func(ctx context.Context, accountID string, from, to time.Time) ([]domain.Transaction, error)

	mu           sync.Mutex
	accountCalls int
	fetches      []fetchCall
}

func (m *MockGateway) GetAccounts(ctx context.Context) ([]domain.Account, error) {
	m.mu.Lock()
	m.accountCalls++
	m.mu.Unlock()

	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx)
	}
	return nil, nil
}

func (m *MockGateway) GetTransactions(ctx context.Context, accountID string, from, to time.Time) ([]domain.Transaction, error) {
	m.mu.Lock()
	m.fetches = append(m.fetches, fetchCall{AccountID: accountID, From: from, To: to})
	m.mu.Unlock()

	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, accountID, from, to)
	}
	return nil, nil
}

func (m *MockGateway) Fetches() []fetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]fetchCall(nil), m.fetches...)
}

func (m *MockGateway) AccountCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountCalls
}

func testLogger() zerolog.Logger {
	return logger.NewWithWriter(io.Discard)
}

func testContext() context.Context {
	return logger.WithContext(context.Background(), testLogger())
}

func monoAccount(id string) domain.Account {
	return domain.Account{
		ExternalID: id,
		Name:       "Monobank black UAH *1234",
		Currency:   "UAH",
		Balance:    100000,
		Type:       "black",
		MaskedPAN:  []string{"537541******1234"},
		Bank:       domain.BankMonobank,
	}
}

func monoTransaction(id, accountID string, date time.Time, amount int64) domain.Transaction {
	return domain.Transaction{
		ExternalID:  id,
		AccountID:   accountID,
		Date:        date,
		Amount:      amount,
		Currency:    "UAH",
		Type:        domain.TypeForAmount(amount),
		Description: "Coffee " + id,
	}
}

func mustTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}
