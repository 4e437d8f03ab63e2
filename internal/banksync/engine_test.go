package banksync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/budget-sync/internal/bank"
	"github.com/dvloznov/budget-sync/internal/banksync"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/dvloznov/budget-sync/internal/repository/inmemory"
)

// cursorFailingStore is an in-memory store whose cursor writes fail.
type cursorFailingStore struct {
	*inmemory.Store
	err error
}

func (s *cursorFailingStore) UpdateLastSyncTime(ctx context.Context, externalID string, at time.Time) error {
	return s.err
}

// ledgerStore is satisfied by stores backing both repositories.
type ledgerStore interface {
	repository.AccountRepository
	repository.TransactionRepository
}

func newSyncer(gateway bank.Gateway, store ledgerStore, clock *fakeClock, opts banksync.Options) *banksync.TransactionSyncer {
	opts.Clock = clock
	resolver := banksync.NewResolver(store, testLogger())
	pacer := banksync.NewPacer(clock, opts.RequestDelay)
	return banksync.NewTransactionSyncer(gateway, store, resolver, opts, pacer, testLogger())
}

func seedAccount(t *testing.T, store *inmemory.Store, acc domain.Account) *domain.Account {
	t.Helper()
	if err := store.Save(context.Background(), &acc); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	stored, err := store.FindByExternalID(context.Background(), acc.ExternalID)
	if err != nil || stored == nil {
		t.Fatalf("reload account: %v", err)
	}
	return stored
}

func TestTransactionSyncer_FirstSyncChunksFromEarliestDate(t *testing.T) {
	store := inmemory.NewStore()
	account := seedAccount(t, store, monoAccount("acc-1"))
	now := mustTime("2026-03-15T00:00:00Z")
	clock := newFakeClock(now)

	gateway := &MockGateway{
		GetTransactionsFunc: func(ctx context.Context, accountID string, from, to time.Time) ([]domain.Transaction, error) {
			return []domain.Transaction{monoTransaction("tx-"+from.Format("0102"), accountID, from, -100)}, nil
		},
	}

	syncer := newSyncer(gateway, store, clock, banksync.Options{
		EarliestSyncDate: mustTime("2026-01-01T00:00:00Z"),
		RequestDelay:     5 * time.Second,
	})

	counts, err := syncer.SyncAccount(context.Background(), account)
	if err != nil {
		t.Fatalf("SyncAccount() error = %v", err)
	}

	fetches := gateway.Fetches()
	if len(fetches) != 3 {
		t.Fatalf("expected 3 chunk fetches, got %d", len(fetches))
	}
	if !fetches[0].From.Equal(mustTime("2026-01-01T00:00:00Z")) || !fetches[2].To.Equal(now) {
		t.Errorf("window not covered: first=%s last=%s", fetches[0].From, fetches[2].To)
	}
	if counts.New != 3 {
		t.Errorf("expected 3 new transactions, got %+v", counts)
	}

	// The pacer skips only the very first request.
	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 pacing sleeps, got %v", sleeps)
	}
	for _, d := range sleeps {
		if d != 5*time.Second {
			t.Errorf("unexpected pacing sleep %s", d)
		}
	}

	got, _ := store.FindByExternalID(context.Background(), "acc-1")
	if got.LastSyncTime == nil || !got.LastSyncTime.Equal(now) {
		t.Errorf("expected cursor at run start %s, got %v", now, got.LastSyncTime)
	}
}

func TestTransactionSyncer_IncrementalWindowUsesOverlap(t *testing.T) {
	store := inmemory.NewStore()
	last := mustTime("2026-03-14T12:00:00Z")
	acc := monoAccount("acc-1")
	acc.LastSyncTime = &last
	account := seedAccount(t, store, acc)

	now := mustTime("2026-03-15T12:00:00Z")
	gateway := &MockGateway{}
	syncer := newSyncer(gateway, store, newFakeClock(now), banksync.Options{})

	if _, err := syncer.SyncAccount(context.Background(), account); err != nil {
		t.Fatalf("SyncAccount() error = %v", err)
	}

	fetches := gateway.Fetches()
	if len(fetches) != 1 {
		t.Fatalf("expected a single fetch, got %d", len(fetches))
	}
	if want := last.Add(-banksync.DefaultOverlapWindow); !fetches[0].From.Equal(want) {
		t.Errorf("window starts at %s, want %s", fetches[0].From, want)
	}
}

func TestTransactionSyncer_CursorNeverRegresses(t *testing.T) {
	store := inmemory.NewStore()
	future := mustTime("2026-04-01T00:00:00Z")
	acc := monoAccount("acc-1")
	acc.LastSyncTime = &future
	account := seedAccount(t, store, acc)

	now := mustTime("2026-03-15T00:00:00Z")
	gateway := &MockGateway{}
	syncer := newSyncer(gateway, store, newFakeClock(now), banksync.Options{})

	if _, err := syncer.SyncAccount(context.Background(), account); err != nil {
		t.Fatalf("SyncAccount() error = %v", err)
	}

	fetches := gateway.Fetches()
	if len(fetches) != 1 || !fetches[0].From.Equal(now) || !fetches[0].To.Equal(now) {
		t.Errorf("expected one zero-width fetch at now, got %+v", fetches)
	}

	got, _ := store.FindByExternalID(context.Background(), "acc-1")
	if got.LastSyncTime == nil || !got.LastSyncTime.Equal(future) {
		t.Errorf("cursor regressed: %v", got.LastSyncTime)
	}
}

func TestTransactionSyncer_FailedChunkKeepsCursor(t *testing.T) {
	store := inmemory.NewStore()
	account := seedAccount(t, store, monoAccount("acc-1"))
	clock := newFakeClock(mustTime("2026-03-15T00:00:00Z"))

	calls := 0
	gateway := &MockGateway{
		GetTransactionsFunc: func(ctx context.Context, accountID string, from, to time.Time) ([]domain.Transaction, error) {
			calls++
			if calls == 2 {
				return nil, &bank.APIError{StatusCode: 500, Message: "boom"}
			}
			return []domain.Transaction{monoTransaction("tx-"+from.Format("0102"), accountID, from, -100)}, nil
		},
	}
	syncer := newSyncer(gateway, store, clock, banksync.Options{EarliestSyncDate: mustTime("2026-01-01T00:00:00Z")})

	counts, err := syncer.SyncAccount(context.Background(), account)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *bank.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("expected wrapped API error, got %v", err)
	}
	if counts.New != 1 {
		t.Errorf("expected the first chunk to be counted, got %+v", counts)
	}
	if len(gateway.Fetches()) != 2 {
		t.Errorf("expected processing to stop after the failed chunk, got %d fetches", len(gateway.Fetches()))
	}

	got, _ := store.FindByExternalID(context.Background(), "acc-1")
	if got.LastSyncTime != nil {
		t.Errorf("cursor must not advance on failure, got %v", got.LastSyncTime)
	}
	if len(store.Transactions()) != 1 {
		t.Errorf("expected first chunk persisted, got %d transactions", len(store.Transactions()))
	}
}

func TestTransactionSyncer_CursorWriteFailureThenIdempotentRerun(t *testing.T) {
	store := inmemory.NewStore()
	account := seedAccount(t, store, monoAccount("acc-1"))
	now := mustTime("2026-03-15T00:00:00Z")
	txDate := mustTime("2026-03-10T09:00:00Z")

	gateway := &MockGateway{
		GetTransactionsFunc: func(ctx context.Context, accountID string, from, to time.Time) ([]domain.Transaction, error) {
			if txDate.Before(from) || txDate.After(to) {
				return nil, nil
			}
			return []domain.Transaction{monoTransaction("t1", accountID, txDate, -2500)}, nil
		},
	}
	opts := banksync.Options{EarliestSyncDate: mustTime("2026-03-01T00:00:00Z")}

	failing := &cursorFailingStore{Store: store, err: errors.New("write timeout")}
	first, err := newSyncer(gateway, failing, newFakeClock(now), opts).SyncAccount(context.Background(), account)
	if err == nil {
		t.Fatal("expected cursor write error")
	}
	if first.New != 1 {
		t.Errorf("expected transaction persisted on first run, got %+v", first)
	}

	second, err := newSyncer(gateway, store, newFakeClock(now.Add(time.Hour)), opts).SyncAccount(context.Background(), account)
	if err != nil {
		t.Fatalf("rerun error = %v", err)
	}
	if second.New != 0 || second.Updated != 0 || second.Skipped != 1 {
		t.Errorf("expected rerun to skip the persisted transaction, got %+v", second)
	}
	if len(store.Transactions()) != 1 {
		t.Errorf("expected no duplicates, got %d transactions", len(store.Transactions()))
	}

	got, _ := store.FindByExternalID(context.Background(), "acc-1")
	if got.LastSyncTime == nil || !got.LastSyncTime.Equal(now.Add(time.Hour)) {
		t.Errorf("expected cursor advanced on rerun, got %v", got.LastSyncTime)
	}
}
