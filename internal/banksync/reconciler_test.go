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

func TestAccountReconciler_CreatesUpdatesAndSkips(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	synced := mustTime("2026-03-01T00:00:00Z")

	unchanged := monoAccount("acc-same")
	if err := store.Save(ctx, &unchanged); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stale := monoAccount("acc-stale")
	stale.LastSyncTime = &synced
	stale.Bank = "legacy"
	if err := store.Save(ctx, &stale); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fresh := monoAccount("acc-stale")
	fresh.Balance = 250000
	fresh.Name = "Monobank black UAH *9999"

	created := monoAccount("acc-new")

	gateway := &MockGateway{
		GetAccountsFunc: func(ctx context.Context) ([]domain.Account, error) {
			return []domain.Account{unchanged, fresh, created}, nil
		},
	}

	clock := newFakeClock(synced)
	reconciler := banksync.NewAccountReconciler(gateway, store, banksync.NewPacer(clock, time.Second), testLogger())

	result, err := reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Created != 1 || result.Updated != 1 || result.Unchanged != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}

	got, _ := store.FindByExternalID(ctx, "acc-stale")
	if got == nil {
		t.Fatal("expected updated account")
	}
	if got.Balance != 250000 || got.Name != fresh.Name {
		t.Errorf("bank fields not applied: %+v", got)
	}
	if got.LastSyncTime == nil || !got.LastSyncTime.Equal(synced) {
		t.Errorf("sync cursor lost: %v", got.LastSyncTime)
	}
	if got.Bank != "legacy" {
		t.Errorf("bank tag changed to %q", got.Bank)
	}

	if acc, _ := store.FindByExternalID(ctx, "acc-new"); acc == nil {
		t.Error("expected new account to be saved")
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("first request of a run must not wait, got sleeps %v", clock.Sleeps())
	}
}

func TestAccountReconciler_MatchesByIBAN(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	iban := "UA213223130000026007233566001"

	synced := mustTime("2026-03-01T00:00:00Z")

	stored := monoAccount("old-id")
	stored.IBAN = domain.Ptr(iban)
	stored.LastSyncTime = &synced
	if err := store.Save(ctx, &stored); err != nil {
		t.Fatalf("seed: %v", err)
	}
	history := monoTransaction("t-old", "old-id", synced.Add(-time.Hour), -100)
	if err := store.SaveMany(ctx, []*domain.Transaction{&history}); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	incoming := monoAccount("new-id")
	incoming.IBAN = domain.Ptr(iban)
	incoming.Balance = 5

	gateway := &MockGateway{
		GetAccountsFunc: func(ctx context.Context) ([]domain.Account, error) {
			return []domain.Account{incoming}, nil
		},
	}
	reconciler := banksync.NewAccountReconciler(gateway, store, banksync.NewPacer(newFakeClock(time.Now()), 0), testLogger())

	result, err := reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Updated != 1 || result.Created != 0 {
		t.Errorf("expected IBAN match to update, got %+v", result)
	}

	got, _ := store.FindByExternalID(ctx, "new-id")
	if got == nil || got.Balance != 5 {
		t.Fatalf("expected account relinked to the bank's ID, got %+v", got)
	}
	if got.LastSyncTime == nil || !got.LastSyncTime.Equal(synced) {
		t.Errorf("sync cursor lost on relink: %v", got.LastSyncTime)
	}
	if acc, _ := store.FindByExternalID(ctx, "old-id"); acc != nil {
		t.Error("old external ID must no longer resolve")
	}
	if accounts, _ := store.FindByBank(ctx, stored.Bank); len(accounts) != 1 {
		t.Errorf("IBAN match must not create a second account, got %d", len(accounts))
	}

	txs := store.Transactions()
	if len(txs) != 1 || txs[0].AccountID != "new-id" {
		t.Errorf("expected stored transactions moved to new-id, got %+v", txs)
	}

	again, err := reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if again.Unchanged != 1 || again.Updated != 0 {
		t.Errorf("expected relinked account unchanged on rerun, got %+v", again)
	}
}

func TestService_SyncsAccountRelinkedByIBAN(t *testing.T) {
	now := mustTime("2026-03-15T00:00:00Z")
	store := inmemory.NewStore()
	iban := "UA213223130000026007233566001"

	stored := monoAccount("old-id")
	stored.IBAN = domain.Ptr(iban)
	if err := store.Save(context.Background(), &stored); err != nil {
		t.Fatalf("seed: %v", err)
	}

	incoming := monoAccount("new-id")
	incoming.IBAN = domain.Ptr(iban)

	gateway := &MockGateway{
		GetAccountsFunc: func(ctx context.Context) ([]domain.Account, error) {
			return []domain.Account{incoming}, nil
		},
		GetTransactionsFunc: func(ctx context.Context, accountID string, from, to time.Time) ([]domain.Transaction, error) {
			if accountID != "new-id" {
				return nil, &bank.APIError{StatusCode: 400, Message: "unknown account " + accountID}
			}
			date := now.Add(-time.Hour)
			if date.Before(from) || date.After(to) {
				return nil, nil
			}
			return []domain.Transaction{monoTransaction("t1", accountID, date, -100)}, nil
		},
	}

	svc := banksync.NewService(gateway, store, store, banksync.Options{
		EarliestSyncDate: mustTime("2026-03-01T00:00:00Z"),
		RequestDelay:     -1,
		Clock:            newFakeClock(now),
	}, testLogger())

	for run := 1; run <= 2; run++ {
		result, err := svc.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: Run() error = %v", run, err)
		}
		if result.Failed() {
			t.Fatalf("run %d: unexpected errors: %v", run, result.Errors)
		}
	}

	if txs := store.Transactions(); len(txs) != 1 || txs[0].AccountID != "new-id" {
		t.Errorf("expected the relinked account's transaction synced, got %+v", txs)
	}
}

func TestAccountReconciler_FetchFailure(t *testing.T) {
	store := inmemory.NewStore()
	gateway := &MockGateway{
		GetAccountsFunc: func(ctx context.Context) ([]domain.Account, error) {
			return nil, errors.New("bank unavailable")
		},
	}
	reconciler := banksync.NewAccountReconciler(gateway, store, banksync.NewPacer(newFakeClock(time.Now()), 0), testLogger())

	result, err := reconciler.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one recorded error, got %v", result.Errors)
	}
	if result.Created+result.Updated+result.Unchanged != 0 {
		t.Errorf("expected nothing applied, got %+v", result)
	}
}

func TestAccountReconciler_ContinuesAfterAccountError(t *testing.T) {
	store := inmemory.NewStore()
	broken := monoAccount("")

	gateway := &MockGateway{
		GetAccountsFunc: func(ctx context.Context) ([]domain.Account, error) {
			return []domain.Account{broken, monoAccount("acc-1")}, nil
		},
	}
	reconciler := banksync.NewAccountReconciler(gateway, store, banksync.NewPacer(newFakeClock(time.Now()), 0), testLogger())

	result, err := reconciler.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Created != 1 {
		t.Errorf("expected the valid account to be created, got %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected one recorded error, got %v", result.Errors)
	}
}

func TestAccountReconciler_PropagatesInvariantViolation(t *testing.T) {
	ctx := context.Background()
	seed := monoAccount("acc-1")

	accounts := &stubAccountRepo{
		findByExternalID: func(id string) (*domain.Account, error) {
			return seed.Clone(), nil
		},
		update: func(acc *domain.Account) error {
			return repository.MissingRow("account", acc.ExternalID)
		},
	}

	incoming := seed
	incoming.Balance = 1
	gateway := &MockGateway{
		GetAccountsFunc: func(ctx context.Context) ([]domain.Account, error) {
			return []domain.Account{incoming}, nil
		},
	}
	reconciler := banksync.NewAccountReconciler(gateway, accounts, banksync.NewPacer(newFakeClock(time.Now()), 0), testLogger())

	_, err := reconciler.Reconcile(ctx)
	if !errors.Is(err, repository.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

// stubAccountRepo covers only the account operations a test cares about.
type stubAccountRepo struct {
	findByExternalID func(id string) (*domain.Account, error)
	update           func(acc *domain.Account) error
}

func (s *stubAccountRepo) FindByExternalID(ctx context.Context, id string) (*domain.Account, error) {
	if s.findByExternalID != nil {
		return s.findByExternalID(id)
	}
	return nil, nil
}

func (s *stubAccountRepo) FindByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	return nil, nil
}

func (s *stubAccountRepo) FindByBank(ctx context.Context, bank string) ([]*domain.Account, error) {
	return nil, nil
}

func (s *stubAccountRepo) Save(ctx context.Context, acc *domain.Account) error {
	return nil
}

func (s *stubAccountRepo) Update(ctx context.Context, acc *domain.Account) error {
	if s.update != nil {
		return s.update(acc)
	}
	return nil
}

func (s *stubAccountRepo) Relink(ctx context.Context, oldID string, acc *domain.Account) error {
	return nil
}

func (s *stubAccountRepo) UpdateLastSyncTime(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (s *stubAccountRepo) UpdateBalance(ctx context.Context, id string, balance int64) error {
	return nil
}
