package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
)

func TestAccountLookups(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	accs := []*domain.Account{
		{ExternalID: "a2", IBAN: domain.Ptr("UA2"), Bank: "monobank"},
		{ExternalID: "a1", Bank: "monobank"},
		{ExternalID: "x1", Bank: "other"},
	}
	for _, a := range accs {
		if err := s.Save(ctx, a); err != nil {
			t.Fatalf("Save(%s) error = %v", a.ExternalID, err)
		}
	}

	if err := s.Save(ctx, &domain.Account{ExternalID: "a1"}); err == nil {
		t.Error("Expected duplicate save to fail")
	}

	got, _ := s.FindByIBAN(ctx, "UA2")
	if got == nil || got.ExternalID != "a2" {
		t.Errorf("FindByIBAN returned %+v", got)
	}
	if got, _ := s.FindByIBAN(ctx, ""); got != nil {
		t.Error("Expected empty IBAN to match nothing")
	}
	if got, _ := s.FindByExternalID(ctx, "missing"); got != nil {
		t.Error("Expected nil for missing account")
	}

	byBank, _ := s.FindByBank(ctx, "monobank")
	if len(byBank) != 2 || byBank[0].ExternalID != "a2" || byBank[1].ExternalID != "a1" {
		t.Errorf("FindByBank order wrong: %+v", byBank)
	}

	// returned values are copies
	byBank[0].Name = "mutated"
	again, _ := s.FindByExternalID(ctx, "a2")
	if again.Name == "mutated" {
		t.Error("Store leaked internal pointer")
	}
}

func TestUpdateLastSyncTimeNeverRegresses(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.Save(ctx, &domain.Account{ExternalID: "a1"})

	later := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	if err := s.UpdateLastSyncTime(ctx, "a1", later); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateLastSyncTime(ctx, "a1", earlier); err != nil {
		t.Fatal(err)
	}

	acc, _ := s.FindByExternalID(ctx, "a1")
	if !acc.LastSyncTime.Equal(later) {
		t.Errorf("LastSyncTime = %v, want %v", acc.LastSyncTime, later)
	}
}

func TestUpdatesOnMissingRows(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	checks := map[string]error{
		"Update":             s.Update(ctx, &domain.Account{ExternalID: "nope"}),
		"UpdateLastSyncTime": s.UpdateLastSyncTime(ctx, "nope", time.Now()),
		"UpdateBalance":      s.UpdateBalance(ctx, "nope", 1),
		"UpdateMany":         s.UpdateMany(ctx, []*domain.Transaction{{ExternalID: "t"}}),
	}
	for name, err := range checks {
		if !errors.Is(err, repository.ErrInvariantViolation) || !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("%s: expected missing-row error, got %v", name, err)
		}
	}
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.SaveMany(ctx, []*domain.Transaction{
		{ExternalID: "t1", Amount: -100},
		{ExternalID: "t2", Amount: 200},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SaveMany(ctx, []*domain.Transaction{{ExternalID: "t3"}, {ExternalID: "t1"}}); err == nil {
		t.Error("Expected duplicate insert to fail")
	}
	if len(s.Transactions()) != 2 {
		t.Error("Failed SaveMany must not partially apply")
	}

	found, _ := s.FindByExternalIDs(ctx, []string{"t1", "t9"})
	if len(found) != 1 || found["t1"].Amount != -100 {
		t.Errorf("FindByExternalIDs = %+v", found)
	}

	if err := s.UpdateMany(ctx, []*domain.Transaction{{ExternalID: "t2", Amount: 250}}); err != nil {
		t.Fatal(err)
	}
	all := s.Transactions()
	if all[0].ExternalID != "t1" || all[1].Amount != 250 {
		t.Errorf("unexpected transactions: %+v", all)
	}
}

func TestRelink(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	synced := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Save(ctx, &domain.Account{ExternalID: "old", IBAN: domain.Ptr("UA1"), Bank: "monobank", LastSyncTime: &synced}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, &domain.Account{ExternalID: "other", Bank: "monobank"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.SaveMany(ctx, []*domain.Transaction{{ExternalID: "t1", AccountID: "old"}}); err != nil {
		t.Fatalf("SaveMany() error = %v", err)
	}

	if err := s.Relink(ctx, "old", &domain.Account{ExternalID: "new", IBAN: domain.Ptr("UA1"), Bank: "monobank", Balance: 7}); err != nil {
		t.Fatalf("Relink() error = %v", err)
	}

	got, _ := s.FindByExternalID(ctx, "new")
	if got == nil || got.Balance != 7 {
		t.Fatalf("expected relinked account, got %+v", got)
	}
	if got.LastSyncTime == nil || !got.LastSyncTime.Equal(synced) {
		t.Errorf("expected cursor kept, got %v", got.LastSyncTime)
	}
	if old, _ := s.FindByExternalID(ctx, "old"); old != nil {
		t.Error("expected old ID to be gone")
	}

	accounts, _ := s.FindByBank(ctx, "monobank")
	if len(accounts) != 2 || accounts[0].ExternalID != "new" {
		t.Errorf("expected relinked account to keep its position, got %+v", accounts)
	}
	if txs := s.Transactions(); txs[0].AccountID != "new" {
		t.Errorf("expected transaction moved to new ID, got %q", txs[0].AccountID)
	}

	tests := []struct {
		name  string
		oldID string
		newID string
		want  error
	}{
		{name: "missing account", oldID: "gone", newID: "fresh", want: repository.ErrInvariantViolation},
		{name: "target taken", oldID: "new", newID: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Relink(ctx, tt.oldID, &domain.Account{ExternalID: tt.newID})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUpdateManyKeepsUserFields(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.SaveMany(ctx, []*domain.Transaction{{ExternalID: "t1", AccountID: "a1", Amount: -100}}); err != nil {
		t.Fatalf("SaveMany() error = %v", err)
	}
	if err := s.SetUserFields("t1", "Groceries", "Food", []string{"weekly"}, domain.Ptr("market")); err != nil {
		t.Fatalf("SetUserFields() error = %v", err)
	}

	// A bank refresh read before the user's edit carries empty user fields.
	if err := s.UpdateMany(ctx, []*domain.Transaction{{ExternalID: "t1", AccountID: "a1", Amount: -100, Balance: domain.Ptr[int64](900)}}); err != nil {
		t.Fatalf("UpdateMany() error = %v", err)
	}

	got := s.Transactions()[0]
	if got.Balance == nil || *got.Balance != 900 {
		t.Errorf("expected bank field refreshed, got %v", got.Balance)
	}
	if got.Category != "Groceries" || got.Budget != "Food" {
		t.Errorf("user categorisation lost: category=%q budget=%q", got.Category, got.Budget)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "weekly" || got.Notes == nil || *got.Notes != "market" {
		t.Errorf("user tags or notes lost: tags=%v notes=%v", got.Tags, got.Notes)
	}
}
