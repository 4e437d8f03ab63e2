package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
)

// Store is an in-memory implementation of AccountRepository and TransactionRepository.
// It is safe for concurrent use and copies values on the way in and out.
// Data is lost on restart - for persistence, use the postgres or bigquery store.
type Store struct {
	mu sync.RWMutex

	accounts     map[string]*domain.Account
	accountOrder []string

	transactions map[string]*domain.Transaction
	txOrder      []string
}

// NewStore creates a new empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]*domain.Account),
		transactions: make(map[string]*domain.Transaction),
	}
}

// FindByExternalID implements repository.AccountRepository.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[externalID]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

// FindByIBAN implements repository.AccountRepository.
func (s *Store) FindByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	if iban == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.accountOrder {
		if acc := s.accounts[id]; acc.IBANValue() == iban {
			return acc.Clone(), nil
		}
	}
	return nil, nil
}

// FindByBank implements repository.AccountRepository.
// Accounts come back in insertion order.
func (s *Store) FindByBank(ctx context.Context, bank string) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Account
	for _, id := range s.accountOrder {
		if acc := s.accounts[id]; acc.Bank == bank {
			result = append(result, acc.Clone())
		}
	}
	return result, nil
}

// Save implements repository.AccountRepository.
func (s *Store) Save(ctx context.Context, account *domain.Account) error {
	if account.ExternalID == "" {
		return fmt.Errorf("account external ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ExternalID]; exists {
		return fmt.Errorf("account %s already exists", account.ExternalID)
	}
	s.accounts[account.ExternalID] = account.Clone()
	s.accountOrder = append(s.accountOrder, account.ExternalID)
	return nil
}

// Update implements repository.AccountRepository.
func (s *Store) Update(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ExternalID]; !exists {
		return repository.MissingRow("account", account.ExternalID)
	}
	s.accounts[account.ExternalID] = account.Clone()
	return nil
}

// Relink implements repository.AccountRepository.
func (s *Store) Relink(ctx context.Context, oldExternalID string, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.accounts[oldExternalID]
	if !exists {
		return repository.MissingRow("account", oldExternalID)
	}
	if _, taken := s.accounts[account.ExternalID]; taken && account.ExternalID != oldExternalID {
		return fmt.Errorf("account %s already exists", account.ExternalID)
	}

	relinked := account.Clone()
	relinked.LastSyncTime = stored.Clone().LastSyncTime
	delete(s.accounts, oldExternalID)
	s.accounts[relinked.ExternalID] = relinked
	for i, id := range s.accountOrder {
		if id == oldExternalID {
			s.accountOrder[i] = relinked.ExternalID
		}
	}

	for _, tx := range s.transactions {
		if tx.AccountID == oldExternalID {
			tx.AccountID = relinked.ExternalID
		}
	}
	return nil
}

// UpdateLastSyncTime implements repository.AccountRepository.
// A cursor earlier than the stored one is ignored.
func (s *Store) UpdateLastSyncTime(ctx context.Context, externalID string, syncTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, exists := s.accounts[externalID]
	if !exists {
		return repository.MissingRow("account", externalID)
	}
	if acc.LastSyncTime != nil && syncTime.Before(*acc.LastSyncTime) {
		return nil
	}
	t := syncTime
	acc.LastSyncTime = &t
	return nil
}

// UpdateBalance implements repository.AccountRepository.
func (s *Store) UpdateBalance(ctx context.Context, externalID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, exists := s.accounts[externalID]
	if !exists {
		return repository.MissingRow("account", externalID)
	}
	acc.Balance = balance
	return nil
}

// FindByExternalIDs implements repository.TransactionRepository.
func (s *Store) FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*domain.Transaction, len(externalIDs))
	for _, id := range externalIDs {
		if tx, ok := s.transactions[id]; ok {
			result[id] = tx.Clone()
		}
	}
	return result, nil
}

// SaveMany implements repository.TransactionRepository.
func (s *Store) SaveMany(ctx context.Context, txs []*domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if _, exists := s.transactions[tx.ExternalID]; exists {
			return fmt.Errorf("transaction %s already exists", tx.ExternalID)
		}
	}
	for _, tx := range txs {
		s.transactions[tx.ExternalID] = tx.Clone()
		s.txOrder = append(s.txOrder, tx.ExternalID)
	}
	return nil
}

// UpdateMany implements repository.TransactionRepository.
// Stored user fields win over whatever the caller passes.
func (s *Store) UpdateMany(ctx context.Context, txs []*domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if _, exists := s.transactions[tx.ExternalID]; !exists {
			return repository.MissingRow("transaction", tx.ExternalID)
		}
	}
	for _, tx := range txs {
		kept := s.transactions[tx.ExternalID].Clone()
		updated := tx.Clone()
		updated.Category = kept.Category
		updated.Budget = kept.Budget
		updated.Tags = kept.Tags
		updated.Notes = kept.Notes
		s.transactions[tx.ExternalID] = updated
	}
	return nil
}

// SetUserFields records a user's categorisation of a stored transaction.
func (s *Store) SetUserFields(externalID, category, budget string, tags []string, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.transactions[externalID]
	if !exists {
		return repository.MissingRow("transaction", externalID)
	}
	tx.Category = category
	tx.Budget = budget
	tx.Tags = append([]string(nil), tags...)
	if notes != nil {
		n := *notes
		tx.Notes = &n
	} else {
		tx.Notes = nil
	}
	return nil
}

// Transactions returns every stored transaction in insertion order.
func (s *Store) Transactions() []*domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transaction, 0, len(s.txOrder))
	for _, id := range s.txOrder {
		result = append(result, s.transactions[id].Clone())
	}
	return result
}

// Ensure Store implements the repository interfaces.
var _ repository.AccountRepository = (*Store)(nil)
var _ repository.TransactionRepository = (*Store)(nil)
