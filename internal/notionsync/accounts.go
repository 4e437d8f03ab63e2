package notionsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/jomei/notionapi"
)

const (
	propAccountName = "Name"
	propIBAN        = "IBAN"
	propCreditLimit = "Credit Limit"
	propMaskedPAN   = "Masked PAN"
	propLastSync    = "Last Sync"
)

// AccountMirror stores accounts as pages of a Notion database.
type AccountMirror struct {
	notion     NotionService
	databaseID string
}

// NewAccountMirror creates an account mirror over the given database.
func NewAccountMirror(notion NotionService, databaseID string) *AccountMirror {
	return &AccountMirror{notion: notion, databaseID: databaseID}
}

// AccountToNotionProperties converts an account to Notion page properties.
func AccountToNotionProperties(acc *domain.Account) notionapi.Properties {
	props := notionapi.Properties{
		propAccountName: titleProp(acc.Name),
		propExternalID:  textProp(acc.ExternalID),
		propBalance:     moneyProp(acc.Balance),
	}

	if acc.Currency != "" {
		props[propCurrency] = selectProp(acc.Currency)
	}
	if acc.Type != "" {
		props[propType] = selectProp(acc.Type)
	}
	if acc.Bank != "" {
		props[propBank] = selectProp(acc.Bank)
	}
	if acc.IBAN != nil {
		props[propIBAN] = textProp(*acc.IBAN)
	}
	if acc.CreditLimit != nil {
		props[propCreditLimit] = moneyProp(*acc.CreditLimit)
	}
	if len(acc.MaskedPAN) > 0 {
		props[propMaskedPAN] = textProp(strings.Join(acc.MaskedPAN, ", "))
	}
	if acc.LastSyncTime != nil {
		props[propLastSync] = dateProp(*acc.LastSyncTime)
	}

	return props
}

// AccountFromNotionPage rebuilds an account from its page.
func AccountFromNotionPage(page *notionapi.Page) *domain.Account {
	props := page.Properties
	acc := &domain.Account{
		ExternalID:   readText(props, propExternalID),
		IBAN:         readOptionalText(props, propIBAN),
		Name:         readText(props, propAccountName),
		Currency:     readSelect(props, propCurrency),
		CreditLimit:  readMoney(props, propCreditLimit),
		Type:         readSelect(props, propType),
		Bank:         readSelect(props, propBank),
		LastSyncTime: readDate(props, propLastSync),
	}
	if balance := readMoney(props, propBalance); balance != nil {
		acc.Balance = *balance
	}
	if pans := readText(props, propMaskedPAN); pans != "" {
		for _, pan := range strings.Split(pans, ",") {
			acc.MaskedPAN = append(acc.MaskedPAN, strings.TrimSpace(pan))
		}
	}
	return acc
}

// FindByExternalID implements repository.AccountRepository.
func (m *AccountMirror) FindByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	page, err := findByExternalID(ctx, m.notion, m.databaseID, externalID)
	if err != nil || page == nil {
		return nil, err
	}
	return AccountFromNotionPage(page), nil
}

// FindByIBAN implements repository.AccountRepository.
func (m *AccountMirror) FindByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	if iban == "" {
		return nil, nil
	}
	pages, err := queryAll(ctx, m.notion, m.databaseID, textEquals(propIBAN, iban))
	if err != nil {
		return nil, fmt.Errorf("FindByIBAN: %w", err)
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return AccountFromNotionPage(&pages[0]), nil
}

// FindByBank implements repository.AccountRepository.
func (m *AccountMirror) FindByBank(ctx context.Context, bank string) ([]*domain.Account, error) {
	pages, err := queryAll(ctx, m.notion, m.databaseID, selectEquals(propBank, bank))
	if err != nil {
		return nil, fmt.Errorf("FindByBank: %w", err)
	}
	accounts := make([]*domain.Account, 0, len(pages))
	for i := range pages {
		accounts = append(accounts, AccountFromNotionPage(&pages[i]))
	}
	return accounts, nil
}

// Save implements repository.AccountRepository. An account whose page
// already exists is updated in place so replays do not duplicate pages.
func (m *AccountMirror) Save(ctx context.Context, account *domain.Account) error {
	page, err := findByExternalID(ctx, m.notion, m.databaseID, account.ExternalID)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}

	props := AccountToNotionProperties(account)
	if page != nil {
		if _, err := m.notion.UpdatePage(ctx, string(page.ID), props); err != nil {
			return fmt.Errorf("Save: %w", err)
		}
		return nil
	}

	if _, err := m.notion.CreatePage(ctx, m.databaseID, props); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Update implements repository.AccountRepository.
func (m *AccountMirror) Update(ctx context.Context, account *domain.Account) error {
	return m.updatePage(ctx, account.ExternalID, AccountToNotionProperties(account))
}

// Relink implements repository.AccountRepository. The page keeps its Last
// Sync value. Transaction pages keep the account ID they were written with.
func (m *AccountMirror) Relink(ctx context.Context, oldExternalID string, account *domain.Account) error {
	props := AccountToNotionProperties(account)
	delete(props, propLastSync)
	return m.updatePage(ctx, oldExternalID, props)
}

// UpdateLastSyncTime implements repository.AccountRepository.
func (m *AccountMirror) UpdateLastSyncTime(ctx context.Context, externalID string, syncTime time.Time) error {
	return m.updatePage(ctx, externalID, notionapi.Properties{
		propLastSync: dateProp(syncTime),
	})
}

// UpdateBalance implements repository.AccountRepository.
func (m *AccountMirror) UpdateBalance(ctx context.Context, externalID string, balance int64) error {
	return m.updatePage(ctx, externalID, notionapi.Properties{
		propBalance: moneyProp(balance),
	})
}

func (m *AccountMirror) updatePage(ctx context.Context, externalID string, props notionapi.Properties) error {
	page, err := findByExternalID(ctx, m.notion, m.databaseID, externalID)
	if err != nil {
		return fmt.Errorf("updatePage: %w", err)
	}
	if page == nil {
		return fmt.Errorf("updatePage: account %s: %w", externalID, repository.ErrNotFound)
	}
	if _, err := m.notion.UpdatePage(ctx, string(page.ID), props); err != nil {
		return fmt.Errorf("updatePage: %w", err)
	}
	return nil
}

// Ensure AccountMirror implements the repository interface.
var _ repository.AccountRepository = (*AccountMirror)(nil)
