package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
)

const (
	propDescription      = "Description"
	propAccountID        = "Account ID"
	propDate             = "Date"
	propAmount           = "Amount"
	propOperationAmount  = "Operation Amount"
	propCounterpartyIBAN = "Counterparty IBAN"
	propHold             = "Hold"
	propCashback         = "Cashback"
	propCommission       = "Commission"
	propOriginalMCC      = "Original MCC"
	propReceiptID        = "Receipt ID"
	propInvoiceID        = "Invoice ID"
	propCounterEdrpou    = "Counter EDRPOU"
	propCounterparty     = "Counterparty"
	propMCC              = "MCC"
	propComment          = "Comment"
	propCategory         = "Category"
	propBudget           = "Budget"
	propTags             = "Tags"
	propNotes            = "Notes"
)

// TransactionMirror stores transactions as pages of a Notion database.
type TransactionMirror struct {
	notion     NotionService
	databaseID string
	log        zerolog.Logger
}

// NewTransactionMirror creates a transaction mirror over the given database.
func NewTransactionMirror(notion NotionService, databaseID string, log zerolog.Logger) *TransactionMirror {
	return &TransactionMirror{notion: notion, databaseID: databaseID, log: log}
}

// TransactionToNotionProperties converts a transaction to Notion page properties.
func TransactionToNotionProperties(tx *domain.Transaction) notionapi.Properties {
	props := notionapi.Properties{
		propDescription: titleProp(tx.Description),
		propExternalID:  textProp(tx.ExternalID),
		propAccountID:   textProp(tx.AccountID),
		propDate:        dateProp(tx.Date),
		propAmount:      moneyProp(tx.Amount),
	}

	if tx.Currency != "" {
		props[propCurrency] = selectProp(tx.Currency)
	}
	if tx.Type != "" {
		props[propType] = selectProp(string(tx.Type))
	}

	// Balance snapshot
	if tx.Balance != nil {
		props[propBalance] = moneyProp(*tx.Balance)
	}
	if tx.OperationAmount != nil {
		props[propOperationAmount] = moneyProp(*tx.OperationAmount)
	}
	if tx.CounterpartyIBAN != nil {
		props[propCounterpartyIBAN] = textProp(*tx.CounterpartyIBAN)
	}
	if tx.Hold != nil {
		props[propHold] = notionapi.CheckboxProperty{Checkbox: *tx.Hold}
	}

	// Enrichment
	if tx.CashbackAmount != nil {
		props[propCashback] = moneyProp(*tx.CashbackAmount)
	}
	if tx.CommissionRate != nil {
		props[propCommission] = moneyProp(*tx.CommissionRate)
	}
	if tx.OriginalMCC != nil {
		props[propOriginalMCC] = numberProp(*tx.OriginalMCC)
	}
	if tx.ReceiptID != nil {
		props[propReceiptID] = textProp(*tx.ReceiptID)
	}
	if tx.InvoiceID != nil {
		props[propInvoiceID] = textProp(*tx.InvoiceID)
	}
	if tx.CounterEdrpou != nil {
		props[propCounterEdrpou] = textProp(*tx.CounterEdrpou)
	}

	if tx.CounterpartyName != nil {
		props[propCounterparty] = textProp(*tx.CounterpartyName)
	}
	if tx.MCC != nil {
		props[propMCC] = numberProp(*tx.MCC)
	}
	if tx.Comment != nil {
		props[propComment] = textProp(*tx.Comment)
	}

	// User fields
	if tx.Category != "" {
		props[propCategory] = selectProp(tx.Category)
	}
	if tx.Budget != "" {
		props[propBudget] = selectProp(tx.Budget)
	}
	if len(tx.Tags) > 0 {
		props[propTags] = multiSelectProp(tx.Tags)
	}
	if tx.Notes != nil {
		props[propNotes] = textProp(*tx.Notes)
	}

	return props
}

// userProperties are filled on page creation and then edited only in Notion.
var userProperties = []string{propCategory, propBudget, propTags, propNotes}

// TransactionUpdateProperties converts a transaction to the properties a bank
// refresh may overwrite.
func TransactionUpdateProperties(tx *domain.Transaction) notionapi.Properties {
	props := TransactionToNotionProperties(tx)
	for _, name := range userProperties {
		delete(props, name)
	}
	return props
}

// TransactionFromNotionPage rebuilds a transaction from its page.
func TransactionFromNotionPage(page *notionapi.Page) *domain.Transaction {
	props := page.Properties
	tx := &domain.Transaction{
		ExternalID:       readText(props, propExternalID),
		AccountID:        readText(props, propAccountID),
		Currency:         readSelect(props, propCurrency),
		Type:             domain.TransactionType(readSelect(props, propType)),
		Description:      readText(props, propDescription),
		Balance:          readMoney(props, propBalance),
		OperationAmount:  readMoney(props, propOperationAmount),
		CounterpartyIBAN: readOptionalText(props, propCounterpartyIBAN),
		Hold:             readCheckbox(props, propHold),
		CashbackAmount:   readMoney(props, propCashback),
		CommissionRate:   readMoney(props, propCommission),
		OriginalMCC:      readInt(props, propOriginalMCC),
		ReceiptID:        readOptionalText(props, propReceiptID),
		InvoiceID:        readOptionalText(props, propInvoiceID),
		CounterEdrpou:    readOptionalText(props, propCounterEdrpou),
		CounterpartyName: readOptionalText(props, propCounterparty),
		MCC:              readInt(props, propMCC),
		Comment:          readOptionalText(props, propComment),
		Category:         readSelect(props, propCategory),
		Budget:           readSelect(props, propBudget),
		Tags:             readMultiSelect(props, propTags),
		Notes:            readOptionalText(props, propNotes),
	}
	if date := readDate(props, propDate); date != nil {
		tx.Date = *date
	}
	if amount := readMoney(props, propAmount); amount != nil {
		tx.Amount = *amount
	}
	return tx
}

// FindByExternalIDs implements repository.TransactionRepository.
// Notion has no IN filter, so each ID is looked up separately.
func (m *TransactionMirror) FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]*domain.Transaction, error) {
	result := make(map[string]*domain.Transaction, len(externalIDs))
	for _, id := range externalIDs {
		page, err := findByExternalID(ctx, m.notion, m.databaseID, id)
		if err != nil {
			return nil, fmt.Errorf("FindByExternalIDs: %w", err)
		}
		if page != nil {
			result[id] = TransactionFromNotionPage(page)
		}
	}
	return result, nil
}

// SaveMany implements repository.TransactionRepository. Pages are created in
// order; a failed page does not stop the rest, and the first failure is returned.
func (m *TransactionMirror) SaveMany(ctx context.Context, txs []*domain.Transaction) error {
	return m.each(ctx, "SaveMany", txs, func(tx *domain.Transaction) error {
		_, err := m.notion.CreatePage(ctx, m.databaseID, TransactionToNotionProperties(tx))
		return err
	})
}

// UpdateMany implements repository.TransactionRepository.
// User properties are left as edited in Notion.
func (m *TransactionMirror) UpdateMany(ctx context.Context, txs []*domain.Transaction) error {
	return m.each(ctx, "UpdateMany", txs, func(tx *domain.Transaction) error {
		page, err := findByExternalID(ctx, m.notion, m.databaseID, tx.ExternalID)
		if err != nil {
			return err
		}
		if page == nil {
			return fmt.Errorf("transaction %s: %w", tx.ExternalID, repository.ErrNotFound)
		}
		_, err = m.notion.UpdatePage(ctx, string(page.ID), TransactionUpdateProperties(tx))
		return err
	})
}

func (m *TransactionMirror) each(ctx context.Context, op string, txs []*domain.Transaction, fn func(tx *domain.Transaction) error) error {
	var firstErr error
	failed := 0

	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := fn(tx); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			m.log.Debug().
				Err(err).
				Str("transaction_id", tx.ExternalID).
				Str("op", op).
				Msg("Notion page write failed")
		}
	}

	if firstErr != nil {
		return fmt.Errorf("%s: %d of %d pages failed: %w", op, failed, len(txs), firstErr)
	}
	return nil
}

// Ensure TransactionMirror implements the repository interface.
var _ repository.TransactionRepository = (*TransactionMirror)(nil)
