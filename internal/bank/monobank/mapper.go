package monobank

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
)

// currencyCodes maps ISO-4217 numeric codes to alpha codes.
var currencyCodes = map[int]string{
	980: "UAH",
	840: "USD",
	978: "EUR",
	826: "GBP",
	985: "PLN",
	203: "CZK",
	348: "HUF",
	756: "CHF",
}

// CurrencyAlpha returns the ISO-4217 alpha code for a numeric code, or the
// number itself when the code is not known.
func CurrencyAlpha(code int) string {
	if alpha, ok := currencyCodes[code]; ok {
		return alpha
	}
	return strconv.Itoa(code)
}

func toAccount(p accountPayload) domain.Account {
	currency := CurrencyAlpha(p.CurrencyCode)

	acc := domain.Account{
		ExternalID:  p.ID,
		Name:        accountName(p.Type, currency, p.MaskedPan),
		Currency:    currency,
		Balance:     p.Balance,
		CreditLimit: p.CreditLimit,
		Type:        p.Type,
		Bank:        domain.BankMonobank,
	}
	if p.IBAN != nil && *p.IBAN != "" {
		iban := strings.TrimSpace(*p.IBAN)
		acc.IBAN = &iban
	}
	if len(p.MaskedPan) > 0 {
		acc.MaskedPAN = append([]string(nil), p.MaskedPan...)
	}
	return acc
}

// accountName builds a display name; the API does not return one.
func accountName(accountType, currency string, maskedPan []string) string {
	name := fmt.Sprintf("Monobank %s %s", accountType, currency)
	if len(maskedPan) > 0 {
		pan := maskedPan[0]
		if len(pan) > 4 {
			pan = pan[len(pan)-4:]
		}
		name += " *" + pan
	}
	return name
}

func toTransaction(item statementItem, accountID, accountCurrency string) domain.Transaction {
	currency := accountCurrency
	if currency == "" {
		currency = CurrencyAlpha(item.CurrencyCode)
	}

	return domain.Transaction{
		ExternalID:       item.ID,
		AccountID:        accountID,
		Date:             time.Unix(item.Time, 0).UTC(),
		Amount:           item.Amount,
		Currency:         currency,
		Type:             domain.TypeForAmount(item.Amount),
		Description:      item.Description,
		Balance:          item.Balance,
		OperationAmount:  item.OperationAmount,
		CounterpartyIBAN: nonEmpty(item.CounterIBAN),
		Hold:             item.Hold,
		CashbackAmount:   item.CashbackAmount,
		CommissionRate:   item.CommissionRate,
		OriginalMCC:      item.OriginalMCC,
		ReceiptID:        nonEmpty(item.ReceiptID),
		InvoiceID:        nonEmpty(item.InvoiceID),
		CounterEdrpou:    nonEmpty(item.CounterEdrpou),
		CounterpartyName: nonEmpty(item.CounterName),
		MCC:              item.MCC,
		Comment:          nonEmpty(item.Comment),
	}
}

// nonEmpty treats an empty string the same as an absent key.
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
