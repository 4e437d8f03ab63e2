package monobank

// Wire types for the Monobank personal API. Optional fields are pointers so a
// missing key stays distinguishable from a zero value.

type clientInfoResponse struct {
	ClientID string           `json:"clientId"`
	Name     string           `json:"name"`
	Accounts []accountPayload `json:"accounts"`
}

type accountPayload struct {
	ID           string   `json:"id"`
	SendID       string   `json:"sendId"`
	Balance      int64    `json:"balance"`
	CreditLimit  *int64   `json:"creditLimit"`
	Type         string   `json:"type"`
	CurrencyCode int      `json:"currencyCode"`
	CashbackType string   `json:"cashbackType"`
	MaskedPan    []string `json:"maskedPan"`
	IBAN         *string  `json:"iban"`
}

type statementItem struct {
	ID              string  `json:"id"`
	Time            int64   `json:"time"`
	Description     string  `json:"description"`
	MCC             *int    `json:"mcc"`
	OriginalMCC     *int    `json:"originalMcc"`
	Hold            *bool   `json:"hold"`
	Amount          int64   `json:"amount"`
	OperationAmount *int64  `json:"operationAmount"`
	CurrencyCode    int     `json:"currencyCode"`
	CommissionRate  *int64  `json:"commissionRate"`
	CashbackAmount  *int64  `json:"cashbackAmount"`
	Balance         *int64  `json:"balance"`
	Comment         *string `json:"comment"`
	ReceiptID       *string `json:"receiptId"`
	InvoiceID       *string `json:"invoiceId"`
	CounterEdrpou   *string `json:"counterEdrpou"`
	CounterIBAN     *string `json:"counterIban"`
	CounterName     *string `json:"counterName"`
}

type errorResponse struct {
	ErrorDescription string `json:"errorDescription"`
}
