package models

type TransactionType string

const (
	Deposit        TransactionType = "DEPOSIT"
	Withdrawal     TransactionType = "WITHDRAWAL"
	TransferCredit TransactionType = "TRANSFER_CREDIT"
	TransferDebit  TransactionType = "TRANSFER_DEBIT"
)

func (t TransactionType) Valid() bool {
	switch t {
	case Deposit, Withdrawal, TransferCredit, TransferDebit:
		return true
	}
	return false
}

type Account struct {
	AccountID     string `json:"accountId"`
	AccountNumber int64  `json:"accountNumber"`
	Balance       int64  `json:"balance"`
	UserID        string `json:"userId,omitempty"`
}

type Transaction struct {
	TransactionID   string          `json:"transactionId"`
	AccountID       string          `json:"accountId"`
	Amount          int64           `json:"amount"`
	Timestamp       int64           `json:"timestamp"`
	TransactionType TransactionType `json:"transactionType"`
	Status          string          `json:"status"`
	TransferID      string          `json:"transferId,omitempty"`
}

type CreateAccountRequest struct {
	Balance int64 `json:"balance"`
}

type CreateAccountResponse struct {
	AccountID     string `json:"accountId"`
	AccountNumber int64  `json:"accountNumber"`
}

type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type AccountResponse struct {
	Account Account `json:"account"`
}

type DeleteAccountRequest struct {
	AccountNumber int64 `json:"accountNumber"`
}

type DeleteAccountResponse struct {
	Success bool `json:"success"`
}

type CreateTransactionRequest struct {
	AccountID       string          `json:"accountId"`
	Amount          int64           `json:"amount"`
	TransactionType TransactionType `json:"transactionType"`
}

type CreateTransactionResponse struct {
	TransactionID string `json:"transactionId"`
}

type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}
