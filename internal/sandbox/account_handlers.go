package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/qcom/banksession/internal/models"
	"github.com/sirupsen/logrus"
)

type AccountHandlers struct {
	bank   *Bank
	logger *logrus.Logger
}

func NewAccountHandlers(bank *Bank, logger *logrus.Logger) *AccountHandlers {
	return &AccountHandlers{bank: bank, logger: logger}
}

// respondWithBankError maps ledger errors to responses.
func (h *AccountHandlers) respondWithBankError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found")
	case errors.Is(err, ErrInsufficientFunds):
		respondWithError(w, http.StatusBadRequest, "INSUFFICIENT_FUNDS", "Insufficient funds")
	case errors.Is(err, ErrInvalidAmount):
		respondWithError(w, http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive")
	case errors.Is(err, ErrUnsupportedType):
		respondWithError(w, http.StatusBadRequest, "UNSUPPORTED_TRANSACTION_TYPE", "Transfers are not supported")
	default:
		h.logger.WithError(err).Error("Ledger operation failed")
		respondWithError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred")
	}
}

func (h *AccountHandlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	account, err := h.bank.CreateAccount(claims.Subject, req.Balance)
	if err != nil {
		h.respondWithBankError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, models.CreateAccountResponse{
		AccountID:     account.AccountID,
		AccountNumber: account.AccountNumber,
	})
}

func (h *AccountHandlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, models.AccountsResponse{Accounts: h.bank.ListAccounts(claims.Subject)})
}

func (h *AccountHandlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	number, err := strconv.ParseInt(r.URL.Query().Get("accountNumber"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_ACCOUNT_NUMBER", "Invalid account number")
		return
	}

	account, err := h.bank.GetAccount(claims.Subject, number)
	if err != nil {
		h.respondWithBankError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.AccountResponse{Account: *account})
}

func (h *AccountHandlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req models.DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	if err := h.bank.DeleteAccount(claims.Subject, req.AccountNumber); err != nil {
		h.respondWithBankError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.DeleteAccountResponse{Success: true})
}

func (h *AccountHandlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req models.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if !req.TransactionType.Valid() {
		respondWithError(w, http.StatusBadRequest, "INVALID_TRANSACTION_TYPE", "Unknown transaction type")
		return
	}

	tx, err := h.bank.Apply(claims.Subject, req.AccountID, req.Amount, req.TransactionType)
	if err != nil {
		h.respondWithBankError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"account_id":     tx.AccountID,
		"transaction_id": tx.TransactionID,
		"type":           tx.TransactionType,
	}).Info("Transaction booked")
	respondWithJSON(w, http.StatusCreated, models.CreateTransactionResponse{TransactionID: tx.TransactionID})
}

func (h *AccountHandlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	txs, err := h.bank.Transactions(claims.Subject, r.URL.Query().Get("accountId"))
	if err != nil {
		h.respondWithBankError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.TransactionsResponse{Transactions: txs})
}
