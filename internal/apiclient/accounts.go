package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/qcom/banksession/internal/models"
)

func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var resp models.AccountsResponse
	if err := c.do(ctx, http.MethodGet, c.routes.ListAccounts, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

func (c *Client) GetAccount(ctx context.Context, accountNumber int64) (*models.Account, error) {
	query := url.Values{"accountNumber": {strconv.FormatInt(accountNumber, 10)}}

	var resp models.AccountResponse
	if err := c.do(ctx, http.MethodGet, c.routes.GetAccount, query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Account, nil
}

func (c *Client) CreateAccount(ctx context.Context, balance int64) (*models.CreateAccountResponse, error) {
	var resp models.CreateAccountResponse
	req := models.CreateAccountRequest{Balance: balance}
	if err := c.do(ctx, http.MethodPost, c.routes.CreateAccount, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DeleteAccount(ctx context.Context, accountNumber int64) (*models.DeleteAccountResponse, error) {
	var resp models.DeleteAccountResponse
	req := models.DeleteAccountRequest{AccountNumber: accountNumber}
	if err := c.do(ctx, http.MethodDelete, c.routes.DeleteAccount, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateTransaction(ctx context.Context, req models.CreateTransactionRequest) (*models.CreateTransactionResponse, error) {
	if !req.TransactionType.Valid() {
		return nil, NewValidationError("Unknown transaction type")
	}

	var resp models.CreateTransactionResponse
	if err := c.do(ctx, http.MethodPost, c.routes.CreateTransaction, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListTransactionsByAccount(ctx context.Context, accountID string) ([]models.Transaction, error) {
	query := url.Values{"accountId": {accountID}}

	var resp models.TransactionsResponse
	if err := c.do(ctx, http.MethodGet, c.routes.Transactions, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transactions, nil
}
