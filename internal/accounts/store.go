package accounts

import (
	"context"
	"sync"

	"github.com/qcom/banksession/internal/apiclient"
	"github.com/qcom/banksession/internal/models"
	"github.com/qcom/banksession/internal/signal"
	"github.com/sirupsen/logrus"
)

// API is the account part of the backend. *apiclient.Client implements it.
type API interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
	GetAccount(ctx context.Context, accountNumber int64) (*models.Account, error)
	CreateAccount(ctx context.Context, balance int64) (*models.CreateAccountResponse, error)
	DeleteAccount(ctx context.Context, accountNumber int64) (*models.DeleteAccountResponse, error)
	CreateTransaction(ctx context.Context, req models.CreateTransactionRequest) (*models.CreateTransactionResponse, error)
	ListTransactionsByAccount(ctx context.Context, accountID string) ([]models.Transaction, error)
}

var _ API = (*apiclient.Client)(nil)

// Authorizer runs protected calls with session renewal. *session.Controller
// implements it.
type Authorizer interface {
	Authorized(ctx context.Context, call func(ctx context.Context) error) error
}

// Store keeps the account list of the signed-in user observable.
type Store struct {
	api    API
	auth   Authorizer
	logger *logrus.Logger

	loadMu   sync.Mutex
	inflight int

	accounts  *signal.Value[[]models.Account]
	loading   *signal.Value[bool]
	lastError *signal.Value[string]
}

func NewStore(api API, auth Authorizer, logger *logrus.Logger) *Store {
	return &Store{
		api:       api,
		auth:      auth,
		logger:    logger,
		accounts:  signal.New[[]models.Account](nil, nil),
		loading:   signal.Comparable(false),
		lastError: signal.Comparable(""),
	}
}

func (s *Store) Accounts() signal.Signal[[]models.Account] { return s.accounts }

func (s *Store) Loading() signal.Signal[bool] { return s.loading }

func (s *Store) Error() signal.Signal[string] { return s.lastError }

func (s *Store) ClearError() {
	s.lastError.Set("")
}

// run executes call under the session and tracks loading and errors.
func (s *Store) run(ctx context.Context, op string, call func(ctx context.Context) error) error {
	s.loadMu.Lock()
	s.inflight++
	s.loading.Set(true)
	s.loadMu.Unlock()

	defer func() {
		s.loadMu.Lock()
		s.inflight--
		if s.inflight == 0 {
			s.loading.Set(false)
		}
		s.loadMu.Unlock()
	}()

	if err := s.auth.Authorized(ctx, call); err != nil {
		s.logger.WithError(err).WithField("operation", op).Warn("Account operation failed")
		s.lastError.Set(apiclient.UserMessage(err))
		return err
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context) ([]models.Account, error) {
	var list []models.Account
	err := s.run(ctx, "fetch_all", func(ctx context.Context) error {
		var err error
		list, err = s.api.ListAccounts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.accounts.Set(list)
	return list, nil
}

func (s *Store) FetchAccount(ctx context.Context, accountNumber int64) (*models.Account, error) {
	var account *models.Account
	err := s.run(ctx, "fetch_account", func(ctx context.Context) error {
		var err error
		account, err = s.api.GetAccount(ctx, accountNumber)
		return err
	})
	return account, err
}

// CreateAccount opens an account and reloads the list.
func (s *Store) CreateAccount(ctx context.Context, balance int64) (*models.CreateAccountResponse, error) {
	var resp *models.CreateAccountResponse
	err := s.run(ctx, "create_account", func(ctx context.Context) error {
		var err error
		resp, err = s.api.CreateAccount(ctx, balance)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.refresh(ctx)
	return resp, nil
}

// DeleteAccount closes an account. The list is reloaded only when the backend
// confirms the deletion.
func (s *Store) DeleteAccount(ctx context.Context, accountNumber int64) (bool, error) {
	var resp *models.DeleteAccountResponse
	err := s.run(ctx, "delete_account", func(ctx context.Context) error {
		var err error
		resp, err = s.api.DeleteAccount(ctx, accountNumber)
		return err
	})
	if err != nil {
		return false, err
	}
	if resp.Success {
		s.refresh(ctx)
	}
	return resp.Success, nil
}

// CreateTransaction books a transaction and reloads the list so balances
// follow.
func (s *Store) CreateTransaction(ctx context.Context, req models.CreateTransactionRequest) (*models.CreateTransactionResponse, error) {
	var resp *models.CreateTransactionResponse
	err := s.run(ctx, "create_transaction", func(ctx context.Context) error {
		var err error
		resp, err = s.api.CreateTransaction(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.refresh(ctx)
	return resp, nil
}

func (s *Store) FetchTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	var list []models.Transaction
	err := s.run(ctx, "fetch_transactions", func(ctx context.Context) error {
		var err error
		list, err = s.api.ListTransactionsByAccount(ctx, accountID)
		return err
	})
	return list, err
}

// refresh reloads the list after a mutation. A failed reload is already
// reported on the error signal and does not fail the mutation.
func (s *Store) refresh(ctx context.Context) {
	_, _ = s.FetchAll(ctx)
}
