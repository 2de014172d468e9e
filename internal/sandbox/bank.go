package sandbox

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qcom/banksession/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrUnsupportedType    = errors.New("unsupported transaction type")
)

const (
	firstAccountNumber = 1000000001
	statusCompleted    = "COMPLETED"
)

type userRecord struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Bank is the sandbox's in-memory ledger. All balance changes happen under one
// lock so concurrent transactions on an account never lose an update.
type Bank struct {
	mu           sync.RWMutex
	usersByEmail map[string]*userRecord
	usersByID    map[string]*userRecord
	accounts     map[string]*models.Account
	transactions map[string][]models.Transaction
	revoked      map[string]time.Time
	nextNumber   int64
	bcryptCost   int
	now          func() time.Time
}

func NewBank() *Bank {
	return &Bank{
		usersByEmail: make(map[string]*userRecord),
		usersByID:    make(map[string]*userRecord),
		accounts:     make(map[string]*models.Account),
		transactions: make(map[string][]models.Transaction),
		revoked:      make(map[string]time.Time),
		nextNumber:   firstAccountNumber,
		bcryptCost:   bcrypt.DefaultCost,
		now:          time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (b *Bank) CreateUser(email, password string) (*models.User, error) {
	email = normalizeEmail(email)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.usersByEmail[email]; exists {
		return nil, ErrEmailTaken
	}

	rec := &userRecord{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    b.now(),
	}
	b.usersByEmail[email] = rec
	b.usersByID[rec.ID] = rec
	return &models.User{ID: rec.ID, Email: rec.Email}, nil
}

func (b *Bank) Authenticate(email, password string) (*models.User, error) {
	b.mu.RLock()
	rec, ok := b.usersByEmail[normalizeEmail(email)]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &models.User{ID: rec.ID, Email: rec.Email}, nil
}

func (b *Bank) GetUser(id string) (*models.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.usersByID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &models.User{ID: rec.ID, Email: rec.Email}, nil
}

// Revoke marks a refresh token id as unusable until it would have expired anyway.
func (b *Bank) Revoke(jti string, expiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for id, exp := range b.revoked {
		if now.After(exp) {
			delete(b.revoked, id)
		}
	}
	b.revoked[jti] = expiresAt
}

func (b *Bank) IsRevoked(jti string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.revoked[jti]
	return ok
}

func (b *Bank) CreateAccount(userID string, balance int64) (*models.Account, error) {
	if balance < 0 {
		return nil, ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	account := &models.Account{
		AccountID:     uuid.New().String(),
		AccountNumber: b.nextNumber,
		Balance:       balance,
		UserID:        userID,
	}
	b.nextNumber++
	b.accounts[account.AccountID] = account

	copied := *account
	return &copied, nil
}

func (b *Bank) ListAccounts(userID string) []models.Account {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := make([]models.Account, 0)
	for _, a := range b.accounts {
		if a.UserID == userID {
			list = append(list, *a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AccountNumber < list[j].AccountNumber })
	return list
}

// findByNumber must be called with mu held.
func (b *Bank) findByNumber(userID string, number int64) *models.Account {
	for _, a := range b.accounts {
		if a.AccountNumber == number && a.UserID == userID {
			return a
		}
	}
	return nil
}

func (b *Bank) GetAccount(userID string, number int64) (*models.Account, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a := b.findByNumber(userID, number)
	if a == nil {
		return nil, ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

func (b *Bank) DeleteAccount(userID string, number int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a := b.findByNumber(userID, number)
	if a == nil {
		return ErrAccountNotFound
	}
	delete(b.accounts, a.AccountID)
	delete(b.transactions, a.AccountID)
	return nil
}

// Apply books a deposit or withdrawal. Transfers need a counterparty and are
// not offered by the sandbox.
func (b *Bank) Apply(userID, accountID string, amount int64, txType models.TransactionType) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if txType != models.Deposit && txType != models.Withdrawal {
		return nil, ErrUnsupportedType
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, ErrAccountNotFound
	}

	switch txType {
	case models.Deposit:
		a.Balance += amount
	case models.Withdrawal:
		if a.Balance < amount {
			return nil, ErrInsufficientFunds
		}
		a.Balance -= amount
	}

	tx := models.Transaction{
		TransactionID:   uuid.New().String(),
		AccountID:       accountID,
		Amount:          amount,
		Timestamp:       b.now().UnixMilli(),
		TransactionType: txType,
		Status:          statusCompleted,
	}
	b.transactions[accountID] = append(b.transactions[accountID], tx)
	return &tx, nil
}

func (b *Bank) Transactions(userID, accountID string) ([]models.Transaction, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, ErrAccountNotFound
	}
	return append(make([]models.Transaction, 0, len(b.transactions[accountID])), b.transactions[accountID]...), nil
}
