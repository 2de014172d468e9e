package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/qcom/banksession/internal/models"
)

var ErrUnknownBackend = errors.New("unknown credential store backend")

// CredentialStore holds the access and refresh credentials of one session.
// Get returns "" when the kind is absent. Failures of the underlying storage are
// returned to the caller, never swallowed.
type CredentialStore interface {
	Get(ctx context.Context, kind models.TokenKind) (string, error)
	Set(ctx context.Context, kind models.TokenKind, token string) error
	Clear(ctx context.Context) error
}

// CredentialEvent is emitted by stores shared between several sessions (tabs).
type CredentialEvent struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	Origin    string `json:"origin"`
}

const EventCleared = "cleared"

// CredentialWatcher is implemented by stores that can report changes made by
// other sessions sharing the same namespace.
type CredentialWatcher interface {
	Watch(ctx context.Context) (<-chan CredentialEvent, error)
}

// LoadPair reads both credentials.
func LoadPair(ctx context.Context, store CredentialStore) (models.CredentialPair, error) {
	access, err := store.Get(ctx, models.AccessToken)
	if err != nil {
		return models.CredentialPair{}, err
	}
	refresh, err := store.Get(ctx, models.RefreshToken)
	if err != nil {
		return models.CredentialPair{}, err
	}
	return models.CredentialPair{AccessToken: access, RefreshToken: refresh}, nil
}

// SavePair writes the non-empty halves of pair. The access credential is written last
// so a reader never sees a new access credential next to a stale refresh credential.
func SavePair(ctx context.Context, store CredentialStore, pair models.CredentialPair) error {
	if pair.RefreshToken != "" {
		if err := store.Set(ctx, models.RefreshToken, pair.RefreshToken); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
	}
	if pair.AccessToken != "" {
		if err := store.Set(ctx, models.AccessToken, pair.AccessToken); err != nil {
			return fmt.Errorf("failed to store access token: %w", err)
		}
	}
	return nil
}
