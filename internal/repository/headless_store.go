package repository

import (
	"context"

	"github.com/qcom/banksession/internal/models"
)

// HeadlessStore is used where no session storage exists (server-side rendering,
// batch jobs). Reads return nothing and writes are dropped.
type HeadlessStore struct{}

func (HeadlessStore) Get(context.Context, models.TokenKind) (string, error) { return "", nil }

func (HeadlessStore) Set(context.Context, models.TokenKind, string) error { return nil }

func (HeadlessStore) Clear(context.Context) error { return nil }
