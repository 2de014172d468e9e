package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/qcom/banksession/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	store := NewRedisStore(db, "tab-1", ttl, logger)
	store.origin = "origin-1"
	return store, mock
}

func TestRedisStore_Get(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(redismock.ClientMock)
		wantToken string
		wantErr   bool
	}{
		{
			name: "present",
			setup: func(m redismock.ClientMock) {
				m.ExpectGet("session:tab-1:accessToken").SetVal("access-1")
			},
			wantToken: "access-1",
		},
		{
			name: "absent",
			setup: func(m redismock.ClientMock) {
				m.ExpectGet("session:tab-1:accessToken").RedisNil()
			},
		},
		{
			name: "backend failure propagates",
			setup: func(m redismock.ClientMock) {
				m.ExpectGet("session:tab-1:accessToken").SetErr(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newTestRedisStore(t, 0)
			tt.setup(mock)

			token, err := store.Get(context.Background(), models.AccessToken)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantToken, token)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisStore_SetUsesTTL(t *testing.T) {
	store, mock := newTestRedisStore(t, time.Hour)
	mock.ExpectSet("session:tab-1:refreshToken", "refresh-1", time.Hour).SetVal("OK")

	require.NoError(t, store.Set(context.Background(), models.RefreshToken, "refresh-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_SetFailure(t *testing.T) {
	store, mock := newTestRedisStore(t, 0)
	mock.ExpectSet("session:tab-1:accessToken", "access-1", 0).SetErr(errors.New("READONLY"))

	err := store.Set(context.Background(), models.AccessToken, "access-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
}

func TestRedisStore_ClearDeletesAndPublishes(t *testing.T) {
	store, mock := newTestRedisStore(t, 0)

	payload, err := json.Marshal(CredentialEvent{Namespace: "tab-1", Type: EventCleared, Origin: "origin-1"})
	require.NoError(t, err)

	mock.ExpectDel("session:tab-1:accessToken", "session:tab-1:refreshToken").SetVal(2)
	mock.ExpectPublish("session:tab-1:events", payload).SetVal(1)

	require.NoError(t, store.Clear(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_ClearFailureIsReturned(t *testing.T) {
	store, mock := newTestRedisStore(t, 0)
	mock.ExpectDel("session:tab-1:accessToken", "session:tab-1:refreshToken").SetErr(errors.New("timeout"))

	assert.Error(t, store.Clear(context.Background()))
}
