package repository

import (
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/qcom/banksession/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCredentialStore(t *testing.T) {
	redisClient, _ := redismock.NewClientMock()

	tests := []struct {
		backend  string
		backends Backends
		wantType interface{}
		wantErr  bool
	}{
		{backend: "memory", wantType: &MemoryStore{}},
		{backend: "none", wantType: HeadlessStore{}},
		{backend: "redis", backends: Backends{Redis: redisClient}, wantType: &RedisStore{}},
		{backend: "redis", wantErr: true},
		{backend: "dynamodb", backends: Backends{DynamoDB: newFakeDynamoDB()}, wantType: &DynamoDBStore{}},
		{backend: "dynamodb", wantErr: true},
		{backend: "localStorage", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Storage.Backend = tt.backend
			cfg.Storage.Namespace = "tab-1"

			store, err := NewCredentialStore(cfg, tt.backends, quietLogger())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, store)
		})
	}
}
