package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/config"
	"github.com/segyhp/tontine-engine/internal/notify"
)

func TestOpenMemory(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
	}

	b, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	assert.NotNil(t, b.Tontines)
	assert.NotNil(t, b.Notifications)
	assert.Nil(t, b.Redis)
	assert.Empty(t, b.Checks)
	assert.IsType(t, &notify.StoreEmitter{}, b.Emitter())
	assert.IsType(t, &notify.MemoryGate{}, b.Gate())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite"},
	}

	_, err := Open(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "sqlite")
}

func TestInitRedis(t *testing.T) {
	tests := []struct {
		name     string
		redis    config.RedisConfig
		wantOK   bool
		wantAddr string
		wantErr  bool
	}{
		{name: "not configured", wantOK: false},
		{
			name:     "from url",
			redis:    config.RedisConfig{URL: "redis://:secret@cache:6380/2"},
			wantOK:   true,
			wantAddr: "cache:6380",
		},
		{
			name:     "from host and port",
			redis:    config.RedisConfig{Host: "localhost", Port: "6379"},
			wantOK:   true,
			wantAddr: "localhost:6379",
		},
		{
			name:    "bad url",
			redis:   config.RedisConfig{URL: "http://nope"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, ok, err := initRedis(&config.Config{Redis: tt.redis})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				defer client.Close()
				assert.Equal(t, tt.wantAddr, client.Options().Addr)
			}
		})
	}
}
