package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDevelopmentDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, developmentSecret, cfg.JWTSecret)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, DriverPostgres, cfg.BackendDriver)
	assert.Equal(t, DriverPostgres, cfg.RealtimeDriver)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.Equal(t, PolicyLenient, cfg.FollowUpPolicy)
	assert.False(t, cfg.StorageEnabled())
	assert.Equal(t, []string{"global_chat_messages", "user_profiles"}, cfg.RelayTables)
	assert.False(t, cfg.RelayRequireAuth)
}

func TestLoadConfigTrimsOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example ")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadConfigRelayTables(t *testing.T) {
	t.Setenv("RELAY_TABLES", " global_chat_messages ,")
	t.Setenv("RELAY_REQUIRE_AUTH", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"global_chat_messages"}, cfg.RelayTables)
	assert.True(t, cfg.RelayRequireAuth)
}

func TestLoadConfigProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("BACKEND_DRIVER", "memory")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.RealtimeDriver)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"privileged port":     {"PORT", "80"},
		"unknown backend":     {"BACKEND_DRIVER", "sqlite"},
		"unknown realtime":    {"REALTIME_DRIVER", "sse"},
		"unknown store":       {"SESSION_STORE", "file"},
		"unknown policy":      {"FOLLOW_UP_POLICY", "panic"},
		"partial s3 settings": {"S3_BUCKET_NAME", "avatars"},
		"mismatched realtime": {"REALTIME_DRIVER", "memory"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigWebsocketRealtime(t *testing.T) {
	t.Setenv("BACKEND_DRIVER", "memory")
	t.Setenv("REALTIME_DRIVER", "websocket")
	t.Setenv("REALTIME_URL", "ws://relay.internal:9000/realtime")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverWebsocket, cfg.RealtimeDriver)
	assert.Equal(t, "ws://relay.internal:9000/realtime", cfg.RealtimeURL)
}
