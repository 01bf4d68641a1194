package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globalchat/internal/app/chat"
	"globalchat/internal/app/profile"
	"globalchat/internal/app/user"
	"globalchat/internal/backend/wsrealtime"
	"globalchat/internal/configs"
	"globalchat/internal/pkg/errs"
	"globalchat/internal/pkg/logx"
)

func memoryConfig(t *testing.T) *configs.AppConfig {
	t.Helper()
	t.Setenv("BACKEND_DRIVER", configs.DriverMemory)

	cfg, err := configs.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestConnectMemory(t *testing.T) {
	logx.SetOutput(io.Discard)
	ctx := context.Background()

	a, err := Connect(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	var states []user.State
	a.Auth.SubscribeToAuthStateChanges(func(s user.State) { states = append(states, s) })

	require.NoError(t, a.Auth.Register(ctx, "ada@example.com", "secret1"))
	current := a.Auth.Current()
	require.True(t, user.IsAuthenticated(current))

	p, err := a.Profiles.FetchByID(ctx, current.ID())
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", p.Email)

	var received []chat.Message
	sub, err := a.Chat.Subscribe(ctx, func(m chat.Message) { received = append(received, m) })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, a.Chat.Send(ctx, chat.NewMessage{Email: current.Email(), Content: "hello", SenderID: current.ID()}))

	require.Len(t, received, 1)
	assert.Equal(t, "hello", received[0].Content)
	assert.Len(t, states, 2)

	_, err = a.Profiles.PresignAvatarUpload(ctx, current.ID(), "me.png", "image/png", 1024)
	assert.True(t, errs.Is(err, errs.ErrStorageDisabled))
}

func TestConnectSharesReporter(t *testing.T) {
	logx.SetOutput(io.Discard)
	t.Setenv("FOLLOW_UP_POLICY", configs.PolicyStrict)
	ctx := context.Background()

	a, err := Connect(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	err = a.Auth.UpdateAuthUser(ctx, profile.Update{})
	assert.True(t, errs.Is(err, errs.ErrUnauthorized))
}

func TestConnectWebsocketRealtime(t *testing.T) {
	logx.SetOutput(io.Discard)
	t.Setenv("REALTIME_DRIVER", configs.DriverWebsocket)
	t.Setenv("REALTIME_URL", "ws://127.0.0.1:1/realtime")

	a, err := Connect(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &wsrealtime.Client{}, a.Backend.Realtime)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = a.Chat.Subscribe(ctx, func(chat.Message) {})
	assert.True(t, errs.Is(err, errs.ErrRealtime))
}

func TestConnectRejectsUnknownPolicy(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.FollowUpPolicy = "sometimes"

	_, err := Connect(context.Background(), cfg)
	assert.Error(t, err)
}
