/*
Package app wires the client layer from configuration.

Connect picks the backend implementations named by the configuration, builds the
auth manager, the profile store and the chat accessor on top of them, and returns
them together. Close releases every connection Connect opened.
*/
package app

import (
	"context"
	"fmt"

	"globalchat/internal/app/auth"
	"globalchat/internal/app/chat"
	"globalchat/internal/app/followup"
	"globalchat/internal/app/profile"
	"globalchat/internal/app/storage"
	"globalchat/internal/backend"
	"globalchat/internal/backend/memory"
	"globalchat/internal/backend/postgres"
	"globalchat/internal/backend/sessionstore"
	"globalchat/internal/backend/wsrealtime"
	"globalchat/internal/configs"
	"globalchat/internal/pkg/logx"
)

// App is the wired client layer.
type App struct {
	Auth     *auth.Manager
	Profiles *profile.Store
	Chat     *chat.Accessor

	// Failures receives follow-up failures from all three accessors.
	Failures *followup.Reporter

	Backend *backend.Client
}

// Connect builds the client layer described by cfg. The returned App owns its
// connections until Close.
func Connect(ctx context.Context, cfg *configs.AppConfig) (*App, error) {
	policy, err := followup.ParsePolicy(cfg.FollowUpPolicy)
	if err != nil {
		return nil, err
	}

	client, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var opts []profile.Option
	if cfg.StorageEnabled() {
		svc, err := storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("app: init avatar storage: %w", err)
		}
		opts = append(opts, profile.WithStorage(svc))
	}

	reporter := followup.NewReporter(policy)
	profiles := profile.NewStore(client.Tables, opts...)

	a := &App{
		Auth:     auth.NewManager(client.Auth, profiles, reporter),
		Profiles: profiles,
		Chat:     chat.NewAccessor(client.Tables, client.Realtime, reporter),
		Failures: reporter,
		Backend:  client,
	}

	logx.Info("Client layer connected",
		"backend", cfg.BackendDriver,
		"realtime", cfg.RealtimeDriver,
		"session_store", cfg.SessionStore,
		"follow_up_policy", string(reporter.Policy()),
		"avatar_storage", cfg.StorageEnabled(),
	)
	return a, nil
}

// Close stops the auth manager and releases the backend connections.
func (a *App) Close() error {
	a.Auth.Close()
	return a.Backend.Close()
}

func newBackend(ctx context.Context, cfg *configs.AppConfig) (*backend.Client, error) {
	var (
		client *backend.Client
		token  wsrealtime.TokenSource
	)

	switch cfg.BackendDriver {
	case configs.DriverMemory:
		client = memory.New().Client()

	case configs.DriverPostgres:
		sessions, closeSessions, err := newSessionStore(ctx, cfg)
		if err != nil {
			return nil, err
		}

		pool, err := postgres.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			_ = closeSessions()
			return nil, err
		}

		pgAuth := postgres.NewAuth(pool, sessions, cfg.JWTSecret, cfg.SessionTTL)
		token = pgAuth.SessionToken

		client = &backend.Client{Auth: pgAuth, Tables: postgres.NewTables(pool)}
		client.OnClose(closeSessions)
		client.OnClose(func() error {
			pool.Close()
			return nil
		})

		if cfg.RealtimeDriver == configs.DriverPostgres {
			rt := postgres.NewRealtime(pool.Config().ConnConfig, client.Tables)
			client.Realtime = rt
			client.OnClose(rt.Close)
		}

	default:
		return nil, fmt.Errorf("app: unsupported backend driver %q", cfg.BackendDriver)
	}

	if cfg.RealtimeDriver == configs.DriverWebsocket {
		var opts []wsrealtime.Option
		if token != nil {
			opts = append(opts, wsrealtime.WithTokenSource(token))
		}
		client.Realtime = wsrealtime.New(cfg.RealtimeURL, opts...)
	}

	return client, nil
}

func newSessionStore(ctx context.Context, cfg *configs.AppConfig) (backend.SessionStore, func() error, error) {
	if cfg.SessionStore != configs.DriverRedis {
		return sessionstore.NewMemory(), func() error { return nil }, nil
	}

	rdb, err := sessionstore.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	return sessionstore.NewRedis(rdb, cfg.SessionKey), rdb.Close, nil
}
