package handler

import (
	"golang.org/x/time/rate"

	"globalchat/internal/configs"
	"globalchat/internal/pkg/limiter"
	"globalchat/internal/relay"
)

const (
	SubscribeRate  = 1
	SubscribeBurst = 10
)

// AppDeps carries what the relay handlers need.
type AppDeps struct {
	Hub    *relay.Hub
	Config *configs.AppConfig

	// SubscribeLimiter throttles websocket upgrades per client IP.
	SubscribeLimiter *limiter.IPRateLimiter

	// tables is the set of tables clients may subscribe to.
	tables map[string]struct{}
}

// NewAppDeps builds the handler dependencies from the hub and configuration.
func NewAppDeps(hub *relay.Hub, cfg *configs.AppConfig) *AppDeps {
	tables := make(map[string]struct{}, len(cfg.RelayTables))
	for _, table := range cfg.RelayTables {
		tables[table] = struct{}{}
	}

	return &AppDeps{
		Hub:              hub,
		Config:           cfg,
		SubscribeLimiter: limiter.NewIPRateLimiter(rate.Limit(SubscribeRate), SubscribeBurst),
		tables:           tables,
	}
}

// Close stops the background work owned by the handlers.
func (d *AppDeps) Close() {
	d.SubscribeLimiter.Stop()
}

// TableAllowed reports whether table is exposed by the relay.
func (d *AppDeps) TableAllowed(table string) bool {
	_, ok := d.tables[table]
	return ok
}
