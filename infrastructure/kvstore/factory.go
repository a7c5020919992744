package kvstore

import (
	"context"
	"time"

	"github.com/AzielCF/az-wacrm/core/config"
	"github.com/AzielCF/az-wacrm/infrastructure/valkey"
	"github.com/sirupsen/logrus"
)

const pingTimeout = 5 * time.Second

// Open picks the first configured backend (REST, then native protocol) that
// answers a ping. When none is configured or reachable it returns a
// MemoryStore and degraded=true; credentials then die with the process.
func Open(ctx context.Context, cfg config.KVConfig) (store Store, degraded bool) {
	if cfg.HasREST() {
		rest := NewRESTStore(cfg.RESTURL, cfg.RESTToken)
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := rest.Ping(pingCtx)
		cancel()
		if err == nil {
			logrus.Infof("[KV] using REST backend at %s", cfg.RESTURL)
			return rest, false
		}
		logrus.WithError(err).Warn("[KV] REST backend unreachable")
	}

	if cfg.ValkeyAddress != "" {
		client, err := valkey.Dial(ctx, valkey.Config{
			Address:        cfg.ValkeyAddress,
			Password:       cfg.ValkeyPassword,
			DB:             cfg.ValkeyDB,
			ConnectTimeout: pingTimeout,
		})
		if err == nil {
			logrus.Infof("[KV] using valkey backend at %s", cfg.ValkeyAddress)
			return NewValkeyStore(client), false
		}
		logrus.WithError(err).Warn("[KV] valkey backend unreachable")
	}

	logrus.Warn("[KV] no persistent KV backend available, falling back to in-memory storage: WhatsApp pairing will be lost on restart")
	return NewMemoryStore(), true
}
