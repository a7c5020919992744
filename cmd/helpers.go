package cmd

import (
	"context"
	"fmt"

	coreconfig "github.com/AzielCF/az-wacrm/core/config"
	coreDB "github.com/AzielCF/az-wacrm/core/database"
	"github.com/AzielCF/az-wacrm/infrastructure/kvstore"
	"github.com/AzielCF/az-wacrm/infrastructure/repository"
	"github.com/AzielCF/az-wacrm/infrastructure/session"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// backends are the stores every command needs.
type backends struct {
	db         *gorm.DB
	repos      *repository.Repositories
	kv         kvstore.Store
	kvDegraded bool
}

func openBackends(ctx context.Context, cfg *coreconfig.Config) (*backends, error) {
	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	repos := repository.New(db)
	if err := repos.Migrate(ctx); err != nil {
		return nil, err
	}

	kv, degraded := kvstore.Open(ctx, cfg.KV)
	return &backends{db: db, repos: repos, kv: kv, kvDegraded: degraded}, nil
}

// authStateFor namespaces credentials per instance under the configured prefix.
func authStateFor(store kvstore.Store, cfg *coreconfig.Config) *session.AuthState {
	return session.NewAuthState(store, cfg.KV.KeyPrefix+":"+cfg.Gateway.Instance)
}

func (b *backends) Close() {
	if err := b.kv.Close(); err != nil {
		logrus.Warnf("[KV] close: %v", err)
	}
	if sqlDB, err := b.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logrus.Warnf("[DB] close: %v", err)
		}
	}
}

// pingDatabase is the database health probe.
func (b *backends) pingDatabase(ctx context.Context) (string, error) {
	sqlDB, err := b.db.DB()
	if err != nil {
		return "", err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return "", fmt.Errorf("ping: %w", err)
	}
	stats := sqlDB.Stats()
	return fmt.Sprintf("%s reachable, %d open connections", b.db.Dialector.Name(), stats.OpenConnections), nil
}
