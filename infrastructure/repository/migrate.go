package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type schemaInitializer interface {
	InitSchema(ctx context.Context) error
}

// Repositories groups the gorm repositories the integration persists through.
type Repositories struct {
	Connections *ConnectionGormRepository
	Leads       *LeadGormRepository
	Users       *UserGormRepository
	Messages    *MessageGormRepository
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		Connections: NewConnectionGormRepository(db),
		Leads:       NewLeadGormRepository(db),
		Users:       NewUserGormRepository(db),
		Messages:    NewMessageGormRepository(db),
	}
}

// Migrate creates or updates every table.
func (r *Repositories) Migrate(ctx context.Context) error {
	for _, s := range []schemaInitializer{r.Connections, r.Leads, r.Messages} {
		if err := s.InitSchema(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logrus.Debug("[DB] schema up to date")
	return nil
}
