package health

import (
	"context"
	"time"
)

type EntityType string

const (
	EntityDatabase   EntityType = "database"
	EntityKVStore    EntityType = "kv_store"
	EntityGateway    EntityType = "gateway"
	EntityWorkerPool EntityType = "worker_pool"
)

type Status string

const (
	StatusOk      Status = "OK"
	StatusError   Status = "ERROR"
	StatusUnknown Status = "UNKNOWN"
)

type HealthRecord struct {
	EntityType  EntityType `json:"entity_type"`
	Status      Status     `json:"status"`
	LastMessage string     `json:"last_message"`
	LastChecked time.Time  `json:"last_checked"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// Probe checks one dependency and returns a short human description.
type Probe func(ctx context.Context) (string, error)

type IHealthUsecase interface {
	CheckAll(ctx context.Context) ([]HealthRecord, error)
	GetStatus(ctx context.Context) ([]HealthRecord, error)
	StartPeriodicChecks(ctx context.Context, interval time.Duration)
}
