package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-wacrm/domains/health"
)

func TestHealth_CheckAllRecordsEveryProbe(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	failing := true
	svc := newHealthService(map[health.EntityType]health.Probe{
		health.EntityDatabase: func(ctx context.Context) (string, error) { return "sqlite", nil },
		health.EntityGateway: func(ctx context.Context) (string, error) {
			if failing {
				return "", errors.New("dial tcp: connection refused")
			}
			return "open", nil
		},
	})
	svc.now = func() time.Time { return fixed }

	before, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, before, 2)
	assert.Equal(t, health.StatusUnknown, before[0].Status)

	records, err := svc.CheckAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, health.EntityDatabase, records[0].EntityType)
	assert.Equal(t, health.StatusOk, records[0].Status)
	assert.Equal(t, "sqlite", records[0].LastMessage)
	assert.Equal(t, health.StatusError, records[1].Status)
	assert.Nil(t, records[1].LastSuccess)

	failing = false
	records, _ = svc.CheckAll(context.Background())
	assert.Equal(t, health.StatusOk, records[1].Status)
	require.NotNil(t, records[1].LastSuccess)
	assert.Equal(t, fixed, *records[1].LastSuccess)
}
