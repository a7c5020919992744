package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-wacrm/domains/health"
)

type healthService struct {
	probes  map[health.EntityType]health.Probe
	timeout time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	records map[health.EntityType]health.HealthRecord
}

func NewHealthService(probes map[health.EntityType]health.Probe) health.IHealthUsecase {
	return newHealthService(probes)
}

func newHealthService(probes map[health.EntityType]health.Probe) *healthService {
	records := make(map[health.EntityType]health.HealthRecord, len(probes))
	for entity := range probes {
		records[entity] = health.HealthRecord{EntityType: entity, Status: health.StatusUnknown}
	}
	return &healthService{
		probes:  probes,
		timeout: 10 * time.Second,
		now:     time.Now,
		records: records,
	}
}

func (s *healthService) GetStatus(ctx context.Context) ([]health.HealthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(), nil
}

func (s *healthService) CheckAll(ctx context.Context) ([]health.HealthRecord, error) {
	var wg sync.WaitGroup
	for entity, probe := range s.probes {
		wg.Add(1)
		go func(entity health.EntityType, probe health.Probe) {
			defer wg.Done()
			s.check(ctx, entity, probe)
		}(entity, probe)
	}
	wg.Wait()
	return s.GetStatus(ctx)
}

func (s *healthService) check(ctx context.Context, entity health.EntityType, probe health.Probe) {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	message, err := probe(probeCtx)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.records[entity]
	record.EntityType = entity
	record.LastChecked = now
	if err != nil {
		record.Status = health.StatusError
		record.LastMessage = err.Error()
		logrus.WithField("entity", entity).Warnf("[HEALTH] check failed: %v", err)
	} else {
		record.Status = health.StatusOk
		record.LastMessage = message
		record.LastSuccess = &now
	}
	s.records[entity] = record
}

func (s *healthService) StartPeriodicChecks(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		_, _ = s.CheckAll(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.CheckAll(ctx)
			}
		}
	}()
}

func (s *healthService) sorted() []health.HealthRecord {
	out := make([]health.HealthRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType < out[j].EntityType })
	return out
}
