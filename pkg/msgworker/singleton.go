package msgworker

import (
	"context"
	"sync"

	coreconfig "github.com/AzielCF/az-wacrm/core/config"
)

var (
	globalPool     *WorkerPool
	globalPoolOnce sync.Once
	globalCancel   context.CancelFunc
)

// GetGlobalPool returns the process-wide webhook pool, sized from the loaded config.
func GetGlobalPool() *WorkerPool {
	globalPoolOnce.Do(func() {
		var ctx context.Context
		ctx, globalCancel = context.WithCancel(context.Background())

		var size, queue int
		if coreconfig.Global != nil {
			size = coreconfig.Global.WorkerPool.Size
			queue = coreconfig.Global.WorkerPool.QueueSize
		}

		globalPool = NewWorkerPool(size, queue)
		globalPool.Start(ctx)
	})
	return globalPool
}

// StopGlobalPool drains and stops the pool if it was started.
func StopGlobalPool() {
	if globalPool != nil {
		globalPool.Stop()
	}
	if globalCancel != nil {
		globalCancel()
	}
}
