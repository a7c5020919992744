package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one unit of webhook work. Jobs sharing a Key run on the same worker
// in dispatch order.
type Job struct {
	Key     string
	Name    string
	Handler func(ctx context.Context) error
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	NumWorkers      int           `json:"num_workers"`
	QueueSize       int           `json:"queue_size"`
	ActiveWorkers   int           `json:"active_workers"`
	TotalDispatched int64         `json:"total_dispatched"`
	TotalProcessed  int64         `json:"total_processed"`
	TotalDropped    int64         `json:"total_dropped"`
	TotalErrors     int64         `json:"total_errors"`
	Uptime          time.Duration `json:"uptime"`
	WorkerStats     []WorkerStats `json:"worker_stats"`
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

// WorkerPool shards jobs by key over a fixed set of workers, each with its own
// bounded queue.
type WorkerPool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32
	startTime  time.Time

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
}

type worker struct {
	id            int
	jobQueue      chan Job
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *WorkerPool
}

func NewWorkerPool(numWorkers, queueSize int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 500
	}

	return &WorkerPool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
}

func (p *WorkerPool) Start(ctx context.Context) {
	p.startTime = time.Now()
	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			jobQueue: make(chan Job, p.queueSize),
			ctx:      workerCtx,
			cancel:   cancel,
			pool:     p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}

	logrus.Infof("[WORKER_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
}

// TryDispatch queues job without blocking and reports whether it was accepted.
// A full shard queue or a stopped pool drops the job.
func (p *WorkerPool) TryDispatch(job Job) bool {
	return p.enqueue(nil, job)
}

// Dispatch waits for room in the shard queue until ctx is done. It reports
// whether the job was accepted.
func (p *WorkerPool) Dispatch(ctx context.Context, job Job) bool {
	return p.enqueue(ctx.Done(), job)
}

// enqueue blocks until wait is closed; a nil wait never blocks.
func (p *WorkerPool) enqueue(wait <-chan struct{}, job Job) bool {
	if atomic.LoadInt32(&p.stopped) == 1 || p.workers[0] == nil {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardFor(job.Key)
	atomic.AddInt64(&p.totalDispatched, 1)

	sent := func() (ok bool) {
		// Stop closes the queues; a send racing it must not panic the caller.
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		if wait == nil {
			select {
			case p.workers[shard].jobQueue <- job:
				return true
			default:
				return false
			}
		}
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		case <-wait:
			return false
		}
	}()
	if sent {
		return true
	}

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[WORKER_POOL] Worker %d queue full (or stopped), dropping %s for %s", shard, job.Name, job.Key)
	return false
}

// Stop closes the queues and waits for the workers to drain what they hold.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		logrus.Info("[WORKER_POOL] Stopping workers...")

		for _, w := range p.workers {
			if w == nil {
				continue
			}
			close(w.jobQueue)
		}
		p.wg.Wait()
		for _, w := range p.workers {
			if w != nil {
				w.cancel()
			}
		}

		logrus.Info("[WORKER_POOL] All workers stopped")
	})
}

func (p *WorkerPool) shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *WorkerPool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, 0, len(p.workers))
	activeWorkers := 0

	for _, w := range p.workers {
		if w == nil {
			continue
		}
		isProcessing := atomic.LoadInt32(&w.isProcessing) == 1
		if isProcessing {
			activeWorkers++
		}
		workerStats = append(workerStats, WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  isProcessing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		})
	}

	var uptime time.Duration
	if !p.startTime.IsZero() {
		uptime = time.Since(p.startTime)
	}

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		Uptime:          uptime,
		WorkerStats:     workerStats,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[WORKER_POOL] Worker %d started", w.id)

	// Queued jobs are drained on Stop; the queue is closed, not abandoned.
	for job := range w.jobQueue {
		w.process(job)
	}
	logrus.Debugf("[WORKER_POOL] Worker %d shutting down", w.id)
}

func (w *worker) process(job Job) {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[WORKER_POOL] Worker %d panic in %s for %s: %v", w.id, job.Name, job.Key, r)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	if err := job.Handler(w.ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[WORKER_POOL] Worker %d job %s failed for %s", w.id, job.Name, job.Key)
	}
}
