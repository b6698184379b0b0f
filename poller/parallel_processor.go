package poller

import (
	"context"
	"sync"

	"foerderbande/models"

	log "github.com/sirupsen/logrus"
)

// ParallelProcessor polls queued sources with a fixed number of workers
type ParallelProcessor struct {
	maxWorkers  int
	workerQueue chan models.Source
	handle      func(ctx context.Context, source models.Source)
	wg          sync.WaitGroup
}

func NewParallelProcessor(maxWorkers int, maxQueueSize int, handle func(ctx context.Context, source models.Source)) *ParallelProcessor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	return &ParallelProcessor{
		maxWorkers:  maxWorkers,
		workerQueue: make(chan models.Source, maxQueueSize),
		handle:      handle,
	}
}

func (pp *ParallelProcessor) start(ctx context.Context) {
	for i := 0; i < pp.maxWorkers; i++ {
		pp.wg.Add(1)
		go pp.startWorker(ctx, i)
	}
}

func (pp *ParallelProcessor) startWorker(ctx context.Context, id int) {
	defer pp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Debugf("Worker %d: Shutting down", id)
			return
		case source, ok := <-pp.workerQueue:
			if !ok {
				return
			}
			pp.handle(ctx, source)
		}
	}
}

// submit queues a source, returning false when the context is done
func (pp *ParallelProcessor) submit(ctx context.Context, source models.Source) bool {
	select {
	case <-ctx.Done():
		return false
	case pp.workerQueue <- source:
		return true
	}
}

// wait closes the queue and blocks until the workers have drained it
func (pp *ParallelProcessor) wait() {
	close(pp.workerQueue)
	pp.wg.Wait()
}
