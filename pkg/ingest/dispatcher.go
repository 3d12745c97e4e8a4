package ingest

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// DefaultWorkers bounds concurrent document-ingestion jobs. LLM provider
// rate limits are the practical ceiling, not CPU.
const DefaultWorkers = 4

// Dispatcher runs ingestion jobs asynchronously on a bounded worker pool.
// Documents are independent; there is no cross-document ordering.
type Dispatcher struct {
	processor *Processor
	sem       chan struct{}
	wg        sync.WaitGroup
	logger    hclog.Logger
}

// NewDispatcher creates a dispatcher with the given worker bound.
func NewDispatcher(processor *Processor, workers int, logger hclog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{
		processor: processor,
		sem:       make(chan struct{}, workers),
		logger:    logger.Named("ingest-dispatcher"),
	}
}

// Submit schedules one document for processing and returns immediately.
// The job's outcome lands in the status tracker.
func (d *Dispatcher) Submit(ctx context.Context, documentoID uint, opts ProcessOptions) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		select {
		case d.sem <- struct{}{}:
			defer func() { <-d.sem }()
		case <-ctx.Done():
			d.logger.Warn("ingestion job cancelled before start", "documento_id", documentoID)
			return
		}

		if _, err := d.processor.Process(ctx, documentoID, opts); err != nil {
			d.logger.Error("ingestion job failed",
				"documento_id", documentoID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every submitted job has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
