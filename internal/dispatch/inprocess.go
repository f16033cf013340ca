package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GenerateHandler processes one image acquisition task.
type GenerateHandler func(ctx context.Context, task GenerateTask) error

// VariantsHandler processes one variant rendering task.
type VariantsHandler func(ctx context.Context, task VariantsTask) error

// InProcess runs dispatched tasks on goroutines inside the current process.
// It is the local-mode stand-in for asynchronous worker invocation: dispatch
// returns as soon as the task is scheduled, worker failures are logged rather
// than propagated to the dispatching stage, and one product's failure never
// cancels another's pipeline.
type InProcess struct {
	log   *zap.Logger
	group *errgroup.Group

	// base context for detached task execution; tasks outlive the
	// dispatching call but not the pipeline itself.
	ctx context.Context

	// pending counts scheduled tasks, including those still waiting for an
	// execution slot.
	pending sync.WaitGroup

	mu       sync.RWMutex
	generate GenerateHandler
	variants VariantsHandler
}

// NewInProcess creates a dispatcher whose tasks run until ctx is cancelled.
// concurrency bounds the number of tasks in flight; zero means unbounded.
func NewInProcess(ctx context.Context, logger *zap.Logger, concurrency int) *InProcess {
	g := &errgroup.Group{}
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	return &InProcess{
		log:   logger.Named("dispatch"),
		group: g,
		ctx:   ctx,
	}
}

// Register installs the worker handlers. Registration is separate from
// construction because the acquisition worker itself needs the dispatcher to
// hand off to the variant worker.
func (d *InProcess) Register(generate GenerateHandler, variants VariantsHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generate = generate
	d.variants = variants
}

func (d *InProcess) DispatchGenerate(ctx context.Context, task GenerateTask) error {
	d.mu.RLock()
	handler := d.generate
	d.mu.RUnlock()
	if handler == nil {
		return fmt.Errorf("dispatch: no generate handler registered")
	}
	d.log.Debug("dispatching generate task",
		zap.String("campaign_id", task.CampaignID),
		zap.Int("product_index", task.ProductIndex))
	d.submit(func() {
		if err := handler(d.ctx, task); err != nil {
			d.log.Error("generate worker failed",
				zap.String("campaign_id", task.CampaignID),
				zap.Int("product_index", task.ProductIndex),
				zap.Error(err))
		}
	})
	return nil
}

func (d *InProcess) DispatchVariants(ctx context.Context, task VariantsTask) error {
	d.mu.RLock()
	handler := d.variants
	d.mu.RUnlock()
	if handler == nil {
		return fmt.Errorf("dispatch: no variants handler registered")
	}
	d.log.Debug("dispatching variants task",
		zap.String("campaign_id", task.CampaignID),
		zap.Int("product_index", task.ProductIndex))
	d.submit(func() {
		if err := handler(d.ctx, task); err != nil {
			d.log.Error("variants worker failed",
				zap.String("campaign_id", task.CampaignID),
				zap.Int("product_index", task.ProductIndex),
				zap.Error(err))
		}
	})
	return nil
}

// submit schedules run on the bounded group without ever blocking the caller.
// The slot acquisition happens on a detached goroutine: a handler that is
// itself occupying a slot can dispatch downstream work and return, freeing
// its slot for the task it just scheduled.
func (d *InProcess) submit(run func()) {
	d.pending.Add(1)
	go d.group.Go(func() error {
		defer d.pending.Done()
		run()
		return nil
	})
}

// Wait blocks until every dispatched task has finished, including tasks those
// tasks dispatched in turn.
func (d *InProcess) Wait() {
	d.pending.Wait()
	_ = d.group.Wait()
}
