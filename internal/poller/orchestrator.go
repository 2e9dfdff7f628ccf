package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
)

// Orchestrator owns the poller lifetimes: each registered poller ticks on its
// own interval, overlapping ticks of the same poller are skipped, and Stop
// cancels in-flight ticks cooperatively.
type Orchestrator struct {
	cron   *cron.Cron
	logger logging.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	disabled map[string]bool
}

// NewOrchestrator creates an empty orchestrator.
func NewOrchestrator(logger logging.Logger) *Orchestrator {
	logger = logging.OrNop(logger)
	adapter := cronLogger{logger}
	return &Orchestrator{
		cron: cron.New(cron.WithChain(
			cron.Recover(adapter),
			cron.SkipIfStillRunning(adapter),
		)),
		logger:   logger,
		disabled: map[string]bool{},
	}
}

// Add schedules a poller at the given interval.
func (o *Orchestrator) Add(p Poller, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poller %s: interval must be positive", p.Source())
	}
	_, err := o.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() { o.tick(p) })
	if err != nil {
		return fmt.Errorf("schedule poller %s: %w", p.Source(), err)
	}
	o.logger.Info("poller %s scheduled every %s", p.Source(), interval)
	return nil
}

// Start begins scheduling. ctx bounds every tick; cancelling it stops
// in-flight work at the next suspension point.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()
	o.cron.Start()
}

// Stop halts scheduling and waits for running ticks to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()
	<-o.cron.Stop().Done()
}

func (o *Orchestrator) tick(p Poller) {
	o.mu.Lock()
	ctx := o.ctx
	stopped := o.disabled[p.Source()]
	o.mu.Unlock()
	if ctx == nil || ctx.Err() != nil || stopped {
		return
	}

	res, err := p.PollOnce(ctx)
	switch {
	case err == nil:
		if res.Fetched > 0 {
			o.logger.Info("poller %s: fetched=%d comments=%d created=%d ignored=%d failed=%d poisoned=%d",
				p.Source(), res.Fetched, res.Comments, res.Created, res.Ignored, res.Failed, res.Poisoned)
		}
	case igerrors.IsDisabled(err):
		// Config turned the source off; stop ticking until a restart.
		o.mu.Lock()
		o.disabled[p.Source()] = true
		o.mu.Unlock()
		o.logger.Warn("poller %s disabled by configuration, pausing", p.Source())
	case ctx.Err() != nil:
		// Shutdown raced the tick.
	default:
		o.logger.Error("poller %s tick failed: %v", p.Source(), err)
	}
}

// cronLogger adapts the component logger to cron's key-value interface.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("scheduler: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("scheduler: %s: %v %v", msg, err, keysAndValues)
}
