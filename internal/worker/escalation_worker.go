package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/service"
)

// Sweeper runs one escalation pass.
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepResult, error)
}

// EscalationWorker runs the escalation sweep on a cron schedule. Runs never
// overlap; a tick that fires during a running sweep is skipped.
type EscalationWorker struct {
	sweeper Sweeper
	logger  *zap.Logger
	timeout time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewEscalationWorker builds a worker for spec, e.g. "@every 5m" or "*/5 * * * *".
func NewEscalationWorker(sweeper Sweeper, spec string, logger *zap.Logger) (*EscalationWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &EscalationWorker{
		sweeper: sweeper,
		logger:  logger.Named("escalation_worker"),
		timeout: 2 * time.Minute,
		cron:    cron.New(),
	}
	if _, err := w.cron.AddFunc(spec, w.tick); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return w, nil
}

// Start begins scheduling.
func (w *EscalationWorker) Start() {
	w.cron.Start()
	w.logger.Info("escalation worker started", zap.Int("entries", len(w.cron.Entries())))
}

// Stop halts scheduling and waits for a running sweep.
func (w *EscalationWorker) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.logger.Info("escalation worker stopped")
}

// RunOnce performs a sweep immediately.
func (w *EscalationWorker) RunOnce(ctx context.Context) (*service.SweepResult, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, nil
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()
	return w.sweeper.Sweep(ctx)
}

func (w *EscalationWorker) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	result, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("escalation sweep failed", zap.Error(err))
		return
	}
	if result == nil {
		w.logger.Debug("escalation sweep skipped; previous run still active")
	}
}
