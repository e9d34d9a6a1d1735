package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic activity report.
type Scheduler struct {
	cron       *cron.Cron
	spec       string
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	reportFunc func(ctx context.Context) error

	mu      sync.Mutex
	running bool
}

// New creates a scheduler firing on a standard five-field cron spec in UTC.
func New(spec string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		spec:   spec,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) SetReportFunction(f func(ctx context.Context) error) {
	s.reportFunc = f
}

// Start registers the report job and starts the cron loop. With no report
// function or an empty spec it does nothing.
func (s *Scheduler) Start() error {
	if s.reportFunc == nil || s.spec == "" {
		s.log.Warn("report schedule not configured, scheduler idle")
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, s.runReport); err != nil {
		return fmt.Errorf("schedule report %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.log.Info("scheduler started", zap.String("spec", s.spec))
	return nil
}

func (s *Scheduler) runReport() {
	s.log.Info("report triggered")
	if err := s.reportFunc(s.ctx); err != nil {
		s.log.Error("report failed", zap.Error(err))
	}
}

// Stop waits for a running report to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()
	if wasRunning {
		<-s.cron.Stop().Done()
	}
	s.cancel()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && len(s.cron.Entries()) > 0
}

// Validate parses spec without scheduling anything.
func Validate(spec string) error {
	if spec == "" {
		return nil
	}
	_, err := cron.ParseStandard(spec)
	return err
}
