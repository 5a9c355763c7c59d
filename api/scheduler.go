/*
scheduler.go - Automated monthly invoice generation

PURPOSE:
  Generates the previous month's invoices on a cron schedule: one prosper
  invoice, plus one invoice per active client of every per-client line.

DESIGN:
  - robfig/cron drives the schedule (standard five-field spec, UTC)
  - Generation is idempotent: a rerun regenerates the same invoices in
    place, keeping numbers and PAID status
  - A failure for one client is logged and does not stop the run

CONFIGURATION:
  - Spec:    cron expression (default "0 2 1 * *", 02:00 on the 1st)
  - Enabled: whether Start schedules anything

USAGE:
  scheduler := NewInvoiceScheduler(engine, log)
  if err := scheduler.Start(); err != nil { ... }
  defer scheduler.Stop()

SEE ALSO:
  - revenue/engine.go: GenerateInvoice
  - config/config.go: scheduler.enabled, scheduler.spec
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/revenue-engine/revenue"
	"go.uber.org/zap"
)

// DefaultInvoiceSpec runs at 02:00 UTC on the first day of each month.
const DefaultInvoiceSpec = "0 2 1 * *"

// InvoiceScheduler handles automated period invoicing.
type InvoiceScheduler struct {
	Engine  *revenue.Engine
	Log     *zap.Logger
	Spec    string
	Enabled bool

	now func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// RunSummary reports one scheduler run.
type RunSummary struct {
	Period    revenue.Period
	Generated int
	Failed    int
}

// NewInvoiceScheduler creates an enabled scheduler with the default spec.
func NewInvoiceScheduler(engine *revenue.Engine, log *zap.Logger) *InvoiceScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &InvoiceScheduler{
		Engine:  engine,
		Log:     log,
		Spec:    DefaultInvoiceSpec,
		Enabled: true,
		now:     time.Now,
	}
}

// Start schedules the monthly run. It is a no-op when disabled.
func (s *InvoiceScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("invoice scheduler disabled")
		return nil
	}
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.Spec, func() { s.RunNow(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule invoice generation: %w", err)
	}
	c.Start()
	s.cron = c

	s.Log.Info("invoice scheduler started", zap.String("spec", s.Spec))
	return nil
}

// Stop stops the schedule and waits for a running job to finish.
func (s *InvoiceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.Log.Info("invoice scheduler stopped")
}

// NextRun returns the next scheduled run, or the zero time when stopped.
func (s *InvoiceScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow generates the invoices of the month before now.
func (s *InvoiceScheduler) RunNow(ctx context.Context) RunSummary {
	period := revenue.PeriodOf(s.now().UTC()).Previous()
	summary := RunSummary{Period: period}

	requests := []revenue.InvoiceRequest{{Line: revenue.LineProsper, Period: period}}
	for _, client := range s.Engine.Clients(ctx, "") {
		if client.Status != revenue.ClientActive || !client.Line.PerClient() {
			continue
		}
		requests = append(requests, revenue.InvoiceRequest{Line: client.Line, ClientID: client.ID, Period: period})
	}

	for _, req := range requests {
		if _, err := s.Engine.GenerateInvoice(ctx, req); err != nil {
			summary.Failed++
			s.Log.Warn("scheduled invoice failed",
				zap.String("line", string(req.Line)),
				zap.String("client_id", string(req.ClientID)),
				zap.String("period", period.String()),
				zap.Error(err))
			continue
		}
		summary.Generated++
	}

	s.Log.Info("scheduled invoicing completed",
		zap.String("period", period.String()),
		zap.Int("generated", summary.Generated),
		zap.Int("failed", summary.Failed))
	return summary
}
