// Package scheduler drives the periodic farm-scan trigger spec.md §6's
// Scheduling Policy calls for: on a cron cadence, every farm known to
// the store gets a fresh run_farm_analysis. The shape follows
// CarbonScribe's reports/scheduler.ScheduleManager (robfig/cron/v3,
// a mutex-guarded running flag, Start/Stop lifecycle), trimmed to this
// system's single recurring job instead of per-tenant schedule CRUD.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/orchestrator"
	"github.com/demeterfield/pipeline/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs a recurring farm scan across every farm the store
// knows about, bounding how many scans run concurrently per tick.
type Scheduler struct {
	cron   *cron.Cron
	runner *orchestrator.Orchestrator
	store  store.PersistenceStore
	cfg    config.SchedulerConfig
	log    zerolog.Logger

	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

func New(runner *orchestrator.Orchestrator, persistence store.PersistenceStore, cfg config.SchedulerConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		store:  persistence,
		cfg:    cfg,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the cron job and begins the scheduler's internal
// clock. It does not block; call Stop to drain the in-flight tick.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.cfg.CronExpression, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ScanTimeout)
		defer cancel()
		s.runTick(ctx)
	})
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()
	s.running = true
	s.log.Info().Str("cron", s.cfg.CronExpression).Msg("scheduler started")
	return nil
}

// Stop halts the cron clock and waits for any in-flight tick to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.running = false
	s.log.Info().Msg("scheduler stopped")
}

// RunNow triggers an out-of-cycle scan, e.g. from an operator command.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runTick(ctx)
}

func (s *Scheduler) runTick(ctx context.Context) {
	farmIDs, err := s.store.ListFarmIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list farms for scheduled scan")
		return
	}
	if len(farmIDs) == 0 {
		return
	}

	concurrency := s.cfg.MaxConcurrent
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	analysisDate := time.Now().UTC()

	for _, farmID := range farmIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(farmID string) {
			defer wg.Done()
			defer func() { <-sem }()

			bundle, err := s.runner.RunFarmAnalysis(ctx, farmID, orchestrator.Options{AnalysisDate: analysisDate})
			if err != nil {
				s.log.Error().Err(err).Str("farmId", farmID).Msg("scheduled farm scan failed")
				return
			}
			s.log.Info().Str("farmId", farmID).Int("fields", len(bundle.Results)).
				Int("failures", len(bundle.Failures)).Int("alerts", len(bundle.Alerts)).
				Msg("scheduled farm scan completed")
		}(farmID)
	}
	wg.Wait()
}
