package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dstmrk/octotracker/internal/checker"
	"github.com/dstmrk/octotracker/internal/ingest"
)

// Scheduler manages the daily cron tasks: offer ingestion from the registry
// and the notification sweep over all users.
type Scheduler struct {
	Cron     *cron.Cron
	Provider *ingest.Provider
	Checker  *checker.Checker
	Ctx      context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, provider *ingest.Provider, chk *checker.Checker) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Provider: provider,
		Checker:  chk,
		Ctx:      ctx,
	}
}

// RegisterAll registers the ingest and check tasks. The check should be
// scheduled after the ingest so the sweep sees the day's offers.
func (s *Scheduler) RegisterAll(ingestCron, checkCron string) error {
	if _, err := s.Cron.AddFunc(ingestCron, s.ingestTask); err != nil {
		return fmt.Errorf("register ingest task: %w", err)
	}
	if _, err := s.Cron.AddFunc(checkCron, s.checkTask); err != nil {
		return fmt.Errorf("register check task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunIngestNow executes the ingest task immediately (manual trigger / startup).
func (s *Scheduler) RunIngestNow() {
	s.ingestTask()
}

// RunCheckNow executes the notification sweep immediately.
func (s *Scheduler) RunCheckNow() {
	s.checkTask()
}

func (s *Scheduler) ingestTask() {
	log.Println("[INFO] running offer ingest")
	if err := s.Provider.Refresh(time.Now()); err != nil {
		log.Printf("[ERROR] offer ingest: %v", err)
		return
	}
	log.Println("[INFO] offer ingest done")
}

func (s *Scheduler) checkTask() {
	log.Println("[INFO] running notification sweep")
	if err := s.Checker.Run(s.Ctx); err != nil {
		log.Printf("[ERROR] notification sweep: %v", err)
		return
	}
	log.Println("[INFO] notification sweep done")
}
