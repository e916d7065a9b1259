package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron"
	config "postqueue/configs"
	"postqueue/internal/models"
	"postqueue/internal/telemetry"
)

// Tracker is the slice of the lifecycle tracker the poller needs: discover
// due entries and claim them before execution.
type Tracker interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DueEntry, error)
	ClaimByID(ctx context.Context, entryID int64) (bool, error)
}

// Executor runs one claimed entry to completion and settles it.
type Executor interface {
	ExecuteEntry(ctx context.Context, due *models.DueEntry) error
}

// Poller is the fallback execution path: a fixed-interval loop that needs
// nothing but the database. It runs whether or not the job queue is up; the
// claim keeps the two paths from double-publishing.
type Poller struct {
	interval  time.Duration
	batchSize int
	tracker   Tracker
	executor  Executor
	c         *cron.Cron
	mu        sync.Mutex
}

func NewPoller(cfg config.Config, tracker Tracker, executor Executor) *Poller {
	return &Poller{
		interval:  cfg.PollInterval,
		batchSize: cfg.PollBatchSize,
		tracker:   tracker,
		executor:  executor,
	}
}

func (p *Poller) Start() error {
	p.c = cron.New()
	if err := p.c.AddFunc(fmt.Sprintf("@every %s", p.interval), p.Tick); err != nil {
		return err
	}
	p.c.Start()
	slog.Info(fmt.Sprintf("poll scheduler started, interval %s, batch %d", p.interval, p.batchSize))
	return nil
}

func (p *Poller) Stop() {
	if p.c != nil {
		p.c.Stop()
	}
}

// Tick processes one batch of due entries. Ticks never overlap: if the
// previous batch is still publishing, this firing is skipped and the entries
// wait for the next one.
func (p *Poller) Tick() {
	if !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	telemetry.PollTicks.Inc()
	ctx := context.Background()

	due, err := p.tracker.ListDue(ctx, time.Now(), p.batchSize)
	if err != nil {
		// Transient store failure; the next tick retries discovery.
		slog.Info(fmt.Sprintf("poll tick failed to list due entries: %v", err))
		return
	}

	for _, entry := range due {
		claimed, err := p.tracker.ClaimByID(ctx, entry.EntryID)
		if err != nil {
			slog.Info(fmt.Sprintf("claim failed for entry %d: %v", entry.EntryID, err))
			continue
		}
		if !claimed {
			// Another execution path got there first. Not an error.
			telemetry.ClaimMisses.Inc()
			continue
		}

		// Executed synchronously; the publisher's request timeout bounds how
		// long one entry can hold up the batch.
		if err := p.executor.ExecuteEntry(ctx, entry); err != nil {
			slog.Info(fmt.Sprintf("publish failed for entry %d on %s: %v", entry.EntryID, entry.Platform, err))
		}
	}
}
