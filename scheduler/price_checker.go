package scheduler

import (
	"context"
	"sync"

	"pennytrack/config"
	"pennytrack/logger"

	"github.com/robfig/cron/v3"
)

// PriceChecker runs sync and discovery on cron schedules
type PriceChecker struct {
	cron    *cron.Cron
	tracker *Tracker
	cfg     config.SyncConfig
	ctx     context.Context
	cancel  context.CancelFunc
	syncMu  sync.Mutex
	log     *logger.Logger
}

func NewPriceChecker(tracker *Tracker, cfg config.SyncConfig) *PriceChecker {
	ctx, cancel := context.WithCancel(context.Background())
	return &PriceChecker{
		cron:    cron.New(cron.WithSeconds()),
		tracker: tracker,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.ForScheduler(),
	}
}

// Start schedules the jobs and optionally syncs immediately
func (pc *PriceChecker) Start() error {
	if _, err := pc.cron.AddFunc(pc.cfg.Schedule, pc.checkAllPrices); err != nil {
		return err
	}
	if pc.cfg.DiscoverySchedule != "" {
		if _, err := pc.cron.AddFunc(pc.cfg.DiscoverySchedule, pc.discover); err != nil {
			return err
		}
	}

	if _, err := pc.cron.AddFunc("@hourly", pc.trimAlerts); err != nil {
		return err
	}

	if pc.cfg.RunOnStart {
		go pc.checkAllPrices()
	}

	pc.cron.Start()
	pc.log.Info().
		Str("sync", pc.cfg.Schedule).
		Str("discovery", pc.cfg.DiscoverySchedule).
		Msg("Price checker scheduled")
	return nil
}

// Stop cancels running jobs and waits for them to return
func (pc *PriceChecker) Stop() {
	pc.cancel()
	if pc.cron != nil {
		<-pc.cron.Stop().Done()
	}
}

// checkAllPrices skips a tick while the previous sync is still running
func (pc *PriceChecker) checkAllPrices() {
	if !pc.syncMu.TryLock() {
		pc.log.Warn().Msg("Previous price sync still running, skipping")
		return
	}
	defer pc.syncMu.Unlock()

	if _, err := pc.tracker.SyncAll(pc.ctx); err != nil {
		pc.log.Error().Err(err).Msg("Scheduled price sync failed")
	}
}

func (pc *PriceChecker) discover() {
	if _, err := pc.tracker.DiscoverAndTrack(pc.ctx); err != nil {
		pc.log.Error().Err(err).Msg("Scheduled discovery failed")
	}
}

func (pc *PriceChecker) trimAlerts() {
	if err := pc.tracker.TrimAlerts(); err != nil {
		pc.log.Warn().Err(err).Msg("Failed to trim alert stream")
	}
}

// ManualCheck allows manual triggering of price checks
func (pc *PriceChecker) ManualCheck() {
	pc.log.Info().Msg("Manual price check triggered")
	pc.checkAllPrices()
}
