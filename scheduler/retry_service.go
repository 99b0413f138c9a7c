package scheduler

import (
	"context"
	"time"

	"pennytrack/logger"
	"pennytrack/models"
)

// RetryServiceFuncs contains the functions needed by RetryService
type RetryServiceFuncs struct {
	// FailedKeys lists SKUs that failed in the last sync
	FailedKeys func() []string
	// Retry re-fetches the given SKUs
	Retry func(ctx context.Context, skus []string) (*models.BatchResult, error)
}

// RetryService re-runs the previous cycle's failures on a fixed interval.
// The fetchers never retry on their own.
type RetryService struct {
	funcs    *RetryServiceFuncs
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
	started  bool
	log      *logger.Logger
}

func NewRetryService(funcs *RetryServiceFuncs, interval time.Duration) *RetryService {
	return &RetryService{
		funcs:    funcs,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		log:      logger.ForScheduler(),
	}
}

// Start starts the retry loop; a non-positive interval disables it
func (rs *RetryService) Start(ctx context.Context) {
	rs.started = true
	if rs.interval <= 0 {
		close(rs.done)
		rs.log.Info().Msg("Retry service disabled")
		return
	}
	rs.log.Info().Dur("interval", rs.interval).Msg("Starting retry service")

	go func() {
		defer close(rs.done)
		ticker := time.NewTicker(rs.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rs.ProcessRetries(ctx)
			case <-rs.stopChan:
				rs.log.Info().Msg("Retry service stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the retry loop and waits for an in-flight pass
func (rs *RetryService) Stop() {
	select {
	case <-rs.stopChan:
	default:
		close(rs.stopChan)
	}
	if rs.started {
		<-rs.done
	}
}

// ProcessRetries retries the last failures once
func (rs *RetryService) ProcessRetries(ctx context.Context) *models.BatchResult {
	keys := rs.funcs.FailedKeys()
	if len(keys) == 0 {
		return nil
	}

	rs.log.Info().Int("items", len(keys)).Msg("Retrying failed price checks")
	result, err := rs.funcs.Retry(ctx, keys)
	if err != nil {
		rs.log.Error().Err(err).Msg("Retry pass failed")
		return nil
	}
	rs.log.Info().Int("recovered", result.Updated).Int("still_failing", result.Failed).Msg("Retry pass finished")
	return result
}
