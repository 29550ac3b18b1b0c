package jobs

import (
	"context"
	"time"

	"github.com/ncnu-assistant/dormmail-backend/services"
	"github.com/sirupsen/logrus"
)

const cleanupRunTimeout = time.Minute

type CacheCleanupJob struct {
	Store  services.ResponseStore
	Period time.Duration
}

func NewCacheCleanupJob(store services.ResponseStore, period time.Duration) *CacheCleanupJob {
	if period <= 0 {
		period = 10 * time.Minute
	}
	return &CacheCleanupJob{Store: store, Period: period}
}

// Start runs the sweep on a ticker until ctx is cancelled
func (j *CacheCleanupJob) Start(ctx context.Context) {
	logrus.Infof("Starting Cache Cleanup Job (runs every %v)...", j.Period)
	ticker := time.NewTicker(j.Period)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logrus.Info("Cache Cleanup Job stopped")
				return
			case <-ticker.C:
				j.Run(ctx)
			}
		}
	}()
}

// Run removes expired entries once and returns how many were dropped
func (j *CacheCleanupJob) Run(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, cleanupRunTimeout)
	defer cancel()

	startTime := time.Now()
	removed, err := j.Store.DeleteExpired(ctx)
	if err != nil {
		logrus.Errorf("Cache Cleanup Job failed: %v", err)
		return 0
	}

	logrus.WithFields(logrus.Fields{
		"component": "CacheCleanupJob",
		"removed":   removed,
		"duration":  time.Since(startTime),
	}).Info("Cache Cleanup Job completed")
	return removed
}
