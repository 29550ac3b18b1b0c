package jobs

import (
	"context"
	"time"

	"github.com/ncnu-assistant/dormmail-backend/models"
	"github.com/sirupsen/logrus"
)

// RecordFetcher is the part of DormMailService the warmup job needs
type RecordFetcher interface {
	FetchRecords(ctx context.Context) ([]models.MailRecord, string, error)
}

// CacheWarmupJob fills the record cache once at startup so the first query is fast
type CacheWarmupJob struct {
	Fetcher RecordFetcher
	Delay   time.Duration
}

func NewCacheWarmupJob(fetcher RecordFetcher, delay time.Duration) *CacheWarmupJob {
	return &CacheWarmupJob{Fetcher: fetcher, Delay: delay}
}

// Start runs the warmup in the background after Delay
func (j *CacheWarmupJob) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(j.Delay):
		}
		if err := j.Run(ctx); err != nil {
			logrus.Warnf("Cache warmup failed: %v", err)
		}
	}()
}

func (j *CacheWarmupJob) Run(ctx context.Context) error {
	startTime := time.Now()
	records, cachedAt, err := j.Fetcher.FetchRecords(ctx)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"component":    "CacheWarmupJob",
		"record_count": len(records),
		"cached_at":    cachedAt,
		"duration":     time.Since(startTime),
	}).Info("Cache warmed up successfully")
	return nil
}
