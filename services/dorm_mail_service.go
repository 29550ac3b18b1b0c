package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ncnu-assistant/dormmail-backend/models"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	dormMailServiceName = "dorm_mail_service"

	// recordsCacheKey holds the unfiltered list served to the query API
	recordsCacheKey = "records:unfiltered"

	cachedAtLayout    = "2006-01-02T15:04:05.000Z07:00"
	cacheWriteTimeout = 10 * time.Second
	writeErrorBuffer  = 64
)

// Response header names and values shared by every dorm mail payload
const (
	HeaderContentType              = "Content-Type"
	HeaderAccessControlAllowOrigin = "Access-Control-Allow-Origin"
	HeaderCacheControl             = "Cache-Control"

	ContentTypeJSON = "application/json"
	AllowAnyOrigin  = "*"
)

// cacheWriteError carries a failed background write to the logging goroutine
type cacheWriteError struct {
	key string
	err error
}

// DormMailService fronts the fetch, decode and extract pipeline with a response cache.
// Dependencies are injected; call Close at shutdown to drain pending cache writes.
type DormMailService struct {
	source    PageSource
	extractor MailExtractor
	store     ResponseStore
	ttl       time.Duration
	metrics   *shared.ServiceMetrics
	now       func() time.Time

	group singleflight.Group

	lifecycle   sync.RWMutex
	closed      bool
	writes      sync.WaitGroup
	writeErrors chan cacheWriteError
	drained     chan struct{}
	closeOnce   sync.Once
}

// NewDormMailService wires the pipeline together and starts the write-error logger
func NewDormMailService(source PageSource, extractor MailExtractor, store ResponseStore, ttl time.Duration, metrics *shared.ServiceMetrics) *DormMailService {
	if extractor == nil {
		extractor = NewTokenMailExtractor(nil)
	}
	if ttl <= 0 {
		ttl = shared.DefaultCacheTTL
	}
	if metrics == nil {
		metrics = shared.NewServiceMetrics(dormMailServiceName)
	}

	s := &DormMailService{
		source:      source,
		extractor:   extractor,
		store:       store,
		ttl:         ttl,
		metrics:     metrics,
		now:         time.Now,
		writeErrors: make(chan cacheWriteError, writeErrorBuffer),
		drained:     make(chan struct{}),
	}

	go s.logWriteErrors()

	return s
}

// GetMailList returns the serialized response for requestURL and whether it was a cache hit.
// A hit never touches the upstream page.
func (s *DormMailService) GetMailList(ctx context.Context, requestURL string) (*models.CachedResponse, bool, error) {
	return s.getResponse(ctx, CacheKeyFromURL(requestURL))
}

// FetchRecords returns the full unfiltered record list and its cached_at timestamp
func (s *DormMailService) FetchRecords(ctx context.Context) ([]models.MailRecord, string, error) {
	response, _, err := s.getResponse(ctx, recordsCacheKey)
	if err != nil {
		return nil, "", err
	}

	var payload models.MailListResponse
	if err := json.Unmarshal(response.Body, &payload); err != nil {
		return nil, "", shared.NewServiceError(shared.ErrorCategoryProcessing, shared.CodeCacheReadFailed,
			fmt.Sprintf("cached payload is unreadable: %v", err), dormMailServiceName, "FetchRecords", false, err)
	}
	if payload.Data == nil {
		payload.Data = []models.MailRecord{}
	}
	return payload.Data, payload.CachedAt, nil
}

func (s *DormMailService) getResponse(ctx context.Context, key string) (*models.CachedResponse, bool, error) {
	startTime := time.Now()
	logger := logrus.WithFields(logrus.Fields{
		"component": "DormMailService",
		"cache_key": key,
	})

	cached, found, err := s.store.Get(ctx, key)
	if err != nil {
		// an unreachable cache degrades to a miss
		logger.WithError(err).Warn("Response cache lookup failed")
	}
	if found {
		logger.Debug("Cache hit")
		s.metrics.RecordRequest(true, time.Since(startTime))
		return cached, true, nil
	}

	logger.Info("Cache miss, fetching legacy dorm mail page")
	// joined callers share the fetch, so one caller going away must not cancel it;
	// the upstream client timeout still bounds it
	fetchCtx := context.WithoutCancel(ctx)
	result, err, joined := s.group.Do(key, func() (interface{}, error) {
		return s.refresh(fetchCtx, key)
	})
	s.metrics.RecordRequest(false, time.Since(startTime))
	if err != nil {
		return nil, false, err
	}
	if joined {
		logger.Debug("Joined in-flight upstream fetch")
	}

	return result.(*models.CachedResponse), false, nil
}

// refresh runs one fetch, decode and extract pass and schedules the cache write
func (s *DormMailService) refresh(ctx context.Context, key string) (*models.CachedResponse, error) {
	fetchStart := time.Now()

	html, err := s.source.FetchPage(ctx)
	if err != nil {
		s.metrics.RecordUpstreamFetch(false, 0, time.Since(fetchStart))
		serviceErr := shared.WrapError(err, shared.ErrorCategoryNetwork, shared.CodeUpstreamFetchFailed,
			dormMailServiceName, "refresh", false)
		serviceErr.LogError()
		return nil, serviceErr
	}

	records := s.extractor.Extract(html)
	s.metrics.RecordUpstreamFetch(true, len(records), time.Since(fetchStart))

	response, err := s.BuildSuccessResponse(records)
	if err != nil {
		return nil, shared.NewServiceError(shared.ErrorCategoryProcessing, "ENCODE_FAILED",
			err.Error(), dormMailServiceName, "refresh", false, err)
	}

	logrus.WithFields(logrus.Fields{
		"component":    "DormMailService",
		"cache_key":    key,
		"record_count": len(records),
		"duration":     time.Since(fetchStart),
	}).Info("Fetched dorm mail records")

	s.storeInBackground(key, response)
	return response, nil
}

// BuildSuccessResponse serializes records into the success payload with cache headers
func (s *DormMailService) BuildSuccessResponse(records []models.MailRecord) (*models.CachedResponse, error) {
	if records == nil {
		records = []models.MailRecord{}
	}

	now := s.now().UTC()
	body, err := json.Marshal(models.MailListResponse{
		Success:  true,
		Data:     records,
		Count:    len(records),
		CachedAt: now.Format(cachedAtLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode mail list: %w", err)
	}

	return &models.CachedResponse{
		StatusCode: 200,
		Headers: map[string]string{
			HeaderContentType:              ContentTypeJSON,
			HeaderAccessControlAllowOrigin: AllowAnyOrigin,
			HeaderCacheControl:             fmt.Sprintf("public, max-age=%d", int(s.ttl.Seconds())),
		},
		Body:      body,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}

// BuildErrorResponse renders a pipeline failure as the error payload
func BuildErrorResponse(err error) []byte {
	body, marshalErr := json.Marshal(models.ErrorResponse{
		Success: false,
		Error:   shared.ClientErrorMessage(err),
	})
	if marshalErr != nil {
		return []byte(`{"success":false,"error":"internal error"}`)
	}
	return body
}

// storeInBackground writes the response without holding up the caller.
// Failures only reach the write-error logger.
func (s *DormMailService) storeInBackground(key string, response *models.CachedResponse) {
	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	if s.closed {
		logrus.WithField("cache_key", key).Debug("Service closed, skipping cache write")
		return
	}

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
		defer cancel()

		if err := s.store.Set(ctx, key, response, s.ttl); err != nil {
			writeErr := shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeCacheWriteFailed,
				err.Error(), dormMailServiceName, "storeInBackground", true, err)
			select {
			case s.writeErrors <- cacheWriteError{key: key, err: writeErr}:
			default:
				logrus.WithError(err).WithField("cache_key", key).Error("Cache write failed and error buffer is full")
			}
		}
	}()
}

func (s *DormMailService) logWriteErrors() {
	defer close(s.drained)

	for writeErr := range s.writeErrors {
		s.metrics.RecordCacheWriteFailure()
		logrus.WithFields(logrus.Fields{
			"component": "DormMailService",
			"cache_key": writeErr.key,
			"retryable": shared.IsRetryableError(writeErr.err),
			"error":     writeErr.err,
		}).Error("Background cache write failed")
	}
}

// WaitForPendingWrites blocks until every scheduled cache write has finished
func (s *DormMailService) WaitForPendingWrites() {
	s.writes.Wait()
}

// Metrics exposes the service counters
func (s *DormMailService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// Stats returns the metrics snapshot together with the cache size
func (s *DormMailService) Stats(ctx context.Context) map[string]interface{} {
	stats := s.metrics.GetSnapshot()
	stats["hit_rate"] = s.metrics.GetHitRate()
	if size, err := s.store.Size(ctx); err == nil {
		stats["cache_size"] = size
	} else {
		stats["cache_size_error"] = err.Error()
	}
	return stats
}

// Close stops accepting cache writes, waits for pending ones and drains the error logger
func (s *DormMailService) Close() {
	s.closeOnce.Do(func() {
		s.lifecycle.Lock()
		s.closed = true
		s.lifecycle.Unlock()

		s.writes.Wait()
		close(s.writeErrors)
		<-s.drained
	})
}
