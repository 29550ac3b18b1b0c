package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

const pageSourceServiceName = "dorm_mail_page_source"

// PageSource produces the decoded text of the legacy dorm mail page
type PageSource interface {
	FetchPage(ctx context.Context) (string, error)
}

// PageSourceConfiguration holds the upstream parameters shared by every page source
type PageSourceConfiguration struct {
	URL                string
	UserAgent          string
	HTTPRequestTimeout time.Duration
	MinimumDelay       time.Duration
}

// NewPageSourceConfiguration maps the unified upstream section onto a page source config
func NewPageSourceConfiguration(upstream shared.UpstreamConfig) PageSourceConfiguration {
	return PageSourceConfiguration{
		URL:                upstream.URL,
		UserAgent:          upstream.UserAgent,
		HTTPRequestTimeout: upstream.HTTPRequestTimeout,
		MinimumDelay:       upstream.MinimumDelay,
	}
}

// DecodeBig5 converts legacy Big5 bytes into a UTF-8 string
func DecodeBig5(raw []byte) (string, error) {
	decoded, _, err := transform.Bytes(traditionalchinese.Big5.NewDecoder(), raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// HTTPPageSource fetches the page with net/http and decodes it as Big5
type HTTPPageSource struct {
	config      PageSourceConfiguration
	client      *http.Client
	rateLimiter *shared.HTTPRequestRateLimiter
}

// NewHTTPPageSource creates a page source backed by a pooled HTTP client
func NewHTTPPageSource(config PageSourceConfiguration, factory *shared.HTTPClientFactory) *HTTPPageSource {
	if factory == nil {
		factory = shared.NewHTTPClientFactory(shared.DefaultUpstreamTimeout)
	}
	return &HTTPPageSource{
		config:      config,
		client:      factory.CreateOptimizedHTTPClient(config.HTTPRequestTimeout),
		rateLimiter: shared.NewHTTPRequestRateLimiter(config.MinimumDelay),
	}
}

// FetchPage performs one GET against the legacy page. Failures are not retried.
func (s *HTTPPageSource) FetchPage(ctx context.Context) (string, error) {
	fetchID := uuid.New().String()
	logger := logrus.WithFields(logrus.Fields{
		"component": "HTTPPageSource",
		"fetch_id":  fetchID,
		"url":       s.config.URL,
	})

	if err := s.rateLimiter.EnforceRateLimit(ctx); err != nil {
		return "", shared.NewUpstreamError(shared.CodeUpstreamFetchFailed, pageSourceServiceName, "FetchPage", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return "", shared.NewUpstreamError(shared.CodeUpstreamFetchFailed, pageSourceServiceName, "FetchPage", err)
	}
	shared.SetUpstreamHeaders(request, s.config.UserAgent)

	logger.Debug("Fetching legacy dorm mail page")
	response, err := s.client.Do(request)
	if err != nil {
		return "", shared.NewUpstreamError(shared.CodeUpstreamFetchFailed, pageSourceServiceName, "FetchPage", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		statusErr := fmt.Errorf("upstream returned HTTP %d: %s", response.StatusCode, http.StatusText(response.StatusCode))
		return "", shared.NewUpstreamError(shared.CodeUpstreamStatus, pageSourceServiceName, "FetchPage", statusErr).
			WithDetails(map[string]interface{}{"status_code": response.StatusCode})
	}

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return "", shared.NewUpstreamError(shared.CodeUpstreamFetchFailed, pageSourceServiceName, "FetchPage", err)
	}

	text, err := DecodeBig5(raw)
	if err != nil {
		return "", shared.NewDecodeError(pageSourceServiceName, "FetchPage", err)
	}

	logger.WithFields(logrus.Fields{
		"bytes":         len(raw),
		"request_count": s.rateLimiter.GetRequestCount(),
	}).Debug("Fetched and decoded legacy dorm mail page")
	return text, nil
}

// CollyPageSource fetches the page through a colly collector.
// colly performs the Big5 decode itself because the response encoding is forced.
type CollyPageSource struct {
	config      PageSourceConfiguration
	rateLimiter *shared.HTTPRequestRateLimiter
}

// NewCollyPageSource creates a colly-backed page source
func NewCollyPageSource(config PageSourceConfiguration) *CollyPageSource {
	return &CollyPageSource{
		config:      config,
		rateLimiter: shared.NewHTTPRequestRateLimiter(config.MinimumDelay),
	}
}

// FetchPage visits the legacy page once with a fresh collector
func (s *CollyPageSource) FetchPage(ctx context.Context) (string, error) {
	if err := s.rateLimiter.EnforceRateLimit(ctx); err != nil {
		return "", shared.NewUpstreamError(shared.CodeUpstreamFetchFailed, pageSourceServiceName, "FetchPage", err)
	}

	userAgent := s.config.UserAgent
	if userAgent == "" {
		userAgent = shared.DefaultUpstreamUserAgent
	}

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	if s.config.HTTPRequestTimeout > 0 {
		c.SetRequestTimeout(s.config.HTTPRequestTimeout)
	}

	var (
		body       string
		statusCode int
		fetchErr   error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.ResponseCharacterEncoding = "big5"
		logrus.WithFields(logrus.Fields{
			"component": "CollyPageSource",
			"url":       r.URL.String(),
		}).Debug("Fetching legacy dorm mail page")
	})

	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = string(r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.Visit(s.config.URL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if ctx.Err() != nil {
		return "", shared.NewUpstreamError(shared.CodeUpstreamFetchFailed, pageSourceServiceName, "FetchPage", ctx.Err())
	}

	if fetchErr != nil {
		code := shared.CodeUpstreamFetchFailed
		if statusCode != 0 {
			code = shared.CodeUpstreamStatus
			fetchErr = fmt.Errorf("upstream returned HTTP %d: %w", statusCode, fetchErr)
		}
		return "", shared.NewUpstreamError(code, pageSourceServiceName, "FetchPage", fetchErr)
	}

	if statusCode < 200 || statusCode > 299 {
		statusErr := fmt.Errorf("upstream returned HTTP %d: %s", statusCode, http.StatusText(statusCode))
		return "", shared.NewUpstreamError(shared.CodeUpstreamStatus, pageSourceServiceName, "FetchPage", statusErr)
	}

	return body, nil
}

// NewPageSource builds the page source selected by the fetch backend name
func NewPageSource(upstream shared.UpstreamConfig, factory *shared.HTTPClientFactory) PageSource {
	config := NewPageSourceConfiguration(upstream)
	if upstream.FetchBackend == shared.FetchBackendColly {
		return NewCollyPageSource(config)
	}
	return NewHTTPPageSource(config, factory)
}
