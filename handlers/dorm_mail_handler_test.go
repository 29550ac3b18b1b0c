package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ncnu-assistant/dormmail-backend/models"
	"github.com/ncnu-assistant/dormmail-backend/services"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = "<html><body>序號　到件時間　收件人　" +
	"1234　2024/10/01　王Ｏ明　黑貓　包裹　9876543210　資工系碩1　3.17　" +
	"1235　2024/10/02　李Ｏ華　郵局　掛號　5550001111　國企系2　6.02　" +
	"</body></html>"

type stubPageSource struct {
	page  string
	err   error
	calls int32
}

func (s *stubPageSource) FetchPage(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.page, s.err
}

func (s *stubPageSource) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

func newTestApp(t *testing.T, source services.PageSource) (*fiber.App, *services.DormMailService) {
	t.Helper()
	service := services.NewDormMailService(source, services.NewTokenMailExtractor(nil),
		services.NewMemoryResponseStore(10), 300*time.Second, shared.NewServiceMetrics("handler_test"))
	t.Cleanup(service.Close)

	app := fiber.New()
	queryHandler := NewMailQueryHandler(service)
	opsHandler := NewOpsHandler(nil, service.Metrics())

	app.Get("/health", opsHandler.Health)
	app.Get("/metrics", opsHandler.PrometheusHandler())
	api := app.Group("/api/dorm-mail")
	api.Get("/", queryHandler.GetMail)
	api.Get("/departments", queryHandler.GetDepartments)
	api.Get("/stats", queryHandler.GetStats)
	app.All("/*", NewDormMailHandler(service).Handle)

	return app, service
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}

func TestNonGetMethodsRejectedWithoutUpstreamCall(t *testing.T) {
	source := &stubPageSource{page: samplePage}
	app, _ := newTestApp(t, source)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		resp, err := app.Test(httptest.NewRequest(method, "/", nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode, method)
		assert.Equal(t, "Method Not Allowed", string(readBody(t, resp)), method)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"), method)
	}
	assert.Equal(t, 0, source.Calls())
}

func TestPreflight(t *testing.T) {
	source := &stubPageSource{page: samplePage}
	app, _ := newTestApp(t, source)

	resp, err := app.Test(httptest.NewRequest(http.MethodOptions, "/anything", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Empty(t, readBody(t, resp))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, 0, source.Calls())
}

func TestGetServesMailListAndCaches(t *testing.T) {
	source := &stubPageSource{page: samplePage}
	app, service := newTestApp(t, source)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	first := readBody(t, resp)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "public, max-age=300", resp.Header.Get("Cache-Control"))

	var payload models.MailListResponse
	require.NoError(t, json.Unmarshal(first, &payload))
	assert.True(t, payload.Success)
	assert.Equal(t, 2, payload.Count)
	assert.Equal(t, "王Ｏ明", payload.Data[0].Recipient)

	service.WaitForPendingWrites()

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, first, readBody(t, resp))
	assert.Equal(t, 1, source.Calls())
}

func TestGetUpstreamFailureReturns500(t *testing.T) {
	source := &stubPageSource{err: errors.New("dial tcp: connection refused")}
	app, _ := newTestApp(t, source)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var payload models.ErrorResponse
	require.NoError(t, json.Unmarshal(readBody(t, resp), &payload))
	assert.False(t, payload.Success)
	assert.True(t, strings.HasPrefix(payload.Error, shared.UpstreamFailurePrefix))
}

func TestMailQueryFilters(t *testing.T) {
	source := &stubPageSource{page: samplePage}
	app, _ := newTestApp(t, source)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/dorm-mail?department=%E8%B3%87%E5%B7%A5", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool                            `json:"success"`
		Data    []models.MailRecordWithDeadline `json:"data"`
		Count   int                             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(readBody(t, resp), &payload))
	require.Equal(t, 1, payload.Count)
	assert.Equal(t, "1234", payload.Data[0].ID)
	assert.Equal(t, 2, payload.Data[0].RemainingDays)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/dorm-mail?name=%E6%9D%8E", nil))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(readBody(t, resp), &payload))
	require.Equal(t, 1, payload.Count)
	assert.Equal(t, "1235", payload.Data[0].ID)
	assert.Equal(t, 0, payload.Data[0].RemainingDays)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/dorm-mail", nil))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(readBody(t, resp), &payload))
	assert.Equal(t, 2, payload.Count)
}

func TestDepartments(t *testing.T) {
	app, _ := newTestApp(t, &stubPageSource{page: samplePage})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/dorm-mail/departments", nil))
	require.NoError(t, err)

	var payload struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(readBody(t, resp), &payload))
	assert.True(t, payload.Success)
	assert.Equal(t, []string{"國企系2", "資工系碩1"}, payload.Data)
}

func TestHealthAndMetrics(t *testing.T) {
	app, _ := newTestApp(t, &stubPageSource{page: samplePage})

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(readBody(t, resp)), `"status":"ok"`)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body := string(readBody(t, resp))
	assert.Contains(t, body, `dormmail_cache_lookups_total{result="miss"} 1`)
	assert.Contains(t, body, "dormmail_records_extracted 2")
}
