package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, p Params) *HTTPHandler {
	t.Helper()
	return NewHTTPHandler(newTestService(t, p), zap.NewNop(), 1<<20)
}

func doJSON(t *testing.T, h *HTTPHandler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestWebhookAcceptsAndEchoes(t *testing.T) {
	h := newTestHandler(t, Params{})

	rec, resp := doJSON(t, h, http.MethodPost, "/webhook/autobrr", `{"Title":"Example","Year":2020}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, float64(1), resp["id"])
	assert.Equal(t, "Example", resp["title"])
	assert.Equal(t, float64(2020), resp["year"])
	assert.NotEmpty(t, resp["correlation_id"])

	rec, resp = doJSON(t, h, http.MethodGet, "/api/v1/events?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["count"])

	events := resp["events"].([]any)
	require.Len(t, events, 1)
	event := events[0].(map[string]any)
	assert.Equal(t, "autobrr", event["source"])
	payload := event["payload"].(map[string]any)
	assert.Equal(t, "Example", payload["Title"])
	assert.Equal(t, float64(2020), payload["Year"])
}

func TestWebhookAcceptsEmptyObject(t *testing.T) {
	h := newTestHandler(t, Params{})

	rec, resp := doJSON(t, h, http.MethodPost, "/webhook/autobrr", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "accepted", resp["status"])
	_, hasTitle := resp["title"]
	assert.False(t, hasTitle, "absent fields are not echoed")
}

func TestWebhookRejectsNonObjectPayloads(t *testing.T) {
	h := newTestHandler(t, Params{})

	for _, body := range []string{`null`, `"a string"`, `42`, `[1,2,3]`, `true`} {
		rec, resp := doJSON(t, h, http.MethodPost, "/webhook/autobrr", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
		assert.Equal(t, "error", resp["status"])
		assert.Equal(t, "not a structured object", resp["reason"])
	}
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	h := newTestHandler(t, Params{})

	rec, resp := doJSON(t, h, http.MethodPost, "/webhook/autobrr", `{"Title": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "invalid JSON body", resp["reason"])
}

func TestEventsEndpointNewestFirst(t *testing.T) {
	h := newTestHandler(t, Params{})

	for _, title := range []string{"first", "second", "third"} {
		rec, _ := doJSON(t, h, http.MethodPost, "/webhook/autobrr", `{"Title":"`+title+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, resp := doJSON(t, h, http.MethodGet, "/api/v1/events?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	events := resp["events"].([]any)
	require.Len(t, events, 2)
	first := events[0].(map[string]any)["payload"].(map[string]any)
	second := events[1].(map[string]any)["payload"].(map[string]any)
	assert.Equal(t, "third", first["Title"])
	assert.Equal(t, "second", second["Title"])
}

func TestReadinessEndpoint(t *testing.T) {
	h := newTestHandler(t, Params{})

	rec, resp := doJSON(t, h, http.MethodGet, "/api/v1/readiness", "")
	require.Equal(t, http.StatusOK, rec.Code)

	report := resp["services"].([]any)
	require.Len(t, report, 3)
	for _, entry := range report {
		assert.Equal(t, true, entry.(map[string]any)["ready"])
	}
}

func TestPendingEndpointEmptyAfterCommit(t *testing.T) {
	h := newTestHandler(t, Params{})

	rec, _ := doJSON(t, h, http.MethodPost, "/webhook/autobrr", `{"Title":"Example"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, h, http.MethodGet, "/api/v1/intake/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), resp["count"])
}

func TestExportEndpoint(t *testing.T) {
	archive := &fakeArchive{}
	h := newTestHandler(t, Params{Archive: archive})

	rec, _ := doJSON(t, h, http.MethodPost, "/webhook/autobrr", `{"Title":"Example"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/events/export?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exported", resp["status"])
	assert.Contains(t, resp["key"], "exports/")
}

func TestExportEndpointDisabled(t *testing.T) {
	h := newTestHandler(t, Params{})

	rec, resp := doJSON(t, h, http.MethodPost, "/api/v1/events/export", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", resp["status"])
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, Params{})

	rec, resp := doJSON(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestMetricsExposed(t *testing.T) {
	h := newTestHandler(t, Params{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
