package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveblush/sismo-relay/core/config"
	"github.com/saveblush/sismo-relay/models"
	"github.com/saveblush/sismo-relay/pgk/alert"
	"github.com/saveblush/sismo-relay/pgk/debounce"
)

type webhookSink struct {
	mu       sync.Mutex
	payloads []models.AlertPayload
}

func (s *webhookSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	var p models.AlertPayload
	_ = json.Unmarshal(b, &p)

	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
}

func (s *webhookSink) all() []models.AlertPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AlertPayload{}, s.payloads...)
}

func testConfig() *config.Configs {
	cf := &config.Configs{}
	cf.App.Name = "sismo-relay"
	cf.App.Version = "1.0.0"
	cf.App.Environment = config.Develop
	cf.App.RateLimit = 100
	cf.App.RateBurst = 100
	cf.Twitter.MonitorUsers = []string{"SkyAlertMx", "SASMEX"}
	cf.Alert.VerificationToken = "secret"
	return cf
}

func newTestServer(t *testing.T, cf *config.Configs, testMode bool) (http.Handler, alert.Service, *webhookSink) {
	t.Helper()
	sink := &webhookSink{}
	webhook := httptest.NewServer(sink)
	t.Cleanup(webhook.Close)

	alerts := alert.NewService(clockwork.NewRealClock(), debounce.NewService(15*time.Second), alert.Config{
		Webhooks: []string{webhook.URL},
		TestMode: testMode,
	})

	return NewServer(alerts, cf).Serve(), alerts, sink
}

func notify(h http.Handler, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/notify/sassla", strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNotify(t *testing.T) {
	tests := []struct {
		name       string
		auth       string
		body       string
		testMode   bool
		wantStatus int
		wantBody   string
		wantCodes  []bool
	}{
		{name: "missing key", body: `{"message":{"code":"EQW"}}`, wantStatus: http.StatusUnauthorized, wantBody: "Unauthorized"},
		{name: "wrong key", auth: "key=nope", body: `{"message":{"code":"EQW"}}`, wantStatus: http.StatusUnauthorized, wantBody: "Unauthorized"},
		{name: "not json", auth: "key=secret", body: `code=EQW`, wantStatus: http.StatusBadRequest, wantBody: "bad body format."},
		{name: "null body", auth: "key=secret", body: `null`, wantStatus: http.StatusBadRequest, wantBody: "bad body format."},
		{name: "missing code", auth: "key=secret", body: `{"message":{}}`, wantStatus: http.StatusBadRequest, wantBody: "invalid body format."},
		{name: "message not object", auth: "key=secret", body: `{"message":"EQW"}`, wantStatus: http.StatusBadRequest, wantBody: "invalid body format."},
		{name: "unknown code", auth: "key=secret", body: `{"message":{"code":"XYZ"}}`, wantStatus: http.StatusBadRequest, wantBody: "invalid signal code."},
		{name: "earthquake", auth: "key=secret", body: `{"message":{"code":"EQW"}}`, wantStatus: http.StatusOK, wantBody: "OK", wantCodes: []bool{false}},
		{name: "test signal ignored", auth: "key=secret", body: `{"message":{"code":"RWT"}}`, wantStatus: http.StatusOK, wantBody: "OK"},
		{name: "test signal relayed", auth: "key=secret", body: `{"message":{"code":"RWT"}}`, testMode: true, wantStatus: http.StatusOK, wantBody: "OK", wantCodes: []bool{true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, alerts, sink := newTestServer(t, testConfig(), tt.testMode)

			rec := notify(h, tt.auth, tt.body)
			alerts.Wait()

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())

			payloads := sink.all()
			require.Len(t, payloads, len(tt.wantCodes))
			for i, test := range tt.wantCodes {
				assert.Equal(t, models.SignalEarthquake, payloads[i].Code)
				assert.Equal(t, test, payloads[i].Test)
				assert.False(t, payloads[i].Twitter)
			}
		})
	}
}

func TestNotify_Debounced(t *testing.T) {
	h, alerts, sink := newTestServer(t, testConfig(), false)

	for i := 0; i < 3; i++ {
		rec := notify(h, "key=secret", `{"message":{"code":"EQW"}}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	alerts.Wait()

	assert.Len(t, sink.all(), 1)
}

func TestNotify_EmptyVerificationTokenRejectsAll(t *testing.T) {
	cf := testConfig()
	cf.Alert.VerificationToken = ""
	h, _, _ := newTestServer(t, cf, false)

	rec := notify(h, "key=", `{"message":{"code":"EQW"}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotify_MethodNotAllowed(t *testing.T) {
	h, _, _ := newTestServer(t, testConfig(), false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notify/sassla", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRejectRateLimited(t *testing.T) {
	cf := testConfig()
	cf.App.RateLimit = 1
	cf.App.RateBurst = 1
	h, _, _ := newTestServer(t, cf, false)

	first := notify(h, "key=secret", `{"message":{"code":"XYZ"}}`)
	second := notify(h, "key=secret", `{"message":{"code":"XYZ"}}`)

	assert.Equal(t, http.StatusBadRequest, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestShowInfo(t *testing.T) {
	h, _, _ := newTestServer(t, testConfig(), true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Name: sismo-relay")
	assert.Contains(t, body, "Version: 1.0.0")
	assert.Contains(t, body, "Environment: develop")
	assert.Contains(t, body, "Monitoring: SkyAlertMx, SASMEX")
	assert.Contains(t, body, "Webhooks: 1")
	assert.Contains(t, body, "TestMode: true")
}

func TestMetricsEndpoint(t *testing.T) {
	h, alerts, _ := newTestServer(t, testConfig(), false)
	notify(h, "key=secret", `{"message":{"code":"EQW"}}`)
	alerts.Wait()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sismo_alerts_total")
}
