package donki

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

const (
	testAPIKey        = "test-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     testAPIKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:    testMetrics(),
	}
}

func TestClient_Fetch_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/CME", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAPIKey, r.URL.Query().Get("api_key"))
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, r.URL.Query().Get("startDate"))
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, r.URL.Query().Get("endDate"))

		records := []cmeRecord{{
			ActivityID:     "2024-05-10T16:36:00-CME-001",
			StartTime:      "2024-05-10T16:36Z",
			SourceLocation: "N17E27",
			Analyses:       []cmeAnalysisRecord{{Speed: f64(1250), Latitude: f64(-12.5), Longitude: f64(40), IsMostAccurate: true}},
		}}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(records))
	})
	mux.HandleFunc("/FLR", func(w http.ResponseWriter, _ *http.Request) {
		records := []flrRecord{{
			FlareID:        "2024-05-10T06:54:00-FLR-001",
			BeginTime:      "2024-05-10T06:54Z",
			ClassType:      "X3.9",
			SourceLocation: "S17E26",
		}}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(records))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv.URL)
	snapshot, err := c.Fetch(context.Background(), 3)
	require.NoError(t, err)

	require.Len(t, snapshot.CMEs, 1)
	cme := snapshot.CMEs[0]
	assert.Equal(t, domain.KindCME, cme.Kind)
	assert.Equal(t, "2024-05-10T16:36:00-CME-001", cme.ActivityID)
	assert.Equal(t, time.Date(2024, 5, 10, 16, 36, 0, 0, time.UTC), cme.StartTime)
	require.Len(t, cme.Analyses, 1)
	assert.Equal(t, 1250.0, *cme.Analyses[0].Speed)
	assert.Equal(t, -12.5, *cme.Analyses[0].Latitude)
	assert.True(t, cme.Analyses[0].IsMostAccurate)

	require.Len(t, snapshot.Flares, 1)
	flare := snapshot.Flares[0]
	assert.Equal(t, domain.KindFlare, flare.Kind)
	assert.Equal(t, "X3.9", flare.ClassType)
	assert.Equal(t, "S17E26", flare.SourceLocation)

	assert.Empty(t, snapshot.Errors)
}

func TestClient_Fetch_PartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/CME", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream maintenance"))
	})
	mux.HandleFunc("/FLR", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`[{"flrID":"flr-1","beginTime":"2024-05-10T06:54Z","classType":"C1.2"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv.URL)
	snapshot, err := c.Fetch(context.Background(), 3)
	require.NoError(t, err)

	assert.Empty(t, snapshot.CMEs)
	assert.Len(t, snapshot.Flares, 1)
	require.Contains(t, snapshot.Errors, domain.KindCME)
	assert.Contains(t, snapshot.Errors[domain.KindCME], "503")
	assert.NotContains(t, snapshot.Errors, domain.KindFlare)
}

func TestClient_Fetch_BothCatalogsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"OVER_RATE_LIMIT"}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	snapshot, err := c.Fetch(context.Background(), 3)
	require.NoError(t, err)

	assert.Empty(t, snapshot.CMEs)
	assert.Empty(t, snapshot.Flares)
	assert.Contains(t, snapshot.Errors[domain.KindCME], "429")
	assert.Contains(t, snapshot.Errors[domain.KindFlare], "429")
}

func TestClient_Fetch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	snapshot, err := c.Fetch(context.Background(), 3)
	require.NoError(t, err)

	assert.Contains(t, snapshot.Errors[domain.KindCME], "decode response")
	assert.Contains(t, snapshot.Errors[domain.KindFlare], "decode response")
}

func TestClient_Fetch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(srv.URL)
	_, err := c.Fetch(ctx, 3)
	require.Error(t, err)
}

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{"minute precision", "2024-05-10T16:36Z", time.Date(2024, 5, 10, 16, 36, 0, 0, time.UTC)},
		{"full RFC 3339", "2024-05-10T16:36:00Z", time.Date(2024, 5, 10, 16, 36, 0, 0, time.UTC)},
		{"unparseable", "10 May 2024", time.Time{}},
		{"empty", "", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseEventTime(tt.input))
		})
	}
}

func f64(v float64) *float64 {
	return &v
}
