package donki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

// DONKI start times come in two flavors: minute precision ("2024-05-10T16:36Z")
// in the catalogs, full RFC 3339 in some notification payloads.
var timeLayouts = []string{"2006-01-02T15:04Z", time.RFC3339}

// Client implements domain.EventSource against NASA's DONKI API. Requests
// are rate limited client-side; NASA enforces hourly quotas per API key and
// a tripped quota returns 429 for the rest of the hour.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a DONKI feed client.
func NewClient(baseURL, apiKey string, timeout time.Duration, limit float64, burst int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch retrieves both catalogs for the trailing window. Catalogs fail
// independently: a failed catalog lands in the snapshot's Errors map and the
// other still delivers. Only context cancellation aborts the whole fetch.
func (c *Client) Fetch(ctx context.Context, windowDays int) (domain.FeedSnapshot, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -windowDays)

	snapshot := domain.FeedSnapshot{Errors: make(map[domain.EventKind]string)}

	cmes, err := c.fetchCMEs(ctx, start, end)
	if err != nil {
		if ctx.Err() != nil {
			return domain.FeedSnapshot{}, ctx.Err()
		}
		c.logger.Warn("cme fetch failed", "error", err)
		snapshot.Errors[domain.KindCME] = err.Error()
	} else {
		snapshot.CMEs = cmes
	}

	flares, err := c.fetchFlares(ctx, start, end)
	if err != nil {
		if ctx.Err() != nil {
			return domain.FeedSnapshot{}, ctx.Err()
		}
		c.logger.Warn("flare fetch failed", "error", err)
		snapshot.Errors[domain.KindFlare] = err.Error()
	} else {
		snapshot.Flares = flares
	}

	if len(snapshot.Errors) == 0 {
		snapshot.Errors = nil
	}
	return snapshot, nil
}

func (c *Client) fetchCMEs(ctx context.Context, start, end time.Time) ([]domain.RawEvent, error) {
	var records []cmeRecord
	if err := c.doRequest(ctx, "CME", "cme", start, end, &records); err != nil {
		return nil, err
	}

	events := make([]domain.RawEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, rec.toRawEvent())
	}
	return events, nil
}

func (c *Client) fetchFlares(ctx context.Context, start, end time.Time) ([]domain.RawEvent, error) {
	var records []flrRecord
	if err := c.doRequest(ctx, "FLR", "flare", start, end, &records); err != nil {
		return nil, err
	}

	events := make([]domain.RawEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, rec.toRawEvent())
	}
	return events, nil
}

func (c *Client) doRequest(ctx context.Context, catalog, label string, start, end time.Time, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{
		"startDate": {start.Format("2006-01-02")},
		"endDate":   {end.Format("2006-01-02")},
		"api_key":   {c.apiKey},
	}
	fullURL := fmt.Sprintf("%s/%s?%s", c.baseURL, catalog, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	began := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FeedAPIDuration.WithLabelValues(label).Observe(time.Since(began).Seconds())
	if err != nil {
		c.metrics.FeedRequests.WithLabelValues(label, "error").Inc()
		return fmt.Errorf("%s catalog request: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.FeedRequests.WithLabelValues(label, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("donki API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		c.metrics.FeedRequests.WithLabelValues(label, "error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}

	c.metrics.FeedRequests.WithLabelValues(label, "success").Inc()
	return nil
}

// parseEventTime parses a DONKI timestamp, returning the zero time when no
// layout matches.
func parseEventTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// DONKI API response types.

type cmeRecord struct {
	ActivityID     string              `json:"activityID"`
	StartTime      string              `json:"startTime"`
	SourceLocation string              `json:"sourceLocation"`
	Analyses       []cmeAnalysisRecord `json:"cmeAnalyses"`
}

type cmeAnalysisRecord struct {
	Speed          *float64 `json:"speed"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	IsMostAccurate bool     `json:"isMostAccurate"`
}

func (r cmeRecord) toRawEvent() domain.RawEvent {
	event := domain.RawEvent{
		Kind:           domain.KindCME,
		ActivityID:     r.ActivityID,
		StartTime:      parseEventTime(r.StartTime),
		SourceLocation: r.SourceLocation,
	}
	for _, a := range r.Analyses {
		event.Analyses = append(event.Analyses, domain.CMEAnalysis{
			Speed:          a.Speed,
			Latitude:       a.Latitude,
			Longitude:      a.Longitude,
			IsMostAccurate: a.IsMostAccurate,
		})
	}
	return event
}

type flrRecord struct {
	FlareID        string `json:"flrID"`
	BeginTime      string `json:"beginTime"`
	ClassType      string `json:"classType"`
	SourceLocation string `json:"sourceLocation"`
}

func (r flrRecord) toRawEvent() domain.RawEvent {
	return domain.RawEvent{
		Kind:           domain.KindFlare,
		ActivityID:     r.FlareID,
		StartTime:      parseEventTime(r.BeginTime),
		SourceLocation: r.SourceLocation,
		ClassType:      r.ClassType,
	}
}
