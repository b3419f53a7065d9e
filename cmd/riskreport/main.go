// Command riskreport runs the forecast classifier, scorer, and template
// synthesizer over DONKI catalog data and prints the classified summary, risk
// index, and bundle for updating test assertions. It uses the actual domain
// and forecast packages so fixtures stay honest against pipeline behavior.
//
// Fixture mode reads catalog JSON saved from the DONKI API:
//
//	go run ./cmd/riskreport -cme-json testdata/cme.json -flare-json testdata/flr.json
//
// Live mode fetches the trailing window from the API instead:
//
//	go run ./cmd/riskreport -live -days 3 -api-key "$NASA_API_KEY"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/solarsentry/space-weather-forecast/internal/adapter/donki"
	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/forecast"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

// DONKI start times come in minute precision in the catalogs, full RFC 3339
// in some notification payloads.
var fixtureTimeLayouts = []string{"2006-01-02T15:04Z", time.RFC3339}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cmeJSON := flag.String("cme-json", "", "path to a DONKI CME catalog JSON fixture")
	flareJSON := flag.String("flare-json", "", "path to a DONKI FLR catalog JSON fixture")
	live := flag.Bool("live", false, "fetch the trailing window from the DONKI API instead of fixtures")
	days := flag.Int("days", 3, "observation window in days")
	baseURL := flag.String("base-url", "https://api.nasa.gov/DONKI", "DONKI API base URL for -live")
	apiKey := flag.String("api-key", "DEMO_KEY", "NASA API key for -live")
	printBundle := flag.Bool("bundle", false, "print the full forecast bundle as JSON")
	flag.Parse()

	if !*live && *cmeJSON == "" && *flareJSON == "" {
		flag.Usage()
		return fmt.Errorf("missing input: pass -cme-json/-flare-json fixtures or -live")
	}
	if *days < 1 || *days > 30 {
		return fmt.Errorf("-days must be between 1 and 30")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewMetrics()

	snapshot, err := loadSnapshot(*live, *cmeJSON, *flareJSON, *baseURL, *apiKey, *days, logger, metrics)
	if err != nil {
		return err
	}

	cmes := domain.ClassifyEvents(snapshot.CMEs, domain.KindCME)
	flares := domain.ClassifyEvents(snapshot.Flares, domain.KindFlare)
	summary := domain.BuildSummary(cmes, flares, snapshot.Errors, *days)
	risk := domain.ComputeRiskIndex(summary.CME.Count, summary.Flare.Count)

	synth := forecast.NewSynthesizer(nil, time.Second, logger, metrics)
	bundle := synth.Synthesize(context.Background(), summary, risk)

	printReport(summary, risk, bundle)

	if *printBundle {
		data, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal bundle: %w", err)
		}
		fmt.Printf("\n%s\n", data)
	}
	return nil
}

func loadSnapshot(live bool, cmePath, flarePath, baseURL, apiKey string, days int, logger *slog.Logger, metrics *observability.Metrics) (domain.FeedSnapshot, error) {
	if live {
		client := donki.NewClient(baseURL, apiKey, 10*time.Second, 1, 2, logger, metrics)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return client.Fetch(ctx, days)
	}

	var snapshot domain.FeedSnapshot
	if cmePath != "" {
		events, err := loadCMEFixture(cmePath)
		if err != nil {
			return domain.FeedSnapshot{}, fmt.Errorf("load CME fixture: %w", err)
		}
		snapshot.CMEs = events
	}
	if flarePath != "" {
		events, err := loadFlareFixture(flarePath)
		if err != nil {
			return domain.FeedSnapshot{}, fmt.Errorf("load flare fixture: %w", err)
		}
		snapshot.Flares = events
	}
	return snapshot, nil
}

// ── Fixture loading ──

// DONKI catalog fixture shapes, matching the API responses the feed client
// decodes.

type cmeFixture struct {
	ActivityID     string `json:"activityID"`
	StartTime      string `json:"startTime"`
	SourceLocation string `json:"sourceLocation"`
	Analyses       []struct {
		Speed          *float64 `json:"speed"`
		Latitude       *float64 `json:"latitude"`
		Longitude      *float64 `json:"longitude"`
		IsMostAccurate bool     `json:"isMostAccurate"`
	} `json:"cmeAnalyses"`
}

type flrFixture struct {
	FlareID        string `json:"flrID"`
	BeginTime      string `json:"beginTime"`
	ClassType      string `json:"classType"`
	SourceLocation string `json:"sourceLocation"`
}

func loadCMEFixture(path string) ([]domain.RawEvent, error) {
	records, err := loadJSON[cmeFixture](path)
	if err != nil {
		return nil, err
	}

	events := make([]domain.RawEvent, 0, len(records))
	for _, rec := range records {
		event := domain.RawEvent{
			Kind:           domain.KindCME,
			ActivityID:     rec.ActivityID,
			StartTime:      parseFixtureTime(rec.StartTime),
			SourceLocation: rec.SourceLocation,
		}
		for _, a := range rec.Analyses {
			event.Analyses = append(event.Analyses, domain.CMEAnalysis{
				Speed:          a.Speed,
				Latitude:       a.Latitude,
				Longitude:      a.Longitude,
				IsMostAccurate: a.IsMostAccurate,
			})
		}
		events = append(events, event)
	}
	return events, nil
}

func loadFlareFixture(path string) ([]domain.RawEvent, error) {
	records, err := loadJSON[flrFixture](path)
	if err != nil {
		return nil, err
	}

	events := make([]domain.RawEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, domain.RawEvent{
			Kind:           domain.KindFlare,
			ActivityID:     rec.FlareID,
			StartTime:      parseFixtureTime(rec.BeginTime),
			SourceLocation: rec.SourceLocation,
			ClassType:      rec.ClassType,
		})
	}
	return events, nil
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func parseFixtureTime(s string) time.Time {
	for _, layout := range fixtureTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ── Report ──

func printReport(summary domain.EventSummary, risk domain.RiskIndex, bundle domain.ForecastBundle) {
	fmt.Println("=== Space Weather Risk Report ===")
	fmt.Println()
	fmt.Printf("Window: %d days, %d events\n", summary.WindowDays, summary.Total())
	for kind, msg := range summary.Errors {
		fmt.Printf("  %s fetch error: %s\n", kind, msg)
	}

	fmt.Printf("\nCMEs: %d\n", summary.CME.Count)
	if summary.CME.Count > 0 {
		fmt.Printf("  Earth-directed: %d\n", summary.CME.EarthDirected)
		fmt.Printf("  Speed: max %g km/s, avg %g km/s\n", summary.CME.MaxSpeed, summary.CME.AverageSpeed)
		fmt.Printf("  Severity: %s\n", formatSeverities(summary.CME.Severity))
	}

	fmt.Printf("\nFlares: %d\n", summary.Flare.Count)
	if summary.Flare.Count > 0 {
		fmt.Printf("  X-class: %d\n", summary.Flare.XClass)
		fmt.Printf("  By class: %s\n", formatClasses(summary.Flare.ByClass))
	}

	fmt.Printf("\nRisk: %.1f/100 (%s, %s)\n", risk.Score, risk.Level, risk.Color)
	fmt.Printf("  CME contribution: %.1f\n", risk.Components.CMEContribution)
	fmt.Printf("  Flare contribution: %.1f\n", risk.Components.FlareContribution)

	fmt.Printf("\nBundle: %s\n", bundle.ID)
	fmt.Printf("  Title: %s\n", bundle.Title)
	fmt.Printf("  Confidence: %.2f\n", bundle.ConfidenceScore)
	fmt.Printf("  Narrative source: %s\n", bundle.NarrativeSource)
	fmt.Printf("  Impacts: %d, assessments: %d, recommendations: %d\n",
		len(bundle.Impacts), len(bundle.RiskAssessments), len(bundle.Recommendations))
	fmt.Printf("  Valid until: %s\n", bundle.ValidUntil.Format(time.RFC3339))
}

func formatSeverities(counts map[domain.Severity]int) string {
	order := []domain.Severity{
		domain.SeverityLow, domain.SeverityModerate,
		domain.SeverityHigh, domain.SeverityExtreme, domain.SeverityUnknown,
	}
	parts := make([]string, 0, len(counts))
	for _, s := range order {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

func formatClasses(counts map[string]int) string {
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	parts := make([]string, 0, len(classes))
	for _, c := range classes {
		parts = append(parts, fmt.Sprintf("%s=%d", c, counts[c]))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
