package forecast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

var testTime = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// --- mocks ---

type stubNarrator struct {
	text  string
	err   error
	delay time.Duration
	calls int
}

func (s *stubNarrator) Generate(ctx context.Context, _ domain.NarrativeRequest) (string, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.text, s.err
}

// --- helpers ---

func freezeClock(t *testing.T) {
	t.Helper()
	SetClock(clockwork.NewFakeClockAt(testTime))
	t.Cleanup(func() { SetClock(nil) })
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSummary(cmeCount, flareCount int) domain.EventSummary {
	summary := domain.EventSummary{
		CME:        domain.CMESummary{Count: cmeCount, NoEvents: cmeCount == 0},
		Flare:      domain.FlareSummary{Count: flareCount, NoEvents: flareCount == 0},
		WindowDays: 3,
	}
	return summary
}

func testRisk(cmeCount, flareCount int) domain.RiskIndex {
	return domain.ComputeRiskIndex(cmeCount, flareCount)
}

// --- tests ---

func TestSynthesizer_FallbackWhenNoGenerator(t *testing.T) {
	freezeClock(t)
	s := NewSynthesizer(nil, time.Second, testLogger(), newTestMetrics())

	summary := testSummary(5, 0)
	bundle := s.Synthesize(context.Background(), summary, testRisk(5, 0))

	assert.Equal(t, domain.SourceFallback, bundle.NarrativeSource)
	assert.Equal(t, 0.75, bundle.ConfidenceScore)
	assert.Equal(t, "Moderate Space Weather Activity Detected", bundle.Title)
	assert.Contains(t, bundle.ExecutiveSummary, "55.6/100")
	assert.Contains(t, bundle.ExecutiveSummary, "moderate")
	assert.NotEmpty(t, bundle.ID)
	assert.NotEmpty(t, bundle.DetailedAnalysis)
	assert.Equal(t, domain.LevelModerate, bundle.RiskLevel)
	assert.Len(t, bundle.Recommendations, 4)
	assert.Len(t, bundle.DataSources, 2)
	assert.Equal(t, testTime, bundle.GeneratedAt)
	assert.Equal(t, testTime.Add(24*time.Hour), bundle.ValidUntil)
}

func TestSynthesizer_AIPath(t *testing.T) {
	freezeClock(t)
	narrator := &stubNarrator{text: "Solar Activity Forecast: Active Week Ahead\n\nSeveral fast ejections are in transit."}
	s := NewSynthesizer(narrator, time.Second, testLogger(), newTestMetrics())

	summary := testSummary(3, 2)
	bundle := s.Synthesize(context.Background(), summary, testRisk(3, 2))

	assert.Equal(t, 1, narrator.calls)
	assert.Equal(t, domain.SourceAI, bundle.NarrativeSource)
	assert.Equal(t, "Solar Activity Forecast: Active Week Ahead", bundle.Title)
	assert.Equal(t, narrator.text, bundle.DetailedAnalysis)
	assert.Equal(t, narrator.text, bundle.ExecutiveSummary)
	assert.Equal(t, 0.95, bundle.ConfidenceScore)
	assert.Equal(t, testTime.Add(24*time.Hour), bundle.ValidUntil)
}

func TestSynthesizer_AIFailureFallsBack(t *testing.T) {
	freezeClock(t)
	narrator := &stubNarrator{err: errors.New("status 500")}
	s := NewSynthesizer(narrator, time.Second, testLogger(), newTestMetrics())

	bundle := s.Synthesize(context.Background(), testSummary(1, 1), testRisk(1, 1))

	assert.Equal(t, 1, narrator.calls)
	assert.Equal(t, domain.SourceFallback, bundle.NarrativeSource)
	assert.Equal(t, 0.75, bundle.ConfidenceScore)
	assert.NotEmpty(t, bundle.DetailedAnalysis)
	assert.NotEmpty(t, bundle.Title)
}

func TestSynthesizer_AITimeoutFallsBack(t *testing.T) {
	freezeClock(t)
	narrator := &stubNarrator{text: "too late", delay: 200 * time.Millisecond}
	s := NewSynthesizer(narrator, 20*time.Millisecond, testLogger(), newTestMetrics())

	bundle := s.Synthesize(context.Background(), testSummary(1, 0), testRisk(1, 0))

	assert.Equal(t, domain.SourceFallback, bundle.NarrativeSource)
	assert.Equal(t, 0.75, bundle.ConfidenceScore)
}

func TestSynthesizer_LongNarrativeTruncated(t *testing.T) {
	freezeClock(t)
	long := "Forecast overview\n" + strings.Repeat("α", 600)
	narrator := &stubNarrator{text: long}
	s := NewSynthesizer(narrator, time.Second, testLogger(), newTestMetrics())

	bundle := s.Synthesize(context.Background(), testSummary(1, 1), testRisk(1, 1))

	assert.Equal(t, long, bundle.DetailedAnalysis)
	assert.Equal(t, 500, utf8.RuneCountInString(bundle.ExecutiveSummary))
	assert.True(t, strings.HasPrefix(long, bundle.ExecutiveSummary))
}

func TestAIConfidence(t *testing.T) {
	withErrors := func(s domain.EventSummary) domain.EventSummary {
		s.Errors = map[domain.EventKind]string{domain.KindCME: "status 503"}
		return s
	}

	tests := []struct {
		name     string
		summary  domain.EventSummary
		expected float64
	}{
		{"no events, clean fetch", testSummary(0, 0), 0.8},
		{"no events, fetch errors", withErrors(testSummary(0, 0)), 0.7},
		{"CMEs only, clean fetch", testSummary(2, 0), 0.9},
		{"flares only, fetch errors", withErrors(testSummary(0, 2)), 0.8},
		{"both kinds, fetch errors", withErrors(testSummary(2, 2)), 0.9},
		{"everything present capped", testSummary(2, 2), 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			confidence := aiConfidence(tt.summary)
			assert.Equal(t, tt.expected, confidence)
			assert.GreaterOrEqual(t, confidence, 0.70)
			assert.LessOrEqual(t, confidence, 0.95)
		})
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name      string
		narrative string
		expected  string
	}{
		{"first line title", "Space Weather Forecast\nDetails follow.", "Space Weather Forecast"},
		{"markdown heading stripped", "# Solar Outlook for the Week\n\nBody.", "Solar Outlook for the Week"},
		{"case insensitive", "THREAT ASSESSMENT SUMMARY\nBody.", "THREAT ASSESSMENT SUMMARY"},
		{"later line within window", "Intro.\nSecond.\n3-Day Forecast\nBody.", "3-Day Forecast"},
		{"beyond five lines ignored", "a\nb\nc\nd\ne\nSolar Forecast here", "High Space Weather Activity Detected"},
		{"no title line", "Just prose.\nMore prose.", "High Space Weather Activity Detected"},
		{"empty narrative", "", "High Space Weather Activity Detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractTitle(tt.narrative, domain.LevelHigh))
		})
	}
}

func TestImpactsForLevel(t *testing.T) {
	t.Run("high and extreme share the full table", func(t *testing.T) {
		for _, level := range []domain.RiskLevel{domain.LevelHigh, domain.LevelExtreme} {
			impacts := impactsForLevel(level)
			require.Len(t, impacts, 4)
			assert.Equal(t, "Satellite Operations", impacts[0].System)
			assert.Equal(t, 0.8, impacts[0].Likelihood)
			assert.Equal(t, "Aurora Visibility", impacts[3].System)
			assert.Equal(t, "enhanced", impacts[3].Severity)
		}
	})

	t.Run("moderate", func(t *testing.T) {
		impacts := impactsForLevel(domain.LevelModerate)
		require.Len(t, impacts, 2)
		assert.Equal(t, "Satellite Operations", impacts[0].System)
		assert.Equal(t, 0.6, impacts[0].Likelihood)
		assert.Equal(t, "possible", impacts[1].Severity)
	})

	t.Run("low and minimal are empty", func(t *testing.T) {
		for _, level := range []domain.RiskLevel{domain.LevelLow, domain.LevelMinimal} {
			impacts := impactsForLevel(level)
			assert.NotNil(t, impacts)
			assert.Empty(t, impacts)
		}
	})
}

func TestAssessRisks(t *testing.T) {
	t.Run("earth-directed CME raises storm assessment", func(t *testing.T) {
		summary := testSummary(2, 0)
		summary.CME.EarthDirected = 1

		assessments := assessRisks(summary)
		require.Len(t, assessments, 1)
		assert.Equal(t, "Geomagnetic Storm", assessments[0].Category)
		assert.Equal(t, 0.8, assessments[0].Probability)
		assert.Equal(t, "24-72 hours", assessments[0].Timeline)
		assert.Contains(t, assessments[0].Description, "1 earth-directed")
	})

	t.Run("no earth-directed CMEs means no assessment", func(t *testing.T) {
		assessments := assessRisks(testSummary(3, 2))
		assert.NotNil(t, assessments)
		assert.Empty(t, assessments)
	})
}

func TestBuildEvidence(t *testing.T) {
	t.Run("one item per non-empty category", func(t *testing.T) {
		chain := buildEvidence(testSummary(4, 2), testTime)
		require.Len(t, chain, 2)
		assert.Equal(t, domain.KindCME, chain[0].Type)
		assert.Equal(t, 0.95, chain[0].Confidence)
		assert.Contains(t, chain[0].Description, "4 coronal mass ejection")
		assert.Equal(t, domain.KindFlare, chain[1].Type)
		assert.Equal(t, 0.93, chain[1].Confidence)
		assert.Equal(t, testTime, chain[1].Timestamp)
	})

	t.Run("single category", func(t *testing.T) {
		chain := buildEvidence(testSummary(0, 3), testTime)
		require.Len(t, chain, 1)
		assert.Equal(t, domain.KindFlare, chain[0].Type)
	})

	t.Run("quiet window yields empty chain", func(t *testing.T) {
		chain := buildEvidence(testSummary(0, 0), testTime)
		assert.Empty(t, chain)
	})
}

func TestFallbackNarrative(t *testing.T) {
	t.Run("quiet window", func(t *testing.T) {
		text := fallbackNarrative(testSummary(0, 0), testRisk(0, 0))
		assert.Contains(t, text, "No coronal mass ejections")
		assert.Contains(t, text, "No solar flares")
		assert.Contains(t, text, "0.0/100")
	})

	t.Run("active window", func(t *testing.T) {
		summary := testSummary(3, 2)
		summary.CME.EarthDirected = 1
		summary.CME.MaxSpeed = 1250
		summary.Flare.XClass = 1

		text := fallbackNarrative(summary, testRisk(3, 2))
		assert.Contains(t, text, "3 coronal mass ejection(s)")
		assert.Contains(t, text, "1 appear earth-directed")
		assert.Contains(t, text, "1250 km/s")
		assert.Contains(t, text, "1 X-class event(s)")
	})

	t.Run("feed errors noted", func(t *testing.T) {
		summary := testSummary(1, 0)
		summary.Errors = map[domain.EventKind]string{domain.KindFlare: "status 503"}
		assert.Contains(t, fallbackNarrative(summary, testRisk(1, 0)), "undercount")
	})

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t,
			fallbackNarrative(testSummary(2, 1), testRisk(2, 1)),
			fallbackNarrative(testSummary(2, 1), testRisk(2, 1)),
		)
	})
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 500))
	assert.Equal(t, "ααα", truncateRunes("ααααα", 3))
	assert.Equal(t, "", truncateRunes("", 10))
}
