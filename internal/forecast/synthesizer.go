package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

// executiveSummaryLimit caps the executive summary at this many runes; the
// full narrative stays in DetailedAnalysis.
const executiveSummaryLimit = 500

// fallbackConfidence is the fixed confidence of template-synthesized
// forecasts, a conservative default reflecting the absence of qualitative
// analysis.
const fallbackConfidence = 0.75

// Recommendations are operational boilerplate, deliberately independent of
// risk level. Callers must not assume they vary with input.
var defaultRecommendations = []string{
	"Monitor satellite telemetry for anomalies and single-event upsets",
	"Verify backup communication channels ahead of possible HF degradation",
	"Review power grid protective relay settings for geomagnetically induced currents",
	"Check aurora forecasts before planning high-latitude operations",
}

var dataSources = []string{"NASA DONKI CME catalog", "NASA DONKI FLR catalog"}

// Synthesizer turns a window summary and risk index into a ForecastBundle.
// The AI narrative path is optional; the rule-based fallback is not. Every
// call returns a fully populated bundle regardless of which path ran.
type Synthesizer struct {
	narrative domain.NarrativeGenerator
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewSynthesizer creates a Synthesizer. Pass a nil generator to disable the
// AI path entirely; synthesis then always uses the rule-based templates.
func NewSynthesizer(narrative domain.NarrativeGenerator, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Synthesizer {
	return &Synthesizer{
		narrative: narrative,
		timeout:   timeout,
		logger:    logger,
		metrics:   metrics,
	}
}

// Synthesize builds the forecast bundle for one cycle. Narrative failures of
// any kind, missing generator, timeout, transport or API errors, degrade to
// the fallback path and are never propagated.
func (s *Synthesizer) Synthesize(ctx context.Context, summary domain.EventSummary, risk domain.RiskIndex) domain.ForecastBundle {
	bundle := s.baseBundle(summary, risk)

	if s.narrative != nil {
		text, err := s.generateNarrative(ctx, summary, risk)
		if err == nil {
			s.metrics.NarrativeRequests.WithLabelValues("success").Inc()
			bundle.DetailedAnalysis = text
			bundle.ExecutiveSummary = truncateRunes(text, executiveSummaryLimit)
			bundle.Title = extractTitle(text, risk.Level)
			bundle.ConfidenceScore = aiConfidence(summary)
			bundle.NarrativeSource = domain.SourceAI
			return bundle
		}
		s.metrics.NarrativeRequests.WithLabelValues("error").Inc()
		s.logger.Warn("narrative generation failed, using fallback", "error", err)
	}

	s.metrics.NarrativeFallbacks.Inc()
	text := fallbackNarrative(summary, risk)
	bundle.DetailedAnalysis = text
	bundle.ExecutiveSummary = fmt.Sprintf("Current composite space weather risk is %.1f/100, level %s.", risk.Score, risk.Level)
	bundle.Title = titleForLevel(risk.Level)
	bundle.ConfidenceScore = fallbackConfidence
	bundle.NarrativeSource = domain.SourceFallback
	return bundle
}

func (s *Synthesizer) generateNarrative(ctx context.Context, summary domain.EventSummary, risk domain.RiskIndex) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	began := time.Now()
	text, err := s.narrative.Generate(genCtx, domain.NarrativeRequest{Summary: summary, Risk: risk})
	s.metrics.NarrativeDuration.Observe(time.Since(began).Seconds())
	return text, err
}

// baseBundle fills everything both synthesis paths share: identity, validity
// window, structured impact and evidence tables.
func (s *Synthesizer) baseBundle(summary domain.EventSummary, risk domain.RiskIndex) domain.ForecastBundle {
	now := clock.Now().UTC()
	return domain.ForecastBundle{
		ID:              uuid.NewString(),
		RiskLevel:       risk.Level,
		Risk:            risk,
		Summary:         summary,
		Impacts:         impactsForLevel(risk.Level),
		RiskAssessments: assessRisks(summary),
		EvidenceChain:   buildEvidence(summary, now),
		Recommendations: append([]string(nil), defaultRecommendations...),
		GeneratedAt:     now,
		ValidUntil:      now.Add(24 * time.Hour),
		DataSources:     append([]string(nil), dataSources...),
	}
}

// aiConfidence derives the AI-path confidence from data completeness, not
// forecast correctness: 0.70 base, +0.10 each for observed CMEs, observed
// flares and an error-free fetch, capped at 0.95.
func aiConfidence(summary domain.EventSummary) float64 {
	points := 70
	if summary.CME.Count > 0 {
		points += 10
	}
	if summary.Flare.Count > 0 {
		points += 10
	}
	if !summary.HasErrors() {
		points += 10
	}
	if points > 95 {
		points = 95
	}
	return float64(points) / 100
}

// extractTitle scans the first five lines of a narrative for a title-like
// line, one mentioning forecast, outlook or assessment. Markdown heading and
// emphasis markers are stripped. Falls back to the level-derived default.
func extractTitle(narrative string, level domain.RiskLevel) string {
	lines := strings.Split(narrative, "\n")
	for i, line := range lines {
		if i >= 5 {
			break
		}
		line = strings.TrimSpace(strings.Trim(line, "#*_ "))
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "forecast") || strings.Contains(lower, "outlook") || strings.Contains(lower, "assessment") {
			return line
		}
	}
	return titleForLevel(level)
}

func titleForLevel(level domain.RiskLevel) string {
	return capitalize(string(level)) + " Space Weather Activity Detected"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// fallbackNarrative renders the deterministic rule-based analysis. Identical
// inputs produce identical text.
func fallbackNarrative(summary domain.EventSummary, risk domain.RiskIndex) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Automated analysis of the last %d days of solar activity.\n\n", summary.WindowDays)

	if summary.CME.NoEvents {
		b.WriteString("No coronal mass ejections were observed in this window. ")
	} else {
		fmt.Fprintf(&b, "%d coronal mass ejection(s) were observed", summary.CME.Count)
		if summary.CME.EarthDirected > 0 {
			fmt.Fprintf(&b, ", of which %d appear earth-directed", summary.CME.EarthDirected)
		}
		if summary.CME.MaxSpeed > 0 {
			fmt.Fprintf(&b, ", with a maximum analyzed speed of %.0f km/s", summary.CME.MaxSpeed)
		}
		b.WriteString(". ")
	}

	if summary.Flare.NoEvents {
		b.WriteString("No solar flares were recorded.\n\n")
	} else {
		fmt.Fprintf(&b, "%d solar flare(s) were recorded", summary.Flare.Count)
		if summary.Flare.XClass > 0 {
			fmt.Fprintf(&b, ", including %d X-class event(s)", summary.Flare.XClass)
		}
		b.WriteString(".\n\n")
	}

	fmt.Fprintf(&b, "The composite risk index stands at %.1f/100 (%s). %s", risk.Score, risk.Level, outlookForLevel(risk.Level))

	if summary.HasErrors() {
		b.WriteString("\n\nNote: one or more feed categories could not be retrieved this cycle, so event totals may undercount actual activity.")
	}
	return b.String()
}

func outlookForLevel(level domain.RiskLevel) string {
	switch level {
	case domain.LevelExtreme:
		return "Severe geomagnetic conditions are possible; affected operators should execute storm procedures."
	case domain.LevelHigh:
		return "Elevated activity may disrupt satellite operations and HF communications over the next 24 hours."
	case domain.LevelModerate:
		return "Minor operational effects are possible; routine monitoring is sufficient."
	case domain.LevelLow:
		return "Activity is slightly above background levels; no operational response is expected."
	default:
		return "Conditions are quiet; no operational impacts are expected."
	}
}

// impactsForLevel maps the risk level to the fixed infrastructure impact
// table. Low and minimal levels carry an empty, non-nil list.
func impactsForLevel(level domain.RiskLevel) []domain.Impact {
	switch level {
	case domain.LevelHigh, domain.LevelExtreme:
		return []domain.Impact{
			{System: "Satellite Operations", Severity: "high", Likelihood: 0.8},
			{System: "GPS Accuracy", Severity: "moderate", Likelihood: 0.9},
			{System: "HF Communications", Severity: "high", Likelihood: 0.7},
			{System: "Aurora Visibility", Severity: "enhanced", Likelihood: 0.95},
		}
	case domain.LevelModerate:
		return []domain.Impact{
			{System: "Satellite Operations", Severity: "moderate", Likelihood: 0.6},
			{System: "Aurora Visibility", Severity: "possible", Likelihood: 0.7},
		}
	default:
		return []domain.Impact{}
	}
}

// assessRisks emits the geomagnetic storm assessment only when at least one
// CME is earth-directed.
func assessRisks(summary domain.EventSummary) []domain.RiskAssessment {
	if summary.CME.EarthDirected == 0 {
		return []domain.RiskAssessment{}
	}
	return []domain.RiskAssessment{{
		Category:    "Geomagnetic Storm",
		Probability: 0.8,
		Timeline:    "24-72 hours",
		Description: fmt.Sprintf("%d earth-directed CME(s) may drive geomagnetic storming at Earth.", summary.CME.EarthDirected),
	}}
}

// buildEvidence adds one item per non-empty event category. The fixed
// confidences describe catalog detection reliability.
func buildEvidence(summary domain.EventSummary, now time.Time) []domain.EvidenceItem {
	chain := make([]domain.EvidenceItem, 0, 2)
	if summary.CME.Count > 0 {
		chain = append(chain, domain.EvidenceItem{
			Type:        domain.KindCME,
			Source:      "NASA DONKI CME catalog",
			Description: fmt.Sprintf("%d coronal mass ejection(s) in the last %d days", summary.CME.Count, summary.WindowDays),
			Confidence:  0.95,
			Timestamp:   now,
		})
	}
	if summary.Flare.Count > 0 {
		chain = append(chain, domain.EvidenceItem{
			Type:        domain.KindFlare,
			Source:      "NASA DONKI FLR catalog",
			Description: fmt.Sprintf("%d solar flare(s) in the last %d days", summary.Flare.Count, summary.WindowDays),
			Confidence:  0.93,
			Timestamp:   now,
		})
	}
	return chain
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
