package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// earthDirectedLatitude is the half-width of the heliographic latitude band
// treated as earth-directed. A CME whose first analysis reports |latitude|
// below this is flagged. A coarse geometric screen, not a trajectory model.
const earthDirectedLatitude = 30.0

// ClassifyEvents classifies a batch of raw feed records of one kind.
// Classification is pure: the same input always yields the same output, and
// events that cannot be fully classified are kept with Severity unknown
// rather than dropped.
func ClassifyEvents(raws []RawEvent, kind EventKind) []ClassifiedEvent {
	events := make([]ClassifiedEvent, 0, len(raws))
	for _, raw := range raws {
		events = append(events, classifyOne(raw, kind))
	}
	return events
}

func classifyOne(raw RawEvent, kind EventKind) ClassifiedEvent {
	event := ClassifiedEvent{
		ID:        eventID(raw, kind),
		Kind:      kind,
		Timestamp: raw.StartTime,
	}

	switch kind {
	case KindCME:
		classifyCME(&event, raw)
	case KindFlare:
		classifyFlare(&event, raw)
	default:
		event.Severity = SeverityUnknown
	}
	return event
}

// classifyCME derives severity, speed and the earth-directed flag from the
// first analysis record. DONKI attaches zero or more analyses per CME; the
// first is used and the rest ignored. A CME without an analyzed speed keeps
// Severity unknown so aggregation can count it without bucketing it.
func classifyCME(event *ClassifiedEvent, raw RawEvent) {
	event.Severity = SeverityUnknown
	if len(raw.Analyses) == 0 {
		return
	}

	analysis := raw.Analyses[0]
	if analysis.Speed != nil {
		speed := *analysis.Speed
		event.Speed = &speed
		event.Severity = cmeSeverityForSpeed(speed)
	}
	if analysis.Latitude != nil {
		event.EarthDirected = math.Abs(*analysis.Latitude) < earthDirectedLatitude
	}
}

// cmeSeverityForSpeed maps an analyzed CME speed (km/s) to a severity bucket:
//   - >2000 extreme (rare, Carrington-class territory)
//   - >1000 high
//   - >500 moderate
//   - otherwise low
func cmeSeverityForSpeed(speed float64) Severity {
	switch {
	case speed > 2000:
		return SeverityExtreme
	case speed > 1000:
		return SeverityHigh
	case speed > 500:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// classifyFlare derives the flux class letter and severity from the flare
// class string, e.g. "M2.4" -> class M, severity high. Class strings whose
// leading character is not one of A, B, C, M, X leave FluxClass empty and
// Severity unknown; the event still counts toward totals.
func classifyFlare(event *ClassifiedEvent, raw RawEvent) {
	event.FluxClass = parseFluxClass(raw.ClassType)
	event.Severity = flareSeverityForClass(event.FluxClass)
}

// parseFluxClass extracts the leading class letter from a GOES flare class
// string. Returns "" when the string is empty or starts with an unrecognized
// letter.
func parseFluxClass(classType string) string {
	classType = strings.ToUpper(strings.TrimSpace(classType))
	if classType == "" {
		return ""
	}

	switch class := classType[:1]; class {
	case "A", "B", "C", "M", "X":
		return class
	default:
		return ""
	}
}

// flareSeverityForClass maps a GOES class letter to a severity bucket:
//   - X extreme
//   - M high
//   - C moderate
//   - A, B low (background-level activity)
//
// An empty or unrecognized class maps to unknown.
func flareSeverityForClass(class string) Severity {
	switch class {
	case "X":
		return SeverityExtreme
	case "M":
		return SeverityHigh
	case "C":
		return SeverityModerate
	case "A", "B":
		return SeverityLow
	default:
		return SeverityUnknown
	}
}

// eventID returns the upstream activity ID when present, otherwise a
// deterministic ID derived from the event's key fields. Deterministic IDs
// keep reprocessing idempotent: the same raw event always yields the same ID.
func eventID(raw RawEvent, kind EventKind) string {
	if id := strings.TrimSpace(raw.ActivityID); id != "" {
		return id
	}

	input := fmt.Sprintf("%s|%s|%s|%s", kind, raw.StartTime.UTC().Format("2006-01-02T15:04Z"), raw.SourceLocation, raw.ClassType)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	return strings.ToLower(string(kind)) + "-" + short
}

// SummarizeCMEs aggregates classified CMEs into the per-window summary.
// Events without an analyzed speed contribute to Count but not to the
// severity distribution or the speed statistics.
func SummarizeCMEs(events []ClassifiedEvent) CMESummary {
	summary := CMESummary{
		Count:    len(events),
		NoEvents: len(events) == 0,
	}
	if summary.NoEvents {
		return summary
	}

	summary.Severity = make(map[Severity]int)
	var speedSum float64
	var speedCount int
	for _, event := range events {
		if event.Severity != SeverityUnknown {
			summary.Severity[event.Severity]++
		}
		if event.EarthDirected {
			summary.EarthDirected++
		}
		if event.Speed != nil {
			speedSum += *event.Speed
			speedCount++
			if *event.Speed > summary.MaxSpeed {
				summary.MaxSpeed = *event.Speed
			}
		}
	}
	if len(summary.Severity) == 0 {
		summary.Severity = nil
	}
	if speedCount > 0 {
		summary.AverageSpeed = speedSum / float64(speedCount)
	}
	return summary
}

// SummarizeFlares aggregates classified flares into the per-window summary.
// Flares with an unrecognized class contribute to Count but not to the class
// distribution.
func SummarizeFlares(events []ClassifiedEvent) FlareSummary {
	summary := FlareSummary{
		Count:    len(events),
		NoEvents: len(events) == 0,
	}
	if summary.NoEvents {
		return summary
	}

	summary.ByClass = make(map[string]int)
	for _, event := range events {
		if event.FluxClass == "" {
			continue
		}
		summary.ByClass[event.FluxClass]++
	}
	summary.XClass = summary.ByClass["X"]
	if len(summary.ByClass) == 0 {
		summary.ByClass = nil
	}
	return summary
}

// BuildSummary assembles the window summary from both classified categories
// and the per-category fetch failures.
func BuildSummary(cmes, flares []ClassifiedEvent, errs map[EventKind]string, windowDays int) EventSummary {
	summary := EventSummary{
		CME:        SummarizeCMEs(cmes),
		Flare:      SummarizeFlares(flares),
		WindowDays: windowDays,
	}
	if len(errs) > 0 {
		summary.Errors = make(map[EventKind]string, len(errs))
		for kind, msg := range errs {
			summary.Errors[kind] = msg
		}
	}
	return summary
}
