package domain

import (
	"fmt"
	"time"
)

// EventKind identifies the category of a solar event.
type EventKind string

const (
	KindCME   EventKind = "CME"
	KindFlare EventKind = "FLARE"
)

// Severity buckets a single event by how energetic it is. Unknown means the
// feed carried no usable measurement for the event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityExtreme  Severity = "extreme"
	SeverityUnknown  Severity = "unknown"
)

// RiskLevel labels a composite risk score band.
type RiskLevel string

const (
	LevelMinimal  RiskLevel = "minimal"
	LevelLow      RiskLevel = "low"
	LevelModerate RiskLevel = "moderate"
	LevelHigh     RiskLevel = "high"
	LevelExtreme  RiskLevel = "extreme"
)

// CMEAnalysis is one analysis record attached to a raw CME event. DONKI may
// attach several; classification uses the first. Speed is in km/s, latitude
// and longitude in heliographic degrees. Nil pointers mean the feed omitted
// the measurement.
type CMEAnalysis struct {
	Speed          *float64 `json:"speed"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	IsMostAccurate bool     `json:"isMostAccurate"`
}

// RawEvent is a feed record in the shape the upstream source delivers it,
// before any classification. Exactly one of the kind-specific fields is
// populated depending on Kind: Analyses for CMEs, ClassType for flares.
type RawEvent struct {
	Kind       EventKind
	ActivityID string
	StartTime  time.Time
	// SourceLocation is the active-region location string, e.g. "N12W34".
	SourceLocation string
	// ClassType is the flare classification string, e.g. "M2.4". Flares only.
	ClassType string
	// Analyses holds zero or more CME analysis records. CMEs only.
	Analyses []CMEAnalysis
}

// ClassifiedEvent is a raw event after classification: stable ID, severity
// bucket and the kind-specific derived fields.
type ClassifiedEvent struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	// Speed is the analyzed CME speed in km/s, nil when the feed carried no
	// analysis. CMEs only.
	Speed *float64 `json:"speed,omitempty"`
	// EarthDirected is meaningful for CMEs only and always false for flares.
	EarthDirected bool `json:"earthDirected"`
	// FluxClass is the leading flare class letter (A, B, C, M or X), empty
	// when the class string was missing or unrecognized. Flares only.
	FluxClass string `json:"fluxClass,omitempty"`
}

// CMESummary aggregates the classified CMEs of one observation window.
type CMESummary struct {
	Count int `json:"count"`
	// NoEvents is an explicit all-quiet marker so consumers can distinguish
	// "no activity" from "no data".
	NoEvents bool `json:"noEvents"`
	// Severity counts events per bucket. Events without an analyzed speed
	// are counted in Count but excluded here.
	Severity      map[Severity]int `json:"severityDistribution,omitempty"`
	EarthDirected int              `json:"earthDirected"`
	// AverageSpeed and MaxSpeed are computed over events that carried an
	// analyzed speed, in km/s. Zero when none did.
	AverageSpeed float64 `json:"averageSpeed"`
	MaxSpeed     float64 `json:"maxSpeed"`
}

// FlareSummary aggregates the classified flares of one observation window.
type FlareSummary struct {
	Count    int  `json:"count"`
	NoEvents bool `json:"noEvents"`
	// ByClass counts flares per class letter. Flares with an unrecognized
	// class string are counted in Count but excluded here.
	ByClass map[string]int `json:"classDistribution,omitempty"`
	XClass  int            `json:"xClassCount"`
}

// EventSummary is the aggregate view of one observation window across both
// event categories, including per-category fetch failures.
type EventSummary struct {
	CME        CMESummary           `json:"cme"`
	Flare      FlareSummary         `json:"flare"`
	Errors     map[EventKind]string `json:"errors,omitempty"`
	WindowDays int                  `json:"windowDays"`
}

// Total returns the combined event count across categories.
func (s EventSummary) Total() int {
	return s.CME.Count + s.Flare.Count
}

// HasErrors reports whether any category failed to fetch this window.
func (s EventSummary) HasErrors() bool {
	return len(s.Errors) > 0
}

// Fingerprint derives the change-detection fingerprint for the window.
func (s EventSummary) Fingerprint() Fingerprint {
	return Fingerprint{CMECount: s.CME.Count, FlareCount: s.Flare.Count}
}

// Fingerprint is a cheap deterministic digest of one cycle's inputs. The hub
// compares consecutive fingerprints to decide whether a cycle changed
// anything worth announcing.
type Fingerprint struct {
	CMECount   int `json:"cmeCount"`
	FlareCount int `json:"flareCount"`
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("cme=%d flare=%d", f.CMECount, f.FlareCount)
}

// RiskIndex is the composite risk of one observation window.
type RiskIndex struct {
	// Score is on a 0-100 scale, rounded to one decimal.
	Score float64   `json:"score"`
	Level RiskLevel `json:"level"`
	// Color is the dashboard color keyword for Level.
	Color      string         `json:"color"`
	Components RiskComponents `json:"components"`
}

// RiskComponents breaks the score down into its weighted, capped inputs.
type RiskComponents struct {
	CMEContribution   float64 `json:"cmeContribution"`
	FlareContribution float64 `json:"flareContribution"`
}

// Impact describes the expected effect of current activity on one
// infrastructure system. Likelihood is a 0-1 probability.
type Impact struct {
	System     string  `json:"system"`
	Severity   string  `json:"severity"`
	Likelihood float64 `json:"likelihood"`
}

// RiskAssessment is one category entry of the structured risk table attached
// to a forecast.
type RiskAssessment struct {
	Category    string  `json:"category"`
	Probability float64 `json:"probability"`
	Timeline    string  `json:"timeline"`
	Description string  `json:"description"`
}

// EvidenceItem ties a forecast back to one event category that supports it.
// Confidence reflects source-detection reliability, not forecast reliability.
type EvidenceItem struct {
	Type        EventKind `json:"type"`
	Source      string    `json:"source"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// ForecastBundle is the complete product of one forecast cycle, the payload
// broadcast to subscribers and served over the API. Bundles are immutable:
// a new cycle produces a new bundle and the hub retains only the latest.
type ForecastBundle struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	ExecutiveSummary string  `json:"executiveSummary"`
	DetailedAnalysis string  `json:"detailedAnalysis"`
	ConfidenceScore  float64 `json:"confidenceScore"`

	RiskLevel RiskLevel    `json:"riskLevel"`
	Risk      RiskIndex    `json:"risk"`
	Summary   EventSummary `json:"summary"`

	Impacts         []Impact         `json:"impacts"`
	RiskAssessments []RiskAssessment `json:"riskAssessments"`
	EvidenceChain   []EvidenceItem   `json:"evidenceChain"`
	Recommendations []string         `json:"recommendations"`

	GeneratedAt time.Time `json:"generatedAt"`
	ValidUntil  time.Time `json:"validUntil"`
	DataSources []string  `json:"dataSources"`
	// NarrativeSource records which synthesis path produced the prose, "ai"
	// or "fallback".
	NarrativeSource string `json:"narrativeSource"`
}

// Narrative source labels for ForecastBundle.NarrativeSource.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)
