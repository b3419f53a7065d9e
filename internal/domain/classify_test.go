package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testActivityID = "2024-05-10T16:36:00-CME-001"

func f64(v float64) *float64 {
	return &v
}

func TestClassifyEvents(t *testing.T) {
	startTime := time.Date(2024, 5, 10, 16, 36, 0, 0, time.UTC)

	t.Run("CME with analysis", func(t *testing.T) {
		raws := []RawEvent{{
			Kind:       KindCME,
			ActivityID: testActivityID,
			StartTime:  startTime,
			Analyses:   []CMEAnalysis{{Speed: f64(1250), Latitude: f64(-12.5), Longitude: f64(40)}},
		}}

		events := ClassifyEvents(raws, KindCME)

		require.Len(t, events, 1)
		assert.Equal(t, testActivityID, events[0].ID)
		assert.Equal(t, KindCME, events[0].Kind)
		assert.Equal(t, startTime, events[0].Timestamp)
		assert.Equal(t, SeverityHigh, events[0].Severity)
		require.NotNil(t, events[0].Speed)
		assert.Equal(t, 1250.0, *events[0].Speed)
		assert.True(t, events[0].EarthDirected)
	})

	t.Run("CME without analysis is kept as unknown", func(t *testing.T) {
		raws := []RawEvent{{Kind: KindCME, ActivityID: testActivityID, StartTime: startTime}}

		events := ClassifyEvents(raws, KindCME)

		require.Len(t, events, 1)
		assert.Equal(t, SeverityUnknown, events[0].Severity)
		assert.Nil(t, events[0].Speed)
		assert.False(t, events[0].EarthDirected)
	})

	t.Run("CME uses first analysis only", func(t *testing.T) {
		raws := []RawEvent{{
			Kind:       KindCME,
			ActivityID: testActivityID,
			Analyses: []CMEAnalysis{
				{Speed: f64(450), Latitude: f64(55)},
				{Speed: f64(2500), Latitude: f64(0)},
			},
		}}

		events := ClassifyEvents(raws, KindCME)

		require.Len(t, events, 1)
		assert.Equal(t, SeverityLow, events[0].Severity)
		assert.False(t, events[0].EarthDirected)
	})

	t.Run("CME with latitude but no speed", func(t *testing.T) {
		raws := []RawEvent{{
			Kind:       KindCME,
			ActivityID: testActivityID,
			Analyses:   []CMEAnalysis{{Latitude: f64(5)}},
		}}

		events := ClassifyEvents(raws, KindCME)

		require.Len(t, events, 1)
		assert.Equal(t, SeverityUnknown, events[0].Severity)
		assert.Nil(t, events[0].Speed)
		assert.True(t, events[0].EarthDirected)
	})

	t.Run("flare with class string", func(t *testing.T) {
		raws := []RawEvent{{
			Kind:       KindFlare,
			ActivityID: "2024-05-10T06:54:00-FLR-001",
			StartTime:  startTime,
			ClassType:  "M2.4",
		}}

		events := ClassifyEvents(raws, KindFlare)

		require.Len(t, events, 1)
		assert.Equal(t, "M", events[0].FluxClass)
		assert.Equal(t, SeverityHigh, events[0].Severity)
		assert.False(t, events[0].EarthDirected)
	})

	t.Run("flare with unrecognized class is kept", func(t *testing.T) {
		raws := []RawEvent{{Kind: KindFlare, ActivityID: "flr-1", ClassType: "Q9"}}

		events := ClassifyEvents(raws, KindFlare)

		require.Len(t, events, 1)
		assert.Empty(t, events[0].FluxClass)
		assert.Equal(t, SeverityUnknown, events[0].Severity)
	})

	t.Run("empty input", func(t *testing.T) {
		events := ClassifyEvents(nil, KindCME)
		assert.Empty(t, events)
	})
}

func TestCMESeverityForSpeed(t *testing.T) {
	tests := []struct {
		name     string
		speed    float64
		expected Severity
	}{
		{"slow", 300, SeverityLow},
		{"boundary 500 stays low", 500, SeverityLow},
		{"just above 500", 500.1, SeverityModerate},
		{"boundary 1000 stays moderate", 1000, SeverityModerate},
		{"just above 1000", 1000.1, SeverityHigh},
		{"boundary 2000 stays high", 2000, SeverityHigh},
		{"just above 2000", 2000.1, SeverityExtreme},
		{"halo storm", 3200, SeverityExtreme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cmeSeverityForSpeed(tt.speed))
		})
	}
}

func TestParseFluxClass(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"X class", "X1.2", "X"},
		{"M class", "M2.4", "M"},
		{"C class", "C5.0", "C"},
		{"B class", "B9.9", "B"},
		{"A class", "A1.0", "A"},
		{"bare letter", "X", "X"},
		{"lowercase normalized", "m2.4", "M"},
		{"surrounding spaces", "  C1.1  ", "C"},
		{"unrecognized letter", "Q9", ""},
		{"leading digit", "2.4M", ""},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseFluxClass(tt.input))
		})
	}
}

func TestFlareSeverityForClass(t *testing.T) {
	tests := []struct {
		name     string
		class    string
		expected Severity
	}{
		{"X extreme", "X", SeverityExtreme},
		{"M high", "M", SeverityHigh},
		{"C moderate", "C", SeverityModerate},
		{"B low", "B", SeverityLow},
		{"A low", "A", SeverityLow},
		{"empty unknown", "", SeverityUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, flareSeverityForClass(tt.class))
		})
	}
}

func TestEarthDirected(t *testing.T) {
	tests := []struct {
		name     string
		latitude *float64
		expected bool
	}{
		{"equatorial", f64(0), true},
		{"low southern latitude", f64(-12.5), true},
		{"just inside band", f64(29.9), true},
		{"boundary 30 excluded", f64(30), false},
		{"high latitude", f64(55), false},
		{"no latitude", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := RawEvent{Kind: KindCME, ActivityID: "cme-1", Analyses: []CMEAnalysis{{Latitude: tt.latitude}}}
			events := ClassifyEvents([]RawEvent{raw}, KindCME)
			require.Len(t, events, 1)
			assert.Equal(t, tt.expected, events[0].EarthDirected)
		})
	}
}

func TestEventID(t *testing.T) {
	t.Run("prefers activity ID", func(t *testing.T) {
		raw := RawEvent{ActivityID: testActivityID}
		assert.Equal(t, testActivityID, eventID(raw, KindCME))
	})

	t.Run("fallback includes kind prefix", func(t *testing.T) {
		raw := RawEvent{StartTime: time.Date(2024, 5, 10, 16, 36, 0, 0, time.UTC), SourceLocation: "N12W34"}
		id := eventID(raw, KindFlare)
		assert.True(t, strings.HasPrefix(id, "flare-"))
	})

	t.Run("fallback is deterministic", func(t *testing.T) {
		raw := RawEvent{StartTime: time.Date(2024, 5, 10, 16, 36, 0, 0, time.UTC), ClassType: "M2.4"}
		assert.Equal(t, eventID(raw, KindFlare), eventID(raw, KindFlare))
	})

	t.Run("different inputs produce different IDs", func(t *testing.T) {
		raw1 := RawEvent{StartTime: time.Date(2024, 5, 10, 16, 36, 0, 0, time.UTC)}
		raw2 := RawEvent{StartTime: time.Date(2024, 5, 10, 16, 37, 0, 0, time.UTC)}
		assert.NotEqual(t, eventID(raw1, KindCME), eventID(raw2, KindCME))
	})
}

func TestSummarizeCMEs(t *testing.T) {
	t.Run("mixed batch", func(t *testing.T) {
		events := []ClassifiedEvent{
			{Severity: SeverityHigh, Speed: f64(1200), EarthDirected: true},
			{Severity: SeverityModerate, Speed: f64(800)},
			{Severity: SeverityUnknown}, // no analysis
			{Severity: SeverityLow, Speed: f64(400), EarthDirected: true},
		}

		summary := SummarizeCMEs(events)

		assert.Equal(t, 4, summary.Count)
		assert.False(t, summary.NoEvents)
		assert.Equal(t, map[Severity]int{SeverityHigh: 1, SeverityModerate: 1, SeverityLow: 1}, summary.Severity)
		assert.Equal(t, 2, summary.EarthDirected)
		assert.Equal(t, 800.0, summary.AverageSpeed)
		assert.Equal(t, 1200.0, summary.MaxSpeed)
	})

	t.Run("unmeasured events skew nothing", func(t *testing.T) {
		events := []ClassifiedEvent{
			{Severity: SeverityUnknown},
			{Severity: SeverityModerate, Speed: f64(600)},
		}

		summary := SummarizeCMEs(events)

		assert.Equal(t, 2, summary.Count)
		assert.Equal(t, 600.0, summary.AverageSpeed)
		assert.Equal(t, 600.0, summary.MaxSpeed)
		assert.Equal(t, 1, summary.Severity[SeverityModerate])
	})

	t.Run("all unmeasured drops distribution", func(t *testing.T) {
		events := []ClassifiedEvent{{Severity: SeverityUnknown}, {Severity: SeverityUnknown}}

		summary := SummarizeCMEs(events)

		assert.Equal(t, 2, summary.Count)
		assert.Nil(t, summary.Severity)
		assert.Zero(t, summary.AverageSpeed)
	})

	t.Run("empty batch sets all-quiet marker", func(t *testing.T) {
		summary := SummarizeCMEs(nil)

		assert.Zero(t, summary.Count)
		assert.True(t, summary.NoEvents)
		assert.Nil(t, summary.Severity)
	})
}

func TestSummarizeFlares(t *testing.T) {
	t.Run("mixed batch", func(t *testing.T) {
		events := []ClassifiedEvent{
			{FluxClass: "X", Severity: SeverityExtreme},
			{FluxClass: "X", Severity: SeverityExtreme},
			{FluxClass: "M", Severity: SeverityHigh},
			{FluxClass: "", Severity: SeverityUnknown}, // unrecognized class
		}

		summary := SummarizeFlares(events)

		assert.Equal(t, 4, summary.Count)
		assert.False(t, summary.NoEvents)
		assert.Equal(t, map[string]int{"X": 2, "M": 1}, summary.ByClass)
		assert.Equal(t, 2, summary.XClass)
	})

	t.Run("empty batch sets all-quiet marker", func(t *testing.T) {
		summary := SummarizeFlares(nil)

		assert.Zero(t, summary.Count)
		assert.True(t, summary.NoEvents)
		assert.Nil(t, summary.ByClass)
		assert.Zero(t, summary.XClass)
	})
}

func TestBuildSummary(t *testing.T) {
	t.Run("assembles both categories", func(t *testing.T) {
		cmes := []ClassifiedEvent{{Severity: SeverityLow, Speed: f64(300)}}
		flares := []ClassifiedEvent{{FluxClass: "C", Severity: SeverityModerate}, {FluxClass: "M", Severity: SeverityHigh}}

		summary := BuildSummary(cmes, flares, nil, 3)

		assert.Equal(t, 1, summary.CME.Count)
		assert.Equal(t, 2, summary.Flare.Count)
		assert.Equal(t, 3, summary.Total())
		assert.Equal(t, 3, summary.WindowDays)
		assert.False(t, summary.HasErrors())
		assert.Equal(t, Fingerprint{CMECount: 1, FlareCount: 2}, summary.Fingerprint())
	})

	t.Run("copies fetch errors", func(t *testing.T) {
		errs := map[EventKind]string{KindFlare: "donki: status 503"}

		summary := BuildSummary(nil, nil, errs, 3)

		assert.True(t, summary.HasErrors())
		assert.Equal(t, "donki: status 503", summary.Errors[KindFlare])

		// Mutating the caller's map must not leak into the summary.
		errs[KindCME] = "late"
		assert.Len(t, summary.Errors, 1)
	})
}
