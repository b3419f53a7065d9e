package domain

import "context"

// NarrativeRequest carries the classified inputs a narrative generator needs
// to write a forecast text.
type NarrativeRequest struct {
	Summary EventSummary
	Risk    RiskIndex
}

// NarrativeGenerator produces the prose portion of a forecast. Any failure,
// including timeouts, empty completions and malformed responses, is reported
// as an error so the caller can fall back to template synthesis.
type NarrativeGenerator interface {
	Generate(ctx context.Context, req NarrativeRequest) (string, error)
}
