package domain

import "context"

// FeedSnapshot is one window's worth of raw events as fetched from the
// upstream feed. Categories fail independently: a failed category appears in
// Errors with an empty event slice, and the snapshot is still usable.
type FeedSnapshot struct {
	CMEs   []RawEvent
	Flares []RawEvent
	Errors map[EventKind]string
}

// EventSource fetches raw solar events for a trailing observation window.
type EventSource interface {
	// Fetch returns all events whose start time falls within the last
	// windowDays days. A non-nil error means the source itself was unusable;
	// per-category failures are reported inside the snapshot instead.
	Fetch(ctx context.Context, windowDays int) (FeedSnapshot, error)
}
