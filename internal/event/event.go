// Package event defines the values that flow between source adapters, the
// ingestion coordinator, and the alert dispatcher. A LogEvent is created by
// an adapter for each line read and consumed exactly once; an AlertEvent is
// the ephemeral value handed to a sink for one delivery.
package event

import "time"

// SourceKind identifies the transport a line was read from.
type SourceKind string

const (
	KindFile      SourceKind = "file"
	KindContainer SourceKind = "container"
	KindStream    SourceKind = "stream"
)

// LogEvent is one line read from a source. Line is already bounded to the
// configured maximum length by the adapter that produced it.
type LogEvent struct {
	SourceID   string
	SourceKind SourceKind
	Line       string
	ObservedAt time.Time
}

// AlertEvent is one delivery to one sink. It is never persisted.
type AlertEvent struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"` // rule or check name
	Message  string    `json:"message"`
	Identity string    `json:"identity"`
	Sink     string    `json:"sink"`
	FiredAt  time.Time `json:"fired_at"`
}
