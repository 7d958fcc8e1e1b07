package store

import "context"

// ObservationKind is the closed enumeration of sensed event kinds.
type ObservationKind string

const (
	ObservationAppActivated  ObservationKind = "app_activated"
	ObservationWindowFocused ObservationKind = "window_focused"
	ObservationURLChanged    ObservationKind = "url_changed"
	ObservationDOMSnapshot   ObservationKind = "dom_snapshot"
	ObservationTextInput     ObservationKind = "text_input"
	ObservationClick         ObservationKind = "click"
	ObservationFileOpened    ObservationKind = "file_opened"
	ObservationClipboardCopy ObservationKind = "clipboard_copy"
)

// Observation is one atomic sensed fact about user activity. Rows are
// immutable once written; there is no update path.
type Observation struct {
	// ID is a time-sortable unique id (UUIDv7).
	ID        string
	SessionID string
	// Timestamp is the capture time in unix milliseconds.
	Timestamp int64

	// Source context at capture time.
	BundleID    string
	AppName     string
	WindowTitle string
	WindowID    string
	URL         string

	Kind ObservationKind
	// Payload is kind-specific free-form content, already redaction-scrubbed
	// by the sensor layer.
	Payload string
	// Redactions lists the redaction rules that fired on this payload.
	Redactions []string
	// Confidence reflects completeness of capture in [0,1]. Sensor gaps are
	// expressed here, never as errors.
	Confidence float64
}

// FindObservation is the find condition for observations.
type FindObservation struct {
	ID        *string
	SessionID *string
	Kind      *ObservationKind

	// Time range filters, unix milliseconds.
	SinceTs *int64
	UntilTs *int64

	Limit  *int
	Offset *int
}

// CreateObservation persists a new observation.
func (s *Store) CreateObservation(ctx context.Context, create *Observation) (*Observation, error) {
	return s.driver.CreateObservation(ctx, create)
}

// ListObservations lists observations with filter, ordered by timestamp.
func (s *Store) ListObservations(ctx context.Context, find *FindObservation) ([]*Observation, error) {
	return s.driver.ListObservations(ctx, find)
}
