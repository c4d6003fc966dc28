// internal/model/event.go
package model

// EventRecord
// ------------------------------------------------------------
// A single analytics event captured by the browser extension, after the
// server-side sanitiser has bounded every field. Every field is optional:
// an empty string means "absent" and renders as the fallback placeholder.
//
// Records are built once per request, never mutated while a report is
// rendered, and discarded once the response is written. Event content is
// never persisted.
type EventRecord struct {
	ID            string         `json:"id,omitempty"`
	Timestamp     string         `json:"timestamp,omitempty"` // ISO-8601 as sent by the extension
	EventName     string         `json:"eventName,omitempty"`
	ProjectToken  string         `json:"projectToken,omitempty"`
	DistinctID    string         `json:"distinctId,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
	MeasurementID string         `json:"measurementId,omitempty"`
	ClientID      string         `json:"clientId,omitempty"`
	PageURL       string         `json:"pageUrl,omitempty"`
	TabID         string         `json:"tabId,omitempty"` // integer, kept as text
	Source        string         `json:"source,omitempty"`
	EndpointType  string         `json:"endpointType,omitempty"`
	Params        map[string]any `json:"params,omitempty"`   // scalar / []any / map[string]any values
	Warnings      []string       `json:"warnings,omitempty"` // nil when the extension sent none
}

// ReportPayload
// ------------------------------------------------------------
// Validated request body handed to the report engine.
// SessionInfo carries optional "pageUrl" and "userAgent" entries.
type ReportPayload struct {
	Events      []EventRecord
	SessionInfo map[string]string
	GeneratedAt string
	Source      string
}
