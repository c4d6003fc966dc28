// internal/model/audit.go
package model

// AuditRecord
// ------------------------------------------------------------
// Request metadata kept after a report has been generated.
// Only counts and a hashed client address are stored, never event content.
// Handler → Manager → (SQLite, JSONL.gz → S3) sinks.
type AuditRecord struct {
	ID           string `json:"id"`             // uuid v4
	RequestedAt  string `json:"requested_at"`   // RFC 3339, UTC
	ClientIPHash string `json:"client_ip_hash"` // sha256 hex, empty when the address is unknown
	EventCount   int    `json:"event_count"`
	Source       string `json:"source"`
	Product      string `json:"product"` // "ga4-inspector" | "mixpanel-inspector"
}

// AuditBatch
// ------------------------------------------------------------
// Unit of work passed from collectLoop to uploadLoop.
type AuditBatch struct {
	Records []*AuditRecord
}
