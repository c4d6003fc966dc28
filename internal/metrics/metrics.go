package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics is the set of process counters served on /metrics.
// Fields are updated with sync/atomic only.
type Metrics struct {
	// ======================
	// HTTP
	// ======================

	// HTTPRequestsTotal
	// - every request that reached a report endpoint, any method or outcome.
	HTTPRequestsTotal int64

	// HTTPRequestsRejectedBodyTooLargeTotal
	// - 413s, from Content-Length or from MaxBytesReader while reading.
	HTTPRequestsRejectedBodyTooLargeTotal int64

	// HTTPRequestsRejectedRateLimitedTotal
	// - 429s from the per-client fixed window.
	HTTPRequestsRejectedRateLimitedTotal int64

	// HTTPRequestsRejectedInvalidTotal
	// - 400s: malformed JSON, bad gzip or failed validation.
	HTTPRequestsRejectedInvalidTotal int64

	// ======================
	// Reports
	// ======================

	// ReportsGeneratedTotal
	// - PDFs written to a client.
	ReportsGeneratedTotal int64

	// ReportEventsTotal
	// - events received in requests that produced a PDF, before any cap.
	ReportEventsTotal int64

	// ReportPagesTotal
	// - pages across all generated PDFs.
	ReportPagesTotal int64

	// ReportFailuresTotal
	// - renders that failed and returned 500.
	ReportFailuresTotal int64

	// ReportLogoErrorsTotal
	// - renders that went out without the logo.
	ReportLogoErrorsTotal int64

	// ======================
	// Audit pipeline
	// ======================

	// AuditEnqueuedTotal / AuditDroppedTotal
	// - records accepted by Manager.Enqueue, and records dropped because the
	//   channel was full. Dropping never affects the HTTP response.
	AuditEnqueuedTotal int64
	AuditDroppedTotal  int64

	// AuditDBStoredTotal / AuditDBErrorsTotal
	// - records committed to SQLite, and failed batch inserts.
	AuditDBStoredTotal int64
	AuditDBErrorsTotal int64

	// S3RecordsStoredTotal
	// - records (not batches) stored under the audit prefix.
	S3RecordsStoredTotal int64

	// S3PutErrorsTotal
	// - failed PutObject attempts; one batch can count once per retry.
	S3PutErrorsTotal int64

	// ======================
	// DLQ (Dead Letter Queue)
	// ======================

	// DLQRecordsEnqueuedTotal
	// - records written to the local DLQ after S3 gave up.
	DLQRecordsEnqueuedTotal int64

	// DLQRecordsReuploadedTotal
	// - records recovered from the DLQ into S3.
	DLQRecordsReuploadedTotal int64

	// DLQRecordsDroppedTotal
	// - records lost because the DLQ could not make room.
	DLQRecordsDroppedTotal int64

	// DLQFilesExpiredTotal
	// - DLQ files removed by TTL, size cap or validation.
	DLQFilesExpiredTotal int64

	// DLQFilesCurrent / DLQSizeBytes
	// - gauges, seeded by a directory scan at startup.
	DLQFilesCurrent int64
	DLQSizeBytes    int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(768)

	fmt.Fprintf(&sb, "http_requests_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_body_too_large_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedBodyTooLargeTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_rate_limited_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedRateLimitedTotal))
	fmt.Fprintf(&sb, "http_requests_rejected_invalid_total=%d\n", atomic.LoadInt64(&m.HTTPRequestsRejectedInvalidTotal))

	fmt.Fprintf(&sb, "reports_generated_total=%d\n", atomic.LoadInt64(&m.ReportsGeneratedTotal))
	fmt.Fprintf(&sb, "report_events_total=%d\n", atomic.LoadInt64(&m.ReportEventsTotal))
	fmt.Fprintf(&sb, "report_pages_total=%d\n", atomic.LoadInt64(&m.ReportPagesTotal))
	fmt.Fprintf(&sb, "report_failures_total=%d\n", atomic.LoadInt64(&m.ReportFailuresTotal))
	fmt.Fprintf(&sb, "report_logo_errors_total=%d\n", atomic.LoadInt64(&m.ReportLogoErrorsTotal))

	fmt.Fprintf(&sb, "audit_enqueued_total=%d\n", atomic.LoadInt64(&m.AuditEnqueuedTotal))
	fmt.Fprintf(&sb, "audit_dropped_total=%d\n", atomic.LoadInt64(&m.AuditDroppedTotal))
	fmt.Fprintf(&sb, "audit_db_stored_total=%d\n", atomic.LoadInt64(&m.AuditDBStoredTotal))
	fmt.Fprintf(&sb, "audit_db_errors_total=%d\n", atomic.LoadInt64(&m.AuditDBErrorsTotal))
	fmt.Fprintf(&sb, "s3_records_stored_total=%d\n", atomic.LoadInt64(&m.S3RecordsStoredTotal))
	fmt.Fprintf(&sb, "s3_put_errors_total=%d\n", atomic.LoadInt64(&m.S3PutErrorsTotal))

	fmt.Fprintf(&sb, "dlq_records_enqueued_total=%d\n", atomic.LoadInt64(&m.DLQRecordsEnqueuedTotal))
	fmt.Fprintf(&sb, "dlq_records_reuploaded_total=%d\n", atomic.LoadInt64(&m.DLQRecordsReuploadedTotal))
	fmt.Fprintf(&sb, "dlq_records_dropped_total=%d\n", atomic.LoadInt64(&m.DLQRecordsDroppedTotal))
	fmt.Fprintf(&sb, "dlq_files_expired_total=%d\n", atomic.LoadInt64(&m.DLQFilesExpiredTotal))
	fmt.Fprintf(&sb, "dlq_files_current=%d\n", atomic.LoadInt64(&m.DLQFilesCurrent))
	fmt.Fprintf(&sb, "dlq_size_bytes=%d\n", atomic.LoadInt64(&m.DLQSizeBytes))

	return sb.String()
}
