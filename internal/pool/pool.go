package pool

import (
	"bytes"
	"sync"

	"inspector-report/internal/model"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pools
//
// Every report request reads a JSON body, renders a PDF into memory and
// emits one audit record; audit batches are gzip-encoded before upload.
// These pools reuse the buffers and writers involved.
// ---------------------------------------------------------------

var (
	// AuditPool:
	//   - AuditRecord reuse, one per request
	//   - returned by the audit manager once a batch has been handled
	AuditPool = sync.Pool{
		New: func() any { return new(model.AuditRecord) },
	}

	// BodyPool:
	//   - request body buffer, 64KB initial capacity
	//   - oversized buffers are not returned (see PutBody)
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}

	// PDFPool:
	//   - rendered PDF, kept whole so a failed render never sends a
	//     partial document
	PDFPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 256*1024))
		},
	}

	// BufferPool:
	//   - gzip output of one audit batch
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}

	// GzipPool:
	//   - gzip.Writer reuse, BestSpeed
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// MaxBufferCap is the largest gzip buffer returned to BufferPool.
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// MaxPDFCap is the largest PDF buffer returned to PDFPool.
const MaxPDFCap = 8 * 1024 * 1024 // 8MB

// GetAudit returns a zeroed AuditRecord.
func GetAudit() *model.AuditRecord {
	rec := AuditPool.Get().(*model.AuditRecord)
	*rec = model.AuditRecord{}
	return rec
}

// PutAudit zeroes rec and returns it to AuditPool.
func PutAudit(rec *model.AuditRecord) {
	if rec == nil {
		return
	}
	*rec = model.AuditRecord{}
	AuditPool.Put(rec)
}

// PutBody returns buf to BodyPool unless it grew beyond maxCap
// (usually twice the body limit).
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

// PutPDF returns buf to PDFPool unless it grew beyond MaxPDFCap.
func PutPDF(buf *bytes.Buffer) {
	if buf.Cap() <= MaxPDFCap {
		buf.Reset()
		PDFPool.Put(buf)
	}
}

// PutBuffer returns a gzip buffer to BufferPool unless it grew beyond
// MaxBufferCap.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
