package worker

import (
	"bytes"

	"inspector-report/internal/model"
	"inspector-report/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// Encoder serialises an audit batch as gzip-compressed JSONL, one record
// per line. The gzip writer and output buffer come from the pools; the
// returned slice is a copy owned by the caller.
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeBatchJSONLGZ encodes records as JSONL and gzips the result.
func (e *Encoder) EncodeBatchJSONLGZ(records []*model.AuditRecord) ([]byte, error) {

	// ------------------------------------------------------------
	// 1) pooled output buffer and gzip writer (BestSpeed)
	// ------------------------------------------------------------
	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	gz := pool.GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	// ------------------------------------------------------------
	// 2) one JSON object per line, straight into the gzip stream
	// ------------------------------------------------------------
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = gz.Close()
			pool.GzipPool.Put(gz)
			pool.PutBuffer(buf)
			return nil, err
		}
	}

	// ------------------------------------------------------------
	// 3) gzip footer
	// ------------------------------------------------------------
	if err := gz.Close(); err != nil {
		pool.GzipPool.Put(gz)
		pool.PutBuffer(buf)
		return nil, err
	}
	pool.GzipPool.Put(gz)

	// ------------------------------------------------------------
	// 4) copy out; the pooled buffer is reused by the next batch
	// ------------------------------------------------------------
	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	pool.PutBuffer(buf)

	return data, nil
}
