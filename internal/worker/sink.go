package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"inspector-report/internal/config"
	"inspector-report/internal/metrics"
	"inspector-report/internal/model"

	"github.com/rs/zerolog/log"
)

// Sink persists one audit batch. Write must not keep records after it
// returns; the manager recycles them.
type Sink interface {
	Name() string
	Write(ctx context.Context, records []*model.AuditRecord) error
}

// idler is a Sink with background work for quiet periods.
type idler interface {
	Idle(ctx context.Context)
}

// AuditStore is the storage side of DBSink.
type AuditStore interface {
	InsertBatch(ctx context.Context, records []*model.AuditRecord) error
}

// ------------------------------------------------------------
// DBSink: report_requests rows in SQLite
// ------------------------------------------------------------

type DBSink struct {
	store   AuditStore
	metrics *metrics.Metrics
}

func NewDBSink(store AuditStore, m *metrics.Metrics) *DBSink {
	return &DBSink{store: store, metrics: m}
}

func (s *DBSink) Name() string { return "sqlite" }

func (s *DBSink) Write(ctx context.Context, records []*model.AuditRecord) error {
	if err := s.store.InsertBatch(ctx, records); err != nil {
		atomic.AddInt64(&s.metrics.AuditDBErrorsTotal, 1)
		return err
	}
	atomic.AddInt64(&s.metrics.AuditDBStoredTotal, int64(len(records)))
	return nil
}

// ------------------------------------------------------------
// S3Sink: JSONL.gz objects under AuditPrefix, local DLQ on failure
// ------------------------------------------------------------

type S3Sink struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	encoder  *Encoder
	uploader *S3Uploader
	dlq      *DLQManager
}

// NewS3Sink wires the encoder, uploader and DLQ for cfg.AuditBucket.
func NewS3Sink(cfg config.Config, m *metrics.Metrics, client ObjectPutter) (*S3Sink, error) {
	uploader := NewS3Uploader(cfg, m, client)
	dlq, err := NewDLQManager(cfg, m, uploader)
	if err != nil {
		return nil, err
	}
	return &S3Sink{
		cfg:      cfg,
		metrics:  m,
		encoder:  NewEncoder(),
		uploader: uploader,
		dlq:      dlq,
	}, nil
}

func (s *S3Sink) Name() string { return "s3" }

// Write uploads the batch. When every attempt fails the batch goes to the
// local DLQ and Write still returns the upload error for logging.
func (s *S3Sink) Write(ctx context.Context, records []*model.AuditRecord) error {
	data, err := s.encoder.EncodeBatchJSONLGZ(records)
	if err != nil {
		return fmt.Errorf("encode audit batch: %w", err)
	}

	key := BuildS3Key(s.cfg.AuditPrefix, NewFilename(s.cfg.InstanceID))
	if err := s.uploader.UploadBytesWithRetryCtx(ctx, key, data); err != nil {
		if err2 := s.dlq.Save(data, len(records)); err2 != nil {
			log.Error().Err(err2).Msg("local dlq save failed")
		}
		return fmt.Errorf("upload %s: %w", key, err)
	}

	atomic.AddInt64(&s.metrics.S3RecordsStoredTotal, int64(len(records)))
	return nil
}

// Idle re-uploads up to three DLQ files so the backlog drains between
// batches without starving new ones.
func (s *S3Sink) Idle(ctx context.Context) {
	for i := 0; i < 3; i++ {
		if !s.dlq.ProcessOneCtx(ctx) {
			return
		}
	}
}
