// internal/worker/manager.go
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"inspector-report/internal/config"
	"inspector-report/internal/metrics"
	"inspector-report/internal/model"
	"inspector-report/internal/pool"

	"github.com/rs/zerolog/log"
)

// idleInterval is how often sinks get background time when no batch
// arrives.
const idleInterval = 500 * time.Millisecond

// Manager is the audit pipeline. Report handlers hand it one record per
// request; it batches them and writes each batch to every sink.
//
//   - auditCh: handler → Manager (Enqueue, never blocks)
//   - collectLoop: cuts a batch at AuditBatchSize or AuditFlushInterval
//   - uploadCh: batches waiting for the sinks
//   - uploadLoop: writes batches, gives idle sinks time for DLQ work
//
// Shutdown stops intake, flushes the last batch and waits for the sinks.
type Manager struct {
	cfg     config.Config
	metrics *metrics.Metrics
	sinks   []Sink

	auditCh  chan *model.AuditRecord
	uploadCh chan model.AuditBatch

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // guards closed against Enqueue
	closed bool

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager builds a manager for the given sinks. With no sinks, records
// are still counted and recycled.
func NewManager(cfg config.Config, m *metrics.Metrics, sinks ...Sink) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		metrics:  m,
		sinks:    sinks,
		auditCh:  make(chan *model.AuditRecord, cfg.AuditChannelSize),
		uploadCh: make(chan model.AuditBatch, cfg.AuditUploadQueue),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs collectLoop and uploadLoop.
func (m *Manager) Start() {
	m.wg.Add(2)
	go m.collectLoop()
	go m.uploadLoop()
}

// Enqueue hands rec to the pipeline. It never blocks: when the queue is
// full or the manager is shutting down the record is dropped, recycled
// and false is returned.
func (m *Manager) Enqueue(rec *model.AuditRecord) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.closed {
		select {
		case m.auditCh <- rec:
			atomic.AddInt64(&m.metrics.AuditEnqueuedTotal, 1)
			return true
		default:
		}
	}

	pool.PutAudit(rec)
	atomic.AddInt64(&m.metrics.AuditDroppedTotal, 1)
	return false
}

// Shutdown closes intake and waits until the last batch has been written.
// If ctx ends first, in-flight uploads are cancelled and ctx.Err() is
// returned once the loops have exited. Safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.auditCh)
		m.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}

// collectLoop batches records from auditCh. Every flush hands over a new
// slice so uploadLoop never shares backing arrays with the next batch.
func (m *Manager) collectLoop() {
	defer m.wg.Done()
	defer close(m.uploadCh)

	batch := make([]*model.AuditRecord, 0, m.cfg.AuditBatchSize)
	timer := time.NewTimer(m.cfg.AuditFlushInterval)
	defer timer.Stop()

	reset := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.cfg.AuditFlushInterval)
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		m.uploadCh <- model.AuditBatch{Records: batch}
		batch = make([]*model.AuditRecord, 0, m.cfg.AuditBatchSize)
	}

	for {
		select {
		case rec, ok := <-m.auditCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= m.cfg.AuditBatchSize {
				flush()
				reset()
			}

		case <-timer.C:
			flush()
			timer.Reset(m.cfg.AuditFlushInterval)
		}
	}
}

// uploadLoop writes batches until uploadCh is closed and drained.
func (m *Manager) uploadLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(idleInterval)
	defer ticker.Stop()

	for {
		select {
		case batch, ok := <-m.uploadCh:
			if !ok {
				log.Info().Msg("audit uploader exiting")
				return
			}
			m.processBatch(m.ctx, batch)
			m.idle(m.ctx)

		case <-ticker.C:
			m.idle(m.ctx)
		}
	}
}

// processBatch writes one batch to every sink, then recycles its records.
// A failing sink does not stop the others.
func (m *Manager) processBatch(ctx context.Context, batch model.AuditBatch) {
	if len(batch.Records) == 0 {
		return
	}
	defer func() {
		for _, rec := range batch.Records {
			pool.PutAudit(rec)
		}
	}()

	for _, s := range m.sinks {
		if err := s.Write(ctx, batch.Records); err != nil {
			log.Error().Err(err).Str("sink", s.Name()).Int("records", len(batch.Records)).Msg("audit batch write failed")
		}
	}
}

func (m *Manager) idle(ctx context.Context) {
	for _, s := range m.sinks {
		if i, ok := s.(idler); ok {
			i.Idle(ctx)
		}
	}
}
