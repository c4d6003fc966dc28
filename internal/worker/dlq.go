// internal/worker/dlq.go
package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"inspector-report/internal/config"
	"inspector-report/internal/metrics"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

const metaSuffix = ".meta.json"

// DLQManager keeps audit batches that S3 rejected on local disk and
// re-uploads them later, oldest first.
//
//   - TTL comes from the "<unix>_" prefix of the file name
//   - total size is capped by DLQMaxSizeBytes; the oldest files make room
//   - files that no longer decode go to the DLQ prefix instead of the
//     audit prefix
type DLQManager struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	uploader *S3Uploader

	// bytes of data files currently in DLQDir
	dlqSizeBytes int64
}

type dlqMeta struct {
	NumRecords int64 `json:"num_records"`
}

// NewDLQManager creates DLQDir if needed and seeds the size/file gauges
// from what is already there. Meta files without a data file are removed.
func NewDLQManager(cfg config.Config, m *metrics.Metrics, uploader *S3Uploader) (*DLQManager, error) {
	if err := os.MkdirAll(cfg.DLQDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq dir: %w", err)
	}

	d := &DLQManager{
		cfg:      cfg,
		metrics:  m,
		uploader: uploader,
	}

	entries, err := os.ReadDir(cfg.DLQDir)
	if err != nil {
		return nil, fmt.Errorf("scan dlq dir: %w", err)
	}

	var total, count int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()

		if strings.HasSuffix(name, metaSuffix) {
			dataName := strings.TrimSuffix(name, metaSuffix)
			if _, err := os.Stat(filepath.Join(cfg.DLQDir, dataName)); os.IsNotExist(err) {
				_ = os.Remove(filepath.Join(cfg.DLQDir, name))
			}
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
			count++
		}
	}

	atomic.StoreInt64(&d.dlqSizeBytes, total)
	atomic.AddInt64(&m.DLQSizeBytes, total)
	atomic.AddInt64(&m.DLQFilesCurrent, count)

	if count > 0 {
		log.Info().Int64("files", count).Int64("bytes", total).Msg("dlq backlog found")
	}
	return d, nil
}

// Save stores a gzip+JSONL batch that could not be uploaded. numRecords
// is written to the meta file so re-uploads can be counted in records.
func (d *DLQManager) Save(data []byte, numRecords int) error {
	if len(data) == 0 || numRecords <= 0 {
		return nil
	}

	size := int64(len(data))
	if !d.ensureCapacity(size) {
		log.Error().Int64("bytes", size).Int("records", numRecords).Msg("dlq full, dropping batch")
		atomic.AddInt64(&d.metrics.DLQRecordsDroppedTotal, int64(numRecords))
		return nil
	}

	dataPath := filepath.Join(d.cfg.DLQDir, NewFilename(d.cfg.InstanceID))
	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		atomic.AddInt64(&d.metrics.DLQRecordsDroppedTotal, int64(numRecords))
		return fmt.Errorf("write dlq file: %w", err)
	}

	meta, _ := json.Marshal(dlqMeta{NumRecords: int64(numRecords)})
	_ = os.WriteFile(dataPath+metaSuffix, meta, 0o600)

	atomic.AddInt64(&d.dlqSizeBytes, size)
	atomic.AddInt64(&d.metrics.DLQSizeBytes, size)
	atomic.AddInt64(&d.metrics.DLQFilesCurrent, 1)
	atomic.AddInt64(&d.metrics.DLQRecordsEnqueuedTotal, int64(numRecords))
	return nil
}

// ensureCapacity deletes the oldest files until incoming fits under
// DLQMaxSizeBytes. It reports false when nothing is left to delete.
func (d *DLQManager) ensureCapacity(incoming int64) bool {
	max := d.cfg.DLQMaxSizeBytes
	if max <= 0 {
		return true
	}
	if incoming > max {
		return false
	}

	for atomic.LoadInt64(&d.dlqSizeBytes)+incoming > max {
		oldest := d.pickOldest()
		if oldest == "" {
			return false
		}
		d.remove(oldest)
		atomic.AddInt64(&d.metrics.DLQFilesExpiredTotal, 1)
		log.Warn().Str("file", oldest).Msg("dlq capacity reached, removed oldest file")
	}
	return true
}

// remove deletes a data file and its meta file and updates the gauges.
func (d *DLQManager) remove(name string) {
	dataPath := filepath.Join(d.cfg.DLQDir, name)
	if info, err := os.Stat(dataPath); err == nil {
		atomic.AddInt64(&d.dlqSizeBytes, -info.Size())
		atomic.AddInt64(&d.metrics.DLQSizeBytes, -info.Size())
	}
	_ = os.Remove(dataPath)
	_ = os.Remove(dataPath + metaSuffix)
	atomic.AddInt64(&d.metrics.DLQFilesCurrent, -1)
}

// ProcessOneCtx handles the oldest DLQ file: expires it past DLQMaxAge,
// otherwise re-uploads it and removes it on success. It reports whether
// a file was handled.
func (d *DLQManager) ProcessOneCtx(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	name := d.pickOldest()
	if name == "" {
		return false
	}
	dataPath := filepath.Join(d.cfg.DLQDir, name)

	info, err := os.Stat(dataPath)
	if err != nil {
		_ = os.Remove(dataPath + metaSuffix)
		return false
	}
	size := info.Size()

	// --- TTL from the file name ---
	if d.cfg.DLQMaxAge > 0 {
		if sec, ok := extractUnixFromFilename(name); ok {
			age := time.Duration(Unix()-sec) * time.Second
			if age > d.cfg.DLQMaxAge {
				d.remove(name)
				atomic.AddInt64(&d.metrics.DLQFilesExpiredTotal, 1)
				log.Info().Str("file", name).Dur("age", age).Msg("dlq file expired")
				return true
			}
		}
	}

	if ctx.Err() != nil {
		return false
	}

	f, err := os.Open(dataPath)
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("dlq open failed")
		return false
	}
	defer f.Close()

	prefix := d.cfg.AuditPrefix
	valid := validateFile(f, size)
	if !valid {
		prefix = d.cfg.AuditDLQPrefix
	}
	key := BuildS3Key(prefix, name)

	if err := d.uploader.UploadFileWithRetryCtx(ctx, key, f, size); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dlq re-upload failed")
		return false
	}

	numRecords := int64(1)
	if raw, err := os.ReadFile(dataPath + metaSuffix); err == nil {
		var meta dlqMeta
		if json.Unmarshal(raw, &meta) == nil && meta.NumRecords > 0 {
			numRecords = meta.NumRecords
		}
	}

	_ = f.Close()
	d.remove(name)
	atomic.AddInt64(&d.metrics.DLQRecordsReuploadedTotal, numRecords)

	log.Info().Str("key", key).Int64("records", numRecords).Bool("valid", valid).Msg("dlq re-upload succeeded")
	return true
}

// validateFile reports whether f is gzip whose first line is a JSON object.
func validateFile(f io.ReadSeeker, size int64) bool {
	if size <= 0 {
		return false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	defer gz.Close()

	line, err := bufio.NewReader(gz).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return false
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}

	var tmp map[string]any
	return json.Unmarshal(line, &tmp) == nil
}

// pickOldest returns the lexicographically smallest data file name, which
// is the oldest because names start with the epoch second. ReadDir order
// is not relied upon.
func (d *DLQManager) pickOldest() string {
	entries, err := os.ReadDir(d.cfg.DLQDir)
	if err != nil {
		return ""
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, metaSuffix) || name == "" || name[0] == '.' {
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return ""
	}

	sort.Strings(files)
	return files[0]
}
