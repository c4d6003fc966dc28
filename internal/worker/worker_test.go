package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"inspector-report/internal/config"
	"inspector-report/internal/metrics"
	"inspector-report/internal/model"
	"inspector-report/internal/pool"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		InstanceID:         "test-1",
		AuditBucket:        "audit-bucket",
		AuditPrefix:        "audit",
		AuditDLQPrefix:     "audit_dlq",
		S3Timeout:          time.Second,
		S3AppRetries:       2,
		AuditChannelSize:   8,
		AuditUploadQueue:   2,
		AuditBatchSize:     3,
		AuditFlushInterval: time.Hour,
		DLQDir:             filepath.Join(t.TempDir(), "dlq"),
		DLQMaxAge:          time.Hour,
		DLQMaxSizeBytes:    1 << 20,
	}
}

func newRecord(id string) *model.AuditRecord {
	rec := pool.GetAudit()
	rec.ID = id
	rec.RequestedAt = "2024-01-05T10:00:00Z"
	rec.EventCount = 3
	rec.Product = "ga4-inspector"
	return rec
}

// fakePutter records PutObject calls and fails while fail is set.
type fakePutter struct {
	mu     sync.Mutex
	fail   bool
	calls  int
	keys   []string
	bodies [][]byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("s3 unavailable")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.keys = append(f.keys, *in.Key)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

// recordingSink keeps the ids it saw; records are recycled after Write.
type recordingSink struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, records []*model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.ids = append(s.ids, r.ID)
	}
	return s.err
}

func (s *recordingSink) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func decodeJSONLGZ(t *testing.T, data []byte) []model.AuditRecord {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	defer gz.Close()

	var out []model.AuditRecord
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		var r model.AuditRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestEncodeBatchJSONLGZ(t *testing.T) {
	recs := []*model.AuditRecord{newRecord("a"), newRecord("b")}
	data, err := NewEncoder().EncodeBatchJSONLGZ(recs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := decodeJSONLGZ(t, data)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" || got[1].Product != "ga4-inspector" {
		t.Fatalf("decoded %+v", got)
	}
}

func TestFilenameAndKey(t *testing.T) {
	a := NewFilename("host/1")
	b := NewFilename("host/1")
	if a == b {
		t.Fatal("names must be unique")
	}
	if !strings.HasSuffix(a, ".jsonl.gz") || strings.Contains(a, "/") {
		t.Fatalf("bad name %q", a)
	}
	if sec, ok := extractUnixFromFilename(a); !ok || sec != Unix() && sec != Unix()-1 {
		t.Fatalf("unix prefix of %q = %d", a, sec)
	}

	key := BuildS3Key("audit/", a)
	if !strings.HasPrefix(key, "audit/dt="+DT()+"/hr=") || !strings.HasSuffix(key, "/"+a) {
		t.Fatalf("bad key %q", key)
	}
}

func TestUploaderRetries(t *testing.T) {
	cfg := testConfig(t)
	cfg.S3AppRetries = 3
	m := metrics.New()
	putter := &fakePutter{fail: true}
	u := NewS3Uploader(cfg, m, putter)
	u.backoff = time.Millisecond

	if err := u.UploadBytesWithRetryCtx(context.Background(), "k", []byte("x")); err == nil {
		t.Fatal("expected an error")
	}
	if putter.calls != 3 || atomic.LoadInt64(&m.S3PutErrorsTotal) != 3 {
		t.Fatalf("calls %d errors %d", putter.calls, m.S3PutErrorsTotal)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := u.UploadBytesWithRetryCtx(ctx, "k", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestManagerBatchesAndFlushesOnShutdown(t *testing.T) {
	cfg := testConfig(t)
	m := metrics.New()
	sink := &recordingSink{}
	mgr := NewManager(cfg, m, sink)
	mgr.Start()

	for i := 0; i < 7; i++ {
		if !mgr.Enqueue(newRecord(fmt.Sprintf("r%d", i))) {
			t.Fatalf("enqueue %d dropped", i)
		}
	}
	if err := mgr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	got := sink.seen()
	if len(got) != 7 {
		t.Fatalf("sink saw %v", got)
	}
	for i, id := range got {
		if id != fmt.Sprintf("r%d", i) {
			t.Fatalf("order: %v", got)
		}
	}

	if mgr.Enqueue(newRecord("late")) {
		t.Fatal("enqueue after shutdown must drop")
	}
	if atomic.LoadInt64(&m.AuditEnqueuedTotal) != 7 || atomic.LoadInt64(&m.AuditDroppedTotal) != 1 {
		t.Fatalf("enqueued %d dropped %d", m.AuditEnqueuedTotal, m.AuditDroppedTotal)
	}
	// second call is a no-op
	if err := mgr.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestManagerFlushInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuditBatchSize = 100
	cfg.AuditFlushInterval = 20 * time.Millisecond
	sink := &recordingSink{}
	mgr := NewManager(cfg, metrics.New(), sink)
	mgr.Start()
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	mgr.Enqueue(newRecord("only"))

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.seen()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timer flush never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerEnqueueNeverBlocks(t *testing.T) {
	cfg := testConfig(t)
	cfg.AuditChannelSize = 1
	m := metrics.New()
	mgr := NewManager(cfg, m) // not started: nothing drains auditCh

	if !mgr.Enqueue(newRecord("a")) {
		t.Fatal("first enqueue must fit")
	}
	if mgr.Enqueue(newRecord("b")) {
		t.Fatal("full queue must drop")
	}
	if atomic.LoadInt64(&m.AuditDroppedTotal) != 1 {
		t.Fatalf("dropped %d", m.AuditDroppedTotal)
	}
}

func TestManagerSinkErrorDoesNotStopOthers(t *testing.T) {
	cfg := testConfig(t)
	bad := &recordingSink{err: errors.New("boom")}
	good := &recordingSink{}
	mgr := NewManager(cfg, metrics.New(), bad, good)
	mgr.Start()

	mgr.Enqueue(newRecord("x"))
	if err := mgr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(good.seen()) != 1 || len(bad.seen()) != 1 {
		t.Fatalf("good %v bad %v", good.seen(), bad.seen())
	}
}

func TestS3SinkUploadsAndFallsBackToDLQ(t *testing.T) {
	cfg := testConfig(t)
	m := metrics.New()
	putter := &fakePutter{}
	sink, err := NewS3Sink(cfg, m, putter)
	if err != nil {
		t.Fatalf("NewS3Sink: %v", err)
	}
	sink.uploader.backoff = time.Millisecond
	ctx := context.Background()

	// 1) success
	if err := sink.Write(ctx, []*model.AuditRecord{newRecord("a"), newRecord("b")}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(putter.keys) != 1 || !strings.HasPrefix(putter.keys[0], "audit/dt=") {
		t.Fatalf("keys %v", putter.keys)
	}
	if got := decodeJSONLGZ(t, putter.bodies[0]); len(got) != 2 {
		t.Fatalf("uploaded %d records", len(got))
	}
	if atomic.LoadInt64(&m.S3RecordsStoredTotal) != 2 {
		t.Fatalf("stored %d", m.S3RecordsStoredTotal)
	}

	// 2) S3 down → DLQ
	putter.setFail(true)
	if err := sink.Write(ctx, []*model.AuditRecord{newRecord("c")}); err == nil {
		t.Fatal("expected the upload error")
	}
	if atomic.LoadInt64(&m.DLQFilesCurrent) != 1 || atomic.LoadInt64(&m.DLQRecordsEnqueuedTotal) != 1 {
		t.Fatalf("dlq files %d records %d", m.DLQFilesCurrent, m.DLQRecordsEnqueuedTotal)
	}

	// 3) S3 back → Idle drains the DLQ
	putter.setFail(false)
	sink.Idle(ctx)
	if atomic.LoadInt64(&m.DLQFilesCurrent) != 0 || atomic.LoadInt64(&m.DLQRecordsReuploadedTotal) != 1 {
		t.Fatalf("dlq files %d reuploaded %d", m.DLQFilesCurrent, m.DLQRecordsReuploadedTotal)
	}
	last := putter.keys[len(putter.keys)-1]
	if !strings.HasPrefix(last, "audit/dt=") {
		t.Fatalf("re-upload key %q", last)
	}
	if atomic.LoadInt64(&m.DLQSizeBytes) != 0 {
		t.Fatalf("dlq size %d", m.DLQSizeBytes)
	}
}

func TestDLQExpiresOldFiles(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.DLQDir, 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(cfg.DLQDir, "1_old_000001.jsonl.gz")
	if err := os.WriteFile(old, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.DLQDir, "2_orphan_000001.jsonl.gz"+metaSuffix), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	putter := &fakePutter{}
	d, err := NewDLQManager(cfg, m, NewS3Uploader(cfg, m, putter))
	if err != nil {
		t.Fatalf("NewDLQManager: %v", err)
	}
	if atomic.LoadInt64(&m.DLQFilesCurrent) != 1 || atomic.LoadInt64(&m.DLQSizeBytes) != 4 {
		t.Fatalf("seeded files %d bytes %d", m.DLQFilesCurrent, m.DLQSizeBytes)
	}
	if _, err := os.Stat(filepath.Join(cfg.DLQDir, "2_orphan_000001.jsonl.gz"+metaSuffix)); !os.IsNotExist(err) {
		t.Fatal("orphan meta file must be removed")
	}

	if !d.ProcessOneCtx(context.Background()) {
		t.Fatal("expected the old file to be handled")
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expired file still present")
	}
	if putter.calls != 0 {
		t.Fatal("expired files are not uploaded")
	}
	if atomic.LoadInt64(&m.DLQFilesExpiredTotal) != 1 || atomic.LoadInt64(&m.DLQFilesCurrent) != 0 {
		t.Fatalf("expired %d current %d", m.DLQFilesExpiredTotal, m.DLQFilesCurrent)
	}
}

func TestDLQInvalidFileGoesToDLQPrefix(t *testing.T) {
	cfg := testConfig(t)
	m := metrics.New()
	putter := &fakePutter{}
	d, err := NewDLQManager(cfg, m, NewS3Uploader(cfg, m, putter))
	if err != nil {
		t.Fatalf("NewDLQManager: %v", err)
	}
	name := fmt.Sprintf("%d_x_000001.jsonl.gz", Unix())
	if err := os.WriteFile(filepath.Join(cfg.DLQDir, name), []byte("not gzip"), 0o600); err != nil {
		t.Fatal(err)
	}

	if !d.ProcessOneCtx(context.Background()) {
		t.Fatal("expected a re-upload")
	}
	if len(putter.keys) != 1 || !strings.HasPrefix(putter.keys[0], "audit_dlq/") {
		t.Fatalf("keys %v", putter.keys)
	}
}

func TestDLQCapacityRemovesOldest(t *testing.T) {
	cfg := testConfig(t)
	cfg.DLQMaxSizeBytes = 100
	m := metrics.New()
	d, err := NewDLQManager(cfg, m, NewS3Uploader(cfg, m, &fakePutter{}))
	if err != nil {
		t.Fatalf("NewDLQManager: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 60)
	if err := d.Save(chunk, 1); err != nil {
		t.Fatal(err)
	}
	first := d.pickOldest()
	if err := d.Save(chunk, 1); err != nil {
		t.Fatal(err)
	}

	if d.pickOldest() == first {
		t.Fatal("oldest file should have made room")
	}
	if atomic.LoadInt64(&m.DLQFilesCurrent) != 1 || atomic.LoadInt64(&m.DLQFilesExpiredTotal) != 1 {
		t.Fatalf("files %d expired %d", m.DLQFilesCurrent, m.DLQFilesExpiredTotal)
	}

	// larger than the whole DLQ: dropped
	if err := d.Save(bytes.Repeat([]byte("y"), 200), 4); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt64(&m.DLQRecordsDroppedTotal) != 4 {
		t.Fatalf("dropped %d", m.DLQRecordsDroppedTotal)
	}
}
