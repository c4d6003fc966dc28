// internal/worker/file_util.go
package worker

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// file_util.go
// ------------------------------------------------------------
// Naming for audit objects and local DLQ files. Both use
//
//	<unix>_<instance>_<counter>.jsonl.gz
//
// e.g. 1764721594_report-1_000042.jsonl.gz
//
// Lexicographic order is time order, which the DLQ relies on to
// re-upload the oldest file first and to read its TTL.
var globalCounter uint64

// NextCounter returns a process-wide sequence number that wraps at 1e6.
// Together with the timestamp and instance id it keeps names unique.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// NewFilename returns a fresh "<unix>_<instance>_<counter>.jsonl.gz" name.
func NewFilename(instanceID string) string {
	return fmt.Sprintf("%d_%s_%06d.jsonl.gz", Unix(), sanitizeInstance(instanceID), NextCounter())
}

// BuildS3Key places filename under a Hive-style partition:
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<filename>
func BuildS3Key(prefix, filename string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", prefix, DT(), HR(), filename)
}

// extractUnixFromFilename parses the leading "<unix>_" of a DLQ file name.
func extractUnixFromFilename(name string) (int64, bool) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	sec, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil || sec <= 0 {
		return 0, false
	}
	return sec, true
}

// sanitizeInstance keeps instance ids from breaking the name layout.
func sanitizeInstance(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '-'
	}, id)
}
