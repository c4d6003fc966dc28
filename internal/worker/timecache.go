// internal/worker/timecache.go
package worker

import (
	"sync/atomic"
	"time"
)

//
// timecache.go
// ------------------------------------------------------------
// Current epoch seconds and the UTC date/hour partition, refreshed once a
// second so object names and DLQ TTL checks do not call time.Now() on
// every batch.
//
// Used by:
//   - NewFilename (<unix>_...)
//   - BuildS3Key (dt=YYYY-MM-DD / hr=HH)
//   - DLQ TTL
// ------------------------------------------------------------

var (
	unixSec atomic.Int64

	dtVal atomic.Value // "YYYY-MM-DD", UTC
	hrVal atomic.Value // "HH", UTC
)

func init() {
	store(time.Now())

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for now := range ticker.C {
			store(now)
		}
	}()
}

func store(now time.Time) {
	utc := now.UTC()
	unixSec.Store(utc.Unix())
	dtVal.Store(utc.Format("2006-01-02"))
	hrVal.Store(utc.Format("15"))
}

// Unix returns current epoch seconds (cached, 1-second precision).
func Unix() int64 {
	return unixSec.Load()
}

// DT returns "YYYY-MM-DD" in UTC.
func DT() string {
	return dtVal.Load().(string)
}

// HR returns "HH" in UTC.
func HR() string {
	return hrVal.Load().(string)
}
