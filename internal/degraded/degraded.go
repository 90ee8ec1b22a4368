// Package degraded decides when the backend is unhealthy from the request
// error rate and probes it until it recovers.
package degraded

import (
	"time"

	"github.com/kjstillabower/certexam-service/internal/traffic"
)

// RecordSuccess records a request the backend served.
func RecordSuccess() {
	traffic.Record(traffic.Success)
}

// RecordError records a request that failed because of the backend.
func RecordError() {
	traffic.Record(traffic.Error)
}

// ErrorRate returns (errorCount, totalCount) within the window.
func ErrorRate(window time.Duration) (errors, total int) {
	return traffic.ErrorRate(window)
}

// IsDegraded reports whether the error share within window reached
// thresholdPct. An empty window is never degraded.
func IsDegraded(window time.Duration, thresholdPct int) bool {
	if window <= 0 || thresholdPct <= 0 {
		return false
	}
	errs, total := ErrorRate(window)
	if total == 0 {
		return false
	}
	return errs*100 >= thresholdPct*total
}

// Reset clears all recorded outcomes.
func Reset() {
	traffic.Reset()
}
