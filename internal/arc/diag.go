package arc

import (
	"log/slog"
	"sync/atomic"
)

// Diagnostics collects non-fatal anomalies observed while reading one
// archive. It is scoped to the archive, never process-wide, so one
// noisy container does not pollute counts for another.
type Diagnostics struct {
	warnings atomic.Int64
}

// Warn records one anomaly and logs it.
func (d *Diagnostics) Warn(msg string, args ...any) {
	d.warnings.Add(1)
	slog.Warn(msg, args...)
}

// Warnings returns the number of anomalies recorded so far.
func (d *Diagnostics) Warnings() int64 {
	return d.warnings.Load()
}
