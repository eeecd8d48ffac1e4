package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// scanContextKey is the key for ScanContext in context.Context
var scanContextKey = contextKey{}

// ScanContext holds scan-scoped logging context. A monitor cycle, an API
// triggered scan, and a CLI scan each create one at the entry point and
// thread it through the work they fan out.
type ScanContext struct {
	ScanID    string    // correlation ID for one scan or analyzer run
	Path      string    // root path being scanned
	Trigger   string    // monitor, api, cli
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given ScanContext
func WithContext(ctx context.Context, sc *ScanContext) context.Context {
	return context.WithValue(ctx, scanContextKey, sc)
}

// FromContext retrieves the ScanContext from context, or nil if not present
func FromContext(ctx context.Context) *ScanContext {
	if ctx == nil {
		return nil
	}
	sc, _ := ctx.Value(scanContextKey).(*ScanContext)
	return sc
}

// NewScanContext creates a new ScanContext for the given trigger
func NewScanContext(scanID, trigger string) *ScanContext {
	return &ScanContext{
		ScanID:    scanID,
		Trigger:   trigger,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the ScanContext
func (sc *ScanContext) Clone() *ScanContext {
	if sc == nil {
		return nil
	}
	return &ScanContext{
		ScanID:    sc.ScanID,
		Path:      sc.Path,
		Trigger:   sc.Trigger,
		StartTime: sc.StartTime,
	}
}

// WithPath returns a copy with the path set
func (sc *ScanContext) WithPath(path string) *ScanContext {
	clone := sc.Clone()
	if clone != nil {
		clone.Path = path
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (sc *ScanContext) DurationMs() float64 {
	if sc == nil || sc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(sc.StartTime).Microseconds()) / 1000.0
}
