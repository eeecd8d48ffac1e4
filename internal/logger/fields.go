package logger

import "log/slog"

// Standard field keys for structured logging. Use these consistently across
// all log statements so aggregated logs stay queryable.
const (
	// Scan correlation
	KeyScanID  = "scan_id" // identifier of the scan or analyzer run
	KeyTrigger = "trigger" // what started the work: monitor, api, cli

	// Filesystem
	KeyPath       = "path"        // full directory path
	KeyFolder     = "folder"      // directory name (basename)
	KeyDepth      = "depth"       // recursion depth of a subfolder scan
	KeyTotalPaths = "total_paths" // number of paths in a batch

	// Identity
	KeySID       = "sid"       // security identifier string
	KeyPrincipal = "principal" // resolved full name (DOMAIN\name)
	KeyDomain    = "domain"    // NetBIOS domain name

	// Change detection
	KeyChangeType = "change_type" // owner_changed, permission_added, ...
	KeyChecksum   = "checksum"    // snapshot content checksum
	KeySeverity   = "severity"    // low, medium, high, critical

	// Health analysis
	KeyIssueType  = "issue_type" // broken_inheritance, orphaned_sid, ...
	KeyIssueCount = "issues"     // number of issues in a run
	KeyScore      = "score"      // aggregate health score

	// Notifications
	KeySubscriptionID = "subscription_id" // connected client identifier
	KeyUserID         = "user_id"         // authenticated user behind a subscription
	KeyQueueDepth     = "queue_depth"     // pending notification count

	// Operation metadata
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyRequestID  = "request_id"  // HTTP request identifier
)

// Path returns a slog.Attr for a directory path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// SID returns a slog.Attr for a security identifier.
func SID(s string) slog.Attr {
	return slog.String(KeySID, s)
}

// Principal returns a slog.Attr for a resolved principal full name.
func Principal(name string) slog.Attr {
	return slog.String(KeyPrincipal, name)
}

// Severity returns a slog.Attr for a severity level.
func Severity(s string) slog.Attr {
	return slog.String(KeySeverity, s)
}

// SubscriptionID returns a slog.Attr for a notification subscription.
func SubscriptionID(id string) slog.Attr {
	return slog.String(KeySubscriptionID, id)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
