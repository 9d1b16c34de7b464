// Package output writes newline-delimited JSON records for CLI results.
//
// Each line is a typed envelope with a payload in Data, so a stream can mix
// entries, per-file results, errors and a closing summary.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record types, named zonestore.<type>.v<version>.
const (
	// TypeEntry identifies listing entries.
	TypeEntry = "zonestore.entry.v1"

	// TypeResult identifies per-key results of put and rm.
	TypeResult = "zonestore.result.v1"

	// TypeError identifies error records.
	TypeError = "zonestore.error.v1"

	// TypeSkip identifies keys a sync left untouched.
	TypeSkip = "zonestore.skip.v1"

	// TypePreflight identifies preflight capability reports.
	TypePreflight = "zonestore.preflight.v1"

	// TypeSummary identifies the final summary record.
	TypeSummary = "zonestore.summary.v1"
)

// Record is the envelope for every JSONL line.
type Record struct {
	Type    string          `json:"type"`
	TS      time.Time       `json:"ts"`
	RunID   string          `json:"run_id"`
	Backend string          `json:"backend"`
	Data    json.RawMessage `json:"data"`
}

// EntryRecord is one listed file.
type EntryRecord struct {
	Key          string     `json:"key"`
	Name         string     `json:"name,omitempty"`
	Size         *int64     `json:"size,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	ContentType  string     `json:"content_type,omitempty"`
}

// ResultRecord reports one key written or removed.
type ResultRecord struct {
	Op       string `json:"op"`
	Key      string `json:"key"`
	Source   string `json:"source,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// SkipRecord reports a source key that was not copied.
type SkipRecord struct {
	Op        string `json:"op"`
	SourceKey string `json:"source_key"`
	TargetKey string `json:"target_key"`
	Reason    string `json:"reason"`
}

// PreflightRecord reports which capabilities were verified against a store.
type PreflightRecord struct {
	Mode    string                 `json:"mode"`
	Role    string                 `json:"role,omitempty"`
	Prefix  string                 `json:"prefix,omitempty"`
	Results []PreflightCheckResult `json:"results"`
}

// PreflightCheckResult is the outcome of one capability check.
type PreflightCheckResult struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	Method     string `json:"method"`
	ErrorCode  string `json:"error_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Failed reports whether any check was denied.
func (r *PreflightRecord) Failed() bool {
	for _, res := range r.Results {
		if !res.Allowed {
			return true
		}
	}
	return false
}

// ErrorRecord reports a failure for one key.
type ErrorRecord struct {
	Op      string `json:"op"`
	Key     string `json:"key,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SummaryRecord closes a stream.
type SummaryRecord struct {
	Op       string `json:"op"`
	Count    int64  `json:"count"`
	Skipped  int64  `json:"skipped,omitempty"`
	Bytes    int64  `json:"bytes,omitempty"`
	Errors   int64  `json:"errors"`
	Cursor   string `json:"cursor,omitempty"`
	Duration string `json:"duration"`
}

// Error codes used in ErrorRecord.Code.
const (
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodePreserveRoot    = "PRESERVE_ROOT"
	ErrCodeAccessDenied    = "ACCESS_DENIED"
	ErrCodeThrottled       = "THROTTLED"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeExists          = "TARGET_EXISTS"
	ErrCodeBackend         = "BACKEND_ERROR"
	ErrCodeLocalIO         = "LOCAL_IO"
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// WriteError wraps marshal and write failures.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return "output " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
