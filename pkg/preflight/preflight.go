// Package preflight verifies that a store grants the capabilities a command
// is about to rely on, before any data is moved.
package preflight

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/3leaps/zonestore/pkg/output"
	"github.com/3leaps/zonestore/pkg/provider"
)

// Mode defines how aggressive preflight checks are.
type Mode string

const (
	// ModePlanOnly makes no backend calls.
	ModePlanOnly Mode = "plan-only"

	// ModeReadSafe lists and probes for a key but never writes.
	ModeReadSafe Mode = "read-safe"

	// ModeWriteProbe additionally writes, reads back and removes a probe key.
	ModeWriteProbe Mode = "write-probe"
)

// ParseMode parses a mode name. The empty string selects ModeReadSafe.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeReadSafe, nil
	case ModePlanOnly, ModeReadSafe, ModeWriteProbe:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown preflight mode %q (expected plan-only, read-safe or write-probe)", s)
}

// Capability names are stable strings used in JSONL output.
const (
	CapList   = "list"
	CapRead   = "read"
	CapWrite  = "write"
	CapDelete = "delete"
)

// DefaultProbePrefix is the directory probe keys are written under.
const DefaultProbePrefix = "/.zonestore-probe/"

// ErrProbeMismatch is returned when a probe key reads back different bytes.
var ErrProbeMismatch = errors.New("probe read back different content")

// Spec controls how preflight checks are executed.
type Spec struct {
	Mode Mode

	// Role labels the store in the report, e.g. "source" or "target".
	Role string

	// Prefix is the directory the command will work in.
	Prefix string

	// ProbePrefix is where write probes go. Empty means DefaultProbePrefix.
	ProbePrefix string
}

// Check runs the checks selected by spec.Mode against store.
//
// Ordering is fail-fast: list, then read, then the write probe. The returned
// record holds every check that ran, including the failing one.
func Check(ctx context.Context, store provider.Store, spec Spec) (*output.PreflightRecord, error) {
	rec := &output.PreflightRecord{
		Mode:    string(spec.Mode),
		Role:    spec.Role,
		Prefix:  provider.NormalizePrefix(spec.Prefix),
		Results: []output.PreflightCheckResult{},
	}
	if spec.Mode == ModePlanOnly {
		return rec, nil
	}

	method := fmt.Sprintf("List(prefix=%q,limit=1)", rec.Prefix)
	_, err := store.List(ctx, provider.ListOptions{Prefix: rec.Prefix, Limit: provider.Limit(1)})
	if provider.IsNotFound(err) {
		// A directory that does not exist yet is still listable.
		err = nil
	}
	if !record(rec, CapList, method, err) {
		return rec, err
	}

	probeKey := rec.Prefix + ".zonestore-preflight-" + uuid.NewString()
	_, err = store.Has(ctx, probeKey)
	if !record(rec, CapRead, "Has(random)", err) {
		return rec, err
	}

	if spec.Mode == ModeWriteProbe {
		return rec, writeProbe(ctx, store, spec, rec)
	}
	return rec, nil
}

// WriteProbe writes a small probe key, reads it back and removes it.
func WriteProbe(ctx context.Context, store provider.Store, spec Spec) (*output.PreflightRecord, error) {
	rec := &output.PreflightRecord{
		Mode:    string(ModeWriteProbe),
		Role:    spec.Role,
		Prefix:  provider.NormalizePrefix(probePrefix(spec)),
		Results: []output.PreflightCheckResult{},
	}
	return rec, writeProbe(ctx, store, spec, rec)
}

func writeProbe(ctx context.Context, store provider.Store, spec Spec, rec *output.PreflightRecord) error {
	key := provider.NormalizePrefix(probePrefix(spec)) + "probe-" + uuid.NewString()
	data := []byte("zonestore preflight " + key)

	err := store.Set(ctx, key, &provider.File{Name: provider.BaseName(key), ContentType: "text/plain", Data: data})
	if !record(rec, CapWrite, "Set(probe)", err) {
		return err
	}

	got, err := store.Get(ctx, key)
	if err == nil && (got == nil || provider.Checksum(got.Data) != provider.Checksum(data)) {
		err = fmt.Errorf("%w: %s", ErrProbeMismatch, key)
	}
	readOK := record(rec, CapRead, "Get(probe)", err)

	// The probe is removed even when the read back failed.
	rmErr := store.Remove(ctx, key)
	if !record(rec, CapDelete, "Remove(probe)", rmErr) {
		return rmErr
	}
	if !readOK {
		return err
	}
	return nil
}

func probePrefix(spec Spec) string {
	if spec.ProbePrefix == "" {
		return DefaultProbePrefix
	}
	return spec.ProbePrefix
}

// record appends the outcome of one check and reports whether it passed.
func record(rec *output.PreflightRecord, capability, method string, err error) bool {
	res := output.PreflightCheckResult{Capability: capability, Allowed: err == nil, Method: method}
	if err != nil {
		res.ErrorCode = ErrorCode(err)
		res.Detail = err.Error()
	}
	rec.Results = append(rec.Results, res)
	return err == nil
}

// ErrorCode maps a store error onto an output error code.
func ErrorCode(err error) string {
	switch {
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return output.ErrCodeAccessDenied
	case provider.IsBucketNotFound(err), provider.IsNotFound(err):
		return output.ErrCodeNotFound
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled
	case provider.IsPreserveRoot(err):
		return output.ErrCodePreserveRoot
	case provider.IsInputValidation(err):
		return output.ErrCodeInvalidArgument
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeTimeout
	}
	return output.ErrCodeBackend
}
