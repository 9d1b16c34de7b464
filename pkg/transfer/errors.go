package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/zonestore/pkg/output"
	"github.com/3leaps/zonestore/pkg/provider"
)

// SizeMismatchError indicates the object size changed between listing and
// content retrieval.
//
// It does not eliminate TOCTOU races.
type SizeMismatchError struct {
	Key      string
	Expected int64
	Got      int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("source size mismatch for %s: expected=%d got=%d", e.Key, e.Expected, e.Got)
}

// ExistsError is returned for an existing target key when OnExists is "fail".
type ExistsError struct {
	Key string
}

func (e *ExistsError) Error() string {
	return "target exists: " + e.Key
}

// SourceVanishedError reports a listed key that was gone by the time it was
// read.
type SourceVanishedError struct {
	Key string
}

func (e *SourceVanishedError) Error() string {
	return "source disappeared after listing: " + e.Key
}

func (e *SourceVanishedError) Unwrap() error {
	return provider.ErrNotFound
}

func classifyErrCode(err error) string {
	var exists *ExistsError
	switch {
	case errors.As(err, &exists):
		return output.ErrCodeExists
	case isSizeMismatch(err):
		// A stale listing; treat as NOT_FOUND to keep the taxonomy small.
		return output.ErrCodeNotFound
	case provider.IsNotFound(err):
		return output.ErrCodeNotFound
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return output.ErrCodeAccessDenied
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled
	case provider.IsPreserveRoot(err):
		return output.ErrCodePreserveRoot
	case provider.IsInputValidation(err):
		return output.ErrCodeInvalidArgument
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeTimeout
	default:
		return output.ErrCodeBackend
	}
}

func isSizeMismatch(err error) bool {
	var target *SizeMismatchError
	return errors.As(err, &target)
}
