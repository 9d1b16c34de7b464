package match

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/zonestore/pkg/provider"
)

// Filter evaluates whether a listed entry passes filter criteria.
type Filter interface {
	// Match returns true if the entry passes the filter.
	Match(entry provider.ListEntry) bool

	// RequiresMetadata returns true if the filter reads entry.Metadata, so
	// the listing must be requested with IncludeMetadata.
	RequiresMetadata() bool

	// String returns a human-readable description of the filter.
	String() string
}

// FilterConfig holds filter criteria from CLI flags or query parameters.
type FilterConfig struct {
	// MinSize and MaxSize bound the file size (inclusive). Human-readable
	// values such as "1KB" or "100MiB" are accepted.
	MinSize string `json:"min_size,omitempty" yaml:"min_size,omitempty"`
	MaxSize string `json:"max_size,omitempty" yaml:"max_size,omitempty"`

	// After (inclusive) and Before (exclusive) bound the modification time.
	// ISO 8601 dates or datetimes.
	After  string `json:"after,omitempty" yaml:"after,omitempty"`
	Before string `json:"before,omitempty" yaml:"before,omitempty"`

	// KeyRegex is applied to the full key.
	KeyRegex string `json:"key_regex,omitempty" yaml:"key_regex,omitempty"`
}

// Filter errors.
var (
	ErrInvalidSize  = errors.New("invalid size value")
	ErrInvalidDate  = errors.New("invalid date value")
	ErrInvalidRegex = errors.New("invalid regex pattern")
)

// SizeFilter filters entries by size range.
type SizeFilter struct {
	min int64 // -1 means no minimum
	max int64 // -1 means no maximum
}

// NewSizeFilter creates a size filter. Returns nil if neither bound is set.
func NewSizeFilter(minSize, maxSize string) (*SizeFilter, error) {
	if minSize == "" && maxSize == "" {
		return nil, nil
	}

	f := &SizeFilter{min: -1, max: -1}
	if minSize != "" {
		size, err := ParseSize(minSize)
		if err != nil {
			return nil, fmt.Errorf("min size: %w", err)
		}
		f.min = size
	}
	if maxSize != "" {
		size, err := ParseSize(maxSize)
		if err != nil {
			return nil, fmt.Errorf("max size: %w", err)
		}
		f.max = size
	}
	if f.min >= 0 && f.max >= 0 && f.min > f.max {
		return nil, fmt.Errorf("%w: min (%d) > max (%d)", ErrInvalidSize, f.min, f.max)
	}
	return f, nil
}

// Match returns true if the entry size is within range. Entries without
// metadata never match.
func (f *SizeFilter) Match(entry provider.ListEntry) bool {
	if entry.Metadata == nil {
		return false
	}
	size := entry.Metadata.Size
	if f.min >= 0 && size < f.min {
		return false
	}
	if f.max >= 0 && size > f.max {
		return false
	}
	return true
}

func (f *SizeFilter) RequiresMetadata() bool { return true }

func (f *SizeFilter) String() string {
	switch {
	case f.min >= 0 && f.max >= 0:
		return fmt.Sprintf("size: %s - %s", FormatSize(f.min), FormatSize(f.max))
	case f.min >= 0:
		return fmt.Sprintf("size: >= %s", FormatSize(f.min))
	case f.max >= 0:
		return fmt.Sprintf("size: <= %s", FormatSize(f.max))
	default:
		return "size: any"
	}
}

// DateFilter filters entries by modification time.
type DateFilter struct {
	after  time.Time // zero means no after constraint
	before time.Time // zero means no before constraint
}

// NewDateFilter creates a date filter. Returns nil if neither bound is set.
func NewDateFilter(after, before string) (*DateFilter, error) {
	if after == "" && before == "" {
		return nil, nil
	}

	f := &DateFilter{}
	if after != "" {
		t, err := ParseDate(after)
		if err != nil {
			return nil, fmt.Errorf("after date: %w", err)
		}
		f.after = t
	}
	if before != "" {
		t, err := ParseDate(before)
		if err != nil {
			return nil, fmt.Errorf("before date: %w", err)
		}
		f.before = t
	}
	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return nil, fmt.Errorf("%w: after (%s) >= before (%s)", ErrInvalidDate, f.after, f.before)
	}
	return f, nil
}

// Match returns true if the modification time is within range. Entries
// without metadata never match.
func (f *DateFilter) Match(entry provider.ListEntry) bool {
	if entry.Metadata == nil {
		return false
	}
	mod := entry.Metadata.ModTime()
	if !f.after.IsZero() && mod.Before(f.after) {
		return false
	}
	if !f.before.IsZero() && !mod.Before(f.before) {
		return false
	}
	return true
}

func (f *DateFilter) RequiresMetadata() bool { return true }

func (f *DateFilter) String() string {
	switch {
	case !f.after.IsZero() && !f.before.IsZero():
		return fmt.Sprintf("modified: %s to %s", f.after.Format("2006-01-02"), f.before.Format("2006-01-02"))
	case !f.after.IsZero():
		return fmt.Sprintf("modified: on/after %s", f.after.Format("2006-01-02"))
	case !f.before.IsZero():
		return fmt.Sprintf("modified: before %s", f.before.Format("2006-01-02"))
	default:
		return "modified: any"
	}
}

// RegexFilter filters entries by key pattern.
type RegexFilter struct {
	pattern *regexp.Regexp
}

// NewRegexFilter compiles pattern. Returns nil if pattern is empty.
func NewRegexFilter(pattern string) (*RegexFilter, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}
	return &RegexFilter{pattern: re}, nil
}

func (f *RegexFilter) Match(entry provider.ListEntry) bool {
	return f.pattern.MatchString(entry.Key)
}

func (f *RegexFilter) RequiresMetadata() bool { return false }

func (f *RegexFilter) String() string {
	return "key_regex: " + f.pattern.String()
}

// CompositeFilter combines filters with AND semantics.
type CompositeFilter struct {
	filters []Filter
}

// NewFilterFromConfig builds the filters named by cfg. Returns nil if none
// are configured.
func NewFilterFromConfig(cfg FilterConfig) (*CompositeFilter, error) {
	var filters []Filter

	sizeFilter, err := NewSizeFilter(cfg.MinSize, cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	if sizeFilter != nil {
		filters = append(filters, sizeFilter)
	}

	dateFilter, err := NewDateFilter(cfg.After, cfg.Before)
	if err != nil {
		return nil, err
	}
	if dateFilter != nil {
		filters = append(filters, dateFilter)
	}

	regexFilter, err := NewRegexFilter(cfg.KeyRegex)
	if err != nil {
		return nil, err
	}
	if regexFilter != nil {
		filters = append(filters, regexFilter)
	}

	if len(filters) == 0 {
		return nil, nil
	}
	return &CompositeFilter{filters: filters}, nil
}

// Match returns true if all filters pass. A nil CompositeFilter matches
// everything.
func (f *CompositeFilter) Match(entry provider.ListEntry) bool {
	if f == nil {
		return true
	}
	for _, filter := range f.filters {
		if !filter.Match(entry) {
			return false
		}
	}
	return true
}

func (f *CompositeFilter) RequiresMetadata() bool {
	if f == nil {
		return false
	}
	for _, filter := range f.filters {
		if filter.RequiresMetadata() {
			return true
		}
	}
	return false
}

func (f *CompositeFilter) String() string {
	if f == nil || len(f.filters) == 0 {
		return "no filters"
	}
	parts := make([]string, len(f.filters))
	for i, filter := range f.filters {
		parts[i] = filter.String()
	}
	return strings.Join(parts, ", ")
}

// Size unit multipliers.
const (
	Byte int64 = 1

	// Base-10 (SI) units
	KB int64 = 1000
	MB int64 = 1000 * KB
	GB int64 = 1000 * MB
	TB int64 = 1000 * GB

	// Base-2 (IEC) units
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// ParseSize parses a human-readable size: raw bytes ("1024"), SI units
// ("1KB" = 1000 bytes) or IEC units ("1KiB" = 1024 bytes), case-insensitive.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidSize
	}

	numEnd := 0
	for i, c := range s {
		if c >= '0' && c <= '9' || c == '.' {
			numEnd = i + 1
		} else {
			break
		}
	}
	if numEnd == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	numStr := s[:numEnd]
	unitStr := strings.TrimSpace(s[numEnd:])

	var multiplier int64
	switch strings.ToUpper(unitStr) {
	case "", "B":
		multiplier = Byte
	case "K", "KB":
		multiplier = KB
	case "M", "MB":
		multiplier = MB
	case "G", "GB":
		multiplier = GB
	case "T", "TB":
		multiplier = TB
	case "KI", "KIB":
		multiplier = KiB
	case "MI", "MIB":
		multiplier = MiB
	case "GI", "GIB":
		multiplier = GiB
	case "TI", "TIB":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSize, unitStr)
	}

	if strings.Contains(numStr, ".") {
		num, err := strconv.ParseFloat(numStr, 64)
		if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
		}
		bytes := num * float64(multiplier)
		if bytes > float64(math.MaxInt64) {
			return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
		}
		return int64(bytes), nil
	}

	n, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	if n > uint64(math.MaxInt64)/uint64(multiplier) {
		return 0, fmt.Errorf("%w: size overflows int64", ErrInvalidSize)
	}
	return int64(n) * multiplier, nil
}

// FormatSize formats bytes using base-2 units.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= TiB:
		return fmt.Sprintf("%.1fTiB", float64(bytes)/float64(TiB))
	case bytes >= GiB:
		return fmt.Sprintf("%.1fGiB", float64(bytes)/float64(GiB))
	case bytes >= MiB:
		return fmt.Sprintf("%.1fMiB", float64(bytes)/float64(MiB))
	case bytes >= KiB:
		return fmt.Sprintf("%.1fKiB", float64(bytes)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// ParseDate parses "2024-01-15" (start of day UTC) or an RFC 3339 datetime.
// The result is in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
