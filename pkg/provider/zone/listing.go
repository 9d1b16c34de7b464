package zone

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"strings"
	"time"

	"github.com/3leaps/zonestore/pkg/provider"
)

// listingEntry is one element of a directory listing after validation.
//
// The backend is untrusted: every field is optional at the parse boundary
// and only type-checked values reach this struct.
type listingEntry struct {
	IsDirectory bool
	Path        string
	ObjectName  string
	ContentType string
	Length      int64
	LastChanged time.Time
}

// Key returns the storage key of the entry.
func (e listingEntry) Key() string {
	return e.Path + e.ObjectName
}

func (e listingEntry) toListEntry(includeMetadata bool) provider.ListEntry {
	out := provider.ListEntry{Key: e.Key()}
	if includeMetadata {
		var modified int64
		if !e.LastChanged.IsZero() {
			modified = e.LastChanged.UnixMilli()
		}
		out.Metadata = &provider.FileMetadata{
			Name:         e.ObjectName,
			LastModified: modified,
			Size:         e.Length,
			ContentType:  e.ContentType,
		}
	}
	return out
}

// isJSONContentType accepts application/json and any +json media type.
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// decodeListing parses and validates a listing body. Any invalid entry fails
// the whole listing.
func decodeListing(r io.Reader) ([]listingEntry, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &provider.ResponseValidationError{Index: -1, Expected: "JSON array", Actual: "malformed JSON"}
	}

	items, ok := doc.([]any)
	if !ok {
		return nil, &provider.ResponseValidationError{Index: -1, Expected: "array", Actual: jsonType(doc)}
	}

	entries := make([]listingEntry, 0, len(items))
	for i, item := range items {
		entry, err := validateEntry(i, item)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func validateEntry(index int, item any) (listingEntry, error) {
	var entry listingEntry

	obj, ok := item.(map[string]any)
	if !ok {
		return entry, &provider.ResponseValidationError{Index: index, Expected: "object", Actual: jsonType(item)}
	}

	var err error
	if entry.IsDirectory, err = field[bool](obj, index, "IsDirectory", "boolean"); err != nil {
		return entry, err
	}
	if entry.Path, err = field[string](obj, index, "Path", "string"); err != nil {
		return entry, err
	}
	if entry.ObjectName, err = field[string](obj, index, "ObjectName", "string"); err != nil {
		return entry, err
	}
	if entry.ContentType, err = field[string](obj, index, "ContentType", "string"); err != nil {
		return entry, err
	}

	length, err := field[json.Number](obj, index, "Length", "number")
	if err != nil {
		return entry, err
	}
	if length != "" {
		if entry.Length, err = numberToInt64(length); err != nil {
			return entry, &provider.ResponseValidationError{Index: index, Field: "Length", Expected: "integer", Actual: fmt.Sprintf("number %s", length)}
		}
	}

	changed, err := field[string](obj, index, "LastChanged", "ISO-8601 date string")
	if err != nil {
		return entry, err
	}
	if changed != "" {
		ts, ok := parseTimestamp(changed)
		if !ok {
			return entry, &provider.ResponseValidationError{Index: index, Field: "LastChanged", Expected: "ISO-8601 date string", Actual: fmt.Sprintf("unparseable string %q", changed)}
		}
		entry.LastChanged = ts
	}

	return entry, nil
}

// field returns obj[name] as T. Absent and null fields yield the zero value.
func field[T any](obj map[string]any, index int, name, expected string) (T, error) {
	var zero T
	raw, ok := obj[name]
	if !ok || raw == nil {
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, &provider.ResponseValidationError{Index: index, Field: name, Expected: expected, Actual: jsonType(raw)}
	}
	return v, nil
}

// numberToInt64 accepts integral numbers in int64 range, including exponent
// forms such as 1.5e3. Fractions and out-of-range values are rejected.
func numberToInt64(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%s is not an integer in int64 range", n)
	}
	return int64(f), nil
}

// timestampLayouts are the ISO-8601 shapes accepted for LastChanged. The
// storage API emits zone-less timestamps, which are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
