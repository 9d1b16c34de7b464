package provider

import (
	"strconv"
)

// Listing pagination is client-side: backends fetch the full listing of a
// directory in one request and Paginate slices it. Cursors are the decimal
// offset of the next entry.

// ParseCursor decodes a cursor produced by Paginate. Empty means offset 0.
func ParseCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	for _, r := range cursor {
		if r < '0' || r > '9' {
			return 0, &InputValidationError{Field: "cursor", Value: cursor, Message: "must be a token returned by a previous list call"}
		}
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil {
		return 0, &InputValidationError{Field: "cursor", Value: cursor, Message: "offset out of range"}
	}
	return offset, nil
}

// ValidateListOptions checks caller-supplied options before any request is
// issued and returns the decoded cursor offset.
func ValidateListOptions(opts ListOptions) (int, error) {
	if opts.Limit != nil && *opts.Limit < 1 {
		return 0, &InputValidationError{Field: "limit", Value: strconv.Itoa(*opts.Limit), Message: "must be a positive integer"}
	}
	return ParseCursor(opts.Cursor)
}

// Paginate returns the page of entries starting at offset holding at most
// limit entries (all remaining when limit is nil), and the cursor of the
// following page or "" when none remain.
func Paginate(entries []ListEntry, offset int, limit *int) ([]ListEntry, string) {
	if offset >= len(entries) {
		return []ListEntry{}, ""
	}
	end := len(entries)
	if limit != nil && offset+*limit < end {
		end = offset + *limit
	}

	page := make([]ListEntry, end-offset)
	copy(page, entries[offset:end])

	if end < len(entries) {
		return page, strconv.Itoa(end)
	}
	return page, ""
}
