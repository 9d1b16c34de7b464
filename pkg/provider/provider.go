// Package provider defines the key/value file-storage capability set shared by
// every zonestore backend.
//
// Application code programs against Store and can swap a local-disk backend
// for a hosted one without code changes. Backends translate calls; they hold
// no data, perform no caching and never retry.
package provider

import (
	"context"
	"time"
)

// Store is the fixed capability set every backend implements.
//
// Implementations should:
//   - Issue one backend request per call where the backend allows it
//     (List slices a single fetch rather than paging the backend)
//   - Return (nil, nil) from Get and (false, nil) from Has when the key is absent
//   - Be safe for concurrent use
type Store interface {
	// Get returns the file stored at key, or nil if it does not exist.
	Get(ctx context.Context, key string) (*File, error)

	// Has reports whether an object exists at key.
	Has(ctx context.Context, key string) (bool, error)

	// List returns one page of the files directly under opts.Prefix.
	// Use ListPage.Cursor as ListOptions.Cursor to fetch the next page.
	List(ctx context.Context, opts ListOptions) (*ListPage, error)

	// Put creates or overwrites the object at key and returns a copy of the
	// uploaded record.
	Put(ctx context.Context, key string, file *File) (*File, error)

	// Set is Put without the returned record.
	Set(ctx context.Context, key string, file *File) error

	// Remove deletes the object at key. Keys denoting a directory are
	// removed recursively by the backend.
	Remove(ctx context.Context, key string) error
}

// KeyResolver is implemented by stores whose listed keys carry a namespace
// that Get, Has and Remove add on their own, such as the storage-zone name.
type KeyResolver interface {
	// StoreKey maps a key returned by List to the key that addresses it.
	StoreKey(listed string) string
}

// StoreKey maps a key listed by s to one s.Get, s.Has and s.Remove accept.
// Stores without a KeyResolver list addressable keys already.
func StoreKey(s Store, listed string) string {
	if r, ok := s.(KeyResolver); ok {
		return r.StoreKey(listed)
	}
	return NormalizeKey(listed)
}

// ResolveKeys rewrites the keys of page in place with StoreKey and returns
// page.
func ResolveKeys(s Store, page *ListPage) *ListPage {
	if page == nil {
		return nil
	}
	for i := range page.Files {
		page.Files[i].Key = StoreKey(s, page.Files[i].Key)
	}
	return page
}

// File is an in-memory file: its content plus a name and MIME type.
type File struct {
	// Name is the file name, usually the last segment of its key.
	Name string

	// ContentType is the MIME type reported for the content.
	ContentType string

	// Data is the raw file content.
	Data []byte
}

// Size returns the content length in bytes.
func (f *File) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Data))
}

// Clone returns a deep copy of f.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	out := *f
	if f.Data != nil {
		out.Data = append([]byte(nil), f.Data...)
	}
	return &out
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix is the directory to list. Empty means the root ("/").
	// A trailing slash is added when missing.
	Prefix string

	// Limit caps the number of entries in the page. Nil returns every
	// remaining entry; a non-nil value must be >= 1.
	Limit *int

	// Cursor resumes listing from a previous ListPage.Cursor.
	// Empty string starts from the beginning.
	Cursor string

	// IncludeMetadata populates ListEntry.Metadata.
	IncludeMetadata bool
}

// Limit returns a pointer to n, for use in ListOptions.
func Limit(n int) *int {
	return &n
}

// ListPage is one page of a directory listing.
type ListPage struct {
	// Files are the non-directory entries of this page.
	Files []ListEntry `json:"files" yaml:"files"`

	// Cursor fetches the next page. Empty string indicates no more pages.
	Cursor string `json:"cursor,omitempty" yaml:"cursor,omitempty"`
}

// ListEntry is a listed file. Metadata is nil unless requested.
type ListEntry struct {
	Key      string        `json:"key" yaml:"key"`
	Metadata *FileMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// FileMetadata describes a listed file.
type FileMetadata struct {
	// Name is the object name without its directory.
	Name string `json:"name" yaml:"name"`

	// LastModified is the modification time in Unix epoch milliseconds.
	LastModified int64 `json:"last_modified" yaml:"last_modified"`

	// Size is the object size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// ContentType is the MIME type of the object.
	ContentType string `json:"content_type" yaml:"content_type"`
}

// ModTime returns LastModified as a time.Time in UTC.
func (m FileMetadata) ModTime() time.Time {
	return time.UnixMilli(m.LastModified).UTC()
}

// ProviderType identifies a storage backend.
type ProviderType string

const (
	// ProviderZone represents the HTTP storage-zone API.
	ProviderZone ProviderType = "zone"

	// ProviderFile represents the local filesystem.
	ProviderFile ProviderType = "file"

	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// ParseProviderType parses a backend name as used in configuration.
func ParseProviderType(s string) (ProviderType, bool) {
	switch ProviderType(s) {
	case ProviderZone, ProviderFile, ProviderS3:
		return ProviderType(s), true
	}
	return "", false
}
