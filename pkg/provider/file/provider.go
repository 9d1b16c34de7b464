package file

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/3leaps/zonestore/pkg/provider"
)

// Provider implements provider.Store for a local directory.
//
// Keys are treated as slash-separated paths under BaseDir. Listing mirrors
// the storage-zone API: one directory level, directories filtered out, keys
// rendered as Path + ObjectName with a leading slash.
type Provider struct {
	baseDir      string
	preserveRoot bool
}

// Ensure Provider implements the interface.
var _ provider.Store = (*Provider)(nil)

// Config configures a local directory store.
type Config struct {
	// BaseDir is the directory keys resolve against. Required.
	BaseDir string

	// PreserveRoot refuses Remove on the root key. Nil means true.
	PreserveRoot *bool
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

// New creates a store rooted at cfg.BaseDir. The directory is not created
// until the first write.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	preserve := true
	if cfg.PreserveRoot != nil {
		preserve = *cfg.PreserveRoot
	}
	return &Provider{baseDir: base, preserveRoot: preserve}, nil
}

// BaseDir returns the directory keys are resolved against.
func (p *Provider) BaseDir() string { return p.baseDir }

// Get returns the file stored at key, or nil if it does not exist.
func (p *Provider) Get(ctx context.Context, key string) (*provider.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, p.wrapError("Get", key, err)
	}
	full := p.fullPath(key)
	st, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, p.wrapError("Get", key, err)
	}
	if st.IsDir() {
		return nil, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, p.wrapError("Get", key, err)
	}
	return &provider.File{
		Name:        provider.BaseName(key),
		ContentType: contentTypeFor(full, data),
		Data:        data,
	}, nil
}

// Has reports whether a regular file exists at key. Directories report
// false.
func (p *Provider) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, p.wrapError("Has", key, err)
	}
	full := p.fullPath(key)
	st, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, p.wrapError("Has", key, err)
	}
	return !st.IsDir(), nil
}

// List returns one page of the files directly under opts.Prefix, sorted by
// name. A missing directory is an empty listing.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListPage, error) {
	offset, err := provider.ValidateListOptions(opts)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	prefix := provider.NormalizePrefix(opts.Prefix)
	dir := p.fullPath(prefix)

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &provider.ListPage{Files: []provider.ListEntry{}}, nil
		}
		return nil, p.wrapError("List", prefix, err)
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

	files := make([]provider.ListEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || isTempName(de.Name()) {
			continue
		}
		entry := provider.ListEntry{Key: prefix + de.Name()}
		if opts.IncludeMetadata {
			info, err := de.Info()
			if err != nil {
				// Removed between ReadDir and Info.
				continue
			}
			entry.Metadata = &provider.FileMetadata{
				Name:         de.Name(),
				LastModified: info.ModTime().UnixMilli(),
				Size:         info.Size(),
				ContentType:  mime.TypeByExtension(filepath.Ext(de.Name())),
			}
		}
		files = append(files, entry)
	}

	page, cursor := provider.Paginate(files, offset, opts.Limit)
	return &provider.ListPage{Files: page, Cursor: cursor}, nil
}

// Put writes file to key and returns a copy of the stored record.
func (p *Provider) Put(ctx context.Context, key string, file *provider.File) (*provider.File, error) {
	if err := p.write(ctx, "Put", key, file); err != nil {
		return nil, err
	}
	return file.Clone(), nil
}

// Set is Put without the returned record.
func (p *Provider) Set(ctx context.Context, key string, file *provider.File) error {
	return p.write(ctx, "Set", key, file)
}

// write stores file atomically via a temp file in the target directory.
func (p *Provider) write(ctx context.Context, op, key string, file *provider.File) error {
	if file == nil {
		return p.wrapError(op, key, errors.New("file is required"))
	}
	if err := ctx.Err(); err != nil {
		return p.wrapError(op, key, err)
	}
	full := p.fullPath(key)
	if strings.HasSuffix(key, "/") || full == p.baseDir {
		return p.wrapError(op, key, fmt.Errorf("key denotes a directory"))
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return p.wrapError(op, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), tempPrefix+"*")
	if err != nil {
		return p.wrapError(op, key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(file.Data); err != nil {
		return p.wrapError(op, key, err)
	}
	if err := tmp.Close(); err != nil {
		return p.wrapError(op, key, err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		return p.wrapError(op, key, err)
	}
	return nil
}

// Remove deletes key. Directories are removed recursively; a missing key is
// reported as provider.ErrNotFound.
func (p *Provider) Remove(ctx context.Context, key string) error {
	if p.preserveRoot && provider.IsRootKey(key) {
		return p.wrapError("Remove", key, &provider.PreserveRootError{Key: key})
	}
	if err := ctx.Err(); err != nil {
		return p.wrapError("Remove", key, err)
	}
	full := p.fullPath(key)
	st, err := os.Stat(full)
	if err != nil {
		return p.wrapError("Remove", key, err)
	}

	if st.IsDir() {
		if full == p.baseDir {
			// Empty the root but keep the directory itself.
			entries, err := os.ReadDir(full)
			if err != nil {
				return p.wrapError("Remove", key, err)
			}
			for _, e := range entries {
				if err := os.RemoveAll(filepath.Join(full, e.Name())); err != nil {
					return p.wrapError("Remove", key, err)
				}
			}
			return nil
		}
		if err := os.RemoveAll(full); err != nil {
			return p.wrapError("Remove", key, err)
		}
		return nil
	}
	if err := os.Remove(full); err != nil {
		return p.wrapError("Remove", key, err)
	}
	return nil
}

const tempPrefix = ".zonestore-put-"

func isTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

func (p *Provider) fullPath(key string) string {
	// Cleaning the rooted key drops any ".." that would escape baseDir.
	clean := path.Clean(provider.NormalizeKey(strings.TrimSpace(key)))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" {
		return p.baseDir
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(clean))
}

// contentTypeFor prefers the extension mapping and falls back to sniffing.
func contentTypeFor(name string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{Op: op, Provider: provider.ProviderFile, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to provider sentinels.
	if os.IsNotExist(err) {
		wrapped.Err = provider.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
