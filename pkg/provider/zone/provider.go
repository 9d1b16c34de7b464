package zone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/zonestore/pkg/provider"
)

// Header names understood by the storage API.
const (
	HeaderAccessKey = "AccessKey"
	HeaderChecksum  = "Checksum"
)

// maxErrorBody bounds how much of a failed response is read for diagnostics.
const maxErrorBody = 1 << 20

// Adapter implements provider.Store against a storage zone.
//
// An Adapter is immutable after New and safe for concurrent use. Each
// operation issues exactly one request and never retries.
type Adapter struct {
	client            *http.Client
	endpoint          *url.URL
	accessKey         string
	zone              string
	generateChecksums bool
	preserveRoot      bool
	log               *zap.Logger
}

// Ensure Adapter implements the interface.
var (
	_ provider.Store       = (*Adapter)(nil)
	_ provider.KeyResolver = (*Adapter)(nil)
)

// New creates a storage-zone adapter with the given configuration.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, &ConfigError{Field: "Endpoint", Message: err.Error()}
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Adapter{
		client:            client,
		endpoint:          u,
		accessKey:         cfg.AccessKey,
		zone:              cfg.StorageZone,
		generateChecksums: boolOr(cfg.GenerateChecksums, true),
		preserveRoot:      boolOr(cfg.PreserveRoot, true),
		log:               log,
	}, nil
}

// StorageZone returns the zone name keys are rooted under.
func (a *Adapter) StorageZone() string {
	return a.zone
}

// StoreKey strips the /{zone} namespace from a listed key so it can be
// passed back to Get, Has and Remove. Keys outside the zone are only
// normalized.
func (a *Adapter) StoreKey(listed string) string {
	key := provider.NormalizeKey(listed)
	rest, ok := strings.CutPrefix(key, "/"+a.zone)
	if !ok || (rest != "" && rest[0] != '/') {
		return key
	}
	return provider.NormalizeKey(rest)
}

// ObjectPath maps a key to its backend path: /{zone}/{key}.
func ObjectPath(zone, key string) string {
	return "/" + zone + provider.NormalizeKey(key)
}

// ObjectURL returns the absolute request URL for key.
func (a *Adapter) ObjectURL(key string) string {
	return a.urlFor(ObjectPath(a.zone, key))
}

func (a *Adapter) urlFor(path string) string {
	u := *a.endpoint
	u.Path += path
	return u.String()
}

// Get returns the file stored at key, or nil if the backend answers 404.
func (a *Adapter) Get(ctx context.Context, key string) (*provider.File, error) {
	resp, err := a.do(ctx, "Get", http.MethodGet, ObjectPath(a.zone, key), nil)
	if err != nil {
		return nil, a.wrapError("Get", key, err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if !isSuccess(resp.StatusCode) {
		return nil, a.wrapError("Get", key, newTransportError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, a.wrapError("Get", key, err)
	}

	return &provider.File{
		Name:        provider.BaseName(key),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// Has probes key with a HEAD request. 404 reports false without error.
func (a *Adapter) Has(ctx context.Context, key string) (bool, error) {
	resp, err := a.do(ctx, "Has", http.MethodHead, ObjectPath(a.zone, key), nil)
	if err != nil {
		return false, a.wrapError("Has", key, err)
	}
	defer closeBody(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case isSuccess(resp.StatusCode):
		return true, nil
	default:
		return false, a.wrapError("Has", key, newTransportError(resp))
	}
}

// List returns one page of the files directly under opts.Prefix.
//
// The storage API does not paginate: the whole directory is fetched, fully
// validated, stripped of directory entries and then sliced at the cursor
// offset. Options are validated before any request is sent.
func (a *Adapter) List(ctx context.Context, opts provider.ListOptions) (*provider.ListPage, error) {
	offset, err := provider.ValidateListOptions(opts)
	if err != nil {
		return nil, a.wrapError("List", opts.Prefix, err)
	}

	prefix := provider.NormalizePrefix(opts.Prefix)
	resp, err := a.do(ctx, "List", http.MethodGet, "/"+a.zone+prefix, nil)
	if err != nil {
		return nil, a.wrapError("List", prefix, err)
	}
	defer closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return nil, a.wrapError("List", prefix, newTransportError(resp))
	}

	contentType := resp.Header.Get("Content-Type")
	if !isJSONContentType(contentType) {
		return nil, a.wrapError("List", prefix, &provider.UnknownContentTypeError{ContentType: contentType})
	}

	listing, err := decodeListing(resp.Body)
	if err != nil {
		return nil, a.wrapError("List", prefix, err)
	}

	files := make([]provider.ListEntry, 0, len(listing))
	for _, entry := range listing {
		if entry.IsDirectory {
			continue
		}
		files = append(files, entry.toListEntry(opts.IncludeMetadata))
	}

	page, cursor := provider.Paginate(files, offset, opts.Limit)
	return &provider.ListPage{Files: page, Cursor: cursor}, nil
}

// Put uploads file to key and returns a copy of the uploaded record.
func (a *Adapter) Put(ctx context.Context, key string, file *provider.File) (*provider.File, error) {
	if err := a.upload(ctx, "Put", key, file); err != nil {
		return nil, err
	}
	return file.Clone(), nil
}

// Set uploads file to key.
func (a *Adapter) Set(ctx context.Context, key string, file *provider.File) error {
	return a.upload(ctx, "Set", key, file)
}

// upload sends file.Data as-is. The checksum is computed over the same slice
// that becomes the request body.
func (a *Adapter) upload(ctx context.Context, op, key string, file *provider.File) error {
	if file == nil {
		return a.wrapError(op, key, errors.New("file is required"))
	}

	data := file.Data
	headers := http.Header{}
	headers.Set("Content-Type", "application/octet-stream")
	if a.generateChecksums {
		headers.Set(HeaderChecksum, provider.Checksum(data))
	}

	resp, err := a.doWithHeaders(ctx, op, http.MethodPut, ObjectPath(a.zone, key), bytes.NewReader(data), headers)
	if err != nil {
		return a.wrapError(op, key, err)
	}
	defer closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return a.wrapError(op, key, newTransportError(resp))
	}
	return nil
}

// Remove deletes key. Directories (keys ending in "/") are deleted
// recursively by the backend. A 404 is reported as an error.
func (a *Adapter) Remove(ctx context.Context, key string) error {
	if a.preserveRoot && provider.IsRootKey(key) {
		return a.wrapError("Remove", key, &provider.PreserveRootError{Key: key})
	}

	resp, err := a.do(ctx, "Remove", http.MethodDelete, ObjectPath(a.zone, key), nil)
	if err != nil {
		return a.wrapError("Remove", key, err)
	}
	defer closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return a.wrapError("Remove", key, newTransportError(resp))
	}
	return nil
}

func (a *Adapter) do(ctx context.Context, op, method, path string, body io.Reader) (*http.Response, error) {
	return a.doWithHeaders(ctx, op, method, path, body, nil)
}

func (a *Adapter) doWithHeaders(ctx context.Context, op, method, path string, body io.Reader, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.urlFor(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAccessKey, a.accessKey)
	for name, values := range headers {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Debug("zone request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}

	a.log.Debug("zone request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// newTransportError captures status and, when declared as JSON, the error
// body of a failed response.
func newTransportError(resp *http.Response) *provider.TransportError {
	te := &provider.TransportError{
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
	}
	if resp.Request != nil {
		te.Method = resp.Request.Method
		if resp.Request.URL != nil {
			te.URL = resp.Request.URL.Redacted()
		}
	}

	if isJSONContentType(resp.Header.Get("Content-Type")) {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err == nil && json.Valid(raw) {
			te.Body = json.RawMessage(raw)
		}
	}
	return te
}

func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func closeBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}

// wrapError attaches operation context to err.
func (a *Adapter) wrapError(op, key string, err error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderZone,
		Bucket:   a.zone,
		Key:      key,
		Err:      err,
	}
}
