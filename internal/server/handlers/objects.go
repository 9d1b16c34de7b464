package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/internal/server/middleware"
	"github.com/3leaps/zonestore/pkg/provider"
)

// Error codes returned in ErrorBody.Code.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodePreserveRoot    = "PRESERVE_ROOT"
	CodeTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeThrottled       = "THROTTLED"
	CodeInvalidResponse = "INVALID_RESPONSE"
	CodeBadGateway      = "BAD_GATEWAY"
	CodeInternal        = "INTERNAL_ERROR"
)

// ChecksumHeader carries the uppercase hex SHA-256 of a stored body.
const ChecksumHeader = "X-Checksum-Sha256"

// healthProbeKey is looked up by StoreChecker. It need not exist.
const healthProbeKey = "/.zonestore-health"

// Objects serves the /v1/objects API over a provider.Store.
type Objects struct {
	store     provider.Store
	maxUpload int64
	log       *zap.Logger
}

// NewObjects returns an Objects handler. maxUpload <= 0 disables the body cap.
func NewObjects(store provider.Store, maxUpload int64, log *zap.Logger) *Objects {
	if log == nil {
		log = zap.NewNop()
	}
	return &Objects{store: store, maxUpload: maxUpload, log: log}
}

// PutResponse is returned by a successful upload.
type PutResponse struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Checksum    string `json:"checksum"`
}

// List handles GET /v1/objects?prefix=&limit=&cursor=&metadata=.
func (h *Objects) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := provider.ListOptions{
		Prefix: q.Get("prefix"),
		Cursor: q.Get("cursor"),
	}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteError(w, r, http.StatusBadRequest, CodeInvalidArgument,
				"limit must be an integer", map[string]any{"field": "limit", "value": raw})
			return
		}
		opts.Limit = provider.Limit(n)
	}
	if raw := q.Get("metadata"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			middleware.WriteError(w, r, http.StatusBadRequest, CodeInvalidArgument,
				"metadata must be a boolean", map[string]any{"field": "metadata", "value": raw})
			return
		}
		opts.IncludeMetadata = b
	}

	page, err := h.store.List(r.Context(), opts)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, provider.ResolveKeys(h.store, page))
}

// Get handles GET /v1/objects/{key}.
func (h *Objects) Get(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	f, err := h.store.Get(r.Context(), key)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if f == nil {
		middleware.WriteError(w, r, http.StatusNotFound, CodeNotFound, "object not found: "+key, nil)
		return
	}

	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size(), 10))
	w.Header().Set(ChecksumHeader, provider.Checksum(f.Data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

// Head handles HEAD /v1/objects/{key}.
func (h *Objects) Head(w http.ResponseWriter, r *http.Request) {
	ok, err := h.store.Has(r.Context(), objectKey(r))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Put handles PUT /v1/objects/{key}. The request body is stored as is.
func (h *Objects) Put(w http.ResponseWriter, r *http.Request) {
	key := objectKey(r)
	if provider.IsRootKey(key) || strings.HasSuffix(key, "/") {
		middleware.WriteError(w, r, http.StatusBadRequest, CodeInvalidArgument,
			"key must name a file", map[string]any{"field": "key", "value": key})
		return
	}

	body := io.Reader(r.Body)
	if h.maxUpload > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, r, http.StatusRequestEntityTooLarge, CodeTooLarge,
				"body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes", nil)
			return
		}
		middleware.WriteError(w, r, http.StatusBadRequest, CodeInvalidArgument, "read body: "+err.Error(), nil)
		return
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	file := &provider.File{Name: provider.BaseName(key), ContentType: ct, Data: data}
	if err := h.store.Set(r.Context(), key, file); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	sum := provider.Checksum(data)
	w.Header().Set(ChecksumHeader, sum)
	writeJSON(w, http.StatusCreated, PutResponse{
		Key:         provider.NormalizeKey(key),
		Size:        file.Size(),
		ContentType: ct,
		Checksum:    sum,
	})
}

// Delete handles DELETE /v1/objects/{key}.
func (h *Objects) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Remove(r.Context(), objectKey(r)); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// objectKey is the wildcard path segment with a leading slash.
func objectKey(r *http.Request) string {
	return "/" + chi.URLParam(r, "*")
}

// StatusForError maps a store error onto an HTTP status and error code.
func StatusForError(err error) (int, string) {
	var transport *provider.TransportError
	switch {
	case provider.IsInputValidation(err):
		return http.StatusBadRequest, CodeInvalidArgument
	case provider.IsPreserveRoot(err):
		return http.StatusForbidden, CodePreserveRoot
	case provider.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case provider.IsThrottled(err):
		return http.StatusTooManyRequests, CodeThrottled
	case provider.IsInvalidResponse(err):
		return http.StatusBadGateway, CodeInvalidResponse
	case errors.As(err, &transport),
		provider.IsAccessDenied(err),
		provider.IsInvalidCredentials(err),
		provider.IsBucketNotFound(err),
		provider.IsProviderUnavailable(err):
		return http.StatusBadGateway, CodeBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeBadGateway
	}
	return http.StatusInternalServerError, CodeInternal
}

func (h *Objects) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusForError(err)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("code", code),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.log.Warn("store request failed", fields...)
	} else {
		h.log.Debug("store request rejected", fields...)
	}

	var details map[string]any
	var transport *provider.TransportError
	if errors.As(err, &transport) {
		details = map[string]any{"upstream_status": transport.StatusCode}
		var body any
		if transport.DecodeBody(&body) == nil {
			details["upstream_body"] = body
		}
	}
	middleware.WriteError(w, r, status, code, err.Error(), details)
}

// StoreChecker reports the store healthy when a lookup of a probe key
// completes, whatever its answer.
func StoreChecker(store provider.Store) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		_, err := store.Has(ctx, healthProbeKey)
		return err
	})
}
