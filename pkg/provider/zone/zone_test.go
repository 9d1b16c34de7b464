package zone

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/3leaps/zonestore/pkg/provider"
)

const (
	testZone      = "test-zone"
	testAccessKey = "test-access-key"
)

// recordedRequest is what the stub backend saw.
type recordedRequest struct {
	Method  string
	Path    string
	Header  http.Header
	Body    []byte
	RawPath string
}

// memoryZone is an in-memory stand-in for the storage API.
type memoryZone struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	requests []recordedRequest
}

func newMemoryZone() *memoryZone {
	return &memoryZone{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryZone) put(key, contentType string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
}

func (m *memoryZone) Requests() []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedRequest(nil), m.requests...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (m *memoryZone) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Header:  r.Header.Clone(),
		Body:    body,
		RawPath: r.URL.EscapedPath(),
	})

	if r.Header.Get(HeaderAccessKey) != testAccessKey {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"HttpCode": 401, "Message": "Unauthorized"})
		return
	}
	zonePrefix := "/" + testZone
	if !strings.HasPrefix(r.URL.Path, zonePrefix+"/") {
		writeJSON(w, http.StatusNotFound, map[string]any{"HttpCode": 404, "Message": "Storage zone not found"})
		return
	}
	key := strings.TrimPrefix(r.URL.Path, zonePrefix)

	switch r.Method {
	case http.MethodGet:
		if strings.HasSuffix(key, "/") {
			writeJSON(w, http.StatusOK, m.listing(key))
			return
		}
		data, ok := m.objects[key]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"HttpCode": 404, "Message": "Object Not Found"})
			return
		}
		w.Header().Set("Content-Type", m.types[key])
		_, _ = w.Write(data)
	case http.MethodHead:
		if _, ok := m.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		if sum := r.Header.Get(HeaderChecksum); sum != "" && sum != provider.Checksum(body) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"HttpCode": 400, "Message": "Checksum mismatch"})
			return
		}
		m.objects[key] = body
		m.types[key] = "application/octet-stream"
		writeJSON(w, http.StatusCreated, map[string]any{"HttpCode": 201, "Message": "File uploaded."})
	case http.MethodDelete:
		removed := 0
		for k := range m.objects {
			if k == key || (strings.HasSuffix(key, "/") && strings.HasPrefix(k, key)) {
				delete(m.objects, k)
				delete(m.types, k)
				removed++
			}
		}
		if removed == 0 {
			writeJSON(w, http.StatusNotFound, map[string]any{"HttpCode": 404, "Message": "Object Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"HttpCode": 200, "Message": "File deleted successfuly."})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// listing mimics the storage API: one directory level, directories included.
func (m *memoryZone) listing(dir string) []map[string]any {
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seenDirs := map[string]bool{}
	out := []map[string]any{}
	for _, k := range keys {
		if !strings.HasPrefix(k, dir) {
			continue
		}
		rest := strings.TrimPrefix(k, dir)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			name := rest[:idx]
			if seenDirs[name] {
				continue
			}
			seenDirs[name] = true
			out = append(out, map[string]any{
				"IsDirectory": true,
				"Path":        "/" + testZone + dir,
				"ObjectName":  name,
				"LastChanged": "2024-01-02T03:04:05.678",
				"Length":      0,
				"ContentType": "",
			})
			continue
		}
		out = append(out, map[string]any{
			"IsDirectory": false,
			"Path":        "/" + testZone + dir,
			"ObjectName":  rest,
			"LastChanged": "2024-01-02T03:04:05.678",
			"Length":      len(m.objects[k]),
			"ContentType": m.types[k],
		})
	}
	return out
}

// newTestAdapter starts handler and returns an adapter pointed at it.
func newTestAdapter(t *testing.T, handler http.Handler, mutate ...func(*Config)) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		AccessKey:   testAccessKey,
		StorageZone: testZone,
		Endpoint:    srv.URL,
		HTTPClient:  srv.Client(),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

// staticHandler answers every request with the given status, content type and body.
func staticHandler(status int, contentType, body string, hits *int) http.Handler {
	var mu sync.Mutex
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		if hits != nil {
			*hits++
		}
		mu.Unlock()
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}
