package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"

	"github.com/inkpad/service/docs/swagger"
	"github.com/inkpad/service/internal/document"
	"github.com/inkpad/service/internal/image"
	"github.com/inkpad/service/internal/metrics"
	"github.com/inkpad/service/internal/middleware"
	"github.com/inkpad/service/internal/storage"
)

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type server struct {
	*httptest.Server
	store *storage.MemoryStorage
}

func newServer(t *testing.T) *server {
	t.Helper()
	return newServerWith(t, nil)
}

func newServerWith(t *testing.T, configure func(*Options)) *server {
	t.Helper()
	imgRepo := image.NewMemoryRepository()
	docRepo := document.NewMemoryRepository(imgRepo)
	store := storage.NewMemoryStorage()
	imgSvc := image.NewService(imgRepo, store, document.ExistenceChecker(docRepo), zerolog.Nop())
	docSvc := document.NewService(docRepo, imgSvc, zerolog.Nop())

	reg := prometheus.NewRegistry()
	metrics.RegisterCollectors(reg)

	opts := Options{
		Documents:   document.NewHandler(docSvc),
		Images:      image.NewHandler(imgSvc, docSvc, []string{"image/gif", "image/png"}, 1<<20),
		Log:         zerolog.Nop(),
		CORSOrigins: []string{"*"},
		Gatherer:    reg,
	}
	if configure != nil {
		configure(&opts)
	}
	srv := httptest.NewServer(NewRouter(opts))
	t.Cleanup(srv.Close)
	return &server{Server: srv, store: store}
}

func (s *server) call(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if resp.Header.Get("Content-Type") == "application/json" && len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &env))
	}
	return resp, env
}

func (s *server) request(t *testing.T, method, path string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, s.URL+path, body)
	require.NoError(t, err)
	return req
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	resp, err := s.Client().Get(s.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDocumentAndImageLifecycle(t *testing.T) {
	s := newServer(t)

	resp, env := s.call(t, s.request(t, http.MethodPost, "/api/v1/documents", bytes.NewBufferString(`{"ownerExternalId":"123"}`)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc document.Document
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	require.NotEmpty(t, doc.ModificationSecret)
	secretQuery := "?modificationSecret=" + doc.ModificationSecret

	// Upload with the wrong secret stores nothing.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "holiday.GIF")
	require.NoError(t, err)
	_, err = fw.Write(gifBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	payload := buf.Bytes()

	req := s.request(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/images?modificationSecret=wrong", bytes.NewReader(payload))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, _ = s.call(t, req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, s.store.Keys())

	req = s.request(t, http.MethodPost, "/api/v1/documents/"+doc.ID+"/images"+secretQuery, bytes.NewReader(payload))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, env = s.call(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var uploaded struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &uploaded))
	assert.Equal(t, "image.gif", uploaded.Name)
	assert.Equal(t, image.PathPrefix+uploaded.ID, uploaded.Path)

	resp, err = s.Client().Get(s.URL + uploaded.Path)
	require.NoError(t, err)
	content, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/gif", resp.Header.Get("Content-Type"))
	assert.Equal(t, gifBytes, content)

	resp, env = s.call(t, s.request(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched document.Document
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Empty(t, fetched.ModificationSecret)
	require.Len(t, fetched.Images, 1)
	assert.Equal(t, uploaded.ID, fetched.Images[0].ID)

	resp, env = s.call(t, s.request(t, http.MethodGet, "/api/v1/documents?ownerExternalId=123", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []document.Document
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, doc.ID, listed[0].ID)

	resp, _ = s.call(t, s.request(t, http.MethodDelete, "/api/v1/documents/"+doc.ID+secretQuery, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, s.store.Keys())

	resp, _ = s.call(t, s.request(t, http.MethodGet, uploaded.Path, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	resp, _ := s.call(t, s.request(t, http.MethodPost, "/api/v1/documents", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := s.Client().Get(s.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "inkpad_documents_created_total")
}

func TestCORSPreflight(t *testing.T) {
	s := newServer(t)
	req := s.request(t, http.MethodOptions, "/api/v1/documents", nil)
	req.Header.Set("Origin", "http://editor.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "X-Modification-Secret")

	resp, _ := s.call(t, req)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	s := newServerWith(t, func(o *Options) {
		o.RateLimiter = middleware.NewRateLimiter(0.01, 1)
	})

	resp, env := s.call(t, s.request(t, http.MethodPost, "/api/v1/documents", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc document.Document
	require.NoError(t, json.Unmarshal(env.Data, &doc))

	resp, _ = s.call(t, s.request(t, http.MethodPost, "/api/v1/documents", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = s.call(t, s.request(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitIgnoresForwardedHeaders(t *testing.T) {
	s := newServerWith(t, func(o *Options) {
		o.RateLimiter = middleware.NewRateLimiter(0.01, 1)
	})

	post := func(forwarded string) int {
		req := s.request(t, http.MethodPost, "/api/v1/documents", nil)
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		resp, _ := s.call(t, req)
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, post("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.2"), "spoofed addresses share the socket's bucket")
}

func TestRateLimitTrustsForwardedHeadersWhenConfigured(t *testing.T) {
	s := newServerWith(t, func(o *Options) {
		o.RateLimiter = middleware.NewRateLimiter(0.01, 1)
		o.TrustProxyHeaders = true
	})

	post := func(forwarded string) int {
		req := s.request(t, http.MethodPost, "/api/v1/documents", nil)
		req.Header.Set("X-Forwarded-For", forwarded)
		resp, _ := s.call(t, req)
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, post("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.1"))
	assert.Equal(t, http.StatusOK, post("198.51.100.2"), "each forwarded client gets its own bucket")
}

func TestSwaggerDocumentsEveryRoute(t *testing.T) {
	routes, ok := NewRouter(Options{
		Documents: &document.Handler{},
		Images:    &image.Handler{},
		Log:       zerolog.Nop(),
	}).(chi.Routes)
	require.True(t, ok)

	doc, err := swag.ReadDoc(swagger.SwaggerInfo.InstanceName())
	require.NoError(t, err)
	var api struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(doc), &api))

	const prefix = "/api/v1"
	err = chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if !strings.HasPrefix(route, prefix+"/") {
			return nil
		}
		path := strings.TrimPrefix(route, prefix)
		assert.Contains(t, api.Paths[path], strings.ToLower(method), "%s %s is undocumented", method, route)
		return nil
	})
	require.NoError(t, err)
}
