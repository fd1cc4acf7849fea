package document

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkpad/service/internal/middleware"
)

const testJWTSecret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	h := NewHandler(f.svc)

	r := chi.NewRouter()
	r.Use(middleware.IdentifyOwner(testJWTSecret))
	r.Post("/api/v1/documents", h.Create)
	r.Get("/api/v1/documents", h.List)
	r.Get("/api/v1/documents/{id}", h.Get)
	r.Put("/api/v1/documents/{id}", h.Update)
	r.Delete("/api/v1/documents/{id}", h.Delete)
	return r, f
}

func do(t *testing.T, router http.Handler, method, target, body string, header http.Header) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func bearer(t *testing.T, subject string) http.Header {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + signed}}
}

func TestCreateHandler(t *testing.T) {
	router, _ := newTestRouter(t)

	w, env := do(t, router, http.MethodPost, "/api/v1/documents", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	d := decode[Document](t, env.Data)
	assert.NotEmpty(t, d.ID)
	assert.NotEmpty(t, d.ModificationSecret)
	assert.Nil(t, d.OwnerExternalID)

	w, env = do(t, router, http.MethodPost, "/api/v1/documents", `{"ownerExternalId":"123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	d = decode[Document](t, env.Data)
	require.NotNil(t, d.OwnerExternalID)
	assert.Equal(t, "123", *d.OwnerExternalID)

	w, env = do(t, router, http.MethodPost, "/api/v1/documents", `{"ownerExternalId":"123"}`, bearer(t, "alice"))
	require.Equal(t, http.StatusOK, w.Code)
	d = decode[Document](t, env.Data)
	require.NotNil(t, d.OwnerExternalID)
	assert.Equal(t, "alice", *d.OwnerExternalID)

	w, _ = do(t, router, http.MethodPost, "/api/v1/documents", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListHandler(t *testing.T) {
	router, f := newTestRouter(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, nil)
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, strPtr("123"))
	require.NoError(t, err)

	w, env := do(t, router, http.MethodGet, "/api/v1/documents?ownerExternalId=123", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	docs := decode[[]Document](t, env.Data)
	require.Len(t, docs, 1)
	assert.Equal(t, b.ID, docs[0].ID)
	assert.Empty(t, docs[0].ModificationSecret)

	w, env = do(t, router, http.MethodGet, "/api/v1/documents", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))

	w, env = do(t, router, http.MethodGet, "/api/v1/documents", "", bearer(t, "123"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]Document](t, env.Data), 1)
}

func TestGetHandler(t *testing.T) {
	router, f := newTestRouter(t)
	d, err := f.svc.Create(context.Background(), nil)
	require.NoError(t, err)
	f.backdate(t, d.ID, 48*time.Hour)

	w, env := do(t, router, http.MethodGet, "/api/v1/documents/"+d.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(env.Data), d.ModificationSecret)
	got := decode[Document](t, env.Data)
	assert.Equal(t, d.ID, got.ID)
	assert.WithinDuration(t, time.Now(), got.LastAccessedAt, time.Minute)

	w, _ = do(t, router, http.MethodGet, "/api/v1/documents/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(t, router, http.MethodGet, "/api/v1/documents/not-an-id", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateHandler(t *testing.T) {
	router, f := newTestRouter(t)
	d, err := f.svc.Create(context.Background(), nil)
	require.NoError(t, err)
	body := `{"data":{"text":"hello"}}`

	w, _ := do(t, router, http.MethodPut, "/api/v1/documents/"+d.ID+"?modificationSecret="+uuid.NewString(), body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, router, http.MethodPut, "/api/v1/documents/"+uuid.NewString()+"?modificationSecret="+d.ModificationSecret, body, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, router, http.MethodPut, "/api/v1/documents/"+d.ID+"?modificationSecret="+d.ModificationSecret, `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	header := http.Header{middleware.SecretHeader: {d.ModificationSecret}}
	w, env := do(t, router, http.MethodPut, "/api/v1/documents/"+d.ID, body, header)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[Document](t, env.Data)
	assert.JSONEq(t, `{"text":"hello"}`, string(got.Data))
	assert.Empty(t, got.ModificationSecret)

	stored, err := f.svc.Fetch(context.Background(), d.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hello"}`, string(stored.Data))
}

func TestDeleteHandler(t *testing.T) {
	router, f := newTestRouter(t)
	d, err := f.svc.Create(context.Background(), nil)
	require.NoError(t, err)
	f.upload(t, d.ID)

	w, _ := do(t, router, http.MethodDelete, "/api/v1/documents/"+d.ID+"?modificationSecret=wrong", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	_, err = f.svc.Fetch(context.Background(), d.ID)
	require.NoError(t, err)

	w, env := do(t, router, http.MethodDelete, "/api/v1/documents/"+d.ID+"?modificationSecret="+d.ModificationSecret, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Empty(t, f.store.Keys())

	w, _ = do(t, router, http.MethodDelete, "/api/v1/documents/"+d.ID+"?modificationSecret="+d.ModificationSecret, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateHandlerRejectsBadToken(t *testing.T) {
	router, _ := newTestRouter(t)
	header := http.Header{"Authorization": {"Bearer not-a-token"}}

	w, _ := do(t, router, http.MethodPost, "/api/v1/documents", "", header)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
