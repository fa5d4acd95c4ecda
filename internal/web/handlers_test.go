package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promolabs/promobot/internal/moderation"
	"github.com/promolabs/promobot/internal/users"
)

func newTestRouter(t *testing.T) (*chi.Mux, *users.Store) {
	t.Helper()
	store := users.NewStore(nil, time.Hour)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	importer := moderation.NewImporter(store, nil, 3, 5)
	gate := moderation.NewGate(store)
	api := NewAPI(store, importer, gate)

	r := chi.NewRouter()
	r.Get("/health", api.handleHealth)
	r.Post("/api/contacts", api.handleImportContacts)
	r.Get("/api/users/{id}", api.handleGetUser)
	r.Post("/api/users/{id}/publish", api.handlePublish)
	return r, store
}

func importBody(n int) []byte {
	type c struct {
		Name   string   `json:"name"`
		Phones []string `json:"phones"`
	}
	req := map[string]any{
		"user_id":    "u1",
		"channel_id": 100,
		"source":     "import-service",
	}
	list := make([]c, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, c{Name: fmt.Sprintf("Contact %d", i), Phones: []string{fmt.Sprintf("+7 900 %d", i)}})
	}
	req["contacts"] = list
	body, _ := json.Marshal(req)
	return body
}

func TestImportEndpoint(t *testing.T) {
	r, store := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/contacts", bytes.NewReader(importBody(4))))
	require.Equal(t, http.StatusOK, w.Code)

	var resp importResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, "pending", resp.State)
	assert.Equal(t, 4, resp.Accepted)
	assert.True(t, resp.Submitted)

	rec, ok := store.Get("u1")
	require.True(t, ok)
	assert.Equal(t, users.SourceImport, rec.Contacts[0].Source)
}

func TestImportEndpointValidation(t *testing.T) {
	r, store := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/contacts", bytes.NewReader(importBody(2))))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "too_few_contacts", resp.Code)

	_, ok := store.Get("u1")
	assert.False(t, ok)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/contacts", bytes.NewReader([]byte("{not json"))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUserEndpoint(t *testing.T) {
	r, store := newTestRouter(t)
	store.Ensure("77", 1, "Grace")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/77", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp userResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "77", resp.UserID)
	assert.Equal(t, "unsubmitted", resp.State)
	assert.False(t, resp.HasContacts)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublishEndpoint(t *testing.T) {
	r, store := newTestRouter(t)

	// Submit and approve out of band.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/contacts", bytes.NewReader(importBody(3))))
	require.Equal(t, http.StatusOK, w.Code)

	// Pending user may not publish yet.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/users/u1/publish", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err := store.Update("u1", func(rec *users.Record) error {
		rec.State = users.StateApproved
		return nil
	})
	require.NoError(t, err)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/users/u1/publish", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp userResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.PublishCount)
	require.NotNil(t, resp.LastPublishAt)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/users/unknown/publish", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
