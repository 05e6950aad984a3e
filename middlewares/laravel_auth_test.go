package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLaravel(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLaravelAuthStoresUser(t *testing.T) {
	srv := fakeLaravel(t, http.StatusOK, `{"id":42,"name":"Ana","email":"ana@spacearena.net"}`)

	var seen LaravelUser
	handler := LaravelAuth(srv.URL, srv.Client())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = user
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/campaigns", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "42", seen.ActorID())
	assert.Equal(t, "Ana", seen.Name)
}

func TestLaravelAuthRejections(t *testing.T) {
	valid := fakeLaravel(t, http.StatusOK, `{"id":42,"name":"Ana","email":"ana@spacearena.net"}`)
	incomplete := fakeLaravel(t, http.StatusOK, `{"id":0}`)

	tests := []struct {
		name   string
		url    string
		token  string
		status int
	}{
		{name: "missing token", url: valid.URL, status: http.StatusUnauthorized},
		{name: "rejected token", url: valid.URL, token: "Bearer bad", status: http.StatusUnauthorized},
		{name: "incomplete user", url: incomplete.URL, token: "Bearer good", status: http.StatusUnauthorized},
		{name: "laravel down", url: "http://127.0.0.1:1", token: "Bearer good", status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := LaravelAuth(tt.url, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/v1/campaigns", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", tt.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, called)
		})
	}
}
