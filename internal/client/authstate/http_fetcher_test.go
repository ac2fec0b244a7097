package authstate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisync/session-gateway/internal/core/domain"
)

func TestHTTPProfileFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(domain.SessionCookieName)
		if err != nil || c.Value != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"uid":     "A",
			"profile": domain.Profile{UID: "A", Name: "Ana", ClinicID: "c1"},
		})
	}))
	defer srv.Close()

	f := NewHTTPProfileFetcher(srv.URL+"/", func() string { return "good" })
	p, err := f.FetchProfile(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.Name)
	assert.Equal(t, "c1", p.ClinicID)

	_, err = f.FetchProfile(context.Background(), "B")
	assert.Error(t, err)

	anon := NewHTTPProfileFetcher(srv.URL, func() string { return "" })
	_, err = anon.FetchProfile(context.Background(), "A")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestHTTPProfileFetcher_NoProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"uid":"A","profile":null}`))
	}))
	defer srv.Close()

	_, err := NewHTTPProfileFetcher(srv.URL, nil).FetchProfile(context.Background(), "A")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}
