package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourbook/sessiond/internal/models"
)

func TestUserByEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/by-email", r.URL.Path)
		assert.Equal(t, "trang@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"trang@example.com","username":"trang","phone":null}`))
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, 5*time.Second, zerolog.Nop())
	patch, err := c.UserByEmail(context.Background(), "trang@example.com", "tok")
	require.NoError(t, err)

	base := models.Identity{Email: "trang@example.com", Role: models.RoleUser}
	phone := "123"
	base.Phone = &phone

	merged := patch.Apply(base)
	assert.Equal(t, "trang", merged.Username)
	assert.Nil(t, merged.Phone)
}

func TestUserByEmailUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, 5*time.Second, zerolog.Nop())
	_, err := c.UserByEmail(context.Background(), "x@example.com", "expired")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUserByEmailServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, 5*time.Second, zerolog.Nop())
	_, err := c.UserByEmail(context.Background(), "x@example.com", "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
