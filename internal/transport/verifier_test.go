package transport_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/internal/transport"
)

func TestOAuth2Verifier_ReturnsSubjectOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"sub": "u1"})
	}))
	t.Cleanup(srv.Close)

	v := &transport.OAuth2Verifier{UserInfoURL: srv.URL}
	uid, err := v.Verify(t.Context(), "good-token")
	require.NoError(t, err)
	require.Equal(t, "u1", uid)
}

func TestOAuth2Verifier_ErrorsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	v := &transport.OAuth2Verifier{UserInfoURL: srv.URL}
	_, err := v.Verify(t.Context(), "bad-token")
	require.Error(t, err)
}

func TestOAuth2Verifier_ErrorsOnMissingSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	t.Cleanup(srv.Close)

	v := &transport.OAuth2Verifier{UserInfoURL: srv.URL}
	_, err := v.Verify(t.Context(), "token")
	require.Error(t, err)
}
