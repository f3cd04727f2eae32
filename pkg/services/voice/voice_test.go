package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/convai/conversation/get_signed_url", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"signed_url": "wss://api.elevenlabs.io/v1/convai/conversation?token=abc",
		})
	}))
	defer srv.Close()

	s := &Service{baseURL: srv.URL}
	got, err := s.SignedURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wss://api.elevenlabs.io/v1/convai/conversation?token=abc", got)
}

func TestSignedURLUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := &Service{baseURL: srv.URL}
	_, err := s.SignedURL(context.Background())
	assert.ErrorContains(t, err, "status code 401")
}

func TestSynthesizeRequiresText(t *testing.T) {
	s := &Service{}
	_, err := s.Synthesize(context.Background(), "uid", "   ", "")
	assert.Error(t, err)
}
