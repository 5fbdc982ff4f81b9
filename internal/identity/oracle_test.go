package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPScoreOracle(t *testing.T) {
	ctx := context.Background()

	t.Run("parses a successful response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "secret-key", r.FormValue("secret"))
			assert.Equal(t, "proof-token", r.FormValue("response"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success": true, "score": 34.5}`))
		}))
		defer server.Close()

		oracle := NewHTTPScoreOracle(server.URL, "secret-key")
		ok, score, err := oracle.Verify(ctx, "0xabc", "proof-token")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 34.5, score)
	})

	t.Run("parses a rejection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"success": false, "score": 0, "error-codes": ["invalid-input-response"]}`))
		}))
		defer server.Close()

		oracle := NewHTTPScoreOracle(server.URL, "secret-key")
		ok, _, err := oracle.Verify(ctx, "0xabc", "bad-token")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("errors on non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		oracle := NewHTTPScoreOracle(server.URL, "secret-key")
		_, _, err := oracle.Verify(ctx, "0xabc", "token")
		assert.Error(t, err)
	})

	t.Run("errors on malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		oracle := NewHTTPScoreOracle(server.URL, "secret-key")
		_, _, err := oracle.Verify(ctx, "0xabc", "token")
		assert.Error(t, err)
	})
}
