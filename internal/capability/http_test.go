package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/pkg/logger"
)

func capDef(url string) *model.CapabilityDefinition {
	return &model.CapabilityDefinition{
		Name: "track_order",
		Endpoint: model.EndpointConfig{
			URL:     url,
			Headers: map[string]string{"X-Api-Key": "secret"},
		},
	}
}

func TestHTTPInvoker(t *testing.T) {
	ctx := context.Background()
	inv := NewHTTPInvoker(logger.NewNop())

	t.Run("sends params as JSON and decodes result envelope", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

			var params map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			assert.Equal(t, "ord-9", params["order_id"])

			json.NewEncoder(w).Encode(Result{Output: "ships Friday"})
		}))
		defer srv.Close()

		res, err := inv.Invoke(ctx, capDef(srv.URL), map[string]any{"order_id": "ord-9"})
		require.NoError(t, err)
		assert.Equal(t, "ships Friday", res.Output)
		assert.False(t, res.CannotHelp)
	})

	t.Run("raw body becomes output", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("plain answer"))
		}))
		defer srv.Close()

		res, err := inv.Invoke(ctx, capDef(srv.URL), nil)
		require.NoError(t, err)
		assert.Equal(t, "plain answer", res.Output)
	})

	t.Run("422 means cannot help", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		res, err := inv.Invoke(ctx, capDef(srv.URL), nil)
		require.NoError(t, err)
		assert.True(t, res.CannotHelp)
	})

	t.Run("5xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := inv.Invoke(ctx, capDef(srv.URL), nil)
		assert.Error(t, err)
	})

	t.Run("honors context deadline", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := inv.Invoke(ctx, capDef(srv.URL), nil)
		assert.Error(t, err)
	})

	t.Run("configured method is used", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			w.Write([]byte("ok"))
		}))
		defer srv.Close()

		def := capDef(srv.URL)
		def.Endpoint.Method = http.MethodPut
		_, err := inv.Invoke(ctx, def, nil)
		require.NoError(t, err)
	})
}
