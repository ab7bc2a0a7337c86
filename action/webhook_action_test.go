package action

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebhookAction(t *testing.T) {
	act := NewWebhookAction()

	t.Run("test posts json payload", func(t *testing.T) {
		var gotBody map[string]any
		var gotHeader string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			gotHeader = r.Header.Get("X-Token")
			json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"received":true}`))
		}))
		defer srv.Close()

		out, err := act.Execute(map[string]any{
			"url":     srv.URL,
			"payload": map[string]any{"email": "a@b.com"},
			"headers": map[string]any{"X-Token": "secret"},
		})
		require.NoError(t, err)
		require.Equal(t, 200, out["statusCode"])
		require.Equal(t, "a@b.com", gotBody["email"])
		require.Equal(t, "secret", gotHeader)
	})

	t.Run("test server error fails the action", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := act.Execute(map[string]any{"url": srv.URL})
		require.Error(t, err)
	})

	t.Run("test missing url fails", func(t *testing.T) {
		_, err := act.Execute(map[string]any{})
		require.Error(t, err)
	})

	t.Run("test validate allows placeholder url", func(t *testing.T) {
		err := act.Validate(map[string]any{"url": "{webhookData.body.callback}"})
		require.NoError(t, err)
	})
}
