package scanner_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardo-ai/guardo/internal/scanner"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *scanner.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return scanner.NewClient(scanner.Config{
		Endpoint:      srv.URL,
		Token:         "test-token",
		InputProfile:  "input-profile",
		OutputProfile: "output-profile",
		AppName:       "guardo",
		AppUser:       "tester",
		Model:         "gpt-4o-mini",
		Timeout:       2 * time.Second,
	})
}

func TestClientScanRequestShape(t *testing.T) {
	t.Parallel()

	var (
		gotPath    string
		gotToken   string
		gotPayload map[string]any
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("x-pan-token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_ = json.NewEncoder(w).Encode(map[string]any{"action": "allow"})
	})

	t.Run("input scan sends prompt content", func(t *testing.T) {
		verdict, err := client.ScanInput(t.Context(), "what are your hours")
		require.NoError(t, err)
		assert.Equal(t, scanner.ActionAllow, verdict.Action)

		assert.Equal(t, "/v1/scan/sync/request", gotPath)
		assert.Equal(t, "test-token", gotToken)

		metadata, ok := gotPayload["metadata"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "gpt-4o-mini", metadata["ai_model"])
		assert.Equal(t, "guardo", metadata["app_name"])
		assert.Equal(t, "tester", metadata["app_user"])

		profile, ok := gotPayload["ai_profile"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "input-profile", profile["profile_name"])

		contents, ok := gotPayload["contents"].([]any)
		require.True(t, ok)
		require.Len(t, contents, 1)
		assert.Equal(t, map[string]any{"prompt": "what are your hours"}, contents[0])
	})

	t.Run("output scan sends response content", func(t *testing.T) {
		_, err := client.ScanOutput(t.Context(), "we open at nine")
		require.NoError(t, err)

		profile, ok := gotPayload["ai_profile"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "output-profile", profile["profile_name"])

		contents, ok := gotPayload["contents"].([]any)
		require.True(t, ok)
		require.Len(t, contents, 1)
		assert.Equal(t, map[string]any{"response": "we open at nine"}, contents[0])
	})
}

func TestClientVerdictMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		response     map[string]any
		wantAction   scanner.Action
		wantCategory string
	}{
		{
			name:         "explicit block",
			response:     map[string]any{"action": "block", "category": "toxicity"},
			wantAction:   scanner.ActionBlock,
			wantCategory: "toxicity",
		},
		{
			name:       "explicit allow",
			response:   map[string]any{"action": "allow"},
			wantAction: scanner.ActionAllow,
		},
		{
			name:       "unknown action maps to allow",
			response:   map[string]any{"action": "review"},
			wantAction: scanner.ActionAllow,
		},
		{
			name:       "missing action maps to allow",
			response:   map[string]any{"category": "benign"},
			wantAction: scanner.ActionAllow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.response)
			})

			verdict, err := client.ScanOutput(t.Context(), "text")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, verdict.Action)
			assert.Equal(t, tt.wantCategory, verdict.Category)
		})
	}
}

func TestClientUnavailable(t *testing.T) {
	t.Parallel()

	t.Run("non-200 status", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "upstream error", http.StatusBadGateway)
		})

		_, err := client.ScanOutput(t.Context(), "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, scanner.ErrUnavailable)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		})

		_, err := client.ScanOutput(t.Context(), "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, scanner.ErrUnavailable)
	})

	t.Run("connection refused", func(t *testing.T) {
		t.Parallel()

		client := scanner.NewClient(scanner.Config{
			Endpoint: "http://127.0.0.1:1",
			Token:    "t",
			Timeout:  500 * time.Millisecond,
		})

		_, err := client.ScanOutput(t.Context(), "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, scanner.ErrUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"action": "allow"})
		}))
		t.Cleanup(srv.Close)

		client := scanner.NewClient(scanner.Config{
			Endpoint: srv.URL,
			Token:    "t",
			Timeout:  200 * time.Millisecond,
		})

		_, err := client.ScanOutput(t.Context(), "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, scanner.ErrUnavailable)
	})
}
