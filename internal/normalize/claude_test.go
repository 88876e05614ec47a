// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/libshelf/internal/httputil"
	"github.com/pdiddy/libshelf/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// claudeServer answers every request with reply and records the last
// request body.
func claudeServer(t *testing.T, status int, reply string, got *claudeRequest) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{
				"content": []map[string]string{{"type": "text", "text": reply}},
			})
			return
		}
		w.Write([]byte(reply))
	}))
	t.Cleanup(ts.Close)

	saved := claudeAPIURL
	claudeAPIURL = ts.URL
	t.Cleanup(func() { claudeAPIURL = saved })
}

func newTestNormalizer(t *testing.T, promptFile string) *ClaudeNormalizer {
	t.Helper()
	n, err := NewClaudeNormalizer(types.AIConfig{APIKey: "test-key", PromptFile: promptFile, MaxRetries: 1}, nil)
	require.NoError(t, err)
	return n
}

func TestClaudeNormalizer_Normalize(t *testing.T) {
	var req claudeRequest
	claudeServer(t, http.StatusOK, "  \"O'Reilly Media\"\n", &req)

	got, err := newTestNormalizer(t, "").Normalize(context.Background(), "O'Reilly Media, Inc.")
	require.NoError(t, err)
	assert.Equal(t, "O'Reilly Media", got)

	assert.Equal(t, DefaultModel, req.Model)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "Publisher string: O'Reilly Media, Inc.")
}

func TestClaudeNormalizer_Unknown(t *testing.T) {
	claudeServer(t, http.StatusOK, "UNKNOWN", nil)

	_, err := newTestNormalizer(t, "").Normalize(context.Background(), "Acrobat Distiller 9.0")
	assert.ErrorIs(t, err, ErrNoAnswer)
}

func TestClaudeNormalizer_HTTPError(t *testing.T) {
	claudeServer(t, http.StatusUnauthorized, `{"error":"invalid x-api-key"}`, nil)

	_, err := newTestNormalizer(t, "").Normalize(context.Background(), "Packt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClaudeNormalizer_CustomPrompt(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(plain, []byte("Give the canonical publisher.\n"), 0o644))

	var req claudeRequest
	claudeServer(t, http.StatusOK, "Manning", &req)

	_, err := newTestNormalizer(t, plain).Normalize(context.Background(), "Manning Pubns")
	require.NoError(t, err)
	assert.Equal(t, "Give the canonical publisher.\n\nPublisher string: Manning Pubns\n", req.Messages[0].Content)
}

func TestNewClaudeNormalizer_RequiresKey(t *testing.T) {
	_, err := NewClaudeNormalizer(types.AIConfig{}, nil)
	assert.Error(t, err)
}

func TestLoadPrompt(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	tmpl, err := LoadPrompt(write("templated.txt", "Name for {{.Publisher}}?"))
	require.NoError(t, err)
	out, err := renderPrompt(tmpl, "Wiley")
	require.NoError(t, err)
	assert.Equal(t, "Name for Wiley?", out)

	_, err = LoadPrompt(write("empty.txt", "  \n"))
	assert.Error(t, err)

	_, err = LoadPrompt(write("broken.txt", "{{.Publisher"))
	assert.Error(t, err)

	_, err = LoadPrompt(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestParseAnswer(t *testing.T) {
	tests := map[string]string{
		"Manning":                     "Manning",
		"  'No Starch Press'  ":       "No Starch Press",
		"Addison-Wesley\nBecause ...": "Addison-Wesley",
		"Canonical name: Apress":      "Apress",
		"unknown":                     "",
		"":                            "",
		"**Pragmatic   Bookshelf**":   "Pragmatic Bookshelf",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseAnswer(in), "reply %q", in)
	}
}
