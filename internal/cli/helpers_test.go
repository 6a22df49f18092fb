package cli_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endogpt/endokit/internal/cli"
	"github.com/endogpt/endokit/internal/secrets"
)

// testEnv isolates configuration, secrets and API endpoints in temp dirs.
type testEnv struct {
	home       string
	secretsDir string
}

func setupEnv(t *testing.T) testEnv {
	t.Helper()
	home := t.TempDir()
	env := testEnv{home: home, secretsDir: filepath.Join(home, "secrets")}

	t.Setenv("ENDOKIT_HOME", home)
	t.Setenv("ENDOKIT_SECRETS_DIR", env.secretsDir)
	t.Setenv("ENDOKIT_LOG_LEVEL", "error")
	t.Setenv("ENDOKIT_LOG_FORMAT", "json")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("ANTHROPIC_BASE_URL", "")
	return env
}

func (e testEnv) storeKey(t *testing.T, name, value string) {
	t.Helper()
	store := secrets.NewStore(e.secretsDir)
	if _, err := os.Stat(filepath.Join(e.secretsDir, secrets.KeyFile)); err != nil {
		require.NoError(t, store.Init(false))
	}
	require.NoError(t, store.Set(name, value))
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := cli.NewRootCmd("test")
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// chatRequest is the subset of a chat completions request the fake reads.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
	MaxTokens int `json:"max_tokens"`
}

// userText returns the concatenated text parts of the user message.
func (r chatRequest) userText() string {
	var sb strings.Builder
	for _, m := range r.Messages {
		if m.Role != "user" {
			continue
		}
		var parts []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if json.Unmarshal(m.Content, &parts) == nil {
			for _, p := range parts {
				sb.WriteString(p.Text)
			}
		}
	}
	return sb.String()
}

// fakeOpenAI answers chat completions with reply(request). A non-empty error
// status makes every call fail with that HTTP status.
type fakeOpenAI struct {
	*httptest.Server
	calls  atomic.Int32
	status atomic.Int32
	reply  func(chatRequest) string
}

func newFakeOpenAI(t *testing.T, reply func(chatRequest) string) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{reply: reply}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		if status := int(f.status.Load()); status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
			return
		}

		var req chatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": f.reply(req)}}},
		})
	}))
	t.Cleanup(f.Close)
	t.Setenv("OPENAI_BASE_URL", f.URL)
	return f
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}
