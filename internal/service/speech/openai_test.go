package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-journal/backend/internal/model/speech"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := openai.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	return &client
}

func TestOpenAITranscriber(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  good morning "}`)
	})

	text, err := NewOpenAITranscriber(client, "", "en-US").Transcribe(context.Background(), WrapWAV([]byte{1, 2}, model.PCM16Mono(24000)))
	require.NoError(t, err)
	assert.Equal(t, "good morning", text)
}

func TestOpenAISynthesizer(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/speech"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"response_format":"pcm"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{7, 8, 9})
	})

	audio, err := NewOpenAISynthesizer(client, "", "").Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8, 9}, audio)
}

func TestIsoLanguage(t *testing.T) {
	assert.Equal(t, "en", isoLanguage("en-US"))
	assert.Equal(t, "zh", isoLanguage("zh_CN"))
	assert.Equal(t, "", isoLanguage(""))
}
