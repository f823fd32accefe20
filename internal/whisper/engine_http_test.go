package whisper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
)

func newModelServer(t *testing.T, transcribe http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/", func(w http.ResponseWriter, r *http.Request) {
		switch filepath.Base(r.URL.Path) {
		case "small", "base":
			w.WriteHeader(http.StatusOK)
		case "large":
			http.Error(w, "CUDA error: out of memory", http.StatusInternalServerError)
		case "huge":
			w.WriteHeader(http.StatusInsufficientStorage)
		default:
			http.NotFound(w, r)
		}
	})
	if transcribe != nil {
		mux.HandleFunc("/v1/audio/transcriptions", transcribe)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPLoaderLoad(t *testing.T) {
	srv := newModelServer(t, nil)
	l := NewHTTPLoader(srv.URL+"/", "", 5)

	eng, err := l.Load(context.Background(), "small", Accelerator)
	require.NoError(t, err)
	assert.Equal(t, "http", eng.Name())
	assert.Equal(t, CPU, eng.Device())
	assert.Error(t, eng.Bind(Accelerator))
	assert.Equal(t, CPU, eng.Device(), "a refused bind leaves the reported device alone")
	cs, ok := eng.(ConcurrentSafe)
	require.True(t, ok)
	assert.True(t, cs.ConcurrentSafe())

	_, err = l.Load(context.Background(), "large", Accelerator)
	assert.True(t, IsResourceExhausted(err))
	_, err = l.Load(context.Background(), "huge", Accelerator)
	assert.ErrorIs(t, err, ErrResourceExhausted)
	_, err = l.Load(context.Background(), "missing", Accelerator)
	require.Error(t, err)
	assert.False(t, IsResourceExhausted(err))
}

func TestHTTPLoaderRequiresURL(t *testing.T) {
	_, err := NewHTTPLoader("", "", 0).Load(context.Background(), "small", CPU)
	assert.Error(t, err)
}

func TestHTTPEngineTranscribe(t *testing.T) {
	clip := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(clip, []byte("RIFF"), 0o644))

	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "small", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		assert.Equal(t, "de", r.FormValue("language"))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		assert.Equal(t, "RIFF", string(b))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"language": "german",
			"segments": []map[string]any{
				{"start": 0.0, "end": 1.5, "text": " hallo "},
				{"start": 1.5, "end": 3.0, "text": "welt"},
			},
		})
	})
	eng, err := NewHTTPLoader(srv.URL, "secret", 5).Load(context.Background(), "small", CPU)
	require.NoError(t, err)

	res, err := eng.Transcribe(context.Background(), clip, Options{Language: "de"})
	require.NoError(t, err)
	assert.Equal(t, "german", res.Language)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, "hallo", res.Segments[0].Text)
	assert.Equal(t, 3.0, res.Segments[1].End)
}

func TestHTTPEngineTranscribeServerError(t *testing.T) {
	clip := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(clip, []byte("RIFF"), 0o644))

	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "decoder crashed", http.StatusInternalServerError)
	})
	eng, err := NewHTTPLoader(srv.URL, "", 5).Load(context.Background(), "small", CPU)
	require.NoError(t, err)

	_, err = eng.Transcribe(context.Background(), clip, Options{})
	require.Error(t, err)
	assert.Equal(t, apperr.RecognitionFailed, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "decoder crashed")
}
