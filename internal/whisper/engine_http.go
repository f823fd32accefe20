package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/transcript"
)

// HTTPLoader talks to an OpenAI-compatible transcription server
// (LocalAI, speaches, faster-whisper-server and similar).
type HTTPLoader struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewHTTPLoader builds a loader for base. timeoutSec <= 0 selects 10 minutes,
// enough for a five minute window on a CPU server.
func NewHTTPLoader(base, apiKey string, timeoutSec int) *HTTPLoader {
	if timeoutSec <= 0 {
		timeoutSec = 600
	}
	return &HTTPLoader{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

// Load checks that the server knows model. 507 or an out-of-memory body is
// reported as ErrResourceExhausted. device is ignored since the server
// places the model.
func (l *HTTPLoader) Load(ctx context.Context, model string, device Device) (Engine, error) {
	if l == nil || l.base == "" {
		return nil, errors.New("engine url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.base+"/v1/models/"+url.PathEscape(model), nil)
	if err != nil {
		return nil, err
	}
	l.authorize(req)

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach engine: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &HTTPEngine{loader: l, model: model}, nil
	case resp.StatusCode == http.StatusInsufficientStorage || looksExhausted(string(body)):
		return nil, fmt.Errorf("%w: engine http %d: %s", ErrResourceExhausted, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return nil, fmt.Errorf("engine http %d for model %s: %s", resp.StatusCode, model, strings.TrimSpace(string(body)))
	}
}

func (l *HTTPLoader) authorize(req *http.Request) {
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}
}

// HTTPEngine posts each clip to /v1/audio/transcriptions.
type HTTPEngine struct {
	loader *HTTPLoader
	model  string
}

func (e *HTTPEngine) Name() string         { return "http" }
func (e *HTTPEngine) Model() string        { return e.model }
func (e *HTTPEngine) Device() Device       { return CPU } // nothing is placed locally
func (e *HTTPEngine) Close() error         { return nil }
func (e *HTTPEngine) ConcurrentSafe() bool { return true }

// Bind always fails: the server owns device placement.
func (e *HTTPEngine) Bind(device Device) error {
	return fmt.Errorf("device is chosen by the server at %s", e.loader.base)
}

type verboseJSON struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (e *HTTPEngine) Transcribe(ctx context.Context, clipPath string, opts Options) (RawResult, error) {
	res, err := e.transcribe(ctx, clipPath, opts)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return RawResult{}, apperr.New(apperr.Timeout, "transcribe "+clipPath, err)
		}
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "transcribe "+clipPath, err)
	}
	return res, nil
}

func (e *HTTPEngine) transcribe(ctx context.Context, clipPath string, opts Options) (RawResult, error) {
	f, err := os.Open(clipPath)
	if err != nil {
		return RawResult{}, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(clipPath))
	if err != nil {
		return RawResult{}, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return RawResult{}, err
	}
	fields := map[string]string{
		"model":                     e.model,
		"response_format":           "verbose_json",
		"timestamp_granularities[]": "segment",
		"temperature":               "0",
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return RawResult{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return RawResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.loader.base+"/v1/audio/transcriptions", &body)
	if err != nil {
		return RawResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	e.loader.authorize(req)

	resp, err := e.loader.http.Do(req)
	if err != nil {
		return RawResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return RawResult{}, fmt.Errorf("engine http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var vj verboseJSON
	if err := json.NewDecoder(resp.Body).Decode(&vj); err != nil {
		return RawResult{}, fmt.Errorf("decode response: %w", err)
	}
	out := RawResult{Language: vj.Language}
	for _, s := range vj.Segments {
		out.Segments = append(out.Segments, transcript.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return out, nil
}
