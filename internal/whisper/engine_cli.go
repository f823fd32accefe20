package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/command"
	"github.com/obiente/translate/chunkscribe/internal/transcript"
)

// CLILoader drives the openai-whisper command line program. The model is
// loaded by every invocation, so Load only checks that the program exists
// and never reports ErrResourceExhausted. An out-of-memory model surfaces on
// the first Transcribe instead, wrapped in ErrResourceExhausted, and is not
// retried with a smaller model.
type CLILoader struct {
	Exec     command.Executor
	ModelDir string // optional --model_dir
	Timeout  time.Duration
}

type pathLooker interface {
	LookPath(name string) (string, error)
}

func (l *CLILoader) Load(ctx context.Context, model string, device Device) (Engine, error) {
	if lp, ok := l.Exec.(pathLooker); ok {
		if _, err := lp.LookPath("whisper"); err != nil {
			return nil, fmt.Errorf("whisper program not found: %w", err)
		}
	}
	return &CLIEngine{exec: l.Exec, model: model, device: device, modelDir: l.ModelDir, timeout: l.Timeout}, nil
}

// CLIEngine runs one whisper process per clip.
type CLIEngine struct {
	exec     command.Executor
	model    string
	device   Device
	modelDir string
	timeout  time.Duration
}

func (e *CLIEngine) Name() string   { return "cli" }
func (e *CLIEngine) Model() string  { return e.model }
func (e *CLIEngine) Device() Device { return e.device }
func (e *CLIEngine) Close() error   { return nil }

// Bind switches the --device flag passed on later calls.
func (e *CLIEngine) Bind(device Device) error {
	e.device = device
	return nil
}

// cliOutput is the subset of the JSON written by --output_format json.
type cliOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (e *CLIEngine) Transcribe(ctx context.Context, clipPath string, opts Options) (RawResult, error) {
	outDir, err := os.MkdirTemp(filepath.Dir(clipPath), "whisper-out-")
	if err != nil {
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "create output dir", err)
	}
	defer os.RemoveAll(outDir)

	device := "cpu"
	if e.device == Accelerator {
		device = "cuda"
	}
	fp16 := "False"
	if opts.FastPrecision {
		fp16 = "True"
	}
	args := []string{
		clipPath,
		"--model", e.model,
		"--device", device,
		"--fp16", fp16,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if e.modelDir != "" {
		args = append(args, "--model_dir", e.modelDir)
	}

	resp, err := e.exec.Run(ctx, command.Request{Name: "whisper", Args: args, Timeout: e.timeout})
	if err != nil {
		if IsResourceExhausted(err) || looksExhausted(resp.Stderr) {
			err = fmt.Errorf("%w: %w", ErrResourceExhausted, err)
		}
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "whisper "+clipPath, err)
	}

	stem := strings.TrimSuffix(filepath.Base(clipPath), filepath.Ext(clipPath))
	b, err := os.ReadFile(filepath.Join(outDir, stem+".json"))
	if err != nil {
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "read whisper output", err)
	}
	var out cliOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "parse whisper output", err)
	}

	res := RawResult{Language: out.Language}
	for _, s := range out.Segments {
		res.Segments = append(res.Segments, transcript.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return res, nil
}
