package whisper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/command"
)

// cliExec imitates the whisper program: it writes <stem>.json into the
// --output_dir it was given.
type cliExec struct {
	output string
	resp   command.Response
	err    error
	reqs   []command.Request
}

func (c *cliExec) Run(ctx context.Context, req command.Request) (command.Response, error) {
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return c.resp, c.err
	}
	var dir string
	for i, a := range req.Args {
		if a == "--output_dir" {
			dir = req.Args[i+1]
		}
	}
	if c.output != "" {
		if err := os.WriteFile(filepath.Join(dir, "window-0003.json"), []byte(c.output), 0o644); err != nil {
			return command.Response{}, err
		}
	}
	return c.resp, nil
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestCLILoaderLoadDoesNotRunProgram(t *testing.T) {
	fake := &cliExec{err: ErrResourceExhausted}

	eng, err := (&CLILoader{Exec: fake}).Load(context.Background(), "large", Accelerator)
	require.NoError(t, err)
	assert.Equal(t, "large", eng.Model())
	assert.Empty(t, fake.reqs)
}

func TestCLIEngineTranscribe(t *testing.T) {
	clip := filepath.Join(t.TempDir(), "window-0003.wav")
	require.NoError(t, os.WriteFile(clip, nil, 0o644))
	fake := &cliExec{output: `{"text":"hi there","language":"en","segments":[{"start":0.0,"end":1.2,"text":" hi"},{"start":1.2,"end":2.0,"text":" there"}]}`}

	eng, err := (&CLILoader{Exec: fake, ModelDir: "/models"}).Load(context.Background(), "small", CPU)
	require.NoError(t, err)
	require.NoError(t, eng.Bind(Accelerator))

	res, err := eng.Transcribe(context.Background(), clip, Options{Language: "en", FastPrecision: true})
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, "hi", res.Segments[0].Text)
	assert.Equal(t, "en", res.Language)

	require.Len(t, fake.reqs, 1)
	args := fake.reqs[0].Args
	assert.Equal(t, "whisper", fake.reqs[0].Name)
	assert.Equal(t, clip, args[0])
	assert.Equal(t, "small", argAfter(args, "--model"))
	assert.Equal(t, "cuda", argAfter(args, "--device"))
	assert.Equal(t, "True", argAfter(args, "--fp16"))
	assert.Equal(t, "en", argAfter(args, "--language"))
	assert.Equal(t, "/models", argAfter(args, "--model_dir"))

	_, err = os.Stat(argAfter(args, "--output_dir"))
	assert.True(t, os.IsNotExist(err), "output dir should be removed")
}

func TestCLIEngineFailure(t *testing.T) {
	clip := filepath.Join(t.TempDir(), "window-0003.wav")
	require.NoError(t, os.WriteFile(clip, nil, 0o644))
	fake := &cliExec{err: &command.ExitError{Name: "whisper", ExitCode: 1, Stderr: "RuntimeError: CUDA out of memory"}}

	eng, err := (&CLILoader{Exec: fake}).Load(context.Background(), "large", Accelerator)
	require.NoError(t, err)

	_, err = eng.Transcribe(context.Background(), clip, Options{})
	require.Error(t, err)
	assert.Equal(t, apperr.RecognitionFailed, apperr.KindOf(err))
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, "False", argAfter(fake.reqs[0].Args, "--fp16"))
}

func TestCLIEngineTimeout(t *testing.T) {
	clip := filepath.Join(t.TempDir(), "window-0003.wav")
	require.NoError(t, os.WriteFile(clip, nil, 0o644))
	fake := &cliExec{err: apperr.Errorf(apperr.Timeout, "whisper", "exceeded 1s")}

	eng, err := (&CLILoader{Exec: fake}).Load(context.Background(), "small", CPU)
	require.NoError(t, err)

	_, err = eng.Transcribe(context.Background(), clip, Options{})
	assert.Equal(t, apperr.Timeout, apperr.KindOf(err))
}
