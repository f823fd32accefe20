package whisper

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDevice(t *testing.T) {
	for in, want := range map[string]Device{
		"cpu":         CPU,
		" CPU ":       CPU,
		"accelerator": Accelerator,
		"cuda":        Accelerator,
		"GPU":         Accelerator,
	} {
		got, err := ParseDevice(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDevice("tpu")
	assert.Error(t, err)
}

func TestIsResourceExhausted(t *testing.T) {
	assert.False(t, IsResourceExhausted(nil))
	assert.True(t, IsResourceExhausted(ErrResourceExhausted))
	assert.True(t, IsResourceExhausted(fmt.Errorf("load: %w", ErrResourceExhausted)))
	assert.True(t, IsResourceExhausted(errors.New("CUDA error: out of memory")))
	assert.True(t, IsResourceExhausted(errors.New("ggml: failed to allocate 1.2 GB buffer")))
	assert.False(t, IsResourceExhausted(errors.New("model file not found")))
}

func TestModelFile(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "ggml-small.bin"), ModelFile("models", "small"))
	assert.Equal(t, filepath.Join("models", "ggml-base.en.bin"), ModelFile("models", "ggml-base.en"))
	assert.Equal(t, "custom.bin", ModelFile("models", "custom.bin"))

	abs := filepath.Join(string(filepath.Separator)+"opt", "m", "large")
	assert.Equal(t, abs, ModelFile("models", abs))
}
