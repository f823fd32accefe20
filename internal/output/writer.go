// Package output materializes a transcript as <base>.json and <base>.txt.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/transcript"
)

type document struct {
	Segments []transcript.Segment `json:"segments"`
}

// JSON renders segments as {"segments":[...]} with two-space indentation.
// Text is written as is, without HTML escaping.
func JSON(segs []transcript.Segment) ([]byte, error) {
	if segs == nil {
		segs = []transcript.Segment{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(document{Segments: segs}); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Text renders one "[start-end] text" line per segment, without a trailing newline.
func Text(segs []transcript.Segment) string {
	lines := make([]string, 0, len(segs))
	for _, s := range segs {
		lines = append(lines, fmt.Sprintf("[%.1f-%.1f] %s", s.Start, s.End, s.Text))
	}
	return strings.Join(lines, "\n")
}

// Write stores both renderings next to base. Either both files exist
// afterwards or neither does.
func Write(segs []transcript.Segment, base string) (jsonPath, txtPath string, err error) {
	jsonPath, txtPath = base+".json", base+".txt"

	js, err := JSON(segs)
	if err != nil {
		return "", "", apperr.New(apperr.OutputWriteFailed, "encode json", err)
	}

	jsonTmp, err := writeTemp(jsonPath, js)
	if err != nil {
		return "", "", apperr.New(apperr.OutputWriteFailed, "write "+jsonPath, err)
	}
	txtTmp, err := writeTemp(txtPath, []byte(Text(segs)))
	if err != nil {
		os.Remove(jsonTmp)
		return "", "", apperr.New(apperr.OutputWriteFailed, "write "+txtPath, err)
	}

	if err := os.Rename(jsonTmp, jsonPath); err != nil {
		os.Remove(jsonTmp)
		os.Remove(txtTmp)
		return "", "", apperr.New(apperr.OutputWriteFailed, "write "+jsonPath, err)
	}
	if err := os.Rename(txtTmp, txtPath); err != nil {
		os.Remove(txtTmp)
		os.Remove(jsonPath)
		return "", "", apperr.New(apperr.OutputWriteFailed, "write "+txtPath, err)
	}

	log.Debug().Str("json", jsonPath).Str("txt", txtPath).Int("segments", len(segs)).Msg("output: transcript written")
	return jsonPath, txtPath, nil
}

// writeTemp writes data to a hidden file in dst's directory and returns its path.
func writeTemp(dst string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
