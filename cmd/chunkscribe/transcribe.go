package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/obiente/translate/chunkscribe/internal/command"
	"github.com/obiente/translate/chunkscribe/internal/config"
	serverhttp "github.com/obiente/translate/chunkscribe/internal/http"
	"github.com/obiente/translate/chunkscribe/internal/logging"
	"github.com/obiente/translate/chunkscribe/internal/media"
	"github.com/obiente/translate/chunkscribe/internal/metrics"
	"github.com/obiente/translate/chunkscribe/internal/pipeline"
	"github.com/obiente/translate/chunkscribe/internal/progress"
	"github.com/obiente/translate/chunkscribe/internal/whisper"
	"github.com/obiente/translate/chunkscribe/internal/ws"
)

type transcribeFlags struct {
	configPath   string
	model        string
	device       string
	window       float64
	highPass     int
	lowPass      int
	language     string
	output       string
	engine       string
	workers      int
	probe        string
	verbose      bool
	progressAddr string
	metricsFile  string
}

func newTranscribeCmd() *cobra.Command {
	var f transcribeFlags
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "transcribe <source>",
		Short: "Transcribe an audio or video file",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd.Flags(), &f, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runTranscribe(cmd, cfg, args[0], f.output)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.model, "model", def.Model, "model name (tiny, base, small, medium, large) or ggml file")
	fs.StringVar(&f.device, "device", def.Device, "auto, cpu or accelerator")
	fs.Float64Var(&f.window, "window", def.WindowLengthSec, "window length in seconds, 0 for a single window")
	fs.IntVar(&f.highPass, "high-pass", def.HighPassHz, "high-pass cutoff in Hz, 0 disables")
	fs.IntVar(&f.lowPass, "low-pass", def.LowPassHz, "low-pass cutoff in Hz, 0 disables")
	fs.StringVar(&f.language, "language", "", "ISO 639-1 language code, empty to auto-detect")
	fs.StringVarP(&f.output, "output", "o", "", "output path without extension (default: source without extension)")
	fs.StringVar(&f.engine, "engine", def.Engine, "cli, http or whispercpp")
	fs.IntVar(&f.workers, "workers", def.Workers, "windows processed at once")
	fs.StringVar(&f.probe, "probe", def.Probe, "duration probe: ffprobe or wav")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "stream ffmpeg and engine diagnostics to stderr")
	fs.StringVar(&f.progressAddr, "progress-addr", "", "serve a websocket progress feed on this address")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
	return cmd
}

// applyFlags copies explicitly set flags over the loaded config.
func applyFlags(fs *pflag.FlagSet, f *transcribeFlags, cfg *config.Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("model", func() { cfg.Model = f.model })
	set("device", func() { cfg.Device = f.device })
	set("window", func() { cfg.WindowLengthSec = f.window })
	set("high-pass", func() { cfg.HighPassHz = f.highPass })
	set("low-pass", func() { cfg.LowPassHz = f.lowPass })
	set("language", func() { cfg.Language = f.language })
	set("engine", func() { cfg.Engine = f.engine })
	set("workers", func() { cfg.Workers = f.workers })
	set("probe", func() { cfg.Probe = f.probe })
	set("verbose", func() { cfg.Verbose = f.verbose })
	set("progress-addr", func() { cfg.ProgressAddr = f.progressAddr })
	set("metrics-file", func() { cfg.MetricsFile = f.metricsFile })
}

func runTranscribe(cmd *cobra.Command, cfg config.Config, source, outputBase string) error {
	closer, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device, err := cfg.ResolveDevice(exec.LookPath)
	if err != nil {
		return err
	}
	log.Info().Str("config", cfg.String()).Str("resolved_device", string(device)).Msg("chunkscribe starting")

	rec := metrics.New()
	defer func() {
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("writing metrics file")
		}
	}()

	reporters := progress.Multi{progress.Log{}}
	if cfg.ProgressAddr != "" {
		srvCtx, cancel := context.WithCancel(context.Background())
		wss := ws.NewServer()
		_, done, err := serverhttp.Serve(srvCtx, cfg.ProgressAddr, serverhttp.NewRouter(wss))
		if err != nil {
			cancel()
			return fmt.Errorf("progress server: %w", err)
		}
		defer func() {
			cancel()
			select {
			case <-done:
			case <-time.After(3 * time.Second):
			}
		}()
		reporters = append(reporters, wss)
	}

	p := buildPipeline(cfg, device, rec, cmd.ErrOrStderr())
	p.Reporter = reporters
	res, err := p.Run(ctx, pipeline.Request{Source: source, OutputBase: outputBase})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.JSONPath)
	fmt.Fprintln(out, res.TXTPath)
	return nil
}

// buildPipeline wires the executor, media tools and engine loader chosen by cfg.
func buildPipeline(cfg config.Config, device whisper.Device, rec *metrics.Recorder, diagnostics io.Writer) *pipeline.Pipeline {
	ex := &command.Local{
		Binaries: map[string]string{
			"ffmpeg":  cfg.FFmpeg,
			"ffprobe": cfg.FFprobe,
			"whisper": cfg.EngineProgram,
		},
		Verbose:     cfg.Verbose,
		Diagnostics: diagnostics,
		Metrics:     rec,
	}

	var prober media.Prober = &media.FFprobe{Exec: ex, Timeout: cfg.ProbeTimeout()}
	if cfg.Probe == "wav" {
		prober = media.WAVProber{}
	}

	var loader whisper.Loader
	switch cfg.Engine {
	case "http":
		loader = whisper.NewHTTPLoader(cfg.EngineURL, cfg.EngineAPIKey, int(cfg.RecognizeTimeout().Seconds()))
	case "whispercpp":
		loader = whisper.NewCppLoader(whisper.CppConfig{ModelDir: cfg.ModelDir, Threads: uint(cfg.Threads)})
	default:
		loader = &whisper.CLILoader{Exec: ex, ModelDir: cfg.ModelDir, Timeout: cfg.RecognizeTimeout()}
	}

	return &pipeline.Pipeline{
		Settings: pipeline.Settings{
			Model:           cfg.Model,
			Device:          device,
			WindowLengthSec: cfg.WindowLengthSec,
			HighPassHz:      cfg.HighPassHz,
			LowPassHz:       cfg.LowPassHz,
			Language:        cfg.Language,
			Workers:         cfg.Workers,
			TempDir:         cfg.TempDir,
		},
		Engines: &whisper.Provider{Loader: loader, Metrics: rec},
		Prober:  prober,
		Filter:  &media.FFmpeg{Exec: ex, Timeout: cfg.FilterTimeout()},
		Metrics: rec,
	}
}
