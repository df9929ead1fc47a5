// Command earshot listens on a microphone, cuts speech into utterances and
// prints their transcriptions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/internal/capture"
	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/dispatch"
	"github.com/MrWong99/earshot/internal/health"
	"github.com/MrWong99/earshot/internal/journal"
	"github.com/MrWong99/earshot/internal/journal/postgres"
	"github.com/MrWong99/earshot/internal/listener"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/resilience"
	"github.com/MrWong99/earshot/internal/transcript"
	"github.com/MrWong99/earshot/internal/transcript/phonetic"
	"github.com/MrWong99/earshot/pkg/audio/portaudio"
)

// shutdownTimeout bounds the wait for the HTTP server and the utterance in
// progress after a shutdown signal.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "earshot.yaml", "path to the YAML configuration file")
	once := flag.Bool("once", false, "capture and transcribe a single utterance, then exit")
	listProfiles := flag.Bool("list-profiles", false, "print the sensitivity presets and environment labels")
	listDevices := flag.Bool("list-devices", false, "print the available input devices")
	meter := flag.Bool("meter", false, "show a live input volume meter instead of transcribing")
	flag.Parse()

	if *listProfiles {
		printProfiles(os.Stdout)
		return 0
	}
	if *listDevices {
		names, err := portaudio.InputDevices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
			return 1
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earshot: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("earshot starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		STTProvider:   cfg.Providers.STT.Name,
		AudioProvider: cfg.Providers.Audio.Name,
		Device:        cfg.Capture.Device,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	device, err := reg.CreateAudio(cfg.Providers.Audio, cfg.Capture)
	if err != nil {
		slog.Error("failed to create audio device", "err", err)
		return 1
	}
	if *meter {
		return runMeter(ctx, device, cfg.Capture.StreamConfig())
	}

	provider, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "err", err)
		return 1
	}
	if c, ok := provider.(io.Closer); ok {
		defer c.Close()
	}
	guarded := resilience.NewGuardedProvider(provider, resilience.CircuitBreakerConfig{
		Name: cfg.Providers.STT.Name,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("stt circuit breaker state changed", "provider", name, "from", from, "to", to)
		},
	})

	// ── Journal (optional) ────────────────────────────────────────────────────
	var sink journal.Sink
	checkers := []health.Checker{health.ProviderReady(provider), health.BreakerClosed(guarded.Breaker())}
	if dsn := cfg.Journal.PostgresDSN; dsn != "" {
		jctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		store, err := postgres.NewStore(jctx, dsn)
		cancel()
		if err != nil {
			slog.Error("failed to open journal", "err", err)
			return 1
		}
		defer store.Close()
		sink = store
		checkers = append(checkers, health.Pings("journal", store))
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	task, _ := cfg.Transcription.ParsedTask()
	dispatcher := dispatch.New(guarded,
		dispatch.WithTimeout(cfg.Transcription.Timeout),
		dispatch.WithTempDir(cfg.Capture.TempDir),
		dispatch.WithProcessor(newProcessor(cfg.Transcription)),
		dispatch.WithProviderName(cfg.Providers.STT.Name),
		dispatch.WithTask(task),
	)
	hooks := logHooks()
	loop := capture.New(device,
		capture.WithStreamConfig(cfg.Capture.StreamConfig()),
		capture.WithHooks(hooks),
	)
	lst := listener.New(loop, dispatcher, listener.WithHooks(hooks), listener.WithJournal(sink))

	printStartupSummary(cfg)

	if *once {
		s, err := settingsFrom(cfg)
		if err != nil {
			slog.Error("invalid capture settings", "err", err)
			return 1
		}
		out, err := lst.Listen(ctx, s)
		if err != nil {
			slog.Error("capture failed", "err", err)
			return 1
		}
		printOutcome(out)
		return 0
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if d := config.Diff(old, new); d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
		}
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	current, _ := settingsFrom(cfg)
	settings := func() listener.Settings {
		s, err := settingsFrom(watcher.Current())
		if err != nil {
			slog.Warn("keeping previous capture settings", "err", err)
			return current
		}
		current = s
		return s
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	if addr := cfg.Server.ListenAddr; addr != "" {
		srv := newServer(addr, health.New(checkers...))
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		return lst.Serve(gctx, settings, printOutcome)
	})

	slog.Info("listening, press Ctrl+C to stop")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		slog.Info("shutdown signal received, finishing the current utterance")
		select {
		case err = <-done:
		case <-time.After(shutdownTimeout):
			slog.Warn("listener still busy after the shutdown deadline, exiting anyway")
			return 0
		}
	}
	if err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newServer builds the operational HTTP server.
func newServer(addr string, h *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	h.Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics(), "/metrics", "/healthz", "/readyz")(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// settingsFrom derives the per-utterance listener settings.
func settingsFrom(cfg *config.Config) (listener.Settings, error) {
	p, err := cfg.Capture.ResolveProfile()
	if err != nil {
		return listener.Settings{}, err
	}
	task, err := cfg.Transcription.ParsedTask()
	if err != nil {
		return listener.Settings{}, err
	}
	return listener.Settings{
		Profile:     p,
		MaxDuration: cfg.Capture.MaxDuration,
		Language:    cfg.Transcription.Language,
		Task:        task,
	}, nil
}

func newProcessor(t config.TranscriptionConfig) *transcript.Processor {
	var opts []transcript.Option
	if t.MinLength > 0 {
		opts = append(opts, transcript.WithMinLength(t.MinLength))
	}
	if len(t.Vocabulary) > 0 {
		opts = append(opts, transcript.WithVocabulary(phonetic.New(t.Vocabulary)))
	}
	return transcript.NewProcessor(opts...)
}

// logHooks logs every lifecycle event at debug level.
func logHooks() *capture.Hooks {
	h := &capture.Hooks{}
	for _, k := range []capture.EventKind{
		capture.EventListening, capture.EventRecording, capture.EventStopped,
		capture.EventTimedOut, capture.EventNoSpeech, capture.EventProcessing,
	} {
		h.On(k, func(e capture.Event) {
			slog.Debug("capture event", "event", e.Kind, "elapsed", e.Elapsed, "profile", e.Profile)
		})
	}
	return h
}

func printOutcome(out listener.Outcome) {
	slog.Info("utterance finished",
		"utterance", out.ID,
		"state", out.State,
		"audio", out.AudioDuration,
		"latency", out.Latency,
		"timed_out", out.TimedOut,
		"corrections", len(out.Corrections),
		"keywords", out.Keywords,
	)
	for _, line := range outputLines(out.Text) {
		fmt.Println(line)
	}
}

// outputLines splits text into one line per sentence. Text without a
// sentence of at least three characters is printed as is.
func outputLines(text string) []string {
	if text == "" {
		return nil
	}
	if lines := transcript.SplitSentences(text); len(lines) > 1 {
		return lines
	}
	return []string{text}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
