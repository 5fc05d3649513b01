// Command hushcut records audio, strips the silence out of it and serves the
// results. Subcommands:
//
//	record    capture a session (live or deferred transcription)
//	compact   strip silence from an existing WAV file
//	timeline  inspect a silence map
//	serve     run the HTTP query surface
//	devices   list capture devices
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hushcut/hushcut/internal/compact"
	"github.com/hushcut/hushcut/internal/config"
	"github.com/hushcut/hushcut/internal/observe"
	"github.com/hushcut/hushcut/internal/record"
	"github.com/hushcut/hushcut/internal/resilience"
	"github.com/hushcut/hushcut/internal/server"
	"github.com/hushcut/hushcut/internal/session"
	"github.com/hushcut/hushcut/pkg/asr"
	whisperasr "github.com/hushcut/hushcut/pkg/asr/whisper"
	"github.com/hushcut/hushcut/pkg/audio"
	"github.com/hushcut/hushcut/pkg/audio/mic"
	"github.com/hushcut/hushcut/pkg/timeline"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	switch args[0] {
	case "record":
		return runRecord(args[1:])
	case "compact":
		return runCompact(args[1:])
	case "timeline":
		return runTimeline(args[1:])
	case "serve":
		return runServe(args[1:])
	case "devices":
		return runDevices()
	case "version":
		fmt.Println("hushcut " + version)
		return 0
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "hushcut: unknown command %q\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: hushcut <command> [flags]

commands:
  record    capture a session (-deferred for one-pass transcription, -headless for no stdin control)
  compact   strip silence from a WAV file (-in required)
  timeline  inspect a silence map (-map required, plus -total-ms or -wav)
  serve     run the HTTP query surface
  devices   list capture devices
  version   print the version

run "hushcut <command> -h" for command flags`)
}

// setup loads the config and installs the process logger.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("config file %q not found", configPath)
		}
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Logging.Level.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// ── record ──────────────────────────────────────────────────────────────────

// recordingSession is the control surface shared by live and deferred
// sessions.
type recordingSession interface {
	Pause()
	Resume()
	Status() record.Status
	Stop(ctx context.Context) (*record.Outcome, error)
}

func runRecord(args []string) int {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	title := fs.String("title", "", "session title, used in filenames and listings")
	deferred := fs.Bool("deferred", false, "skip live transcription; transcribe once after stop")
	headless := fs.Bool("headless", false, "no stdin control loop; stop on SIGINT/SIGTERM")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		logger.Error("init telemetry", "error", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())

	store, err := session.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("open session store", "error", err)
		return 1
	}
	defer store.Close()

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Error("build asr engine", "error", err)
		return 1
	}
	defer engine.Close()

	deps := record.Deps{
		Cfg:    cfg,
		Store:  store,
		Engine: engine,
		Source: micFactory(cfg),
		Log:    logger,
	}

	var sess recordingSession
	if *deferred {
		sess, err = record.StartDeferred(ctx, deps, *title)
	} else {
		sess, err = record.StartLive(ctx, deps, *title)
	}
	if err != nil {
		logger.Error("start session", "error", err)
		return 1
	}

	printRecordSummary(cfg, *deferred, sess.Status())

	if *headless {
		<-ctx.Done()
	} else {
		controlLoop(ctx, sess)
	}

	// The signal context is likely cancelled by now; finishing the session
	// (final flush, transcription, compaction) gets its own deadline.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	out, err := sess.Stop(stopCtx)
	if err != nil {
		logger.Error("stop session", "error", err)
		return 1
	}
	printOutcome(out)
	return 0
}

// controlLoop reads pause/resume/status/stop commands from stdin until stop,
// EOF or signal.
func controlLoop(ctx context.Context, sess recordingSession) {
	cmds := make(chan string)
	go func() {
		defer close(cmds)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			cmds <- strings.TrimSpace(strings.ToLower(sc.Text()))
		}
	}()

	fmt.Println("recording — commands: pause | resume | status | stop")
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			switch cmd {
			case "pause":
				sess.Pause()
				fmt.Println("paused")
			case "resume":
				sess.Resume()
				fmt.Println("recording")
			case "status":
				st := sess.Status()
				fmt.Printf("session %d  %s  elapsed %s  paused=%v  dropped=%d  lines=%d\n",
					st.SessionID, st.Path, st.Elapsed.Round(time.Second), st.Paused, st.DroppedBlocks, st.Lines)
			case "stop":
				return
			case "":
			default:
				fmt.Printf("unknown command %q\n", cmd)
			}
		}
	}
}

func printOutcome(out *record.Outcome) {
	fmt.Printf("session %d finished\n", out.SessionID)
	fmt.Printf("  recording : %s\n", out.WavPath)
	fmt.Printf("  speech    : %s\n", out.SpeechPath)
	fmt.Printf("  map       : %s\n", out.MapPath)
	if out.TotalMs > 0 {
		fmt.Printf("  kept      : %d of %d ms (%.0f%%)\n",
			out.SpeechMs, out.TotalMs, 100*float64(out.SpeechMs)/float64(out.TotalMs))
	}
	if out.Transcript != "" {
		fmt.Println("  transcript:")
		for _, line := range strings.Split(strings.TrimRight(out.Transcript, "\n"), "\n") {
			fmt.Println("    " + line)
		}
	}
}

// ── compact ─────────────────────────────────────────────────────────────────

func runCompact(args []string) int {
	fs := flag.NewFlagSet("compact", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	in := fs.String("in", "", "input WAV file (required)")
	out := fs.String("out", "", "output directory (default: next to the input)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" {
		fmt.Fprintln(os.Stderr, "hushcut: compact requires -in")
		return 2
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
		return 1
	}

	proc, err := compact.NewProcessor(cfg.VADParams(), compact.WithLogger(logger))
	if err != nil {
		logger.Error("build processor", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := proc.ProcessFile(ctx, *in, *out)
	if err != nil {
		logger.Error("compact", "file", *in, "error", err)
		return 1
	}
	fmt.Printf("wrote %s\n", res.OutPath)
	fmt.Printf("wrote %s\n", res.MapPath)
	fmt.Printf("kept %d of %d ms (%.0f%%), %d speech segments, %d silences removed\n",
		res.SpeechMs, res.TotalMs, pct(res.SpeechMs, res.TotalMs), len(res.Segments), len(res.Silences))
	return 0
}

// ── timeline ────────────────────────────────────────────────────────────────

func runTimeline(args []string) int {
	fs := flag.NewFlagSet("timeline", flag.ContinueOnError)
	mapPath := fs.String("map", "", "silence map file (required)")
	totalMs := fs.Int("total-ms", 0, "original recording duration in ms")
	wavPath := fs.String("wav", "", "original WAV file, read for the duration when -total-ms is absent")
	atSpeechMs := fs.Int("at-speech-ms", -1, "map a speech-timeline position back to the original timeline")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *mapPath == "" {
		fmt.Fprintln(os.Stderr, "hushcut: timeline requires -map")
		return 2
	}

	total := *totalMs
	if total == 0 && *wavPath != "" {
		ms, err := audio.DurationMs(*wavPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
			return 1
		}
		total = ms
	}
	if total <= 0 {
		fmt.Fprintln(os.Stderr, "hushcut: timeline requires -total-ms or -wav")
		return 2
	}

	mapping, err := timeline.Load(*mapPath, total)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
		return 1
	}

	if *atSpeechMs >= 0 {
		orig, ok := mapping.ToOriginalMs(*atSpeechMs)
		if !ok {
			fmt.Fprintln(os.Stderr, "hushcut: mapping contains no speech")
			return 1
		}
		fmt.Printf("speech %d ms -> original %d ms\n", *atSpeechMs, orig)
		return 0
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(mapping.Timeline()); err != nil {
		fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
		return 1
	}
	return 0
}

// ── serve ───────────────────────────────────────────────────────────────────

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		logger.Error("init telemetry", "error", err)
		return 1
	}
	defer shutdownTelemetry(context.Background())

	store, err := session.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("open session store", "error", err)
		return 1
	}
	defer store.Close()

	srv, err := server.New(cfg.Server, store, server.WithLogger(logger))
	if err != nil {
		logger.Error("build server", "error", err)
		return 1
	}

	logger.Info("hushcut serving", "addr", cfg.Server.Addr,
		"store", cfg.Store.Path, "roots", strings.Join(cfg.Server.Roots, ","))
	if err := srv.Run(ctx); err != nil {
		logger.Error("serve", "error", err)
		return 1
	}
	logger.Info("goodbye")
	return 0
}

// ── devices ─────────────────────────────────────────────────────────────────

func runDevices() int {
	names, err := mic.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hushcut: %v\n", err)
		return 1
	}
	if len(names) == 0 {
		fmt.Println("no input devices found")
		return 0
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return 0
}

// ── wiring helpers ──────────────────────────────────────────────────────────

// buildEngine constructs the configured transcription engines and, when more
// than one is configured, chains them behind a circuit-breaking fallback
// group: the first engine is primary, the rest take over in order when it is
// unhealthy.
func buildEngine(cfg *config.Config, logger *slog.Logger) (asr.Engine, error) {
	if len(cfg.ASR.Engines) == 0 {
		return nil, errors.New("no asr engines configured")
	}

	engines := make([]asr.Engine, 0, len(cfg.ASR.Engines))
	names := make([]string, 0, len(cfg.ASR.Engines))
	for i, ec := range cfg.ASR.Engines {
		var (
			eng asr.Engine
			err error
		)
		switch ec.Type {
		case config.EngineNative:
			eng, err = whisperasr.NewNative(ec.ModelPath,
				whisperasr.WithNativeLanguage(cfg.ASR.Language),
				whisperasr.WithNativeSampleRate(cfg.Audio.SampleRate),
				whisperasr.WithNativeThreads(ec.Threads),
				whisperasr.WithNativeLogger(logger),
			)
		case config.EngineHTTP:
			eng, err = whisperasr.NewHTTP(ec.Endpoint,
				whisperasr.WithHTTPLanguage(cfg.ASR.Language),
				whisperasr.WithHTTPSampleRate(cfg.Audio.SampleRate),
				whisperasr.WithHTTPLogger(logger),
			)
		default:
			err = fmt.Errorf("unknown engine type %q", ec.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("asr engine %d: %w", i, err)
		}
		engines = append(engines, eng)
		names = append(names, fmt.Sprintf("%s-%d", ec.Type, i))
	}

	if len(engines) == 1 {
		return engines[0], nil
	}
	chain := resilience.NewASRFallback(engines[0], names[0], resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		},
	})
	for i := 1; i < len(engines); i++ {
		chain.AddFallback(names[i], engines[i])
	}
	return chain, nil
}

// micFactory adapts the configured capture device to the record package's
// source contract.
func micFactory(cfg *config.Config) record.SourceFactory {
	return func(onBlock func([]float32)) (record.Source, error) {
		return mic.Open(mic.Config{
			SampleRate: cfg.Audio.SampleRate,
			BlockMs:    cfg.Audio.BlockMs,
			Device:     cfg.Audio.Device,
		}, onBlock)
	}
}

func pct(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}

// ── startup summary ─────────────────────────────────────────────────────────

func printRecordSummary(cfg *config.Config, deferred bool, st record.Status) {
	mode := "live"
	if deferred {
		mode = "deferred"
	}
	device := cfg.Audio.Device
	if device == "" {
		device = "(default input)"
	}
	var chain []string
	for _, e := range cfg.ASR.Engines {
		chain = append(chain, e.Type)
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        hushcut — recording            ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Session", fmt.Sprintf("#%d (%s)", st.SessionID, mode))
	printRow("Device", device)
	printRow("Rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printRow("Engines", strings.Join(chain, " > "))
	printRow("Output", cfg.Output.Dir)
	printRow("Store", cfg.Store.Path)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", key, value)
}
