// VoiceCart is a voice-controlled storefront shell.
//
// Usage:
//
//	voicecart [-verbose] [-quiet] [-recognizer whisper|stream|none]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hammamikhairi/voicecart/internal/assistant"
	"github.com/hammamikhairi/voicecart/internal/command"
	"github.com/hammamikhairi/voicecart/internal/config"
	"github.com/hammamikhairi/voicecart/internal/display"
	"github.com/hammamikhairi/voicecart/internal/domain"
	"github.com/hammamikhairi/voicecart/internal/history"
	"github.com/hammamikhairi/voicecart/internal/logger"
	"github.com/hammamikhairi/voicecart/internal/narration"
	"github.com/hammamikhairi/voicecart/internal/notify"
	"github.com/hammamikhairi/voicecart/internal/platform"
	"github.com/hammamikhairi/voicecart/internal/speech"
	"github.com/hammamikhairi/voicecart/internal/storefront"
)

func main() {
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", ".voicecart-logs/voicecart.log", "file to write logs to (use \"stderr\" to log to console)")
	noSpeech := flag.Bool("no-speech", false, "disable text-to-speech even if Azure keys are set")
	recognizer := flag.String("recognizer", "", "override the recognizer backend (whisper, stream, none)")
	narrate := flag.Bool("narrate", false, "start with read-aloud narration on")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *recognizer != "" {
		cfg.Recognition.Backend = *recognizer
	}
	if *narrate {
		cfg.Narration.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure logger.
	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	// Direct logs to a file by default so the shell stays clean.
	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		dir := filepath.Dir(*logFile)
		if dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	log := logger.New(logLevel, logOut)
	defer log.Sync()

	// Third-party libraries log through the standard library; send them to
	// the same sink so they don't spam the terminal.
	restoreStdLog := zap.RedirectStdLog(log.Zap())
	defer restoreStdLog()

	// Set up context, cancelled when the UI quits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, log)
	}

	// ── Platform ──

	recPort := buildRecognizer(cfg, log)
	synth := buildSynthesizer(cfg, *noSpeech, log)

	// A nil *AzureSynthesizer must not become a non-nil interface.
	var synthPort domain.Synthesizer
	if synth != nil {
		synthPort = synth
	}
	caps := platform.ProbeCapabilities(recPort, synthPort, log)
	if !caps.Recognition.Available {
		recPort = nil
	}
	if !caps.Synthesis.Available {
		synthPort = nil
	}

	// ── Speech ──

	out := speech.NewOutput(synthPort, log,
		speech.WithSpeechDedup(cfg.Speech.Dedup),
		speech.WithProsody(cfg.Speech.Rate, cfg.Speech.Pitch, cfg.Speech.Volume),
		speech.WithLanguage(cfg.Speech.Language),
	)
	input := speech.NewInput(recPort, log,
		speech.WithRestartDelay(cfg.Recognition.RestartDelay),
		speech.WithRetryDelay(cfg.Recognition.RetryDelay),
		speech.WithDefaultConfidence(cfg.Recognition.DefaultConfidence),
		speech.WithRecognizerOptions(domain.RecognizerOptions{
			Continuous: true,
			Language:   cfg.Speech.Language,
		}),
	)
	coord := speech.NewCoordinator(out, log, speech.WithSettleDelay(cfg.Speech.SettleDelay))
	defer coord.Close()

	// ── Commands ──

	table, err := loadTable(cfg.Commands.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	interp, err := command.NewInterpreter(table, log, command.WithDedupWindow(cfg.Commands.Dedup))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: command table: %v\n", err)
		os.Exit(1)
	}

	store, err := openHistory(cfg.HistoryDB, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// ── Application ──

	router := storefront.NewRouter(log)
	narrator := narration.New(coord, log,
		narration.WithEnabled(cfg.Narration.Enabled),
		narration.WithVolume(cfg.Narration.Volume),
	)

	var asst *assistant.Assistant
	ui := display.NewUI(display.Hooks{
		Status: func() display.Status {
			return shellStatus(asst.Status(), asst.Available(), narrator, router)
		},
		ToggleMic: func() {
			if err := asst.Toggle(ctx); err != nil {
				log.Warn("mic toggle: %v", err)
			}
		},
		ToggleNarration: func() {
			narrator.Toggle(ctx)
		},
	})

	asst = assistant.New(coord, input, interp, router, log,
		assistant.WithPermissionProbe(platform.NewMicProbe(log)),
		assistant.WithNotifier(notify.NewCLINotifier(log, ui.Printf)),
		assistant.WithHistory(store),
		assistant.WithHeardHook(func(transcript string, confidence float64) {
			ui.PrintVoice(fmt.Sprintf("%s (%.2f)", transcript, confidence))
		}),
	)
	defer asst.Close()

	router.OnChange(func(loc storefront.Location) {
		name := storefront.PageName(loc)
		ui.PrintPage(name, loc.String())
		narrator.Navigation(ctx, name)
	})

	if synth != nil && caps.Synthesis.Available {
		synth.Prefetch(ctx, platform.Prosody{
			Voice:  cfg.Speech.Voice,
			Lang:   cfg.Speech.Language,
			Rate:   cfg.Speech.Rate,
			Pitch:  cfg.Speech.Pitch,
			Volume: cfg.Speech.Volume,
		}, speech.LineActivated(), speech.LineDeactivated(), speech.LineReadAloudOn(), speech.LineReadAloudOff())
	}

	sh := &shell{
		cmds:      asst,
		narration: narrator,
		router:    router,
		history:   store,
		ui:        ui,
		log:       log,
	}

	fmt.Println(display.RenderBanner("Your voice-controlled supplement store"))
	if asst.Available() {
		fmt.Println(display.BannerStyle.Render("  Press F2 to talk, F3 for read-aloud, or type commands."))
	} else {
		fmt.Println(display.BannerStyle.Render("  Voice input is unavailable. Type commands, F3 for read-aloud."))
	}
	fmt.Println(display.BannerStyle.Render("  Type '/help' for commands, 'quit' to exit."))
	fmt.Println()

	// Run app logic in a background goroutine.
	go func() {
		ui.WaitReady()
		narrator.Welcome(ctx)
		sh.run(ctx, ui.InputChan())
		ui.Quit()
	}()

	// Bubble Tea owns the terminal and blocks until quit.
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	cancel()
}

// buildRecognizer returns the configured recognizer, or nil when voice
// input is off or cannot be set up.
func buildRecognizer(cfg config.Config, log *logger.Logger) domain.Recognizer {
	switch cfg.Recognition.Backend {
	case config.BackendWhisper:
		if err := os.MkdirAll(".voicecart-stt", 0o755); err != nil {
			log.Warn("whisper: temp dir: %v", err)
		}
		log.Info("voice input: whisper (bin=%s, model=%s, chunk=%s)", cfg.Whisper.Bin, cfg.Whisper.Model, cfg.Whisper.Chunk)
		return platform.NewWhisperRecognizer(cfg.Whisper.Bin, cfg.Whisper.Model, log,
			platform.WithChunkDuration(cfg.Whisper.Chunk),
		)
	case config.BackendStream:
		if cfg.Deepgram.APIKey == "" {
			log.Info("voice input disabled: set DEEPGRAM_API_KEY to use the stream recognizer")
			return nil
		}
		log.Info("voice input: stream (model=%s)", cfg.Deepgram.Model)
		return platform.NewStreamRecognizer(platform.StreamConfig{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}, platform.NewMalgoCapture(log), log)
	default:
		log.Info("voice input disabled")
		return nil
	}
}

// buildSynthesizer returns the Azure synthesizer, or nil when speech is
// off, unconfigured or has no output device.
func buildSynthesizer(cfg config.Config, disabled bool, log *logger.Logger) *platform.AzureSynthesizer {
	if disabled {
		return nil
	}
	if !cfg.SpeechEnabled() {
		log.Info("TTS disabled: set AZURE_SPEECH_KEY and AZURE_SPEECH_REGION env vars to enable")
		return nil
	}
	player, err := platform.NewPlayer(log)
	if err != nil {
		log.Error("audio player init failed, speech disabled: %v", err)
		return nil
	}
	client := platform.NewAzureClient(cfg.Azure.Key, cfg.Azure.Region, log, platform.WithVoice(cfg.Speech.Voice))
	cache := platform.NewAudioCache(cfg.Speech.CacheDir, cfg.Speech.DiskCache, log)
	log.Info("TTS enabled (voice=%s, region=%s)", cfg.Speech.Voice, cfg.Azure.Region)
	return platform.NewAzureSynthesizer(client, player, log, platform.WithCache(cache))
}

func loadTable(path string) (*command.Table, error) {
	if path == "" {
		return command.DefaultTable()
	}
	t, err := command.LoadTable(path)
	if err != nil {
		return nil, fmt.Errorf("loading command table %s: %w", path, err)
	}
	return t, nil
}

func openHistory(path string, log *logger.Logger) (history.Store, error) {
	if path == "" {
		return history.NewMemoryStore(0, log), nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	s, err := history.OpenSQLite(path, log)
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	return s, nil
}

func serveMetrics(ctx context.Context, addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server: %v", err)
	}
}

// shellStatus maps application state onto the status bar.
func shellStatus(st assistant.Status, micAvailable bool, n *narration.Service, r *storefront.Router) display.Status {
	loc := r.Current()
	s := display.Status{
		MicAvailable:       micAvailable,
		Mic:                micState(st),
		NarrationAvailable: n.Available(),
		Narration:          n.Enabled(),
		Page:               storefront.PageName(loc),
		Tip:                storefront.Tip(loc),
		Notice:             st.Notice,
	}
	if st.LastCommand != nil {
		s.LastCommand = st.LastCommand.Transcript
	}
	return s
}

func micState(st assistant.Status) string {
	switch st.State {
	case assistant.StateActivating:
		return "activating"
	case assistant.StateOn:
		switch {
		case st.Speaking:
			return "speaking"
		case st.Listening:
			return "listening"
		default:
			return "paused"
		}
	default:
		return "off"
	}
}
