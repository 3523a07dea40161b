package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	log "log/slog"

	"earshot/internal/config"
	"earshot/internal/ctl"
	"earshot/internal/feedback"
	"earshot/internal/listener"
	"earshot/internal/models"
	"earshot/internal/publish"
	"earshot/internal/recorder"
	"earshot/internal/stt"
	"earshot/internal/tts"
	"earshot/internal/wakeword"
	"earshot/pkg/audioconv"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// usageError marks a bad invocation: wrong flags, wrong arguments.
// These exit with status 2 before any device or network is touched.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: earshot <command> [flags]

Commands:
  test-pretrained <model>   listen on the microphone with a pretrained model
  models list               show known models and whether they are downloaded
  models ensure <model>     download a model if it is missing
  record <phrase>           capture labelled wake-word samples
  transcribe <audio-file>   transcribe an audio file
  ctl <stop|stats>          talk to a running listener

Run 'earshot <command> --help' for command flags.
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "test-pretrained":
		err = runTestPretrained(os.Args[2:])
	case "models":
		err = runModels(os.Args[2:])
	case "record":
		err = runRecord(os.Args[2:])
	case "transcribe":
		err = runTranscribe(os.Args[2:])
	case "ctl":
		err = runCtl(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if errors.Is(err, cli.ErrHelp) {
		return
	}
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(os.Stderr, "earshot:", ue.msg)
		os.Exit(2)
	}
	if err != nil {
		log.Error("exiting", "err", err)
		os.Exit(1)
	}
}

// parseFlags parses args. --help is passed through so main can exit
// cleanly after pflag has printed the flag usage.
func parseFlags(fs *cli.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, cli.ErrHelp) {
		return err
	}
	return usagef("%v", err)
}

// wakeFlags are the test-pretrained flags that override the config
// file. A flag wins only when it was set explicitly, except --speak,
// which also opts into TTS; the config file still chooses the voice.
type wakeFlags struct {
	fs         *cli.FlagSet
	phrase     *string
	threshold  *float64
	chunkSize  *int
	cooldown   *time.Duration
	speak      *string
	publishURL *string
}

func registerWakeFlags(fs *cli.FlagSet) *wakeFlags {
	return &wakeFlags{
		fs:         fs,
		phrase:     fs.String("phrase", "", "wake phrase to listen for"),
		threshold:  fs.Float64("threshold", 0, "detection threshold in [0, 1] (default from config: 0.5)"),
		chunkSize:  fs.Int("chunk-size", 0, "samples per audio chunk (default from config: 1280)"),
		cooldown:   fs.Duration("cooldown", 0, "suppress repeat detections for this long"),
		speak:      fs.String("speak", "", "speak this text on every detection"),
		publishURL: fs.String("publish", "", "forward detections to this websocket hub"),
	}
}

func (w *wakeFlags) apply(cfg *config.Config) {
	if w.fs.Changed("phrase") {
		cfg.Wake.Phrase = *w.phrase
	}
	if w.fs.Changed("threshold") {
		cfg.Wake.Threshold = *w.threshold
	}
	if w.fs.Changed("chunk-size") {
		cfg.Wake.ChunkSize = *w.chunkSize
	}
	if w.fs.Changed("cooldown") {
		cfg.Wake.Cooldown = config.Duration(*w.cooldown)
	}
	if w.fs.Changed("publish") {
		cfg.Publish.URL = *w.publishURL
	}
	if *w.speak != "" {
		cfg.TTS.Enabled = true
	}
}

// setup loads the env file and config, wires the log handler, and
// returns the effective config.
func setup(envFile, configFile, logLevel string) (*config.Config, error) {
	godotenv.Load(envFile)

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, usagef("%v", err)
	}

	level := string(cfg.LogLevel)
	if logLevel != "" {
		level = logLevel
	}
	lv, ok := logLevelMap[level]
	if !ok {
		return nil, usagef("unknown log level %q", level)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: lv,
	})))

	return cfg, nil
}

func runTestPretrained(args []string) error {
	fs := cli.NewFlagSet("test-pretrained", cli.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "env file path")
	configFile := fs.StringP("config", "c", "earshot.yaml", "config file path")
	logLevel := fs.StringP("log", "l", "", "log level (debug, info, warn, error)")
	input := fs.String("input", "", "read audio from a file instead of the microphone")
	wf := registerWakeFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("test-pretrained needs exactly one model name or path")
	}

	cfg, err := setup(*envFile, *configFile, *logLevel)
	if err != nil {
		return err
	}
	wf.apply(cfg)

	// Reject bad values before any device is opened.
	if cfg.Wake.Threshold < 0 || cfg.Wake.Threshold > 1 {
		return usagef("threshold %g is outside [0, 1]", cfg.Wake.Threshold)
	}
	if cfg.Wake.ChunkSize <= 0 {
		return usagef("chunk size must be positive, got %d", cfg.Wake.ChunkSize)
	}
	if err := config.Validate(cfg); err != nil {
		return usagef("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := models.New(models.Config{Dir: cfg.Models.Dir, BaseURL: cfg.Models.BaseURL})
	if _, err := mgr.Resolve(fs.Arg(0)); errors.Is(err, models.ErrUnknownModel) {
		return usagef("%v", err)
	}
	modelPath, err := mgr.Ensure(ctx, fs.Arg(0))
	if err != nil {
		return fmt.Errorf("ensure model: %w", err)
	}

	tr, err := stt.Load(modelPath, stt.Options{InitialPrompt: cfg.Wake.Phrase})
	if err != nil {
		return err
	}
	defer tr.Close()

	scorer, err := wakeword.NewPhraseScorer(wakeword.Config{
		Phrase:      cfg.Wake.Phrase,
		Transcriber: tr,
		ChunkSize:   cfg.Wake.ChunkSize,
	})
	if err != nil {
		return err
	}

	var source listener.Source
	if *input != "" {
		source, err = listener.OpenFile(*input, cfg.Wake.ChunkSize)
	} else {
		source, err = listener.OpenMicrophone(cfg.Wake.ChunkSize)
	}
	if err != nil {
		return fmt.Errorf("open audio source: %w", err)
	}

	player := feedback.NewPlayer(cfg.Feedback.Enabled, log.Default())

	var pub *publish.Publisher
	if cfg.Publish.URL != "" {
		pub, err = publish.Dial(cfg.Publish.URL, cfg.Publish.From)
		if err != nil {
			source.Close()
			return fmt.Errorf("connect to hub: %w", err)
		}
		defer pub.Close()
	}

	onDetection := func(d listener.Detection) {
		if cfg.Feedback.Chime != "" {
			player.Chime(cfg.Feedback.Chime)
		} else {
			player.Detection()
		}
		if pub != nil {
			if err := pub.Publish(d); err != nil {
				log.Warn("publish detection", "err", err)
			}
		}
		if cfg.TTS.Enabled && *wf.speak != "" {
			if err := tts.Speak(cfg.TTS.Voice, *wf.speak); err != nil {
				log.Warn("speak", "err", err)
			}
		}
	}

	l, err := listener.New(&listener.Config{
		Source:      source,
		Scorer:      scorer,
		Phrase:      cfg.Wake.Phrase,
		Threshold:   cfg.Wake.Threshold,
		Cooldown:    cfg.Wake.Cooldown.Std(),
		OnDetection: onDetection,
	})
	if err != nil {
		source.Close()
		return err
	}

	srv, err := ctl.Listen(cfg.Control.Socket)
	if err != nil {
		source.Close()
		return fmt.Errorf("control socket: %w", err)
	}
	defer srv.Close()

	log.Info("listening",
		"phrase", cfg.Wake.Phrase,
		"model", modelPath,
		"threshold", cfg.Wake.Threshold,
		"chunk_size", cfg.Wake.ChunkSize,
	)
	player.Listening()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The loop owns the session: when it ends, for any reason,
		// cancel the context so the control server winds down too.
		defer stop()
		return l.Run(gctx)
	})
	g.Go(func() error {
		return srv.Serve(func(req ctl.Request) ctl.Response {
			switch req.Cmd {
			case "stop":
				stop()
				return ctl.Response{OK: true}
			case "stats":
				s := l.Stats()
				return ctl.Response{OK: true, Detections: s.Detections, UptimeSec: s.Uptime.Seconds()}
			default:
				return ctl.Response{Error: fmt.Sprintf("unknown command %q", req.Cmd)}
			}
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})
	if err := g.Wait(); err != nil {
		return err
	}

	player.Done()
	s := l.Stats()
	log.Info("stopped", "detections", s.Detections, "uptime", s.Uptime.Round(time.Millisecond))
	return nil
}

func runModels(args []string) error {
	fs := cli.NewFlagSet("models", cli.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "env file path")
	configFile := fs.StringP("config", "c", "earshot.yaml", "config file path")
	logLevel := fs.StringP("log", "l", "", "log level (debug, info, warn, error)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usagef("models needs a subcommand: list or ensure")
	}

	cfg, err := setup(*envFile, *configFile, *logLevel)
	if err != nil {
		return err
	}

	mgr := models.New(models.Config{Dir: cfg.Models.Dir, BaseURL: cfg.Models.BaseURL})

	switch fs.Arg(0) {
	case "list":
		entries, err := mgr.List()
		if err != nil {
			return err
		}
		for _, e := range entries {
			state := "missing"
			if e.Present {
				state = "downloaded"
			}
			fmt.Printf("%-12s %-24s %s\n", e.Alias, e.File, state)
		}
		return nil
	case "ensure":
		names := fs.Args()[1:]
		if len(names) == 0 {
			names = []string{cfg.Models.Model}
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		for _, name := range names {
			path, err := mgr.Ensure(ctx, name)
			if err != nil {
				return err
			}
			fmt.Println(path)
		}
		return nil
	default:
		return usagef("unknown models subcommand %q", fs.Arg(0))
	}
}

func runRecord(args []string) error {
	fs := cli.NewFlagSet("record", cli.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "env file path")
	configFile := fs.StringP("config", "c", "earshot.yaml", "config file path")
	logLevel := fs.StringP("log", "l", "", "log level (debug, info, warn, error)")
	label := fs.String("label", recorder.LabelPositive, "take label: positive or negative")
	duration := fs.Duration("duration", 3*time.Second, "length of each take")
	takes := fs.Int("takes", 1, "number of takes to record")
	outDir := fs.String("out", "recordings", "root directory for saved takes")
	chunkSize := fs.Int("chunk-size", 0, "samples per audio chunk")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := setup(*envFile, *configFile, *logLevel)
	if err != nil {
		return err
	}
	phrase := cfg.Wake.Phrase
	if fs.NArg() > 0 {
		phrase = fs.Arg(0)
	}
	if fs.Changed("chunk-size") {
		cfg.Wake.ChunkSize = *chunkSize
	}
	if cfg.Wake.ChunkSize <= 0 {
		return usagef("chunk size must be positive, got %d", cfg.Wake.ChunkSize)
	}
	if *takes < 1 {
		return usagef("takes must be at least 1, got %d", *takes)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := listener.OpenMicrophone(cfg.Wake.ChunkSize)
	if err != nil {
		return fmt.Errorf("open audio source: %w", err)
	}
	defer source.Close()

	rec, err := recorder.New(&recorder.Config{
		Source: source,
		OutDir: *outDir,
		Phrase: phrase,
		Label:  *label,
	})
	if err != nil {
		return usagef("%v", err)
	}

	player := feedback.NewPlayer(cfg.Feedback.Enabled, log.Default())
	for i := 0; i < *takes; i++ {
		player.Listening()
		path, err := rec.Record(ctx, *duration)
		if err != nil {
			return err
		}
		player.Done()
		fmt.Println(path)
	}
	return nil
}

func runTranscribe(args []string) error {
	fs := cli.NewFlagSet("transcribe", cli.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "env file path")
	configFile := fs.StringP("config", "c", "earshot.yaml", "config file path")
	logLevel := fs.StringP("log", "l", "", "log level (debug, info, warn, error)")
	model := fs.StringP("model", "m", "", "model name or path")
	language := fs.String("language", "", "spoken language hint")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("transcribe needs exactly one audio file")
	}

	cfg, err := setup(*envFile, *configFile, *logLevel)
	if err != nil {
		return err
	}
	name := cfg.Models.Model
	if fs.Changed("model") {
		name = *model
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pcm, err := audioconv.DecodeFile(fs.Arg(0), audioconv.Options{})
	if err != nil {
		return fmt.Errorf("decode %s: %w", fs.Arg(0), err)
	}

	mgr := models.New(models.Config{Dir: cfg.Models.Dir, BaseURL: cfg.Models.BaseURL})
	modelPath, err := mgr.Ensure(ctx, name)
	if err != nil {
		return fmt.Errorf("ensure model: %w", err)
	}

	tr, err := stt.Load(modelPath, stt.Options{Language: *language})
	if err != nil {
		return err
	}
	defer tr.Close()

	text, err := tr.Transcribe(ctx, pcm)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runCtl(args []string) error {
	fs := cli.NewFlagSet("ctl", cli.ContinueOnError)
	socket := fs.StringP("socket", "s", ctl.DefaultSocketPath, "control socket path")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("ctl needs exactly one command: stop or stats")
	}
	cmd := fs.Arg(0)
	if cmd != "stop" && cmd != "stats" {
		return usagef("unknown ctl command %q", cmd)
	}

	resp, err := ctl.Send(*socket, cmd)
	if err != nil {
		return fmt.Errorf("listener not running: %w", err)
	}
	if !resp.OK {
		return errors.New(resp.Error)
	}
	if cmd == "stats" {
		fmt.Printf("detections: %d\nuptime: %.1fs\n", resp.Detections, resp.UptimeSec)
	}
	return nil
}
