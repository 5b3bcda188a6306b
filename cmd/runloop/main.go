// Package main is a demonstration driver for the runloop core: it wraps the
// process main thread as one event loop, spawns the usual worker loops, gives
// the logic loop an embedded Lua interpreter behind the interpreter lock, and
// exercises timers, pause/resume coordination, and orderly shutdown.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dshills/runloop/internal/config"
	"github.com/dshills/runloop/internal/fatal"
	"github.com/dshills/runloop/internal/interp"
	"github.com/dshills/runloop/internal/logging"
	"github.com/dshills/runloop/internal/runloop"
	"github.com/dshills/runloop/internal/runnable"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	ConfigPath string
	LogLevel   string
	Trusted    bool
	Duration   time.Duration
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.Trusted {
		cfg.TrustedBuild = true
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: os.Stderr,
		Prefix: "runloop",
	})
	logging.SetDefault(log)

	rep := fatal.NewReporter(fatal.WithLogger(log), fatal.WithTrustedBuild(cfg.TrustedBuild))
	fatal.SetDefault(rep)

	loopOpts := []runloop.Option{
		runloop.WithLogger(log),
		runloop.WithReporter(rep),
		runloop.WithQueueLimits(cfg.Queue.SoftLimit, cfg.Queue.HardLimit),
	}

	// The main loop adopts the thread we are already on; the registry is
	// created here too, making this thread the pause coordinator.
	mainLoop := runloop.New(runloop.Main, runloop.WrapCurrentThread, loopOpts...)
	registry := runloop.NewRegistry(
		runloop.WithRegistryLogger(log),
		runloop.WithRegistryReporter(rep),
	)

	logic := runloop.New(runloop.Logic, runloop.SpawnThread, loopOpts...)
	audio := runloop.New(runloop.Audio, runloop.SpawnThread, loopOpts...)
	netWrite := runloop.New(runloop.NetworkWrite, runloop.SpawnThread, loopOpts...)

	workers := []*runloop.EventLoop{logic, audio, netWrite}
	for _, l := range workers {
		registry.Register(l)
	}

	// The logic loop owns the interpreter: it opts in as the lock holder and
	// creates the Lua state on its own thread.
	tok := interp.NewToken(
		interp.WithLogger(log),
		interp.WithReporter(rep),
		interp.WithAcquireWarn(cfg.Interp.AcquireWarn()),
	)
	var vm *interp.LuaOwner
	logic.PushRunnableSynchronous(runnable.NewLabeled("interp.bootstrap", func() {
		logic.SetAcquiresInterpreterLock(tok)
		vm = interp.NewLuaOwner(tok, rep)
		if err := vm.DoString(`ticks = 0`); err != nil {
			log.Error("lua bootstrap failed: %v", err)
		}
	}))

	logic.PushRunnable(runnable.NewLabeled("demo.schedule", func() {
		logic.NewTimer(250*time.Millisecond, true, runnable.NewLabeled("demo.tick", func() {
			if err := vm.DoString(`ticks = ticks + 1`); err != nil {
				log.Error("lua tick failed: %v", err)
			}
		}))
	}))
	audio.PushRunnable(runnable.NewLabeled("audio.schedule", func() {
		audio.NewTimer(500*time.Millisecond, true, runnable.Func(func() {
			log.Debug("audio heartbeat")
		}))
	}))

	// Handle signals for graceful shutdown.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Info("received %v, shutting down", sig)
		mainLoop.PushShutdown()
	}()

	// Live config reload adjusts the log level without a restart.
	if opts.ConfigPath != "" {
		watcher, err := config.Watch(opts.ConfigPath, func(next config.Config) {
			log.SetLevel(logging.ParseLevel(next.LogLevel))
		}, log)
		if err != nil {
			log.Warn("config watch unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	// Exercise the pause coordinator partway through the run, then quit when
	// the demo duration elapses.
	mainLoop.NewTimer(opts.Duration/3, false, runnable.NewLabeled("demo.pause", func() {
		registry.SetEventLoopsPaused(true)
		if registry.WaitForPause(cfg.Pause.Budget()) {
			log.Info("all worker loops paused")
		}
	}))
	mainLoop.NewTimer(2*opts.Duration/3, false, runnable.NewLabeled("demo.resume", func() {
		registry.SetEventLoopsPaused(false)
		log.Info("worker loops resumed")
	}))
	mainLoop.NewTimer(opts.Duration, false, runnable.NewLabeled("demo.quit", func() {
		mainLoop.Quit()
	}))

	mainLoop.RunToCompletion()

	// A paused loop suppresses runnables, so lift any pause before the
	// synchronous interpreter teardown below.
	if registry.AreEventLoopsPaused() {
		registry.SetEventLoopsPaused(false)
	}
	logic.PushRunnableSynchronous(runnable.NewLabeled("interp.close", func() {
		vm.Close()
	}))

	for _, l := range workers {
		l.PushShutdown()
	}
	for _, l := range workers {
		l.Join()
	}

	log.Info("exiting")
	return 0
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (.toml, .yaml)")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	flag.BoolVar(&opts.Trusted, "trusted", false, "Treat this as a trusted build (fatal errors exit instead of panicking)")
	flag.DurationVar(&opts.Duration, "duration", 3*time.Second, "How long the demo runs before quitting")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Runloop - multi-thread event-loop core demo\n\n")
		fmt.Fprintf(os.Stderr, "Usage: runloop [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  runloop                       Run with defaults for 3s\n")
		fmt.Fprintf(os.Stderr, "  runloop -c runloop.toml       Run with a config file, live-reloaded\n")
		fmt.Fprintf(os.Stderr, "  runloop -log-level debug      Show per-loop heartbeat activity\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Runloop %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if opts.LogLevel != "" {
		switch opts.LogLevel {
		case "debug", "info", "warn", "error":
			// Valid
		default:
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
			os.Exit(1)
		}
	}

	if opts.Duration <= 0 {
		fmt.Fprintf(os.Stderr, "Error: duration must be positive\n")
		os.Exit(1)
	}

	return opts
}
