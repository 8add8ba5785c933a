package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"pix/pkg/common"
	"pix/pkg/config"
	"pix/pkg/coordinator"
	"pix/pkg/discovery"
	"pix/pkg/display"
	"pix/pkg/downloader"
	"pix/pkg/headless"
	"pix/pkg/installer"
	"pix/pkg/logging"
	"pix/pkg/loop"
	"pix/pkg/state"
	"pix/pkg/tui"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	res, err := PixEngine(context.Background(), os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(res.ExitCode)
}

func PixEngine(ctx context.Context, args []string) (*common.ExecutionResult, error) {
	// 1. Parse command line arguments
	fs := flag.NewFlagSet("pix", flag.ContinueOnError)
	configFile := fs.String("config", "", "settings file (default $XDG_CONFIG_HOME/pix/config.yaml)")
	verbose := fs.Bool("v", false, "verbose output and debug logging")
	fs.BoolVar(verbose, "verbose", false, "same as -v")
	version := fs.Bool("version", false, "print version and exit")
	query := fs.String("query", "", "search and save without the terminal UI")
	count := fs.Int("count", 0, "number of images to save with -query (0 saves all found)")
	out := fs.String("out", "", "directory to save images to")
	logFile := fs.String("log", "", "log file (default $XDG_STATE_HOME/pix/pix.log)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return &common.ExecutionResult{ExitCode: 0}, nil
		}
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if *version {
		fmt.Println(config.GetBuildInfo())
		return &common.ExecutionResult{ExitCode: 0}, nil
	}
	if *count < 0 {
		return nil, fmt.Errorf("-count must not be negative")
	}

	// 2. Load settings, then apply command line overrides
	sysCfg, err := config.Init(*configFile)
	if err != nil {
		return nil, fmt.Errorf("error initializing config: %w", err)
	}
	w := sysCfg.Checkout()
	if *verbose {
		w.SetLogLevel("DEBUG")
	}
	if *out != "" {
		w.SetInstallDir(*out)
	}
	if *logFile != "" {
		w.SetLogFile(*logFile)
	}
	sysCfg.Freeze()
	settings := sysCfg.Settings()

	// 3. Logging goes to a file; the terminal belongs to the UI
	logger, closer, err := logging.Setup(settings.Logging.File, settings.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		logger = logging.Null()
	} else {
		defer closer.Close()
	}
	slog.SetDefault(logger)
	logger.Info("starting", "build", config.GetBuildInfo(), "config", sysCfg.GetConfigFile())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Background loops, one per kind of operation
	searchLoop := loop.New("discovery", logger)
	installLoop := loop.New("install", logger)
	go searchLoop.Run(ctx)
	go installLoop.Run(ctx)

	extractor, err := newExtractor(settings.Search)
	if err != nil {
		return nil, err
	}

	batch := *query != ""
	disp := display.Discard()
	if batch {
		disp = display.NewConsole()
		disp.SetVerbose(*verbose)
		defer disp.Close()
	}

	dl := downloader.NewDefaultDownloader(downloader.WithUserAgent(settings.HTTP.UserAgent))
	deps := coordinator.Deps{
		Search: discovery.New(searchLoop, discovery.NewFetcher(dl), extractor, settings.Search.URL, logger),
		Install: installer.New(installLoop, dl, installer.Options{
			Parallel: settings.Install.Parallel,
			Rate:     settings.Install.Rate,
			Display:  disp,
			Logger:   logger,
		}),
		Refresh: settings.UI.Refresh(),
		Logger:  logger,
	}

	// Last used directory, unless -out was given
	store := state.Open(sysCfg.GetStateDir())
	dir := settings.Install.Dir
	if prefs, err := store.Get(); err != nil {
		logger.Warn("ignoring saved state", "error", err)
	} else if prefs.LastDir != "" && *out == "" {
		dir = prefs.LastDir
	}
	defer func() {
		if err := store.Save(); err != nil {
			logger.Warn("failed to save state", "error", err)
		}
	}()

	// 5. Run
	if batch {
		q := coordinator.NewQueue()
		deps.Sender = q
		output, err := headless.Run(ctx, coordinator.New(deps), q, disp, headless.Options{
			Query: *query,
			Count: *count,
			Dir:   dir,
		})
		if err != nil {
			return nil, err
		}
		if err := state.Record(store, *query, dir); err != nil {
			logger.Warn("failed to record state", "error", err)
		}
		disp.RenderOutput(output)
		return &common.ExecutionResult{ExitCode: 0, Output: output}, nil
	}

	c := coordinator.New(deps)
	defer c.Close()
	model := tui.New(c, dir)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	c.Attach(p)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("terminal UI failed: %w", err)
	}
	if err := state.Record(store, c.Tag(), model.Dir()); err != nil {
		logger.Warn("failed to record state", "error", err)
	}
	return &common.ExecutionResult{ExitCode: 0}, nil
}

func newExtractor(s config.SearchSettings) (discovery.Extractor, error) {
	switch s.Mode {
	case config.ModeJQ:
		e, err := discovery.NewJQExtractor(s.JQ)
		if err != nil {
			return nil, fmt.Errorf("invalid search.jq: %w", err)
		}
		if s.Scheme != "" {
			e.Scheme = s.Scheme
		}
		return e, nil
	default:
		e := discovery.NewHTMLExtractor()
		e.Container = s.Container
		e.Class = s.Class
		if s.Scheme != "" {
			e.Scheme = s.Scheme
		}
		return e, nil
	}
}
