// Teslanav turns free-form trip prompts into ordered multi-stop routes
// and sends them to Tesla vehicles.
//
// It exposes an HTTP API for planning, dispatch, and climate control,
// plus a CLI for one-shot planning and account setup. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	teslanav serve               Start the API server
//	teslanav plan <prompt>       Plan a trip from a prompt (for testing)
//	teslanav vehicles            List the vehicles on the account
//	teslanav auth                Link a Tesla account interactively
//	teslanav init [dir]          Initialize a working directory with defaults
//	teslanav version             Print version and build information
//	teslanav -o json version     Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexlifshitz/teslanav/internal/api"
	"github.com/alexlifshitz/teslanav/internal/buildinfo"
	"github.com/alexlifshitz/teslanav/internal/calendar"
	"github.com/alexlifshitz/teslanav/internal/climate"
	"github.com/alexlifshitz/teslanav/internal/config"
	"github.com/alexlifshitz/teslanav/internal/contacts"
	"github.com/alexlifshitz/teslanav/internal/dispatch"
	"github.com/alexlifshitz/teslanav/internal/events"
	"github.com/alexlifshitz/teslanav/internal/fleet"
	"github.com/alexlifshitz/teslanav/internal/interpret"
	"github.com/alexlifshitz/teslanav/internal/llm"
	"github.com/alexlifshitz/teslanav/internal/mqttpub"
	"github.com/alexlifshitz/teslanav/internal/places"
	"github.com/alexlifshitz/teslanav/internal/planner"
	"github.com/alexlifshitz/teslanav/internal/route"
	"github.com/alexlifshitz/teslanav/internal/weather"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the teslanav command. All OS-level
// dependencies are injected as parameters so tests can drive the full
// lifecycle. args is os.Args[1:]; it is parsed manually rather than
// with the flag package to avoid global state that interferes with
// parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "plan":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: teslanav plan <prompt>")
		}
		return runPlan(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "vehicles":
		return runVehicles(ctx, stdout, configPath, outputFmt)
	case "auth":
		return runAuth(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "TeslaNav - prompt-driven trip planning for Tesla vehicles")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: teslanav [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  plan         Plan a trip from a prompt (for testing)")
	fmt.Fprintln(w, "  vehicles     List the vehicles on the account")
	fmt.Fprintln(w, "  auth         Link a Tesla account interactively")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/teslanav/config.yaml, /etc/teslanav/config.yaml")
	return nil
}

// components bundles everything runServe and runPlan share.
type components struct {
	cfg     *config.Config
	planner *planner.Planner
	bus     *events.Bus
	store   *places.Store
	logger  *slog.Logger
}

// buildComponents wires the planner and its collaborators from config.
func buildComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	bus := events.New()

	tokens := fleet.NewTokenSource(fleet.Tokens{
		AccessToken:  cfg.Tesla.AccessToken,
		RefreshToken: cfg.Tesla.RefreshToken,
	}, cfg.Tesla.TokenFile, logger)
	fleetClient := fleet.NewClient(cfg.Backend.URL, tokens, logger)

	llmClient := llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, logger)
	interpreter := interpret.New(llmClient, logger)
	resolver := route.NewClient(cfg.Backend.URL, cfg.Backend.GoogleMapsKey, logger)
	dispatcher := dispatch.New(fleetClient, logger)

	var weatherSource climate.WeatherSource
	if cfg.Weather.Enabled {
		weatherSource = weather.NewClient("")
	}
	advisor := climate.New(fleetClient, weatherSource, logger)

	store, err := places.NewStore(cfg.Places.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open places store: %w", err)
	}

	provider := &planner.CompositeContext{Places: store, Logger: logger}
	if cfg.CardDAV.Configured() {
		carddavProvider, err := contacts.NewProvider(
			cfg.CardDAV.URL, cfg.CardDAV.Username, cfg.CardDAV.Password,
			cfg.CardDAV.MaxContacts, logger)
		if err != nil {
			logger.Warn("carddav disabled", "error", err)
		} else {
			provider.Contacts = carddavProvider
		}
	}
	if cfg.CalDAV.Configured() {
		caldavProvider, err := calendar.NewProvider(
			cfg.CalDAV.URL, cfg.CalDAV.Username, cfg.CalDAV.Password,
			time.Duration(cfg.CalDAV.LookaheadHours)*time.Hour, cfg.CalDAV.MaxEvents, logger)
		if err != nil {
			logger.Warn("caldav disabled", "error", err)
		} else {
			provider.Calendar = caldavProvider
		}
	}

	p := planner.New(interpreter, resolver, dispatcher, advisor, fleetClient, provider, bus, logger)
	return &components{cfg: cfg, planner: p, bus: bus, store: store, logger: logger}, nil
}

// runServe handles the "teslanav serve" subcommand: it wires all
// components, starts the optional MQTT publisher, starts the API
// server, and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting teslanav", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "backend", cfg.Backend.URL)

	comps, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.store.Close()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, comps.planner, comps.bus, logger)

	var mqttPub *mqttpub.Publisher
	if cfg.MQTT.Enabled && cfg.MQTT.Broker != "" {
		mqttPub = mqttpub.New(cfg.MQTT, comps.bus, logger)
		go func() {
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
		logger.Info("mqtt publishing enabled", "broker", cfg.MQTT.Broker, "device_name", cfg.MQTT.DeviceName)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if mqttPub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := mqttPub.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("teslanav stopped")
	return nil
}

// runPlan handles "teslanav plan <prompt>": a one-shot interpretation
// and resolution pass, printed as JSON. Useful for smoke-testing the
// language model and backend without starting the server.
func runPlan(ctx context.Context, stdout io.Writer, configPath, prompt string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	comps, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer comps.store.Close()

	planErr := comps.planner.PlanFromPrompt(ctx, prompt)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(comps.planner.Snapshot()); err != nil {
		return err
	}
	return planErr
}

// runVehicles lists the vehicles on the account.
func runVehicles(ctx context.Context, stdout io.Writer, configPath, outputFmt string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	tokens := fleet.NewTokenSource(fleet.Tokens{
		AccessToken:  cfg.Tesla.AccessToken,
		RefreshToken: cfg.Tesla.RefreshToken,
	}, cfg.Tesla.TokenFile, logger)
	client := fleet.NewClient(cfg.Backend.URL, tokens, logger)

	vehicles, err := client.Vehicles(ctx)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(vehicles)
	}
	if len(vehicles) == 0 {
		fmt.Fprintln(stdout, "No vehicles on this account.")
		return nil
	}
	for _, v := range vehicles {
		fmt.Fprintf(stdout, "%-20s %-18s %s\n", v.DisplayName, v.VIN, v.State)
	}
	return nil
}

// newLogger creates a structured text logger that writes to w at the
// given level. All log output goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig resolves and loads the config file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
