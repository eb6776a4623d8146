// Package main provides the playback daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ariavoice/audioplayer/internal/api/httpapi"
	"github.com/ariavoice/audioplayer/internal/app/player"
	"github.com/ariavoice/audioplayer/internal/focus"
	"github.com/ariavoice/audioplayer/internal/infra/config"
	"github.com/ariavoice/audioplayer/internal/infra/logger"
	"github.com/ariavoice/audioplayer/internal/infra/simplayer"
	"github.com/ariavoice/audioplayer/internal/media"
)

var (
	app        = kingpin.New("playerd", "Audio playback daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/playerd.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the daemon (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == checkConfigCmd.FullCommand() {
		if _, err := config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("config OK")
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Daemon error: %v", err)
		os.Exit(1)
	}
}

// run executes the daemon. Using a separate function ensures defer
// statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	backends, err := buildBackends(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, b := range backends {
			b.Close()
		}
	}()

	players := make([]media.Player, len(backends))
	for i, b := range backends {
		players[i] = b
	}
	pool := media.NewFixedPool(players...)

	arbiter := focus.NewArbiter()
	defer arbiter.Close()

	hub := httpapi.NewHub()

	agent, err := player.New(player.Config{
		ChannelName:     cfg.Player.ChannelName,
		ChannelPriority: cfg.Player.ChannelPriority,
	}, player.Deps{
		Factory:   pool,
		Focus:     arbiter,
		Sender:    hub,
		Reporter:  stateLog{},
		Exception: exceptionLog{},
		Router:    routerLog{},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create player")
	}
	agent.AddActivityObserver(activityLog{})

	api := httpapi.New(agent, hub)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(api.Router(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serverErr error
	select {
	case sig := <-sigCh:
		zlog.Info().Msgf("Received %v, shutting down...", sig)
	case serverErr = <-serverErrCh:
	}

	// Stop playback first so the final events reach live event streams,
	// then close the hub so those streams end before the server drains.
	agent.Shutdown()
	hub.Close()

	if serverErr != nil {
		return errors.Wrap(serverErr, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Daemon stopped")
	return nil
}

// buildBackends constructs the configured rendering backends.
func buildBackends(cfg *config.Config) ([]*simplayer.Player, error) {
	switch cfg.Backends.Type {
	case "simulated":
		opts, err := simplayer.OptionsFromSettings(cfg.Backends.Settings)
		if err != nil {
			return nil, errors.Wrap(err, "invalid backend settings")
		}
		backends := make([]*simplayer.Player, cfg.Backends.Count)
		for i := range backends {
			backends[i] = simplayer.New(opts)
		}
		zlog.Info().Msgf("created backends: type=%s count=%d track_duration=%v start_latency=%v",
			cfg.Backends.Type, len(backends), opts.TrackDuration(), opts.StartLatency())
		return backends, nil
	default:
		return nil, errors.Newf("unknown backend type %q", cfg.Backends.Type)
	}
}

// stateLog records reported playback state in the daemon log. Clients read
// state on demand through the state endpoint instead.
type stateLog struct{}

func (stateLog) SetState(state []byte, policy player.RefreshPolicy, requestToken uint32) error {
	zlog.Debug().Msgf("state report: policy=%s requestToken=%d state=%s", policy, requestToken, state)
	return nil
}

// exceptionLog surfaces rejected directives in the daemon log.
type exceptionLog struct{}

func (exceptionLog) SendExceptionEncountered(payload []byte, errorType player.ExceptionType, message string) {
	zlog.Warn().Msgf("directive exception: type=%s message=%s payload=%s", errorType, message, payload)
}

// routerLog stands in for a physical playback controls router.
type routerLog struct{}

func (routerLog) SwitchToDefaultHandler() {
	zlog.Debug().Msg("playback controls routed to default handler")
}

// activityLog writes every player activity transition to the log.
type activityLog struct{}

func (activityLog) OnPlayerActivityChanged(activity player.Activity, ctx player.Context) {
	zlog.Info().Msgf("activity: %s audioItemId=%s offset=%v", activity, ctx.AudioItemID, ctx.Offset)
}
