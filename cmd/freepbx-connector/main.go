// Command freepbx-connector bridges a FreePBX/Asterisk phone system to a
// hosted call-center dashboard.
//
// The connector maintains a supervised Asterisk Manager Interface (AMI)
// session for live call and device state, syncs agents and queues from the
// FreePBX MySQL databases, serves a local REST and WebSocket facade, and
// optionally pushes state snapshots and events to a hosted dashboard.
//
// Usage:
//
//	freepbx-connector [flags]
//
// Flags:
//
//	-config string   Configuration file path (YAML)
//	-interactive     Enable the interactive console
//	-version         Print the version and exit
//
// Examples:
//
//	# Run against localhost with secrets from the environment
//	AMI_SECRET=... MYSQL_PASSWORD=... freepbx-connector
//
//	# Run with a config file and the interactive console
//	freepbx-connector -config /etc/freepbx-connector.yaml -interactive
//
// Interactive Commands:
//
//	status      - Show connection, keepalive, and sync status
//	calls       - List active calls
//	devices     - List device states
//	agents      - List directory agents
//	queues      - List queues with live statistics
//	send <action> [key=value ...] - Send a raw manager action
//	reconnect   - Drop the manager connection and reconnect
//	quit        - Exit the connector
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/grothdavid/ccdashboard-freepbx2/cmd/freepbx-connector/interactive"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/api"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/calls"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/capture"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/config"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/connection"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/dashboard"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/directory"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/service"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/transport"
	"github.com/grothdavid/ccdashboard-freepbx2/pkg/version"
)

// eventRelayTimeout bounds one hosted-dashboard event post.
const eventRelayTimeout = 10 * time.Second

var (
	configPath      string
	interactiveMode bool
	showVersion     bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "Configuration file path (YAML)")
	flag.BoolVar(&interactiveMode, "interactive", false, "Enable the interactive console")
	flag.BoolVar(&showVersion, "version", false, "Print the version and exit")
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("freepbx-connector %s\n", version.Connector)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "freepbx-connector: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "freepbx-connector: %v\n", err)
		os.Exit(1)
	}

	sink := &logSink{w: os.Stderr}
	logger, err := newLogger(cfg.Log, sink)
	if err != nil {
		fmt.Fprintf(os.Stderr, "freepbx-connector: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, sink); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Connector failed")
		os.Exit(1)
	}
	logger.Info().Msg("Goodbye")
}

func run(cfg *config.Config, logger zerolog.Logger, sink *logSink) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", version.Connector).
		Str("ami", cfg.AMI.Address()).
		Str("mysql", cfg.MySQL.Address()).
		Str("web", cfg.Web.Address()).
		Msg("FreePBX connector starting")

	captureLogger, closeCapture, err := buildCapture(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCapture()

	registry := prometheus.NewRegistry()

	dirClient, err := directory.Open(directory.Config{
		Address:        cfg.MySQL.Address(),
		User:           cfg.MySQL.User,
		Password:       cfg.MySQL.Password,
		Database:       cfg.MySQL.Database,
		CDRDatabase:    cfg.MySQL.CDRDatabase,
		ConnectTimeout: cfg.MySQL.ConnectTimeout.Std(),
	}, logger)
	if err != nil {
		return fmt.Errorf("opening directory: %w", err)
	}
	defer dirClient.Close()

	store := directory.NewStore()
	syncer := directory.NewSyncer(dirClient, store, logger)

	svcCfg := service.DefaultConfig()
	svcCfg.Address = cfg.AMI.Address()
	svcCfg.Username = cfg.AMI.Username
	svcCfg.Secret = cfg.AMI.Secret
	svcCfg.UseMD5 = cfg.AMI.UseMD5
	if cfg.AMI.TLS.Enabled {
		tlsCfg, err := transport.TLSConfig{
			ServerName:         cfg.AMI.TLS.ServerName,
			CAFile:             cfg.AMI.TLS.CAFile,
			InsecureSkipVerify: cfg.AMI.TLS.InsecureSkipVerify,
		}.Build()
		if err != nil {
			return fmt.Errorf("building manager tls config: %w", err)
		}
		svcCfg.TLS = tlsCfg
	}
	svcCfg.ConnectTimeout = cfg.AMI.ConnectTimeout.Std()
	svcCfg.ActionTimeout = cfg.AMI.ActionTimeout.Std()
	// Fixed reconnect pacing; the delay between attempts is the
	// configured one regardless of how many have failed.
	svcCfg.Backoff = connection.BackoffConfig{
		Initial:    cfg.AMI.ReconnectDelay.Std(),
		Max:        cfg.AMI.ReconnectDelay.Std(),
		Multiplier: 1,
	}
	svcCfg.KeepAlive.PingInterval = cfg.AMI.KeepAliveInterval.Std()
	svcCfg.Logger = logger
	svcCfg.Capture = captureLogger
	svcCfg.Metrics = registry

	svc, err := service.New(svcCfg)
	if err != nil {
		return fmt.Errorf("creating manager service: %w", err)
	}

	builder := svc.SnapshotBuilder(store)

	var dash *dashboard.Client
	var pusher *dashboard.Pusher
	if cfg.Dashboard.Enabled() {
		dash, err = dashboard.New(dashboard.Config{
			URL:     cfg.Dashboard.URL,
			Token:   cfg.Dashboard.Token,
			Timeout: cfg.Dashboard.Timeout.Std(),
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("creating dashboard client: %w", err)
		}
		pusher = dashboard.NewPusher(dash, cfg.Dashboard.SyncInterval.Std(), func() any {
			return builder.Snapshot()
		})
	} else {
		logger.Info().Msg("No dashboard URL configured, push disabled")
	}

	apiSrv, err := api.NewServer(api.Config{
		Addr:   cfg.Web.Address(),
		Token:  cfg.Web.AuthToken,
		Source: builder,
		Health: api.HealthSources{
			AMI: svc.IsConnected,
			MySQL: func() bool {
				pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				defer cancel()
				return dirClient.Ping(pingCtx) == nil
			},
			Dashboard: func() bool { return dash != nil },
		},
		Metrics: registry,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating REST facade: %w", err)
	}

	wireEvents(svc, apiSrv, dash, logger)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting manager service: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return syncer.Run(ctx, cfg.Sync.ConfigInterval.Std()) })
	g.Go(func() error {
		return svc.RunQueueStatsPoll(ctx, cfg.Sync.QueueStatsInterval.Std(), store.QueueExtensions)
	})
	g.Go(func() error { return svc.RunHealthMonitor(ctx, cfg.Sync.HealthCheckInterval.Std()) })
	g.Go(func() error { return apiSrv.Run(ctx) })
	if pusher != nil {
		g.Go(func() error { return pusher.Run(ctx) })
	}

	if interactiveMode {
		console, err := interactive.New(svc, store)
		if err != nil {
			return fmt.Errorf("creating console: %w", err)
		}
		// Route log output through readline so messages do not tear
		// the prompt.
		sink.Swap(console.Stdout())
		go console.Run(ctx, stop)
	}

	err = g.Wait()

	sink.Swap(os.Stderr)
	logger.Info().Msg("Shutting down")
	if stopErr := svc.Stop(); stopErr != nil && !errors.Is(stopErr, service.ErrNotStarted) {
		logger.Warn().Err(stopErr).Msg("Service stop failed")
	}
	return err
}

// wireEvents relays call and device transitions to the WebSocket hub and,
// when configured, to the hosted dashboard.
func wireEvents(svc *service.Service, apiSrv *api.Server, dash *dashboard.Client, logger zerolog.Logger) {
	relay := func(eventType string, data map[string]any) {
		apiSrv.Broadcast(api.NewEvent(eventType, data))
		if dash == nil {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), eventRelayTimeout)
			defer cancel()
			if err := dash.PushEvent(ctx, eventType, data); err != nil {
				logger.Debug().Err(err).Str("type", eventType).Msg("Event relay failed")
			}
		}()
	}

	svc.OnCallStarted(func(call calls.Call) { relay("call_started", callEventData(call)) })
	svc.OnCallEnded(func(call calls.Call) { relay("call_ended", callEventData(call)) })
	svc.OnDeviceState(func(device calls.Device) { relay("device_state", deviceEventData(device)) })
}

func callEventData(call calls.Call) map[string]any {
	return map[string]any{
		"uniqueid":  call.UniqueID,
		"channel":   call.Channel,
		"extension": call.Extension,
		"callerid":  call.CallerID,
		"direction": string(call.Direction),
		"state":     call.State,
	}
}

func deviceEventData(device calls.Device) map[string]any {
	return map[string]any{
		"device":    device.Name,
		"extension": calls.ExtractExtension(device.Name),
		"state":     device.State,
	}
}

// buildCapture assembles the protocol capture pipeline: the journal file
// when one is configured, mirrored into the logs at trace level.
func buildCapture(cfg *config.Config, logger zerolog.Logger) (capture.Logger, func(), error) {
	var sinks []capture.Logger
	closer := func() {}

	if cfg.Capture.File != "" {
		fileLogger, err := capture.NewFileLogger(cfg.Capture.File)
		if err != nil {
			return nil, nil, fmt.Errorf("opening capture journal: %w", err)
		}
		sinks = append(sinks, fileLogger)
		closer = func() {
			if err := fileLogger.Close(); err != nil {
				logger.Warn().Err(err).Msg("Closing capture journal failed")
			}
		}
		logger.Info().Str("file", cfg.Capture.File).Msg("Protocol capture enabled")
	}
	if logger.GetLevel() == zerolog.TraceLevel {
		sinks = append(sinks, capture.NewZerologAdapter(logger))
	}

	switch len(sinks) {
	case 0:
		return nil, closer, nil
	case 1:
		return sinks[0], closer, nil
	default:
		return capture.NewMultiLogger(sinks...), closer, nil
	}
}

func newLogger(cfg config.LogConfig, out io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("bad log level %q: %w", cfg.Level, err)
		}
	}

	var w io.Writer = out
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// logSink is a swappable log destination. The interactive console
// retargets logging through readline so messages do not corrupt the
// prompt line.
type logSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *logSink) Swap(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}
