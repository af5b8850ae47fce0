package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/csms/core/logx"
	"github.com/gaspardpetit/csms/core/secret"
	"github.com/gaspardpetit/csms/internal/config"
	"github.com/gaspardpetit/csms/internal/csms"
	"github.com/gaspardpetit/csms/internal/dispatch"
	"github.com/gaspardpetit/csms/internal/eventlog"
	"github.com/gaspardpetit/csms/internal/inflight"
	"github.com/gaspardpetit/csms/internal/messages"
	"github.com/gaspardpetit/csms/internal/metrics"
	"github.com/gaspardpetit/csms/internal/notify"
	"github.com/gaspardpetit/csms/internal/ocpp"
	"github.com/gaspardpetit/csms/internal/redisx"
	"github.com/gaspardpetit/csms/internal/server"
	"github.com/gaspardpetit/csms/internal/serverstate"
	"github.com/gaspardpetit/csms/internal/stations"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

var errShutdown = errors.New("csms shutting down")

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ServerConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv() // allows CONFIG_FILE from env
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "csms version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("csms version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store stations.Store
	if cfg.RedisAddr != "" {
		client, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		defer func() { _ = client.Close() }()
		rs, err := serverstate.NewRedisStore(ctx, client, "")
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("redis state store")
		}
		serverstate.Use(serverstate.NewTracker(rs))
		store = stations.NewRedisStore(client, "")
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis station directory")
	}
	serverstate.Default().Reset()

	hub := notify.NewHub(cfg.NotifyBuffer)
	defer hub.Close()
	defer metrics.Attach(hub)()

	events, err := eventlog.Open(eventlog.Options{Dir: cfg.EventLogPath, TTL: cfg.EventLogTTL})
	if err != nil {
		logx.Log.Fatal().Err(err).Str("path", cfg.EventLogPath).Msg("open event log")
	}
	defer func() {
		if err := events.Close(); err != nil {
			logx.Log.Error().Err(err).Msg("close event log")
		}
	}()
	defer events.Attach(hub)()
	if cfg.EventLogPath != "" {
		go events.RunGC(10*time.Minute, ctx.Done())
	}

	var handlers inflight.Counter
	engine := dispatch.New(messages.NewRegistry(), hub, dispatch.Options{
		Role:             ocpp.RoleCSMS,
		DefaultTimeout:   cfg.CallTimeout,
		ReplyToMalformed: cfg.ReplyToMalformed,
		Inflight:         &handlers,
	})
	reg := stations.NewRegistry(store)
	csms.New(reg, csms.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		AcceptedTokens:    cfg.AcceptedTokens,
	}).Install(engine)

	handler := server.New(cfg, server.Deps{
		Engine:   engine,
		Stations: reg,
		Hub:      hub,
		Events:   events,
		State:    serverstate.Default(),
		Inflight: &handlers,
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != fmt.Sprintf(":%d", cfg.Port) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			serverstate.StartDrain()
			logx.Log.Info().Int64("inflight", handlers.Load()).Int("stations", reg.Connected()).Msg("drain requested")
			waitCtx := ctx
			var stop context.CancelFunc
			if cfg.DrainTimeout > 0 {
				logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
				waitCtx, stop = context.WithTimeout(ctx, cfg.DrainTimeout)
			} else {
				logx.Log.Info().Msg("draining; send SIGTERM again to terminate immediately")
			}
			go func(stop context.CancelFunc, waitCtx context.Context) {
				if stop != nil {
					defer stop()
				}
				if handlers.WaitForZero(waitCtx) {
					logx.Log.Info().Msg("drain complete; terminating")
					cancel()
					return
				}
				if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
					logx.Log.Warn().Int64("inflight", handlers.Load()).Msg("drain timeout exceeded; terminating")
					cancel()
				}
			}(stop, waitCtx)
		}
	}()
	go func() {
		<-ctx.Done()
		reg.CloseAll(errShutdown)
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()

	if cfg.APIKey != "" {
		logx.Log.Info().Str("api_key", secret.Mask(cfg.APIKey)).Msg("API key auth enabled")
	}
	if len(cfg.StationPasswords) > 0 {
		logx.Log.Info().Int("stations", len(cfg.StationPasswords)).Msg("station basic auth enabled")
		logx.Log.Debug().Interface("passwords", secret.MaskMap(cfg.StationPasswords)).Msg("station credentials")
	}
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	logx.Log.Info().Int("port", cfg.Port).Str("version", version).Msg("server starting")
	serverstate.SetState(serverstate.Ready)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
	<-ctx.Done()
}
