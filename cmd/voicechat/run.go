package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/VoiceChat/internal/adapters/capture"
	router "github.com/dkeye/VoiceChat/internal/adapters/http"
	"github.com/dkeye/VoiceChat/internal/adapters/rtc"
	"github.com/dkeye/VoiceChat/internal/adapters/signal"
	"github.com/dkeye/VoiceChat/internal/app"
	"github.com/dkeye/VoiceChat/internal/app/orch"
	"github.com/dkeye/VoiceChat/internal/config"
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

var (
	flagConfig string
	flagServer string
	flagRoom   string
	flagListen string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the relay and serve the control API",
	Long: `Connect to the relay and serve the control API.

Examples:
  voicechat run --server ws://localhost:5000/ConnectionHub --room lobby
  voicechat run --config config/config.prod.yaml --listen :9090`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	runCmd.Flags().StringVarP(&flagServer, "server", "s", "", "relay websocket url")
	runCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "chat to join once connected")
	runCmd.Flags().StringVarP(&flagListen, "listen", "l", "", "control API listen address")
}

func loadConfig() (*config.Source, error) {
	src, err := config.Open(flagConfig)
	if err != nil {
		return nil, err
	}
	overrides := []struct{ flag, key, value string }{
		{"server", "signal.url", flagServer},
		{"room", "room", flagRoom},
		{"listen", "listen", flagListen},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		if err := src.Set(o.key, o.value); err != nil {
			return nil, fmt.Errorf("--%s: %w", o.flag, err)
		}
	}
	return src, nil
}

func setupLogging(cfg *config.Config) {
	if !cfg.Debug() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(cfg.Level())
}

func run(ctx context.Context) error {
	src, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := src.Config()
	setupLogging(cfg)

	codec, err := signal.CodecByName(cfg.Signal.Codec)
	if err != nil {
		return err
	}
	servers, err := cfg.ICE.Servers()
	if err != nil {
		return err
	}

	m := metrics.New()
	factory, err := rtc.NewFactory(rtc.Config{
		ICEServers:      servers,
		LegacyDTLSSRTP:  cfg.ICE.LegacyDTLSSRTP,
		IncludeLoopback: cfg.ICE.IncludeLoopback,
	})
	if err != nil {
		return err
	}

	client := signal.NewClient(signal.Options{
		URL:          cfg.Signal.URL,
		Codec:        codec,
		Header:       http.Header{"X-Client-Id": []string{uuid.NewString()}},
		PingPeriod:   cfg.Signal.PingPeriod,
		WriteWait:    cfg.Signal.WriteWait,
		ReadLimit:    cfg.Signal.ReadLimit,
		SendBuffer:   cfg.Signal.SendBuffer,
		ReconnectMin: cfg.Signal.ReconnectMin,
		ReconnectMax: cfg.Signal.ReconnectMax,
	})

	media := app.NewLocalMedia(capture.New(cfg.Media.FrameInterval), cfg.Media.Retries).WithMetrics(m)
	hub := router.NewHub().WithMetrics(m)
	ctl := orch.New(orch.Deps{
		Signaler: client,
		Media:    media,
		Peers:    app.NewRegistry(m),
		Factory:  factory,
		Renderer: hub,
		Policy:   app.SimplePolicy{},
		Metrics:  m,
	}, orch.Options{
		Constraints:   domain.Constraints{Audio: cfg.Media.Audio, Video: cfg.Media.Video},
		MuteByDefault: cfg.Media.MuteByDefault,
		StallTimeout:  cfg.Negotiation.StallTimeout,
	})

	src.Watch(func(c *config.Config) {
		zerolog.SetGlobalLevel(c.Level())
		ctl.SetMuteByDefault(c.Media.MuteByDefault)
	})

	if cfg.Room != "" {
		room := domain.ChatName(cfg.Room)
		client.On(core.EventConnected, func(core.Args) {
			// Handlers run on the read goroutine; Start waits for the loop.
			go func() {
				if err := ctl.Start(ctx, room); err != nil {
					log.Error().Err(err).Str("chat", cfg.Room).Msg("auto join failed")
				}
			}()
		})
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router.SetupRouter(cfg, ctl, hub, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Run(gctx) })
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.Listen).Str("version", version).Msg("voicechat started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("voicechat exited")
	return err
}
