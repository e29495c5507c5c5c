package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/VoiceChat/internal/adapters/signal"
	"github.com/dkeye/VoiceChat/internal/relay"
)

var (
	flagRelayListen string
	flagRelayCodec  string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a local chat relay for development",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runRelay(cmd.Context())
	},
}

func init() {
	relayCmd.Flags().StringVarP(&flagRelayListen, "listen", "l", ":5000", "relay listen address")
	relayCmd.Flags().StringVar(&flagRelayCodec, "codec", signal.CodecJSON, "wire codec (json or msgpack)")
}

func runRelay(ctx context.Context) error {
	codec, err := signal.CodecByName(flagRelayCodec)
	if err != nil {
		return err
	}
	s := relay.NewServer(relay.Options{Codec: codec})
	srv := &http.Server{
		Addr:              flagRelayListen,
		Handler:           s.Router(ctx, "release"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", flagRelayListen).Str("codec", codec.Name()).Msg("relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
