package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/haven-agent/internal/adapters/http"
	"github.com/PabloGalante/haven-agent/internal/adapters/speech"
	"github.com/PabloGalante/haven-agent/internal/app/conversation"
	"github.com/PabloGalante/haven-agent/internal/domain"
	"github.com/PabloGalante/haven-agent/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != "" {
				a.cfg.Port = port
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides HAVEN_PORT)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	log := observability.Logger()

	svc, err := buildService(ctx, a.cfg, func(synth speech.Synthesizer) conversation.SpeakerFactory {
		return func(id domain.SessionID, pub domain.EventPublisher) conversation.SessionSpeaker {
			return speech.NewSessionVoice(synth, id, pub, a.cfg.Timeouts.Speech, 0)
		}
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: ":" + a.cfg.Port,
		Handler: httpadapter.NewServer(svc, httpadapter.Options{
			RateLimit: a.cfg.RateLimit,
			RateBurst: a.cfg.RateBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("haven API listening", zap.String("addr", srv.Addr), zap.String("env", string(a.cfg.Mode)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		svc.Close()
		return err
	})

	return g.Wait()
}
