package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/agentboard/agentboard/internal/board"
	"github.com/agentboard/agentboard/internal/config"
	"github.com/agentboard/agentboard/internal/task"
	"github.com/agentboard/agentboard/internal/web"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board UI and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDB, cfg, cleanup, err := openStores()
			if err != nil {
				return err
			}
			defer cleanup()
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			app := fx.New(
				fx.NopLogger,
				fx.Supply(cfg),
				fx.Supply(storeDB),
				fx.Provide(
					board.NewStore,
					newTaskService,
					web.NewServer,
				),
				fx.Invoke(registerServer),
			)
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			<-app.Done()
			return app.Stop(context.Background())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func newTaskService(db *sql.DB, boards *board.Store, cfg config.Config) *task.Service {
	svc := task.NewService(db, boards, task.WithLease(cfg.Claims.LeaseDuration()))
	svc.Subscribe(func(ev task.Event) {
		log.Debug().
			Str("event", string(ev.Kind)).
			Str("task", ev.Task.Identifier).
			Msg("board change")
	})
	return svc
}

func registerServer(lc fx.Lifecycle, cfg config.Config, server *web.Server) {
	srv := &http.Server{
		Addr:    cfg.HTTP.ListenAddr(),
		Handler: server.Routes(),
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info().Msgf("listening on http://%s", ln.Addr())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("http server stopped")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
