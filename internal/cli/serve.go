package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/msglog/msglog/internal/msglog"
	qcli "github.com/msglog/msglog/internal/q/cli"
	"github.com/msglog/msglog/internal/q/health"
	"github.com/msglog/msglog/internal/server"
)

func newServeCommand(runWithConfig withConfigFunc) *qcli.Command {
	cmd := &qcli.Command{
		Name:  "serve",
		Short: "Serve the diff and message log API over HTTP and websockets.",
		Example: `msglog serve
msglog serve --addr :8080`,
		Args: qcli.NoArgs,
	}
	addr := cmd.Flags().String("addr", 'a', "", "Listen address (default: config server.addr).")
	verbose := cmd.Flags().Bool("verbose", 'v', false, "Log requests at debug level.")

	cmd.Run = runWithConfig("serve", func(c *qcli.Context, env runEnv) error {
		listen := env.cfg.Server.Addr
		if *addr != "" {
			listen = *addr
		}

		level := slog.LevelInfo
		if *verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(c.Err, &slog.HandlerOptions{Level: level}))

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := msglog.NewStore(env.cfg.Rules(), env.cfg.Engine(), logger)
		srv := server.New(store, server.Options{
			MaxMessageBytes: env.cfg.Server.MaxMessageBytes,
			ReadTimeout:     env.cfg.Server.ReadTimeout,
			Logger:          logger,
		})
		err := srv.ListenAndServe(ctx, listen)
		if err != nil && !errors.Is(err, context.Canceled) {
			return errors.New(health.HumanMessage(err))
		}
		return nil
	})
	return cmd
}
