package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nexus/internal/domain"
	"nexus/internal/server"
)

// unavailableChat answers every request with the reason chat could not be built.
type unavailableChat struct{ err error }

func (u unavailableChat) Answer(context.Context, []domain.Message) (domain.Answer, error) {
	return domain.Answer{}, u.err
}

func serveCMD(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}

			var answerer server.Answerer
			if chat, err := a.Chat(); err == nil {
				answerer = chat
			} else {
				a.Log.Warn("serving without chat", zap.Error(err))
				answerer = unavailableChat{err: err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(a.Ingestor, answerer, a.Store, a.Config.Ingest.MaxUploadMB, a.Log).Start(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr from config)")
	return cmd
}
