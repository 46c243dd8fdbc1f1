package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/regchat/cli/internal/server"
	"github.com/regchat/cli/internal/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP API",
	Long: `Serves the chat API over HTTP:

  POST   /chat          ask a question
  DELETE /chat/{id}     clear a session
  GET    /sessions      list active sessions
  GET    /health        dependency health`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := newSessionStore(cfg, database)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if pg, ok := store.(*session.PostgresStore); ok {
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	engine, completer, err := newEngine(ctx, cfg, database, store)
	if err != nil {
		return err
	}

	checks := map[string]server.Pinger{
		"database": database.Ping,
		"llm":      func(ctx context.Context) error { return completer.Ping(ctx) },
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	return server.New(engine, store, checks).ListenAndServe(ctx, addr)
}
