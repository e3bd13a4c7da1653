package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/roomchat/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		port    string
		envFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Long: `Start the HTTP and WebSocket server.

Configuration is read from the environment after loading an optional
dotenv file. Flags override the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen address or port (overrides PORT)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	return cmd
}

func serve(cfg *server.Config) error {
	logger := server.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	srv := server.New(cfg, logger)
	srv.Start()

	httpServer := server.CreateServer(srv.Config().Port, srv.Handler())
	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("roomchat started",
		"version", version,
		"addr", httpServer.Addr,
		"origins", srv.Config().AllowedOrigins)

	timeout := srv.Config().ShutdownTimeout
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		timeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return server.ShutdownServer(httpServer, timeout)
			},
			"hub": func(ctx context.Context) error {
				return srv.Shutdown(timeout)
			},
		},
	)

	exitCode := <-wait
	logger.Info("roomchat exited", "code", exitCode)
	if exitCode != 0 {
		return errors.New("shutdown did not complete cleanly")
	}
	return nil
}
