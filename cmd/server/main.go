package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
	"github.com/isdmx/execbox/httpserver"
	"github.com/isdmx/execbox/logger"
	"github.com/isdmx/execbox/mcpserver"
	"github.com/isdmx/execbox/ollama"
	"github.com/isdmx/execbox/sandbox"
)

func main() {
	cmd := &cli.Command{
		Name:  "execbox-server",
		Usage: "run untrusted snippets in throwaway sandboxes over HTTP or MCP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			newApp(cmd.String("config")).Run()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "print the effective configuration as YAML",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := config.NewFromPath(cmd.String("config"))
					if err != nil {
						return err
					}
					out, err := cfg.YAML()
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(out)
					return err
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// stopTimeout covers the runner kill, the HTTP drain and the logger flush
const stopTimeout = 30 * time.Second

func newApp(configPath string) *fx.App {
	return fx.New(
		fx.StopTimeout(stopTimeout),

		fx.Provide(
			// Config
			func() (*config.Config, error) { return config.NewFromPath(configPath) },

			// Logger with configuration
			logger.NewFromConfig,

			// Sandbox runner based on config
			sandbox.NewRunnerFromConfig,

			newOllamaClient,
			newMCPServer,
			newHTTPServer,
		),

		fx.Invoke(registerTransport, registerRunner),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

// newOllamaClient returns nil when the chat proxy is disabled
func newOllamaClient(log *zap.Logger, cfg *config.Config) *ollama.Client {
	if !cfg.Ollama.Enabled {
		return nil
	}
	return ollama.NewClientFromConfig(log.Named("ollama"), cfg)
}

func newMCPServer(cfg *config.Config, log *zap.Logger, runner *sandbox.Runner) *mcpserver.MCPServer {
	return mcpserver.New(cfg, log.Named("mcp"), runner)
}

func newHTTPServer(
	cfg *config.Config,
	log *zap.Logger,
	runner *sandbox.Runner,
	llm *ollama.Client,
	mcp *mcpserver.MCPServer,
) *httpserver.Server {
	var mcpHandler http.Handler
	if cfg.Server.MCPEnabled {
		mcpHandler = mcp.HTTPHandler()
	}
	return httpserver.NewFromConfig(log.Named("http"), cfg, runner, llm, mcpHandler)
}

// registerTransport starts the configured transport with the application
func registerTransport(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	log *zap.Logger,
	mcp *mcpserver.MCPServer,
	srv *httpserver.Server,
) {
	switch cfg.Server.Transport {
	case "stdio":
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := mcp.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
						log.Error("stdio transport stopped", zap.Error(err))
					}
					// stdin closed: the client is gone
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	case "http":
		lc.Append(fx.Hook{
			OnStart: srv.Start,
			OnStop: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout())
				defer cancel()
				return srv.Shutdown(ctx)
			},
		})
	}
}

// registerRunner kills in-flight executions on shutdown. Hooks stop in
// reverse order, so this runs before the HTTP server drains.
func registerRunner(lc fx.Lifecycle, runner *sandbox.Runner) {
	lc.Append(fx.Hook{
		OnStop: runner.Shutdown,
	})
}
