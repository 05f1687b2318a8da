package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	serve := newServeCommand(opts)
	root := &cobra.Command{
		Use:           "portfolio-backend",
		Short:         "Portfolio assistant chat and contact backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "JSON config file (default ./config.json when present)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded into the environment")

	root.AddCommand(serve, newMCPCommand(opts), newChatCommand(opts))
	return root
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, true, func(ctx context.Context, app *App) error {
				return app.Serve(ctx)
			})
		},
	}
}

func newMCPCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose chat and contact tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, false, func(ctx context.Context, app *App) error {
				log.Info().Str("name", ServerName).Msg("MCP server starting on stdio")
				return server.ServeStdio(app.NewMCPServer())
			})
		},
	}
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return withApp(cmd.Context(), opts, false, func(ctx context.Context, app *App) error {
				return app.runInteractiveChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), sessionID)
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: a new UUID)")
	return cmd
}

// withApp loads configuration, builds the services and runs fn. In
// non-server modes log output goes to stderr as plain console lines so it
// never mixes with stdio traffic.
func withApp(ctx context.Context, opts *rootOptions, httpMode bool, fn func(context.Context, *App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := LoadDotEnv(opts.envFile); err != nil {
		return err
	}

	path, required := opts.configPath, true
	if path == "" {
		path, required = "config.json", false
	}
	cfg, err := LoadConfig(path, required)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	format := cfg.LogFormat
	if !httpMode {
		format = "console"
	}
	setupLogging(os.Stderr, cfg.LogLevel, format)

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("close contact repository")
		}
	}()

	// Load the corpus up front; a failure is logged and chat continues without it.
	_ = app.knowledge.Load(ctx)

	return fn(ctx, app)
}
