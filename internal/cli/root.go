// Package cli implements exiloncmsctl, the operator command line for managing
// extensions, updates, backups and settings without going through the HTTP API.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/exiloncms/exiloncms/internal/app"
	"github.com/exiloncms/exiloncms/internal/app/container"
	"github.com/exiloncms/exiloncms/internal/auditctx"
)

// Opener builds the service container for a command run.
type Opener func(ctx context.Context, configPath string) (*container.Container, error)

// Options customises the root command. Zero values fall back to the real
// config loader and stdout.
type Options struct {
	Open Opener
	Out  io.Writer
}

type session struct {
	open       Opener
	configPath string
	actor      string
	logLevel   string
	c          *container.Container
}

// NewRootCommand assembles the exiloncmsctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	s := &session{open: opts.Open}
	if s.open == nil {
		s.open = OpenContainer
	}

	root := &cobra.Command{
		Use:           "exiloncmsctl",
		Short:         "Manage an ExilonCMS installation from the command line",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return app.ConfigureLogging(app.ServerConfig{LogLevel: s.logLevel, LogFormat: "console"})
		},
	}
	if opts.Out != nil {
		root.SetOut(opts.Out)
	}

	root.PersistentFlags().StringVar(&s.configPath, "config", "", "Path to configuration directory or file")
	root.PersistentFlags().StringVar(&s.actor, "actor", defaultActor(), "Name recorded in action logs")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "warn", "Minimum level of log lines written to stderr")

	root.AddCommand(
		newPluginsCommand(s),
		newThemesCommand(s),
		newUpdatesCommand(s),
		newBackupCommand(s),
		newSettingsCommand(s),
	)
	return root
}

// Execute runs exiloncmsctl with os.Args.
func Execute(ctx context.Context) error {
	return NewRootCommand(Options{}).ExecuteContext(ctx)
}

// run opens the container, executes fn with a CLI actor context and closes
// the container afterwards.
func (s *session) run(fn func(ctx context.Context, c *container.Container, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		c, err := s.open(ctx, s.configPath)
		if err != nil {
			return err
		}
		defer c.Close()

		return fn(auditctx.CLI(ctx, s.actor), c, cmd.OutOrStdout())
	}
}

// OpenContainer loads configuration the same way the server does and builds
// the service container against the same database and extension directories.
func OpenContainer(ctx context.Context, configPath string) (*container.Container, error) {
	cfg, err := app.LoadConfigFrom(configPath)
	if err != nil {
		return nil, err
	}
	if _, err := app.ApplyRuntimeDefaults(cfg); err != nil {
		return nil, err
	}
	c, err := container.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open installation: %w", err)
	}
	return c, nil
}

func defaultActor() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "cli"
}
