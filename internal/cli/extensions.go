package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exiloncms/exiloncms/internal/app/container"
	"github.com/exiloncms/exiloncms/internal/services"
)

func newPluginsCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plugins",
		Aliases: []string{"plugin"},
		Short:   "List, enable, install and remove plugins",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			items, err := c.Plugins.List(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, items)
			}
			return printExtensions(out, items)
		}),
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	enable := &cobra.Command{
		Use:   "enable <id>",
		Short: "Enable a plugin and run its pending migrations",
		Args:  cobra.ExactArgs(1),
	}
	enable.RunE = func(cmd *cobra.Command, args []string) error {
		return s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			if err := c.Plugins.Enable(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "plugin %s enabled\n", args[0])
			return nil
		})(cmd, args)
	}

	disable := &cobra.Command{
		Use:   "disable <id>",
		Short: "Disable a plugin",
		Args:  cobra.ExactArgs(1),
	}
	disable.RunE = func(cmd *cobra.Command, args []string) error {
		return s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			if err := c.Plugins.Disable(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "plugin %s disabled\n", args[0])
			return nil
		})(cmd, args)
	}

	var replace bool
	install := &cobra.Command{
		Use:   "install <zip|url>",
		Short: "Install a plugin from a zip archive or an http(s) URL",
		Args:  cobra.ExactArgs(1),
	}
	install.Flags().BoolVar(&replace, "replace", false, "Overwrite an installed plugin with the same id")
	install.RunE = func(cmd *cobra.Command, args []string) error {
		return s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			opts := services.InstallOptions{Replace: replace, Source: services.SourceUpload}
			var (
				dto *services.ExtensionDTO
				err error
			)
			if isURL(args[0]) {
				dto, err = c.Plugins.InstallFromURL(ctx, args[0], opts)
			} else {
				dto, err = installFromFile(args[0], func(f *os.File, size int64) (*services.ExtensionDTO, error) {
					return c.Plugins.InstallFromArchive(ctx, f, size, opts)
				})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "plugin %s %s installed\n", dto.ID, dto.Version)
			return nil
		})(cmd, args)
	}

	var purge bool
	uninstall := &cobra.Command{
		Use:   "uninstall <id>",
		Short: "Remove a plugin directory and its record",
		Args:  cobra.ExactArgs(1),
	}
	uninstall.Flags().BoolVar(&purge, "purge", false, "Forget applied migrations so a reinstall runs them again")
	uninstall.RunE = func(cmd *cobra.Command, args []string) error {
		return s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			if err := c.Plugins.Uninstall(ctx, args[0], purge); err != nil {
				return err
			}
			fmt.Fprintf(out, "plugin %s uninstalled\n", args[0])
			return nil
		})(cmd, args)
	}

	cmd.AddCommand(list, enable, disable, install, uninstall)
	return cmd
}

func newThemesCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "themes",
		Aliases: []string{"theme"},
		Short:   "List, activate and install themes",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List discovered themes",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			items, err := c.Themes.List(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, items)
			}
			return printExtensions(out, items)
		}),
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	activate := &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a theme the active one",
		Args:  cobra.ExactArgs(1),
	}
	activate.RunE = func(cmd *cobra.Command, args []string) error {
		return s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			if err := c.Themes.Activate(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "theme %s activated\n", args[0])
			return nil
		})(cmd, args)
	}

	deactivate := &cobra.Command{
		Use:   "deactivate",
		Short: "Fall back to the default theme",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			if err := c.Themes.Deactivate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "theme deactivated")
			return nil
		}),
	}

	var replace bool
	install := &cobra.Command{
		Use:   "install <zip|url>",
		Short: "Install a theme from a zip archive or an http(s) URL",
		Args:  cobra.ExactArgs(1),
	}
	install.Flags().BoolVar(&replace, "replace", false, "Overwrite an installed theme with the same id")
	install.RunE = func(cmd *cobra.Command, args []string) error {
		return s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			opts := services.InstallOptions{Replace: replace, Source: services.SourceUpload}
			var (
				dto *services.ExtensionDTO
				err error
			)
			if isURL(args[0]) {
				dto, err = c.Themes.InstallFromURL(ctx, args[0], opts)
			} else {
				dto, err = installFromFile(args[0], func(f *os.File, size int64) (*services.ExtensionDTO, error) {
					return c.Themes.Install(ctx, f, size, opts)
				})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "theme %s %s installed\n", dto.ID, dto.Version)
			return nil
		})(cmd, args)
	}

	cmd.AddCommand(list, activate, deactivate, install)
	return cmd
}

func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

func installFromFile(path string, install func(f *os.File, size int64) (*services.ExtensionDTO, error)) (*services.ExtensionDTO, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	return install(f, info.Size())
}
