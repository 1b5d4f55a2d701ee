package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/exiloncms/exiloncms/internal/app/container"
	"github.com/exiloncms/exiloncms/internal/database"
	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/internal/updates"
)

func newUpdatesCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "updates",
		Short: "Check for and apply extension and core updates",
	}

	var (
		force  bool
		asJSON bool
	)
	check := &cobra.Command{
		Use:   "check",
		Short: "List available updates",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			report, err := c.Updates.Check(ctx, force)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, report)
			}
			return printUpdates(out, report)
		}),
	}
	check.Flags().BoolVar(&force, "force", false, "Bypass the cached report")
	check.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	apply := &cobra.Command{
		Use:   "apply <plugin|theme> <id>",
		Short: "Download and install the latest release of an extension",
		Args:  cobra.ExactArgs(2),
	}
	apply.RunE = func(cmd *cobra.Command, args []string) error {
		return s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			dto, err := c.Updates.Apply(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s updated to %s\n", args[0], dto.ID, dto.Version)
			return nil
		})(cmd, args)
	}

	cmd.AddCommand(check, apply)
	return cmd
}

func printUpdates(out io.Writer, report *services.UpdateReport) error {
	rows := make([]updates.Update, 0, len(report.Plugins)+len(report.Themes)+1)
	rows = append(rows, report.Plugins...)
	rows = append(rows, report.Themes...)
	if report.Core != nil {
		rows = append(rows, *report.Core)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "everything is up to date")
		return nil
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "KIND\tID\tCURRENT\tLATEST\tSOURCE")
	for _, u := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.Kind, u.ID, u.CurrentVersion, u.LatestVersion, u.Source)
	}
	return tw.Flush()
}

func newBackupCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backup",
		Aliases: []string{"backups"},
		Short:   "Snapshot and optimize the SQLite database",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Write a new database snapshot",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			file, err := c.Backups.Create(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "backup %s written (%d bytes)\n", file.Name, file.Size)
			return nil
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			files, err := c.Backups.List(ctx)
			if err != nil {
				return err
			}
			tw := newTable(out)
			fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Name, f.Size, f.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		}),
	}

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			removed, err := c.Backups.Prune(ctx, keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d backups removed\n", len(removed))
			return nil
		}),
	}
	prune.Flags().IntVar(&keep, "keep", 7, "Number of snapshots to keep")

	optimize := &cobra.Command{
		Use:   "optimize",
		Short: "Vacuum and analyze the database",
		Args:  cobra.NoArgs,
		RunE: s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			if err := c.Backups.Optimize(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "database optimized")
			return nil
		}),
	}

	cmd.AddCommand(create, list, prune, optimize)
	return cmd
}

func newSettingsCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write site settings",
	}

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Print one setting, or all of them",
		Args:  cobra.MaximumNArgs(1),
	}
	get.RunE = func(cmd *cobra.Command, args []string) error {
		return s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			if len(args) == 1 {
				value, ok, err := c.Settings.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("setting %q is not set", args[0])
				}
				fmt.Fprintln(out, value)
				return nil
			}

			all, err := c.Settings.GetAll(ctx)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(all))
			for key := range all {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			tw := newTable(out)
			for _, key := range keys {
				fmt.Fprintf(tw, "%s\t%s\n", key, all[key])
			}
			return tw.Flush()
		})(cmd, args)
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a setting",
		Args:  cobra.ExactArgs(2),
	}
	set.RunE = func(cmd *cobra.Command, args []string) error {
		return s.run(func(ctx context.Context, c *container.Container, out io.Writer) error {
			switch args[0] {
			case database.SettingEnabledPlugins:
				return fmt.Errorf("%s is managed by the plugins command", args[0])
			case database.SettingTheme:
				return fmt.Errorf("%s is managed by the themes command", args[0])
			}
			if err := c.Settings.Set(ctx, args[0], args[1]); err != nil {
				return err
			}
			// navigation and update caches read settings
			c.Navigation.Invalidate(ctx)
			c.Updates.Invalidate(ctx)
			fmt.Fprintf(out, "%s updated\n", args[0])
			return nil
		})(cmd, args)
	}

	cmd.AddCommand(get, set)
	return cmd
}
