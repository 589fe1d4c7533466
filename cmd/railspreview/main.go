package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loykin/railspreview"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildRoot().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createCloneCommand(globalFlags),
		createListCommand(globalFlags),
		createStartCommand(globalFlags, &StartFlags{}),
		createStopCommand(globalFlags),
		createStatusCommand(globalFlags),
		createHistoryCommand(globalFlags, &HistoryFlags{}),
		createServeCommand(globalFlags),
		createHashPasswordCommand(&HashFlags{}),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "railspreview",
		Short: "Clone, launch and preview Rails applications",
		Long: `railspreview clones a Rails repository into a local workspace, installs its
gems, prepares its database, starts its development server and captures the
rendered home page.

Examples:
  railspreview clone https://github.com/acme/blog.git
  railspreview start blog --output blog.html
  railspreview stop
  railspreview serve                 # web UI on ui.listen`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "use a running 'railspreview serve', e.g. http://127.0.0.1:8501/api")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 0, "HTTP timeout for --api-url requests (0 waits for the launch)")
	root.PersistentFlags().StringVar(&flags.APIUser, "api-user", "", "UI username for --api-url (password from RAILSPREVIEW_API_PASSWORD)")
	root.PersistentFlags().StringVar(&flags.APICACert, "api-ca-cert", "", "CA certificate for an HTTPS --api-url")
	root.PersistentFlags().BoolVar(&flags.APIInsecure, "api-insecure", false, "skip TLS verification for --api-url")
	return root
}

func createCloneCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clone <repo-url>",
		Short: "Clone a repository into the workspace, replacing an existing checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()
			res, err := b.Clone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s: %s\n", res.Message, res.Repo)
			if res.Error != "" {
				return errors.New(res.Error)
			}
			return nil
		},
	}
}

func createListCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cloned repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()
			repos, err := b.Repos(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range repos {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
}

func createStartCommand(flags *GlobalFlags, startFlags *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <repo>",
		Short: "Provision and launch a cloned repository, then capture its home page",
		Long: `Provision and launch a cloned repository, then capture its home page.
The server keeps running after the command returns; use "railspreview stop".

Examples:
  railspreview start blog
  railspreview start blog --json
  railspreview start blog --output preview.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()
			res, err := b.Launch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if startFlags.JSON {
				printJSON(out, res)
			} else {
				printLaunch(out, res)
			}
			if !res.OK() {
				return fmt.Errorf("launch %s failed (%s)", res.Repo, res.Kind)
			}
			if startFlags.Output != "" {
				if err := os.WriteFile(startFlags.Output, []byte(railspreview.PreviewDocument(res)), 0o644); err != nil {
					return fmt.Errorf("write preview: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&startFlags.JSON, "json", false, "print the launch result as JSON")
	cmd.Flags().StringVarP(&startFlags.Output, "output", "o", "", "write the preview document to this file")
	return cmd
}

func createStopCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Kill every process bound to the server port",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()
			res, err := b.Stop(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if res.Error != "" {
				return errors.New(res.Error)
			}
			return nil
		},
	}
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the server started by railspreview and the port owners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()
			st, err := b.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), st)
				return nil
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func createHistoryCommand(flags *GlobalFlags, historyFlags *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent clone, launch and stop events (requires history.dsn)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()
			events, err := b.Recent(cmd.Context(), historyFlags.Limit)
			if err != nil {
				return err
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().IntVar(&historyFlags.Limit, "limit", 20, "number of events")
	return cmd
}

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(flags)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()
			return app.Serve(cmd.Context())
		},
	}
}

func createHashPasswordCommand(hashFlags *HashFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for ui.password_hash (reads stdin without --password)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw := hashFlags.Password
			if pw == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			h, err := railspreview.HashPassword(pw)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().StringVar(&hashFlags.Password, "password", "", "password to hash")
	return cmd
}
