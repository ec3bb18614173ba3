// Package main is the pinmap terminal client.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/onnwee/pinmap/internal/client"
	"github.com/onnwee/pinmap/internal/mapstate"
	"github.com/onnwee/pinmap/internal/middleware"
	"github.com/onnwee/pinmap/internal/tui"
)

const commandTimeout = 15 * time.Second

// options are the persistent flags shared by every subcommand.
type options struct {
	apiURL      string
	sessionFile string
	logFile     string
	env         string

	logger  *slog.Logger
	logSink io.Closer
}

func main() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "pinmap",
		Short:        "Browse and review places on a map from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logSink != nil {
				_ = opts.logSink.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api-url", getEnv("PINMAP_API_URL", client.DefaultBaseURL), "Base URL of the pinmap API")
	rootCmd.PersistentFlags().StringVar(&opts.sessionFile, "session-file", getEnv("PINMAP_SESSION_FILE", defaultSessionPath()), "Where the login session is stored")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", getEnv("PINMAP_LOG_FILE", ""), "Write debug logs to this file")
	rootCmd.PersistentFlags().StringVar(&opts.env, "env", getEnv("PINMAP_ENV", "development"), "Log format: production for JSON")

	rootCmd.AddCommand(newMapCmd(opts))
	rootCmd.AddCommand(newPinsCmd(opts))
	rootCmd.AddCommand(newSearchCmd(opts))
	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newRegisterCmd(opts))
	rootCmd.AddCommand(newLogoutCmd(opts))
	rootCmd.AddCommand(newWhoamiCmd(opts))

	return rootCmd
}

// initLogger sends logs to --log-file. Without one they are dropped, since
// the terminal belongs to the UI.
func (o *options) initLogger() error {
	if o.logFile == "" {
		o.logger = middleware.NewLoggerTo(io.Discard, o.env)
		return nil
	}
	f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	o.logSink = f
	o.logger = middleware.NewLoggerTo(f, o.env)
	return nil
}

func (o *options) client() *client.Client {
	return client.New(client.Config{BaseURL: o.apiURL, Logger: o.logger})
}

func newMapCmd(opts *options) *cobra.Command {
	var location, policy string

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Open the map page",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd, opts, tui.ScreenMap, location, policy)
		},
	}
	cmd.Flags().StringVar(&location, "location", getEnv("PINMAP_LOCATION", ""), `Device position as "lat,long", or "denied" or "none"`)
	cmd.Flags().StringVar(&policy, "policy", getEnv("PINMAP_POLICY", mapstate.PolicyBlocking.String()), "Location policy: blocking or banner")
	return cmd
}

func newPinsCmd(opts *options) *cobra.Command {
	var plain bool
	var location string

	cmd := &cobra.Command{
		Use:   "pins",
		Short: "List the pins you have reviewed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !plain {
				return runUI(cmd, opts, tui.ScreenPins, location, mapstate.PolicyBlocking.String())
			}

			u, err := loadSession(opts.sessionFile)
			if err != nil {
				return err
			}
			session := mapstate.NewSession(u)
			store := mapstate.NewPinStore(opts.client(), session, opts.logger)
			page := mapstate.NewPinsListPage(session, store)

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			page.Mount(ctx)
			if err := store.Err(); err != nil {
				opts.logger.Warn("could not load pins", "error", err)
			}

			out := cmd.OutOrStdout()
			if u == nil {
				fmt.Fprintln(out, "not signed in")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tRATING\tLAT\tLONG")
			for _, p := range page.Pins() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.5f\t%.5f\n", p.ID, p.Title, p.Rating, p.Lat, p.Long)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print a table instead of opening the UI")
	cmd.Flags().StringVar(&location, "location", getEnv("PINMAP_LOCATION", ""), `Device position used when switching to the map`)
	return cmd
}

func newSearchCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Look up places by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			suggestions, err := opts.client().Search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range suggestions {
				fmt.Fprintf(out, "%s\t%.5f,%.5f\n", s.PlaceName, s.Lat(), s.Long())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of results")
	return cmd
}

func newLoginCmd(opts *options) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return login(ctx, cmd, opts, username, passwordOrEnv(password))
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (default $PINMAP_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newRegisterCmd(opts *options) *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			password := passwordOrEnv(password)
			if err := opts.client().Register(ctx, username, email, password); err != nil {
				return err
			}
			opts.logger.Info("registered", "username", username)
			return login(ctx, cmd, opts, username, password)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (default $PINMAP_PASSWORD)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// passwordOrEnv returns flag, or PINMAP_PASSWORD when flag is empty.
func passwordOrEnv(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("PINMAP_PASSWORD")
}

func login(ctx context.Context, cmd *cobra.Command, opts *options, username, password string) error {
	u, err := opts.client().Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := saveSession(opts.sessionFile, u); err != nil {
		return err
	}
	opts.logger.Info("signed in", "username", u.Username)
	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", u.Username)
	return nil
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clearSession(opts.sessionFile); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := loadSession(opts.sessionFile)
			if err != nil {
				return err
			}
			if u == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.Username)
			return nil
		},
	}
}

func runUI(cmd *cobra.Command, opts *options, start tui.Screen, location, policy string) error {
	loc, err := tui.ParseLocation(location)
	if err != nil {
		return err
	}
	if policy != mapstate.PolicyBlocking.String() && policy != mapstate.PolicyBanner.String() {
		return fmt.Errorf("unknown policy %q: want blocking or banner", policy)
	}
	pol := mapstate.ParsePolicy(policy)
	u, err := loadSession(opts.sessionFile)
	if err != nil {
		return err
	}

	app := tui.New(tui.Config{
		Backend: opts.client(),
		Session: mapstate.NewSession(u),
		Locator: loc,
		Policy:  pol,
		Start:   start,
		Logger:  opts.logger,
	})
	p := tea.NewProgram(app,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	app.SetSender(p.Send)

	opts.logger.Info("starting ui", "api_url", opts.apiURL, "policy", pol.String(), "signed_in", u != nil)
	_, err = p.Run()
	return err
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
