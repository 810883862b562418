package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"priorityforge/backend/remote"
	"priorityforge/internal/config"
	"priorityforge/internal/credentials"
	"priorityforge/internal/utils"
)

func remoteConfig(cfg *config.Config) (remote.Config, error) {
	if !cfg.IsRemoteConfigured() {
		return remote.Config{}, utils.WrapWithSuggestion(
			errors.New("no remote is configured"),
			fmt.Sprintf("Set remote.url and remote.anon_key in the config file, or export %s and %s",
				config.EnvRemoteURL, config.EnvAnonKey),
		)
	}
	return remote.Config{URL: cfg.Remote.URL, AnonKey: cfg.Remote.AnonKey, Table: cfg.Remote.Table}, nil
}

func keyringUnavailable(err error) error {
	if credentials.IsAvailable() {
		return err
	}
	return utils.WrapWithSuggestion(
		fmt.Errorf("system keyring is not available: %w", err),
		fmt.Sprintf("Export %s and %s instead", credentials.EnvAccessToken, credentials.EnvUserID),
	)
}

func newLoginCmd(c *cli) *cobra.Command {
	var (
		email     string
		userID    string
		expiresIn time.Duration
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the remote task table",
		Long: `Sign in so tasks are read from and written to the remote table.

With --email you are prompted for your password and the session is refreshed
automatically. Without it, paste an access token issued elsewhere and give
the account id with --user-id.

The session is stored in the system keyring.

Examples:
  priorityforge login --email me@example.com
  priorityforge login --user-id 6f1c... --expires-in 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			rcfg, err := remoteConfig(cfg)
			if err != nil {
				return err
			}

			var session *credentials.Session
			if email != "" {
				password, err := utils.PromptSecret(fmt.Sprintf("Password for %s: ", email))
				if err != nil {
					return err
				}
				if password == "" {
					return errors.New("password cannot be empty")
				}
				tok, uid, err := remote.SignInWithPassword(cmd.Context(), rcfg, email, password)
				if err != nil {
					return err
				}
				session = credentials.NewSession(uid, tok)
			} else {
				if strings.TrimSpace(userID) == "" {
					return utils.WrapWithSuggestion(errors.New("user id is required with a pasted token"),
						"Pass --user-id, or sign in with --email")
				}
				token, err := utils.PromptSecret("Access token: ")
				if err != nil {
					return err
				}
				if token == "" {
					return errors.New("access token cannot be empty")
				}
				session = &credentials.Session{UserID: strings.TrimSpace(userID), AccessToken: token, TokenType: "bearer"}
				if expiresIn > 0 {
					session.Expiry = time.Now().Add(expiresIn)
				}
			}

			resolver := credentials.NewResolver(rcfg, nil)
			if err := resolver.Login(session); err != nil {
				return keyringUnavailable(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Signed in as %s on %s\n", session.UserID, resolver.Account())
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Sign in with email and password")
	cmd.Flags().StringVar(&userID, "user-id", "", "Account id of a pasted access token")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Lifetime of a pasted access token (e.g. 1h)")
	cmd.MarkFlagsMutuallyExclusive("email", "user-id")
	cmd.MarkFlagsMutuallyExclusive("email", "expires-in")

	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			rcfg, err := remoteConfig(cfg)
			if err != nil {
				return err
			}

			resolver := credentials.NewResolver(rcfg, nil)
			if err := resolver.Logout(); err != nil {
				return keyringUnavailable(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Signed out")
			if credentials.HasEnvSession() {
				fmt.Fprintf(out, "Note: %s is still set, so the remote stays in use.\n", credentials.EnvAccessToken)
			}
			return nil
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where tasks are read from and the session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := utils.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			e, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			st := e.Status(cmd.Context())
			out := cmd.OutOrStdout()
			if format != utils.FormatText {
				return utils.WriteStructured(out, format, st)
			}

			fmt.Fprintf(out, "Source:     %s\n", st.Source)
			switch {
			case !st.RemoteConfigured:
				fmt.Fprintln(out, "Remote:     not configured")
			case st.SignedIn:
				fmt.Fprintf(out, "Remote:     signed in as %s (%s)\n", st.UserID, st.SessionSource)
			default:
				fmt.Fprintln(out, "Remote:     signed out")
			}
			fmt.Fprintf(out, "Database:   %s (%d tasks, %.1f KB, schema v%d)\n",
				st.Database, st.LocalTasks, float64(st.DatabaseSize)/1024, st.SchemaVersion)
			fmt.Fprintf(out, "Tasks:      %d (%d completed)\n", st.Tasks, st.Completed)
			if st.LastError != "" {
				fmt.Fprintf(out, "Last error: %s\n", st.LastError)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json, yaml")
	return cmd
}
