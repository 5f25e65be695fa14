package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd(s *session) *cobra.Command {
	var (
		token      string
		fromStdin  bool
		skipVerify bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API token for the configured backend",
		Example: `  # Store a token passed as a flag
  cowtracker login --token "$TOKEN"

  # Read the token from stdin
  echo "$TOKEN" | cowtracker login --token-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if fromStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading token from stdin: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("a token is required: pass --token or --token-stdin")
			}

			// Entries cached for a previous account must not be served to this one.
			s.cache.Clear(ctx)
			s.client.Token = token

			who := ""
			if !skipVerify {
				user, err := s.client.CurrentUser(ctx)
				if err != nil {
					return fmt.Errorf("verifying token: %w", err)
				}
				who = user.Email
			}

			if err := s.creds.SaveToken(s.cfg.API.BaseURL, token); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}
			logger.Info().Ctx(ctx).Bool("keyring", s.creds.UsingKeyring()).Msg("token stored")

			out := cmd.OutOrStdout()
			if who != "" {
				fmt.Fprintf(out, "Logged in to %s as %s.\n", s.cfg.API.BaseURL, who)
			} else {
				fmt.Fprintf(out, "Token stored for %s.\n", s.cfg.API.BaseURL)
			}
			if !s.creds.UsingKeyring() {
				fmt.Fprintf(out, "No system keyring available; token saved to %s.\n", s.creds.Path())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "API token")
	cmd.Flags().BoolVar(&fromStdin, "token-stdin", false, "read the API token from stdin")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "store the token without checking it against the backend")
	cmd.MarkFlagsMutuallyExclusive("token", "token-stdin")
	return cmd
}

func newLogoutCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token and clear the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.creds.DeleteToken(s.cfg.API.BaseURL); err != nil {
				return fmt.Errorf("removing token: %w", err)
			}
			s.service.Logout(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s.\n", s.cfg.API.BaseURL)
			return nil
		},
	}
}
