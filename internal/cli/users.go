package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUsersCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Account information",
	}

	me := &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := s.service.CurrentUser(cmd.Context())
			if err != nil {
				return fmt.Errorf("getting current user: %w", err)
			}
			return s.output(cmd, user, func() error {
				return renderDetail(cmd.OutOrStdout(), "Signed in as "+user.Email, []field{
					{"ID", user.ID},
					{"Name", orDash(user.Name)},
					{"Role", orDash(user.Role)},
				})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := s.service.Users(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing users: %w", err)
			}
			return s.output(cmd, users, func() error {
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{u.ID, u.Email, orDash(u.Name), orDash(u.Role)})
				}
				return renderTable(cmd.OutOrStdout(), []string{"ID", "Email", "Name", "Role"}, rows)
			})
		},
	}

	cmd.AddCommand(me, list)
	return cmd
}
