package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rshade/cowtracker/internal/herd"
)

func newFarmsCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "farms",
		Aliases: []string{"farm"},
		Short:   "Browse and manage farms",
	}
	cmd.AddCommand(
		newFarmsListCmd(s),
		newFarmsGetCmd(s),
		newFarmsCreateCmd(s),
		newFarmsUpdateCmd(s),
		newFarmsDeleteCmd(s),
	)
	return cmd
}

func newFarmsListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List farms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			farms, err := s.service.Farms(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing farms: %w", err)
			}
			return s.output(cmd, farms, func() error {
				if len(farms) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No farms found.")
					return nil
				}
				return renderFarms(cmd.OutOrStdout(), farms)
			})
		},
	}
}

func newFarmsGetCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "get <farm-id>",
		Short: "Show one farm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			farm, err := s.service.Farm(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting farm %s: %w", args[0], err)
			}
			return s.output(cmd, farm, func() error {
				return renderFarm(cmd, farm)
			})
		},
	}
}

// farmFlags are the editable farm attributes.
type farmFlags struct {
	name     string
	location string
	size     float64
}

func (f *farmFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "farm name")
	cmd.Flags().StringVar(&f.location, "location", "", "farm location")
	cmd.Flags().Float64Var(&f.size, "size", 0, "farm size in acres")
}

// apply copies the flags the user set onto farm.
func (f *farmFlags) apply(cmd *cobra.Command, farm *herd.Farm) {
	if cmd.Flags().Changed("name") {
		farm.Name = f.name
	}
	if cmd.Flags().Changed("location") {
		farm.Location = f.location
	}
	if cmd.Flags().Changed("size") {
		farm.Size = f.size
	}
}

func newFarmsCreateCmd(s *session) *cobra.Command {
	var flags farmFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a farm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var farm herd.Farm
			flags.apply(cmd, &farm)
			created, err := s.service.CreateFarm(cmd.Context(), farm)
			if err != nil {
				return fmt.Errorf("creating farm: %w", err)
			}
			return s.output(cmd, created, func() error {
				return renderFarm(cmd, created)
			})
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newFarmsUpdateCmd(s *session) *cobra.Command {
	var flags farmFlags
	cmd := &cobra.Command{
		Use:   "update <farm-id>",
		Short: "Update a farm's attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			current, err := s.service.Farm(ctx, args[0])
			if err != nil {
				return fmt.Errorf("getting farm %s: %w", args[0], err)
			}
			farm := *current
			flags.apply(cmd, &farm)

			updated, err := s.service.UpdateFarm(ctx, args[0], farm)
			if err != nil {
				return fmt.Errorf("updating farm %s: %w", args[0], err)
			}
			return s.output(cmd, updated, func() error {
				return renderFarm(cmd, updated)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newFarmsDeleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <farm-id>",
		Short: "Delete a farm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.service.DeleteFarm(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting farm %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted farm %s\n", args[0])
			return nil
		},
	}
}

func renderFarms(w io.Writer, farms []herd.Farm) error {
	rows := make([][]string, 0, len(farms))
	for _, f := range farms {
		rows = append(rows, []string{
			f.ID,
			f.Name,
			orDash(f.Location),
			formatFloat(f.Size),
			formatInt(f.CattleCount),
		})
	}
	return renderTable(w, []string{"ID", "Name", "Location", "Acres", "Cattle"}, rows)
}

func renderFarm(cmd *cobra.Command, f *herd.Farm) error {
	return renderDetail(cmd.OutOrStdout(), "Farm "+f.Name, []field{
		{"ID", f.ID},
		{"Location", orDash(f.Location)},
		{"Acres", formatFloat(f.Size)},
		{"Cattle", formatInt(f.CattleCount)},
		{"Owner", orDash(f.OwnerID)},
		{"Updated", formatDate(f.UpdatedAt)},
	})
}
