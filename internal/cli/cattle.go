package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/cowtracker/internal/herd"
)

func newCattleCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cattle",
		Aliases: []string{"animals"},
		Short:   "Browse and manage cattle",
	}
	cmd.AddCommand(
		newCattleListCmd(s),
		newCattleGetCmd(s),
		newCattleCreateCmd(s),
		newCattleUpdateCmd(s),
		newCattleDeleteCmd(s),
	)
	return cmd
}

func newCattleListCmd(s *session) *cobra.Command {
	var farmID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cattle, optionally for one farm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cattle, err := s.service.Cattle(cmd.Context(), farmID)
			if err != nil {
				return fmt.Errorf("listing cattle: %w", err)
			}
			return s.output(cmd, cattle, func() error {
				if len(cattle) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No cattle found.")
					return nil
				}
				return renderCattle(cmd.OutOrStdout(), cattle)
			})
		},
	}
	cmd.Flags().StringVar(&farmID, "farm", "", "only list cattle on this farm")
	return cmd
}

func newCattleGetCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "get <cattle-id>",
		Short: "Show one animal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			animal, err := s.service.Animal(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting animal %s: %w", args[0], err)
			}
			return s.output(cmd, animal, func() error {
				return renderAnimal(cmd.OutOrStdout(), animal)
			})
		},
	}
}

type cattleFlags struct {
	tag       string
	name      string
	breed     string
	gender    string
	status    string
	weight    float64
	farmID    string
	birthDate string
}

func (f *cattleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tag, "tag", "", "identification number (ear tag)")
	cmd.Flags().StringVar(&f.name, "name", "", "animal name")
	cmd.Flags().StringVar(&f.breed, "breed", "", "breed")
	cmd.Flags().StringVar(&f.gender, "gender", "", "gender")
	cmd.Flags().StringVar(&f.status, "status", "", "status, e.g. active or sold")
	cmd.Flags().Float64Var(&f.weight, "weight", 0, "weight in kg")
	cmd.Flags().StringVar(&f.farmID, "farm", "", "farm the animal belongs to")
	cmd.Flags().StringVar(&f.birthDate, "birth-date", "", "birth date (YYYY-MM-DD)")
}

func (f *cattleFlags) apply(cmd *cobra.Command, item *herd.CattleItem) error {
	changed := cmd.Flags().Changed
	if changed("tag") {
		item.IdentificationNumber = f.tag
	}
	if changed("name") {
		item.Name = f.name
	}
	if changed("breed") {
		item.Breed = f.breed
	}
	if changed("gender") {
		item.Gender = f.gender
	}
	if changed("status") {
		item.Status = f.status
	}
	if changed("weight") {
		item.Weight = f.weight
	}
	if changed("farm") {
		item.FarmID = f.farmID
	}
	if changed("birth-date") {
		born, err := time.Parse(dateLayout, f.birthDate)
		if err != nil {
			return fmt.Errorf("invalid --birth-date %q: want YYYY-MM-DD", f.birthDate)
		}
		item.BirthDate = born
	}
	return nil
}

func newCattleCreateCmd(s *session) *cobra.Command {
	var flags cattleFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an animal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var item herd.CattleItem
			if err := flags.apply(cmd, &item); err != nil {
				return err
			}
			created, err := s.service.CreateAnimal(cmd.Context(), item)
			if err != nil {
				return fmt.Errorf("creating animal: %w", err)
			}
			return s.output(cmd, created, func() error {
				return renderAnimal(cmd.OutOrStdout(), created)
			})
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func newCattleUpdateCmd(s *session) *cobra.Command {
	var flags cattleFlags
	cmd := &cobra.Command{
		Use:   "update <cattle-id>",
		Short: "Update an animal's attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			current, err := s.service.Animal(ctx, args[0])
			if err != nil {
				return fmt.Errorf("getting animal %s: %w", args[0], err)
			}
			item := *current
			if err := flags.apply(cmd, &item); err != nil {
				return err
			}
			updated, err := s.service.UpdateAnimal(ctx, args[0], item)
			if err != nil {
				return fmt.Errorf("updating animal %s: %w", args[0], err)
			}
			return s.output(cmd, updated, func() error {
				return renderAnimal(cmd.OutOrStdout(), updated)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newCattleDeleteCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <cattle-id>",
		Short: "Remove an animal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.service.DeleteAnimal(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting animal %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted animal %s\n", args[0])
			return nil
		},
	}
}

func renderCattle(w io.Writer, cattle []herd.CattleItem) error {
	rows := make([][]string, 0, len(cattle))
	for _, c := range cattle {
		rows = append(rows, []string{
			c.ID,
			c.IdentificationNumber,
			orDash(c.Name),
			orDash(c.Breed),
			orDash(c.Status),
			formatFloat(c.Weight),
			orDash(c.FarmID),
		})
	}
	return renderTable(w, []string{"ID", "Tag", "Name", "Breed", "Status", "Weight", "Farm"}, rows)
}

func renderAnimal(w io.Writer, c *herd.CattleItem) error {
	return renderDetail(w, "Animal "+c.IdentificationNumber, []field{
		{"ID", c.ID},
		{"Name", orDash(c.Name)},
		{"Breed", orDash(c.Breed)},
		{"Gender", orDash(c.Gender)},
		{"Status", orDash(c.Status)},
		{"Weight", formatFloat(c.Weight)},
		{"Farm", orDash(c.FarmID)},
		{"Born", formatDate(c.BirthDate)},
	})
}
