package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/cowtracker/internal/herd"
)

func newMedicalCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medical",
		Short: "Medical records of an animal",
	}
	cmd.AddCommand(newMedicalListCmd(s), newMedicalAddCmd(s))
	return cmd
}

func newMedicalListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list <cattle-id>",
		Short: "List an animal's medical records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := s.service.MedicalRecords(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("listing medical records for %s: %w", args[0], err)
			}
			return s.output(cmd, records, func() error {
				if len(records) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No medical records for %s.\n", args[0])
					return nil
				}
				return renderMedicalRecords(cmd.OutOrStdout(), records)
			})
		},
	}
}

func newMedicalAddCmd(s *session) *cobra.Command {
	var (
		record herd.MedicalRecord
		date   string
	)
	cmd := &cobra.Command{
		Use:   "add <cattle-id>",
		Short: "Record a treatment, vaccination or check-up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				d, err := time.Parse(dateLayout, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
				record.Date = d
			} else {
				record.Date = time.Now().UTC().Truncate(24 * time.Hour)
			}

			added, err := s.service.AddMedicalRecord(cmd.Context(), args[0], record)
			if err != nil {
				return fmt.Errorf("adding medical record for %s: %w", args[0], err)
			}
			return s.output(cmd, added, func() error {
				return renderMedicalRecords(cmd.OutOrStdout(), []herd.MedicalRecord{*added})
			})
		},
	}
	cmd.Flags().StringVar(&record.Type, "type", "", "record type, e.g. vaccination or treatment")
	cmd.Flags().StringVar(&record.Description, "description", "", "what was done")
	cmd.Flags().StringVar(&record.Treatment, "treatment", "", "medication or procedure")
	cmd.Flags().StringVar(&record.Veterinarian, "vet", "", "veterinarian")
	cmd.Flags().Float64Var(&record.Cost, "cost", 0, "cost of the treatment")
	cmd.Flags().StringVar(&date, "date", "", "date of the record (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func renderMedicalRecords(w io.Writer, records []herd.MedicalRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			formatDate(r.Date),
			r.Type,
			orDash(r.Description),
			orDash(r.Treatment),
			orDash(r.Veterinarian),
			formatMoney(r.Cost),
		})
	}
	return renderTable(w, []string{"Date", "Type", "Description", "Treatment", "Vet", "Cost"}, rows)
}
