package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rshade/cowtracker/internal/herd"
)

func newReportCmd(s *session) *cobra.Command {
	var farmID string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Herd summary for one farm or every farm",
		Example: `  # Summary across every farm
  cowtracker report

  # Summary for one farm as JSON
  cowtracker report --farm f1 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := s.service.Report(cmd.Context(), farmID)
			if err != nil {
				return fmt.Errorf("building report: %w", err)
			}
			return s.output(cmd, report, func() error {
				return renderReport(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&farmID, "farm", "", "limit the report to one farm")
	return cmd
}

func renderReport(w io.Writer, r *herd.ReportData) error {
	title := "Herd report: all farms"
	if r.FarmID != "" {
		title = "Herd report: farm " + r.FarmID
	}

	fields := []field{
		{"Total cattle", formatInt(r.TotalCattle)},
		{"Average weight", formatFloat(r.AverageWeight)},
		{"Medical records", formatInt(r.MedicalRecords)},
		{"Medical cost", formatMoney(r.MedicalCost)},
	}
	fields = append(fields, breakdown("Status", r.ByStatus)...)
	fields = append(fields, breakdown("Breed", r.ByBreed)...)
	fields = append(fields, breakdown("Gender", r.ByGender)...)
	if !r.GeneratedAt.IsZero() {
		fields = append(fields, field{"Generated", r.GeneratedAt.Format("2006-01-02 15:04")})
	}
	return renderDetail(w, title, fields)
}

// breakdown turns a count map into fields sorted by name.
func breakdown(label string, counts map[string]int) []field {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]field, 0, len(names))
	for _, name := range names {
		out = append(out, field{label + " " + name, formatInt(counts[name])})
	}
	return out
}
