package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	tabPadding  = 2
	emptyCell   = "-"
	dateLayout  = "2006-01-02"
	detailWidth = 56
)

// isWriterTerminal reports whether w is a terminal, enabling styled output.
func isWriterTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isTerminal(f)
	}
	return false
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	labelStyle  = lipgloss.NewStyle().Faint(true)
)

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable writes rows under headers, boxed on a terminal and
// tab-aligned otherwise.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	if isWriterTerminal(w) {
		return renderStyledTable(w, headers, rows)
	}
	return renderPlainTable(w, headers, rows)
}

func renderStyledTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func renderPlainTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	rules := make([]string, len(headers))
	for i, h := range headers {
		rules[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rules, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// field is one labelled line of a detail view.
type field struct {
	Label string
	Value string
}

// renderDetail writes a titled list of fields.
func renderDetail(w io.Writer, title string, fields []field) error {
	if isWriterTerminal(w) {
		return renderStyledDetail(w, title, fields)
	}
	return renderPlainDetail(w, title, fields)
}

func renderStyledDetail(w io.Writer, title string, fields []field) error {
	width := 0
	for _, f := range fields {
		width = max(width, len(f.Label))
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render(title))
	content.WriteString("\n")
	for _, f := range fields {
		content.WriteString("\n")
		content.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", width, f.Label)))
		content.WriteString("  ")
		content.WriteString(f.Value)
	}

	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(detailWidth).
		Render(content.String())
	_, err := fmt.Fprintln(w, box)
	return err
}

func renderPlainDetail(w io.Writer, title string, fields []field) error {
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s:\t%s\n", f.Label, f.Value)
	}
	return tw.Flush()
}

// printer formats numbers with thousands separators.
var printer = message.NewPrinter(language.English) //nolint:gochecknoglobals // Stateless formatter

func formatInt(n int) string {
	return printer.Sprintf("%d", n)
}

func formatFloat(f float64) string {
	if f == 0 {
		return emptyCell
	}
	return printer.Sprintf("%.1f", f)
}

func formatMoney(f float64) string {
	return printer.Sprintf("$%.2f", f)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return emptyCell
	}
	return t.Format(dateLayout)
}

func orDash(s string) string {
	if s == "" {
		return emptyCell
	}
	return s
}
