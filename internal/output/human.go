package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/henrybloomingdale/getpapers/internal/papers"
)

// --- Styles ---

var (
	cyan       = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	bold       = lipgloss.NewStyle().Bold(true)
	dim        = lipgloss.NewStyle().Faint(true)
	green      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellow     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	red        = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
)

// truncate cuts a string to maxLen runes, appending "…" if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen < 1 {
		return ""
	}
	return string(r[:maxLen-1]) + "…"
}

// FormatTableView renders records as a bordered terminal table.
func FormatTableView(w io.Writer, records []papers.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No non-academic papers found.")
		return nil
	}

	fmt.Fprintln(w, bold.Render(fmt.Sprintf("🔬 %d papers with non-academic authors", len(records))))
	fmt.Fprintln(w)

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			cyan.Render(r.PubmedID),
			bold.Render(truncate(r.Title, 50)),
			r.PublicationDate,
			truncate(r.Authors(), 40),
			yellow.Render(truncate(r.Companies(), 40)),
			r.CorrespondingEmail,
		})
	}

	t := table.New().
		Headers("PMID", "Title", "Date", "Non-academic Authors", "Companies", "Email").
		Rows(rows...).
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
			}
			return lipgloss.NewStyle()
		})

	fmt.Fprintln(w, t.Render())
	fmt.Fprintln(w)
	fmt.Fprintln(w, dim.Render("💾 Use --file papers.csv to export"))
	return nil
}

// Summary describes a finished run for the stderr footer.
type Summary struct {
	Query    string
	Found    int // total hits reported by PubMed
	Checked  int // IDs processed
	Kept     int
	Skipped  int
	Elapsed  string
	Saved    string // output file, empty for stdout
	Workbook string
}

// FormatSummary writes a short styled recap of a run.
func FormatSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Query:"), s.Query)
	fmt.Fprintf(w, "%s %d of %d checked (%d total hits)\n",
		labelStyle.Render("Kept:"), s.Kept, s.Checked, s.Found)
	if s.Skipped > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Skipped:"),
			red.Render(fmt.Sprintf("%d failed", s.Skipped)))
	}
	if s.Elapsed != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Elapsed:"), dim.Render(s.Elapsed))
	}
	var saved []string
	if s.Saved != "" {
		saved = append(saved, s.Saved)
	}
	if s.Workbook != "" {
		saved = append(saved, s.Workbook)
	}
	if len(saved) > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Saved:"), green.Render(strings.Join(saved, ", ")))
	}
}
