package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/domain/execution"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/infrastructure/store"
	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/solver"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	staleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	newStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func renderState(state execution.State) string {
	switch state {
	case execution.StateCurrent:
		return currentStyle.Render(string(state))
	case execution.StateStale:
		return staleStyle.Render(string(state))
	default:
		return newStyle.Render(string(state))
	}
}

func renderOutcome(latest *execution.Execution) string {
	switch {
	case latest == nil:
		return mutedStyle.Render("-")
	case latest.Successful == nil:
		return mutedStyle.Render("pending")
	case *latest.Successful:
		return currentStyle.Render("ok")
	default:
		return failureStyle.Render("failed")
	}
}

func renderGroups(w io.Writer, groups []store.GroupStatus) error {
	if len(groups) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No execution groups yet. Run 'ref solve' first."))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDIAGNOSTIC\tKEY\tSTATE\tLAST RUN\tRESULT\tRUNS")
	for _, g := range groups {
		lastRun := "-"
		if g.Latest != nil {
			lastRun = g.Latest.CreatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			g.Group.ID,
			g.Group.DiagnosticID,
			g.Group.Key,
			renderState(g.State),
			lastRun,
			renderOutcome(g.Latest),
			g.Runs,
		)
	}
	return tw.Flush()
}

func renderSummary(w io.Writer, summary solver.Summary, dryRun bool) {
	title := "Solve complete"
	if dryRun {
		title = "Dry run complete"
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintf(w, "  candidates: %d\n", summary.Candidates)
	fmt.Fprintf(w, "  %s %d\n", newStyle.Render("scheduled:"), summary.Scheduled)
	fmt.Fprintf(w, "  %s %d\n", mutedStyle.Render("skipped:  "), summary.Skipped)
}
