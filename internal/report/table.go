package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/metalagman/cutscan/internal/db"
	"github.com/metalagman/cutscan/internal/paramspace"
	"github.com/metalagman/cutscan/internal/sweep"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

// PlanTable renders a dry-run plan.
func PlanTable(plan []sweep.PlanEntry) string {
	t := newTable("#", "test", "changes", "patch", "effective")
	for i, p := range plan {
		changes := p.Diff.String()
		if changes == "" {
			changes = "(defaults)"
		}
		patch := "unchecked"
		switch {
		case p.Err != nil:
			patch = "error: " + p.Err.Error()
		case p.Checked && p.WouldPatch:
			patch = "yes"
		case p.Checked:
			patch = "no"
		}
		t.Row(strconv.Itoa(i), p.Label, changes, patch, strings.Join(p.Effective, " "))
	}
	return t.String()
}

// SpacesTable renders the parameters of every space.
func SpacesTable(spaces []*paramspace.Space) string {
	t := newTable("condition", "key", "default", "scan", "expand")
	for _, s := range spaces {
		for _, p := range s.Specs() {
			scan := make([]string, len(p.Scan))
			for i, v := range p.Scan {
				scan[i] = v.String()
			}
			expand := ""
			if p.Expand {
				expand = strconv.Itoa(p.Layers)
			}
			t.Row(s.Condition(), p.Key, p.Default.String(), strings.Join(scan, " "), expand)
		}
	}
	return t.String()
}

// SweepsTable renders ledger sweeps.
func SweepsTable(sweeps []db.Sweep) string {
	t := newTable("sweep", "started", "condition", "mode", "status", "ok", "failed", "skipped")
	for _, s := range sweeps {
		t.Row(
			s.ID,
			s.CreatedAt.Local().Format(time.DateTime),
			s.Condition,
			s.Mode,
			s.Status,
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Skipped),
		)
	}
	return t.String()
}
