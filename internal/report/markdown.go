package report

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/metalagman/cutscan/internal/db"
	"gonum.org/v1/gonum/stat"
)

// DurationStats describes the wall time of the runs of a sweep.
type DurationStats struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
}

// Durations computes run duration statistics.
func Durations(runs []db.RunRow) DurationStats {
	if len(runs) == 0 {
		return DurationStats{}
	}
	secs := make([]float64, len(runs))
	st := DurationStats{Count: len(runs), Min: runs[0].Duration(), Max: runs[0].Duration()}
	for i, r := range runs {
		d := r.Duration()
		secs[i] = d.Seconds()
		st.Min = min(st.Min, d)
		st.Max = max(st.Max, d)
	}
	mean, std := stat.MeanStdDev(secs, nil)
	if math.IsNaN(std) {
		std = 0
	}
	st.Mean = seconds(mean)
	st.StdDev = seconds(std)
	return st
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second)).Round(time.Millisecond)
}

// Markdown renders a sweep report from the ledger. An empty id selects the
// newest sweep.
func Markdown(ctx context.Context, store *db.Store, sweepID string) (string, error) {
	sw, err := store.GetSweep(ctx, sweepID)
	if err != nil {
		return "", err
	}
	runs, err := store.ListRuns(ctx, sw.ID)
	if err != nil {
		return "", err
	}
	events, err := store.ListEvents(ctx, sw.ID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Sweep %s\n\n", sw.ID)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Condition | `%s` |\n", sw.Condition)
	fmt.Fprintf(&b, "| Mode | %s |\n", sw.Mode)
	if sw.GridKeys != "" {
		fmt.Fprintf(&b, "| Grid keys | `%s` |\n", sw.GridKeys)
	}
	fmt.Fprintf(&b, "| Output dir | `%s` |\n", sw.OutputDir)
	fmt.Fprintf(&b, "| Status | **%s** |\n", sw.Status)
	fmt.Fprintf(&b, "| Started | %s |\n", sw.CreatedAt.Format(time.RFC3339))
	if !sw.EndedAt.IsZero() {
		fmt.Fprintf(&b, "| Finished | %s |\n", sw.EndedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "\n## Outcome\n\n")
	fmt.Fprintf(&b, "attempted %d, skipped %d, failed %d, succeeded %d\n\n", sw.Attempted, sw.Skipped, sw.Failed, sw.Succeeded)

	if st := Durations(runs); st.Count > 0 {
		fmt.Fprintf(&b, "Run duration: mean %s, stddev %s, min %s, max %s over %d runs.\n\n",
			st.Mean, st.StdDev, st.Min, st.Max, st.Count)
	}

	if len(runs) > 0 {
		fmt.Fprintf(&b, "## Runs\n\n| # | Test | Status | Exit | Duration |\n|---|---|---|---|---|\n")
		for _, r := range runs {
			fmt.Fprintf(&b, "| %d | `%s` | %s | %d | %s |\n", r.Seq, r.TestName, r.Status, r.ExitCode, r.Duration().Round(time.Millisecond))
		}
		b.WriteString("\n")
	}

	var failures []db.RunRow
	for _, r := range runs {
		if r.Status == db.RunFailed {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		b.WriteString("## Failures\n\n")
		for _, r := range failures {
			fmt.Fprintf(&b, "- `%s`: %s\n", r.TestName, r.Error)
		}
		b.WriteString("\n")
	}

	var skipped []string
	for _, ev := range events {
		if ev.Type == "patch_not_applied" {
			skipped = append(skipped, ev.Message)
		}
	}
	if len(skipped) > 0 {
		b.WriteString("## Skipped\n\n")
		for _, msg := range skipped {
			fmt.Fprintf(&b, "- %s\n", msg)
		}
	}
	return b.String(), nil
}

// Render formats markdown for the terminal.
func Render(markdown string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
