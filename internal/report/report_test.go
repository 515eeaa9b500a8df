package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/metalagman/cutscan/internal/combo"
	"github.com/metalagman/cutscan/internal/db"
	"github.com/metalagman/cutscan/internal/paramspace"
	"github.com/metalagman/cutscan/internal/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecord(t *testing.T, root string, rec sweep.RunRecord) {
	t.Helper()
	data, err := rec.Marshal()
	require.NoError(t, err)
	path := filepath.Join(root, filepath.FromSlash(sweep.RecordKey(rec.Condition, rec.TestName)))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeRecord(t, root, sweep.RunRecord{
		TestName:  "OAT_cutMatchingChi2_100",
		Condition: "pp_itstpc",
		Status:    db.RunSucceeded,
		Assignments: map[string]paramspace.Value{
			"tpcitsMatch.cutMatchingChi2": paramspace.Int(100),
			"tpcitsMatch.askMinTPCRow":    paramspace.Int(15),
		},
	})
	writeRecord(t, root, sweep.RunRecord{
		TestName:  "OAT_askMinTPCRow_25",
		Condition: "pp_itstpc",
		Status:    db.RunFailed,
		ExitCode:  3,
		Assignments: map[string]paramspace.Value{
			"tpcitsMatch.cutMatchingChi2": paramspace.Int(30),
			"tpcitsMatch.askMinTPCRow":    paramspace.Int(25),
		},
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pp_itstpc", "Reference", "logs"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pp_itstpc", "broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pp_itstpc", "broken", sweep.RecordFileName), []byte("{"), 0o644))

	out := filepath.Join(root, SummaryFileName("pp_itstpc"))
	n, err := Summarize(root, "pp_itstpc", out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "test_name,status,exit_code,tpcitsMatch.askMinTPCRow,tpcitsMatch.cutMatchingChi2\n"+
		"OAT_askMinTPCRow_25,failed,3,25,30\n"+
		"OAT_cutMatchingChi2_100,succeeded,0,15,100\n", string(got))
}

func TestCollectRecordsMissingCondition(t *testing.T) {
	t.Parallel()

	records, err := CollectRecords(t.TempDir(), "PbPb")
	require.NoError(t, err)
	assert.Empty(t, records)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))
	assert.Equal(t, "test_name,status,exit_code\n", buf.String())
}

func TestDurations(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	run := func(d time.Duration) db.RunRow { return db.RunRow{StartedAt: base, EndedAt: base.Add(d)} }

	assert.Equal(t, DurationStats{}, Durations(nil))

	one := Durations([]db.RunRow{run(3 * time.Second)})
	assert.Equal(t, 3*time.Second, one.Mean)
	assert.Zero(t, one.StdDev)

	st := Durations([]db.RunRow{run(2 * time.Second), run(4 * time.Second), run(6 * time.Second)})
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 4*time.Second, st.Mean)
	assert.Equal(t, 2*time.Second, st.StdDev)
	assert.Equal(t, 2*time.Second, st.Min)
	assert.Equal(t, 6*time.Second, st.Max)
}

func TestMarkdown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	database, err := db.Open(filepath.Join(t.TempDir(), "cutscan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	store := db.NewStore(database)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSweep(ctx, db.Sweep{ID: "s1", CreatedAt: base, Condition: "pp", Mode: "grid", GridKeys: "minCosPA,maxChi2", OutputDir: "/o/Localpp"}))
	require.NoError(t, store.RecordRun(ctx, db.RunRow{SweepID: "s1", Seq: 1, TestName: "GRID_0_minCosPA=0.8_maxChi2=1.0", Status: db.RunSucceeded, StartedAt: base, EndedAt: base.Add(time.Minute), AssignmentsJSON: "[]"}))
	require.NoError(t, store.RecordRun(ctx, db.RunRow{SweepID: "s1", Seq: 2, TestName: "GRID_1_minCosPA=0.8_maxChi2=2.0", Status: db.RunFailed, ExitCode: 3, StartedAt: base, EndedAt: base.Add(time.Minute), AssignmentsJSON: "[]", Error: "exit status 3"}))
	require.NoError(t, store.AddEvent(ctx, "s1", db.Event{Type: "patch_not_applied", Message: "GRID_2: no stage"}))
	require.NoError(t, store.FinishSweep(ctx, "s1", db.SweepDone, db.Counts{Attempted: 3, Skipped: 1, Failed: 1, Succeeded: 1}))

	md, err := Markdown(ctx, store, "")
	require.NoError(t, err)
	assert.Contains(t, md, "# Sweep s1")
	assert.Contains(t, md, "| Grid keys | `minCosPA,maxChi2` |")
	assert.Contains(t, md, "attempted 3, skipped 1, failed 1, succeeded 1")
	assert.Contains(t, md, "mean 1m0s, stddev 0s")
	assert.Contains(t, md, "- `GRID_1_minCosPA=0.8_maxChi2=2.0`: exit status 3")
	assert.Contains(t, md, "- GRID_2: no stage")

	rendered, err := Render(md, 80)
	require.NoError(t, err)
	assert.Contains(t, rendered, "s1")
}

func TestTables(t *testing.T) {
	t.Parallel()

	space, err := paramspace.NewSpace("pp_itstpc", paramspace.Options{StageMatchers: []string{"itstpcMatch"}},
		paramspace.ParameterSpec{Key: "tpcitsMatch.askMinTPCRow", Default: paramspace.Int(15), Scan: []paramspace.Value{paramspace.Int(15), paramspace.Int(25)}, Expand: true},
	)
	require.NoError(t, err)

	spaces := SpacesTable([]*paramspace.Space{space})
	assert.Contains(t, spaces, "tpcitsMatch.askMinTPCRow")
	assert.Contains(t, spaces, "15 25")
	assert.Contains(t, spaces, "36")

	plan := PlanTable([]sweep.PlanEntry{
		{Label: "OAT_askMinTPCRow_15"},
		{Label: "OAT_askMinTPCRow_25", Diff: combo.Assignments{{Key: "tpcitsMatch.askMinTPCRow", Value: paramspace.Int(25)}}, Checked: true, WouldPatch: true,
			Effective: []string{"tpcitsMatch.askMinTPCRow=25"}},
		{Label: "OAT_askMinTPCRow_35", Checked: true, Err: errors.New("bad descriptor")},
	})
	assert.Contains(t, plan, "error: bad descriptor")
	assert.Contains(t, plan, "(defaults)")
	assert.Contains(t, plan, "tpcitsMatch.askMinTPCRow=25")
	assert.Contains(t, plan, "unchecked")
	assert.Contains(t, plan, "yes")

	sweeps := SweepsTable([]db.Sweep{{ID: "abc", Condition: "pp", Mode: "oat", Status: db.SweepDone, Counts: db.Counts{Succeeded: 7}}})
	assert.Contains(t, sweeps, "abc")
	assert.Contains(t, sweeps, "7")
}
