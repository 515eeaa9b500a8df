// Package sweep runs a parameter sweep: one reference run, then one patched
// pipeline run per combination, recording the outcome of each.
package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/cutscan/internal/artifact"
	"github.com/metalagman/cutscan/internal/combo"
	"github.com/metalagman/cutscan/internal/db"
	"github.com/metalagman/cutscan/internal/logging"
	"github.com/metalagman/cutscan/internal/paramspace"
	"github.com/metalagman/cutscan/internal/runner"
	"github.com/metalagman/cutscan/internal/workflow"
	"github.com/rs/zerolog"
)

// State is a step of the sweep state machine.
type State int

const (
	StateInit State = iota
	StateReferenceRun
	StatePrepare
	StatePatch
	StateExecute
	StateRecord
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReferenceRun:
		return "reference_run"
	case StatePrepare:
		return "prepare"
	case StatePatch:
		return "patch"
	case StateExecute:
		return "execute"
	case StateRecord:
		return "record"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Defaults for Config.
const (
	DefaultReferenceName = "Reference"
	DefaultReferenceFile = "reference_workflow.json"
	DefaultWorkingFile   = "workflow.json"
)

// Config holds the file layout of a sweep.
type Config struct {
	// OutputRoot anchors relative runner output dirs and holds
	// <condition>/<test>/config.json records.
	OutputRoot    string
	ReferenceName string
	ReferenceFile string
	WorkingFile   string
	Flag          string
}

// Options selects what a single sweep does.
type Options struct {
	Space         *paramspace.Space
	Mode          combo.Mode
	GridKeys      []string
	SkipReference bool
	DryRun        bool
	FailFast      bool
}

// mode defaults to grid when grid keys are given, OAT otherwise.
func (opts Options) mode() combo.Mode {
	if opts.Mode != "" {
		return opts.Mode
	}
	if len(opts.GridKeys) > 0 {
		return combo.ModeGrid
	}
	return combo.ModeOAT
}

// PlanEntry describes one combination of a dry run.
type PlanEntry struct {
	Label string
	Diff  combo.Assignments
	// Checked is set when a reference descriptor was available to test
	// WouldPatch against.
	Checked    bool
	WouldPatch bool
	// Effective holds key=value of every changed key as read back from the
	// patched descriptor.
	Effective []string
	// Err is set when patching the reference failed or a changed key did
	// not land with its assigned value.
	Err error
}

// Summary reports the outcome of a sweep.
type Summary struct {
	SweepID   string
	Condition string
	OutputDir string
	Attempted int
	Skipped   int
	Failed    int
	Succeeded int
	Elapsed   time.Duration
	Warnings  []*PatchNotAppliedWarning
	Plan      []PlanEntry
}

// Orchestrator drives sweeps. It runs one external process at a time.
type Orchestrator struct {
	cfg     Config
	runner  runner.Runner
	records artifact.Store
	ledger  *db.Store

	now      func() time.Time
	newID    func() string
	observer func(State, string)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLedger records sweeps and runs in the sqlite ledger.
func WithLedger(store *db.Store) Option {
	return func(o *Orchestrator) { o.ledger = store }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the sweep id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// WithObserver is called on every state transition with the current
// combination label (empty outside the loop).
func WithObserver(fn func(State, string)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// New builds an Orchestrator.
func New(cfg Config, r runner.Runner, records artifact.Store, opts ...Option) (*Orchestrator, error) {
	if cfg.OutputRoot == "" {
		return nil, errors.New("output root is required")
	}
	if r == nil {
		return nil, errors.New("runner is required")
	}
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if cfg.ReferenceName == "" {
		cfg.ReferenceName = DefaultReferenceName
	}
	if cfg.ReferenceFile == "" {
		cfg.ReferenceFile = DefaultReferenceFile
	}
	if cfg.WorkingFile == "" {
		cfg.WorkingFile = DefaultWorkingFile
	}
	if cfg.Flag == "" {
		cfg.Flag = workflow.DefaultFlag
	}
	o := &Orchestrator{
		cfg:     cfg,
		runner:  r,
		records: records,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// OutputDir returns the runner output directory of a space.
func (o *Orchestrator) OutputDir(space *paramspace.Space) string {
	dir := space.OutputDir()
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(o.cfg.OutputRoot, dir)
}

// Combinations generates the sweep points selected by opts.
func Combinations(opts Options) ([]combo.Combination, error) {
	if opts.Space == nil {
		return nil, errors.New("parameter space is required")
	}
	switch mode := opts.mode(); mode {
	case combo.ModeOAT:
		return combo.OAT(opts.Space), nil
	case combo.ModeGrid:
		return combo.Grid(opts.Space, opts.GridKeys)
	default:
		return nil, fmt.Errorf("unknown sweep mode %q", mode)
	}
}

// Run executes a sweep. Fatal errors abort it; a failing or unpatchable
// combination does not, unless FailFast is set.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Summary, error) {
	o.enter(StateInit, "")
	combos, err := Combinations(opts)
	if err != nil {
		return Summary{}, err
	}
	space := opts.Space
	outputDir := o.OutputDir(space)
	logger := logging.ForCondition(space.Condition())

	patcher, err := workflow.ForSpace(space, o.cfg.Flag)
	if err != nil {
		return Summary{}, fmt.Errorf("build patcher: %w", err)
	}

	if opts.DryRun {
		return o.plan(space, outputDir, patcher, combos), nil
	}

	lock, err := TryLockDir(outputDir)
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn().Err(err).Msg("release output lock")
		}
	}()

	start := o.now()
	sum := Summary{SweepID: o.newID(), Condition: space.Condition(), OutputDir: outputDir}
	logger = logger.With().Str("sweep_id", sum.SweepID).Logger()

	if err := o.openLedger(ctx, sum, opts, start, logger); err != nil {
		return sum, err
	}
	err = o.loop(ctx, &sum, opts, patcher, combos, logger)
	sum.Elapsed = o.now().Sub(start)
	o.closeLedger(ctx, sum, err, logger)
	o.enter(StateDone, "")

	logger.Info().
		Int("attempted", sum.Attempted).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Int("succeeded", sum.Succeeded).
		Dur("duration", sum.Elapsed).
		Msg("sweep finished")
	return sum, err
}

func (o *Orchestrator) loop(ctx context.Context, sum *Summary, opts Options, patcher *workflow.Patcher, combos []combo.Combination, logger zerolog.Logger) error {
	space := opts.Space
	if !opts.SkipReference {
		o.enter(StateReferenceRun, o.cfg.ReferenceName)
		logger.Info().Str("test_name", o.cfg.ReferenceName).Msg("starting reference run")
		code, err := o.runner.Run(ctx, runner.Request{OutputDir: sum.OutputDir, RunName: o.cfg.ReferenceName, Condition: space.Condition()})
		if err != nil {
			return fmt.Errorf("reference run (exit code %d): %w", code, err)
		}
	}
	baseline, err := o.loadReference(sum.OutputDir)
	if err != nil {
		return err
	}

	for _, c := range combos {
		if err := ctx.Err(); err != nil {
			return err
		}
		clog := logger.With().Str("test_name", c.Label).Logger()
		sum.Attempted++

		o.enter(StatePrepare, c.Label)
		d := baseline

		o.enter(StatePatch, c.Label)
		patched, ok, err := patcher.Patch(d, c)
		if err != nil {
			return fmt.Errorf("patch %s: %w", c.Label, err)
		}
		if !ok {
			w := &PatchNotAppliedWarning{Label: c.Label, Flag: o.cfg.Flag, Matchers: space.StageMatchers()}
			clog.Warn().Err(w).Msg("patch not applied, skipping")
			sum.Skipped++
			sum.Warnings = append(sum.Warnings, w)
			o.event(ctx, sum.SweepID, db.Event{Type: "patch_not_applied", Message: w.Error()}, clog)
			continue
		}
		if err := patched.WriteFile(filepath.Join(sum.OutputDir, o.cfg.WorkingFile)); err != nil {
			return err
		}

		o.enter(StateExecute, c.Label)
		clog.Info().Str("assignments", combo.Diff(space, c).String()).Msg("starting run")
		started := o.now()
		code, runErr := o.runner.Run(ctx, runner.Request{OutputDir: sum.OutputDir, RunName: c.Label, Condition: space.Condition()})
		ended := o.now()

		o.enter(StateRecord, c.Label)
		rec := RunRecord{
			SweepID:     sum.SweepID,
			TestName:    c.Label,
			Condition:   space.Condition(),
			Assignments: c.Assignments.Map(),
			ExitCode:    code,
			Status:      db.RunSucceeded,
			StartedAt:   started.UTC(),
			EndedAt:     ended.UTC(),
		}
		if runErr != nil {
			rec.Status = db.RunFailed
			rec.Error = runErr.Error()
			sum.Failed++
			clog.Error().Err(runErr).Int("exit_code", code).Msg("run failed")
		} else {
			sum.Succeeded++
			clog.Info().Dur("duration", ended.Sub(started)).Msg("run succeeded")
		}
		if err := o.record(ctx, rec, sum.Attempted, c); err != nil {
			return err
		}
		if runErr != nil && ctx.Err() != nil {
			return runErr
		}
		if runErr != nil && opts.FailFast {
			return fmt.Errorf("abort sweep: %w", runErr)
		}
	}
	return nil
}

func (o *Orchestrator) loadReference(outputDir string) (workflow.Descriptor, error) {
	path := filepath.Join(outputDir, o.cfg.ReferenceFile)
	d, err := workflow.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return workflow.Descriptor{}, &ReferenceMissingError{Path: path, Err: err}
		}
		return workflow.Descriptor{}, fmt.Errorf("load reference descriptor: %w", err)
	}
	return d, nil
}

// record persists a finished run even when ctx was canceled during it.
func (o *Orchestrator) record(ctx context.Context, rec RunRecord, seq int, c combo.Combination) error {
	ctx = context.WithoutCancel(ctx)
	data, err := rec.Marshal()
	if err != nil {
		return err
	}
	key := RecordKey(rec.Condition, rec.TestName)
	if err := o.records.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store run record: %w", err)
	}
	if o.ledger == nil {
		return nil
	}
	assignments, err := json.Marshal(c.Assignments)
	if err != nil {
		return fmt.Errorf("marshal assignments: %w", err)
	}
	return o.ledger.RecordRun(ctx, db.RunRow{
		SweepID:         rec.SweepID,
		Seq:             seq,
		TestName:        rec.TestName,
		Status:          rec.Status,
		ExitCode:        rec.ExitCode,
		StartedAt:       rec.StartedAt,
		EndedAt:         rec.EndedAt,
		AssignmentsJSON: string(assignments),
		RecordPath:      key,
		Error:           rec.Error,
	})
}

func (o *Orchestrator) plan(space *paramspace.Space, outputDir string, patcher *workflow.Patcher, combos []combo.Combination) Summary {
	sum := Summary{Condition: space.Condition(), OutputDir: outputDir}
	ref, refErr := workflow.Load(filepath.Join(outputDir, o.cfg.ReferenceFile))
	for _, c := range combos {
		entry := PlanEntry{Label: c.Label, Diff: combo.Diff(space, c)}
		if refErr == nil {
			entry.Checked = true
			o.checkPlan(&entry, patcher, ref, c)
			if entry.Err != nil {
				logging.ForCondition(space.Condition()).Warn().Err(entry.Err).Str("test_name", c.Label).Msg("dry run: patch check failed")
			}
		}
		sum.Plan = append(sum.Plan, entry)
	}
	return sum
}

// checkPlan patches ref with c and reads the changed keys back.
func (o *Orchestrator) checkPlan(entry *PlanEntry, patcher *workflow.Patcher, ref workflow.Descriptor, c combo.Combination) {
	patched, ok, err := patcher.Patch(ref, c)
	if err != nil {
		entry.Err = err
		return
	}
	entry.WouldPatch = ok
	if !ok {
		return
	}
	for _, key := range entry.Diff.Keys() {
		want, _ := entry.Diff.Get(key)
		got, found := patcher.Lookup(patched, key)
		if !found || got != want.String() {
			entry.Err = fmt.Errorf("%s: patched descriptor carries %q, want %q", key, got, want.String())
			return
		}
		entry.Effective = append(entry.Effective, key+"="+got)
	}
}

func (o *Orchestrator) openLedger(ctx context.Context, sum Summary, opts Options, start time.Time, logger zerolog.Logger) error {
	if o.ledger == nil {
		return nil
	}
	n, err := o.ledger.MarkInterrupted(ctx, sum.OutputDir)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warn().Int("count", n).Msg("marked stale sweeps interrupted")
	}
	return o.ledger.CreateSweep(ctx, db.Sweep{
		ID:        sum.SweepID,
		CreatedAt: start,
		Condition: sum.Condition,
		Mode:      string(opts.mode()),
		GridKeys:  strings.Join(opts.GridKeys, ","),
		OutputDir: sum.OutputDir,
	})
}

func (o *Orchestrator) closeLedger(ctx context.Context, sum Summary, runErr error, logger zerolog.Logger) {
	if o.ledger == nil {
		return
	}
	status := db.SweepDone
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = db.SweepCanceled
	default:
		status = db.SweepFailed
	}
	counts := db.Counts{Attempted: sum.Attempted, Skipped: sum.Skipped, Failed: sum.Failed, Succeeded: sum.Succeeded}
	if err := o.ledger.FinishSweep(context.WithoutCancel(ctx), sum.SweepID, status, counts); err != nil {
		logger.Error().Err(err).Msg("finish sweep in ledger")
	}
}

func (o *Orchestrator) event(ctx context.Context, sweepID string, ev db.Event, logger zerolog.Logger) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.AddEvent(ctx, sweepID, ev); err != nil {
		logger.Warn().Err(err).Str("event", ev.Type).Msg("ledger event")
	}
}

func (o *Orchestrator) enter(s State, label string) {
	if o.observer != nil {
		o.observer(s, label)
	}
}
