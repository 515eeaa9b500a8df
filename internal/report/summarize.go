// Package report turns sweep results into CSV summaries, markdown reports
// and terminal tables.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/metalagman/cutscan/internal/combo"
	"github.com/metalagman/cutscan/internal/paramspace"
	"github.com/metalagman/cutscan/internal/sweep"
	"github.com/rs/zerolog/log"
)

// CollectRecords reads every <root>/<condition>/*/config.json, sorted by
// test name. Unreadable records are logged and skipped.
func CollectRecords(root, condition string) ([]sweep.RunRecord, error) {
	dir := filepath.Join(root, condition)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read records dir: %w", err)
	}
	var out []sweep.RunRecord
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		file := filepath.Join(dir, e.Name(), sweep.RecordFileName)
		rec, err := sweep.ReadRecord(file)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Warn().Err(err).Str("file", file).Msg("skipping unreadable record")
			}
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestName < out[j].TestName })
	return out, nil
}

// WriteCSV writes one row per record: test name, status, exit code, then
// one column per assigned key (sorted).
func WriteCSV(w io.Writer, records []sweep.RunRecord) error {
	keySet := map[string]paramspace.Value{}
	for _, r := range records {
		for k, v := range r.Assignments {
			keySet[k] = v
		}
	}
	keys := combo.SortedKeys(keySet)

	cw := csv.NewWriter(w)
	header := append([]string{"test_name", "status", "exit_code"}, keys...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{r.TestName, r.Status, strconv.Itoa(r.ExitCode)}
		for _, k := range keys {
			v, ok := r.Assignments[k]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, v.String())
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// SummaryFileName is the default CSV name for a condition.
func SummaryFileName(condition string) string {
	return condition + "_configssummary.csv"
}

// Summarize writes the CSV summary of a condition to path and returns the
// number of rows.
func Summarize(root, condition, path string) (int, error) {
	records, err := CollectRecords(root, condition)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create summary dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create summary: %w", err)
	}
	if err := WriteCSV(f, records); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close summary: %w", err)
	}
	return len(records), nil
}
