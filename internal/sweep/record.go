package sweep

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/metalagman/cutscan/internal/paramspace"
)

// RecordFileName is the per-run record written under <condition>/<test>/.
const RecordFileName = "config.json"

// RunRecord is the persisted outcome of one combination. It is written once.
type RunRecord struct {
	SweepID     string                      `json:"sweep_id"`
	TestName    string                      `json:"test_name"`
	Condition   string                      `json:"condition"`
	Assignments map[string]paramspace.Value `json:"assignments"`
	ExitCode    int                         `json:"exit_code"`
	Status      string                      `json:"status"`
	StartedAt   time.Time                   `json:"started_at"`
	EndedAt     time.Time                   `json:"ended_at"`
	Error       string                      `json:"error,omitempty"`
}

// RecordKey returns the artifact key of a run record.
func RecordKey(condition, testName string) string {
	return path.Join(condition, testName, RecordFileName)
}

// Marshal encodes the record as indented JSON.
func (r RunRecord) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run record: %w", err)
	}
	return append(data, '\n'), nil
}

// ReadRecord loads a record written by a sweep.
func ReadRecord(file string) (RunRecord, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run record: %w", err)
	}
	var r RunRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return RunRecord{}, fmt.Errorf("decode run record %s: %w", file, err)
	}
	return r, nil
}
