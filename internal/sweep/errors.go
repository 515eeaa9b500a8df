package sweep

import (
	"fmt"
	"strings"
)

// ReferenceMissingError reports that the reference run left no baseline
// descriptor behind.
type ReferenceMissingError struct {
	Path string
	Err  error
}

func (e *ReferenceMissingError) Error() string {
	return fmt.Sprintf("reference descriptor %s missing: %v", e.Path, e.Err)
}

func (e *ReferenceMissingError) Unwrap() error { return e.Err }

// PatchNotAppliedWarning reports a combination skipped because no target
// stage carried the configuration flag.
type PatchNotAppliedWarning struct {
	Label    string
	Flag     string
	Matchers []string
}

func (w *PatchNotAppliedWarning) Error() string {
	return fmt.Sprintf("%s: no stage matching [%s] carries %s", w.Label, strings.Join(w.Matchers, ", "), w.Flag)
}
