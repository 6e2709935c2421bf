package upgrade

import (
	"fmt"
	"io"

	"github.com/devops-toolbox/nodepool-upgrader/pkg/report"
)

// OutcomeKind classifies what happened to a node pool during a run.
type OutcomeKind string

const (
	AlreadyCurrent OutcomeKind = "already-current"
	DryRunPlanned  OutcomeKind = "dry-run-planned"
	Succeeded      OutcomeKind = "succeeded"
	Failed         OutcomeKind = "failed"
)

// Outcome is the result for a single node pool. Target is set for
// DryRunPlanned, Reason for Failed.
type Outcome struct {
	Pool   string
	Kind   OutcomeKind
	Target string
	Reason string
}

// Status is the operator facing description of the outcome.
func (o Outcome) Status() string {
	switch o.Kind {
	case AlreadyCurrent:
		return "Already up-to-date"
	case DryRunPlanned:
		return fmt.Sprintf("DRY RUN: Would upgrade to %s", o.Target)
	case Succeeded:
		return "Upgrade successful"
	case Failed:
		return fmt.Sprintf("Upgrade failed: %s", o.Reason)
	}
	return string(o.Kind)
}

// Summary writes the outcome of every pool as a table.
func Summary(w io.Writer, outcomes []Outcome) error {
	rows := make([][]string, len(outcomes))
	for i, o := range outcomes {
		rows[i] = []string{o.Pool, o.Status()}
	}
	return report.Table(w, []string{"NODEPOOL", "STATUS"}, rows)
}

// Failures counts the outcomes of kind Failed.
func Failures(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Kind == Failed {
			n++
		}
	}
	return n
}
