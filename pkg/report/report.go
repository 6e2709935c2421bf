// Package report renders run results as aligned text tables.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/devops-toolbox/nodepool-upgrader/pkg/safety"
)

// Table writes headers and rows as tab-aligned columns with a dashed rule
// under the headers.
func Table(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	rules := make([]string, len(headers))
	for i, h := range headers {
		rules[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rules, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Pools writes node pools with their upgrade settings.
func Pools(w io.Writer, pools []safety.NodePool) error {
	rows := make([][]string, len(pools))
	for i, p := range pools {
		rows[i] = []string{p.Name, p.Version, fmt.Sprint(p.MaxSurge), fmt.Sprint(p.MaxUnavailable)}
	}
	return Table(w, []string{"NODEPOOL", "VERSION", "MAX SURGE", "MAX UNAVAILABLE"}, rows)
}

// Workloads writes workloads with their replica counts.
func Workloads(w io.Writer, workloads []safety.Workload) error {
	rows := make([][]string, len(workloads))
	for i, wl := range workloads {
		rows[i] = []string{wl.Namespace, wl.Name, fmt.Sprint(wl.Replicas)}
	}
	return Table(w, []string{"NAMESPACE", "NAME", "REPLICAS"}, rows)
}

// Evaluation writes every list of the evaluation, including empty ones, so
// the operator sees the full picture before anything changes.
func Evaluation(w io.Writer, ev *safety.Evaluation) error {
	sections := []struct {
		title string
		write func() error
		empty bool
	}{
		{
			title: fmt.Sprintf("Node pools behind the control plane (%s):", ev.ControlPlane),
			write: func() error { return Pools(w, ev.Outdated) },
			empty: len(ev.Outdated) == 0,
		},
		{
			title: "Node pools without surge upgrade settings:",
			write: func() error { return Pools(w, ev.Unsafe) },
			empty: len(ev.Unsafe) == 0,
		},
		{
			title: "Fragile workloads not covered by a PodDisruptionBudget:",
			write: func() error { return Workloads(w, ev.Risky) },
			empty: len(ev.Risky) == 0,
		},
	}
	for _, s := range sections {
		fmt.Fprintf(w, "\n%s\n", s.title)
		if s.empty {
			fmt.Fprintln(w, "  (none)")
			continue
		}
		if err := s.write(); err != nil {
			return err
		}
	}
	return nil
}
