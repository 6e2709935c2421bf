// Package safety decides, before anything is changed, which node pools need
// an upgrade, which of those would upgrade without surge capacity, and which
// workloads would have no serving replica while their node drains.
package safety

import (
	"github.com/devops-toolbox/nodepool-upgrader/pkg/version"
	"github.com/pkg/errors"
)

// Evaluation is the outcome of checking a cluster against its control plane.
type Evaluation struct {
	ControlPlane string
	Outdated     []NodePool
	Unsafe       []NodePool
	Risky        []Workload
}

// NeedsUpgrade is true when at least one pool trails the control plane.
func (e *Evaluation) NeedsUpgrade() bool {
	return len(e.Outdated) > 0
}

// Evaluator holds the thresholds used by Evaluate.
type Evaluator struct {
	// FragileReplicas is the replica count at or below which a workload is
	// fragile.
	FragileReplicas int32
}

// Evaluate checks pools, workloads and coverage with the default thresholds.
func Evaluate(controlPlane string, pools []NodePool, workloads []Workload, coverage Coverage) (*Evaluation, error) {
	e := Evaluator{FragileReplicas: DefaultFragileReplicas}
	return e.Evaluate(controlPlane, pools, workloads, coverage)
}

// Evaluate computes the outdated, unsafe and risky lists. Input order is
// kept in every list.
func (e Evaluator) Evaluate(controlPlane string, pools []NodePool, workloads []Workload, coverage Coverage) (*Evaluation, error) {
	target, err := version.Parse(controlPlane)
	if err != nil {
		return nil, errors.WithMessage(err, "control plane")
	}

	ev := &Evaluation{ControlPlane: controlPlane}
	for _, pool := range pools {
		outdated, err := isOutdated(pool, target)
		if err != nil {
			return nil, err
		}
		if !outdated {
			continue
		}
		ev.Outdated = append(ev.Outdated, pool)
		if !SafeSurge(pool) {
			ev.Unsafe = append(ev.Unsafe, pool)
		}
	}
	for _, w := range workloads {
		if e.Fragile(w) && !coverage.Has(w.Key()) {
			ev.Risky = append(ev.Risky, w)
		}
	}
	return ev, nil
}

// IsOutdated reports whether the pool's version is strictly older than the
// control plane's.
func IsOutdated(pool NodePool, controlPlane string) (bool, error) {
	target, err := version.Parse(controlPlane)
	if err != nil {
		return false, errors.WithMessage(err, "control plane")
	}
	return isOutdated(pool, target)
}

func isOutdated(pool NodePool, target version.Version) (bool, error) {
	current, err := version.Parse(pool.Version)
	if err != nil {
		return false, errors.WithMessagef(err, "node pool %q", pool.Name)
	}
	return version.Compare(current, target) < 0, nil
}

// SafeSurge is true when the pool adds a node before removing one, so its
// capacity never dips during a rolling upgrade.
func SafeSurge(pool NodePool) bool {
	return pool.MaxSurge >= 1 && pool.MaxUnavailable == 0
}

// Fragile is true when the workload has no spare replica.
func (e Evaluator) Fragile(w Workload) bool {
	return w.Replicas <= e.FragileReplicas
}
