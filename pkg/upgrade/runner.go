// Package upgrade runs the reconciliation of a cluster's node pools with its
// control plane version.
//
// A run reads the control plane version and the node pools, scans workloads
// for upgrade risk and shows the whole evaluation before changing anything.
// Pools are then handled one at a time, in the order they were listed:
//
// - pools at or past the control plane version are left alone
//
// - pools without surge upgrade settings are offered the configured ones
//
// - remaining pools are upgraded, or only reported in dry run mode
//
// A failed upgrade is recorded for its pool and the run moves on to the next
// one. Failures to read the cluster's state end the run.
package upgrade

import (
	"context"
	"fmt"
	"io"

	"github.com/devops-toolbox/nodepool-upgrader/pkg/config"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/internal/logfields"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/logging"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/prompt"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/report"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/safety"
	"github.com/pkg/errors"
)

// ErrAborted is returned when the operator declines to continue.
var ErrAborted = errors.New("aborted by operator")

// Cluster is the managed offering's view of the cluster.
type Cluster interface {
	ControlPlaneVersion(ctx context.Context) (string, error)
	NodePools(ctx context.Context) ([]safety.NodePool, error)
	SetSurgeUpgrade(ctx context.Context, pool string, maxSurge, maxUnavailable int) error
	UpgradeNodePool(ctx context.Context, pool, version string) error
}

// Scanner provides the workload facts for the risk evaluation.
type Scanner interface {
	FragileWorkloads(ctx context.Context) ([]safety.Workload, error)
	DisruptionCoverage(ctx context.Context) (safety.Coverage, error)
}

// Options tune a Runner.
type Options struct {
	DryRun          bool
	FragileReplicas int32
	Surge           config.Surge
}

// Result is what a run found and did.
type Result struct {
	Evaluation *safety.Evaluation
	Outcomes   []Outcome
}

// Runner reconciles the node pools of one cluster.
type Runner struct {
	log     logging.Logger
	cluster Cluster
	scanner Scanner
	confirm prompt.Confirmer
	out     io.Writer
	opts    Options
}

// New creates a Runner. Tables are written to out, questions go through
// confirm.
func New(log logging.Logger, cluster Cluster, scanner Scanner, confirm prompt.Confirmer, out io.Writer, opts Options) *Runner {
	return &Runner{
		log:     log,
		cluster: cluster,
		scanner: scanner,
		confirm: confirm,
		out:     out,
		opts:    opts,
	}
}

// Run performs one reconciliation. The returned Result is non-nil whenever
// the evaluation completed, including when ErrAborted is returned.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	evaluator := safety.Evaluator{FragileReplicas: r.opts.FragileReplicas}

	controlPlane, err := r.cluster.ControlPlaneVersion(ctx)
	if err != nil {
		return nil, err
	}
	r.log.WithField("version", controlPlane).Infof("Control plane version: %s", controlPlane)

	pools, err := r.cluster.NodePools(ctx)
	if err != nil {
		return nil, err
	}

	ev, err := evaluator.Evaluate(controlPlane, pools, nil, nil)
	if err != nil {
		return nil, err
	}
	if !ev.NeedsUpgrade() {
		r.log.Info("All node pools are already at the control plane version. No upgrades needed.")
		return &Result{Evaluation: ev}, nil
	}

	fragile, err := r.scanner.FragileWorkloads(ctx)
	if err != nil {
		return nil, err
	}
	coverage, err := r.scanner.DisruptionCoverage(ctx)
	if err != nil {
		return nil, err
	}
	ev, err = evaluator.Evaluate(controlPlane, pools, fragile, coverage)
	if err != nil {
		return nil, err
	}
	if err := report.Evaluation(r.out, ev); err != nil {
		return nil, errors.Wrap(err, "write evaluation")
	}
	result := &Result{Evaluation: ev}

	if err := r.acceptRisk(ev); err != nil {
		return result, err
	}

	outdated := byName(ev.Outdated)
	unsafe := byName(ev.Unsafe)
	for _, pool := range pools {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "run interrupted")
		}
		outcome, err := r.reconcile(ctx, controlPlane, pool, outdated[pool.Name], unsafe[pool.Name])
		if err != nil {
			return result, err
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	r.log.Info("Upgrade Summary:")
	if err := Summary(r.out, result.Outcomes); err != nil {
		return result, errors.Wrap(err, "write summary")
	}
	return result, nil
}

func (r *Runner) acceptRisk(ev *safety.Evaluation) error {
	if len(ev.Risky) == 0 {
		return nil
	}
	for _, w := range ev.Risky {
		r.log.WithFields(logfields.Workload(w)).Warn("workload has no spare replica and no PodDisruptionBudget")
	}
	if r.opts.DryRun {
		r.log.Info("Dry run: would prompt to continue despite risky workloads")
		return nil
	}
	proceed, err := r.confirm.Confirm("Continue with upgrade anyway?")
	if err != nil {
		return errors.WithMessage(err, "confirm risky workloads")
	}
	if !proceed {
		r.log.Warn("Aborting upgrade due to risky workloads")
		return ErrAborted
	}
	r.log.Info("Continuing despite risky workloads")
	return nil
}

// reconcile handles a single pool. Only a failure to ask the operator is
// returned as an error; everything else is an Outcome.
func (r *Runner) reconcile(ctx context.Context, target string, pool safety.NodePool, outdated, unsafe bool) (Outcome, error) {
	log := r.log.WithFields(logfields.Pool(pool))
	if pool.Version == target || !outdated {
		log.Debug("node pool is current")
		return Outcome{Pool: pool.Name, Kind: AlreadyCurrent}, nil
	}

	if unsafe {
		if err := r.ensureSurge(ctx, pool); err != nil {
			if _, ok := errors.Cause(err).(promptError); ok {
				return Outcome{}, err
			}
			log.WithError(err).Error("unable to apply surge upgrade settings")
			return Outcome{Pool: pool.Name, Kind: Failed, Reason: err.Error()}, nil
		}
	}

	log.Infof("Upgrading node pool '%s' from %s to %s", pool.Name, pool.Version, target)
	if r.opts.DryRun {
		return Outcome{Pool: pool.Name, Kind: DryRunPlanned, Target: target}, nil
	}
	if err := r.cluster.UpgradeNodePool(ctx, pool.Name, target); err != nil {
		log.WithError(err).Error("node pool upgrade failed")
		return Outcome{Pool: pool.Name, Kind: Failed, Reason: err.Error()}, nil
	}
	log.Info("node pool upgraded")
	return Outcome{Pool: pool.Name, Kind: Succeeded}, nil
}

// promptError marks a failure to reach the operator, which ends the run.
type promptError struct {
	error
}

// ensureSurge offers the configured surge settings to a pool lacking them.
// Declining is not an error; the pool is upgraded with its own settings.
func (r *Runner) ensureSurge(ctx context.Context, pool safety.NodePool) error {
	log := r.log.WithFields(logfields.Pool(pool))
	log.Warnf("Node pool '%s' does not have recommended surge upgrade settings", pool.Name)

	surge := r.opts.Surge
	flags := fmt.Sprintf("--max-surge-upgrade=%d --max-unavailable-upgrade=%d", surge.MaxSurge, surge.MaxUnavailable)
	if r.opts.DryRun {
		log.Infof("Dry run: would apply %s to node pool '%s'", flags, pool.Name)
		return nil
	}

	apply, err := r.confirm.Confirm(fmt.Sprintf("Apply %s to '%s'?", flags, pool.Name))
	if err != nil {
		return promptError{errors.WithMessage(err, "confirm surge settings")}
	}
	if !apply {
		log.Warn("proceeding without surge upgrade settings")
		return nil
	}
	if err := r.cluster.SetSurgeUpgrade(ctx, pool.Name, surge.MaxSurge, surge.MaxUnavailable); err != nil {
		return errors.WithMessage(err, "update surge settings")
	}
	log.Infof("Surge upgrade settings applied to '%s'", pool.Name)
	return nil
}

func byName(pools []safety.NodePool) map[string]bool {
	m := make(map[string]bool, len(pools))
	for _, p := range pools {
		m[p.Name] = true
	}
	return m
}
