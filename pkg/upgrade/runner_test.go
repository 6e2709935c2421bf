package upgrade

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/devops-toolbox/nodepool-upgrader/pkg/config"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/internal/testoutput"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/logging"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/safety"
	pkgerrors "github.com/pkg/errors"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

const controlPlane = "1.28.0-gke.5"

type surgeCall struct {
	Pool                     string
	MaxSurge, MaxUnavailable int
}

type upgradeCall struct {
	Pool, Version string
}

type testingCluster struct {
	controlPlane string
	pools        []safety.NodePool
	versionErr   error
	poolsErr     error

	surgeCalls   []surgeCall
	upgradeCalls []upgradeCall

	SurgeFn   func(pool string) error
	UpgradeFn func(pool string) error
}

func (c *testingCluster) ControlPlaneVersion(context.Context) (string, error) {
	return c.controlPlane, c.versionErr
}

func (c *testingCluster) NodePools(context.Context) ([]safety.NodePool, error) {
	return c.pools, c.poolsErr
}

func (c *testingCluster) SetSurgeUpgrade(_ context.Context, pool string, maxSurge, maxUnavailable int) error {
	c.surgeCalls = append(c.surgeCalls, surgeCall{pool, maxSurge, maxUnavailable})
	if c.SurgeFn != nil {
		return c.SurgeFn(pool)
	}
	return nil
}

func (c *testingCluster) UpgradeNodePool(_ context.Context, pool, version string) error {
	c.upgradeCalls = append(c.upgradeCalls, upgradeCall{pool, version})
	if c.UpgradeFn != nil {
		return c.UpgradeFn(pool)
	}
	return nil
}

type testingScanner struct {
	fragile  []safety.Workload
	coverage safety.Coverage
	err      error
	calls    int
}

func (s *testingScanner) FragileWorkloads(context.Context) ([]safety.Workload, error) {
	s.calls++
	return s.fragile, s.err
}

func (s *testingScanner) DisruptionCoverage(context.Context) (safety.Coverage, error) {
	s.calls++
	return s.coverage, s.err
}

// testingConfirmer answers from a queue and records the questions asked.
type testingConfirmer struct {
	answers   []bool
	err       error
	questions []string
}

func (c *testingConfirmer) Confirm(question string) (bool, error) {
	c.questions = append(c.questions, question)
	if c.err != nil {
		return false, c.err
	}
	if len(c.answers) == 0 {
		return false, nil
	}
	answer := c.answers[0]
	c.answers = c.answers[1:]
	return answer, nil
}

type testRunnerHooks struct {
	Cluster   *testingCluster
	Scanner   *testingScanner
	Confirmer *testingConfirmer
	Out       *bytes.Buffer
}

func testRunner(t *testing.T, dryRun bool, pools ...safety.NodePool) (*Runner, *testRunnerHooks) {
	hooks := &testRunnerHooks{
		Cluster:   &testingCluster{controlPlane: controlPlane, pools: pools},
		Scanner:   &testingScanner{coverage: safety.NewCoverage()},
		Confirmer: &testingConfirmer{},
		Out:       &bytes.Buffer{},
	}
	r := New(testoutput.Logger(t, logging.New("runner")), hooks.Cluster, hooks.Scanner, hooks.Confirmer, hooks.Out, Options{
		DryRun:          dryRun,
		FragileReplicas: safety.DefaultFragileReplicas,
		Surge:           config.Surge{MaxSurge: 1, MaxUnavailable: 0},
	})
	return r, hooks
}

func safePool(name, version string) safety.NodePool {
	return safety.NodePool{Name: name, Version: version, MaxSurge: 1, MaxUnavailable: 0}
}

func unsafePool(name, version string) safety.NodePool {
	return safety.NodePool{Name: name, Version: version, MaxSurge: safety.DefaultMaxSurge, MaxUnavailable: safety.DefaultMaxUnavailable}
}

func TestRunNoUpgradesNeeded(t *testing.T) {
	r, hooks := testRunner(t, false, safePool("a", controlPlane), unsafePool("b", "1.28.0-gke.900"))
	result, err := r.Run(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, !result.Evaluation.NeedsUpgrade())
	assert.Equal(t, 0, len(result.Outcomes))
	assert.Equal(t, 0, hooks.Scanner.calls)
	assert.Equal(t, 0, len(hooks.Cluster.upgradeCalls))
	assert.Equal(t, 0, len(hooks.Confirmer.questions))
}

func TestRunPartialFailure(t *testing.T) {
	r, hooks := testRunner(t, false,
		safePool("p1", "1.27.2-gke.100"),
		safePool("p2", "1.27.2-gke.100"),
	)
	hooks.Cluster.UpgradeFn = func(pool string) error {
		if pool == "p1" {
			return errors.New("operation timed out")
		}
		return nil
	}

	result, err := r.Run(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, []Outcome{
		{Pool: "p1", Kind: Failed, Reason: "operation timed out"},
		{Pool: "p2", Kind: Succeeded},
	}, result.Outcomes)
	assert.Equal(t, 1, Failures(result.Outcomes))
	assert.DeepEqual(t, []upgradeCall{
		{"p1", controlPlane},
		{"p2", controlPlane},
	}, hooks.Cluster.upgradeCalls)

	out := hooks.Out.String()
	assert.Check(t, is.Contains(out, "Upgrade failed: operation timed out"))
	assert.Check(t, is.Contains(out, "Upgrade successful"))
}

func TestRunSkipsCurrentPoolsInOrder(t *testing.T) {
	r, hooks := testRunner(t, false,
		safePool("old", "1.27.0-gke.1"),
		safePool("current", controlPlane),
		safePool("ahead", "1.29.0-gke.1"),
		safePool("older", "1.26.5-gke.3"),
	)
	result, err := r.Run(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, []Outcome{
		{Pool: "old", Kind: Succeeded},
		{Pool: "current", Kind: AlreadyCurrent},
		{Pool: "ahead", Kind: AlreadyCurrent},
		{Pool: "older", Kind: Succeeded},
	}, result.Outcomes)
	assert.DeepEqual(t, []upgradeCall{
		{"old", controlPlane},
		{"older", controlPlane},
	}, hooks.Cluster.upgradeCalls)
}

func TestRunRiskyDeclinedAborts(t *testing.T) {
	r, hooks := testRunner(t, false, unsafePool("p1", "1.27.2-gke.100"))
	hooks.Scanner.fragile = []safety.Workload{{Namespace: "default", Name: "api", Replicas: 1}}
	hooks.Confirmer.answers = []bool{false}

	result, err := r.Run(context.Background())
	assert.Equal(t, ErrAborted, err)
	assert.Assert(t, result != nil)
	assert.Equal(t, 1, len(result.Evaluation.Risky))
	assert.Equal(t, 0, len(result.Outcomes))
	assert.DeepEqual(t, []string{"Continue with upgrade anyway?"}, hooks.Confirmer.questions)
	assert.Equal(t, 0, len(hooks.Cluster.surgeCalls))
	assert.Equal(t, 0, len(hooks.Cluster.upgradeCalls))
	// The evaluation was shown before asking.
	assert.Check(t, is.Contains(hooks.Out.String(), "default"))
}

func TestRunRiskyAccepted(t *testing.T) {
	r, hooks := testRunner(t, false, safePool("p1", "1.27.2-gke.100"))
	hooks.Scanner.fragile = []safety.Workload{{Namespace: "default", Name: "api", Replicas: 1}}
	hooks.Confirmer.answers = []bool{true}

	result, err := r.Run(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, []Outcome{{Pool: "p1", Kind: Succeeded}}, result.Outcomes)
}

func TestRunCoveredWorkloadNotRisky(t *testing.T) {
	r, hooks := testRunner(t, false, safePool("p1", "1.27.2-gke.100"))
	hooks.Scanner.fragile = []safety.Workload{{Namespace: "default", Name: "api", Replicas: 1}}
	hooks.Scanner.coverage = safety.NewCoverage(safety.WorkloadKey{Namespace: "default", Name: "api"})

	result, err := r.Run(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, 0, len(result.Evaluation.Risky))
	assert.Equal(t, 0, len(hooks.Confirmer.questions))
}

func TestRunSurgeAccepted(t *testing.T) {
	r, hooks := testRunner(t, false, unsafePool("p1", "1.27.2-gke.100"))
	hooks.Confirmer.answers = []bool{true}
	hooks.Cluster.UpgradeFn = func(string) error {
		// Settings must be in place before the upgrade starts.
		assert.Equal(t, 1, len(hooks.Cluster.surgeCalls))
		return nil
	}

	result, err := r.Run(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, []surgeCall{{"p1", 1, 0}}, hooks.Cluster.surgeCalls)
	assert.DeepEqual(t, []string{"Apply --max-surge-upgrade=1 --max-unavailable-upgrade=0 to 'p1'?"}, hooks.Confirmer.questions)
	assert.DeepEqual(t, []Outcome{{Pool: "p1", Kind: Succeeded}}, result.Outcomes)
}

func TestRunSurgeDeclinedStillUpgrades(t *testing.T) {
	r, hooks := testRunner(t, false, unsafePool("p1", "1.27.2-gke.100"))
	hooks.Confirmer.answers = []bool{false}

	result, err := r.Run(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, 0, len(hooks.Cluster.surgeCalls))
	assert.DeepEqual(t, []Outcome{{Pool: "p1", Kind: Succeeded}}, result.Outcomes)
}

func TestRunSurgeUpdateFailureIsPerPool(t *testing.T) {
	r, hooks := testRunner(t, false,
		unsafePool("p1", "1.27.2-gke.100"),
		safePool("p2", "1.27.2-gke.100"),
	)
	hooks.Confirmer.answers = []bool{true}
	hooks.Cluster.SurgeFn = func(string) error { return errors.New("quota exceeded") }

	result, err := r.Run(context.Background())
	assert.NilError(t, err)
	assert.Equal(t, 2, len(result.Outcomes))
	assert.Equal(t, Failed, result.Outcomes[0].Kind)
	assert.Check(t, is.Contains(result.Outcomes[0].Reason, "quota exceeded"))
	assert.DeepEqual(t, Outcome{Pool: "p2", Kind: Succeeded}, result.Outcomes[1])
	assert.DeepEqual(t, []upgradeCall{{"p2", controlPlane}}, hooks.Cluster.upgradeCalls)
}

func TestRunConfirmErrorEndsRun(t *testing.T) {
	r, hooks := testRunner(t, false, unsafePool("p1", "1.27.2-gke.100"))
	hooks.Confirmer.err = errors.New("stdin closed")

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "stdin closed")
	assert.Equal(t, 0, len(hooks.Cluster.upgradeCalls))
}

func TestRunDryRun(t *testing.T) {
	r, hooks := testRunner(t, true,
		unsafePool("p1", "1.27.2-gke.100"),
		safePool("p2", controlPlane),
	)
	hooks.Scanner.fragile = []safety.Workload{{Namespace: "example-ns", Name: "demo-deployment", Replicas: 1}}

	result, err := r.Run(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, []Outcome{
		{Pool: "p1", Kind: DryRunPlanned, Target: controlPlane},
		{Pool: "p2", Kind: AlreadyCurrent},
	}, result.Outcomes)
	assert.Equal(t, 0, len(hooks.Confirmer.questions))
	assert.Equal(t, 0, len(hooks.Cluster.surgeCalls))
	assert.Equal(t, 0, len(hooks.Cluster.upgradeCalls))
	assert.Check(t, is.Contains(hooks.Out.String(), "DRY RUN: Would upgrade to "+controlPlane))
}

func TestRunEvaluationShownBeforeMutation(t *testing.T) {
	r, hooks := testRunner(t, false, safePool("p1", "1.27.2-gke.100"))
	hooks.Cluster.UpgradeFn = func(string) error {
		assert.Check(t, is.Contains(hooks.Out.String(), "Node pools behind the control plane"))
		return nil
	}
	_, err := r.Run(context.Background())
	assert.NilError(t, err)
}

func TestRunReadFailuresAreFatal(t *testing.T) {
	readErr := errors.New("exit status 1")

	r, hooks := testRunner(t, false, safePool("p1", "1.27.2-gke.100"))
	hooks.Cluster.versionErr = readErr
	result, err := r.Run(context.Background())
	assert.Equal(t, readErr, pkgerrors.Cause(err))
	assert.Assert(t, result == nil)

	r, hooks = testRunner(t, false, safePool("p1", "1.27.2-gke.100"))
	hooks.Cluster.poolsErr = readErr
	_, err = r.Run(context.Background())
	assert.Equal(t, readErr, pkgerrors.Cause(err))

	r, hooks = testRunner(t, false, safePool("p1", "1.27.2-gke.100"))
	hooks.Scanner.err = readErr
	_, err = r.Run(context.Background())
	assert.Equal(t, readErr, pkgerrors.Cause(err))
	assert.Equal(t, 0, len(hooks.Cluster.upgradeCalls))
}

func TestRunInvalidPoolVersion(t *testing.T) {
	r, _ := testRunner(t, false, safePool("broken", "latest"))
	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "broken")
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, hooks := testRunner(t, false,
		safePool("p1", "1.27.2-gke.100"),
		safePool("p2", "1.27.2-gke.100"),
	)
	hooks.Cluster.UpgradeFn = func(string) error {
		cancel()
		return nil
	}

	result, err := r.Run(ctx)
	assert.Equal(t, context.Canceled, pkgerrors.Cause(err))
	assert.DeepEqual(t, []Outcome{{Pool: "p1", Kind: Succeeded}}, result.Outcomes)
	assert.Equal(t, 1, len(hooks.Cluster.upgradeCalls))
}
