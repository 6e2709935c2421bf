// Package gcloud binds the upgrade workflow to the `gcloud` CLI for one GKE
// cluster. Queries always run; commands that change the cluster are skipped
// in dry run mode and only reported.
package gcloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/devops-toolbox/nodepool-upgrader/pkg/extract"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/logging"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/safety"
	"github.com/pkg/errors"
)

// Target names the cluster operated on.
type Target struct {
	Project string
	Region  string
	Cluster string
}

func (t Target) locationArgs() []string {
	return []string{
		fmt.Sprintf("--region=%s", t.Region),
		fmt.Sprintf("--project=%s", t.Project),
	}
}

// Client issues gcloud commands against a Target.
type Client struct {
	log    logging.Logger
	cli    executer
	target Target
	dryRun bool
}

// New creates a Client running the gcloud binary at bin.
func New(log logging.Logger, bin string, target Target, dryRun bool) *Client {
	return &Client{
		log:    log,
		cli:    &executable{bin: bin, log: log.WithField(logging.SubComponentField, "exec")},
		target: target,
		dryRun: dryRun,
	}
}

// Connect writes the cluster's credentials into the local kubeconfig and
// makes it the current context.
func (c *Client) Connect(ctx context.Context) error {
	c.log.WithField("cluster", c.target.Cluster).Infof("Connecting to cluster %s in %s", c.target.Cluster, c.target.Region)
	args := append([]string{"container", "clusters", "get-credentials", c.target.Cluster}, c.target.locationArgs()...)
	if _, err := c.run(ctx, args); err != nil {
		return err
	}
	c.log.Info("Connected to cluster")
	return nil
}

// ControlPlaneVersion returns the raw control plane version, including its
// platform tag.
func (c *Client) ControlPlaneVersion(ctx context.Context) (string, error) {
	args := append([]string{"container", "clusters", "describe", c.target.Cluster}, c.target.locationArgs()...)
	var desc clusterDescription
	if err := c.query(ctx, append(args, "--format=json"), &desc); err != nil {
		return "", errors.WithMessage(err, "describe cluster")
	}
	if desc.CurrentMasterVersion == "" {
		return "", errors.Errorf("cluster %s reported no control plane version", c.target.Cluster)
	}
	return desc.CurrentMasterVersion, nil
}

// NodePools lists the cluster's node pools in the order gcloud reports them.
func (c *Client) NodePools(ctx context.Context) ([]safety.NodePool, error) {
	args := append([]string{"container", "node-pools", "list",
		fmt.Sprintf("--cluster=%s", c.target.Cluster),
	}, c.target.locationArgs()...)
	var listing []nodePool
	if err := c.query(ctx, append(args, "--format=json"), &listing); err != nil {
		return nil, errors.WithMessage(err, "list node pools")
	}
	pools := make([]safety.NodePool, len(listing))
	for i := range listing {
		pools[i] = listing[i].toNodePool()
	}
	return pools, nil
}

// SetSurgeUpgrade changes the pool's rolling upgrade settings.
func (c *Client) SetSurgeUpgrade(ctx context.Context, pool string, maxSurge, maxUnavailable int) error {
	args := append([]string{"container", "node-pools", "update", pool,
		fmt.Sprintf("--cluster=%s", c.target.Cluster),
	}, c.target.locationArgs()...)
	args = append(args,
		fmt.Sprintf("--max-surge-upgrade=%d", maxSurge),
		fmt.Sprintf("--max-unavailable-upgrade=%d", maxUnavailable),
	)
	return c.mutate(ctx, args)
}

// UpgradeNodePool upgrades the pool's nodes to version. The call blocks
// until gcloud reports the operation finished.
func (c *Client) UpgradeNodePool(ctx context.Context, pool, version string) error {
	args := append([]string{"container", "clusters", "upgrade", c.target.Cluster,
		fmt.Sprintf("--node-pool=%s", pool),
		fmt.Sprintf("--cluster-version=%s", version),
	}, c.target.locationArgs()...)
	return c.mutate(ctx, append(args, "--quiet"))
}

func (c *Client) run(ctx context.Context, args []string) ([]byte, error) {
	c.log.Infof("Running: gcloud %s", strings.Join(args, " "))
	return c.cli.execute(ctx, args)
}

func (c *Client) query(ctx context.Context, args []string, v interface{}) error {
	out, err := c.run(ctx, args)
	if err != nil {
		return err
	}
	if err := extract.Decode(string(out), v); err != nil {
		c.log.WithError(err).Error("Unable to read gcloud output")
		return err
	}
	return nil
}

func (c *Client) mutate(ctx context.Context, args []string) error {
	if c.dryRun {
		c.log.Infof("Dry run: skipping gcloud %s", strings.Join(args, " "))
		return nil
	}
	_, err := c.run(ctx, args)
	return err
}
