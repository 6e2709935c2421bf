package safety

import "fmt"

const (
	// DefaultMaxSurge applies when a pool reports no surge setting.
	DefaultMaxSurge = 0
	// DefaultMaxUnavailable applies when a pool reports no unavailability
	// setting.
	DefaultMaxUnavailable = 1
	// DefaultFragileReplicas is the replica count at or below which a
	// workload has no spare capacity during a node drain.
	DefaultFragileReplicas = 1
)

// NodePool is a group of nodes upgraded as a unit.
type NodePool struct {
	Name           string
	Version        string
	MaxSurge       int
	MaxUnavailable int
}

// Workload is a replicated workload, ie: a Deployment.
type Workload struct {
	Namespace string
	Name      string
	Replicas  int32
}

// Key identifies the workload for coverage lookups.
func (w Workload) Key() WorkloadKey {
	return WorkloadKey{Namespace: w.Namespace, Name: w.Name}
}

// WorkloadKey is the (namespace, name) pair of a workload.
type WorkloadKey struct {
	Namespace string
	Name      string
}

func (k WorkloadKey) String() string {
	return fmt.Sprintf("%s/%s", k.Namespace, k.Name)
}

// Coverage is the set of workloads selected by at least one
// PodDisruptionBudget.
type Coverage map[WorkloadKey]struct{}

// NewCoverage builds a Coverage holding keys.
func NewCoverage(keys ...WorkloadKey) Coverage {
	c := make(Coverage, len(keys))
	for _, k := range keys {
		c.Add(k)
	}
	return c
}

func (c Coverage) Add(k WorkloadKey) {
	c[k] = struct{}{}
}

func (c Coverage) Has(k WorkloadKey) bool {
	_, ok := c[k]
	return ok
}
