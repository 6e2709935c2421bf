package k8sutil

import (
	"context"
	"sort"

	"github.com/devops-toolbox/nodepool-upgrader/pkg/logging"
	"github.com/devops-toolbox/nodepool-upgrader/pkg/safety"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

// Scanner collects the workload facts needed to judge upgrade risk.
type Scanner struct {
	log         logging.Logger
	kube        kubernetes.Interface
	evaluator   safety.Evaluator
	deployments *deploymentCache
}

// NewScanner creates a Scanner treating workloads with fragileReplicas or
// fewer replicas as fragile.
func NewScanner(log logging.Logger, kube kubernetes.Interface, fragileReplicas int32) *Scanner {
	return &Scanner{
		log:         log,
		kube:        kube,
		evaluator:   safety.Evaluator{FragileReplicas: fragileReplicas},
		deployments: newDeploymentCache(kube),
	}
}

// Close releases the scanner's cache.
func (s *Scanner) Close() {
	s.deployments.Stop()
}

// FragileWorkloads returns the Deployments, across all namespaces, whose
// replica count leaves no spare pod while a node drains. Results are sorted
// by namespace and name.
func (s *Scanner) FragileWorkloads(ctx context.Context) ([]safety.Workload, error) {
	s.log.Info("Checking deployments for replica count")
	list, err := s.kube.AppsV1().Deployments(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "list deployments")
	}
	s.deployments.Seed(list.Items)

	var fragile []safety.Workload
	for i := range list.Items {
		w := workloadOf(&list.Items[i])
		if s.evaluator.Fragile(w) {
			fragile = append(fragile, w)
		}
	}
	sort.Slice(fragile, func(i, j int) bool {
		if fragile[i].Namespace != fragile[j].Namespace {
			return fragile[i].Namespace < fragile[j].Namespace
		}
		return fragile[i].Name < fragile[j].Name
	})
	return fragile, nil
}

// DisruptionCoverage returns the Deployments whose pods are selected by at
// least one PodDisruptionBudget in their namespace. Budgets without a
// selector select nothing; budgets with an unparseable selector are skipped.
func (s *Scanner) DisruptionCoverage(ctx context.Context) (safety.Coverage, error) {
	s.log.Info("Checking PodDisruptionBudget coverage")
	pdbs, err := s.kube.PolicyV1().PodDisruptionBudgets(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "list poddisruptionbudgets")
	}

	covered := safety.NewCoverage()
	for _, pdb := range pdbs.Items {
		log := s.log.WithFields(logrus.Fields{
			"pdb": pdb.Namespace + "/" + pdb.Name,
		})
		if pdb.Spec.Selector == nil {
			log.Debug("budget has no selector")
			continue
		}
		selector, err := metav1.LabelSelectorAsSelector(pdb.Spec.Selector)
		if err != nil {
			log.WithError(err).Warn("skipping budget with invalid selector")
			continue
		}
		deployments, err := s.deployments.Namespace(ctx, pdb.Namespace)
		if err != nil {
			return nil, err
		}
		for i := range deployments {
			d := &deployments[i]
			if selector.Matches(labels.Set(d.Spec.Template.Labels)) {
				log.WithField("deployment", d.Name).Debug("covered by budget")
				covered.Add(safety.WorkloadKey{Namespace: d.Namespace, Name: d.Name})
			}
		}
	}
	return covered, nil
}

func workloadOf(d *appsv1.Deployment) safety.Workload {
	// The API server defaults an unset replica count to 1.
	replicas := int32(1)
	if d.Spec.Replicas != nil {
		replicas = *d.Spec.Replicas
	}
	return safety.Workload{Namespace: d.Namespace, Name: d.Name, Replicas: replicas}
}
