package k8sutil

import (
	"context"
	"time"

	"github.com/karlseguin/ccache"
	"github.com/pkg/errors"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	// deploymentsTTL bounds how long a namespace listing is reused within a
	// scan.
	deploymentsTTL = time.Minute * 5
)

// deploymentCache memoizes Deployment listings per namespace so that several
// PodDisruptionBudgets in one namespace cost a single API call.
type deploymentCache struct {
	kube  kubernetes.Interface
	cache *ccache.Cache
}

func newDeploymentCache(kube kubernetes.Interface) *deploymentCache {
	return &deploymentCache{
		kube:  kube,
		cache: ccache.New(ccache.Configure().MaxSize(1000).ItemsToPrune(100)),
	}
}

// Namespace returns the Deployments in ns, listing them on a cache miss.
func (d *deploymentCache) Namespace(ctx context.Context, ns string) ([]appsv1.Deployment, error) {
	item, err := d.cache.Fetch(ns, deploymentsTTL, func() (interface{}, error) {
		list, err := d.kube.AppsV1().Deployments(ns).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, errors.Wrapf(err, "list deployments in namespace %q", ns)
		}
		return list.Items, nil
	})
	if err != nil {
		return nil, err
	}
	deployments, ok := item.Value().([]appsv1.Deployment)
	if !ok {
		return nil, errors.Errorf("unexpected cached value for namespace %q", ns)
	}
	return deployments, nil
}

// Seed records a listing obtained elsewhere, ie: from an all-namespaces list.
func (d *deploymentCache) Seed(items []appsv1.Deployment) {
	byNamespace := make(map[string][]appsv1.Deployment)
	for _, item := range items {
		byNamespace[item.Namespace] = append(byNamespace[item.Namespace], item)
	}
	for ns, deployments := range byNamespace {
		d.cache.Set(ns, deployments, deploymentsTTL)
	}
}

func (d *deploymentCache) Stop() {
	d.cache.Stop()
}
