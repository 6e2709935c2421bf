package k8sutil

import (
	"github.com/pkg/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewDefaultConfig loads kubeconfig from the environment based on the default
// SDK behavior - that is, this respects `$KUBECONFIG` and the current context
// written by `gcloud container clusters get-credentials`. An explicit path
// takes precedence when given.
func NewDefaultConfig(kubeconfig string) (*rest.Config, error) {
	loadrules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadrules.ExplicitPath = kubeconfig
	}
	overrides := clientcmd.ConfigOverrides{}
	configLoader := clientcmd.
		NewNonInteractiveDeferredLoadingClientConfig(loadrules, &overrides)
	config, loadErr := configLoader.ClientConfig()
	if loadErr != nil {
		return nil, errors.Wrap(loadErr, "could not load kubeconfig with default loader")
	}
	return config, nil
}

func DefaultKubernetesClient(kubeconfig string) (*kubernetes.Clientset, error) {
	config, configErr := NewDefaultConfig(kubeconfig)
	if configErr != nil {
		return nil, configErr
	}

	return kubernetes.NewForConfig(config)
}
