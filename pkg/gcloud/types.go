package gcloud

import "github.com/devops-toolbox/nodepool-upgrader/pkg/safety"

// clusterDescription is the subset of `clusters describe --format=json`
// that is used.
type clusterDescription struct {
	Name                 string `json:"name"`
	CurrentMasterVersion string `json:"currentMasterVersion"`
}

// nodePool is an entry of `node-pools list --format=json`.
type nodePool struct {
	Name            string           `json:"name"`
	Version         string           `json:"version"`
	UpgradeSettings *upgradeSettings `json:"upgradeSettings,omitempty"`
}

// upgradeSettings fields are pointers so absent values can be told apart
// from explicit zeroes.
type upgradeSettings struct {
	MaxSurge       *int `json:"maxSurge,omitempty"`
	MaxUnavailable *int `json:"maxUnavailable,omitempty"`
}

func (np *nodePool) toNodePool() safety.NodePool {
	p := safety.NodePool{
		Name:           np.Name,
		Version:        np.Version,
		MaxSurge:       safety.DefaultMaxSurge,
		MaxUnavailable: safety.DefaultMaxUnavailable,
	}
	if s := np.UpgradeSettings; s != nil {
		if s.MaxSurge != nil {
			p.MaxSurge = *s.MaxSurge
		}
		if s.MaxUnavailable != nil {
			p.MaxUnavailable = *s.MaxUnavailable
		}
	}
	return p
}
