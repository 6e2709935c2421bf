package logfields

import (
	"github.com/devops-toolbox/nodepool-upgrader/pkg/safety"

	"github.com/sirupsen/logrus"
)

func Pool(p safety.NodePool) logrus.Fields {
	return logrus.Fields{
		"nodepool": p.Name,
		"version":  p.Version,
	}
}

func Workload(w safety.Workload) logrus.Fields {
	return logrus.Fields{
		"workload": w.Key().String(),
		"replicas": w.Replicas,
	}
}
