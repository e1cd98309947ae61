package internal

import (
	"time"

	"k8s.io/client-go/kubernetes"

	"go.eggybyte.com/usagemon/core/log"
)

// SourcesOptions selects the optional layers above the environment.
type SourcesOptions struct {
	ConfigFile    string               // YAML/JSON file layer; empty disables it
	FileInterval  time.Duration        // File polling interval
	ConfigMapName string               // ConfigMap layer; empty disables it
	Namespace     string               // ConfigMap namespace
	Client        kubernetes.Interface // ConfigMap client override
	Logger        log.Logger
}

// BuildSources returns the layers in precedence order: environment, then the
// config file, then the ConfigMap.
func BuildSources(opts SourcesOptions) ([]Source, error) {
	sources := []Source{NewEnvSource(EnvOptions{})}

	if opts.ConfigFile != "" {
		sources = append(sources, NewFileSource(opts.ConfigFile, FileOptions{
			Watch:    true,
			Interval: opts.FileInterval,
			Logger:   opts.Logger,
		}))
	}

	if opts.ConfigMapName != "" {
		cm, err := NewK8sConfigMapSource(opts.ConfigMapName, K8sOptions{
			Namespace: opts.Namespace,
			Logger:    opts.Logger,
			Client:    opts.Client,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, cm)
	}

	return sources, nil
}
