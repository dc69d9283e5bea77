// Package k8sengine implements pkg/container.Runtime against a remote
// Kubernetes cluster: Deployment+Service for SERVICE-mode ContainerSpecs
// (service.go) and Job for TASK-mode ones (job.go), sharing pod lifecycle
// plumbing in this file and watch.go.
package k8sengine

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"

	"github.com/acntech/easycontainers/pkg/container"
)

// Engine is a container.Factory bound to one cluster connection.
type Engine struct {
	clientset kubernetes.Interface
	restCfg   *rest.Config
	config    container.Config
}

// New resolves a *rest.Config in-cluster first, falling back to
// cfg.KubeconfigPath or ~/.kube/config.
func New(cfg container.Config) (*Engine, error) {
	restCfg, err := resolveConfig(cfg.KubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("k8sengine: resolve kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("k8sengine: build clientset: %w", err)
	}

	if cfg.DefaultNamespace == "" {
		cfg.DefaultNamespace = "default"
	}
	return &Engine{clientset: clientset, restCfg: restCfg, config: cfg}, nil
}

// NewFromClientset wires a pre-built clientset (the fake clientset in
// tests, or a caller-managed real one) instead of resolving kubeconfig.
func NewFromClientset(clientset kubernetes.Interface, restCfg *rest.Config, cfg container.Config) *Engine {
	if cfg.DefaultNamespace == "" {
		cfg.DefaultNamespace = "default"
	}
	return &Engine{clientset: clientset, restCfg: restCfg, config: cfg}
}

func resolveConfig(kubeconfigPath string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	path := kubeconfigPath
	if path == "" {
		if home := homedir.HomeDir(); home != "" {
			path = filepath.Join(home, ".kube", "config")
		}
	}
	return clientcmd.BuildConfigFromFlags("", path)
}

// NewHandle implements container.Factory.
func (e *Engine) NewHandle(spec container.ContainerSpec) *container.Handle {
	if spec.Namespace == "" {
		spec.Namespace = e.config.DefaultNamespace
	}
	return container.NewHandle(spec)
}

// Runtime implements container.Factory.
func (e *Engine) Runtime() container.Runtime {
	return &runtime{clientset: e.clientset, restCfg: e.restCfg, config: e.config}
}

// Clientset exposes the underlying clientset for callers that need to build
// a Kaniko image builder (pkg/imagebuild) against the same cluster
// connection this engine runs containers against.
func (e *Engine) Clientset() kubernetes.Interface { return e.clientset }

// RestConfig exposes the resolved *rest.Config, needed by remotecommand's
// SPDY executor for the same reason as Clientset.
func (e *Engine) RestConfig() *rest.Config { return e.restCfg }

// instanceID labels every resource a Start call creates with a shared
// random UUID, so Deployment/Service/Job/ConfigMap/pods for one handle can
// be found and torn down together.
func instanceID() string {
	return uuid.NewString()
}

func defaultLabels(spec container.ContainerSpec, instance string) map[string]string {
	labels := map[string]string{
		"app.kubernetes.io/name":       spec.Name,
		"app.kubernetes.io/instance":   instance,
		"app.kubernetes.io/managed-by": "easycontainers",
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	return labels
}
