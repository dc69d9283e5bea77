package container

import (
	"os"
	"time"
)

// Config carries the shared resources that must never become load-bearing
// global mutable state: the Docker daemon host, default Kubernetes
// namespace, and the default timeouts each backend uses. A package-level
// DefaultConfig is offered purely for convenience callers; every
// constructor in this module also accepts an explicit Config.
type Config struct {
	// DockerHost is the daemon endpoint, e.g. "unix:///var/run/docker.sock"
	// or "npipe:////./pipe/docker_engine". Empty means resolve from
	// DOCKER_HOST the same way client.FromEnv does.
	DockerHost string

	// KubeconfigPath is the path to a kubeconfig file for out-of-cluster
	// use. Empty means the default in-cluster/out-of-cluster detection
	// order applies.
	KubeconfigPath string

	// DefaultNamespace is used when a ContainerSpec omits Namespace.
	DefaultNamespace string

	// StartTimeout bounds how long Start waits for RUNNING.
	StartTimeout time.Duration

	// StopTimeout bounds how long a Kubernetes SERVICE-mode Stop waits for
	// STOPPED. The Docker backend does not consult it and uses a fixed
	// 10-second grace period.
	StopTimeout time.Duration

	// BuildTimeout is not consulted by pkg/imagebuild: the Kaniko builder
	// waits a fixed 10 minutes for its Job, and Handle.Wait defaults to
	// 10 minutes when given no timeout.
	BuildTimeout time.Duration

	Verbose bool
}

// DefaultConfig returns the package's documented defaults. It reads
// DOCKER_HOST from the environment but is otherwise pure. The backends'
// client libraries read their own environment as well: dockerengine.New
// applies client.FromEnv (DOCKER_* variables) and client-go's in-cluster
// detection reads KUBERNETES_SERVICE_*.
func DefaultConfig() Config {
	return Config{
		DockerHost:       os.Getenv("DOCKER_HOST"),
		DefaultNamespace: "default",
		StartTimeout:     60 * time.Second,
		StopTimeout:      120 * time.Second,
		BuildTimeout:     10 * time.Minute,
	}
}
