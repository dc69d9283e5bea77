// Package easycontainers is the module's public entry point: one Manager
// picks a runtime by ContainerSpec.Platform and owns the shared kill-timer
// and task-pool executors, so nothing in this module reaches for global
// mutable state.
package easycontainers

import "github.com/acntech/easycontainers/pkg/container"

// Config parameterizes a Manager. It embeds container.Config (Docker host,
// default namespace, timeouts) and adds the in-cluster image-build
// settings: an empty KanikoNamespace means Build falls back to the local
// Docker daemon's native build API instead of a Kaniko Job.
type Config struct {
	container.Config

	KanikoNamespace string
	KanikoPVCName   string
}

// DefaultConfig returns container.DefaultConfig() with Kaniko disabled.
func DefaultConfig() Config {
	return Config{Config: container.DefaultConfig()}
}
