package easycontainers

import "github.com/acntech/easycontainers/pkg/container"

// Re-exported so the common path needs only this one import.
type (
	ContainerSpec = container.ContainerSpec
	Handle        = container.Handle
	Volume        = container.Volume
	ContainerFile = container.ContainerFile
	SecretKeyRef  = container.SecretKeyRef
	State         = container.State
	Platform      = container.Platform
	ExecutionMode = container.ExecutionMode
	ExecRequest   = container.ExecRequest
	ExecResult    = container.ExecResult
)

const (
	Docker     = container.Docker
	Kubernetes = container.Kubernetes
	Service    = container.Service
	Task       = container.Task
)

// NewBuilder starts a ContainerSpec builder (pkg/container.Builder).
func NewBuilder() *container.Builder { return container.NewBuilder() }
