package container

import "time"

// Platform selects which backend realizes a ContainerSpec.
type Platform string

const (
	Docker     Platform = "DOCKER"
	Kubernetes Platform = "KUBERNETES"
)

// ExecutionMode distinguishes a long-running workload from a run-to-completion one.
type ExecutionMode string

const (
	Service ExecutionMode = "SERVICE"
	Task    ExecutionMode = "TASK"
)

// Volume is a mount point inside the container, backed either by a host
// directory (Docker only), a pre-existing named/PVC volume, or memory.
type Volume struct {
	Name         string
	MountDir     string // unix absolute path inside the container
	HostDir      string // Docker only; mutually exclusive with MemoryBacked
	MemoryBacked bool
	Memory       int64 // bytes; SHOULD be set when MemoryBacked
}

// ContainerFile materializes a single file inside the container: a
// ConfigMap+subPath mount on Kubernetes, a bind-mounted host file on
// Docker (synthesized from Content if HostFile is empty).
type ContainerFile struct {
	Name      string
	MountPath string // target path inside the container
	Content   string
	HostFile  string
}

// SecretKeyRef is a Kubernetes secretKeyRef source for an environment
// variable.
type SecretKeyRef struct {
	Name string
	Key  string
}

// ContainerSpec is the immutable, validated configuration fed to a
// runtime. It is produced only by Builder.Build and never mutated after
// construction.
type ContainerSpec struct {
	Platform      Platform
	ExecutionMode ExecutionMode

	Name      string
	Namespace string

	// Image reference components; Reference() renders the
	// full registry/repository/image:tag string.
	Registry   string
	Repository string
	Image      string
	Tag        string

	Env    map[string]string
	Labels map[string]string

	Command string
	Args    []string

	ExposedPorts map[string]int // symbolic name -> container port
	PortMappings map[int]int    // container port -> host port

	Network string

	CPURequest    int64 // milli-units
	CPULimit      int64
	MemoryRequest int64 // bytes
	MemoryLimit   int64

	Ephemeral   bool
	MaxLifeTime time.Duration

	Volumes        []Volume
	ContainerFiles []ContainerFile

	SecretKeyRefs map[string]SecretKeyRef
	ConfigMapRefs []string

	OutputLineFunc func(line string)

	// Properties is the custom property bag, e.g.
	// "enableNativeDockerEntrypointStrategy".
	Properties map[string]any
}

// Reference renders the full image reference string.
func (s ContainerSpec) Reference() string {
	ref := s.Image
	if s.Repository != "" {
		ref = s.Repository + "/" + ref
	}
	if s.Registry != "" {
		ref = s.Registry + "/" + ref
	}
	if s.Tag != "" {
		ref = ref + ":" + s.Tag
	}
	return ref
}

// FullCommand joins Command and Args for command materialization. Args
// alone (Command empty) is legal and yields just Args; nil when both are
// empty.
func (s ContainerSpec) FullCommand() []string {
	if s.Command == "" && len(s.Args) == 0 {
		return nil
	}
	cmd := make([]string, 0, len(s.Args)+1)
	if s.Command != "" {
		cmd = append(cmd, s.Command)
	}
	cmd = append(cmd, s.Args...)
	return cmd
}

// PropertyBool reads a boolean custom property, e.g.
// enableNativeDockerEntrypointStrategy, defaulting to false when absent or
// of the wrong type.
func (s ContainerSpec) PropertyBool(key string) bool {
	if s.Properties == nil {
		return false
	}
	if v, ok := s.Properties[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
