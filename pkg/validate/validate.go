// Package validate holds the value-object checks ContainerSpec and its
// Builder run at input boundaries: names, namespaces, ports, memory/CPU
// quantities, URLs and paths. It is deliberately one regex+range checker
// per concern rather than a validator type per value object.
package validate

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	goUnits "github.com/docker/go-units"

	"github.com/acntech/easycontainers/pkg/errs"
)

// nameRE matches a DNS-label, the allowed shape for ContainerSpec.Name.
var nameRE = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// envKeyRE matches a POSIX environment variable name.
var envKeyRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Name validates a DNS-label container/workload name, ≤253 chars.
func Name(name string) error {
	if name == "" {
		return errs.NewValidationError("name", "must not be empty")
	}
	if len(name) > 253 {
		return errs.NewValidationError("name", "must be at most 253 characters")
	}
	if !nameRE.MatchString(name) {
		return errs.NewValidationError("name", fmt.Sprintf("%q is not a valid DNS label", name))
	}
	return nil
}

// Namespace validates a Kubernetes-style label, ≤63 chars.
func Namespace(ns string) error {
	if ns == "" {
		return errs.NewValidationError("namespace", "must not be empty")
	}
	if len(ns) > 63 {
		return errs.NewValidationError("namespace", "must be at most 63 characters")
	}
	if !nameRE.MatchString(ns) {
		return errs.NewValidationError("namespace", fmt.Sprintf("%q is not a valid namespace label", ns))
	}
	return nil
}

// Port validates a TCP port number is in the legal 1-65535 range.
func Port(port int) error {
	if port < 1 || port > 65535 {
		return errs.NewValidationError("port", fmt.Sprintf("%d is outside 1-65535", port))
	}
	return nil
}

// EnvKey validates an environment variable name.
func EnvKey(key string) error {
	if !envKeyRE.MatchString(key) {
		return errs.NewValidationError("env", fmt.Sprintf("%q is not a valid environment variable name", key))
	}
	return nil
}

// PrintableASCII validates an environment variable value contains only
// printable ASCII.
func PrintableASCII(value string) error {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < 0x20 || c > 0x7e {
			return errs.NewValidationError("env", fmt.Sprintf("value contains non-printable-ASCII byte at offset %d", i))
		}
	}
	return nil
}

// Memory parses an IEC-suffixed memory quantity ("512m", "1g") into bytes.
// Uses docker/go-units, the same library docker/cli uses for --memory.
func Memory(spec string) (int64, error) {
	if spec == "" {
		return 0, nil
	}
	bytes, err := goUnits.RAMInBytes(spec)
	if err != nil {
		return 0, errs.NewValidationError("memory", err.Error())
	}
	if bytes < 0 {
		return 0, errs.NewValidationError("memory", "must not be negative")
	}
	return bytes, nil
}

// FormatMemory renders a byte count back into an IEC-suffixed string, e.g.
// for embedding into a Kubernetes resource.Quantity or a Docker tmpfs size
// option.
func FormatMemory(bytes int64) string {
	return goUnits.BytesSize(float64(bytes))
}

// CPU validates a milli-CPU quantity is non-negative.
func CPU(milliCPU int64) error {
	if milliCPU < 0 {
		return errs.NewValidationError("cpu", "must not be negative")
	}
	return nil
}

// URL validates a host:port or full URL used for a registry or daemon host.
func URL(raw string) error {
	if raw == "" {
		return errs.NewValidationError("url", "must not be empty")
	}
	if strings.Contains(raw, "://") {
		if _, err := url.Parse(raw); err != nil {
			return errs.NewValidationError("url", err.Error())
		}
		return nil
	}
	// bare host:port form, accepted for registries ("myregistry.local:5000")
	if !strings.Contains(raw, ":") && !strings.Contains(raw, ".") {
		return errs.NewValidationError("url", fmt.Sprintf("%q is not a valid host reference", raw))
	}
	return nil
}

// UnixPath validates a container-side absolute path.
func UnixPath(p string) error {
	if p == "" || !path.IsAbs(p) {
		return errs.NewValidationError("path", fmt.Sprintf("%q must be an absolute unix path", p))
	}
	return nil
}

// NetworkMode validates the supported Docker network modes: bridge, host,
// none, container:<id>, or a user-defined network name.
func NetworkMode(mode string) error {
	if mode == "" || mode == "bridge" || mode == "host" || mode == "none" {
		return nil
	}
	if strings.HasPrefix(mode, "container:") && len(mode) > len("container:") {
		return nil
	}
	return Name(mode)
}
