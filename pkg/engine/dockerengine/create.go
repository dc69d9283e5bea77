package dockerengine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	networktypes "github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"k8s.io/klog/v2"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
	"github.com/acntech/easycontainers/pkg/validate"
)

// pullIfMissing inspects the image and pulls it only when absent, matching
// Docker's own --pull=missing default policy.
func (r *runtime) pullIfMissing(ctx context.Context, h *easycontainer.Handle) error {
	ref := h.Spec.Reference()
	if _, err := reference.ParseNormalizedNamed(ref); err != nil {
		return errs.NewValidationError("image", fmt.Sprintf("%q is not a valid image reference: %v", ref, err))
	}

	if _, _, err := r.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	} else if !dockerclient.IsErrNotFound(err) {
		return errs.FromDocker("ImageInspect", err)
	}

	rc, err := r.cli.ImagePull(ctx, ref, imagetypes.PullOptions{})
	if err != nil {
		return errs.FromDocker("ImagePull", err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		if r.config.Verbose {
			klog.V(4).Infof("dockerengine: pull %s: %s", ref, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return errs.FromDocker("ImagePull", err)
	}
	return nil
}

// createContainer assembles the Config/HostConfig/NetworkingConfig from a
// ContainerSpec and creates the container, returning its ID.
func (r *runtime) createContainer(ctx context.Context, h *easycontainer.Handle) (string, error) {
	spec := h.Spec

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	exposedPorts, portBindings := buildPortBindings(spec)

	cfg := &container.Config{
		Image:        spec.Reference(),
		Env:          env,
		Labels:       spec.Labels,
		ExposedPorts: exposedPorts,
	}
	cfg.Entrypoint, cfg.Cmd = materializeCommand(spec)

	mounts, err := buildMounts(spec)
	if err != nil {
		return "", err
	}

	hostCfg := &container.HostConfig{
		AutoRemove:   spec.Ephemeral,
		PortBindings: portBindings,
		Mounts:       mounts,
		Resources: container.Resources{
			Memory:   spec.MemoryLimit,
			NanoCPUs: spec.CPULimit * 1_000_000, // milli-CPU -> nano-CPU
		},
	}

	netCfg, err := r.resolveNetwork(ctx, spec, hostCfg)
	if err != nil {
		return "", err
	}

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return "", errs.FromDocker("ContainerCreate", err)
	}
	return resp.ID, nil
}

// materializeCommand returns the Entrypoint/Cmd pair to set on the
// container config. A nil entrypoint leaves the image's own ENTRYPOINT in
// charge; that happens when neither Command nor Args is set, and, under
// "enableNativeDockerEntrypointStrategy", when only Args is set (Args then
// become the Cmd passed to whatever the image already runs). Otherwise the
// default strategy wraps the joined command+args (Args alone when Command
// is empty) in "/bin/sh -c", and "enableNativeDockerEntrypointStrategy"
// opts out of the shell wrap and sets Entrypoint/Cmd directly from
// Command/Args.
func materializeCommand(spec easycontainer.ContainerSpec) (entrypoint, cmd []string) {
	if spec.Command == "" && len(spec.Args) == 0 {
		return nil, nil
	}
	if spec.PropertyBool("enableNativeDockerEntrypointStrategy") {
		if spec.Command == "" {
			return nil, spec.Args
		}
		return []string{spec.Command}, spec.Args
	}
	shellLine := strings.Join(spec.FullCommand(), " ")
	return []string{"/bin/sh", "-c"}, []string{shellLine}
}

func buildPortBindings(spec easycontainer.ContainerSpec) (nat.PortSet, nat.PortMap) {
	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)

	for _, containerPort := range spec.ExposedPorts {
		p := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		exposed[p] = struct{}{}
	}
	for containerPort, hostPort := range spec.PortMappings {
		p := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", hostPort)}}
	}
	return exposed, bindings
}

func buildMounts(spec easycontainer.ContainerSpec) ([]mount.Mount, error) {
	var mounts []mount.Mount

	for _, v := range spec.Volumes {
		if err := validate.UnixPath(v.MountDir); err != nil {
			return nil, err
		}
		switch {
		case v.MemoryBacked:
			mounts = append(mounts, mount.Mount{
				Type:   mount.TypeTmpfs,
				Target: v.MountDir,
				TmpfsOptions: &mount.TmpfsOptions{
					SizeBytes: v.Memory,
				},
			})
		case v.HostDir != "":
			mounts = append(mounts, mount.Mount{
				Type:   mount.TypeBind,
				Source: v.HostDir,
				Target: v.MountDir,
			})
		default:
			mounts = append(mounts, mount.Mount{
				Type:   mount.TypeVolume,
				Source: v.Name,
				Target: v.MountDir,
			})
		}
	}

	for _, cf := range spec.ContainerFiles {
		if err := validate.UnixPath(cf.MountPath); err != nil {
			return nil, err
		}
		if cf.HostFile == "" {
			return nil, errs.NewValidationError("containerFile", fmt.Sprintf("%s: daemon backend requires a materialized host file", cf.Name))
		}
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   cf.HostFile,
			Target:   cf.MountPath,
			ReadOnly: true,
		})
	}

	return mounts, nil
}

// resolveNetwork picks the network mode requested by spec.Network, creating
// a user-defined bridge network on demand when the name isn't one of the
// well-known modes.
func (r *runtime) resolveNetwork(ctx context.Context, spec easycontainer.ContainerSpec, hostCfg *container.HostConfig) (*networktypes.NetworkingConfig, error) {
	if err := validate.NetworkMode(spec.Network); err != nil {
		return nil, err
	}
	if spec.Network == "" || spec.Network == "bridge" || spec.Network == "host" || spec.Network == "none" {
		if spec.Network != "" {
			hostCfg.NetworkMode = container.NetworkMode(spec.Network)
		}
		return nil, nil
	}

	_, err := r.cli.NetworkInspect(ctx, spec.Network, networktypes.InspectOptions{})
	if dockerclient.IsErrNotFound(err) {
		if _, createErr := r.cli.NetworkCreate(ctx, spec.Network, networktypes.CreateOptions{Driver: "bridge"}); createErr != nil {
			return nil, errs.FromDocker("NetworkCreate", createErr)
		}
	} else if err != nil {
		return nil, errs.FromDocker("NetworkInspect", err)
	}

	hostCfg.NetworkMode = container.NetworkMode(spec.Network)
	return &networktypes.NetworkingConfig{
		EndpointsConfig: map[string]*networktypes.EndpointSettings{
			spec.Network: {},
		},
	}, nil
}

// removeTransientNetwork removes a user-defined network this runtime
// created for spec.Network, tolerating "still attached"/not-found races
// from other containers sharing it.
func (r *runtime) removeTransientNetwork(ctx context.Context, h *easycontainer.Handle) error {
	net := h.Spec.Network
	if net == "" || net == "bridge" || net == "host" || net == "none" {
		return nil
	}
	err := r.cli.NetworkRemove(ctx, net)
	if err != nil && !dockerclient.IsErrNotFound(err) {
		return errs.FromDocker("NetworkRemove", err)
	}
	return nil
}
