// Package dockerengine implements pkg/container.Runtime against a local
// Docker-compatible daemon using the Docker Go SDK (github.com/docker/docker
// client), never shelling out to the docker CLI.
package dockerengine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	winio "github.com/Microsoft/go-winio"
	dockerclient "github.com/docker/docker/client"
	"k8s.io/klog/v2"

	"github.com/acntech/easycontainers/pkg/container"
)

const npipePrefix = "npipe://"

// Engine is a container.Factory bound to one Docker daemon connection.
type Engine struct {
	cli    *dockerclient.Client
	config container.Config
}

// New dials the daemon named by cfg.DockerHost, falling back to the same
// environment-variable resolution client.FromEnv uses (DOCKER_HOST,
// DOCKER_CERT_PATH, DOCKER_TLS_VERIFY) when it is empty. An
// "npipe://./pipe/docker_engine"-style host is dialed over a named pipe via
// go-winio instead of TCP.
func New(cfg container.Config) (*Engine, error) {
	opts := []dockerclient.Opt{
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	}
	if cfg.DockerHost != "" {
		opts = append(opts, dockerclient.WithHost(cfg.DockerHost))
	}
	if strings.HasPrefix(cfg.DockerHost, npipePrefix) {
		opts = append(opts, dockerclient.WithHTTPClient(namedPipeHTTPClient(cfg.DockerHost)))
	}

	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("dockerengine: connect: %w", err)
	}

	if _, err := cli.Ping(context.Background()); err != nil {
		klog.Warningf("dockerengine: daemon ping failed at startup, continuing: %v", err)
	}

	return &Engine{cli: cli, config: cfg}, nil
}

// namedPipeHTTPClient builds an *http.Client that dials the Windows named
// pipe named by an "npipe://" host over go-winio instead of TCP, the same
// transport the Docker CLI itself uses for Docker Desktop on Windows.
func namedPipeHTTPClient(host string) *http.Client {
	pipePath := strings.TrimPrefix(host, npipePrefix)
	pipePath = strings.ReplaceAll(pipePath, "/", `\`)

	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return winio.DialPipeContext(ctx, pipePath)
			},
			IdleConnTimeout: 30 * time.Second,
		},
	}
}

// NewHandle implements container.Factory.
func (e *Engine) NewHandle(spec container.ContainerSpec) *container.Handle {
	return container.NewHandle(spec)
}

// Runtime implements container.Factory.
func (e *Engine) Runtime() container.Runtime {
	return &runtime{cli: e.cli, config: e.config}
}

// Close releases the daemon connection.
func (e *Engine) Close() error {
	return e.cli.Close()
}

// Client exposes the underlying SDK client for callers that need to build a
// daemon-backed image builder (pkg/imagebuild.DaemonBuilder) against the
// same connection this engine runs containers against.
func (e *Engine) Client() *dockerclient.Client { return e.cli }
