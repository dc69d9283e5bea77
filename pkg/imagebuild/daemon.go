package imagebuild

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	dockertypes "github.com/docker/docker/api/types"
	imagetypes "github.com/docker/docker/api/types/image"
	registrytypes "github.com/docker/docker/api/types/registry"
	dockerclient "github.com/docker/docker/client"

	"github.com/acntech/easycontainers/pkg/errs"
)

// DaemonBuilder implements Builder against a local Docker daemon's native
// build API (docker/docker/client ImageBuild/ImagePush), the fallback
// builder used when no cluster is available for a Kaniko build.
type DaemonBuilder struct {
	cli *dockerclient.Client
}

func NewDaemonBuilder(cli *dockerclient.Client) *DaemonBuilder {
	return &DaemonBuilder{cli: cli}
}

// Build implements Builder.
func (b *DaemonBuilder) Build(ctx context.Context, req Request) (*Handle, error) {
	h := NewHandle(req)
	go b.run(ctx, h)
	return h, nil
}

func (b *DaemonBuilder) run(ctx context.Context, h *Handle) {
	h.setState(InProgress)
	req := h.Request

	dockerfilePath := req.DockerfilePath
	if dockerfilePath == "" {
		dockerfilePath = "Dockerfile"
	}

	contextTar, err := tarDirectory(req.ContextDir)
	if err != nil {
		h.fail(errs.NewBuildError("daemon", "tar build context", err))
		return
	}

	resp, err := b.cli.ImageBuild(ctx, contextTar, dockertypes.ImageBuildOptions{
		Dockerfile: dockerfilePath,
		Tags:       []string{req.Image},
		BuildArgs:  toPtrMap(req.BuildArgs),
		Remove:     true,
	})
	if err != nil {
		h.fail(errs.FromDocker("ImageBuild", err))
		return
	}
	defer resp.Body.Close()

	if err := drainBuildOutput(resp.Body); err != nil {
		h.fail(errs.NewBuildError("daemon", "build output", err))
		return
	}

	if !req.Push {
		h.complete(Result{Image: req.Image})
		return
	}

	if err := b.push(ctx, req); err != nil {
		h.fail(err)
		return
	}

	digest, err := verifyPushed(req.Image)
	if err != nil {
		h.fail(err)
		return
	}
	h.complete(Result{Image: req.Image, Digest: digest})
}

// push uploads the built image via ImagePush, authenticating with the
// X-Registry-Auth header the Docker API expects: a base64-encoded
// AuthConfig JSON.
func (b *DaemonBuilder) push(ctx context.Context, req Request) error {
	authCfg := registrytypes.AuthConfig{
		Username:      req.RegistryUsername,
		Password:      req.RegistryPassword,
		ServerAddress: registryHost(req.Image),
	}
	encoded, err := json.Marshal(authCfg)
	if err != nil {
		return errs.NewBuildError("daemon", "encode registry auth", err)
	}

	rc, err := b.cli.ImagePush(ctx, req.Image, imagetypes.PushOptions{
		RegistryAuth: base64.URLEncoding.EncodeToString(encoded),
	})
	if err != nil {
		return errs.FromDocker("ImagePush", err)
	}
	defer rc.Close()
	if err := drainBuildOutput(rc); err != nil {
		return errs.NewBuildError("daemon", "push output", err)
	}
	return nil
}

// drainBuildOutput reads the ImageBuild/ImagePush JSON-lines stream,
// surfacing the first error message the daemon reports.
func drainBuildOutput(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg struct {
			Error string `json:"error"`
		}
		if err := dec.Decode(&msg); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if msg.Error != "" {
			return fmt.Errorf("%s", msg.Error)
		}
	}
}

func toPtrMap(m map[string]string) map[string]*string {
	out := make(map[string]*string, len(m))
	for k, v := range m {
		v := v
		out[k] = &v
	}
	return out
}

// tarDirectory archives dir into an in-memory tar stream for ImageBuild's
// build-context argument.
func tarDirectory(dir string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil || rel == "." {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, ferr := os.Open(p)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		_, werr := io.Copy(tw, f)
		return werr
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
