package dockerengine

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	dockercontainer "github.com/docker/docker/api/types/container"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
)

// PutFile implements easycontainer.Runtime by archiving a single local file
// into a tar stream and handing it to CopyToContainer, the Docker daemon's
// native file-transfer call (no exec/cat synthesis needed, unlike
// Kubernetes).
func (r *runtime) PutFile(ctx context.Context, h *easycontainer.Handle, localPath, remoteDir, remoteName string) (int64, error) {
	if h.Current() != easycontainer.Running {
		return 0, errs.NewStateError("PutFile", string(h.Current()), string(easycontainer.Running))
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return 0, errs.NewTransferError("PutFile", -1, err.Error())
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return 0, errs.NewTransferError("PutFile", -1, err.Error())
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: remoteName, Mode: int64(info.Mode().Perm()), Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, errs.NewTransferError("PutFile", -1, err.Error())
	}
	if _, err := tw.Write(data); err != nil {
		return 0, errs.NewTransferError("PutFile", -1, err.Error())
	}
	if err := tw.Close(); err != nil {
		return 0, errs.NewTransferError("PutFile", -1, err.Error())
	}

	if err := r.cli.CopyToContainer(ctx, h.ContainerID, remoteDir, &buf, dockercontainer.CopyToContainerOptions{}); err != nil {
		return 0, errs.FromDocker("CopyToContainer", err)
	}
	return int64(len(data)), nil
}

// PutDirectory archives localPath recursively and extracts it at remoteDir.
func (r *runtime) PutDirectory(ctx context.Context, h *easycontainer.Handle, localPath, remoteDir string) (int64, error) {
	if h.Current() != easycontainer.Running {
		return 0, errs.NewStateError("PutDirectory", string(h.Current()), string(easycontainer.Running))
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	var total int64

	walkErr := filepath.Walk(localPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
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
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := io.Copy(tw, f)
		total += n
		return err
	})
	if walkErr != nil {
		return 0, errs.NewTransferError("PutDirectory", -1, walkErr.Error())
	}
	if err := tw.Close(); err != nil {
		return 0, errs.NewTransferError("PutDirectory", -1, err.Error())
	}

	if err := r.cli.CopyToContainer(ctx, h.ContainerID, remoteDir, &buf, dockercontainer.CopyToContainerOptions{}); err != nil {
		return 0, errs.FromDocker("CopyToContainer", err)
	}
	return total, nil
}

// GetFile implements easycontainer.Runtime via CopyFromContainer, unpacking
// the returned single-entry tar stream to localPath.
func (r *runtime) GetFile(ctx context.Context, h *easycontainer.Handle, remoteDir, remoteName, localPath string) (string, error) {
	if h.Current() != easycontainer.Running {
		return "", errs.NewStateError("GetFile", string(h.Current()), string(easycontainer.Running))
	}

	rc, _, err := r.cli.CopyFromContainer(ctx, h.ContainerID, remoteDir+"/"+remoteName)
	if err != nil {
		return "", errs.FromDocker("CopyFromContainer", err)
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	hdr, err := tr.Next()
	if err == io.EOF {
		return "", errs.NewNotFoundError("remote file", remoteName)
	}
	if err != nil {
		return "", errs.NewTransferError("GetFile", -1, err.Error())
	}

	out, err := os.Create(localPath)
	if err != nil {
		return "", errs.NewTransferError("GetFile", -1, err.Error())
	}
	defer out.Close()
	if _, err := io.Copy(out, tr); err != nil {
		return "", errs.NewTransferError("GetFile", -1, err.Error())
	}
	_ = hdr
	return localPath, nil
}

// GetDirectory implements easycontainer.Runtime, extracting every entry of
// the remote tar stream under localDir.
func (r *runtime) GetDirectory(ctx context.Context, h *easycontainer.Handle, remoteDir, localDir string) (easycontainer.DirectoryResult, error) {
	if h.Current() != easycontainer.Running {
		return easycontainer.DirectoryResult{}, errs.NewStateError("GetDirectory", string(h.Current()), string(easycontainer.Running))
	}

	rc, _, err := r.cli.CopyFromContainer(ctx, h.ContainerID, remoteDir)
	if err != nil {
		return easycontainer.DirectoryResult{}, errs.FromDocker("CopyFromContainer", err)
	}
	defer rc.Close()

	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return easycontainer.DirectoryResult{}, errs.NewTransferError("GetDirectory", -1, err.Error())
	}

	var files []string
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return easycontainer.DirectoryResult{}, errs.NewTransferError("GetDirectory", -1, err.Error())
		}

		target := filepath.Join(localDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return easycontainer.DirectoryResult{}, errs.NewTransferError("GetDirectory", -1, err.Error())
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return easycontainer.DirectoryResult{}, errs.NewTransferError("GetDirectory", -1, err.Error())
			}
			f, err := os.Create(target)
			if err != nil {
				return easycontainer.DirectoryResult{}, errs.NewTransferError("GetDirectory", -1, err.Error())
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return easycontainer.DirectoryResult{}, errs.NewTransferError("GetDirectory", -1, err.Error())
			}
			f.Close()
			files = append(files, hdr.Name)
		}
	}

	return easycontainer.DirectoryResult{Parent: localDir, Files: files}, nil
}
