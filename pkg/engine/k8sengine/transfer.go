package k8sengine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
)

// Kubernetes has no native copy-to-pod call (unlike Docker's
// CopyToContainer/CopyFromContainer), so every transfer is synthesized via
// exec: PutFile, PutDirectory and GetDirectory pipe a tar stream through
// `tar`, and GetFile streams the file's bytes out with `cat`.

// PutFile implements easycontainer.Runtime by tarring localPath in memory
// and piping it into `tar -xf - -C remoteDir` inside the pod.
func (r *runtime) PutFile(ctx context.Context, h *easycontainer.Handle, localPath, remoteDir, remoteName string) (int64, error) {
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
	if err := tw.WriteHeader(&tar.Header{Name: remoteName, Mode: int64(info.Mode().Perm()), Size: int64(len(data))}); err != nil {
		return 0, errs.NewTransferError("PutFile", -1, err.Error())
	}
	if _, err := tw.Write(data); err != nil {
		return 0, errs.NewTransferError("PutFile", -1, err.Error())
	}
	if err := tw.Close(); err != nil {
		return 0, errs.NewTransferError("PutFile", -1, err.Error())
	}

	if err := r.execUntar(ctx, h, remoteDir, &buf); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// PutDirectory tars localPath recursively and extracts it at remoteDir.
func (r *runtime) PutDirectory(ctx context.Context, h *easycontainer.Handle, localPath, remoteDir string) (int64, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	var total int64

	walkErr := filepath.Walk(localPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localPath, p)
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

	if err := r.execUntar(ctx, h, remoteDir, &buf); err != nil {
		return 0, err
	}
	return total, nil
}

// execUntar creates dir (`mkdir -p`) and pipes tarData into
// `tar -xf - -C dir` inside the pod's main container.
func (r *runtime) execUntar(ctx context.Context, h *easycontainer.Handle, dir string, tarData io.Reader) error {
	result, err := r.Execute(ctx, h, easycontainer.ExecRequest{
		Command: "sh",
		Args:    []string{"-c", `mkdir -p "$1" && tar -xf - -C "$1"`, "sh", dir},
		Input:   tarData,
	})
	if err != nil {
		return err
	}
	if result.ExitCode == nil {
		return errs.NewTimeoutError("PutFile/PutDirectory", "exec")
	}
	if *result.ExitCode != 0 {
		return errs.NewTransferError("untar", *result.ExitCode, result.Stderr)
	}
	return nil
}

// GetFile implements easycontainer.Runtime via `cat remoteDir/remoteName`,
// writing the raw stdout to localPath.
func (r *runtime) GetFile(ctx context.Context, h *easycontainer.Handle, remoteDir, remoteName, localPath string) (string, error) {
	out, err := os.Create(localPath)
	if err != nil {
		return "", errs.NewTransferError("GetFile", -1, err.Error())
	}
	defer out.Close()

	result, err := r.Execute(ctx, h, easycontainer.ExecRequest{
		Command: "cat",
		Args:    []string{fmt.Sprintf("%s/%s", remoteDir, remoteName)},
		Output:  out,
	})
	if err != nil {
		return "", err
	}
	if result.ExitCode == nil {
		return "", errs.NewTimeoutError("GetFile", "exec")
	}
	if *result.ExitCode != 0 {
		return "", errs.NewNotFoundError("remote file", remoteName)
	}
	return localPath, nil
}

// GetDirectory implements easycontainer.Runtime via `tar -cf - -C remoteDir
// .`, extracting the resulting stream under localDir.
func (r *runtime) GetDirectory(ctx context.Context, h *easycontainer.Handle, remoteDir, localDir string) (easycontainer.DirectoryResult, error) {
	var buf bytes.Buffer
	result, err := r.Execute(ctx, h, easycontainer.ExecRequest{
		Command: "tar",
		Args:    []string{"-cf", "-", "-C", remoteDir, "."},
		Output:  &buf,
	})
	if err != nil {
		return easycontainer.DirectoryResult{}, err
	}
	if result.ExitCode == nil {
		return easycontainer.DirectoryResult{}, errs.NewTimeoutError("GetDirectory", "exec")
	}
	if *result.ExitCode != 0 {
		return easycontainer.DirectoryResult{}, errs.NewTransferError("tar", *result.ExitCode, result.Stderr)
	}

	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return easycontainer.DirectoryResult{}, errs.NewTransferError("GetDirectory", -1, err.Error())
	}

	var files []string
	tr := tar.NewReader(&buf)
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
