package errs

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
)

// FromDocker classifies an error returned by the Docker daemon API into the
// taxonomy. errdefs is the same classification library containerd and
// docker/cli use against daemon responses, so this stays accurate across
// daemon versions instead of matching on message text.
func FromDocker(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errdefs.IsNotFound(err):
		return NewNotFoundError("docker resource", op)
	case errdefs.IsConflict(err), errdefs.IsAlreadyExists(err):
		return NewBackendError("docker", op, errors.WithMessage(err, "conflict"))
	case errdefs.IsDeadlineExceeded(err), errdefs.IsCanceled(err):
		return NewTimeoutError(op, "context")
	default:
		return NewBackendError("docker", op, err)
	}
}

// FromKubernetes classifies an error returned by the Kubernetes API server
// using the apimachinery errors.IsNotFound/IsForbidden/IsUnauthorized/
// IsTimeout/IsServerTimeout helpers.
func FromKubernetes(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case k8serrors.IsNotFound(err):
		return NewNotFoundError("kubernetes resource", op)
	case k8serrors.IsForbidden(err), k8serrors.IsUnauthorized(err):
		return NewPermissionError(op, "kubernetes", err.Error())
	case k8serrors.IsTimeout(err), k8serrors.IsServerTimeout(err):
		return NewTimeoutError(op, "context")
	default:
		return NewBackendError("kubernetes", op, err)
	}
}
