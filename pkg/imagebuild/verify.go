package imagebuild

import (
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/acntech/easycontainers/pkg/errs"
)

// verifyPushed confirms a just-pushed tag actually resolves in its
// registry and returns its digest, so a build that reports success
// because the daemon/Kaniko exit code was 0 doesn't mask a registry-side
// rejection (e.g. an admission webhook silently dropping the manifest).
func verifyPushed(ref string) (string, error) {
	tag, err := name.ParseReference(ref)
	if err != nil {
		return "", errs.NewBuildError("verify", "parse pushed reference", err)
	}

	desc, err := remote.Head(tag)
	if err != nil {
		return "", errs.NewBuildError("verify", "pushed tag not resolvable", err)
	}
	return desc.Digest.String(), nil
}
