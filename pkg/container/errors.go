package container

import "github.com/acntech/easycontainers/pkg/errs"

func errNameRequired() error {
	return errs.NewValidationError("name", "must be set")
}

func errImageRequired() error {
	return errs.NewValidationError("image", "must be set")
}

func errVolumeMemoryAndHostDir(name string) error {
	return errs.NewValidationError("volume."+name, "memory-backed volumes must not set hostDir")
}

func errContainerFileEmpty(name string) error {
	return errs.NewValidationError("containerFile."+name, "must set either content or hostFile")
}
