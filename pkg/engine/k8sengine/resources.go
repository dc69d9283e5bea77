package k8sengine

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/klog/v2"

	"github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
	"github.com/acntech/easycontainers/pkg/validate"
)

// ensureNamespace creates the namespace if it doesn't already exist,
// tolerating the AlreadyExists race from a concurrent Start.
func (r *runtime) ensureNamespace(ctx context.Context, namespace string) error {
	_, err := r.clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return errs.FromKubernetes("NamespaceGet", err)
	}

	_, err = r.clientset.CoreV1().Namespaces().Create(ctx, &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: namespace},
	}, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return errs.FromKubernetes("NamespaceCreate", err)
	}
	return nil
}

// containerFilesConfigMap materializes a ContainerSpec's ContainerFiles as
// a single ConfigMap, one data key per file, mounted back with subPath so
// each file lands at its own MountPath.
func (r *runtime) containerFilesConfigMap(ctx context.Context, namespace, name string, labels map[string]string, files []container.ContainerFile) (*corev1.ConfigMap, error) {
	if len(files) == 0 {
		return nil, nil
	}

	data := make(map[string]string, len(files))
	for _, f := range files {
		if f.Content == "" && f.HostFile == "" {
			return nil, errs.NewValidationError("containerFile", fmt.Sprintf("%s: requires Content or HostFile", f.Name))
		}
		data[f.Name] = f.Content
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Data:       data,
	}
	created, err := r.clientset.CoreV1().ConfigMaps(namespace).Create(ctx, cm, metav1.CreateOptions{})
	if err != nil {
		return nil, errs.FromKubernetes("ConfigMapCreate", err)
	}
	return created, nil
}

// buildContainer translates a ContainerSpec into the single corev1.Container
// shared by both Deployment pods and Job pods.
func buildContainer(spec container.ContainerSpec, configMapName string) corev1.Container {
	c := corev1.Container{
		Name:  "main",
		Image: spec.Reference(),
	}

	// A non-empty Command overrides the image's ENTRYPOINT; Args alone
	// (Command empty) leaves Command unset so the image's own ENTRYPOINT
	// runs with Args as its arguments.
	if spec.Command != "" {
		c.Command = []string{spec.Command}
	}
	c.Args = spec.Args

	for k, v := range spec.Env {
		c.Env = append(c.Env, corev1.EnvVar{Name: k, Value: v})
	}
	for envName, ref := range spec.SecretKeyRefs {
		c.Env = append(c.Env, corev1.EnvVar{
			Name: envName,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: ref.Name},
					Key:                  ref.Key,
				},
			},
		})
	}
	for _, cmName := range spec.ConfigMapRefs {
		c.EnvFrom = append(c.EnvFrom, corev1.EnvFromSource{
			ConfigMapRef: &corev1.ConfigMapEnvSource{LocalObjectReference: corev1.LocalObjectReference{Name: cmName}},
		})
	}

	for name, port := range spec.ExposedPorts {
		c.Ports = append(c.Ports, corev1.ContainerPort{Name: name, ContainerPort: int32(port)})
	}

	c.Resources = buildResources(spec)
	c.VolumeMounts = buildVolumeMounts(spec, configMapName)

	return c
}

func buildResources(spec container.ContainerSpec) corev1.ResourceRequirements {
	req := corev1.ResourceRequirements{
		Requests: corev1.ResourceList{},
		Limits:   corev1.ResourceList{},
	}
	if spec.CPURequest > 0 {
		req.Requests[corev1.ResourceCPU] = *resource.NewMilliQuantity(spec.CPURequest, resource.DecimalSI)
	}
	if spec.CPULimit > 0 {
		req.Limits[corev1.ResourceCPU] = *resource.NewMilliQuantity(spec.CPULimit, resource.DecimalSI)
	}
	if spec.MemoryRequest > 0 {
		req.Requests[corev1.ResourceMemory] = *resource.NewQuantity(spec.MemoryRequest, resource.BinarySI)
	}
	if spec.MemoryLimit > 0 {
		req.Limits[corev1.ResourceMemory] = *resource.NewQuantity(spec.MemoryLimit, resource.BinarySI)
	}
	return req
}

// buildVolumeMounts assembles VolumeMounts for named volumes and, when a
// ConfigMap exists, one subPath mount per ContainerFile.
func buildVolumeMounts(spec container.ContainerSpec, configMapName string) []corev1.VolumeMount {
	var mounts []corev1.VolumeMount
	for _, v := range spec.Volumes {
		mounts = append(mounts, corev1.VolumeMount{Name: v.Name, MountPath: v.MountDir})
	}
	if configMapName != "" {
		for _, f := range spec.ContainerFiles {
			mounts = append(mounts, corev1.VolumeMount{
				Name:      configMapName,
				MountPath: f.MountPath,
				SubPath:   f.Name,
				ReadOnly:  true,
			})
		}
	}
	return mounts
}

// buildVolumes assembles the pod-level Volumes matching buildVolumeMounts:
// PVC for a named volume that isn't memory-backed, emptyDir{Medium:Memory}
// otherwise, plus the ConfigMap volume for container files.
func buildVolumes(spec container.ContainerSpec, configMapName string) []corev1.Volume {
	var volumes []corev1.Volume
	for _, v := range spec.Volumes {
		if v.MemoryBacked {
			sizeLimit := resource.NewQuantity(v.Memory, resource.BinarySI)
			volumes = append(volumes, corev1.Volume{
				Name: v.Name,
				VolumeSource: corev1.VolumeSource{
					EmptyDir: &corev1.EmptyDirVolumeSource{
						Medium:    corev1.StorageMediumMemory,
						SizeLimit: sizeLimit,
					},
				},
			})
			continue
		}
		volumes = append(volumes, corev1.Volume{
			Name: v.Name,
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: v.Name},
			},
		})
	}
	if configMapName != "" {
		volumes = append(volumes, corev1.Volume{
			Name: configMapName,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: configMapName},
				},
			},
		})
	}
	return volumes
}

// validateSpecForKubernetes runs the Kubernetes-specific checks a
// ContainerSpec must satisfy beyond Builder.Build's generic validation.
// A mapped host port outside the NodePort range (30000-32767) is logged as
// a warning, not rejected.
func validateSpecForKubernetes(spec container.ContainerSpec) error {
	for containerPort, hostPort := range spec.PortMappings {
		if err := validate.Port(containerPort); err != nil {
			return err
		}
		if hostPort != 0 && (hostPort < 30000 || hostPort > 32767) {
			klog.Warningf("k8sengine: NodePort %d for %s is outside the 30000-32767 range", hostPort, spec.Name)
		}
	}
	return nil
}
