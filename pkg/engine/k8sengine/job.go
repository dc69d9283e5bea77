package k8sengine

import (
	"context"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/hashicorp/go-multierror"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
)

// startJob creates a run-to-completion Job: backoffLimit=0, completions=1,
// restartPolicy=Never, and begins
// watching its pod.
func (r *runtime) startJob(ctx context.Context, h *easycontainer.Handle) error {
	spec := h.Spec
	namespace := namespaceFor(spec, r.config)
	h.Namespace = namespace

	if err := r.checkPermission(ctx, namespace, "create", "jobs", "batch"); err != nil {
		return err
	}
	if err := r.ensureNamespace(ctx, namespace); err != nil {
		return err
	}

	instance := instanceID()
	labels := defaultLabels(spec, instance)

	var cmName string
	if len(spec.ContainerFiles) > 0 {
		cmName = spec.Name + "-files"
		if _, err := r.containerFilesConfigMap(ctx, namespace, cmName, labels, spec.ContainerFiles); err != nil {
			return err
		}
	}

	podSpec := corev1.PodSpec{
		RestartPolicy: corev1.RestartPolicyNever,
		Containers:    []corev1.Container{buildContainer(spec, cmName)},
		Volumes:       buildVolumes(spec, cmName),
	}

	backoffLimit := int32(0)
	completions := int32(1)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: namespace, Labels: labels},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Completions:  &completions,
			Selector:     &metav1.LabelSelector{MatchLabels: map[string]string{"app.kubernetes.io/instance": instance}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       podSpec,
			},
		},
	}

	created, err := r.clientset.BatchV1().Jobs(namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return errs.FromKubernetes("JobCreate", err)
	}
	h.WorkloadName = created.Name

	watchCtx, cancel := context.WithCancel(context.Background())
	go r.watchDeploymentPod(watchCtx, h, namespace, instance)
	r.trackWatcher(namespace+"/"+spec.Name, cancel)
	return nil
}

// stopJob has no graceful-stop equivalent for a run-to-completion Job;
// tasks run until they finish or are killed, so Stop is Kill.
func (r *runtime) stopJob(ctx context.Context, h *easycontainer.Handle) error {
	return r.killJob(ctx, h)
}

// killJob deletes the Job in the foreground with zero grace period and
// explicitly deletes its pod.
func (r *runtime) killJob(ctx context.Context, h *easycontainer.Handle) error {
	namespace := h.Namespace
	policy := metav1.DeletePropagationForeground
	grace := int64(0)

	err := r.clientset.BatchV1().Jobs(namespace).Delete(ctx, h.Spec.Name, metav1.DeleteOptions{
		PropagationPolicy:  &policy,
		GracePeriodSeconds: &grace,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return errs.FromKubernetes("JobDelete", err)
	}
	if h.PodName != "" {
		_ = r.clientset.CoreV1().Pods(namespace).Delete(ctx, h.PodName, metav1.DeleteOptions{GracePeriodSeconds: &grace})
	}
	h.WaitForState(easycontainer.Stopped, 10*time.Second)
	return nil
}

// deleteJob removes the Job and its ContainerFiles ConfigMap.
func (r *runtime) deleteJob(ctx context.Context, h *easycontainer.Handle) error {
	namespace := h.Namespace
	var result *multierror.Error

	if err := r.clientset.BatchV1().Jobs(namespace).Delete(ctx, h.Spec.Name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		result = multierror.Append(result, errs.FromKubernetes("JobDelete", err))
	}
	if len(h.Spec.ContainerFiles) > 0 {
		cmName := h.Spec.Name + "-files"
		if err := r.clientset.CoreV1().ConfigMaps(namespace).Delete(ctx, cmName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
			result = multierror.Append(result, errs.FromKubernetes("ConfigMapDelete", err))
		}
	}
	return result.ErrorOrNil()
}
