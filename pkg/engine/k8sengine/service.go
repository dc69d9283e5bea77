package k8sengine

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/klog/v2"

	"github.com/hashicorp/go-multierror"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
	"github.com/acntech/easycontainers/pkg/errs"
)

// startService creates a single-replica Deployment and, when the container
// exposes ports, a matching Service (ClusterIP by default, NodePort when a
// host port mapping was requested), then begins watching the Deployment's
// pod.
func (r *runtime) startService(ctx context.Context, h *easycontainer.Handle) error {
	spec := h.Spec
	namespace := namespaceFor(spec, r.config)
	h.Namespace = namespace

	if err := r.checkPermission(ctx, namespace, "create", "deployments", "apps"); err != nil {
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
		RestartPolicy: corev1.RestartPolicyAlways,
		Containers:    []corev1.Container{withProbes(buildContainer(spec, cmName), spec)},
		Volumes:       buildVolumes(spec, cmName),
	}

	replicas := int32(1)
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: namespace, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app.kubernetes.io/instance": instance}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       podSpec,
			},
		},
	}

	created, err := r.clientset.AppsV1().Deployments(namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err != nil {
		return errs.FromKubernetes("DeploymentCreate", err)
	}
	h.WorkloadName = created.Name

	if len(spec.ExposedPorts) > 0 {
		if err := r.createService(ctx, namespace, spec, labels, instance); err != nil {
			return err
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	go r.watchDeploymentPod(watchCtx, h, namespace, instance)
	r.trackWatcher(namespace+"/"+spec.Name, cancel)
	return nil
}

// watchDeploymentPod finds the pod the Deployment creates for instance and
// hands it to watchPod. Deployment-managed pods don't exist at create
// time, so this polls briefly before the real watch begins.
func (r *runtime) watchDeploymentPod(ctx context.Context, h *easycontainer.Handle, namespace, instance string) {
	selector := "app.kubernetes.io/instance=" + instance
	for i := 0; i < 50; i++ {
		pods, err := r.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err == nil && len(pods.Items) > 0 {
			h.PodName = pods.Items[0].Name
			r.watchPod(ctx, h, namespace, h.PodName)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	klog.Warningf("k8sengine: no pod appeared for instance %s in %s", instance, namespace)
	h.Transition(easycontainer.Unknown)
}

// createService exposes spec.ExposedPorts. A port mapping with a non-zero
// host port yields a NodePort Service using that host port as the node
// port (Start has already warned if it is outside 30000-32767); otherwise
// a ClusterIP Service is created.
func (r *runtime) createService(ctx context.Context, namespace string, spec easycontainer.ContainerSpec, labels map[string]string, instance string) error {
	var ports []corev1.ServicePort
	svcType := corev1.ServiceTypeClusterIP

	for name, containerPort := range spec.ExposedPorts {
		port := corev1.ServicePort{
			Name:       name,
			Port:       int32(containerPort),
			TargetPort: intstr.FromInt(containerPort),
		}
		if hostPort, ok := spec.PortMappings[containerPort]; ok && hostPort != 0 {
			svcType = corev1.ServiceTypeNodePort
			port.NodePort = int32(hostPort)
		}
		ports = append(ports, port)
	}

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name, Namespace: namespace, Labels: labels},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app.kubernetes.io/instance": instance},
			Ports:    ports,
			Type:     svcType,
		},
	}
	if _, err := r.clientset.CoreV1().Services(namespace).Create(ctx, svc, metav1.CreateOptions{}); err != nil {
		return errs.FromKubernetes("ServiceCreate", err)
	}
	return nil
}

// withProbes attaches a TCP readiness/liveness probe on one exposed port
// (ExposedPorts is a map, so which one is not defined when several are
// exposed), or an exec probe when a health-check command property is set,
// mirroring what a Service-mode workload needs to report READY accurately.
// With neither, no probe is attached.
func withProbes(c corev1.Container, spec easycontainer.ContainerSpec) corev1.Container {
	if cmd, ok := spec.Properties["healthCheckCommand"].([]string); ok && len(cmd) > 0 {
		probe := &corev1.Probe{ProbeHandler: corev1.ProbeHandler{Exec: &corev1.ExecAction{Command: cmd}}}
		c.ReadinessProbe = probe
		c.LivenessProbe = probe
		return c
	}
	for _, port := range spec.ExposedPorts {
		probe := &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromInt(port)}},
		}
		c.ReadinessProbe = probe
		c.LivenessProbe = probe
		break
	}
	return c
}

// stopService scales the Deployment to zero and waits up to
// Config.StopTimeout (120s when unset) for the handle to reach STOPPED.
func (r *runtime) stopService(ctx context.Context, h *easycontainer.Handle) error {
	namespace := h.Namespace
	zero := int32(0)

	patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, zero))
	if _, err := r.clientset.AppsV1().Deployments(namespace).Patch(ctx, h.Spec.Name, "application/merge-patch+json", patch, metav1.PatchOptions{}); err != nil {
		if !apierrors.IsNotFound(err) {
			return errs.FromKubernetes("DeploymentScaleDown", err)
		}
	}

	timeout := r.config.StopTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	h.WaitForState(easycontainer.Stopped, timeout)
	return nil
}

// killService deletes the Deployment in the foreground with zero grace
// period, then explicitly deletes its pod in case the cascade hasn't
// caught up yet.
func (r *runtime) killService(ctx context.Context, h *easycontainer.Handle) error {
	namespace := h.Namespace
	policy := metav1.DeletePropagationForeground
	grace := int64(0)

	err := r.clientset.AppsV1().Deployments(namespace).Delete(ctx, h.Spec.Name, metav1.DeleteOptions{
		PropagationPolicy:  &policy,
		GracePeriodSeconds: &grace,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return errs.FromKubernetes("DeploymentDelete", err)
	}
	if h.PodName != "" {
		_ = r.clientset.CoreV1().Pods(namespace).Delete(ctx, h.PodName, metav1.DeleteOptions{GracePeriodSeconds: &grace})
	}
	h.WaitForState(easycontainer.Stopped, 10*time.Second)
	return nil
}

// deleteService removes the Deployment, Service and ContainerFiles
// ConfigMap, aggregating any errors with go-multierror instead of
// stopping at the first teardown failure.
func (r *runtime) deleteService(ctx context.Context, h *easycontainer.Handle) error {
	namespace := h.Namespace
	var result *multierror.Error

	if err := r.clientset.AppsV1().Deployments(namespace).Delete(ctx, h.Spec.Name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		result = multierror.Append(result, errs.FromKubernetes("DeploymentDelete", err))
	}
	if err := r.clientset.CoreV1().Services(namespace).Delete(ctx, h.Spec.Name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		result = multierror.Append(result, errs.FromKubernetes("ServiceDelete", err))
	}
	if len(h.Spec.ContainerFiles) > 0 {
		cmName := h.Spec.Name + "-files"
		if err := r.clientset.CoreV1().ConfigMaps(namespace).Delete(ctx, cmName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
			result = multierror.Append(result, errs.FromKubernetes("ConfigMapDelete", err))
		}
	}

	return result.ErrorOrNil()
}

func namespaceFor(spec easycontainer.ContainerSpec, cfg easycontainer.Config) string {
	if spec.Namespace != "" {
		return spec.Namespace
	}
	if cfg.DefaultNamespace != "" {
		return cfg.DefaultNamespace
	}
	return "default"
}
