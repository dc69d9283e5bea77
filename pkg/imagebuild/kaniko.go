package imagebuild

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	"k8s.io/klog/v2"

	"github.com/google/uuid"

	"github.com/acntech/easycontainers/pkg/errs"
)

const (
	kanikoImage         = "gcr.io/kaniko-project/executor:v1.23.2"
	kanikoWorkspaceMount = "/workspace"
)

// KanikoBuilder implements Builder by running the Kaniko executor as a
// Kubernetes Job. The build context has no direct
// upload path into a Job's container, so it is staged onto a shared PVC
// first via a short-lived busybox helper pod that mounts the PVC and
// receives the context as a tar stream over exec; the Kaniko Job then
// reads it from the same volume.
type KanikoBuilder struct {
	clientset kubernetes.Interface
	restCfg   *rest.Config
	namespace string
	pvcName   string // shared PVC all builds stage their context on
}

func NewKanikoBuilder(clientset kubernetes.Interface, restCfg *rest.Config, namespace, pvcName string) *KanikoBuilder {
	if pvcName == "" {
		pvcName = "kaniko-data"
	}
	return &KanikoBuilder{clientset: clientset, restCfg: restCfg, namespace: namespace, pvcName: pvcName}
}

// Build implements Builder.
func (b *KanikoBuilder) Build(ctx context.Context, req Request) (*Handle, error) {
	h := NewHandle(req)
	go b.run(ctx, h)
	return h, nil
}

func (b *KanikoBuilder) run(ctx context.Context, h *Handle) {
	h.setState(InProgress)
	req := h.Request
	buildID := uuid.NewString()[:8]
	workspaceSubdir := "build-" + buildID

	stagerName := "kaniko-stage-" + buildID
	if err := b.stageContext(ctx, stagerName, workspaceSubdir, req.ContextDir); err != nil {
		h.fail(errs.NewBuildError("kaniko", "stage build context", err))
		return
	}
	defer b.clientset.CoreV1().Pods(b.namespace).Delete(context.Background(), stagerName, metav1.DeleteOptions{})

	var cmName string
	if req.InsecureRegistry {
		cmName = "kaniko-config-" + buildID
		cfgJSON, err := buildDockerConfigJSON(req.Image, req.RegistryUsername, req.RegistryPassword)
		if err != nil {
			h.fail(errs.NewBuildError("kaniko", "build registry config", err))
			return
		}
		if err := b.createConfigMap(ctx, cmName, cfgJSON); err != nil {
			h.fail(err)
			return
		}
		defer b.clientset.CoreV1().ConfigMaps(b.namespace).Delete(context.Background(), cmName, metav1.DeleteOptions{})
	}

	jobName := "kaniko-build-" + buildID
	job := b.buildJob(jobName, workspaceSubdir, cmName, req)

	if _, err := b.clientset.BatchV1().Jobs(b.namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		h.fail(errs.FromKubernetes("JobCreate", err))
		return
	}
	// TTLSecondsAfterFinished on the Job handles eventual cleanup; the Job
	// itself is left for the caller to inspect until then.

	digest, err := b.waitForJob(ctx, jobName, 10*time.Minute)
	if err != nil {
		h.fail(err)
		return
	}

	if req.Push {
		if confirmed, verr := verifyPushed(req.Image); verr == nil {
			digest = confirmed
		} else {
			klog.Warningf("kaniko: %s pushed but registry lookup failed: %v", req.Image, verr)
		}
	}
	h.complete(Result{Image: req.Image, Digest: digest})
}

// stageContext creates a pod mounting the shared PVC, waits for it to be
// ready, tars ContextDir over exec into <pvc>/<workspaceSubdir>, then
// leaves the pod for the caller to delete.
func (b *KanikoBuilder) stageContext(ctx context.Context, podName, subdir, contextDir string) error {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: podName, Namespace: b.namespace},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:    "stager",
				Image:   "busybox:1.36",
				Command: []string{"sh", "-c", fmt.Sprintf("mkdir -p %s/%s && sleep 300", kanikoWorkspaceMount, subdir)},
				VolumeMounts: []corev1.VolumeMount{
					{Name: "workspace", MountPath: kanikoWorkspaceMount},
				},
			}},
			Volumes: []corev1.Volume{{
				Name: "workspace",
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: b.pvcName},
				},
			}},
		},
	}
	if _, err := b.clientset.CoreV1().Pods(b.namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return err
	}
	if err := b.waitPodRunning(ctx, podName, 60*time.Second); err != nil {
		return err
	}

	tarData, err := tarDirectory(contextDir)
	if err != nil {
		return err
	}
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, tarData); err != nil {
		return err
	}

	return b.execTarExtract(ctx, podName, "stager", fmt.Sprintf("%s/%s", kanikoWorkspaceMount, subdir), buf)
}

func (b *KanikoBuilder) waitPodRunning(ctx context.Context, podName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pod, err := b.clientset.CoreV1().Pods(b.namespace).Get(ctx, podName, metav1.GetOptions{})
		if err == nil && pod.Status.Phase == corev1.PodRunning {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return errs.NewTimeoutError("stage context pod ready", timeout.String())
}

func (b *KanikoBuilder) execTarExtract(ctx context.Context, podName, containerName, targetDir string, tarData io.Reader) error {
	req := b.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(podName).
		Namespace(b.namespace).
		SubResource("exec")

	req.VersionedParams(&corev1.PodExecOptions{
		Container: containerName,
		Command:   []string{"tar", "-xf", "-", "-C", targetDir},
		Stdin:     true,
		Stdout:    true,
		Stderr:    true,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(b.restCfg, "POST", req.URL())
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  tarData,
		Stdout: io.Discard,
		Stderr: &stderr,
	})
	if err != nil {
		return fmt.Errorf("uploading build context: %w (stderr: %s)", err, stderr.String())
	}
	return nil
}

func (b *KanikoBuilder) createConfigMap(ctx context.Context, name string, configJSON []byte) error {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: b.namespace},
		Data:       map[string]string{"config.json": string(configJSON)},
	}
	if _, err := b.clientset.CoreV1().ConfigMaps(b.namespace).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		return errs.FromKubernetes("ConfigMapCreate", err)
	}
	return nil
}

// buildJob assembles the Kaniko executor Job: backoffLimit=0,
// ttlSecondsAfterFinished=300 so finished builds self-clean, context pointed at the staged PVC subdirectory, destination at
// req.Image, --insecure/--skip-tls-verify when InsecureRegistry is set,
// and --digest-file writing to the termination log so the digest can be
// read back from ContainerStatuses without a second registry round trip.
func (b *KanikoBuilder) buildJob(jobName, workspaceSubdir, configMapName string, req Request) *batchv1.Job {
	dockerfile := req.DockerfilePath
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	args := []string{
		fmt.Sprintf("--context=dir://%s/%s", kanikoWorkspaceMount, workspaceSubdir),
		"--dockerfile=" + dockerfile,
		"--destination=" + req.Image,
		"--digest-file=/dev/termination-log",
	}
	for k, v := range req.BuildArgs {
		args = append(args, fmt.Sprintf("--build-arg=%s=%s", k, v))
	}
	if req.InsecureRegistry {
		args = append(args, "--insecure", "--skip-tls-verify")
	}
	if !req.Push {
		args = append(args, "--no-push")
	}

	volumes := []corev1.Volume{{
		Name: "workspace",
		VolumeSource: corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: b.pvcName},
		},
	}}
	mounts := []corev1.VolumeMount{{Name: "workspace", MountPath: kanikoWorkspaceMount}}

	if configMapName != "" {
		volumes = append(volumes, corev1.Volume{
			Name: "docker-config",
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{LocalObjectReference: corev1.LocalObjectReference{Name: configMapName}},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{Name: "docker-config", MountPath: "/kaniko/.docker"})
	}

	backoffLimit := int32(0)
	ttl := int32(300)
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: jobName, Namespace: b.namespace},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:         "kaniko",
						Image:        kanikoImage,
						Args:         args,
						VolumeMounts: mounts,
					}},
					Volumes: volumes,
				},
			},
		},
	}
}

// waitForJob watches the Job's pod until it terminates, returning the
// image digest captured via --digest-file.
func (b *KanikoBuilder) waitForJob(ctx context.Context, jobName string, timeout time.Duration) (string, error) {
	watchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w, err := b.clientset.CoreV1().Pods(b.namespace).Watch(watchCtx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil {
		return "", errs.FromKubernetes("PodWatch", err)
	}
	defer w.Stop()

	for {
		select {
		case <-watchCtx.Done():
			return "", errs.NewTimeoutError("kaniko build", timeout.String())
		case event, ok := <-w.ResultChan():
			if !ok {
				return "", errs.NewBuildError("kaniko", "watch closed before completion", nil)
			}
			pod, isPod := event.Object.(*corev1.Pod)
			if !isPod || event.Type == watch.Deleted {
				continue
			}
			for _, cs := range pod.Status.ContainerStatuses {
				if cs.Name != "kaniko" || cs.State.Terminated == nil {
					continue
				}
				if cs.State.Terminated.ExitCode != 0 {
					return "", errs.NewBuildError("kaniko", fmt.Sprintf("exit code %d", cs.State.Terminated.ExitCode), fmt.Errorf("%s", cs.State.Terminated.Message))
				}
				return cs.State.Terminated.Message, nil
			}
		}
	}
}
