package k8sengine

import (
	"context"
	"testing"

	authv1 "k8s.io/api/authorization/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	easycontainer "github.com/acntech/easycontainers/pkg/container"
)

func newTestRuntime() (*runtime, *fake.Clientset) {
	clientset := fake.NewSimpleClientset()
	// The fake echoes an access review back with Allowed=false; answer it
	// as a cluster that grants every pre-flight check.
	clientset.PrependReactor("create", "selfsubjectaccessreviews", func(action k8stesting.Action) (bool, k8sruntime.Object, error) {
		review := action.(k8stesting.CreateAction).GetObject().(*authv1.SelfSubjectAccessReview).DeepCopy()
		review.Status.Allowed = true
		return true, review, nil
	})
	return &runtime{clientset: clientset, config: easycontainer.Config{DefaultNamespace: "default"}}, clientset
}

func TestStartServiceCreatesDeploymentAndService(t *testing.T) {
	r, clientset := newTestRuntime()
	spec := easycontainer.ContainerSpec{
		Platform:      easycontainer.Kubernetes,
		ExecutionMode: easycontainer.Service,
		Name:          "web",
		Namespace:     "default",
		Image:         "nginx",
		Tag:           "latest",
		ExposedPorts:  map[string]int{"http": 80},
	}
	h := easycontainer.NewHandle(spec)

	err := r.startService(context.Background(), h)
	require.NoError(t, err)

	dep, err := clientset.AppsV1().Deployments("default").Get(context.Background(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), *dep.Spec.Replicas)
	assert.Equal(t, corev1.RestartPolicyAlways, dep.Spec.Template.Spec.RestartPolicy)

	svc, err := clientset.CoreV1().Services("default").Get(context.Background(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, svc.Spec.Ports, 1)
	assert.Equal(t, int32(80), svc.Spec.Ports[0].Port)
}

func TestStartServiceSkipsServiceWithoutExposedPorts(t *testing.T) {
	r, clientset := newTestRuntime()
	spec := easycontainer.ContainerSpec{Name: "worker", Namespace: "default", Image: "alpine", Tag: "latest"}
	h := easycontainer.NewHandle(spec)

	require.NoError(t, r.startService(context.Background(), h))

	_, err := clientset.CoreV1().Services("default").Get(context.Background(), "worker", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestCreateServiceUsesNodePortWhenMapped(t *testing.T) {
	r, clientset := newTestRuntime()
	spec := easycontainer.ContainerSpec{
		Name:         "api",
		ExposedPorts: map[string]int{"http": 8080},
		PortMappings: map[int]int{8080: 31000},
	}
	require.NoError(t, r.createService(context.Background(), "default", spec, map[string]string{}, "inst-1"))

	svc, err := clientset.CoreV1().Services("default").Get(context.Background(), "api", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.ServiceTypeNodePort, svc.Spec.Type)
	assert.Equal(t, int32(31000), svc.Spec.Ports[0].NodePort)
}

func TestDeleteServiceAggregatesMissingResources(t *testing.T) {
	r, _ := newTestRuntime()
	h := easycontainer.NewHandle(easycontainer.ContainerSpec{Name: "ghost", Namespace: "default"})
	h.Namespace = "default"

	err := r.deleteService(context.Background(), h)
	assert.NoError(t, err) // NotFound is tolerated, not an error
}

func TestValidateSpecForKubernetesWarnsButAcceptsOutOfRangeNodePort(t *testing.T) {
	spec := easycontainer.ContainerSpec{PortMappings: map[int]int{80: 8080}}
	err := validateSpecForKubernetes(spec)
	assert.NoError(t, err)
}

func TestValidateSpecForKubernetesAcceptsNodePortRange(t *testing.T) {
	spec := easycontainer.ContainerSpec{PortMappings: map[int]int{80: 31000}}
	assert.NoError(t, validateSpecForKubernetes(spec))
}
