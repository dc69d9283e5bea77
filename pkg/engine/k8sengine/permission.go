package k8sengine

import (
	"context"

	authv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/acntech/easycontainers/pkg/errs"
)

// checkPermission runs a SelfSubjectAccessReview pre-flight before a
// mutating call, turning an RBAC gap into an errs.PermissionError instead
// of an opaque Forbidden response surfacing several calls deep into a
// create/watch sequence.
func (r *runtime) checkPermission(ctx context.Context, namespace, verb, resource, group string) error {
	review := &authv1.SelfSubjectAccessReview{
		Spec: authv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authv1.ResourceAttributes{
				Namespace: namespace,
				Verb:      verb,
				Resource:  resource,
				Group:     group,
			},
		},
	}

	result, err := r.clientset.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		// The access-review API itself may be unavailable in some clusters;
		// don't block the real call on that.
		return nil
	}
	if !result.Status.Allowed {
		return errs.NewPermissionError(verb, resource, result.Status.Reason)
	}
	return nil
}
