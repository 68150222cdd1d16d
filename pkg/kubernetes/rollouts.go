package kubernetes

import (
	"context"
	"fmt"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

// ResourceRollout performs rollout operations (status/restart/pause/resume)
// against a Deployment. Any other resource type, StatefulSet and DaemonSet
// included, is rejected with an error. "undo" is intentionally
// unsupported here: rollback-by-revision belongs to the TrafficAllocation
// backends in argorollouts.go for resources under Argo Rollouts management,
// not to bare workload controllers.
func (k *Kubernetes) ResourceRollout(ctx context.Context, namespace, resourceType, resourceName, action string, revision int) (string, error) {
	resourceType = strings.ToLower(resourceType)
	action = strings.ToLower(action)
	namespace = namespaceOrDefault(namespace)

	switch resourceType {
	case "deployment":
		return k.deploymentRollout(ctx, namespace, resourceName, action)
	default:
		return "", fmt.Errorf("rollout action %q unsupported for resource type %q", action, resourceType)
	}
}

func (k *Kubernetes) deploymentRollout(ctx context.Context, namespace, name, action string) (string, error) {
	apps := k.clientSet.AppsV1().Deployments(namespace)

	switch action {
	case "status":
		dep, err := apps.Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("get deployment %s/%s: %w", namespace, name, err)
		}
		ready := dep.Status.ReadyReplicas
		desired := int32(1)
		if dep.Spec.Replicas != nil {
			desired = *dep.Spec.Replicas
		}
		if ready >= desired {
			return fmt.Sprintf("deployment %q rolled out (%d/%d ready)", name, ready, desired), nil
		}
		return fmt.Sprintf("deployment %q in progress (%d/%d ready)", name, ready, desired), nil

	case "restart":
		patch := []byte(fmt.Sprintf(
			`{"spec":{"template":{"metadata":{"annotations":{"kubectl.kubernetes.io/restartedAt":%q}}}}}`,
			time.Now().UTC().Format(time.RFC3339)))
		_, err := apps.Patch(ctx, name, types.StrategicMergePatchType, patch, metav1.PatchOptions{})
		if err != nil {
			return "", fmt.Errorf("restart deployment %s/%s: %w", namespace, name, err)
		}
		return fmt.Sprintf("deployment %q restarted", name), nil

	case "pause", "resume":
		dep, err := apps.Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("get deployment %s/%s: %w", namespace, name, err)
		}
		dep.Spec.Paused = action == "pause"
		if _, err := apps.Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
			return "", fmt.Errorf("%s deployment %s/%s: %w", action, namespace, name, err)
		}
		return fmt.Sprintf("deployment %q %sd", name, action), nil

	default:
		return "", fmt.Errorf("unsupported rollout action %q", action)
	}
}
