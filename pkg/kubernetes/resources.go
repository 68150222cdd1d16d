package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
)

const (
	AppKubernetesComponent = "app.kubernetes.io/component"
	AppKubernetesManagedBy = "app.kubernetes.io/managed-by"
	AppKubernetesName      = "app.kubernetes.io/name"
	AppKubernetesPartOf    = "app.kubernetes.io/part-of"

	// FieldManager is the field owner stamped on every server-side apply
	// this package issues, so the API server can tell engine-owned fields
	// apart from fields another controller or a kubectl user set.
	FieldManager = "cloudcore-kubernetes"
)

// ResourcesList lists every resource of gvk's kind in namespace ("" for
// cluster-scoped or all-namespaces where the REST mapping allows it).
func (k *Kubernetes) ResourcesList(ctx context.Context, gvk *schema.GroupVersionKind, namespace string) (string, error) {
	gvr, err := k.resourceFor(gvk)
	if err != nil {
		return "", fmt.Errorf("resolve resource for %s: %w", gvk.String(), err)
	}
	namespaced, _ := k.isNamespaced(gvk)
	var list *unstructured.UnstructuredList
	if namespaced && namespace != "" {
		list, err = k.dynamicClient.Resource(*gvr).Namespace(namespace).List(ctx, metav1.ListOptions{})
	} else {
		list, err = k.dynamicClient.Resource(*gvr).List(ctx, metav1.ListOptions{})
	}
	if err != nil {
		return "", fmt.Errorf("list %s: %w", gvk.Kind, err)
	}
	return marshal(list)
}

// ResourcesGet fetches a single resource by name.
func (k *Kubernetes) ResourcesGet(ctx context.Context, gvk *schema.GroupVersionKind, namespace, name string) (string, error) {
	obj, err := k.getResource(ctx, gvk, namespace, name)
	if err != nil {
		return "", fmt.Errorf("get %s %s/%s: %w", gvk.Kind, namespace, name, err)
	}
	return marshal(obj)
}

func parseManifest(resource string) (*unstructured.Unstructured, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(resource), &obj); err != nil {
		if err := yaml.Unmarshal([]byte(resource), &obj); err != nil {
			return nil, fmt.Errorf("parse manifest as JSON or YAML: %w", err)
		}
	}
	u := &unstructured.Unstructured{Object: obj}
	if u.GetAPIVersion() == "" || u.GetKind() == "" {
		return nil, fmt.Errorf("manifest is missing apiVersion or kind")
	}
	return u, nil
}

// ResourcesCreateOrUpdate applies a single JSON or YAML manifest via
// server-side apply, creating the object if it doesn't exist and patching
// it in place (field-manager-scoped) if it does.
func (k *Kubernetes) ResourcesCreateOrUpdate(ctx context.Context, resource string) (string, error) {
	obj, err := parseManifest(resource)
	if err != nil {
		return "", err
	}
	applied, err := k.applyUnstructured(ctx, obj)
	if err != nil {
		return "", err
	}
	return marshal(applied)
}

// applyUnstructured is the shared server-side-apply primitive the engine
// (component.go) and the ad hoc ResourcesCreateOrUpdate entry point both
// funnel through.
func (k *Kubernetes) applyUnstructured(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	gvk := obj.GroupVersionKind()
	gvr, err := k.resourceFor(&gvk)
	if err != nil {
		return nil, fmt.Errorf("resolve resource for %s: %w", gvk.String(), err)
	}
	namespaced, _ := k.isNamespaced(&gvk)
	namespace := obj.GetNamespace()
	if namespaced {
		namespace = namespaceOrDefault(namespace)
		obj.SetNamespace(namespace)
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for apply: %w", err)
	}

	var client interface {
		Patch(ctx context.Context, name string, pt types.PatchType, data []byte, opts metav1.PatchOptions, subresources ...string) (*unstructured.Unstructured, error)
	}
	if namespaced {
		client = k.dynamicClient.Resource(*gvr).Namespace(namespace)
	} else {
		client = k.dynamicClient.Resource(*gvr)
	}

	applied, err := client.Patch(ctx, obj.GetName(), types.ApplyPatchType, data, metav1.PatchOptions{
		FieldManager: FieldManager,
		Force:        boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("apply %s %s/%s: %w", gvk.Kind, namespace, obj.GetName(), err)
	}
	return applied, nil
}

func boolPtr(b bool) *bool { return &b }

// ResourcesDelete deletes a single resource; absence is not an error, the
// same idempotent-delete convention the object-store and
// container-deployment components use.
func (k *Kubernetes) ResourcesDelete(ctx context.Context, gvk *schema.GroupVersionKind, namespace, name string) error {
	gvr, err := k.resourceFor(gvk)
	if err != nil {
		return fmt.Errorf("resolve resource for %s: %w", gvk.String(), err)
	}
	namespaced, _ := k.isNamespaced(gvk)
	if namespaced {
		namespace = namespaceOrDefault(namespace)
		err = k.dynamicClient.Resource(*gvr).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	} else {
		err = k.dynamicClient.Resource(*gvr).Delete(ctx, name, metav1.DeleteOptions{})
	}
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s %s/%s: %w", gvk.Kind, namespace, name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "not found")
}

// ResourcesPatch applies an RFC 6902/strategic-merge/merge patch to a
// single resource, used by LabelResource/AnnotateResource and by direct
// callers that need a narrower mutation than a full apply.
func (k *Kubernetes) ResourcesPatch(ctx context.Context, gvk *schema.GroupVersionKind, namespace, name, patchType string, patchData []byte) (string, error) {
	pt := types.PatchType(patchType)
	if err := k.patchResource(ctx, gvk, namespace, name, pt, patchData); err != nil {
		return "", fmt.Errorf("patch %s %s/%s: %w", gvk.Kind, namespace, name, err)
	}
	return k.ResourcesGet(ctx, gvk, namespace, name)
}
