package kubernetes

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
)

func shortSuffix() string {
	return uuid.New().String()[:8]
}

func (k *Kubernetes) PodsListInAllNamespaces(ctx context.Context) (string, error) {
	return k.ResourcesList(ctx, &schema.GroupVersionKind{
		Group: "", Version: "v1", Kind: "Pod",
	}, "")
}

func (k *Kubernetes) PodsListInNamespace(ctx context.Context, namespace string) (string, error) {
	return k.ResourcesList(ctx, &schema.GroupVersionKind{
		Group: "", Version: "v1", Kind: "Pod",
	}, namespace)
}

func (k *Kubernetes) PodsGet(ctx context.Context, namespace, name string) (string, error) {
	return k.ResourcesGet(ctx, &schema.GroupVersionKind{
		Group: "", Version: "v1", Kind: "Pod",
	}, namespaceOrDefault(namespace), name)
}

func (k *Kubernetes) PodsDelete(ctx context.Context, namespace, name string) (string, error) {
	namespace = namespaceOrDefault(namespace)
	if err := k.clientSet.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
		return "", fmt.Errorf("delete pod %s/%s: %w", namespace, name, err)
	}
	return fmt.Sprintf("Pod %s/%s deleted", namespace, name), nil
}

func (k *Kubernetes) PodsLog(ctx context.Context, namespace, name string, tailLines int) (string, error) {
	namespace = namespaceOrDefault(namespace)
	opts := &corev1.PodLogOptions{}
	if tailLines > 0 {
		tail := int64(tailLines)
		opts.TailLines = &tail
	}
	stream, err := k.clientSet.CoreV1().Pods(namespace).GetLogs(name, opts).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("stream logs for pod %s/%s: %w", namespace, name, err)
	}
	defer stream.Close()
	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("read logs for pod %s/%s: %w", namespace, name, err)
	}
	return string(data), nil
}

// PodsRun starts a bare single-container pod for ad hoc debugging, not a
// managed ServiceDefinition deployment (that path is component.go's Apply).
func (k *Kubernetes) PodsRun(ctx context.Context, namespace, name, image string, port int32) (string, error) {
	namespace = namespaceOrDefault(namespace)
	if name == "" {
		name = "run-" + shortSuffix()
	}
	container := corev1.Container{Name: name, Image: image}
	if port > 0 {
		container.Ports = []corev1.ContainerPort{{ContainerPort: port}}
	}
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: corev1.PodSpec{
			Containers:    []corev1.Container{container},
			RestartPolicy: corev1.RestartPolicyNever,
		},
	}
	created, err := k.clientSet.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("create pod %s/%s: %w", namespace, name, err)
	}
	return fmt.Sprintf("Pod %s/%s created", created.Namespace, created.Name), nil
}

func (k *Kubernetes) PodsExec(ctx context.Context, namespace, name, container string, command []string) (string, error) {
	namespace = namespaceOrDefault(namespace)
	req := k.clientSet.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(name).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(k.cfg, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("build exec for pod %s/%s: %w", namespace, name, err)
	}

	var stdout, stderr bytes.Buffer
	if err := exec.StreamWithContext(ctx, remotecommand.StreamOptions{Stdout: &stdout, Stderr: &stderr}); err != nil {
		return "", fmt.Errorf("exec in pod %s/%s: %w (stderr: %s)", namespace, name, err, stderr.String())
	}
	if stdout.Len() > 0 {
		return stdout.String(), nil
	}
	return stderr.String(), nil
}
