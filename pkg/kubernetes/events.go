package kubernetes

import (
	"context"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// EventsList lists core/v1 Events in namespace ("" for all namespaces),
// optionally narrowed by field selectors of the form
// "involvedObject.name=foo". Backs the `cluster events` CLI command.
func (k *Kubernetes) EventsList(ctx context.Context, namespace string, fieldSelectors []string) (string, error) {
	opts := metav1.ListOptions{}
	if len(fieldSelectors) > 0 {
		opts.FieldSelector = strings.Join(fieldSelectors, ",")
	}

	ns := namespace
	if ns == "" {
		ns = metav1.NamespaceAll
	}
	events, err := k.clientSet.CoreV1().Events(ns).List(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}
	if len(events.Items) == 0 {
		return "No events found", nil
	}
	return marshal(events)
}
