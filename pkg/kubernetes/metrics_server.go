package kubernetes

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metrics "k8s.io/metrics/pkg/client/clientset/versioned"
)

// metrics fetches (and caches on k) the metrics-server client, built lazily
// since most commands never touch it.
func (k *Kubernetes) metrics() (*metrics.Clientset, error) {
	if k.metricsClient == nil {
		client, err := metrics.NewForConfig(k.cfg)
		if err != nil {
			return nil, fmt.Errorf("build metrics client: %w", err)
		}
		k.metricsClient = client
	}
	return k.metricsClient, nil
}

// GetNodeMetrics returns CPU and memory metrics for all nodes, or a single
// node when nodeName is non-empty. Requires metrics-server to be installed
// in the target cluster.
func (k *Kubernetes) GetNodeMetrics(ctx context.Context, nodeName string) (string, error) {
	client, err := k.metrics()
	if err != nil {
		return "", err
	}

	if nodeName != "" {
		metric, err := client.MetricsV1beta1().NodeMetricses().Get(ctx, nodeName, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("get node metrics for %q: %w", nodeName, err)
		}
		return marshal(&metricsv1beta1.NodeMetricsList{Items: []metricsv1beta1.NodeMetrics{*metric}})
	}

	nodeMetrics, err := client.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list node metrics: %w", err)
	}
	return marshal(nodeMetrics)
}

// GetPodMetrics returns CPU and memory metrics for pods in namespace, or a
// single pod when podName is non-empty.
func (k *Kubernetes) GetPodMetrics(ctx context.Context, namespace string, podName string) (string, error) {
	client, err := k.metrics()
	if err != nil {
		return "", err
	}
	namespace = namespaceOrDefault(namespace)

	if podName != "" {
		podMetric, err := client.MetricsV1beta1().PodMetricses(namespace).Get(ctx, podName, metav1.GetOptions{})
		if err != nil {
			return "", fmt.Errorf("get pod metrics for %s/%s: %w", namespace, podName, err)
		}
		return marshal(&metricsv1beta1.PodMetricsList{Items: []metricsv1beta1.PodMetrics{*podMetric}})
	}

	podMetrics, err := client.MetricsV1beta1().PodMetricses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list pod metrics for %s: %w", namespace, err)
	}
	return marshal(podMetrics)
}
