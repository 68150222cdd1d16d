// Package kubernetes is the Kubernetes apply engine (spec.md §2.5): manifest
// normalization, overlay merge, image rewrite, server-side apply, and
// wait-for-ready polling against a real cluster. There is no prune step:
// objects dropped from a definition stay in the cluster, apart from the
// service's own Service, which is deleted when no ports are exposed.
// Superseded here from the package's prior shape, which proxied every
// operation through a dashboard-style HTTP API; that indirection serves no
// SPEC_FULL.md component, so the client underneath is now client-go
// directly, the same library the rest of this package's files
// (connectivity.go, labels.go, utils.go, metrics_server.go) already
// assumed was there.
package kubernetes

import (
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	metrics "k8s.io/metrics/pkg/client/clientset/versioned"
	"sigs.k8s.io/yaml"
)

// Kubernetes holds every client handle the package's operations share:
// a typed clientset for core/apps verbs, a dynamic client for arbitrary
// GVKs (including CRDs), a discovery client for API-resource enumeration,
// and a lazily-built REST mapper for Kind->Resource resolution.
type Kubernetes struct {
	cfg             *rest.Config
	clientSet       kubernetes.Interface
	dynamicClient   dynamic.Interface
	discoveryClient discovery.DiscoveryInterface
	mapper          *restmapper.DeferredDiscoveryRESTMapper
	metricsClient   *metrics.Clientset
}

// InClusterConfig returns the in-cluster REST config when running inside a
// pod with a mounted service account, or an error otherwise.
func InClusterConfig() (*rest.Config, error) {
	return rest.InClusterConfig()
}

// resolveConfig builds a client-go ClientConfig from KUBECONFIG (or
// ~/.kube/config) using the default loading rules, the same resolution
// order kubectl itself uses.
func resolveConfig() clientcmd.ClientConfig {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if env := os.Getenv("KUBECONFIG"); env != "" {
		loadingRules.ExplicitPath = env
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
}

// NewKubernetes builds a Kubernetes client, preferring in-cluster config
// and falling back to the local kubeconfig.
func NewKubernetes() (*Kubernetes, error) {
	cfg, err := InClusterConfig()
	if err != nil {
		cfg, err = resolveConfig().ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("resolve kubeconfig: %w", err)
		}
	}
	return newFromConfig(cfg)
}

// NewKubernetesWithKubeconfig builds a client from an explicit kubeconfig
// path, for components driving a cluster other than the ambient one.
func NewKubernetesWithKubeconfig(path string) (*Kubernetes, error) {
	cfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig %q: %w", path, err)
	}
	return newFromConfig(cfg)
}

func newFromConfig(cfg *rest.Config) (*Kubernetes, error) {
	clientSet, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build clientset: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build dynamic client: %w", err)
	}
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(discoveryClient))
	return &Kubernetes{
		cfg:             cfg,
		clientSet:       clientSet,
		dynamicClient:   dynamicClient,
		discoveryClient: discoveryClient,
		mapper:          mapper,
	}, nil
}

// GetRESTConfig exposes the underlying REST config for components (like
// argorollouts.go) that build their own typed clientset against the same
// cluster connection.
func (k *Kubernetes) GetRESTConfig() *rest.Config { return k.cfg }

// Close releases resources held by the client. client-go's REST-based
// clients have nothing to close explicitly; this exists so
// Component.Close(ctx) has something to delegate to, giving the apply
// engine the same Close(ctx) shape every other component in this module
// has.
func (k *Kubernetes) Close() error { return nil }

// resourceFor maps a GVK to its plural GroupVersionResource via the
// cached discovery REST mapper, refreshed automatically on a cache miss
// (e.g. right after a CRD is installed).
func (k *Kubernetes) resourceFor(gvk *schema.GroupVersionKind) (*schema.GroupVersionResource, error) {
	mapping, err := k.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		k.mapper.Reset()
		mapping, err = k.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err != nil {
			return nil, fmt.Errorf("resolve resource for %s: %w", gvk.String(), err)
		}
	}
	gvr := mapping.Resource
	return &gvr, nil
}

// isNamespaced reports whether gvk's REST mapping is namespace-scoped.
func (k *Kubernetes) isNamespaced(gvk *schema.GroupVersionKind) (bool, error) {
	mapping, err := k.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return false, err
	}
	return mapping.Scope.Name() == "namespace", nil
}

func marshal(v any) (string, error) {
	switch t := v.(type) {
	case []unstructured.Unstructured:
		for i := range t {
			t[i].SetManagedFields(nil)
		}
	case []*unstructured.Unstructured:
		for i := range t {
			t[i].SetManagedFields(nil)
		}
	case unstructured.Unstructured:
		t.SetManagedFields(nil)
	case *unstructured.Unstructured:
		t.SetManagedFields(nil)
	}
	ret, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(ret), nil
}

// namespaceOrDefault returns the provided namespace or "default" if empty
func namespaceOrDefault(namespace string) string {
	if namespace == "" {
		return "default"
	}
	return namespace
}
