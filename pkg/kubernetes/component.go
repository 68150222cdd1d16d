package kubernetes

import (
	"context"
	"fmt"
	"strconv"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/klog/v2"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/model"
)

// StabilityWindow bounds how long Apply waits for a workload's replicas to
// become ready before giving up (spec.md §5).
const StabilityWindow = 300 * time.Second

const stabilityPollInterval = 3 * time.Second

// Component is the Kubernetes apply engine: it normalizes a
// model.ServiceDefinition into a Deployment + Service pair, merges an
// overlay, rewrites images, applies both objects via server-side apply,
// and waits for the Deployment to report every replica ready. It does not
// prune by label: the only object it removes is the service's own Service
// when the new definition exposes no ports.
type Component struct {
	k         *Kubernetes
	namespace string
}

func NewComponent(k *Kubernetes, namespace string) *Component {
	return &Component{k: k, namespace: namespaceOrDefault(namespace)}
}

func (c *Component) Close(ctx context.Context) error { return c.k.Close() }

// managedLabels are stamped on every object this engine creates, marking
// it as owned by the named service; nothing in this package lists or
// prunes objects by these labels.
func managedLabels(serviceName string) map[string]string {
	return map[string]string{
		AppKubernetesName:      serviceName,
		AppKubernetesManagedBy: "cloudcore",
	}
}

// Apply runs the declarative reconciliation algorithm (spec.md §4.1,
// adapted to a single in-cluster provider instead of a cloud API): merge
// the overlay into the base definition, rewrite container images,
// translate to a Deployment/Service pair, apply both via SSA (deleting the
// same-named Service when no main container exposes ports), and wait for
// the Deployment to stabilize. Other objects this service previously owned
// are not pruned.
func (c *Component) Apply(ctx context.Context, service model.ServiceDefinition, overlay *model.ServiceOverlay, images []string) (model.ServiceItem, error) {
	merged := service
	if overlay != nil {
		merged = model.ApplyOverlay(service, *overlay)
	}
	if err := merged.Validate(true); err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "validate service %q", merged.Name)
	}
	rewriteImages(&merged, images)

	deployment := c.buildDeployment(merged)
	if err := c.applyTyped(ctx, deployment); err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "apply deployment %q", merged.Name)
	}

	var svc *corev1.Service
	if hasIngressPorts(merged) {
		svc = c.buildService(merged)
		if err := c.applyTyped(ctx, svc); err != nil {
			return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "apply service %q", merged.Name)
		}
	} else {
		// No ingress surface: make sure a stale Service from a prior
		// revision that did expose ports doesn't linger.
		_ = c.k.clientSet.CoreV1().Services(c.namespace).Delete(ctx, merged.Name, metav1.DeleteOptions{})
	}

	item, err := c.WaitStable(ctx, merged.Name)
	item.Definition = merged
	return item, err
}

// rewriteImages substitutes resolved image references into main/init
// containers in declaration order (spec.md §4.1 step 4), leaving any
// container whose slot has no resolved image untouched.
func rewriteImages(service *model.ServiceDefinition, images []string) {
	for i := range service.Containers {
		if i < len(images) && images[i] != "" {
			service.Containers[i].Image = images[i]
		}
	}
}

func hasIngressPorts(service model.ServiceDefinition) bool {
	for _, c := range service.Containers {
		if c.Type == model.MainContainer && c.HasExposedPorts() {
			return true
		}
	}
	return false
}

func (c *Component) buildDeployment(service model.ServiceDefinition) *appsv1.Deployment {
	replicas := int32(1)
	if service.Scale != nil {
		replicas = int32(service.Scale.EffectiveMinReplicas())
	}
	labels := managedLabels(service.Name)

	var containers, initContainers []corev1.Container
	for _, cc := range service.Containers {
		container := toCoreContainer(cc)
		if cc.Type == model.InitContainer {
			initContainers = append(initContainers, container)
		} else {
			containers = append(containers, container)
		}
	}

	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{Name: service.Name, Namespace: c.namespace, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{AppKubernetesName: service.Name}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					InitContainers: initContainers,
					Containers:     containers,
					RestartPolicy:  restartPolicyOrDefault(service.RestartPolicy),
				},
			},
		},
	}
}

func restartPolicyOrDefault(p string) corev1.RestartPolicy {
	if p == "" {
		return corev1.RestartPolicyAlways
	}
	return corev1.RestartPolicy(p)
}

func toCoreContainer(cc model.Container) corev1.Container {
	container := corev1.Container{
		Name:       cc.Name,
		Image:      cc.Image,
		Command:    cc.Command,
		Args:       cc.Args,
		WorkingDir: cc.WorkingDir,
	}
	for _, e := range cc.Env {
		container.Env = append(container.Env, corev1.EnvVar{Name: e.Name, Value: e.Value})
	}
	for _, p := range cc.Ports {
		proto := corev1.ProtocolTCP
		if p.Protocol == "udp" {
			proto = corev1.ProtocolUDP
		}
		container.Ports = append(container.Ports, corev1.ContainerPort{
			Name: p.Name, ContainerPort: int32(p.ContainerPort), Protocol: proto,
		})
	}
	for _, v := range cc.VolumeMounts {
		container.VolumeMounts = append(container.VolumeMounts, corev1.VolumeMount{
			Name: v.VolumeName, MountPath: v.MountPath, ReadOnly: v.ReadOnly,
		})
	}
	if cc.SecurityContext != nil {
		container.SecurityContext = &corev1.SecurityContext{
			RunAsUser:              cc.SecurityContext.RunAsUser,
			RunAsNonRoot:           cc.SecurityContext.RunAsNonRoot,
			ReadOnlyRootFilesystem: &cc.SecurityContext.ReadOnlyRootFilesystem,
			Privileged:             &cc.SecurityContext.Privileged,
		}
	}
	if cc.Lifecycle != nil {
		container.Lifecycle = toCoreLifecycle(cc.Lifecycle)
	}
	container.Resources = toResourceRequirements(cc.Resources)
	container.LivenessProbe = toCoreProbe(cc.LivenessProbe)
	container.ReadinessProbe = toCoreProbe(cc.ReadinessProbe)
	container.StartupProbe = toCoreProbe(cc.StartupProbe)
	return container
}

func toCoreLifecycle(l *model.Lifecycle) *corev1.Lifecycle {
	lc := &corev1.Lifecycle{}
	if len(l.PostStartExec) > 0 {
		lc.PostStart = &corev1.LifecycleHandler{Exec: &corev1.ExecAction{Command: l.PostStartExec}}
	}
	if len(l.PreStopExec) > 0 {
		lc.PreStop = &corev1.LifecycleHandler{Exec: &corev1.ExecAction{Command: l.PreStopExec}}
	}
	return lc
}

func toResourceRequirements(r model.Resources) corev1.ResourceRequirements {
	req := corev1.ResourceRequirements{Requests: corev1.ResourceList{}, Limits: corev1.ResourceList{}}
	if r.RequestsCPUCores > 0 {
		req.Requests[corev1.ResourceCPU] = milliCPUQuantity(r.RequestsCPUCores)
	}
	if r.RequestsMemoryMiB > 0 {
		req.Requests[corev1.ResourceMemory] = mebibyteQuantity(r.RequestsMemoryMiB)
	}
	if r.LimitsCPUCores > 0 {
		req.Limits[corev1.ResourceCPU] = milliCPUQuantity(r.LimitsCPUCores)
	}
	if r.LimitsMemoryMiB > 0 {
		req.Limits[corev1.ResourceMemory] = mebibyteQuantity(r.LimitsMemoryMiB)
	}
	if r.GPUCount > 0 {
		gpuType := r.GPUType
		if gpuType == "" {
			gpuType = "nvidia.com/gpu"
		}
		gpuQty := resource.NewQuantity(int64(r.GPUCount), resource.DecimalSI)
		req.Requests[corev1.ResourceName(gpuType)] = *gpuQty
		req.Limits[corev1.ResourceName(gpuType)] = *gpuQty
	}
	return req
}

func milliCPUQuantity(cores float64) resource.Quantity {
	return *resource.NewMilliQuantity(int64(cores*1000), resource.DecimalSI)
}

func mebibyteQuantity(mib int64) resource.Quantity {
	return *resource.NewQuantity(mib*1024*1024, resource.BinarySI)
}

func toCoreProbe(p *model.Probe) *corev1.Probe {
	if p == nil {
		return nil
	}
	probe := &corev1.Probe{
		InitialDelaySeconds: int32(derefInt(p.InitialDelaySeconds, 0)),
		PeriodSeconds:       int32(derefInt(p.PeriodSeconds, 10)),
		TimeoutSeconds:      int32(derefInt(p.TimeoutSeconds, 1)),
		FailureThreshold:    int32(derefInt(p.FailureThreshold, 3)),
		SuccessThreshold:    int32(derefInt(p.SuccessThreshold, 1)),
	}
	switch {
	case p.Action.Exec != nil:
		probe.Exec = &corev1.ExecAction{Command: p.Action.Exec.Command}
	case p.Action.HTTPGet != nil:
		probe.HTTPGet = &corev1.HTTPGetAction{
			Path:   p.Action.HTTPGet.Path,
			Port:   intstr.FromInt(p.Action.HTTPGet.Port),
			Scheme: corev1.URIScheme(httpSchemeOrDefault(p.Action.HTTPGet.Scheme)),
			Host:   p.Action.HTTPGet.Host,
		}
	case p.Action.TCPSocket != nil:
		probe.TCPSocket = &corev1.TCPSocketAction{
			Port: intstr.FromInt(p.Action.TCPSocket.Port),
			Host: p.Action.TCPSocket.Host,
		}
	case p.Action.GRPC != nil:
		port := int32(p.Action.GRPC.Port)
		probe.GRPC = &corev1.GRPCAction{Port: port, Service: &p.Action.GRPC.Service}
	default:
		return nil
	}
	return probe
}

func httpSchemeOrDefault(s string) string {
	if s == "" {
		return "HTTP"
	}
	return s
}

func derefInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func (c *Component) buildService(service model.ServiceDefinition) *corev1.Service {
	labels := managedLabels(service.Name)
	var ports []corev1.ServicePort
	for _, cc := range service.Containers {
		if cc.Type != model.MainContainer {
			continue
		}
		for _, p := range cc.Ports {
			proto := corev1.ProtocolTCP
			if p.Protocol == "udp" {
				proto = corev1.ProtocolUDP
			}
			ports = append(ports, corev1.ServicePort{
				Name:       portNameOrDefault(p.Name, p.ContainerPort),
				Port:       int32(p.ContainerPort),
				Protocol:   proto,
				TargetPort: intstr.FromInt(p.ContainerPort),
			})
		}
	}
	return &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{Name: service.Name, Namespace: c.namespace, Labels: labels},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{AppKubernetesName: service.Name},
			Ports:    ports,
		},
	}
}

func portNameOrDefault(name string, port int) string {
	if name != "" {
		return name
	}
	return "port-" + strconv.Itoa(port)
}

// applyTyped marshals a typed runtime.Object to unstructured and funnels
// it through the same server-side-apply path ResourcesCreateOrUpdate uses,
// so the apply engine and the ad hoc resource endpoints share one apply
// implementation.
func (c *Component) applyTyped(ctx context.Context, obj runtime.Object) error {
	raw, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return fmt.Errorf("convert to unstructured: %w", err)
	}
	u := &unstructured.Unstructured{Object: raw}
	_, err = c.k.applyUnstructured(ctx, u)
	return err
}

// WaitStable polls the Deployment until every replica is ready or
// StabilityWindow elapses, in which case the last-polled ServiceItem is
// returned rather than an error: a slow rollout isn't a failed one
// (spec.md §5).
func (c *Component) WaitStable(ctx context.Context, name string) (model.ServiceItem, error) {
	deadline := time.Now().Add(StabilityWindow)
	var last model.ServiceItem
	for {
		item, err := c.GetService(ctx, name)
		if err != nil {
			return last, err
		}
		last = item
		if item.Status == "Ready" {
			return item, nil
		}
		if time.Now().After(deadline) {
			klog.Warningf("kubernetes: %q did not stabilize within %s, returning current state %q", name, StabilityWindow, item.Status)
			return item, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(stabilityPollInterval):
		}
	}
}

// GetService reads back the Deployment/Service pair as a normalized
// ServiceItem.
func (c *Component) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	dep, err := c.k.clientSet.AppsV1().Deployments(c.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindNotFound, err, "get deployment %q", name)
	}
	status := "Provisioning"
	desired := int32(1)
	if dep.Spec.Replicas != nil {
		desired = *dep.Spec.Replicas
	}
	if dep.Status.ReadyReplicas >= desired && desired > 0 {
		status = "Ready"
	}
	uri := ""
	if svc, err := c.k.clientSet.CoreV1().Services(c.namespace).Get(ctx, name, metav1.GetOptions{}); err == nil && len(svc.Spec.Ports) > 0 {
		uri = fmt.Sprintf("%s.%s.svc.cluster.local:%d", name, c.namespace, svc.Spec.Ports[0].Port)
	}
	return model.ServiceItem{Definition: model.ServiceDefinition{Name: name}, Status: status, URI: uri}, nil
}

// UpdateTraffic assigns canary traffic weights for a service that is
// fronted by an Argo Rollout of the same name (spec.md §4.2 traffic-split
// backend, k8s flavor): it takes the "latest" allocation's Percent as
// the canary weight, since Argo's canary strategy expresses a split as a
// single stable/canary weight rather than arbitrary per-revision percents.
func (c *Component) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	weight, err := canaryWeight(traffic)
	if err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "compute traffic split for %q", name)
	}
	rollouts, err := c.k.NewArgoRolloutsClient(c.namespace)
	if err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindUnsupported, err, "traffic split for %q requires Argo Rollouts", name)
	}
	if _, err := rollouts.SetRolloutWeight(ctx, name, c.namespace, weight); err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "set canary weight for %q", name)
	}
	return c.GetService(ctx, name)
}

// canaryWeight extracts the canary percentage from a two-way traffic
// split; a single "latest" allocation means 100% canary, and any other
// shape (N-way splits Argo canary strategy can't express) is rejected.
func canaryWeight(traffic []model.TrafficAllocation) (int, error) {
	if len(traffic) == 1 {
		return traffic[0].Percent, nil
	}
	if len(traffic) != 2 {
		return 0, fmt.Errorf("argo rollouts canary strategy supports at most a stable/canary split, got %d allocations", len(traffic))
	}
	for _, t := range traffic {
		if t.Latest {
			return t.Percent, nil
		}
	}
	return 0, fmt.Errorf("traffic split must designate one allocation as latest (canary)")
}

// DeleteService removes the Deployment and Service this engine created
// for name, ignoring not-found.
func (c *Component) DeleteService(ctx context.Context, name string) error {
	gvk := schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}
	if err := c.k.ResourcesDelete(ctx, &gvk, c.namespace, name); err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "delete deployment %q", name)
	}
	svcGVK := schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Service"}
	if err := c.k.ResourcesDelete(ctx, &svcGVK, c.namespace, name); err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "delete service %q", name)
	}
	return nil
}
