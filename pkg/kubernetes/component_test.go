package kubernetes

import (
	"testing"

	"github.com/x8labs/cloudcore/pkg/model"
)

func testService() model.ServiceDefinition {
	return model.ServiceDefinition{
		Name: "web",
		Containers: []model.Container{
			{
				Name:  "app",
				Type:  model.MainContainer,
				Image: "example/app:v1",
				Ports: []model.Port{{Name: "http", ContainerPort: 8080}},
			},
		},
		Scale: &model.Scale{Mode: model.ScaleManual, Replicas: 3},
	}
}

func TestBuildDeploymentUsesEffectiveMinReplicas(t *testing.T) {
	c := &Component{namespace: "ns"}
	dep := c.buildDeployment(testService())
	if dep.Namespace != "ns" {
		t.Fatalf("namespace = %q, want ns", dep.Namespace)
	}
	if *dep.Spec.Replicas != 3 {
		t.Fatalf("replicas = %d, want 3", *dep.Spec.Replicas)
	}
	if len(dep.Spec.Template.Spec.Containers) != 1 {
		t.Fatalf("containers = %d, want 1", len(dep.Spec.Template.Spec.Containers))
	}
	if dep.Spec.Template.Spec.Containers[0].Image != "example/app:v1" {
		t.Fatalf("image = %q", dep.Spec.Template.Spec.Containers[0].Image)
	}
}

func TestBuildDeploymentDefaultsReplicasWithoutScale(t *testing.T) {
	c := &Component{namespace: "ns"}
	service := testService()
	service.Scale = nil
	dep := c.buildDeployment(service)
	if *dep.Spec.Replicas != 1 {
		t.Fatalf("replicas = %d, want 1", *dep.Spec.Replicas)
	}
}

func TestHasIngressPortsRequiresMainContainer(t *testing.T) {
	service := testService()
	if !hasIngressPorts(service) {
		t.Fatal("expected ingress ports from the main container")
	}
	service.Containers[0].Type = model.InitContainer
	if hasIngressPorts(service) {
		t.Fatal("init containers should not count toward ingress ports")
	}
}

func TestBuildServiceDerivesPortsFromMainContainers(t *testing.T) {
	c := &Component{namespace: "ns"}
	svc := c.buildService(testService())
	if len(svc.Spec.Ports) != 1 {
		t.Fatalf("ports = %d, want 1", len(svc.Spec.Ports))
	}
	if svc.Spec.Ports[0].Port != 8080 {
		t.Fatalf("port = %d, want 8080", svc.Spec.Ports[0].Port)
	}
}

func TestRewriteImagesSubstitutesInOrder(t *testing.T) {
	service := testService()
	service.Containers = append(service.Containers, model.Container{Name: "sidecar", Type: model.MainContainer})
	rewriteImages(&service, []string{"resolved/app:v2", ""})
	if service.Containers[0].Image != "resolved/app:v2" {
		t.Fatalf("container 0 image = %q", service.Containers[0].Image)
	}
	if service.Containers[1].Image != "" {
		t.Fatalf("container 1 image should be left untouched, got %q", service.Containers[1].Image)
	}
}

func TestCanaryWeightSingleAllocationIsFullCanary(t *testing.T) {
	weight, err := canaryWeight([]model.TrafficAllocation{{Revision: "rev-2", Percent: 100, Latest: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if weight != 100 {
		t.Fatalf("weight = %d, want 100", weight)
	}
}

func TestCanaryWeightTwoWaySplitPicksLatest(t *testing.T) {
	weight, err := canaryWeight([]model.TrafficAllocation{
		{Revision: "rev-1", Percent: 80},
		{Revision: "rev-2", Percent: 20, Latest: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if weight != 20 {
		t.Fatalf("weight = %d, want 20", weight)
	}
}

func TestCanaryWeightRejectsUnsupportedShapes(t *testing.T) {
	_, err := canaryWeight([]model.TrafficAllocation{
		{Revision: "rev-1", Percent: 34},
		{Revision: "rev-2", Percent: 33},
		{Revision: "rev-3", Percent: 33, Latest: true},
	})
	if err == nil {
		t.Fatal("expected an error for a three-way split")
	}
}

func TestToCoreProbeTranslatesHTTPGet(t *testing.T) {
	probe := toCoreProbe(&model.Probe{
		Action: model.ProbeAction{HTTPGet: &model.HTTPGetAction{Path: "/healthz", Port: 8080}},
	})
	if probe == nil || probe.HTTPGet == nil {
		t.Fatal("expected an HTTPGet probe")
	}
	if probe.HTTPGet.Path != "/healthz" {
		t.Fatalf("path = %q", probe.HTTPGet.Path)
	}
	if probe.PeriodSeconds != 10 {
		t.Fatalf("default PeriodSeconds = %d, want 10", probe.PeriodSeconds)
	}
}

func TestToCoreProbeNilWhenNoAction(t *testing.T) {
	if toCoreProbe(&model.Probe{}) != nil {
		t.Fatal("expected nil probe when no action is set")
	}
	if toCoreProbe(nil) != nil {
		t.Fatal("expected nil probe for nil input")
	}
}
