package providers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/containerdeployment"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
	"github.com/x8labs/cloudcore/pkg/shell"
)

// AzureContainerInstancesConfig configures the ACI provider.
type AzureContainerInstancesConfig struct {
	ResourceGroup string
	Location      string
}

// AzureContainerInstances implements Provider against Azure Container
// Instances, a bare container-group sandbox with no revision history and
// no traffic splitting: every deploy replaces the group outright.
type AzureContainerInstances struct {
	cfg AzureContainerInstancesConfig
	sh  shell.Shell
}

func NewAzureContainerInstances(cfg AzureContainerInstancesConfig, sh shell.Shell) *AzureContainerInstances {
	return &AzureContainerInstances{cfg: cfg, sh: sh}
}

func (a *AzureContainerInstances) Supports(f dispatch.Feature) bool {
	return f == dispatch.FeatureMultipleContainers
}
func (a *AzureContainerInstances) Close(ctx context.Context) error { return nil }

func (a *AzureContainerInstances) az(ctx context.Context, out any, args ...string) error {
	argv := append([]string{"az", "container"}, args...)
	argv = append(argv, "--resource-group", a.cfg.ResourceGroup, "--output", "json")
	stdout, exitCode, err := a.sh.Run(ctx, argv, nil)
	if err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "az container %s", strings.Join(args, " "))
	}
	if exitCode != 0 {
		return apierr.New(apierr.KindBadRequest, "az container %s exited %d: %s", strings.Join(args, " "), exitCode, stdout)
	}
	if out != nil && len(stdout) > 0 {
		return json.Unmarshal(stdout, out)
	}
	return nil
}

func (a *AzureContainerInstances) containerDefinitions(service model.ServiceDefinition, images []string) []map[string]any {
	defs := make([]map[string]any, 0, len(service.Containers))
	for i, c := range service.Containers {
		image := c.Image
		if i < len(images) && images[i] != "" {
			image = images[i]
		}
		cores := c.Resources.LimitsCPUCores
		if cores == 0 {
			cores = 1
		}
		memGiB, err := containerdeployment.ParseACAMemoryString(containerdeployment.ACAMemoryString(c.Resources.LimitsMemoryMiB))
		if err != nil || memGiB == 0 {
			memGiB = 1536
		}
		def := map[string]any{
			"name":  c.Name,
			"image": image,
			"resources": map[string]any{
				"requests": map[string]any{
					"cpu":        cores,
					"memoryInGB": float64(memGiB) / 1024.0,
				},
			},
		}
		if len(c.Ports) > 0 {
			var ports []map[string]any
			for _, p := range c.Ports {
				ports = append(ports, map[string]any{"port": p.ContainerPort})
			}
			def["ports"] = ports
		}
		if len(c.Env) > 0 {
			var env []map[string]string
			for _, e := range c.Env {
				env = append(env, map[string]string{"name": e.Name, "value": e.Value})
			}
			def["environmentVariables"] = env
		}
		if len(c.Command) > 0 {
			def["command"] = append(append([]string{}, c.Command...), c.Args...)
		}
		defs = append(defs, def)
	}
	return defs
}

// Deploy replaces the container group wholesale: ACI has no in-place
// update for container specs, only restart-policy and a handful of
// mutable fields, so an existing group is deleted before recreation.
func (a *AzureContainerInstances) Deploy(ctx context.Context, service model.ServiceDefinition, images []string, whereExists *bool) (model.ServiceItem, error) {
	_, err := a.describe(ctx, service.Name)
	exists := err == nil
	if exists {
		klog.V(1).Infof("containerdeployment(aci): recreating container group %q", service.Name)
		if err := a.DeleteService(ctx, service.Name); err != nil {
			return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "recreate container group %q", service.Name)
		}
	}

	body := map[string]any{
		"location":   a.cfg.Location,
		"properties": map[string]any{"containers": a.containerDefinitions(service, images), "osType": "Linux", "restartPolicy": "Always"},
	}
	if service.Containers[0].HasExposedPorts() {
		var ports []map[string]any
		for _, c := range service.Containers {
			for _, p := range c.Ports {
				ports = append(ports, map[string]any{"port": p.ContainerPort, "protocol": "TCP"})
			}
		}
		body["properties"].(map[string]any)["ipAddress"] = map[string]any{"type": "Public", "ports": ports}
	}
	bodyJSON, _ := json.Marshal(body)

	if err := a.az(ctx, nil, "create", "--name", service.Name, "--yaml", string(bodyJSON)); err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "create container group %q", service.Name)
	}
	return model.ServiceItem{Definition: service, Status: containerdeployment.StatusProvisioning}, nil
}

func (a *AzureContainerInstances) describe(ctx context.Context, name string) (map[string]any, error) {
	var out map[string]any
	if err := a.az(ctx, &out, "show", "--name", name); err != nil {
		return nil, apierr.Wrap(apierr.KindNotFound, err, "container group %q", name)
	}
	return out, nil
}

func (a *AzureContainerInstances) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	out, err := a.describe(ctx, name)
	if err != nil {
		return model.ServiceItem{}, err
	}
	status := containerdeployment.StatusProvisioning
	ip := ""
	if props, ok := out["properties"].(map[string]any); ok {
		if state, ok := props["instanceView"].(map[string]any); ok {
			if s, ok := state["state"].(string); ok {
				switch s {
				case "Running":
					status = containerdeployment.StatusReady
				case "Failed", "Stopped":
					status = containerdeployment.StatusFailed
				}
			}
		}
		if ipAddr, ok := props["ipAddress"].(map[string]any); ok {
			if ipStr, ok := ipAddr["ip"].(string); ok {
				ip = ipStr
			}
		}
	}
	return model.ServiceItem{Definition: model.ServiceDefinition{Name: name}, URI: ip, Status: status}, nil
}

func (a *AzureContainerInstances) DeleteService(ctx context.Context, name string) error {
	return a.az(ctx, nil, "delete", "--name", name, "--yes")
}

func (a *AzureContainerInstances) ListServices(ctx context.Context) ([]model.ServiceItem, error) {
	var out []struct {
		Name string `json:"name"`
	}
	argv := []string{"az", "container", "list", "--resource-group", a.cfg.ResourceGroup, "--output", "json"}
	stdout, exitCode, err := a.sh.Run(ctx, argv, nil)
	if err != nil || exitCode != 0 {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list container groups")
	}
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "parse container group list")
	}
	items := make([]model.ServiceItem, 0, len(out))
	for _, s := range out {
		item, err := a.GetService(ctx, s.Name)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *AzureContainerInstances) ListRevisions(ctx context.Context, name string) ([]model.Revision, error) {
	return nil, apierr.New(apierr.KindUnsupported, "container instances does not keep revision history")
}
func (a *AzureContainerInstances) GetRevision(ctx context.Context, name, revision string) (model.Revision, error) {
	return model.Revision{}, apierr.New(apierr.KindUnsupported, "container instances does not keep revision history")
}
func (a *AzureContainerInstances) DeleteRevision(ctx context.Context, name, revision string) error {
	return apierr.New(apierr.KindUnsupported, "container instances does not keep revision history")
}
// UpdateTraffic has nothing to split across: a container group is one
// deployment served at 100%. A single allocation naming that implicit
// deployment (empty revision, or Latest) is already satisfied.
func (a *AzureContainerInstances) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	if len(traffic) == 1 && traffic[0].Percent == 100 && (traffic[0].Latest || traffic[0].Revision == "") {
		return a.GetService(ctx, name)
	}
	return model.ServiceItem{}, apierr.New(apierr.KindUnsupported, "container instances does not support traffic splitting")
}

func (a *AzureContainerInstances) WaitStable(ctx context.Context, name string) (model.ServiceItem, error) {
	deadline := time.Now().Add(containerdeployment.StabilityWindow)
	var last model.ServiceItem
	for {
		item, err := a.GetService(ctx, name)
		if err != nil {
			return last, err
		}
		last = item
		if item.Status == containerdeployment.StatusReady || item.Status == containerdeployment.StatusFailed {
			return item, nil
		}
		if time.Now().After(deadline) {
			klog.Warningf("containerdeployment(aci): %q did not stabilize within %s, returning current state %q", name, containerdeployment.StabilityWindow, item.Status)
			return item, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(containerdeployment.StabilityPollInterval):
		}
	}
}
