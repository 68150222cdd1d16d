package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/containerdeployment"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
	"github.com/x8labs/cloudcore/pkg/shell"
)

// AzureContainerAppsConfig configures the ACA provider.
type AzureContainerAppsConfig struct {
	ResourceGroup      string
	Environment        string // Container Apps environment name
	SubscriptionID     string
}

// AzureContainerApps implements Provider against Azure Container Apps,
// which natively supports multiple revisions, revision deletion, traffic
// splitting across revisions, and multi-container (sidecar) apps.
type AzureContainerApps struct {
	cfg AzureContainerAppsConfig
	sh  shell.Shell
}

func NewAzureContainerApps(cfg AzureContainerAppsConfig, sh shell.Shell) *AzureContainerApps {
	return &AzureContainerApps{cfg: cfg, sh: sh}
}

func (a *AzureContainerApps) Supports(f dispatch.Feature) bool {
	switch f {
	case dispatch.FeatureMultipleRevisions, dispatch.FeatureRevisionDelete,
		dispatch.FeatureMultipleContainers, dispatch.FeatureTrafficSplit:
		return true
	default:
		return false
	}
}
func (a *AzureContainerApps) Close(ctx context.Context) error { return nil }

func (a *AzureContainerApps) az(ctx context.Context, out any, args ...string) error {
	argv := append([]string{"az", "containerapp"}, args...)
	argv = append(argv, "--resource-group", a.cfg.ResourceGroup, "--output", "json")
	stdout, exitCode, err := a.sh.Run(ctx, argv, nil)
	if err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "az containerapp %s", strings.Join(args, " "))
	}
	if exitCode != 0 {
		return apierr.New(apierr.KindBadRequest, "az containerapp %s exited %d: %s", strings.Join(args, " "), exitCode, stdout)
	}
	if out != nil && len(stdout) > 0 {
		return json.Unmarshal(stdout, out)
	}
	return nil
}

func (a *AzureContainerApps) containerDefinitions(service model.ServiceDefinition, images []string) []map[string]any {
	defs := make([]map[string]any, 0, len(service.Containers))
	for i, c := range service.Containers {
		image := c.Image
		if i < len(images) && images[i] != "" {
			image = images[i]
		}
		def := map[string]any{"name": c.Name, "image": image}
		if len(c.Command) > 0 {
			def["command"] = c.Command
		}
		if len(c.Args) > 0 {
			def["args"] = c.Args
		}
		if len(c.Env) > 0 {
			var env []map[string]string
			for _, e := range c.Env {
				env = append(env, map[string]string{"name": e.Name, "value": e.Value})
			}
			def["env"] = env
		}
		cores := c.Resources.LimitsCPUCores
		if cores == 0 {
			cores = 0.25
		}
		mem := c.Resources.LimitsMemoryMiB
		def["resources"] = map[string]any{
			"cpu":    cores,
			"memory": containerdeployment.ACAMemoryString(mem),
		}
		defs = append(defs, def)
	}
	return defs
}

func (a *AzureContainerApps) Deploy(ctx context.Context, service model.ServiceDefinition, images []string, whereExists *bool) (model.ServiceItem, error) {
	template := map[string]any{"containers": a.containerDefinitions(service, images)}
	if service.Scale != nil {
		template["scale"] = map[string]any{
			"minReplicas": service.Scale.EffectiveMinReplicas(),
			"maxReplicas": maxOr(service.Scale.MaxReplicas, 10),
		}
	}
	if len(service.Traffic) > 0 {
		var weights []map[string]any
		for _, t := range service.Traffic {
			w := map[string]any{"weight": t.Percent}
			if t.Latest {
				w["latestRevision"] = true
			} else {
				w["revisionName"] = t.Revision
			}
			weights = append(weights, w)
		}
		template["ingress"] = map[string]any{"traffic": weights}
	}

	_, err := a.describe(ctx, service.Name)
	exists := err == nil

	body := map[string]any{"properties": map[string]any{"template": template}}
	bodyJSON, _ := json.Marshal(body)

	klog.V(1).Infof("containerdeployment(aca): deploying %q (exists=%v)", service.Name, exists)
	if exists {
		err = a.az(ctx, nil, "update", "--name", service.Name, "--yaml", string(bodyJSON))
	} else {
		err = a.az(ctx, nil, "create", "--name", service.Name, "--environment", a.cfg.Environment, "--yaml", string(bodyJSON))
	}
	if err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "deploy container app %q", service.Name)
	}
	return model.ServiceItem{Definition: service, Status: containerdeployment.StatusProvisioning}, nil
}

func maxOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func (a *AzureContainerApps) describe(ctx context.Context, name string) (map[string]any, error) {
	var out map[string]any
	if err := a.az(ctx, &out, "show", "--name", name); err != nil {
		return nil, apierr.Wrap(apierr.KindNotFound, err, "container app %q", name)
	}
	return out, nil
}

func (a *AzureContainerApps) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	out, err := a.describe(ctx, name)
	if err != nil {
		return model.ServiceItem{}, err
	}
	status := containerdeployment.StatusProvisioning
	fqdn := ""
	if props, ok := out["properties"].(map[string]any); ok {
		if rs, ok := props["runningStatus"].(string); ok && rs == "Running" {
			status = containerdeployment.StatusReady
		}
		if cfg, ok := props["configuration"].(map[string]any); ok {
			if ing, ok := cfg["ingress"].(map[string]any); ok {
				if f, ok := ing["fqdn"].(string); ok {
					fqdn = f
				}
			}
		}
	}
	uri := ""
	if fqdn != "" {
		uri = "https://" + fqdn
	}
	return model.ServiceItem{Definition: model.ServiceDefinition{Name: name}, URI: uri, Status: status}, nil
}

func (a *AzureContainerApps) DeleteService(ctx context.Context, name string) error {
	return a.az(ctx, nil, "delete", "--name", name, "--yes")
}

func (a *AzureContainerApps) ListServices(ctx context.Context) ([]model.ServiceItem, error) {
	var out []struct {
		Name string `json:"name"`
	}
	argv := []string{"az", "containerapp", "list", "--resource-group", a.cfg.ResourceGroup, "--output", "json"}
	stdout, exitCode, err := a.sh.Run(ctx, argv, nil)
	if err != nil || exitCode != 0 {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list container apps")
	}
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "parse container app list")
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

func (a *AzureContainerApps) ListRevisions(ctx context.Context, name string) ([]model.Revision, error) {
	var out []struct {
		Name       string `json:"name"`
		Active     bool   `json:"active"`
		CreatedTime string `json:"createdTime"`
	}
	argv := []string{"az", "containerapp", "revision", "list", "--name", name, "--resource-group", a.cfg.ResourceGroup, "--output", "json"}
	stdout, exitCode, err := a.sh.Run(ctx, argv, nil)
	if err != nil || exitCode != 0 {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list revisions of %q", name)
	}
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "parse revision list for %q", name)
	}
	revisions := make([]model.Revision, 0, len(out))
	for _, r := range out {
		revisions = append(revisions, model.Revision{ID: r.Name, Current: r.Active})
	}
	return revisions, nil
}

func (a *AzureContainerApps) GetRevision(ctx context.Context, name, revision string) (model.Revision, error) {
	var out struct {
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}
	if err := a.az(ctx, &out, "revision", "show", "--name", name, "--revision", revision); err != nil {
		return model.Revision{}, apierr.Wrap(apierr.KindNotFound, err, "revision %q of %q", revision, name)
	}
	return model.Revision{ID: out.Name, Current: out.Active}, nil
}

func (a *AzureContainerApps) DeleteRevision(ctx context.Context, name, revision string) error {
	return a.az(ctx, nil, "revision", "deactivate", "--name", name, "--revision", revision)
}

func (a *AzureContainerApps) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	var parts []string
	for _, t := range traffic {
		rev := t.Revision
		if t.Latest {
			rev = "latest"
		}
		parts = append(parts, fmt.Sprintf("%s=%d", rev, t.Percent))
	}
	argv := append([]string{"az", "containerapp", "ingress", "traffic", "set",
		"--name", name, "--resource-group", a.cfg.ResourceGroup, "--revision-weight"}, parts...)
	stdout, exitCode, err := a.sh.Run(ctx, argv, nil)
	if err != nil || exitCode != 0 {
		return model.ServiceItem{}, apierr.New(apierr.KindBadRequest, "set traffic weights for %q: %s", name, stdout)
	}
	return a.GetService(ctx, name)
}

func (a *AzureContainerApps) WaitStable(ctx context.Context, name string) (model.ServiceItem, error) {
	deadline := time.Now().Add(containerdeployment.StabilityWindow)
	var last model.ServiceItem
	for {
		item, err := a.GetService(ctx, name)
		if err != nil {
			return last, err
		}
		last = item
		if item.Status == containerdeployment.StatusReady {
			return item, nil
		}
		if time.Now().After(deadline) {
			klog.Warningf("containerdeployment(aca): %q did not stabilize within %s, returning current state %q", name, containerdeployment.StabilityWindow, item.Status)
			return item, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(containerdeployment.StabilityPollInterval):
		}
	}
}
