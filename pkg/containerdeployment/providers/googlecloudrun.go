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

// CloudRunConfig configures the Cloud Run provider.
type CloudRunConfig struct {
	Project  string
	Region   string
	Platform string // "managed" by default
}

// CloudRun implements Provider against Google Cloud Run, which keeps every
// revision created by a deploy and splits ingress traffic across them by
// percentage, but runs at most one container per revision.
type CloudRun struct {
	cfg CloudRunConfig
	sh  shell.Shell
}

func NewCloudRun(cfg CloudRunConfig, sh shell.Shell) *CloudRun {
	if cfg.Platform == "" {
		cfg.Platform = "managed"
	}
	return &CloudRun{cfg: cfg, sh: sh}
}

func (c *CloudRun) Supports(f dispatch.Feature) bool {
	switch f {
	case dispatch.FeatureMultipleRevisions, dispatch.FeatureRevisionDelete, dispatch.FeatureTrafficSplit:
		return true
	default:
		return false
	}
}
func (c *CloudRun) Close(ctx context.Context) error { return nil }

func (c *CloudRun) gcloud(ctx context.Context, out any, args ...string) error {
	argv := append([]string{"gcloud", "run"}, args...)
	argv = append(argv, "--project", c.cfg.Project, "--region", c.cfg.Region, "--platform", c.cfg.Platform, "--format", "json")
	stdout, exitCode, err := c.sh.Run(ctx, argv, nil)
	if err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "gcloud run %s", strings.Join(args, " "))
	}
	if exitCode != 0 {
		return apierr.New(apierr.KindBadRequest, "gcloud run %s exited %d: %s", strings.Join(args, " "), exitCode, stdout)
	}
	if out != nil && len(stdout) > 0 {
		return json.Unmarshal(stdout, out)
	}
	return nil
}

func (c *CloudRun) Deploy(ctx context.Context, service model.ServiceDefinition, images []string, whereExists *bool) (model.ServiceItem, error) {
	if len(service.Containers) != 1 {
		return model.ServiceItem{}, apierr.New(apierr.KindBadRequest, "cloud run supports exactly one container, got %d", len(service.Containers))
	}
	main := service.Containers[0]
	image := main.Image
	if len(images) == 1 {
		image = images[0]
	}

	cores := main.Resources.LimitsCPUCores
	if cores == 0 {
		cores = 1
	}
	mem := main.Resources.LimitsMemoryMiB
	if mem == 0 {
		mem = 512
	}

	args := []string{"deploy", service.Name, "--image", image,
		"--cpu", formatCloudRunCPU(cores),
		"--memory", fmt.Sprintf("%dMi", mem),
		"--no-traffic",
	}
	if service.Scale != nil {
		args = append(args, "--min-instances", fmt.Sprintf("%d", service.Scale.EffectiveMinReplicas()))
		if service.Scale.MaxReplicas > 0 {
			args = append(args, "--max-instances", fmt.Sprintf("%d", service.Scale.MaxReplicas))
		}
	}
	if len(main.Ports) > 0 {
		args = append(args, "--port", fmt.Sprintf("%d", main.Ports[0].ContainerPort))
	}
	if len(main.Env) > 0 {
		var pairs []string
		for _, e := range main.Env {
			pairs = append(pairs, e.Name+"="+e.Value)
		}
		args = append(args, "--set-env-vars", strings.Join(pairs, ","))
	}
	if main.StartupProbe != nil || main.LivenessProbe != nil {
		// Cloud Run's startup probe is a single CMD/HTTP check baked into
		// the revision, distinct from ECS's task-definition healthCheck;
		// no CLI equivalent for ProbeToECSHealthCheck is wired here since
		// gcloud run deploy has no --startup-probe flag as of this build.
		klog.V(2).Infof("containerdeployment(cloudrun): probe on %q not translated, unsupported by gcloud run deploy", service.Name)
	}

	klog.V(1).Infof("containerdeployment(cloudrun): deploying revision for %q", service.Name)
	if err := c.gcloud(ctx, nil, args...); err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "deploy cloud run service %q", service.Name)
	}
	return model.ServiceItem{Definition: service, Status: containerdeployment.StatusProvisioning}, nil
}

func formatCloudRunCPU(cores float64) string {
	if cores == float64(int(cores)) {
		return fmt.Sprintf("%d", int(cores))
	}
	return fmt.Sprintf("%dm", int(cores*1000))
}

func (c *CloudRun) describe(ctx context.Context, name string) (map[string]any, error) {
	var out map[string]any
	if err := c.gcloud(ctx, &out, "services", "describe", name); err != nil {
		return nil, apierr.Wrap(apierr.KindNotFound, err, "cloud run service %q", name)
	}
	return out, nil
}

func (c *CloudRun) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	out, err := c.describe(ctx, name)
	if err != nil {
		return model.ServiceItem{}, err
	}
	status := containerdeployment.StatusProvisioning
	uri := ""
	if u, ok := out["status"].(map[string]any)["url"].(string); ok {
		uri = u
	}
	if conds, ok := out["status"].(map[string]any)["conditions"].([]any); ok {
		for _, raw := range conds {
			cond, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if cond["type"] == "Ready" {
				switch cond["status"] {
				case "True":
					status = containerdeployment.StatusReady
				case "False":
					status = containerdeployment.StatusFailed
				}
			}
		}
	}
	return model.ServiceItem{Definition: model.ServiceDefinition{Name: name}, URI: uri, Status: status}, nil
}

func (c *CloudRun) DeleteService(ctx context.Context, name string) error {
	return c.gcloud(ctx, nil, "services", "delete", name, "--quiet")
}

func (c *CloudRun) ListServices(ctx context.Context) ([]model.ServiceItem, error) {
	var out []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	}
	if err := c.gcloud(ctx, &out, "services", "list"); err != nil {
		return nil, err
	}
	items := make([]model.ServiceItem, 0, len(out))
	for _, s := range out {
		item, err := c.GetService(ctx, s.Metadata.Name)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// servingRevision returns the revision currently receiving 100% of a
// service's traffic, used to resolve Revision.Current.
func (c *CloudRun) servingRevision(ctx context.Context, name string) (string, error) {
	out, err := c.describe(ctx, name)
	if err != nil {
		return "", err
	}
	status, _ := out["status"].(map[string]any)
	traffic, _ := status["traffic"].([]any)
	for _, raw := range traffic {
		t, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if pct, ok := t["percent"].(float64); ok && pct == 100 {
			if rn, ok := t["revisionName"].(string); ok {
				return rn, nil
			}
		}
	}
	return "", nil
}

func (c *CloudRun) ListRevisions(ctx context.Context, name string) ([]model.Revision, error) {
	var out []struct {
		Metadata struct {
			Name   string            `json:"name"`
			Labels map[string]string `json:"labels"`
		} `json:"metadata"`
	}
	if err := c.gcloud(ctx, &out, "revisions", "list", "--service", name); err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list revisions of %q", name)
	}
	serving, _ := c.servingRevision(ctx, name)
	revisions := make([]model.Revision, 0, len(out))
	for _, r := range out {
		revisions = append(revisions, model.Revision{ID: r.Metadata.Name, Current: serving != "" && r.Metadata.Name == serving})
	}
	return revisions, nil
}

func (c *CloudRun) GetRevision(ctx context.Context, name, revision string) (model.Revision, error) {
	var out struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	}
	if err := c.gcloud(ctx, &out, "revisions", "describe", revision); err != nil {
		return model.Revision{}, apierr.Wrap(apierr.KindNotFound, err, "revision %q of %q", revision, name)
	}
	serving, _ := c.servingRevision(ctx, name)
	return model.Revision{ID: out.Metadata.Name, Current: serving != "" && out.Metadata.Name == serving}, nil
}

func (c *CloudRun) DeleteRevision(ctx context.Context, name, revision string) error {
	return c.gcloud(ctx, nil, "revisions", "delete", revision, "--quiet")
}

func (c *CloudRun) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	args := []string{"services", "update-traffic", name}
	for _, t := range traffic {
		if t.Latest {
			args = append(args, "--to-latest", fmt.Sprintf("%d", t.Percent))
		} else {
			args = append(args, "--to-revisions", fmt.Sprintf("%s=%d", t.Revision, t.Percent))
		}
	}
	if err := c.gcloud(ctx, nil, args...); err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "update traffic for %q", name)
	}
	return c.GetService(ctx, name)
}

func (c *CloudRun) WaitStable(ctx context.Context, name string) (model.ServiceItem, error) {
	deadline := time.Now().Add(containerdeployment.StabilityWindow)
	var last model.ServiceItem
	for {
		item, err := c.GetService(ctx, name)
		if err != nil {
			return last, err
		}
		last = item
		if item.Status == containerdeployment.StatusReady || item.Status == containerdeployment.StatusFailed {
			return item, nil
		}
		if time.Now().After(deadline) {
			klog.Warningf("containerdeployment(cloudrun): %q did not stabilize within %s, returning current state %q", name, containerdeployment.StabilityWindow, item.Status)
			return item, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(containerdeployment.StabilityPollInterval):
		}
	}
}
