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

// AppRunnerConfig configures the AWS App Runner provider.
type AppRunnerConfig struct {
	Region       string
	AccessRoleARN string // grants App Runner pull access to the image repo
}

// AppRunner implements Provider against AWS App Runner: always exactly
// one container, no traffic splitting or revision history beyond App
// Runner's own deployment log (spec.md §4.1 feature matrix: App Runner
// supports none of MULTIPLE_REVISIONS/REVISION_DELETE/MULTIPLE_CONTAINERS/
// TRAFFIC_SPLIT).
type AppRunner struct {
	cfg AppRunnerConfig
	sh  shell.Shell
}

func NewAppRunner(cfg AppRunnerConfig, sh shell.Shell) *AppRunner {
	return &AppRunner{cfg: cfg, sh: sh}
}

func (a *AppRunner) Supports(f dispatch.Feature) bool { return false }
func (a *AppRunner) Close(ctx context.Context) error  { return nil }

func (a *AppRunner) aws(ctx context.Context, out any, args ...string) error {
	argv := append([]string{"aws", "apprunner"}, args...)
	argv = append(argv, "--region", a.cfg.Region, "--output", "json")
	stdout, exitCode, err := a.sh.Run(ctx, argv, nil)
	if err != nil {
		return apierr.Wrap(apierr.KindBadRequest, err, "aws apprunner %s", strings.Join(args, " "))
	}
	if exitCode != 0 {
		return apierr.New(apierr.KindBadRequest, "aws apprunner %s exited %d: %s", strings.Join(args, " "), exitCode, stdout)
	}
	if out != nil && len(stdout) > 0 {
		return json.Unmarshal(stdout, out)
	}
	return nil
}

func (a *AppRunner) serviceARN(ctx context.Context, name string) (string, error) {
	var out struct {
		ServiceSummaryList []struct {
			ServiceName string `json:"ServiceName"`
			ServiceArn  string `json:"ServiceArn"`
		} `json:"ServiceSummaryList"`
	}
	if err := a.aws(ctx, &out, "list-services"); err != nil {
		return "", err
	}
	for _, s := range out.ServiceSummaryList {
		if s.ServiceName == name {
			return s.ServiceArn, nil
		}
	}
	return "", apierr.New(apierr.KindNotFound, "app runner service %q not found", name)
}

func (a *AppRunner) Deploy(ctx context.Context, service model.ServiceDefinition, images []string, whereExists *bool) (model.ServiceItem, error) {
	if len(service.Containers) != 1 {
		return model.ServiceItem{}, apierr.New(apierr.KindBadRequest, "app runner supports exactly one container, got %d", len(service.Containers))
	}
	main := service.Containers[0]
	image := main.Image
	if len(images) == 1 {
		image = images[0]
	}

	cores := main.Resources.LimitsCPUCores
	mem := main.Resources.LimitsMemoryMiB
	cpu, memory := containerdeployment.AppRunnerInstanceClass(cores, mem)

	sourceConfig := map[string]any{
		"ImageRepository": map[string]any{
			"ImageIdentifier":     image,
			"ImageRepositoryType": "ECR",
			"ImageConfiguration":  appRunnerImageConfiguration(main),
		},
		"AutoDeploymentsEnabled": false,
	}
	if a.cfg.AccessRoleARN != "" {
		sourceConfig["AuthenticationConfiguration"] = map[string]any{"AccessRoleArn": a.cfg.AccessRoleARN}
	}
	instanceConfig := map[string]any{"Cpu": cpu, "Memory": memory}

	arn, err := a.serviceARN(ctx, service.Name)
	exists := err == nil

	body := map[string]any{
		"ServiceName":            service.Name,
		"SourceConfiguration":    sourceConfig,
		"InstanceConfiguration":  instanceConfig,
	}
	bodyJSON, _ := json.Marshal(body)

	klog.V(1).Infof("containerdeployment(apprunner): deploying %q", service.Name)
	if exists {
		update := map[string]any{
			"ServiceArn":             arn,
			"SourceConfiguration":    sourceConfig,
			"InstanceConfiguration":  instanceConfig,
		}
		b, _ := json.Marshal(update)
		err = a.aws(ctx, nil, "update-service", "--cli-input-json", string(b))
	} else {
		err = a.aws(ctx, nil, "create-service", "--cli-input-json", string(bodyJSON))
	}
	if err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "deploy app runner service %q", service.Name)
	}
	return model.ServiceItem{Definition: service, Status: containerdeployment.StatusProvisioning}, nil
}

func appRunnerImageConfiguration(c model.Container) map[string]any {
	cfg := map[string]any{}
	if len(c.Ports) > 0 {
		cfg["Port"] = fmt.Sprintf("%d", c.Ports[0].ContainerPort)
	}
	if len(c.Command) > 0 {
		full := append(append([]string{}, c.Command...), c.Args...)
		cfg["StartCommand"] = strings.Join(full, " ")
	}
	if len(c.Env) > 0 {
		env := map[string]string{}
		for _, e := range c.Env {
			env[e.Name] = e.Value
		}
		cfg["RuntimeEnvironmentVariables"] = env
	}
	return cfg
}

func (a *AppRunner) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	arn, err := a.serviceARN(ctx, name)
	if err != nil {
		return model.ServiceItem{}, err
	}
	var out struct {
		Service struct {
			Status      string `json:"Status"`
			ServiceUrl  string `json:"ServiceUrl"`
		} `json:"Service"`
	}
	if err := a.aws(ctx, &out, "describe-service", "--service-arn", arn); err != nil {
		return model.ServiceItem{}, err
	}
	status := containerdeployment.StatusProvisioning
	switch out.Service.Status {
	case "RUNNING":
		status = containerdeployment.StatusReady
	case "CREATE_FAILED", "DELETE_FAILED":
		status = containerdeployment.StatusFailed
	}
	return model.ServiceItem{
		Definition: model.ServiceDefinition{Name: name},
		URI:        "https://" + out.Service.ServiceUrl,
		Status:     status,
	}, nil
}

func (a *AppRunner) DeleteService(ctx context.Context, name string) error {
	arn, err := a.serviceARN(ctx, name)
	if err != nil {
		return err
	}
	return a.aws(ctx, nil, "delete-service", "--service-arn", arn)
}

func (a *AppRunner) ListServices(ctx context.Context) ([]model.ServiceItem, error) {
	var out struct {
		ServiceSummaryList []struct {
			ServiceName string `json:"ServiceName"`
		} `json:"ServiceSummaryList"`
	}
	if err := a.aws(ctx, &out, "list-services"); err != nil {
		return nil, err
	}
	items := make([]model.ServiceItem, 0, len(out.ServiceSummaryList))
	for _, s := range out.ServiceSummaryList {
		item, err := a.GetService(ctx, s.ServiceName)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *AppRunner) ListRevisions(ctx context.Context, name string) ([]model.Revision, error) {
	return nil, apierr.New(apierr.KindUnsupported, "app runner does not expose discrete revisions")
}
func (a *AppRunner) GetRevision(ctx context.Context, name, revision string) (model.Revision, error) {
	return model.Revision{}, apierr.New(apierr.KindUnsupported, "app runner does not expose discrete revisions")
}
func (a *AppRunner) DeleteRevision(ctx context.Context, name, revision string) error {
	return apierr.New(apierr.KindUnsupported, "app runner does not expose discrete revisions")
}
// UpdateTraffic has nothing to split across: App Runner serves exactly
// one deployment at 100%. A single allocation naming that implicit
// deployment (empty revision, or Latest) is already satisfied; anything
// else has no second revision to address.
func (a *AppRunner) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	if len(traffic) == 1 && traffic[0].Percent == 100 && (traffic[0].Latest || traffic[0].Revision == "") {
		return a.GetService(ctx, name)
	}
	return model.ServiceItem{}, apierr.New(apierr.KindUnsupported, "app runner does not support traffic splitting")
}

func (a *AppRunner) WaitStable(ctx context.Context, name string) (model.ServiceItem, error) {
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
			klog.Warningf("containerdeployment(apprunner): %q did not stabilize within %s, returning current state %q", name, containerdeployment.StabilityWindow, item.Status)
			return item, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(containerdeployment.StabilityPollInterval):
		}
	}
}
