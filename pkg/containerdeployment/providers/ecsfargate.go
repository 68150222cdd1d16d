package providers

import (
	"context"
	"fmt"

	"github.com/x8labs/cloudcore/pkg/containerdeployment"
	"github.com/x8labs/cloudcore/pkg/containerdeployment/providers/ecs"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
	"github.com/x8labs/cloudcore/pkg/shell"
)

// ECSFargateConfig configures the serverless ECS launch type.
type ECSFargateConfig struct {
	Region         string
	ClusterName    string
	Subnets        []string
	SecurityGroups []string
	AssignPublicIP bool
}

// ECSFargate is the ECSFargate provider: every task is sized to one of
// Fargate's legal (cpu, memory) pairs (spec.md §4.1's "Fargate
// quantization table").
type ECSFargate struct {
	core *ecs.ECS
}

func NewECSFargate(cfg ECSFargateConfig, sh shell.Shell) *ECSFargate {
	return &ECSFargate{core: ecs.New(ecs.Config{
		Region:         cfg.Region,
		ClusterName:    cfg.ClusterName,
		LaunchKind:     ecs.LaunchFargate,
		NetworkMode:    "awsvpc",
		Subnets:        cfg.Subnets,
		SecurityGroups: cfg.SecurityGroups,
		AssignPublicIP: cfg.AssignPublicIP,
	}, sh)}
}

func (f *ECSFargate) Supports(feat dispatch.Feature) bool { return f.core.Supports(feat) }
func (f *ECSFargate) Close(ctx context.Context) error     { return f.core.Close(ctx) }

func (f *ECSFargate) Deploy(ctx context.Context, service model.ServiceDefinition, images []string, whereExists *bool) (model.ServiceItem, error) {
	cpuUnits, memMiB, err := aggregateFargateSize(service)
	if err != nil {
		return model.ServiceItem{}, err
	}
	extra := map[string]any{
		"requiresCompatibilities": []string{"FARGATE"},
		"cpu":                     fmt.Sprintf("%d", cpuUnits),
		"memory":                  fmt.Sprintf("%d", memMiB),
	}
	return f.core.Deploy(ctx, service, images, whereExists, extra)
}

func (f *ECSFargate) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	return f.core.GetService(ctx, name)
}
func (f *ECSFargate) DeleteService(ctx context.Context, name string) error {
	return f.core.DeleteService(ctx, name)
}
func (f *ECSFargate) ListServices(ctx context.Context) ([]model.ServiceItem, error) {
	return f.core.ListServices(ctx)
}
func (f *ECSFargate) ListRevisions(ctx context.Context, name string) ([]model.Revision, error) {
	return f.core.ListRevisions(ctx, name)
}
func (f *ECSFargate) GetRevision(ctx context.Context, name, revision string) (model.Revision, error) {
	return f.core.GetRevision(ctx, name, revision)
}
func (f *ECSFargate) DeleteRevision(ctx context.Context, name, revision string) error {
	return f.core.DeleteRevision(ctx, name, revision)
}
func (f *ECSFargate) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	return f.core.UpdateTraffic(ctx, name, traffic)
}
func (f *ECSFargate) WaitStable(ctx context.Context, name string) (model.ServiceItem, error) {
	return f.core.WaitStable(ctx, name)
}

// aggregateFargateSize sums every container's requested cpu/memory (main
// and init containers run concurrently within one Fargate task, so the
// task must be sized for the sum, not the max) and quantizes the result.
func aggregateFargateSize(service model.ServiceDefinition) (cpuUnits, memMiB int, err error) {
	var totalCores float64
	var totalMiB int64
	for _, c := range service.Containers {
		cores := c.Resources.LimitsCPUCores
		if cores == 0 {
			cores = c.Resources.RequestsCPUCores
		}
		mem := c.Resources.LimitsMemoryMiB
		if mem == 0 {
			mem = c.Resources.RequestsMemoryMiB
		}
		totalCores += cores
		totalMiB += mem
	}
	if totalCores == 0 {
		totalCores = 0.25
	}
	if totalMiB == 0 {
		totalMiB = 512
	}
	cpuUnits, memMiB, err = containerdeployment.QuantizeFargateCPUMemory(
		containerdeployment.CoresToFargateUnits(totalCores), int(totalMiB))
	return
}
