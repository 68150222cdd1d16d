package providers

import (
	"context"

	"github.com/x8labs/cloudcore/pkg/containerdeployment/providers/ecs"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
	"github.com/x8labs/cloudcore/pkg/shell"
)

// ECSEC2Config configures the EC2-backed ECS launch type: tasks are
// bin-packed onto an auto-scaling group of container instances rather
// than given dedicated Fargate capacity.
type ECSEC2Config struct {
	Region         string
	ClusterName    string
	NetworkMode    string // "bridge" | "host"; "" defaults to "bridge"
	Subnets        []string
	SecurityGroups []string
}

// ECSEC2 is the ECSEC2 provider. Per-container cpu/memory reservations
// drive bin-packing instead of a whole-task Fargate size, so Deploy adds
// no launch-type-specific task-definition fields beyond what the shared
// ecs core already emits per container.
type ECSEC2 struct {
	core *ecs.ECS
}

func NewECSEC2(cfg ECSEC2Config, sh shell.Shell) *ECSEC2 {
	networkMode := cfg.NetworkMode
	if networkMode == "" {
		networkMode = "bridge"
	}
	return &ECSEC2{core: ecs.New(ecs.Config{
		Region:         cfg.Region,
		ClusterName:    cfg.ClusterName,
		LaunchKind:     ecs.LaunchEC2,
		NetworkMode:    networkMode,
		Subnets:        cfg.Subnets,
		SecurityGroups: cfg.SecurityGroups,
	}, sh)}
}

func (e *ECSEC2) Supports(feat dispatch.Feature) bool { return e.core.Supports(feat) }
func (e *ECSEC2) Close(ctx context.Context) error     { return e.core.Close(ctx) }

func (e *ECSEC2) Deploy(ctx context.Context, service model.ServiceDefinition, images []string, whereExists *bool) (model.ServiceItem, error) {
	// EC2 capacity (launch template + auto-scaling group) is assumed
	// pre-provisioned via the cluster's default capacity provider
	// strategy; this adapter reconciles the service and task definition
	// only, the same boundary the teacher's Kubernetes provider draws
	// around node pools it doesn't manage.
	return e.core.Deploy(ctx, service, images, whereExists, nil)
}

func (e *ECSEC2) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	return e.core.GetService(ctx, name)
}
func (e *ECSEC2) DeleteService(ctx context.Context, name string) error {
	return e.core.DeleteService(ctx, name)
}
func (e *ECSEC2) ListServices(ctx context.Context) ([]model.ServiceItem, error) {
	return e.core.ListServices(ctx)
}
func (e *ECSEC2) ListRevisions(ctx context.Context, name string) ([]model.Revision, error) {
	return e.core.ListRevisions(ctx, name)
}
func (e *ECSEC2) GetRevision(ctx context.Context, name, revision string) (model.Revision, error) {
	return e.core.GetRevision(ctx, name, revision)
}
func (e *ECSEC2) DeleteRevision(ctx context.Context, name, revision string) error {
	return e.core.DeleteRevision(ctx, name, revision)
}
func (e *ECSEC2) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	return e.core.UpdateTraffic(ctx, name, traffic)
}
func (e *ECSEC2) WaitStable(ctx context.Context, name string) (model.ServiceItem, error) {
	return e.core.WaitStable(ctx, name)
}
