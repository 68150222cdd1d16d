package containerdeployment

import (
	"context"

	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
)

// Provider is implemented by each compute backend (ecsfargate, ecsec2,
// apprunner, azurecontainerapps, azurecontainerinstances, googlecloudrun,
// dockerlocal). Deploy carries out step 5-6 of the reconciliation
// algorithm (reconcile prerequisites, apply service); the remaining steps
// are identical across providers and live in Component.
type Provider interface {
	dispatch.Provider

	Deploy(ctx context.Context, service model.ServiceDefinition, images []string, whereExists *bool) (model.ServiceItem, error)
	GetService(ctx context.Context, name string) (model.ServiceItem, error)
	DeleteService(ctx context.Context, name string) error
	ListServices(ctx context.Context) ([]model.ServiceItem, error)
	ListRevisions(ctx context.Context, name string) ([]model.Revision, error)
	GetRevision(ctx context.Context, name, revision string) (model.Revision, error)
	DeleteRevision(ctx context.Context, name, revision string) error
	UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error)
}

// Stabilizer is implemented by providers with a native "wait until
// rollout settles" primitive (ECS's DescribeServices deployment status,
// Cloud Run's long-running Operations). Providers without one fall back
// to Component's GetService-polling loop.
type Stabilizer interface {
	WaitStable(ctx context.Context, name string) (model.ServiceItem, error)
}
