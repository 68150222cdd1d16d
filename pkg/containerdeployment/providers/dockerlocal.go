package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/containerdeployment"
	"github.com/x8labs/cloudcore/pkg/containerizer"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
)

// DockerLocal implements Provider against the local Docker daemon via
// pkg/containerizer, for single-machine development deployments where
// no cloud account is configured. It supports multi-container services
// (one container started per definition entry) but has no revision
// history or traffic splitting: every deploy stops and restarts the
// named service's containers.
type DockerLocal struct {
	cz *containerizer.Component

	mu       sync.Mutex
	services map[string]dockerLocalService
}

type dockerLocalService struct {
	definition model.ServiceDefinition
	containers []containerizer.ContainerItem
}

func NewDockerLocal(cz *containerizer.Component) *DockerLocal {
	return &DockerLocal{cz: cz, services: make(map[string]dockerLocalService)}
}

func (d *DockerLocal) Supports(f dispatch.Feature) bool {
	return f == dispatch.FeatureMultipleContainers
}
func (d *DockerLocal) Close(ctx context.Context) error { return nil }

func (d *DockerLocal) Deploy(ctx context.Context, service model.ServiceDefinition, images []string, whereExists *bool) (model.ServiceItem, error) {
	d.mu.Lock()
	existing, exists := d.services[service.Name]
	d.mu.Unlock()
	if exists {
		for _, c := range existing.containers {
			_ = d.cz.Stop(ctx, c.ID)
			_ = d.cz.Remove(ctx, c.ID)
		}
	}

	started := make([]containerizer.ContainerItem, 0, len(service.Containers))
	for i, c := range service.Containers {
		image := c.Image
		if i < len(images) && images[i] != "" {
			image = images[i]
		}
		ports := map[string]int{}
		for _, p := range c.Ports {
			ports[fmt.Sprintf("%d", p.ContainerPort)] = p.ContainerPort
		}
		env := map[string]string{}
		for _, e := range c.Env {
			env[e.Name] = e.Value
		}
		item, err := d.cz.Run(ctx, image, containerizer.RunConfig{Detach: true, Ports: ports, Env: env})
		if err != nil {
			for _, started := range started {
				_ = d.cz.Stop(ctx, started.ID)
				_ = d.cz.Remove(ctx, started.ID)
			}
			return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "run container %q for service %q", c.Name, service.Name)
		}
		started = append(started, item)
	}

	d.mu.Lock()
	d.services[service.Name] = dockerLocalService{definition: service, containers: started}
	d.mu.Unlock()

	return model.ServiceItem{Definition: service, Status: containerdeployment.StatusReady}, nil
}

func (d *DockerLocal) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	d.mu.Lock()
	svc, ok := d.services[name]
	d.mu.Unlock()
	if !ok {
		return model.ServiceItem{}, apierr.New(apierr.KindNotFound, "local service %q not found", name)
	}
	return model.ServiceItem{Definition: svc.definition, Status: containerdeployment.StatusReady}, nil
}

func (d *DockerLocal) DeleteService(ctx context.Context, name string) error {
	d.mu.Lock()
	svc, ok := d.services[name]
	delete(d.services, name)
	d.mu.Unlock()
	if !ok {
		return apierr.New(apierr.KindNotFound, "local service %q not found", name)
	}
	for _, c := range svc.containers {
		_ = d.cz.Stop(ctx, c.ID)
		if err := d.cz.Remove(ctx, c.ID); err != nil {
			return apierr.Wrap(apierr.KindBadRequest, err, "remove container %q of service %q", c.ID, name)
		}
	}
	return nil
}

func (d *DockerLocal) ListServices(ctx context.Context) ([]model.ServiceItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	items := make([]model.ServiceItem, 0, len(d.services))
	for _, svc := range d.services {
		items = append(items, model.ServiceItem{Definition: svc.definition, Status: containerdeployment.StatusReady})
	}
	return items, nil
}

func (d *DockerLocal) ListRevisions(ctx context.Context, name string) ([]model.Revision, error) {
	return nil, apierr.New(apierr.KindUnsupported, "local docker deployments do not keep revision history")
}
func (d *DockerLocal) GetRevision(ctx context.Context, name, revision string) (model.Revision, error) {
	return model.Revision{}, apierr.New(apierr.KindUnsupported, "local docker deployments do not keep revision history")
}
func (d *DockerLocal) DeleteRevision(ctx context.Context, name, revision string) error {
	return apierr.New(apierr.KindUnsupported, "local docker deployments do not keep revision history")
}
// UpdateTraffic has nothing to split across: a local deployment is one
// set of containers served entirely. A single allocation naming that
// implicit deployment (empty revision, or Latest) is already satisfied.
func (d *DockerLocal) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	if len(traffic) == 1 && traffic[0].Percent == 100 && (traffic[0].Latest || traffic[0].Revision == "") {
		return d.GetService(ctx, name)
	}
	return model.ServiceItem{}, apierr.New(apierr.KindUnsupported, "local docker deployments do not support traffic splitting")
}

// WaitStable is a no-op settle delay: Deploy already blocks until every
// container has started, so there is no async provisioning step to poll.
func (d *DockerLocal) WaitStable(ctx context.Context, name string) (model.ServiceItem, error) {
	select {
	case <-ctx.Done():
		return model.ServiceItem{}, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	return d.GetService(ctx, name)
}
