package containerdeployment

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/cloudauth"
	"github.com/x8labs/cloudcore/pkg/containerizer"
	"github.com/x8labs/cloudcore/pkg/containerregistry"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
	"github.com/x8labs/cloudcore/pkg/ql"
)

// Component is the provider-agnostic ContainerDeployment entry point.
type Component struct {
	Provider          Provider
	Containerizer     *containerizer.Component
	ContainerRegistry *containerregistry.Component
}

func New(p Provider) *Component { return &Component{Provider: p} }

// CreateService runs the 8-step reconciliation algorithm (spec.md §4.1):
// normalize, parse where, probe current state, resolve images, reconcile
// prerequisites, apply service, wait for stability, return.
func (c *Component) CreateService(ctx context.Context, req CreateServiceRequest) (model.ServiceItem, error) {
	state := reconcileState{service: req.Service}

	// Step 1: normalize - fold the overlay into the desired state.
	if req.Overlay != nil {
		state.service = model.ApplyOverlay(state.service, *req.Overlay)
	}
	if err := state.service.Validate(c.Provider.Supports(dispatch.FeatureMultipleContainers)); err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "validate service %q", state.service.Name)
	}

	// Step 2: parse where - an optional existence precondition.
	whereExists, err := ql.ParseWhereExists(req.Where)
	if err != nil {
		return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "parse where clause %q", req.Where)
	}
	state.whereExists = whereExists

	// Step 3: probe current state.
	current, err := c.Provider.GetService(ctx, state.service.Name)
	switch {
	case err == nil:
		state.current = &current
	case apierr.Is(err, apierr.KindNotFound):
		state.current = nil
	default:
		return model.ServiceItem{}, err
	}
	if err := checkWherePrecondition(state.whereExists, state.current != nil, state.service.Name); err != nil {
		return model.ServiceItem{}, err
	}

	// Step 4: resolve images.
	images := make([]model.Container, len(state.service.Containers))
	copy(images, state.service.Containers)
	if len(req.Images) > 0 {
		for i := range images {
			for _, im := range req.Images {
				if im.Name == images[i].Name {
					ref := im
					images[i].ImageRef = &ref
				}
			}
		}
	}
	builder, pusher, err := c.imageResolvers()
	if err != nil && needsImageResolution(images) {
		return model.ServiceItem{}, err
	}
	if needsImageResolution(images) {
		if err := cloudauth.ResolveContainerImages(ctx, images, builder, pusher); err != nil {
			return model.ServiceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "resolve images for %q", state.service.Name)
		}
	}
	resolved := make([]string, len(images))
	for i, im := range images {
		resolved[i] = im.Image
	}
	state.service.Containers = images
	state.images = resolved

	// Steps 5-6: reconcile prerequisites + apply service. Prerequisite
	// reconciliation (IAM roles, log groups, clusters, ...) is provider
	// specific and happens inside Deploy.
	klog.V(1).Infof("containerdeployment: deploying %q (existing=%v)", state.service.Name, state.current != nil)
	item, err := c.Provider.Deploy(ctx, state.service, state.images, state.whereExists)
	if err != nil {
		return model.ServiceItem{}, err
	}

	// Step 7: wait for stability.
	item, err = c.waitStable(ctx, state.service.Name, item)
	if err != nil {
		return model.ServiceItem{}, err
	}

	// Step 8: return.
	return item, nil
}

func (c *Component) GetService(ctx context.Context, name string) (model.ServiceItem, error) {
	return c.Provider.GetService(ctx, name)
}

func (c *Component) DeleteService(ctx context.Context, name string) error {
	return c.Provider.DeleteService(ctx, name)
}

func (c *Component) ListServices(ctx context.Context) ([]model.ServiceItem, error) {
	return c.Provider.ListServices(ctx)
}

func (c *Component) ListRevisions(ctx context.Context, name string) ([]model.Revision, error) {
	return c.Provider.ListRevisions(ctx, name)
}

func (c *Component) GetRevision(ctx context.Context, name, revision string) (model.Revision, error) {
	return c.Provider.GetRevision(ctx, name, revision)
}

func (c *Component) DeleteRevision(ctx context.Context, name, revision string) error {
	if !c.Provider.Supports(dispatch.FeatureRevisionDelete) {
		return apierr.New(apierr.KindUnsupported, "provider does not support revision deletion")
	}
	rev, err := c.Provider.GetRevision(ctx, name, revision)
	if err != nil {
		return err
	}
	if rev.Current {
		return apierr.New(apierr.KindPreconditionFailed, "revision %q of %q is the current active revision", revision, name)
	}
	return c.Provider.DeleteRevision(ctx, name, revision)
}

func (c *Component) UpdateTraffic(ctx context.Context, name string, traffic []model.TrafficAllocation) (model.ServiceItem, error) {
	if len(traffic) > 1 && !c.Provider.Supports(dispatch.FeatureTrafficSplit) {
		return model.ServiceItem{}, apierr.New(apierr.KindUnsupported, "provider does not support traffic splitting")
	}
	return c.Provider.UpdateTraffic(ctx, name, traffic)
}

func (c *Component) Close(ctx context.Context) error {
	return c.Provider.Close(ctx)
}

func checkWherePrecondition(whereExists *bool, exists bool, name string) error {
	if whereExists == nil {
		return nil
	}
	if *whereExists && !exists {
		return apierr.New(apierr.KindNotFound, "service %q does not exist", name)
	}
	if !*whereExists && exists {
		return apierr.New(apierr.KindConflict, "service %q already exists", name)
	}
	return nil
}

func needsImageResolution(containers []model.Container) bool {
	for _, c := range containers {
		if c.Image == "" && c.ImageRef != nil {
			return true
		}
	}
	return false
}

func (c *Component) imageResolvers() (cloudauth.Builder, cloudauth.Pusher, error) {
	if c.Containerizer == nil || c.ContainerRegistry == nil {
		return nil, nil, apierr.New(apierr.KindBadRequest, "image resolution requires a Containerizer and ContainerRegistry")
	}
	return &containerizerBuilder{c.Containerizer}, &registryPusher{c.ContainerRegistry}, nil
}

// waitStable implements step 7. Providers that know how to observe their
// own rollout (Stabilizer) are preferred; everything else falls back to a
// bounded GetService poll. Every wait is capped by StabilityWindow; on
// expiry the last-polled state is returned rather than an error, since a
// slow-but-healthy rollout shouldn't be indistinguishable from a failed
// one to the caller (spec.md §5).
func (c *Component) waitStable(ctx context.Context, name string, seed model.ServiceItem) (model.ServiceItem, error) {
	if s, ok := c.Provider.(Stabilizer); ok {
		return s.WaitStable(ctx, name)
	}
	if seed.Status == StatusReady {
		return seed, nil
	}

	deadline := time.Now().Add(StabilityWindow)
	ticker := time.NewTicker(StabilityPollInterval)
	defer ticker.Stop()

	last := seed
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
			item, err := c.Provider.GetService(ctx, name)
			if err != nil {
				return last, err
			}
			last = item
			switch item.Status {
			case StatusReady:
				return item, nil
			case StatusFailed:
				return item, apierr.New(apierr.KindBadRequest, "service %q failed to stabilize", name)
			}
			if time.Now().After(deadline) {
				klog.Warningf("containerdeployment: %q did not stabilize within %s, returning current state %q", name, StabilityWindow, item.Status)
				return item, nil
			}
		}
	}
}

// containerizerBuilder adapts containerizer.Component to cloudauth.Builder.
type containerizerBuilder struct{ c *containerizer.Component }

func (b *containerizerBuilder) Prepare(ctx context.Context, cfg model.BuildConfig) (model.BuildConfig, error) {
	item, err := b.c.Prepare(ctx, cfg.ImageName, cfg.ContextDir, containerizer.PrepareConfig{})
	if err != nil {
		return model.BuildConfig{}, err
	}
	out := cfg
	out.ContextDir = item.Source
	return out, nil
}

func (b *containerizerBuilder) Build(ctx context.Context, cfg model.BuildConfig) (model.ImageRef, error) {
	item, err := b.c.Build(ctx, cfg.ContextDir, containerizer.BuildConfig{ImageName: cfg.ImageName})
	if err != nil {
		return model.ImageRef{}, err
	}
	return model.ImageRef{URI: item.Name, Digest: item.Digest}, nil
}

// registryPusher adapts containerregistry.Component to cloudauth.Pusher.
type registryPusher struct{ c *containerregistry.Component }

func (p *registryPusher) Push(ctx context.Context, localImage string) (string, error) {
	item, err := p.c.Push(ctx, localImage)
	if err != nil {
		return "", err
	}
	if item.Image == "" {
		return "", fmt.Errorf("containerdeployment: push %q returned no image URI", localImage)
	}
	return item.Image, nil
}
