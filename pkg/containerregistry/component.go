package containerregistry

import (
	"context"

	"github.com/x8labs/cloudcore/pkg/dispatch"
)

// Provider is implemented by each registry backend (ecr, acr, gar,
// dockerlocal). All four providers share the same normalized operation signatures;
// a provider's Endpoint determines where bytes actually land.
type Provider interface {
	dispatch.Provider

	Push(ctx context.Context, localImage string) (Item, error)
	Pull(ctx context.Context, image, tag string) (Item, error)
	Tag(ctx context.Context, image, sourceTag, destTag string) (Item, error)
	Delete(ctx context.Context, image, tag string) error
	List(ctx context.Context, repoPrefix string) ([]string, error)
	Digests(ctx context.Context, image string) ([]Digest, error)
}

// Component is the provider-agnostic ContainerRegistry entry point.
type Component struct {
	Provider Provider
}

func New(p Provider) *Component { return &Component{Provider: p} }

func (c *Component) Push(ctx context.Context, localImage string) (Item, error) {
	return c.Provider.Push(ctx, localImage)
}

func (c *Component) Pull(ctx context.Context, image, tag string) (Item, error) {
	return c.Provider.Pull(ctx, image, tag)
}

func (c *Component) Tag(ctx context.Context, image, sourceTag, destTag string) (Item, error) {
	return c.Provider.Tag(ctx, image, sourceTag, destTag)
}

func (c *Component) Delete(ctx context.Context, image, tag string) error {
	return c.Provider.Delete(ctx, image, tag)
}

func (c *Component) List(ctx context.Context, repoPrefix string) ([]string, error) {
	return c.Provider.List(ctx, repoPrefix)
}

func (c *Component) Digests(ctx context.Context, image string) ([]Digest, error) {
	return c.Provider.Digests(ctx, image)
}

func (c *Component) Close(ctx context.Context) error {
	return c.Provider.Close(ctx)
}
