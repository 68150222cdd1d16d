package cloudauth

import (
	"context"
	"fmt"

	"github.com/x8labs/cloudcore/pkg/model"
)

// Builder is the subset of Containerizer the image-push helper needs.
type Builder interface {
	Prepare(ctx context.Context, cfg model.BuildConfig) (model.BuildConfig, error)
	Build(ctx context.Context, cfg model.BuildConfig) (model.ImageRef, error)
}

// Pusher is the subset of ContainerRegistry the image-push helper needs.
type Pusher interface {
	Push(ctx context.Context, localImage string) (string, error)
}

// ResolveImage implements spec §4.1 step 4 for one Container's ImageMap:
// a Handle is returned unchanged, a Source runs prepare->build->push, and
// a LocalImage is pushed directly. BuildConfig.ImageName is seeded from
// ImageMap.Name when unset, per spec §6.
func ResolveImage(ctx context.Context, ref model.ImageMap, builder Builder, pusher Pusher) (string, error) {
	switch {
	case ref.Handle != "":
		return ref.Handle, nil
	case ref.Source != nil:
		cfg := *ref.Source
		if cfg.ImageName == "" {
			cfg.ImageName = ref.Name
		}
		prepared, err := builder.Prepare(ctx, cfg)
		if err != nil {
			return "", fmt.Errorf("cloudauth: prepare image %q: %w", cfg.ImageName, err)
		}
		img, err := builder.Build(ctx, prepared)
		if err != nil {
			return "", fmt.Errorf("cloudauth: build image %q: %w", cfg.ImageName, err)
		}
		uri, err := pusher.Push(ctx, img.URI)
		if err != nil {
			return "", fmt.Errorf("cloudauth: push image %q: %w", img.URI, err)
		}
		return uri, nil
	case ref.LocalImage != "":
		uri, err := pusher.Push(ctx, ref.LocalImage)
		if err != nil {
			return "", fmt.Errorf("cloudauth: push local image %q: %w", ref.LocalImage, err)
		}
		return uri, nil
	default:
		return "", fmt.Errorf("cloudauth: ImageMap has no handle, source, or local image")
	}
}

// ResolveContainerImages maps ResolveImage positionally over every
// Container whose Image is unset and ImageRef is set, per spec §4.1 step 4.
func ResolveContainerImages(ctx context.Context, containers []model.Container, builder Builder, pusher Pusher) error {
	for i, c := range containers {
		if c.Image != "" || c.ImageRef == nil {
			continue
		}
		uri, err := ResolveImage(ctx, *c.ImageRef, builder, pusher)
		if err != nil {
			return fmt.Errorf("cloudauth: resolve image for container %q: %w", c.Name, err)
		}
		containers[i].Image = uri
	}
	return nil
}
