package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"k8s.io/klog/v2"

	"github.com/x8labs/cloudcore/pkg/apierr"
	"github.com/x8labs/cloudcore/pkg/containerregistry"
	"github.com/x8labs/cloudcore/pkg/dispatch"
	"github.com/x8labs/cloudcore/pkg/model"
)

// DockerLocalConfig configures the local Docker daemon registry provider,
// used by the dockerlocal ContainerDeployment/Containerizer stack for
// single-machine development (spec §9 "dockerlocal" deployment target).
type DockerLocalConfig struct {
	RegistryHost string // "" means the images stay in the local daemon
}

// DockerLocal implements containerregistry.Provider by driving the local
// Docker daemon's image API directly rather than talking OCI Distribution,
// since localhost has no registry endpoint to speak it to.
type DockerLocal struct {
	cfg DockerLocalConfig
	cli *dockerclient.Client
}

func NewDockerLocal(cfg DockerLocalConfig) (*DockerLocal, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "connect to local docker daemon")
	}
	return &DockerLocal{cfg: cfg, cli: cli}, nil
}

func (d *DockerLocal) Supports(f dispatch.Feature) bool { return false }

func (d *DockerLocal) Close(ctx context.Context) error {
	return d.cli.Close()
}

func (d *DockerLocal) qualify(localImage string) string {
	if d.cfg.RegistryHost == "" {
		return localImage
	}
	return d.cfg.RegistryHost + "/" + localImage
}

func (d *DockerLocal) authHeader() string {
	// Local daemon registries are typically unauthenticated; an empty
	// auth config still round-trips cleanly through RegistryAuth.
	buf, _ := json.Marshal(types.AuthConfig{})
	return base64.URLEncoding.EncodeToString(buf)
}

func (d *DockerLocal) Push(ctx context.Context, localImage string) (containerregistry.Item, error) {
	target := d.qualify(localImage)
	if target != localImage {
		if err := d.cli.ImageTag(ctx, localImage, target); err != nil {
			return containerregistry.Item{}, apierr.Wrap(apierr.KindBadRequest, err, "tag %s as %s", localImage, target)
		}
	}
	if d.cfg.RegistryHost != "" {
		klog.V(1).Infof("containerregistry(dockerlocal): pushing %s", target)
		rc, err := d.cli.ImagePush(ctx, target, image.PushOptions{RegistryAuth: d.authHeader()})
		if err != nil {
			return containerregistry.Item{}, apierr.Wrap(apierr.KindBadRequest, err, "push %s", target)
		}
		defer rc.Close()
		if _, err := io.Copy(io.Discard, rc); err != nil {
			return containerregistry.Item{}, apierr.Wrap(apierr.KindBadRequest, err, "stream push response for %s", target)
		}
	}
	digest, _ := d.resolveDigest(ctx, target)
	return containerregistry.Item{
		Ref:    model.RegistryRef{Provider: "dockerlocal", Name: target, URI: target},
		Image:  target,
		Digest: digest,
	}, nil
}

func (d *DockerLocal) Pull(ctx context.Context, imageName, tag string) (containerregistry.Item, error) {
	ref := imageRef(imageName, tag)
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return containerregistry.Item{}, apierr.Wrap(apierr.KindNotFound, err, "pull %s", ref)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return containerregistry.Item{}, apierr.Wrap(apierr.KindBadRequest, err, "stream pull response for %s", ref)
	}
	digest, _ := d.resolveDigest(ctx, ref)
	return containerregistry.Item{
		Ref:    model.RegistryRef{Provider: "dockerlocal", Name: ref, URI: ref},
		Image:  ref,
		Digest: digest,
	}, nil
}

func (d *DockerLocal) Tag(ctx context.Context, imageName, sourceTag, destTag string) (containerregistry.Item, error) {
	src := imageRef(imageName, sourceTag)
	dst := imageRef(imageName, destTag)
	if err := d.cli.ImageTag(ctx, src, dst); err != nil {
		return containerregistry.Item{}, apierr.Wrap(apierr.KindNotFound, err, "tag %s as %s", src, dst)
	}
	digest, _ := d.resolveDigest(ctx, dst)
	return containerregistry.Item{
		Ref:    model.RegistryRef{Provider: "dockerlocal", Name: dst, URI: dst},
		Image:  dst,
		Digest: digest,
	}, nil
}

func (d *DockerLocal) Delete(ctx context.Context, imageName, tag string) error {
	ref := imageRef(imageName, tag)
	if _, err := d.cli.ImageRemove(ctx, ref, image.RemoveOptions{Force: true}); err != nil {
		return apierr.Wrap(apierr.KindNotFound, err, "remove %s", ref)
	}
	return nil
}

func (d *DockerLocal) List(ctx context.Context, repoPrefix string) ([]string, error) {
	summaries, err := d.cli.ImageList(ctx, image.ListOptions{Filters: filters.NewArgs()})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list local images")
	}
	var out []string
	for _, s := range summaries {
		for _, t := range s.RepoTags {
			if repoPrefix == "" || strings.HasPrefix(t, repoPrefix) {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (d *DockerLocal) Digests(ctx context.Context, imageName string) ([]containerregistry.Digest, error) {
	summaries, err := d.cli.ImageList(ctx, image.ListOptions{Filters: filters.NewArgs()})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list local images")
	}
	var out []containerregistry.Digest
	for _, s := range summaries {
		for _, t := range s.RepoTags {
			if strings.HasPrefix(t, imageName+":") {
				out = append(out, containerregistry.Digest{Tag: strings.TrimPrefix(t, imageName+":"), Digest: s.ID})
			}
		}
	}
	return out, nil
}

func (d *DockerLocal) resolveDigest(ctx context.Context, ref string) (string, error) {
	inspect, _, err := d.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return "", err
	}
	if len(inspect.RepoDigests) > 0 {
		return inspect.RepoDigests[0], nil
	}
	return inspect.ID, nil
}

func imageRef(imageName, tag string) string {
	if tag == "" {
		tag = "latest"
	}
	return fmt.Sprintf("%s:%s", imageName, tag)
}
