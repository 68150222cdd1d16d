package containerizer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"

	"github.com/x8labs/cloudcore/pkg/apierr"
)

// Component is the Containerizer: it stages a build context, builds it with
// the local Docker daemon, and runs/stops/removes the resulting containers.
type Component struct {
	cli *dockerclient.Client
	fs  afero.Fs
}

func New() (*Component, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "connect to local docker daemon")
	}
	return &Component{cli: cli, fs: afero.NewOsFs()}, nil
}

func (c *Component) Close(ctx context.Context) error {
	return c.cli.Close()
}

// Prepare stages handle's source folder for a build, writing a Dockerfile
// if the folder doesn't already carry one (spec §9: "assumes a Dockerfile
// unless PrepareInPlace is requested").
func (c *Component) Prepare(ctx context.Context, handle, sourcePath string, cfg PrepareConfig) (SourceItem, error) {
	if cfg.BaseImage == "" {
		cfg.BaseImage = DefaultBaseImage
	}
	dest := sourcePath
	if !cfg.PrepareInPlace {
		var err error
		dest, err = afero.TempDir(c.fs, "", "containerizer-"+handle)
		if err != nil {
			return SourceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "stage build context for %q", handle)
		}
		if err := copyTree(c.fs, sourcePath, dest); err != nil {
			return SourceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "copy source tree for %q", handle)
		}
	}

	dockerfilePath := filepath.Join(dest, "Dockerfile")
	if exists, _ := afero.Exists(c.fs, dockerfilePath); !exists {
		if err := afero.WriteFile(c.fs, dockerfilePath, []byte(renderDockerfile(cfg)), 0o644); err != nil {
			return SourceItem{}, apierr.Wrap(apierr.KindBadRequest, err, "write generated Dockerfile for %q", handle)
		}
	}
	return SourceItem{Source: dest}, nil
}

func renderDockerfile(cfg PrepareConfig) string {
	out := fmt.Sprintf("FROM %s\nWORKDIR /app\nCOPY . /app\n", cfg.BaseImage)
	for _, f := range cfg.Requirements {
		out += fmt.Sprintf("RUN pip install --no-cache-dir -r %s\n", f)
	}
	for _, p := range cfg.Expose {
		out += fmt.Sprintf("EXPOSE %d\n", p)
	}
	return out
}

// Build builds the image at source with the local daemon, tarring the
// build context the way `docker build` itself does.
func (c *Component) Build(ctx context.Context, source string, cfg BuildConfig) (ImageItem, error) {
	if cfg.Platform == "" {
		cfg.Platform = DefaultPlatform
	}
	if cfg.ImageName == "" {
		return ImageItem{}, apierr.New(apierr.KindBadRequest, "build: image_name is required")
	}

	tarCtx, err := archive.TarWithOptions(source, &archive.TarOptions{})
	if err != nil {
		return ImageItem{}, apierr.Wrap(apierr.KindBadRequest, err, "tar build context %q", source)
	}
	defer tarCtx.Close()

	klog.V(1).Infof("containerizer: building %s from %s (nocache=%v)", cfg.ImageName, source, cfg.NoCache)
	resp, err := c.cli.ImageBuild(ctx, tarCtx, dockerBuildOptions(cfg))
	if err != nil {
		return ImageItem{}, apierr.Wrap(apierr.KindBadRequest, err, "build %s", cfg.ImageName)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return ImageItem{}, apierr.Wrap(apierr.KindBadRequest, err, "stream build output for %s", cfg.ImageName)
	}

	inspect, _, err := c.cli.ImageInspectWithRaw(ctx, cfg.ImageName)
	if err != nil {
		return ImageItem{}, apierr.Wrap(apierr.KindBadRequest, err, "inspect built image %s", cfg.ImageName)
	}
	digest := inspect.ID
	if len(inspect.RepoDigests) > 0 {
		digest = inspect.RepoDigests[0]
	}
	return ImageItem{Name: cfg.ImageName, Digest: digest, Tags: inspect.RepoTags}, nil
}

// Run starts image_name as a container, mapping ports and env per cfg.
func (c *Component) Run(ctx context.Context, imageName string, cfg RunConfig) (ContainerItem, error) {
	portBindings, exposed := toPortBindings(cfg.Ports)
	var env []string
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	created, err := c.cli.ContainerCreate(ctx,
		&container.Config{Image: imageName, Env: env, ExposedPorts: exposed},
		&container.HostConfig{PortBindings: portBindings, AutoRemove: cfg.Remove},
		&network.NetworkingConfig{}, nil, "")
	if err != nil {
		return ContainerItem{}, apierr.Wrap(apierr.KindBadRequest, err, "create container from %s", imageName)
	}
	if err := c.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return ContainerItem{}, apierr.Wrap(apierr.KindBadRequest, err, "start container %s", created.ID)
	}
	return ContainerItem{ID: created.ID, Image: &ImageItem{Name: imageName}}, nil
}

func (c *Component) Stop(ctx context.Context, containerID string) error {
	if err := c.cli.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return apierr.Wrap(apierr.KindNotFound, err, "stop container %s", containerID)
	}
	return nil
}

func (c *Component) Remove(ctx context.Context, containerID string) error {
	if err := c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return apierr.Wrap(apierr.KindNotFound, err, "remove container %s", containerID)
	}
	return nil
}

func (c *Component) Delete(ctx context.Context, imageName string) error {
	if _, err := c.cli.ImageRemove(ctx, imageName, dockerimage.RemoveOptions{Force: true}); err != nil {
		return apierr.Wrap(apierr.KindNotFound, err, "delete image %s", imageName)
	}
	return nil
}

func (c *Component) ListContainers(ctx context.Context) ([]ContainerItem, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list containers")
	}
	out := make([]ContainerItem, 0, len(containers))
	for _, item := range containers {
		name := ""
		if len(item.Names) > 0 {
			name = item.Names[0]
		}
		out = append(out, ContainerItem{ID: item.ID, Name: name, Image: &ImageItem{Name: item.Image}})
	}
	return out, nil
}

func (c *Component) ListImages(ctx context.Context) ([]ImageItem, error) {
	images, err := c.cli.ImageList(ctx, dockerimage.ListOptions{})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "list images")
	}
	out := make([]ImageItem, 0, len(images))
	for _, img := range images {
		name := ""
		if len(img.RepoTags) > 0 {
			name = img.RepoTags[0]
		}
		out = append(out, ImageItem{Name: name, Digest: img.ID, Tags: img.RepoTags})
	}
	return out, nil
}

func dockerBuildOptions(cfg BuildConfig) types.ImageBuildOptions {
	return types.ImageBuildOptions{
		Tags:        []string{cfg.ImageName},
		Dockerfile:  "Dockerfile",
		Platform:    cfg.Platform,
		NoCache:     cfg.NoCache,
		Remove:      true,
		ForceRemove: true,
	}
}

func copyTree(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, info.Mode())
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		return afero.WriteFile(fs, target, data, info.Mode())
	})
}

func toPortBindings(ports map[string]int) (nat.PortMap, nat.PortSet) {
	bindings := nat.PortMap{}
	exposed := nat.PortSet{}
	for containerPort, hostPort := range ports {
		p := nat.Port(containerPort + "/tcp")
		bindings[p] = []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}}
		exposed[p] = struct{}{}
	}
	return bindings, exposed
}
