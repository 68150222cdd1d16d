// Package containerizer implements the Containerizer component (spec §2.5,
// §9): prepare a source tree, build it into an image, and run/stop/remove
// containers against the local Docker daemon. Grounded on
// original_source/x8/compute/containerizer/{_models,component}.py for the
// operation set; the daemon calls themselves follow the same
// github.com/docker/docker/client usage as
// pkg/containerregistry/providers/dockerlocal.go.
package containerizer

import "time"

const (
	DefaultBaseImage = "python:3.11-slim"
	DefaultPlatform  = "linux/amd64"
)

// PrepareConfig controls how a component's source folder is staged for a
// build: base image selection, ports the Dockerfile should EXPOSE, and any
// requirements files to fold into a pip install layer.
type PrepareConfig struct {
	BaseImage       string
	Expose          []int
	Requirements    []string
	PrepareInPlace  bool
}

// BuildConfig controls an image build.
type BuildConfig struct {
	ImageName string
	Platform  string
	NoCache   bool
}

// RunConfig controls a container run.
type RunConfig struct {
	Detach  bool
	Remove  bool
	Ports   map[string]int // containerPort -> hostPort
	Env     map[string]string
	Timeout time.Duration
}

// SourceItem is the staged build context returned by Prepare.
type SourceItem struct {
	Source string // absolute path to the prepared build context
}

// ImageItem is a built or resolved image.
type ImageItem struct {
	Name   string
	Digest string
	Tags   []string
	Error  string
}

// ContainerItem is a running or stopped container.
type ContainerItem struct {
	ID    string
	Name  string
	Image *ImageItem
}
