package model

// BuildConfig describes a source → OCI image build (spec §2.5,
// recovered from original_source/x8/compute/containerizer/_models.py).
type BuildConfig struct {
	ImageName  string
	ContextDir string
	Dockerfile string
	BuildArgs  map[string]string
	Target     string
}

// RegistryRef names a resolved container registry (provider, logical name,
// and its push/pull endpoint URI), recovered from
// original_source/x8/compute/container_registry/_models.py.
type RegistryRef struct {
	Provider string
	Name     string
	URI      string
}

// ImageRef is a fully resolved, pushed image: a registry-qualified URI plus
// its content digest.
type ImageRef struct {
	URI    string
	Digest string
}
