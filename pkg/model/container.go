package model

// ContainerType distinguishes init containers (run to completion before
// main containers start) from the main container(s).
type ContainerType string

const (
	MainContainer ContainerType = "main"
	InitContainer ContainerType = "init"
)

// EnvVar is one ordered environment variable entry; later entries with the
// same Name win (spec §3).
type EnvVar struct {
	Name  string
	Value string
}

// Port is a container port exposed to the ingress layer or to other
// containers in the same pod/task.
type Port struct {
	Name          string
	ContainerPort int
	Protocol      string // "tcp" | "udp", defaults to tcp
}

// VolumeMount binds a Volume by name into a container's filesystem.
type VolumeMount struct {
	VolumeName string
	MountPath  string
	ReadOnly   bool
}

// Resources declares requested/limit compute for a container. CPU is in
// whole cores (float, e.g. 0.25); Memory is in MiB.
type Resources struct {
	RequestsCPUCores float64
	RequestsMemoryMiB int64
	LimitsCPUCores    float64
	LimitsMemoryMiB   int64
	GPUCount          int
	GPUType           string
}

// SecurityContext mirrors the small cross-provider subset of pod/container
// security settings the neutral model carries.
type SecurityContext struct {
	RunAsUser    *int64
	RunAsNonRoot *bool
	ReadOnlyRootFilesystem bool
	Privileged   bool
}

// Lifecycle declares pre-stop/post-start hooks as exec commands, the only
// shape representable across all provider families.
type Lifecycle struct {
	PostStartExec []string
	PreStopExec   []string
}

// ImageMap selects how a Container's image is produced. Exactly one of
// these is used; Handle names a pre-built image URI, Source names build
// context to run through the Containerizer, LocalImage names an image
// already present in the local Docker daemon.
type ImageMap struct {
	Handle     string
	Source     *BuildConfig
	LocalImage string
	// Name, when set, seeds BuildConfig.ImageName if that is unset (spec §6).
	Name string
}

// Container is one container in a ServiceDefinition.
type Container struct {
	Name    string
	Type    ContainerType
	Image   string // resolved URI; empty until image resolution runs
	ImageRef *ImageMap // unresolved reference, mutually exclusive with Image

	Command []string
	Args    []string
	WorkingDir string

	Env   []EnvVar
	Ports []Port
	VolumeMounts []VolumeMount
	Resources Resources

	LivenessProbe  *Probe
	ReadinessProbe *Probe
	StartupProbe   *Probe

	Lifecycle       *Lifecycle
	SecurityContext *SecurityContext
}

// HasExposedPorts reports whether this container has any container ports,
// which makes it an ingress participant when it is a main container
// (spec §3 invariant).
func (c Container) HasExposedPorts() bool { return len(c.Ports) > 0 }

// ProbeAction is the discriminated union of probe mechanisms; exactly one
// field is non-nil on a valid Probe (spec §3).
type ProbeAction struct {
	HTTPGet    *HTTPGetAction
	TCPSocket  *TCPSocketAction
	Exec       *ExecAction
	GRPC       *GRPCAction
}

type HTTPGetAction struct {
	Path   string
	Port   int
	Scheme string // "http" | "https", defaults to http
	Host   string
}

type TCPSocketAction struct {
	Port int
	Host string
}

type ExecAction struct {
	Command []string
}

type GRPCAction struct {
	Port    int
	Service string
}

// Probe configures a liveness/readiness/startup check. Timing fields are
// pointers so "unset" (use provider default) round-trips losslessly.
type Probe struct {
	Action ProbeAction

	InitialDelaySeconds *int
	PeriodSeconds       *int
	TimeoutSeconds      *int
	SuccessThreshold    *int
	FailureThreshold    *int
}
