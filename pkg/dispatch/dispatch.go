// Package dispatch is the operation/response envelope shared by every
// component (spec §2.3, §9). Design Notes §9 calls for replacing the
// Python dynamic `**kwargs` + `__provider__=dict(...)` dispatch with a
// typed ProviderConfig sum and a generically-dispatching Component; Go's
// type system does that statically, so this package is small: Operation
// and Response are kept only as the uniform logging/tracing envelope each
// component wraps its calls in, and Feature is the shared
// capability-query vocabulary providers implement Supports() against.
//
// Grounded on the teacher's pkg/mcp/mcp.go tool-registration shape, where
// each `initX()` returns a set of named, typed handlers dispatched by
// name; each domain component's typed provider interface plays the same
// role without a wire protocol. This package has no Component type.
package dispatch

import "context"

// Operation is the name+args envelope every public component method is
// logically built from, even though Go exposes it as a concrete typed
// method rather than a string-keyed call.
type Operation struct {
	Name string
	Args map[string]any
}

// Response wraps a component call's normalized result alongside the
// provider's native return value, so a caller who wants SDK-level detail
// doesn't have to resort to channel-specific escape hatches (spec §6).
type Response struct {
	Result any
	Native any
}

// Feature names a capability a provider may or may not implement. The
// enum is locked to exactly this set after auditing every `__supports__`
// call site in original_source/x8/compute/container_deployment/providers/
// (Design Notes §9 open question).
type Feature string

const (
	FeatureMultipleRevisions Feature = "MULTIPLE_REVISIONS"
	FeatureRevisionDelete    Feature = "REVISION_DELETE"
	FeatureMultipleContainers Feature = "MULTIPLE_CONTAINERS"
	FeatureTrafficSplit      Feature = "TRAFFIC_SPLIT"
)

// FeatureSet is the capability set a provider declares.
type FeatureSet map[Feature]bool

// Supports reports whether f is in the set.
func (fs FeatureSet) Supports(f Feature) bool { return fs[f] }

// Provider is the minimal contract every provider in every domain
// component implements: a capability query and a lifecycle Close.
type Provider interface {
	Supports(f Feature) bool
	Close(ctx context.Context) error
}
