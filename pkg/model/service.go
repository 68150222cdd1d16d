// Package model holds the neutral value types shared by every component
// and provider: the container-deployment desired-state model and the
// object-store item model (spec §3). Types here carry no behavior beyond
// small validation/merge helpers; providers translate them to and from
// their native shapes.
package model

import "fmt"

// ServiceDefinition is the desired state of a container service, provider
// agnostic. Exactly one Container has Type MainContainer for providers that
// don't support MULTIPLE_CONTAINERS; TrafficAllocation.Percent values sum
// to 100 when non-empty.
type ServiceDefinition struct {
	Name       string
	Containers []Container
	Ingress    *Ingress
	Scale      *Scale
	Traffic    []TrafficAllocation
	Volumes    []Volume
	RestartPolicy string

	// Read-only, populated by providers on reconciliation.
	LatestReadyRevision   string
	LatestCreatedRevision string
}

// Volume is a named volume a Container can mount.
type Volume struct {
	Name       string
	EmptyDir   bool
	HostPath   string
	SizeLimitMiB int64
}

// Validate checks the invariants spec.md §3 names, independent of any
// provider's extra capability constraints.
func (s ServiceDefinition) Validate(multipleMainAllowed bool) error {
	if s.Name == "" {
		return fmt.Errorf("service name is required")
	}
	mainCount := 0
	for _, c := range s.Containers {
		if c.Type == MainContainer {
			mainCount++
		}
	}
	if mainCount == 0 {
		return fmt.Errorf("service %q has no main container", s.Name)
	}
	if !multipleMainAllowed && mainCount > 1 {
		return fmt.Errorf("service %q has %d main containers, provider supports exactly one", s.Name, mainCount)
	}
	if len(s.Traffic) > 0 {
		total := 0
		for _, t := range s.Traffic {
			total += t.Percent
		}
		if total != 100 {
			return fmt.Errorf("traffic allocations sum to %d, want 100", total)
		}
	}
	return nil
}

// TrafficAllocation assigns a percentage of traffic to a revision (or to
// "latest" when Revision is empty).
type TrafficAllocation struct {
	Revision string
	Percent  int
	Latest   bool
}

// ServiceOverlay is merged into a base ServiceDefinition before
// reconciliation (spec §4.1 step 1). Env entries replace the base on a
// matching (container name, env name) pair; every other field in the
// overlay, when set, replaces the corresponding base field wholesale.
type ServiceOverlay struct {
	Scale   *Scale
	Traffic []TrafficAllocation
	EnvByContainer map[string][]EnvVar
}

// ApplyOverlay merges overlay into base per spec §4.1 step 1 and returns a
// new ServiceDefinition; base and overlay are left untouched.
func ApplyOverlay(base ServiceDefinition, overlay ServiceOverlay) ServiceDefinition {
	out := base
	out.Containers = make([]Container, len(base.Containers))
	copy(out.Containers, base.Containers)

	for i, c := range out.Containers {
		extra, ok := overlay.EnvByContainer[c.Name]
		if !ok {
			continue
		}
		out.Containers[i].Env = mergeEnv(c.Env, extra)
	}
	if overlay.Scale != nil {
		out.Scale = overlay.Scale
	}
	if len(overlay.Traffic) > 0 {
		out.Traffic = overlay.Traffic
	}
	return out
}

// mergeEnv replaces base entries with overlay entries sharing the same
// Name, preserving base ordering and appending genuinely new names,
// consistent with the "last wins by name" env ordering rule (spec §3).
func mergeEnv(base, overlay []EnvVar) []EnvVar {
	byName := make(map[string]EnvVar, len(overlay))
	for _, e := range overlay {
		byName[e.Name] = e
	}
	out := make([]EnvVar, 0, len(base)+len(overlay))
	seen := make(map[string]bool, len(base))
	for _, e := range base {
		if repl, ok := byName[e.Name]; ok {
			out = append(out, repl)
		} else {
			out = append(out, e)
		}
		seen[e.Name] = true
	}
	for _, e := range overlay {
		if !seen[e.Name] {
			out = append(out, e)
		}
	}
	return out
}

// ServiceItem is the normalized result returned from create/get/list
// operations: the effective ServiceDefinition plus read-only status.
type ServiceItem struct {
	Definition ServiceDefinition
	URI        string
	Status     string
	Revisions  []Revision
}

// Revision is an immutable snapshot of a service's template.
type Revision struct {
	ID      string
	Current bool
	Created int64 // epoch seconds
}
