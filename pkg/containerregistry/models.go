// Package containerregistry implements the ContainerRegistry component
// (spec §2.5, §8): push/pull/tag/delete/list/digests over a uniform OCI
// Distribution contract backed by ORAS, since ECR, ACR, GAR, and a local
// Docker registry all speak the OCI Distribution API. Grounded on
// original_source/x8/compute/container_registry/component.py for the
// operation set and original_source/x8/compute/container_registry/providers/*.py
// for the per-provider split between "resolve an endpoint + credentials"
// and "do the OCI transfer".
package containerregistry

import "github.com/x8labs/cloudcore/pkg/model"

// Item is the normalized result of a registry operation.
type Item struct {
	Ref    model.RegistryRef
	Image  string
	Digest string
	Tags   []string
}

// Digest is one entry in a Digests() listing.
type Digest struct {
	Tag    string
	Digest string
}
