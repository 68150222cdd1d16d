// Package containerdeployment implements the ContainerDeployment
// reconciliation engine (spec.md §4.1): a provider-agnostic
// create/get/delete/list surface for compute services (ECS, App Runner,
// Azure Container Apps/Instances, Cloud Run, local Docker), built around
// an 8-step reconcile-to-desired-state algorithm. Grounded on
// original_source/x8/compute/container_deployment/{_models,_helper}.py
// and providers/_base.py for the normalize → probe → resolve-images →
// deploy → wait-stable shape; providers/_amazon_ecs.py for the ECS
// cluster/role/log-group prerequisite chain and its retry semantics.
package containerdeployment

import (
	"time"

	"github.com/x8labs/cloudcore/pkg/model"
)

// StabilityWindow bounds how long WaitStable polls before giving up and
// returning its last-observed state (spec.md §5: every blocking wait is
// bounded; service stability is capped at 600s, distinct from the 300s
// bound the Kubernetes apply engine uses for bare object readiness).
const StabilityWindow = 600 * time.Second

// StabilityPollInterval is how often WaitStable re-probes the provider.
const StabilityPollInterval = 3 * time.Second

// Service status values a Provider.GetService/Deploy result carries.
const (
	StatusProvisioning = "provisioning"
	StatusReady        = "ready"
	StatusFailed       = "failed"
)

// CreateServiceRequest bundles everything step 1-4 of the reconciliation
// algorithm consume to normalize a desired state before it is deployed.
type CreateServiceRequest struct {
	Service model.ServiceDefinition
	Overlay *model.ServiceOverlay
	Images  []model.ImageMap
	Where   string // QL expression; spec.md §4.1 step 2 ("parse where")
}

// reconcileState is the intermediate value threaded through the 8 steps.
type reconcileState struct {
	service     model.ServiceDefinition
	whereExists *bool
	current     *model.ServiceItem
	images      []string
}
