// Package providers implements the ContainerRegistry providers: ecr, acr,
// gar (all OCI-Distribution, sharing containerregistry.OrasCore) and
// dockerlocal (drives the local Docker daemon directly).
package providers

import (
	"context"
	"fmt"

	"github.com/x8labs/cloudcore/pkg/containerregistry"
	"github.com/x8labs/cloudcore/pkg/dispatch"
)

// ECRConfig configures the AWS Elastic Container Registry provider.
type ECRConfig struct {
	AccountID string
	Region    string
	RepoName  string
	// AuthToken is the short-lived ECR basic-auth token the caller
	// obtained from GetAuthorizationToken; cloudauth has no AWS SDK
	// wiring in this corpus, so token acquisition is the caller's job.
	AuthToken string
}

// ECR implements containerregistry.Provider against Amazon ECR.
type ECR struct {
	cfg  ECRConfig
	core *containerregistry.OrasCore
}

func NewECR(cfg ECRConfig) *ECR {
	host := fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", cfg.AccountID, cfg.Region)
	return &ECR{
		cfg: cfg,
		core: containerregistry.NewOrasCore("ecr", containerregistry.Endpoint{
			Host:     host,
			RepoPath: cfg.RepoName,
			Username: "AWS",
			Password: cfg.AuthToken,
		}),
	}
}

func (e *ECR) Supports(f dispatch.Feature) bool { return false }
func (e *ECR) Close(ctx context.Context) error  { return nil }

func (e *ECR) Push(ctx context.Context, localImage string) (containerregistry.Item, error) {
	return e.core.Push(ctx, localImage)
}
func (e *ECR) Pull(ctx context.Context, image, tag string) (containerregistry.Item, error) {
	return e.core.Pull(ctx, image, tag)
}
func (e *ECR) Tag(ctx context.Context, image, sourceTag, destTag string) (containerregistry.Item, error) {
	return e.core.Tag(ctx, image, sourceTag, destTag)
}
func (e *ECR) Delete(ctx context.Context, image, tag string) error {
	return e.core.Delete(ctx, image, tag)
}
func (e *ECR) List(ctx context.Context, repoPrefix string) ([]string, error) {
	return e.core.List(ctx, repoPrefix)
}
func (e *ECR) Digests(ctx context.Context, image string) ([]containerregistry.Digest, error) {
	return e.core.Digests(ctx, image)
}

// EnsureDefaultRegistry defaults the ECR repository to one named
// "{serviceName}" if the caller did not supply one (spec §4.1 step 4's
// "_ensure_container_registry"). It issues no CreateRepository call; it
// records the name and points the provider's endpoint at that repository,
// so later pushes target it whether or not it already exists.
func (e *ECR) EnsureDefaultRegistry(ctx context.Context, serviceName string) (string, error) {
	if e.cfg.RepoName != "" {
		return e.cfg.RepoName, nil
	}
	e.cfg.RepoName = serviceName
	e.core = NewECR(e.cfg).core
	return serviceName, nil
}
