package providers

import (
	"context"
	"fmt"

	"github.com/x8labs/cloudcore/pkg/cloudauth"
	"github.com/x8labs/cloudcore/pkg/containerregistry"
	"github.com/x8labs/cloudcore/pkg/dispatch"
)

// ACRConfig configures the Azure Container Registry provider.
type ACRConfig struct {
	RegistryName string // "myregistry" in myregistry.azurecr.io
	RepoName     string
}

// ACR implements containerregistry.Provider against Azure Container
// Registry, exchanging an AzureCredential for an ACR refresh token.
type ACR struct {
	cfg  ACRConfig
	cred *cloudauth.AzureCredential
	host string
	core *containerregistry.OrasCore
}

func NewACR(cfg ACRConfig, cred *cloudauth.AzureCredential) *ACR {
	host := fmt.Sprintf("%s.azurecr.io", cfg.RegistryName)
	return &ACR{
		cfg:  cfg,
		cred: cred,
		host: host,
		core: containerregistry.NewOrasCore("acr", containerregistry.Endpoint{
			Host:     host,
			RepoPath: cfg.RepoName,
			Username: "00000000-0000-0000-0000-000000000000",
		}),
	}
}

func (a *ACR) Supports(f dispatch.Feature) bool { return false }

func (a *ACR) Close(ctx context.Context) error {
	return a.cred.Close()
}

func (a *ACR) refreshToken(ctx context.Context) error {
	token, err := a.cred.Token(ctx)
	if err != nil {
		return err
	}
	a.core = containerregistry.NewOrasCore("acr", containerregistry.Endpoint{
		Host:     a.host,
		RepoPath: a.cfg.RepoName,
		Username: "00000000-0000-0000-0000-000000000000",
		Password: token,
	})
	return nil
}

func (a *ACR) Push(ctx context.Context, localImage string) (containerregistry.Item, error) {
	if err := a.refreshToken(ctx); err != nil {
		return containerregistry.Item{}, err
	}
	return a.core.Push(ctx, localImage)
}
func (a *ACR) Pull(ctx context.Context, image, tag string) (containerregistry.Item, error) {
	if err := a.refreshToken(ctx); err != nil {
		return containerregistry.Item{}, err
	}
	return a.core.Pull(ctx, image, tag)
}
func (a *ACR) Tag(ctx context.Context, image, sourceTag, destTag string) (containerregistry.Item, error) {
	if err := a.refreshToken(ctx); err != nil {
		return containerregistry.Item{}, err
	}
	return a.core.Tag(ctx, image, sourceTag, destTag)
}
func (a *ACR) Delete(ctx context.Context, image, tag string) error {
	if err := a.refreshToken(ctx); err != nil {
		return err
	}
	return a.core.Delete(ctx, image, tag)
}
func (a *ACR) List(ctx context.Context, repoPrefix string) ([]string, error) {
	if err := a.refreshToken(ctx); err != nil {
		return nil, err
	}
	return a.core.List(ctx, repoPrefix)
}
func (a *ACR) Digests(ctx context.Context, image string) ([]containerregistry.Digest, error) {
	if err := a.refreshToken(ctx); err != nil {
		return nil, err
	}
	return a.core.Digests(ctx, image)
}
