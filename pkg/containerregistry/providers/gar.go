package providers

import (
	"context"
	"fmt"

	"github.com/x8labs/cloudcore/pkg/cloudauth"
	"github.com/x8labs/cloudcore/pkg/containerregistry"
	"github.com/x8labs/cloudcore/pkg/dispatch"
)

// GARConfig configures the Google Artifact Registry provider.
type GARConfig struct {
	Project  string
	Location string // e.g. "us-central1"
	RepoName string // the Artifact Registry repository
	ImageName string
}

// GAR implements containerregistry.Provider against Google Artifact
// Registry, exchanging a GoogleCredential for an OAuth2 bearer token used
// as the OCI Distribution basic-auth password (username "oauth2accesstoken").
type GAR struct {
	cfg  GARConfig
	cred *cloudauth.GoogleCredential
	host string
	core *containerregistry.OrasCore
}

func NewGAR(cfg GARConfig, cred *cloudauth.GoogleCredential) *GAR {
	host := fmt.Sprintf("%s-docker.pkg.dev", cfg.Location)
	repoPath := fmt.Sprintf("%s/%s/%s", cfg.Project, cfg.RepoName, cfg.ImageName)
	return &GAR{
		cfg:  cfg,
		cred: cred,
		host: host,
		core: containerregistry.NewOrasCore("gar", containerregistry.Endpoint{
			Host:     host,
			RepoPath: repoPath,
			Username: "oauth2accesstoken",
		}),
	}
}

func (g *GAR) Supports(f dispatch.Feature) bool { return false }

func (g *GAR) Close(ctx context.Context) error {
	return g.cred.Close()
}

func (g *GAR) repoPath() string {
	return fmt.Sprintf("%s/%s/%s", g.cfg.Project, g.cfg.RepoName, g.cfg.ImageName)
}

func (g *GAR) refreshToken(ctx context.Context) error {
	token, err := g.cred.Token(ctx)
	if err != nil {
		return err
	}
	g.core = containerregistry.NewOrasCore("gar", containerregistry.Endpoint{
		Host:     g.host,
		RepoPath: g.repoPath(),
		Username: "oauth2accesstoken",
		Password: token,
	})
	return nil
}

func (g *GAR) Push(ctx context.Context, localImage string) (containerregistry.Item, error) {
	if err := g.refreshToken(ctx); err != nil {
		return containerregistry.Item{}, err
	}
	return g.core.Push(ctx, localImage)
}
func (g *GAR) Pull(ctx context.Context, image, tag string) (containerregistry.Item, error) {
	if err := g.refreshToken(ctx); err != nil {
		return containerregistry.Item{}, err
	}
	return g.core.Pull(ctx, image, tag)
}
func (g *GAR) Tag(ctx context.Context, image, sourceTag, destTag string) (containerregistry.Item, error) {
	if err := g.refreshToken(ctx); err != nil {
		return containerregistry.Item{}, err
	}
	return g.core.Tag(ctx, image, sourceTag, destTag)
}
func (g *GAR) Delete(ctx context.Context, image, tag string) error {
	if err := g.refreshToken(ctx); err != nil {
		return err
	}
	return g.core.Delete(ctx, image, tag)
}
func (g *GAR) List(ctx context.Context, repoPrefix string) ([]string, error) {
	if err := g.refreshToken(ctx); err != nil {
		return nil, err
	}
	return g.core.List(ctx, repoPrefix)
}
func (g *GAR) Digests(ctx context.Context, image string) ([]containerregistry.Digest, error) {
	if err := g.refreshToken(ctx); err != nil {
		return nil, err
	}
	return g.core.Digests(ctx, image)
}
